package geopose

import (
	"fmt"
	"image"
	"image/color"
)

// EncodeStack packs a raster stack into a single 8-bit RGBA image for
// transport: the red channel carries the grayscale reference and the green
// and blue channels jointly carry the 16-bit elevation raster (high and low
// byte). Semantically this is not one image but a compact stacking that
// avoids a custom wire type.
func EncodeStack(stack RasterStack) *image.RGBA {
	w, h := stack.Width(), stack.Height()
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gray := stack.Gray.GrayAt(x, y).Y
			elev := stack.Elevation.Gray16At(x, y).Y
			out.SetRGBA(x, y, color.RGBA{
				R: gray,
				G: uint8(elev >> 8),
				B: uint8(elev & 0xff),
				A: 0xff,
			})
		}
	}
	return out
}

// DecodeStack unpacks the wire form produced by EncodeStack. The caller
// supplies the geotransform and projection, which travel out of band.
func DecodeStack(img *image.RGBA, transform GeoTransform, projection string) (RasterStack, error) {
	if img == nil {
		return RasterStack{}, fmt.Errorf("%w: stacked image", ErrNilRaster)
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	elevation := image.NewGray16(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := img.RGBAAt(b.Min.X+x, b.Min.Y+y)
			gray.SetGray(x, y, color.Gray{Y: c.R})
			elevation.SetGray16(x, y, color.Gray16{Y: uint16(c.G)<<8 | uint16(c.B)})
		}
	}
	return NewRasterStack(gray, elevation, transform, projection)
}
