package geopose

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"gonum.org/v1/gonum/mat"
)

// RotateAndCrop rotates the reference raster stack about its center by the
// given heading angle (degrees, positive clockwise in pixel space) and
// center-crops it to cropHeight x cropWidth, matching the live camera's
// viewing geometry. It returns the aligned stack together with the
// AlignmentTransform from the original raster pixel frame to the aligned
// frame.
//
// The transform is built in (row, col) pixel coordinates and padded to a 4x4
// homogeneous matrix so it can later be inverted to map 3D pose estimates in
// the aligned frame back to the original frame.
func RotateAndCrop(stack RasterStack, headingDeg float64, cropHeight, cropWidth int) (RasterStack, AlignmentTransform, error) {
	h, w := stack.Height(), stack.Width()
	if cropHeight <= 0 || cropWidth <= 0 || cropHeight > h || cropWidth > w {
		return RasterStack{}, AlignmentTransform{}, fmt.Errorf("%w: %dx%d crop of %dx%d raster",
			ErrInvalidCropSize, cropHeight, cropWidth, h, w)
	}

	// Rotation about the raster center. First coordinate is the row axis.
	theta := headingDeg * math.Pi / 180
	alpha, beta := math.Cos(theta), math.Sin(theta)
	cr, cc := float64(h/2), float64(w/2)
	rt := [2]float64{(1-alpha)*cr - beta*cc, beta*cr + (1-alpha)*cc}

	// Center-crop offset per axis. Non-negative after the size check above.
	dr := float64((h - cropHeight) / 2)
	dc := float64((w - cropWidth) / 2)

	// Compose rotation and crop translation, pad into homogeneous 4x4.
	m := mat.NewDense(4, 4, []float64{
		alpha, beta, 0, rt[0] + dr,
		-beta, alpha, 0, rt[1] + dc,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	align, err := NewAlignmentTransform(m)
	if err != nil {
		return RasterStack{}, AlignmentTransform{}, err
	}

	// For resampling only, the translation is negated and axis-swapped so
	// the warp lands the crop region in the top-left corner of the output
	// buffer and the output size acts as a center-crop. The geometrically
	// meaningful transform returned to callers is the one above.
	warp := f64.Aff3{
		alpha, beta, rt[0] - dc,
		-beta, alpha, rt[1] - dr,
	}

	gray := image.NewGray(image.Rect(0, 0, cropWidth, cropHeight))
	draw.BiLinear.Transform(gray, warp, stack.Gray, stack.Gray.Bounds(), draw.Src, nil)

	elevation := image.NewGray16(image.Rect(0, 0, cropWidth, cropHeight))
	draw.BiLinear.Transform(elevation, warp, stack.Elevation, stack.Elevation.Bounds(), draw.Src, nil)

	aligned := RasterStack{
		Gray:       gray,
		Elevation:  elevation,
		Transform:  stack.Transform,
		Projection: stack.Projection,
	}
	return aligned, align, nil
}
