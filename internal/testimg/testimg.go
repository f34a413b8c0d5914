// Package testimg generates small deterministic rasters for tests and the
// synthetic demo scenario.
package testimg

import (
	"image"
	"image/color"
)

// Checkerboard returns a grayscale checkerboard with the given cell size.
// The pattern gives feature matchers and warps something visually distinct
// per pixel region.
func Checkerboard(width, height, cell int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 230})
			} else {
				img.SetGray(x, y, color.Gray{Y: 25})
			}
		}
	}
	return img
}

// Ramp16 returns a 16-bit raster whose value grows linearly with the pixel
// index, exercising both bytes of the sample.
func Ramp16(width, height int) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray16(x, y, color.Gray16{Y: uint16((y*width + x) % 65536)})
		}
	}
	return img
}
