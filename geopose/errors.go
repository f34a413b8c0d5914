package geopose

import "errors"

var (
	// ErrNilRaster is returned when a nil raster is passed.
	ErrNilRaster = errors.New("raster is nil")

	// ErrDimensionMismatch is returned when the rasters in a stack do not
	// share the same resolution.
	ErrDimensionMismatch = errors.New("raster dimensions do not match")

	// ErrInvalidCropSize is returned when a requested crop is non-positive or
	// larger than the source raster.
	ErrInvalidCropSize = errors.New("invalid crop size")

	// ErrNonInvertibleTransform is returned when an alignment or rotation
	// matrix cannot be inverted. The cycle must be aborted; a partially
	// computed pose is never emitted.
	ErrNonInvertibleTransform = errors.New("transform is not invertible")

	// ErrMissingInput is returned when a required upstream value is absent
	// for the current cycle.
	ErrMissingInput = errors.New("required input missing")
)
