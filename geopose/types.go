package geopose

import (
	"fmt"
	"image"
	"time"

	"github.com/golang/geo/s2"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// GeoTransform is a GDAL-convention affine mapping from raster pixel
// coordinates to geodetic coordinates:
//
//	lon = g[0] + col*g[1] + row*g[2]
//	lat = g[3] + col*g[4] + row*g[5]
//
// It is owned by the raster's provider and never mutated here.
type GeoTransform [6]float64

// Apply maps a (possibly fractional) pixel coordinate to (lon, lat) degrees.
func (g GeoTransform) Apply(col, row float64) (float64, float64) {
	lon := g[0] + col*g[1] + row*g[2]
	lat := g[3] + col*g[4] + row*g[5]
	return lon, lat
}

// RasterStack is a geo-referenced reference raster: an 8-bit grayscale
// reference image and a 16-bit elevation raster at matching resolution,
// plus the pixel-to-geodetic geotransform and projection metadata.
type RasterStack struct {
	Gray       *image.Gray
	Elevation  *image.Gray16
	Transform  GeoTransform
	Projection string
}

// NewRasterStack validates that the grayscale and elevation rasters share the
// same dimensions and returns the assembled stack.
func NewRasterStack(gray *image.Gray, elevation *image.Gray16, transform GeoTransform, projection string) (RasterStack, error) {
	if gray == nil || elevation == nil {
		return RasterStack{}, ErrNilRaster
	}
	if gray.Bounds().Dx() != elevation.Bounds().Dx() || gray.Bounds().Dy() != elevation.Bounds().Dy() {
		return RasterStack{}, fmt.Errorf("%w: gray %v vs elevation %v",
			ErrDimensionMismatch, gray.Bounds().Size(), elevation.Bounds().Size())
	}
	return RasterStack{
		Gray:       gray,
		Elevation:  elevation,
		Transform:  transform,
		Projection: projection,
	}, nil
}

// Width returns the raster width in pixels.
func (s RasterStack) Width() int { return s.Gray.Bounds().Dx() }

// Height returns the raster height in pixels.
func (s RasterStack) Height() int { return s.Gray.Bounds().Dy() }

// AlignmentTransform is the 4x4 homogeneous transform from the original
// raster pixel frame to the rotated-and-cropped (aligned) pixel frame:
//
//	[ R11  R12  0   Tx ]
//	[ R21  R22  0   Ty ]
//	[ 0    0    1   0  ]
//	[ 0    0    0   1  ]
//
// The inverse maps pose estimates expressed in the aligned frame back to the
// original raster frame, from where they can be geocoded.
type AlignmentTransform struct {
	m *mat.Dense
}

// NewAlignmentTransform wraps a 4x4 matrix. It returns an error for any other
// dimension.
func NewAlignmentTransform(m *mat.Dense) (AlignmentTransform, error) {
	r, c := m.Dims()
	if r != 4 || c != 4 {
		return AlignmentTransform{}, fmt.Errorf("alignment transform must be 4x4, got %dx%d", r, c)
	}
	return AlignmentTransform{m: m}, nil
}

// Matrix returns a copy of the underlying 4x4 matrix.
func (a AlignmentTransform) Matrix() *mat.Dense {
	out := mat.NewDense(4, 4, nil)
	out.Copy(a.m)
	return out
}

// Inverse returns the inverted transform. Inversion failure indicates an
// unrecoverable numerical edge case and is reported, never silently ignored.
func (a AlignmentTransform) Inverse() (AlignmentTransform, error) {
	inv := mat.NewDense(4, 4, nil)
	if err := inv.Inverse(a.m); err != nil {
		return AlignmentTransform{}, fmt.Errorf("%w: %v", ErrNonInvertibleTransform, err)
	}
	return AlignmentTransform{m: inv}, nil
}

// RotationBlock returns the top-left 3x3 block (planar rotation padded with
// an identity z axis).
func (a AlignmentTransform) RotationBlock() *mat.Dense {
	out := mat.NewDense(3, 3, nil)
	out.Copy(a.m.Slice(0, 3, 0, 3))
	return out
}

// ApplyHomogeneous maps a 3-vector through the transform in homogeneous
// coordinates and returns the transformed 3-vector.
func (a AlignmentTransform) ApplyHomogeneous(v *mat.VecDense) *mat.VecDense {
	h := mat.NewVecDense(4, []float64{v.AtVec(0), v.AtVec(1), v.AtVec(2), 1})
	out := mat.NewVecDense(4, nil)
	out.MulVec(a.m, h)
	return mat.NewVecDense(3, []float64{out.AtVec(0), out.AtVec(1), out.AtVec(2)})
}

// CameraGeoPose is the camera's geodetic position and orientation at a single
// instant. Orientation is a quaternion in the ENU frame.
type CameraGeoPose struct {
	LatLng       s2.LatLng
	AltitudeAMSL float64
	Orientation  quat.Number
}

// PoseEstimationContext is an immutable snapshot of all inputs needed to
// post-process a raw pose estimate into a geodetic pose. It is taken once per
// cycle so that downstream computation never mixes a stale and a fresh
// reading.
type PoseEstimationContext struct {
	Stack               RasterStack
	CameraGeoPose       CameraGeoPose
	GroundElevationAMSL float64
	Stamp               time.Time
}

// RawPoseEstimate is the external solver's output: a rotation matrix and
// translation vector expressed in the aligned-image local frame.
type RawPoseEstimate struct {
	R *mat.Dense
	T *mat.VecDense
}

// NewRawPoseEstimate builds a RawPoseEstimate from a row-major 9-element
// rotation and a 3-element translation.
func NewRawPoseEstimate(rotation []float64, translation []float64) (RawPoseEstimate, error) {
	if len(rotation) != 9 {
		return RawPoseEstimate{}, fmt.Errorf("rotation must have 9 elements, got %d", len(rotation))
	}
	if len(translation) != 3 {
		return RawPoseEstimate{}, fmt.Errorf("translation must have 3 elements, got %d", len(translation))
	}
	r := mat.NewDense(3, 3, nil)
	copy(r.RawMatrix().Data, rotation)
	t := mat.NewVecDense(3, nil)
	copy(t.RawVector().Data, translation)
	return RawPoseEstimate{R: r, T: t}, nil
}

// GeodeticPose is a geocoded vehicle pose: WGS 84 position, altitude above
// mean sea level and above ground, and an orientation quaternion in the
// compass-relative (NED) frame. ProjString identifies the UTM zone to use for
// a local planar projection downstream.
type GeodeticPose struct {
	LatLng       s2.LatLng
	AltitudeAMSL float64
	AltitudeAGL  float64
	Orientation  quat.Number
	ProjString   string
}
