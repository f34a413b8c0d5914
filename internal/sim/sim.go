// Package sim provides a synthetic flight scenario for exercising the full
// estimation pipeline without hardware: a generated reference raster, a
// simulated nadir-looking descent over it, and an in-process solver that
// answers as if the camera were directly above the raster center.
package sim

import (
	"context"
	"image"
	"math"
	"math/rand"
	"time"

	"github.com/golang/geo/s2"
	"gonum.org/v1/gonum/num/quat"

	gisnav "github.com/YFS90/gisnav"
	"github.com/YFS90/gisnav/geopose"
	"github.com/YFS90/gisnav/internal/testimg"
)

// Raster dimensions and geo-anchoring of the synthetic reference.
const (
	rasterSize   = 512
	querySize    = 512
	originLat    = 60.0
	originLon    = 24.0
	degPerPixel  = 1e-5
	groundAMSL   = 15.0
	startAGL     = 120.0
	descentPerFr = 0.25
)

// Stack returns the synthetic reference raster stack anchored at the origin
// coordinates.
func Stack() geopose.RasterStack {
	stack, err := geopose.NewRasterStack(
		testimg.Checkerboard(rasterSize, rasterSize, 32),
		testimg.Ramp16(rasterSize, rasterSize),
		geopose.GeoTransform{originLon, degPerPixel, 0, originLat, 0, -degPerPixel},
		"EPSG:4326",
	)
	if err != nil {
		panic(err) // fixed-size synthetic rasters cannot mismatch
	}
	return stack
}

// NadirOrientation returns an ENU orientation quaternion for a camera
// pointing straight down.
func NadirOrientation() quat.Number {
	s := math.Sqrt2 / 2
	return quat.Number{Real: s, Jmag: s}
}

// Frames emits n synthetic frame snapshots at the given interval, simulating
// a slow descent above the raster center. The channel closes after the last
// frame.
func Frames(n int, interval time.Duration) <-chan gisnav.FrameInput {
	out := make(chan gisnav.FrameInput)
	stack := Stack()
	center := float64(rasterSize) / 2

	go func() {
		defer close(out)
		for i := 0; i < n; i++ {
			lon, lat := stack.Transform.Apply(center, center)
			agl := startAGL - float64(i)*descentPerFr
			out <- gisnav.FrameInput{
				Query: testimg.Checkerboard(querySize, querySize, 32),
				Stack: stack,
				CameraGeoPose: &geopose.CameraGeoPose{
					LatLng:       s2.LatLngFromDegrees(lat, lon),
					AltitudeAMSL: groundAMSL + agl,
					Orientation:  NadirOrientation(),
				},
				AltitudeAGL:         agl,
				GroundElevationAMSL: groundAMSL,
				Stamp:               time.Now(),
			}
			time.Sleep(interval)
		}
	}()
	return out
}

// NadirSolver is an in-process solver that reports the camera directly above
// the aligned raster's center with identity rotation, plus Gaussian pixel
// noise. It stands in for the external matching service in demos and tests.
type NadirSolver struct {
	// NoisePx is the standard deviation of the position noise in pixels.
	NoisePx float64
	// AGL is the simulated camera height above ground.
	AGL float64

	rng *rand.Rand
}

// NewNadirSolver creates a NadirSolver with a fixed seed for repeatability.
func NewNadirSolver(noisePx, agl float64) *NadirSolver {
	//nolint:gosec
	return &NadirSolver{NoisePx: noisePx, AGL: agl, rng: rand.New(rand.NewSource(42))}
}

// EstimatePose implements solver.Solver.
func (s *NadirSolver) EstimatePose(ctx context.Context, query *image.Gray, reference geopose.RasterStack) (geopose.RawPoseEstimate, error) {
	if err := ctx.Err(); err != nil {
		return geopose.RawPoseEstimate{}, err
	}
	cx := float64(reference.Width()) / 2
	cy := float64(reference.Height()) / 2
	// t = -t_world for identity rotation; solver z axis points down.
	return geopose.NewRawPoseEstimate(
		[]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		[]float64{
			-(cx + s.rng.NormFloat64()*s.NoisePx),
			-(cy + s.rng.NormFloat64()*s.NoisePx),
			s.AGL,
		},
	)
}
