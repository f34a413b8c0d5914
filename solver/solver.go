// Package solver defines the boundary to the external visual pose-solving
// service: a synchronous request/response call that takes a paired query and
// reference raster and returns a rotation and translation estimate in the
// reference raster's frame, or an explicit no-match signal.
package solver

import (
	"context"
	"errors"
	"image"

	"github.com/YFS90/gisnav/geopose"
)

var (
	// ErrNoMatch is returned when the solver ran successfully but could not
	// match the query against the reference. Distinct from transport
	// failures; both skip the cycle upstream.
	ErrNoMatch = errors.New("solver found no match")
)

// Solver estimates the camera pose of a query image against an aligned
// reference raster stack. Implementations must be safe for concurrent use;
// the pipeline may issue a new request while an older one is in flight.
type Solver interface {
	EstimatePose(ctx context.Context, query *image.Gray, reference geopose.RasterStack) (geopose.RawPoseEstimate, error)
}
