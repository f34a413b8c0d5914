// Package gisnav estimates a vehicle's geographic pose by visually matching
// live camera frames against a geo-referenced reference raster, without
// satellite positioning. Per frame it gates on camera attitude and altitude,
// aligns the reference raster to the camera's heading and resolution, hands
// the pair to an external pose solver, geocodes the solver's raw estimate and
// smooths the resulting position stream.
package gisnav

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/logging"
	"gonum.org/v1/gonum/num/quat"

	"github.com/YFS90/gisnav/config"
	"github.com/YFS90/gisnav/geopose"
	"github.com/YFS90/gisnav/smoother"
	"github.com/YFS90/gisnav/solver"
)

// updateBuffer is the capacity of the pose update channel. Updates beyond it
// are dropped rather than stalling the pipeline.
const updateBuffer = 16

// FrameInput is the per-cycle input snapshot: the live camera image together
// with every upstream reading the cycle needs, captured at the same instant.
type FrameInput struct {
	// Query is the live grayscale camera image. Its resolution defines the
	// reference crop size.
	Query *image.Gray

	// Stack is the geo-referenced reference raster to match against.
	Stack geopose.RasterStack

	// CameraGeoPose is the camera's geodetic pose with ENU orientation, or
	// nil when attitude is unavailable this cycle.
	CameraGeoPose *geopose.CameraGeoPose

	// AltitudeAGL is vehicle altitude above ground in meters, NaN when
	// unavailable.
	AltitudeAGL float64

	// GroundElevationAMSL is the ground-track elevation reference in meters
	// above mean sea level, used to produce the AMSL altitude output.
	GroundElevationAMSL float64

	Stamp time.Time
}

// PoseUpdate is one pipeline output: the geocoded pose for a frame and, once
// the smoother is primed, the filtered position. Smoothed components are
// (latitude deg, longitude deg, altitude AMSL m) with matching standard
// deviations.
type PoseUpdate struct {
	Raw      geopose.GeodeticPose
	Smoothed *smoother.Estimate
	Stamp    time.Time
}

// Pipeline runs the per-frame estimation cycle. All frame data is
// cycle-local; the only state surviving across cycles is the smoother's
// filter state and the in-flight solver bookkeeping.
type Pipeline struct {
	logger logging.Logger
	cfg    config.Config
	solver solver.Solver
	smooth *smoother.Smoother

	updates chan PoseUpdate

	// mu guards the in-flight solver request bookkeeping. A newer frame
	// supersedes an older in-flight request: the old context is cancelled
	// and a result arriving for a stale generation is discarded instead of
	// being fed to the reconstructor.
	mu             sync.Mutex
	generation     uint64
	cancelInFlight context.CancelFunc

	// FramesProcessed counts frames whose estimate reached the output.
	FramesProcessed int
}

// NewPipeline creates a Pipeline using the given solver backend.
func NewPipeline(cfg config.Config, sol solver.Solver, logger logging.Logger) *Pipeline {
	return &Pipeline{
		logger: logger,
		cfg:    cfg,
		solver: sol,
		smooth: smoother.New(smoother.Config{
			WindowLength: cfg.Smoother.WindowLength,
			EMIterations: cfg.Smoother.EMIterations,
		}),
		updates: make(chan PoseUpdate, updateBuffer),
	}
}

// Updates returns the channel of pose updates produced by the pipeline.
func (p *Pipeline) Updates() <-chan PoseUpdate {
	return p.updates
}

// ResetSmoother discards the position smoother's session state. Intended for
// integrator policies such as an extended loss of position lock.
func (p *Pipeline) ResetSmoother() {
	p.smooth.Reset()
}

// ProcessFrame runs one estimation cycle. The solver round trip happens on
// its own goroutine so acceptance of newer frames is never stalled; ctx must
// outlive the solver call (use the pipeline's run context, not a per-frame
// deadline). Failures skip the cycle and are logged; every cycle is
// independent and the pipeline keeps accepting frames after any failure.
func (p *Pipeline) ProcessFrame(ctx context.Context, frame FrameInput) {
	if frame.Query == nil || frame.Stack.Gray == nil || frame.Stack.Elevation == nil {
		p.logger.Debug("Query or reference raster missing, skipping cycle")
		return
	}

	var orientation *quat.Number
	if frame.CameraGeoPose != nil {
		orientation = &frame.CameraGeoPose.Orientation
	}
	ok, reason := geopose.ShouldEstimate(orientation, frame.AltitudeAGL, geopose.GateConfig{
		MaxPitchDeg:  p.cfg.Gate.MaxPitchDeg,
		MinAltitudeM: p.cfg.Gate.MinAltitudeM,
	})
	if !ok {
		p.logger.Infof("Skipping pose estimation: %s", reason)
		return
	}

	// Freeze the context snapshot for this cycle so post-processing never
	// mixes a stale and a fresh reading.
	pctx := geopose.PoseEstimationContext{
		Stack:               frame.Stack,
		CameraGeoPose:       *frame.CameraGeoPose,
		GroundElevationAMSL: frame.GroundElevationAMSL,
		Stamp:               frame.Stamp,
	}

	heading := geopose.HeadingFromQuaternion(pctx.CameraGeoPose.Orientation)
	bounds := frame.Query.Bounds()
	aligned, align, err := geopose.RotateAndCrop(frame.Stack, heading, bounds.Dy(), bounds.Dx())
	if err != nil {
		p.logger.Warnf("Reference alignment failed: %v", err)
		return
	}

	// Supersede any in-flight request before dispatching this one.
	p.mu.Lock()
	if p.cancelInFlight != nil {
		p.cancelInFlight()
	}
	p.generation++
	gen := p.generation
	solverCtx, cancel := context.WithCancel(ctx)
	p.cancelInFlight = cancel
	p.mu.Unlock()

	go p.estimate(solverCtx, cancel, gen, frame.Query, aligned, align, pctx)
}

// estimate performs the blocking solver round trip and, if the result is
// still current, post-processes it into a pose update.
func (p *Pipeline) estimate(
	ctx context.Context,
	cancel context.CancelFunc,
	gen uint64,
	query *image.Gray,
	aligned geopose.RasterStack,
	align geopose.AlignmentTransform,
	pctx geopose.PoseEstimationContext,
) {
	defer cancel()

	raw, err := p.solver.EstimatePose(ctx, query, aligned)

	p.mu.Lock()
	stale := gen != p.generation
	p.mu.Unlock()
	if stale {
		p.logger.Debug("Discarding superseded solver result")
		return
	}

	switch {
	case errors.Is(err, solver.ErrNoMatch):
		p.logger.Info("Solver reported no match, skipping cycle")
		return
	case err != nil:
		p.logger.Warnf("Solver call failed: %v", err)
		return
	}

	pose, err := geopose.ReconstructGeoPose(raw, align, pctx)
	if err != nil {
		p.logger.Warnf("Cannot compute geodetic pose: %v", err)
		return
	}

	update := PoseUpdate{Raw: *pose, Stamp: pctx.Stamp}
	if est, primed := p.smooth.Update(r3.Vector{
		X: pose.LatLng.Lat.Degrees(),
		Y: pose.LatLng.Lng.Degrees(),
		Z: pose.AltitudeAMSL,
	}); primed {
		update.Smoothed = &est
	}

	p.mu.Lock()
	p.FramesProcessed++
	p.mu.Unlock()

	select {
	case p.updates <- update:
	default:
		p.logger.Warn("Pose update channel full, dropping update")
	}
}
