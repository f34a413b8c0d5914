package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.viam.com/rdk/logging"

	gisnav "github.com/YFS90/gisnav"
	"github.com/YFS90/gisnav/config"
	"github.com/YFS90/gisnav/internal/sim"
)

// Runs the full estimation pipeline against a synthetic descent scenario
// with an in-process solver, printing raw and smoothed estimates. Useful for
// exercising the pipeline end to end without a solver service or vehicle.
func main() {
	frames := flag.Int("frames", 120, "number of synthetic frames to process")
	interval := flag.Duration("interval", 50*time.Millisecond, "interval between synthetic frames")
	flag.Parse()

	logger := logging.NewDebugLogger("gisnav")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.Default()
	pipeline := gisnav.NewPipeline(cfg, sim.NewNadirSolver(2.0, 100), logger)

	go func() {
		for update := range pipeline.Updates() {
			if update.Smoothed == nil {
				logger.Infof("raw %.6f, %.6f amsl=%.1f (smoother buffering)",
					update.Raw.LatLng.Lat.Degrees(), update.Raw.LatLng.Lng.Degrees(), update.Raw.AltitudeAMSL)
				continue
			}
			logger.Infof("raw %.6f, %.6f | smoothed %.6f, %.6f sd=(%.2g, %.2g, %.2g)",
				update.Raw.LatLng.Lat.Degrees(), update.Raw.LatLng.Lng.Degrees(),
				update.Smoothed.Position.X, update.Smoothed.Position.Y,
				update.Smoothed.StdDev.X, update.Smoothed.StdDev.Y, update.Smoothed.StdDev.Z)
		}
	}()

	if err := pipeline.Run(ctx, sim.Frames(*frames, *interval)); err != nil {
		logger.Fatal(err)
	}

	// Let in-flight solver results drain before reporting.
	time.Sleep(200 * time.Millisecond)
	logger.Infof("Processed %d frames", pipeline.FramesProcessed)
}
