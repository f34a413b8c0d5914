package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.viam.com/rdk/logging"

	gisnav "github.com/YFS90/gisnav"
	"github.com/YFS90/gisnav/config"
	"github.com/YFS90/gisnav/internal/sim"
	"github.com/YFS90/gisnav/solver"
)

// Runs the estimation pipeline against a live pose solver service, feeding
// it the synthetic descent scenario. The solver endpoint and thresholds come
// from the YAML config file.
func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	frames := flag.Int("frames", 60, "number of synthetic frames to send")
	interval := flag.Duration("interval", 200*time.Millisecond, "interval between frames")
	flag.Parse()

	logger := logging.NewLogger("gisnav-cli")

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Fatal(err)
		}
		cfg = loaded
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sol := solver.NewHTTPSolver(cfg.Solver.Endpoint, time.Duration(cfg.Solver.TimeoutMS)*time.Millisecond)
	pipeline := gisnav.NewPipeline(cfg, sol, logger)

	logger.Infof("Using solver endpoint %s", cfg.Solver.Endpoint)

	go func() {
		for update := range pipeline.Updates() {
			smoothed := "buffering"
			if update.Smoothed != nil {
				smoothed = fmt.Sprintf("%.6f, %.6f", update.Smoothed.Position.X, update.Smoothed.Position.Y)
			}
			logger.Infof("raw %.6f, %.6f amsl=%.1f agl=%.1f %s | smoothed %s",
				update.Raw.LatLng.Lat.Degrees(), update.Raw.LatLng.Lng.Degrees(),
				update.Raw.AltitudeAMSL, update.Raw.AltitudeAGL, update.Raw.ProjString, smoothed)
		}
	}()

	if err := pipeline.Run(ctx, sim.Frames(*frames, *interval)); err != nil {
		logger.Fatal(err)
	}
	logger.Infof("Processed %d frames", pipeline.FramesProcessed)
}
