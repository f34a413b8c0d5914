// Package config loads and validates the navigation core's configuration.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// GateConfig holds the admission thresholds for attempting pose estimation.
type GateConfig struct {
	// MaxPitchDeg is the maximum camera pitch from nadir in degrees for
	// attempting to estimate pose against the reference raster.
	MaxPitchDeg float64 `yaml:"maxPitchDeg" validate:"gt=0,lte=90"`
	// MinAltitudeM is the minimum altitude above ground in meters under
	// which matches against the reference will not be attempted.
	MinAltitudeM float64 `yaml:"minAltitudeM" validate:"gt=0"`
}

// SmootherConfig holds the position smoother parameters.
type SmootherConfig struct {
	WindowLength int `yaml:"windowLength" validate:"gt=1"`
	EMIterations int `yaml:"emIterations" validate:"gt=0"`
}

// SolverConfig holds the external pose solver endpoint settings.
type SolverConfig struct {
	Endpoint  string `yaml:"endpoint" validate:"required,url"`
	TimeoutMS int    `yaml:"timeoutMS" validate:"gte=0"`
}

// Config is the full configuration surface consumed by the core.
type Config struct {
	Gate     GateConfig     `yaml:"gate"`
	Smoother SmootherConfig `yaml:"smoother"`
	Solver   SolverConfig   `yaml:"solver"`
}

// Default returns a Config with the stock thresholds.
func Default() Config {
	return Config{
		Gate: GateConfig{
			MaxPitchDeg:  30,
			MinAltitudeM: 80,
		},
		Smoother: SmootherConfig{
			WindowLength: 20,
			EMIterations: 20,
		},
		Solver: SolverConfig{
			Endpoint:  "http://localhost:8090/predictions/loftr",
			TimeoutMS: 10000,
		},
	}
}

// Load reads a YAML configuration file, overlaying it on the defaults, and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
