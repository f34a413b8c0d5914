package geopose

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// GateConfig holds the admission thresholds for attempting pose estimation.
type GateConfig struct {
	// MaxPitchDeg is the maximum camera pitch from nadir in degrees beyond
	// which estimation against the reference raster is not worthwhile.
	MaxPitchDeg float64
	// MinAltitudeM is the minimum altitude above ground in meters below
	// which estimation is not attempted.
	MinAltitudeM float64
}

// ShouldEstimate decides whether pose estimation should be attempted this
// cycle. orientation is the camera orientation quaternion in the ENU frame,
// or nil if attitude is unavailable; altitudeAGL is the vehicle altitude
// above ground in meters, NaN if unavailable. The returned reason explains a
// rejection and is empty on acceptance.
//
// Unavailable attitude is treated as pitched too far off nadir, and
// unavailable altitude as too low: both fail safe.
func ShouldEstimate(orientation *quat.Number, altitudeAGL float64, cfg GateConfig) (bool, string) {
	if orientation == nil {
		return false, "camera attitude unavailable, assuming pitch too high"
	}
	if pitch := OffNadirPitch(*orientation); pitch > cfg.MaxPitchDeg {
		return false, fmt.Sprintf("camera pitch %.1f deg off nadir exceeds limit %.1f", pitch, cfg.MaxPitchDeg)
	}
	if math.IsNaN(altitudeAGL) {
		return false, "altitude above ground unavailable"
	}
	if altitudeAGL <= cfg.MinAltitudeM {
		return false, fmt.Sprintf("altitude %.1f m at or below minimum %.1f m", altitudeAGL, cfg.MinAltitudeM)
	}
	return true, ""
}
