// Package smoother turns a stream of noisy position observations into a
// stable filtered estimate with per-axis uncertainty.
//
// It implements a constant-velocity Kalman filter over a 6-dimensional state
// [x, vx, y, vy, z, vz] of which only position is observed. The filter has
// two operating regimes: it first buffers a window of measurements and learns
// its noise model from them in a one-time batch expectation-maximization
// pass, then switches to cheap online update steps. No output is produced
// until the window is full.
package smoother

import (
	"math"
	"sync"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultWindowLength is the number of measurements buffered before the
	// filter primes itself and begins producing estimates.
	DefaultWindowLength = 20

	// DefaultEMIterations is the number of expectation-maximization
	// iterations run over the buffered window when priming.
	DefaultEMIterations = 20
)

// Config holds the smoother parameters.
type Config struct {
	WindowLength int
	EMIterations int
}

// DefaultConfig returns a Config with the default window and EM settings.
func DefaultConfig() Config {
	return Config{
		WindowLength: DefaultWindowLength,
		EMIterations: DefaultEMIterations,
	}
}

// Estimate is a filtered position with per-axis standard deviation.
type Estimate struct {
	Position r3.Vector
	StdDev   r3.Vector
}

type phase int

const (
	phaseEmpty phase = iota
	phaseBuffering
	phasePrimed
)

// Smoother is the position filter. The zero value is not usable; construct
// with New. It is safe for use from multiple goroutines; state transitions
// and updates run under a single mutex.
//
// The transition model assumes a unit time step between consecutive
// measurements: velocity integration is additive, not time-scaled. Unevenly
// spaced input is a known approximation the caller must accept or resample.
type Smoother struct {
	mu  sync.Mutex
	cfg Config

	phase phase
	buf   []r3.Vector

	model *model

	// Filter state, owned exclusively by the smoother and mutated only by
	// Update. Lives for the whole smoothing session.
	mean *mat.VecDense
	cov  *mat.Dense
}

// New creates a Smoother. Non-positive config fields fall back to defaults.
func New(cfg Config) *Smoother {
	if cfg.WindowLength <= 0 {
		cfg.WindowLength = DefaultWindowLength
	}
	if cfg.EMIterations <= 0 {
		cfg.EMIterations = DefaultEMIterations
	}
	return &Smoother{cfg: cfg}
}

// Primed reports whether the smoother has accumulated enough measurements to
// produce estimates.
func (s *Smoother) Primed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == phasePrimed
}

// Reset discards all session state, returning the smoother to its initial
// empty phase. Whether a lost-lock event should reset the session is the
// integrator's policy; the smoother itself never calls this.
func (s *Smoother) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phaseEmpty
	s.buf = nil
	s.model = nil
	s.mean = nil
	s.cov = nil
}

// Update ingests one position measurement. It returns no estimate while the
// buffering window is still filling; once the window is full it learns the
// filter parameters from the buffer, runs a first filtering pass over it, and
// from then on performs a single online update step per call.
func (s *Smoother) Update(measurement r3.Vector) (Estimate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case phaseEmpty:
		// First measurement seeds the initial state: position components
		// from the measurement, velocities at zero.
		s.model = newModel(measurement)
		s.buf = append(s.buf, measurement)
		s.phase = phaseBuffering
		if len(s.buf) < s.cfg.WindowLength {
			return Estimate{}, false
		}
		return s.prime()

	case phaseBuffering:
		s.buf = append(s.buf, measurement)
		if len(s.buf) < s.cfg.WindowLength {
			return Estimate{}, false
		}
		return s.prime()

	default:
		mean, cov, ok := s.model.step(s.mean, s.cov, measurementVec(measurement))
		if !ok {
			// Degenerate innovation covariance; keep the previous state
			// rather than corrupting the session.
			return s.estimate(), true
		}
		s.mean, s.cov = mean, cov
		return s.estimate(), true
	}
}

// prime runs the one-time batch parameter learning over the buffered window
// followed by a forward filtering pass to obtain the first state estimate.
// Happens exactly once per session.
func (s *Smoother) prime() (Estimate, bool) {
	measurements := make([]*mat.VecDense, len(s.buf))
	for i, m := range s.buf {
		measurements[i] = measurementVec(m)
	}
	s.model.fitEM(measurements, s.cfg.EMIterations)
	s.mean, s.cov = s.model.filterPass(measurements)
	s.buf = nil
	s.phase = phasePrimed
	return s.estimate(), true
}

// estimate extracts the position components of the mean and the square roots
// of the corresponding covariance diagonal entries.
func (s *Smoother) estimate() Estimate {
	return Estimate{
		Position: r3.Vector{
			X: s.mean.AtVec(0),
			Y: s.mean.AtVec(2),
			Z: s.mean.AtVec(4),
		},
		StdDev: r3.Vector{
			X: math.Sqrt(s.cov.At(0, 0)),
			Y: math.Sqrt(s.cov.At(2, 2)),
			Z: math.Sqrt(s.cov.At(4, 4)),
		},
	}
}

func measurementVec(m r3.Vector) *mat.VecDense {
	return mat.NewVecDense(3, []float64{m.X, m.Y, m.Z})
}
