package smoother

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

const (
	stateDim = 6
	obsDim   = 3
)

// model holds the constant-velocity system matrices together with the noise
// covariances and initial state learned from the buffered window.
type model struct {
	// a and c are fixed: per-axis unit velocity integration, and selection
	// of the position components.
	a *mat.Dense
	c *mat.Dense

	// q, r, mu0 and sigma0 are (re-)estimated by fitEM.
	q      *mat.Dense
	r      *mat.Dense
	mu0    *mat.VecDense
	sigma0 *mat.Dense
}

// newModel builds the model with identity noise covariances and the initial
// state seeded from the first measurement, velocities at zero.
func newModel(seed r3.Vector) *model {
	a := mat.NewDense(stateDim, stateDim, []float64{
		1, 1, 0, 0, 0, 0, // x(t) = x(t-1) + vx(t-1)
		0, 1, 0, 0, 0, 0, // vx(t) = vx(t-1)
		0, 0, 1, 1, 0, 0,
		0, 0, 0, 1, 0, 0,
		0, 0, 0, 0, 1, 1,
		0, 0, 0, 0, 0, 1,
	})
	c := mat.NewDense(obsDim, stateDim, []float64{
		1, 0, 0, 0, 0, 0, // x
		0, 0, 1, 0, 0, 0, // y
		0, 0, 0, 0, 1, 0, // z
	})
	return &model{
		a:      a,
		c:      c,
		q:      eye(stateDim),
		r:      eye(obsDim),
		mu0:    mat.NewVecDense(stateDim, []float64{seed.X, 0, seed.Y, 0, seed.Z, 0}),
		sigma0: eye(stateDim),
	}
}

// forwardResult holds per-step quantities from a filtering pass that the
// smoothing and M steps need.
type forwardResult struct {
	filtMean []*mat.VecDense
	filtCov  []*mat.Dense
}

// forward runs a Kalman filtering pass over the measurements. It reports
// false if an innovation covariance could not be inverted.
func (m *model) forward(measurements []*mat.VecDense) (*forwardResult, bool) {
	n := len(measurements)
	res := &forwardResult{
		filtMean: make([]*mat.VecDense, n),
		filtCov:  make([]*mat.Dense, n),
	}

	predMean := mat.NewVecDense(stateDim, nil)
	predCov := mat.NewDense(stateDim, stateDim, nil)
	for t := 0; t < n; t++ {
		if t == 0 {
			predMean.CopyVec(m.mu0)
			predCov.Copy(m.sigma0)
		} else {
			// x_t|t-1 = A x_t-1, P_t|t-1 = A P_t-1 A' + Q
			predMean.MulVec(m.a, res.filtMean[t-1])
			predCov = propagateCov(m.a, res.filtCov[t-1], m.q)
		}

		mean, cov, ok := m.correct(predMean, predCov, measurements[t])
		if !ok {
			return nil, false
		}
		res.filtMean[t] = mean
		res.filtCov[t] = cov
	}
	return res, true
}

// correct performs the measurement update step on a predicted mean and
// covariance. It reports false if the innovation covariance is singular.
func (m *model) correct(predMean *mat.VecDense, predCov *mat.Dense, y *mat.VecDense) (*mat.VecDense, *mat.Dense, bool) {
	// P*C'
	pct := mat.NewDense(stateDim, obsDim, nil)
	pct.Mul(predCov, m.c.T())

	// S = C*P*C' + R
	s := mat.NewDense(obsDim, obsDim, nil)
	s.Mul(m.c, pct)
	s.Add(s, m.r)

	sInv := mat.NewDense(obsDim, obsDim, nil)
	if err := sInv.Inverse(s); err != nil {
		return nil, nil, false
	}

	// K = P*C'*S^-1
	gain := mat.NewDense(stateDim, obsDim, nil)
	gain.Mul(pct, sInv)

	// innovation y - C*x
	inn := mat.NewVecDense(obsDim, nil)
	inn.MulVec(m.c, predMean)
	inn.SubVec(y, inn)

	mean := mat.NewVecDense(stateDim, nil)
	mean.MulVec(gain, inn)
	mean.AddVec(predMean, mean)

	// P = (I - K*C) * P_pred
	kc := mat.NewDense(stateDim, stateDim, nil)
	kc.Mul(gain, m.c)
	ikc := eye(stateDim)
	ikc.Sub(ikc, kc)
	cov := mat.NewDense(stateDim, stateDim, nil)
	cov.Mul(ikc, predCov)
	symmetrize(cov)

	return mean, cov, true
}

// step performs one online filter update from the previous mean and
// covariance, without touching any buffered history.
func (m *model) step(mean *mat.VecDense, cov *mat.Dense, y *mat.VecDense) (*mat.VecDense, *mat.Dense, bool) {
	predMean := mat.NewVecDense(stateDim, nil)
	predMean.MulVec(m.a, mean)
	predCov := propagateCov(m.a, cov, m.q)
	return m.correct(predMean, predCov, y)
}

// filterPass runs a forward filtering pass and returns the final mean and
// covariance. Used once at priming to obtain the first estimate after
// parameter learning.
func (m *model) filterPass(measurements []*mat.VecDense) (*mat.VecDense, *mat.Dense) {
	res, ok := m.forward(measurements)
	if !ok {
		// Parameter learning keeps the covariances positive definite in
		// practice; fall back to the seed state if it did not.
		return dupVec(m.mu0), dense(m.sigma0)
	}
	n := len(measurements)
	return res.filtMean[n-1], res.filtCov[n-1]
}

// fitEM learns the process noise, observation noise and initial state from
// the buffered measurements by iterative expectation-maximization with the
// transition and observation matrices held fixed.
func (m *model) fitEM(measurements []*mat.VecDense, iterations int) {
	n := len(measurements)
	if n < 2 {
		return
	}

	for iter := 0; iter < iterations; iter++ {
		res, ok := m.forward(measurements)
		if !ok {
			return
		}
		smoothMean, smoothCov, lagOne, ok := m.backward(res)
		if !ok {
			return
		}
		m.maximize(measurements, smoothMean, smoothCov, lagOne)
	}
}

// backward runs Rauch-Tung-Striebel smoothing over a forward pass, also
// producing the lag-one smoothed covariances the M step needs.
func (m *model) backward(res *forwardResult) ([]*mat.VecDense, []*mat.Dense, []*mat.Dense, bool) {
	n := len(res.filtMean)
	smoothMean := make([]*mat.VecDense, n)
	smoothCov := make([]*mat.Dense, n)
	gains := make([]*mat.Dense, n)

	smoothMean[n-1] = dupVec(res.filtMean[n-1])
	smoothCov[n-1] = dense(res.filtCov[n-1])

	for t := n - 2; t >= 0; t-- {
		// predicted covariance for t+1 from the filtered state at t
		predCov := propagateCov(m.a, res.filtCov[t], m.q)
		predInv := mat.NewDense(stateDim, stateDim, nil)
		if err := predInv.Inverse(predCov); err != nil {
			return nil, nil, nil, false
		}

		// J = P_t A' P_t+1|t^-1
		j := mat.NewDense(stateDim, stateDim, nil)
		j.Mul(res.filtCov[t], m.a.T())
		j.Mul(dense(j), predInv)
		gains[t] = j

		// x_t|N = x_t + J (x_t+1|N - A x_t)
		diff := mat.NewVecDense(stateDim, nil)
		diff.MulVec(m.a, res.filtMean[t])
		diff.SubVec(smoothMean[t+1], diff)
		sm := mat.NewVecDense(stateDim, nil)
		sm.MulVec(j, diff)
		sm.AddVec(res.filtMean[t], sm)
		smoothMean[t] = sm

		// P_t|N = P_t + J (P_t+1|N - P_t+1|t) J'
		covDiff := mat.NewDense(stateDim, stateDim, nil)
		covDiff.Sub(smoothCov[t+1], predCov)
		sc := mat.NewDense(stateDim, stateDim, nil)
		sc.Mul(j, covDiff)
		sc.Mul(dense(sc), j.T())
		sc.Add(res.filtCov[t], sc)
		symmetrize(sc)
		smoothCov[t] = sc
	}

	// lag-one covariances: M_t = P_t|N J_t-1'
	lagOne := make([]*mat.Dense, n)
	for t := 1; t < n; t++ {
		lo := mat.NewDense(stateDim, stateDim, nil)
		lo.Mul(smoothCov[t], gains[t-1].T())
		lagOne[t] = lo
	}
	return smoothMean, smoothCov, lagOne, true
}

// maximize re-estimates q, r, mu0 and sigma0 from the smoothed state
// sequence.
func (m *model) maximize(measurements []*mat.VecDense, smoothMean []*mat.VecDense, smoothCov, lagOne []*mat.Dense) {
	n := len(measurements)

	// initial state
	m.mu0 = dupVec(smoothMean[0])
	m.sigma0 = dense(smoothCov[0])

	// process noise:
	// Q = 1/(n-1) sum_t [ E_t+1 - B_t+1 A' - A B_t+1' + A E_t A' ]
	// with E_t = P_t|N + x_t x_t' and B_t = M_t + x_t x_t-1'.
	q := mat.NewDense(stateDim, stateDim, nil)
	for t := 0; t < n-1; t++ {
		eNext := addOuter(smoothCov[t+1], smoothMean[t+1], smoothMean[t+1])
		eCur := addOuter(smoothCov[t], smoothMean[t], smoothMean[t])
		b := addOuter(lagOne[t+1], smoothMean[t+1], smoothMean[t])

		term := mat.NewDense(stateDim, stateDim, nil)
		term.Mul(b, m.a.T())
		eNext.Sub(eNext, term)

		term.Mul(m.a, b.T())
		eNext.Sub(eNext, term)

		aea := propagateCov(m.a, eCur, nil)
		eNext.Add(eNext, aea)

		q.Add(q, eNext)
	}
	q.Scale(1/float64(n-1), q)
	symmetrize(q)
	m.q = q

	// observation noise:
	// R = 1/n sum_t [ (y_t - C x_t)(y_t - C x_t)' + C P_t|N C' ]
	r := mat.NewDense(obsDim, obsDim, nil)
	for t := 0; t < n; t++ {
		resid := mat.NewVecDense(obsDim, nil)
		resid.MulVec(m.c, smoothMean[t])
		resid.SubVec(measurements[t], resid)

		outer := mat.NewDense(obsDim, obsDim, nil)
		outer.Outer(1, resid, resid)

		cpc := propagateCov(m.c, smoothCov[t], nil)
		outer.Add(outer, cpc)

		r.Add(r, outer)
	}
	r.Scale(1/float64(n), r)
	symmetrize(r)
	m.r = r
}

// propagateCov computes A*P*A' (+ Q when q is non-nil).
func propagateCov(a, p, q *mat.Dense) *mat.Dense {
	ar, _ := a.Dims()
	_, pc := p.Dims()
	ap := mat.NewDense(ar, pc, nil)
	ap.Mul(a, p)
	out := mat.NewDense(ar, ar, nil)
	out.Mul(ap, a.T())
	if q != nil {
		out.Add(out, q)
	}
	return out
}

func eye(n int) *mat.Dense {
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		out.Set(i, i, 1)
	}
	return out
}

func dense(m *mat.Dense) *mat.Dense {
	out := mat.NewDense(1, 1, nil)
	out.CloneFrom(m)
	return out
}

func dupVec(v *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(v.Len(), nil)
	out.CopyVec(v)
	return out
}

// addOuter returns m + u*v'.
func addOuter(m *mat.Dense, u, v *mat.VecDense) *mat.Dense {
	out := dense(m)
	outer := mat.NewDense(u.Len(), v.Len(), nil)
	outer.Outer(1, u, v)
	out.Add(out, outer)
	return out
}

// symmetrize averages a matrix with its transpose in place, countering
// floating-point drift in covariance updates.
func symmetrize(m *mat.Dense) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := i + 1; j < c; j++ {
			v := (m.At(i, j) + m.At(j, i)) / 2
			m.Set(i, j, v)
			m.Set(j, i, v)
		}
	}
}
