package ukf

import (
	"fmt"
	"math"

	fusion "github.com/milosgajdos/go-fusion"
	"github.com/milosgajdos/go-fusion/kalman"
	"github.com/milosgajdos/go-fusion/matrix"
	"gonum.org/v1/gonum/mat"
)

// SigmaPoints stores sigma points and covariance
type SigmaPoints struct {
	// X stores augmented sigma point vectors in columns
	X *mat.Dense
	// Cov contains augmented covariance the sigma points were generated from
	Cov *mat.SymDense
}

// Prediction stores propagated sigma points and their statistics
type Prediction struct {
	// X stores predicted sigma point states in columns
	X *mat.Dense
	// Mean is predicted state mean
	Mean *mat.VecDense
	// Cov is predicted state covariance
	Cov *mat.SymDense
}

// Config contains UKF [unitless] configuration parameters
type Config struct {
	// Alpha is alpha parameter (0,1]
	Alpha float64
	// Beta is beta parameter (2 is optimal choice for Gaussian)
	Beta float64
	// Kappa is kappa parameter
	Kappa float64
}

// DefaultConfig returns configuration which yields lambda = 3 - n
// for augmented state dimension n
func DefaultConfig(n int) *Config {
	return &Config{
		Alpha: 1.0,
		Beta:  0.0,
		Kappa: 3.0 - float64(n),
	}
}

// UKF is Unscented (aka Sigma Point) Kalman Filter with state augmented by process noise
type UKF struct {
	// model is UKF process model
	model fusion.Propagator
	// n is augmented state dimension
	n int
	// gamma is the square root sigma point covariance scaling factor
	gamma float64
	// Wm0 is mean sigma point weight
	Wm0 float64
	// Wc0 is mean sigma point covariance weight
	Wc0 float64
	// W is weight for regular sigma points and covariances
	W float64
	// wm stores mean weights
	wm *mat.VecDense
	// wc stores covariance weights
	wc *mat.VecDense
}

// New creates new UKF for process model m and returns it.
// If c is nil DefaultConfig is used.
// It returns error if the model dimensions or configuration are invalid.
func New(m fusion.Propagator, c *Config) (*UKF, error) {
	nx, nq := m.Dims()
	if nx <= 0 || nq < 0 {
		return nil, fmt.Errorf("invalid model dimensions: [%d x %d]", nx, nq)
	}

	if q := m.StateNoise(); q == nil || q.Cov().SymmetricDim() != nq {
		return nil, fmt.Errorf("invalid state noise for dimension: %d", nq)
	}

	n := nx + nq
	if c == nil {
		c = DefaultConfig(n)
	}

	if c.Alpha <= 0 || c.Alpha > 1 || c.Beta < 0 {
		return nil, fmt.Errorf("invalid config supplied: %v", c)
	}

	// lambda is another unitless UKF parameter - calculated using the config ones
	lambda := c.Alpha*c.Alpha*(float64(n)+c.Kappa) - float64(n)
	if float64(n)+lambda <= 0 {
		return nil, fmt.Errorf("invalid config supplied: n+lambda=%f", float64(n)+lambda)
	}

	gamma := math.Sqrt(float64(n) + lambda)
	Wm0 := lambda / (float64(n) + lambda)
	Wc0 := Wm0 + (1 - c.Alpha*c.Alpha + c.Beta)
	W := 1 / (2 * (float64(n) + lambda))

	cols := 2*n + 1
	wm := mat.NewVecDense(cols, nil)
	wc := mat.NewVecDense(cols, nil)
	wm.SetVec(0, Wm0)
	wc.SetVec(0, Wc0)
	for i := 1; i < cols; i++ {
		wm.SetVec(i, W)
		wc.SetVec(i, W)
	}

	return &UKF{
		model: m,
		n:     n,
		gamma: gamma,
		Wm0:   Wm0,
		Wc0:   Wc0,
		W:     W,
		wm:    wm,
		wc:    wc,
	}, nil
}

// Weights returns mean and covariance sigma point weights
func (k *UKF) Weights() (wm, wc *mat.VecDense) {
	wm, wc = &mat.VecDense{}, &mat.VecDense{}
	wm.CloneFromVec(k.wm)
	wc.CloneFromVec(k.wc)

	return wm, wc
}

// GenSigmaPoints generates 2n+1 sigma points around state x with covariance p augmented
// with process noise and returns them.
// It returns fusion.ErrNotPositiveDefinite if p can not be factorized.
func (k *UKF) GenSigmaPoints(x mat.Vector, p mat.Symmetric) (*SigmaPoints, error) {
	nx, nq := k.model.Dims()
	if x.Len() != nx || p.SymmetricDim() != nx {
		return nil, fmt.Errorf("invalid state dimensions: x=%d, p=%d", x.Len(), p.SymmetricDim())
	}

	q := k.model.StateNoise()

	// augmented mean
	xa := mat.NewVecDense(k.n, nil)
	for i := 0; i < nx; i++ {
		xa.SetVec(i, x.AtVec(i))
	}
	for i, v := range q.Mean() {
		xa.SetVec(nx+i, v)
	}

	// augmented covariance: block diagonal [P 0; 0 Q]
	cov := mat.NewSymDense(k.n, nil)
	cov.SliceSym(0, nx).(*mat.SymDense).CopySym(p)
	if nq > 0 {
		cov.SliceSym(nx, k.n).(*mat.SymDense).CopySym(q.Cov())
	}

	sqrt := mat.NewTriDense(k.n, mat.Lower, nil)
	if err := cholBlock(sqrt, 0, p); err != nil {
		return nil, err
	}
	if nq > 0 {
		if err := noiseSqrtBlock(sqrt, nx, q.Cov()); err != nil {
			return nil, fmt.Errorf("invalid process noise: %w", err)
		}
	}

	cols := 2*k.n + 1
	sp := mat.NewDense(k.n, cols, nil)
	for r := 0; r < k.n; r++ {
		mean := xa.AtVec(r)
		sp.Set(r, 0, mean)
		for c := 0; c < k.n; c++ {
			d := k.gamma * sqrt.At(r, c)
			// positive sigma points
			sp.Set(r, 1+c, mean+d)
			// negative sigma points
			sp.Set(r, 1+k.n+c, mean-d)
		}
	}

	return &SigmaPoints{
		X:   sp,
		Cov: cov,
	}, nil
}

// noiseSqrtBlock writes lower triangular square root of noise covariance a into dst
// starting at diagonal offset off. Diagonal matrices are square rooted element-wise
// so that noise components with zero variance are allowed.
func noiseSqrtBlock(dst *mat.TriDense, off int, a mat.Symmetric) error {
	if !isDiag(a) {
		return cholBlock(dst, off, a)
	}

	for i := 0; i < a.SymmetricDim(); i++ {
		v := a.At(i, i)
		if v < 0 {
			return fmt.Errorf("%w: negative variance %f", fusion.ErrNotPositiveDefinite, v)
		}
		dst.SetTri(off+i, off+i, math.Sqrt(v))
	}

	return nil
}

// cholBlock writes Cholesky factor of a into dst starting at diagonal offset off.
// It returns fusion.ErrNotPositiveDefinite if a is not positive definite.
func cholBlock(dst *mat.TriDense, off int, a mat.Symmetric) error {
	n := a.SymmetricDim()

	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return fmt.Errorf("%w: Cholesky factorization failed", fusion.ErrNotPositiveDefinite)
	}

	l := mat.NewTriDense(n, mat.Lower, nil)
	chol.LTo(l)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			dst.SetTri(off+i, off+j, l.At(i, j))
		}
	}

	return nil
}

func isDiag(a mat.Symmetric) bool {
	n := a.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if a.At(i, j) != 0 {
				return false
			}
		}
	}

	return true
}

// Predict propagates state x with covariance p over dt seconds and returns the prediction.
// It returns error if it either fails to generate or propagate sigma points.
func (k *UKF) Predict(x mat.Vector, p mat.Symmetric, dt float64) (*Prediction, error) {
	sp, err := k.GenSigmaPoints(x, p)
	if err != nil {
		return nil, fmt.Errorf("failed to generate sigma points: %w", err)
	}

	nx, _ := k.model.Dims()
	_, cols := sp.X.Dims()

	xPred := mat.NewDense(nx, cols, nil)
	for c := 0; c < cols; c++ {
		sigmaNext, err := k.model.Propagate(sp.X.ColView(c), dt)
		if err != nil {
			return nil, fmt.Errorf("failed to propagate sigma point: %w", err)
		}
		setCol(xPred, c, sigmaNext)
	}

	mean := matrix.WeightedMean(xPred, k.wm)
	k.model.Normalize(mean)

	cov := matrix.WeightedCov(xPred, mean, k.wc, k.model.Normalize)

	return &Prediction{
		X:    xPred,
		Mean: mean,
		Cov:  matrix.Symmetrize(cov),
	}, nil
}

// Update corrects prediction pred using the measurement z observed by o and returns the correction.
// It returns error if z does not match o, sigma points fail to be observed or the
// innovation covariance is singular.
func (k *UKF) Update(pred *Prediction, o fusion.Observer, z mat.Vector) (*kalman.Correction, error) {
	ny := o.Dim()
	if z.Len() != ny {
		return nil, fmt.Errorf("%w: expected %d values, got %d", fusion.ErrInvalidMeasurement, ny, z.Len())
	}

	r := o.OutputNoise().Cov()
	if r.SymmetricDim() != ny {
		return nil, fmt.Errorf("invalid output noise dimension: %d", r.SymmetricDim())
	}

	_, cols := pred.X.Dims()
	if cols != k.wm.Len() {
		return nil, fmt.Errorf("invalid number of sigma points: %d", cols)
	}

	// observe predicted sigma points
	zPred := mat.NewDense(ny, cols, nil)
	for c := 0; c < cols; c++ {
		y, err := o.Observe(pred.X.ColView(c))
		if err != nil {
			return nil, fmt.Errorf("failed to observe sigma point output: %w", err)
		}
		setCol(zPred, c, y)
	}

	zMean := matrix.WeightedMean(zPred, k.wm)
	o.Normalize(zMean)

	pyy := matrix.WeightedCov(zPred, zMean, k.wc, o.Normalize)
	pyy.AddSym(pyy, r)

	pxy := matrix.WeightedCrossCov(pred.X, pred.Mean, k.model.Normalize, zPred, zMean, o.Normalize, k.wc)

	gain, sInv, err := kalman.Gain(pxy, pyy)
	if err != nil {
		return nil, err
	}

	// innovation vector
	inn := mat.NewVecDense(ny, nil)
	inn.SubVec(z, zMean)
	o.Normalize(inn)

	// update state x
	x := mat.NewVecDense(pred.Mean.Len(), nil)
	x.MulVec(gain, inn)
	x.AddVec(pred.Mean, x)
	k.model.Normalize(x)

	// P - K*S*K'
	ks := &mat.Dense{}
	ks.Mul(gain, pyy)
	ksk := &mat.Dense{}
	ksk.Mul(ks, gain.T())
	ksk.Sub(pred.Cov, ksk)

	return &kalman.Correction{
		X:     x,
		P:     matrix.Symmetrize(ksk),
		Innov: inn,
		S:     pyy,
		K:     gain,
		NIS:   kalman.NIS(inn, sInv),
	}, nil
}

// Model returns UKF process model
func (k *UKF) Model() fusion.Propagator {
	return k.model
}

func setCol(dst *mat.Dense, c int, v mat.Vector) {
	for r := 0; r < v.Len(); r++ {
		dst.Set(r, c, v.AtVec(r))
	}
}
