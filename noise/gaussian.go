package noise

import (
	"fmt"
	rnd "math/rand/v2"
	"time"

	"github.com/milosgajdos/go-fusion/rand"
	"gonum.org/v1/gonum/mat"
)

// Gaussian is gaussian noise.
// Unlike a multivariate normal distribution, Gaussian noise accepts singular
// covariance matrices: components with zero variance are sampled as their mean.
type Gaussian struct {
	// mean is Gaussian mean
	mean *mat.VecDense
	// cov is Gaussian covariance
	cov *mat.SymDense
	// seed is the source seed; zero means the noise is seeded from the clock
	seed uint64
	// r generates samples
	r *rnd.Rand
}

// NewGaussian creates new Gaussian noise with given mean and covariance seeded from the clock.
// It returns error if mean and covariance dimensions do not match.
func NewGaussian(mean []float64, cov mat.Symmetric) (*Gaussian, error) {
	return NewGaussianWithSeed(mean, cov, 0)
}

// NewGaussianWithSeed creates new Gaussian noise whose samples are reproducible for the given seed.
// Zero seed seeds the noise from the clock.
// It returns error if mean and covariance dimensions do not match.
func NewGaussianWithSeed(mean []float64, cov mat.Symmetric, seed uint64) (*Gaussian, error) {
	if cov == nil || cov.SymmetricDim() == 0 {
		return nil, fmt.Errorf("invalid Gaussian covariance: %v", cov)
	}

	if len(mean) != cov.SymmetricDim() {
		return nil, fmt.Errorf("invalid Gaussian dimensions. Mean: %d, Cov: %d x %d",
			len(mean), cov.SymmetricDim(), cov.SymmetricDim())
	}

	m := mat.NewVecDense(len(mean), nil)
	copy(m.RawVector().Data, mean)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	g := &Gaussian{
		mean: m,
		cov:  c,
		seed: seed,
	}

	if err := g.Reset(); err != nil {
		return nil, err
	}

	return g, nil
}

// Sample generates a sample from Gaussian noise and returns it.
// It panics if the noise covariance can not be factorized.
func (g *Gaussian) Sample() mat.Vector {
	s, err := rand.WithCovN(g.r, g.cov, 1)
	if err != nil {
		panic(err)
	}

	sample := mat.VecDenseCopyOf(s.ColView(0))
	sample.AddVec(sample, g.mean)

	return sample
}

// Cov returns covariance matrix of Gaussian noise.
func (g *Gaussian) Cov() mat.Symmetric {
	cov := mat.NewSymDense(g.cov.SymmetricDim(), nil)
	cov.CopySym(g.cov)

	return cov
}

// Mean returns Gaussian mean.
func (g *Gaussian) Mean() []float64 {
	mean := make([]float64, g.mean.Len())
	copy(mean, g.mean.RawVector().Data)

	return mean
}

// Reset resets Gaussian noise.
// Seeded noise restarts its sample sequence, clock seeded noise is reseeded.
func (g *Gaussian) Reset() error {
	seed := g.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	g.r = rnd.New(rnd.NewPCG(seed, seed>>1|1))

	return nil
}

// String implements the Stringer interface.
func (g *Gaussian) String() string {
	return fmt.Sprintf("Gaussian{\nMean=%v\nCov=%v\n}", g.Mean(), mat.Formatted(g.cov, mat.Prefix("    "), mat.Squeeze()))
}

// NewZeroMeanDiag creates zero mean Gaussian noise with independent components whose standard deviations are std.
// The noise is seeded with seed; zero seed seeds the noise from the clock.
// It returns error if std is empty or contains negative values.
func NewZeroMeanDiag(std []float64, seed uint64) (*Gaussian, error) {
	if len(std) == 0 {
		return nil, fmt.Errorf("invalid noise dimension: %d", len(std))
	}

	cov := mat.NewSymDense(len(std), nil)
	for i, s := range std {
		if s < 0 {
			return nil, fmt.Errorf("invalid standard deviation: %f", s)
		}
		cov.SetSym(i, i, s*s)
	}

	return NewGaussianWithSeed(make([]float64, len(std)), cov, seed)
}
