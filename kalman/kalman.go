package kalman

import (
	"fmt"

	fusion "github.com/milosgajdos/go-fusion"
	"gonum.org/v1/gonum/mat"
)

// Correction is the result of a Kalman filter measurement update
type Correction struct {
	// X is corrected state
	X *mat.VecDense
	// P is corrected state covariance
	P *mat.SymDense
	// Innov is innovation vector: measurement minus predicted measurement
	Innov *mat.VecDense
	// S is innovation covariance
	S *mat.SymDense
	// K is Kalman gain
	K *mat.Dense
	// NIS is normalized innovation squared
	NIS float64
}

// Gain calculates Kalman gain pxy * inv(s) where pxy is state-output cross covariance
// and s is innovation covariance. It returns the gain together with inv(s).
// It returns fusion.ErrSingular if s is not positive definite.
func Gain(pxy mat.Matrix, s mat.Symmetric) (*mat.Dense, *mat.SymDense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(s); !ok {
		return nil, nil, fmt.Errorf("%w: Cholesky factorization failed", fusion.ErrSingular)
	}

	sInv := mat.NewSymDense(s.SymmetricDim(), nil)
	if err := chol.InverseTo(sInv); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", fusion.ErrSingular, err)
	}

	gain := &mat.Dense{}
	gain.Mul(pxy, sInv)

	return gain, sInv, nil
}

// NIS returns normalized innovation squared inn' * sInv * inn
func NIS(inn mat.Vector, sInv mat.Symmetric) float64 {
	return mat.Inner(inn, sInv, inn)
}
