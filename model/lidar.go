package model

import (
	"fmt"

	fusion "github.com/milosgajdos/go-fusion"
	"github.com/milosgajdos/go-fusion/noise"
	"gonum.org/v1/gonum/mat"
)

// Lidar is a linear position sensor observing [px, py] of CTRV state
type Lidar struct {
	// h is observation matrix
	h *mat.Dense
	// r is measurement noise
	r fusion.Noise
}

// NewLidar creates new lidar sensor model with measurement noise r and returns it.
// It returns error if r is nil or its dimension is not 2.
func NewLidar(r fusion.Noise) (*Lidar, error) {
	if r == nil {
		return nil, fmt.Errorf("invalid lidar noise: %v", r)
	}

	if d := r.Cov().SymmetricDim(); d != fusion.Lidar.Dim() {
		return nil, fmt.Errorf("invalid lidar noise dimension: %d", d)
	}

	h := mat.NewDense(fusion.Lidar.Dim(), StateDim, nil)
	h.Set(0, Px, 1.0)
	h.Set(1, Py, 1.0)

	return &Lidar{
		h: h,
		r: r,
	}, nil
}

// NewLidarNoise returns lidar measurement noise given position standard deviations [m].
func NewLidarNoise(stdPx, stdPy float64, seed uint64) (*noise.Gaussian, error) {
	return noise.NewZeroMeanDiag([]float64{stdPx, stdPy}, seed)
}

// Observe returns position part of state x.
// It returns error if x is not a CTRV state.
func (l *Lidar) Observe(x mat.Vector) (mat.Vector, error) {
	if x.Len() != StateDim {
		return nil, fmt.Errorf("invalid state vector length: %d", x.Len())
	}

	y := mat.NewVecDense(fusion.Lidar.Dim(), nil)
	y.MulVec(l.h, x)

	return y, nil
}

// Normalize does nothing: lidar measurements have no angular components
func (l *Lidar) Normalize(y *mat.VecDense) {}

// Dim returns measurement dimension
func (l *Lidar) Dim() int {
	return fusion.Lidar.Dim()
}

// OutputNoise returns measurement noise
func (l *Lidar) OutputNoise() fusion.Noise {
	return l.r
}

// OutputMatrix returns observation matrix
func (l *Lidar) OutputMatrix() mat.Matrix {
	m := &mat.Dense{}
	m.CloneFrom(l.h)

	return m
}
