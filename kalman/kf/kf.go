package kf

import (
	"fmt"

	fusion "github.com/milosgajdos/go-fusion"
	"github.com/milosgajdos/go-fusion/kalman"
	"github.com/milosgajdos/go-fusion/matrix"
	mx "github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"
)

// KF is Kalman Filter measurement update for linear observation models
type KF struct {
	// m is KF observation model
	m fusion.LinearObserver
	// h is observation matrix
	h *mat.Dense
	// r is output noise a.k.a. measurement noise covariance
	r *mat.SymDense
	// eye is state identity matrix
	eye mat.Matrix
}

// New creates new KF for observation model m and returns it.
// It returns error if either of the following conditions is met:
//   - observation matrix is empty or does not match the model output dimension
//   - output noise covariance does not match the model output dimension
func New(m fusion.LinearObserver) (*KF, error) {
	h := mat.DenseCopyOf(m.OutputMatrix())
	ny, nx := h.Dims()
	if nx <= 0 || ny <= 0 || ny != m.Dim() {
		return nil, fmt.Errorf("invalid observation matrix dimensions: [%d x %d]", ny, nx)
	}

	cov := m.OutputNoise().Cov()
	if cov.SymmetricDim() != ny {
		return nil, fmt.Errorf("invalid output noise dimension: %d", cov.SymmetricDim())
	}

	r := mat.NewSymDense(ny, nil)
	r.CopySym(cov)

	eye, err := mx.NewDenseValIdentity(nx, 1.0)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity matrix: %v", err)
	}

	return &KF{
		m:   m,
		h:   h,
		r:   r,
		eye: eye,
	}, nil
}

// Update corrects state x with covariance p using the measurement z and returns the correction.
// Covariance is corrected in Joseph form which keeps it symmetric positive semi-definite.
// It returns error if the dimensions are invalid or if innovation covariance is singular.
func (k *KF) Update(x mat.Vector, p mat.Symmetric, z mat.Vector) (*kalman.Correction, error) {
	ny, nx := k.h.Dims()

	if x.Len() != nx || p.SymmetricDim() != nx {
		return nil, fmt.Errorf("invalid state dimensions: x=%d, p=%d", x.Len(), p.SymmetricDim())
	}

	if z.Len() != ny {
		return nil, fmt.Errorf("%w: expected %d values, got %d", fusion.ErrInvalidMeasurement, ny, z.Len())
	}

	// predicted measurement
	y := mat.NewVecDense(ny, nil)
	y.MulVec(k.h, x)

	// innovation vector
	inn := mat.NewVecDense(ny, nil)
	inn.SubVec(z, y)
	k.m.Normalize(inn)

	// P*H'
	pxy := mat.NewDense(nx, ny, nil)
	pxy.Mul(p, k.h.T())

	// Note: pxy = P * H' so we reuse the result here
	// H*P*H' + R
	pyy := mat.NewDense(ny, ny, nil)
	pyy.Mul(k.h, pxy)
	pyy.Add(pyy, k.r)
	s := matrix.Symmetrize(pyy)

	gain, sInv, err := kalman.Gain(pxy, s)
	if err != nil {
		return nil, err
	}

	// update state x
	xNext := mat.NewVecDense(nx, nil)
	xNext.MulVec(gain, inn)
	xNext.AddVec(x, xNext)

	// Joseph form update
	a := &mat.Dense{}
	// K*H
	a.Mul(gain, k.h)
	// eye - K*H
	a.Sub(k.eye, a)

	ap := &mat.Dense{}
	ap.Mul(a, p)
	apa := &mat.Dense{}
	apa.Mul(ap, a.T())

	// K*R*K'
	kr := &mat.Dense{}
	kr.Mul(gain, k.r)
	krk := &mat.Dense{}
	krk.Mul(kr, gain.T())

	apa.Add(apa, krk)

	return &kalman.Correction{
		X:     xNext,
		P:     matrix.Symmetrize(apa),
		Innov: inn,
		S:     s,
		K:     gain,
		NIS:   kalman.NIS(inn, sInv),
	}, nil
}

// Model returns KF observation model
func (k *KF) Model() fusion.LinearObserver {
	return k.m
}
