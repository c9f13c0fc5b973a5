package model

import (
	"fmt"
	"math"

	fusion "github.com/milosgajdos/go-fusion"
	"github.com/milosgajdos/go-fusion/matrix"
	"github.com/milosgajdos/go-fusion/noise"
	"gonum.org/v1/gonum/mat"
)

// DefaultMinRange is the range [m] below which radar range rate is reported as zero
const DefaultMinRange = 1e-4

// Radar measurement vector indices
const (
	// Rho is range [m]
	Rho = iota
	// Phi is bearing [rad]
	Phi
	// RhoDot is range rate [m/s]
	RhoDot
)

// Radar is a nonlinear sensor observing range, bearing and range rate of CTRV state
type Radar struct {
	// MinRange guards range rate against division by zero
	MinRange float64
	// r is measurement noise
	r fusion.Noise
}

// NewRadar creates new radar sensor model with measurement noise r and returns it.
// It returns error if r is nil or its dimension is not 3.
func NewRadar(r fusion.Noise) (*Radar, error) {
	if r == nil {
		return nil, fmt.Errorf("invalid radar noise: %v", r)
	}

	if d := r.Cov().SymmetricDim(); d != fusion.Radar.Dim() {
		return nil, fmt.Errorf("invalid radar noise dimension: %d", d)
	}

	return &Radar{
		MinRange: DefaultMinRange,
		r:        r,
	}, nil
}

// NewRadarNoise returns radar measurement noise given range [m], bearing [rad] and range rate [m/s] standard deviations.
func NewRadarNoise(stdRho, stdPhi, stdRhoDot float64, seed uint64) (*noise.Gaussian, error) {
	return noise.NewZeroMeanDiag([]float64{stdRho, stdPhi, stdRhoDot}, seed)
}

// Observe maps state x to [range, bearing, range rate].
// It returns error if x is not a CTRV state.
func (r *Radar) Observe(x mat.Vector) (mat.Vector, error) {
	if x.Len() != StateDim {
		return nil, fmt.Errorf("invalid state vector length: %d", x.Len())
	}

	px, py := x.AtVec(Px), x.AtVec(Py)
	v, yaw := x.AtVec(V), x.AtVec(Yaw)

	rho := math.Hypot(px, py)
	phi := math.Atan2(py, px)

	var rhoDot float64
	if rho > r.MinRange {
		rhoDot = (px*v*math.Cos(yaw) + py*v*math.Sin(yaw)) / rho
	}

	return mat.NewVecDense(fusion.Radar.Dim(), []float64{rho, phi, rhoDot}), nil
}

// Normalize wraps bearing of measurement y into (-Pi, Pi]
func (r *Radar) Normalize(y *mat.VecDense) {
	y.SetVec(Phi, matrix.NormalizeAngle(y.AtVec(Phi)))
}

// Dim returns measurement dimension
func (r *Radar) Dim() int {
	return fusion.Radar.Dim()
}

// OutputNoise returns measurement noise
func (r *Radar) OutputNoise() fusion.Noise {
	return r.r
}

// ToCartesian converts radar measurement z into position [px, py] and velocity [vx, vy].
// Velocity is the radial component only: radar does not observe tangential motion.
func ToCartesian(z mat.Vector) (px, py, vx, vy float64) {
	rho, phi, rhoDot := z.AtVec(Rho), z.AtVec(Phi), z.AtVec(RhoDot)
	cos, sin := math.Cos(phi), math.Sin(phi)

	return rho * cos, rho * sin, rhoDot * cos, rhoDot * sin
}
