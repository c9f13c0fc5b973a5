package model

import (
	"fmt"
	"math"

	fusion "github.com/milosgajdos/go-fusion"
	"github.com/milosgajdos/go-fusion/matrix"
	"github.com/milosgajdos/go-fusion/noise"
	"gonum.org/v1/gonum/mat"
)

const (
	// StateDim is CTRV state dimension
	StateDim = 5
	// NoiseDim is CTRV process noise dimension
	NoiseDim = 2
	// DefaultYawRateThreshold is the yaw rate [rad/s] below which CTRV motion is a straight line
	DefaultYawRateThreshold = 0.001
)

// CTRV state vector indices
const (
	// Px is x position [m]
	Px = iota
	// Py is y position [m]
	Py
	// V is speed [m/s]
	V
	// Yaw is heading angle [rad]
	Yaw
	// YawRate is heading turn rate [rad/s]
	YawRate
)

// CTRV is a constant turn rate and velocity motion model.
// Its state is [px, py, v, yaw, yaw rate]; its process noise is
// [longitudinal acceleration, yaw acceleration] held constant over a time step.
type CTRV struct {
	// YawRateThreshold switches propagation to the straight line motion
	YawRateThreshold float64
	// q is process noise
	q fusion.Noise
}

// NewCTRV creates new CTRV model with process noise q and returns it.
// If q is nil the model is noiseless.
// It returns error if q is not two dimensional.
func NewCTRV(q fusion.Noise) (*CTRV, error) {
	if q == nil {
		q, _ = noise.NewZero(NoiseDim)
	}

	if d := q.Cov().SymmetricDim(); d != NoiseDim {
		return nil, fmt.Errorf("invalid process noise dimension: %d", d)
	}

	return &CTRV{
		YawRateThreshold: DefaultYawRateThreshold,
		q:                q,
	}, nil
}

// NewProcessNoise returns CTRV process noise given longitudinal acceleration [m/s^2]
// and yaw acceleration [rad/s^2] standard deviations.
func NewProcessNoise(stdA, stdYawDD float64, seed uint64) (*noise.Gaussian, error) {
	return noise.NewZeroMeanDiag([]float64{stdA, stdYawDD}, seed)
}

// Propagate propagates state x over dt seconds and returns the propagated state.
// x is either a plain state or a state augmented with process noise values;
// the returned state is never augmented.
// It returns error if x has invalid dimension or dt is negative.
func (c *CTRV) Propagate(x mat.Vector, dt float64) (mat.Vector, error) {
	if x.Len() != StateDim && x.Len() != StateDim+NoiseDim {
		return nil, fmt.Errorf("invalid state vector length: %d", x.Len())
	}

	if dt < 0 {
		return nil, fmt.Errorf("%w: negative time step %f", fusion.ErrOutOfOrder, dt)
	}

	px, py := x.AtVec(Px), x.AtVec(Py)
	v, yaw, yawd := x.AtVec(V), x.AtVec(Yaw), x.AtVec(YawRate)

	var dx, dy float64
	if math.Abs(yawd) > c.YawRateThreshold {
		dx, dy = turnDisplacement(v, yaw, yawd, dt)
	} else {
		dx, dy = lineDisplacement(v, yaw, dt)
	}

	out := mat.NewVecDense(StateDim, []float64{
		px + dx,
		py + dy,
		v,
		yaw + yawd*dt,
		yawd,
	})

	if x.Len() == StateDim+NoiseDim {
		nuA, nuYawDD := x.AtVec(StateDim), x.AtVec(StateDim+1)
		dt2 := 0.5 * dt * dt

		out.SetVec(Px, out.AtVec(Px)+dt2*nuA*math.Cos(yaw))
		out.SetVec(Py, out.AtVec(Py)+dt2*nuA*math.Sin(yaw))
		out.SetVec(V, out.AtVec(V)+dt*nuA)
		out.SetVec(Yaw, out.AtVec(Yaw)+dt2*nuYawDD)
		out.SetVec(YawRate, out.AtVec(YawRate)+dt*nuYawDD)
	}

	return out, nil
}

// turnDisplacement is the exact CTRV position increment for non-zero yaw rate
func turnDisplacement(v, yaw, yawd, dt float64) (float64, float64) {
	r := v / yawd
	dx := r * (math.Sin(yaw+yawd*dt) - math.Sin(yaw))
	dy := r * (math.Cos(yaw) - math.Cos(yaw+yawd*dt))

	return dx, dy
}

// lineDisplacement is the CTRV position increment in the zero yaw rate limit
func lineDisplacement(v, yaw, dt float64) (float64, float64) {
	return v * dt * math.Cos(yaw), v * dt * math.Sin(yaw)
}

// Normalize wraps yaw of state x into (-Pi, Pi]
func (c *CTRV) Normalize(x *mat.VecDense) {
	x.SetVec(Yaw, matrix.NormalizeAngle(x.AtVec(Yaw)))
}

// Dims returns state and process noise dimensions
func (c *CTRV) Dims() (int, int) {
	return StateDim, NoiseDim
}

// StateNoise returns process noise
func (c *CTRV) StateNoise() fusion.Noise {
	return c.q
}
