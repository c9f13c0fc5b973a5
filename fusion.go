package fusion

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotPositiveDefinite is returned when a covariance matrix can not be factorized
	ErrNotPositiveDefinite = errors.New("covariance is not positive definite")
	// ErrSingular is returned when innovation covariance can not be inverted
	ErrSingular = errors.New("innovation covariance is singular")
	// ErrOutOfOrder is returned when a measurement is older than the filter state
	ErrOutOfOrder = errors.New("measurement out of order")
	// ErrInvalidMeasurement is returned when a measurement does not match its sensor
	ErrInvalidMeasurement = errors.New("invalid measurement")
	// ErrNotFinite is returned when a filter step produces NaN or infinite values
	ErrNotFinite = errors.New("non-finite filter result")
)

// SensorType identifies the sensor which produced a measurement
type SensorType int

const (
	// Lidar measures object position (px, py)
	Lidar SensorType = iota + 1
	// Radar measures range, bearing and range rate (rho, phi, rho_dot)
	Radar
)

// Dim returns the dimension of the raw measurement produced by the sensor.
// It returns 0 for unknown sensors.
func (s SensorType) Dim() int {
	switch s {
	case Lidar:
		return 2
	case Radar:
		return 3
	}

	return 0
}

// String implements the Stringer interface.
func (s SensorType) String() string {
	switch s {
	case Lidar:
		return "lidar"
	case Radar:
		return "radar"
	}

	return fmt.Sprintf("SensorType(%d)", int(s))
}

// Measurement is a single timestamped sensor reading
type Measurement struct {
	// Sensor is the type of the sensor
	Sensor SensorType
	// Raw is the raw measurement vector
	Raw *mat.VecDense
	// Timestamp is measurement time in microseconds
	Timestamp int64
}

// Validate checks the raw measurement dimension matches the sensor
// and all raw values are finite.
func (m *Measurement) Validate() error {
	dim := m.Sensor.Dim()
	if dim == 0 {
		return fmt.Errorf("%w: unknown sensor %v", ErrInvalidMeasurement, m.Sensor)
	}

	if m.Raw == nil || m.Raw.Len() != dim {
		return fmt.Errorf("%w: %v expects %d values", ErrInvalidMeasurement, m.Sensor, dim)
	}

	for i := 0; i < dim; i++ {
		if v := m.Raw.AtVec(i); math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %v value %d is not finite: %f", ErrInvalidMeasurement, m.Sensor, i, v)
		}
	}

	return nil
}

// Propagator propagates internal state of the system to the next step
type Propagator interface {
	// Propagate propagates augmented state x over dt seconds and returns the new state
	Propagate(x mat.Vector, dt float64) (mat.Vector, error)
	// Normalize wraps angular components of state x in place
	Normalize(x *mat.VecDense)
	// Dims returns state and process noise dimensions
	Dims() (nx, nq int)
	// StateNoise returns process noise
	StateNoise() Noise
}

// Observer observes external state (output) of the system
type Observer interface {
	// Observe maps state x into measurement space
	Observe(x mat.Vector) (mat.Vector, error)
	// Normalize wraps angular components of measurement y in place
	Normalize(y *mat.VecDense)
	// Dim returns measurement dimension
	Dim() int
	// OutputNoise returns measurement noise
	OutputNoise() Noise
}

// LinearObserver is an Observer whose observation is a matrix product
type LinearObserver interface {
	// Observer observes external state of the system
	Observer
	// OutputMatrix returns observation matrix
	OutputMatrix() mat.Matrix
}

// InitCond is initial state condition of the filter
type InitCond interface {
	// State returns initial filter state
	State() mat.Vector
	// Cov returns initial state covariance
	Cov() mat.Symmetric
}

// Estimate is dynamical system filter estimate
type Estimate interface {
	// Val returns estimate value
	Val() mat.Vector
	// Cov returns estimate covariance
	Cov() mat.Symmetric
}

// Noise is dynamical system noise
type Noise interface {
	// Mean returns noise mean
	Mean() []float64
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Sample returns a sample of the noise
	Sample() mat.Vector
	// Reset resets the noise
	Reset() error
}
