package sim

import (
	"fmt"
	"math"

	fusion "github.com/milosgajdos/go-fusion"
	"github.com/milosgajdos/go-fusion/dataset"
	"github.com/milosgajdos/go-fusion/eval"
	"github.com/milosgajdos/go-fusion/model"
	"gonum.org/v1/gonum/mat"
)

// Target is a simulated object moving according to CTRV model driven by process noise
type Target struct {
	// m is target motion model
	m *model.CTRV
	// x is target state
	x *mat.VecDense
}

// NewTarget creates new Target with initial state x0 and process noise q and returns it.
// If q is nil the target moves deterministically.
func NewTarget(x0 mat.Vector, q fusion.Noise) (*Target, error) {
	if x0 == nil || x0.Len() != model.StateDim {
		return nil, fmt.Errorf("invalid initial state: %v", x0)
	}

	m, err := model.NewCTRV(q)
	if err != nil {
		return nil, err
	}

	x := &mat.VecDense{}
	x.CloneFromVec(x0)

	return &Target{
		m: m,
		x: x,
	}, nil
}

// Step moves the target dt seconds forward.
// Process noise is sampled once and held constant over the step.
func (t *Target) Step(dt float64) error {
	nu := t.m.StateNoise().Sample()

	xa := mat.NewVecDense(model.StateDim+model.NoiseDim, nil)
	xa.SliceVec(0, model.StateDim).(*mat.VecDense).CopyVec(t.x)
	xa.SliceVec(model.StateDim, model.StateDim+model.NoiseDim).(*mat.VecDense).CopyVec(nu)

	x, err := t.m.Propagate(xa, dt)
	if err != nil {
		return err
	}

	t.x.CopyVec(x)
	t.m.Normalize(t.x)

	return nil
}

// State returns target state
func (t *Target) State() mat.Vector {
	x := &mat.VecDense{}
	x.CloneFromVec(t.x)

	return x
}

// Truth returns target ground truth [px, py, vx, vy]
func (t *Target) Truth() *mat.VecDense {
	return eval.CartesianState(t.x)
}

// Scenario generates noisy sensor measurements of a moving target
type Scenario struct {
	// Target is the observed target
	Target *Target
	// Lidar is lidar sensor model; measurements are sampled from its output noise
	Lidar *model.Lidar
	// Radar is radar sensor model; measurements are sampled from its output noise
	Radar *model.Radar
	// Pattern is the sequence of sensors cycled through; it defaults to lidar, radar
	Pattern []fusion.SensorType
	// Dt is time between measurements [s]
	Dt float64
	// Start is timestamp of the first measurement [us]
	Start int64
}

// Run generates n measurements and returns them with ground truth.
// The first measurement observes the initial target state.
func (s *Scenario) Run(n int) ([]dataset.Record, error) {
	if s.Target == nil || s.Lidar == nil || s.Radar == nil {
		return nil, fmt.Errorf("incomplete scenario")
	}

	if s.Dt <= 0 {
		return nil, fmt.Errorf("invalid time step: %f", s.Dt)
	}

	pattern := s.Pattern
	if len(pattern) == 0 {
		pattern = []fusion.SensorType{fusion.Lidar, fusion.Radar}
	}

	records := make([]dataset.Record, 0, n)
	for i := 0; i < n; i++ {
		if i > 0 {
			if err := s.Target.Step(s.Dt); err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
		}

		sensor := pattern[i%len(pattern)]
		raw, err := s.measure(sensor)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}

		records = append(records, dataset.Record{
			Measurement: &fusion.Measurement{
				Sensor:    sensor,
				Raw:       raw,
				Timestamp: s.Start + int64(math.Round(float64(i)*s.Dt*1e6)),
			},
			Truth: s.Target.Truth(),
		})
	}

	return records, nil
}

func (s *Scenario) measure(sensor fusion.SensorType) (*mat.VecDense, error) {
	var o fusion.Observer
	switch sensor {
	case fusion.Lidar:
		o = s.Lidar
	case fusion.Radar:
		o = s.Radar
	default:
		return nil, fmt.Errorf("%w: unknown sensor %v", fusion.ErrInvalidMeasurement, sensor)
	}

	y, err := o.Observe(s.Target.x)
	if err != nil {
		return nil, err
	}

	z := mat.NewVecDense(o.Dim(), nil)
	z.AddVec(y, o.OutputNoise().Sample())
	o.Normalize(z)

	return z, nil
}

// MeasurementPositions returns measured positions of records in rows.
// Radar measurements are converted to cartesian coordinates.
// It returns nil if records is empty.
func MeasurementPositions(records []dataset.Record) *mat.Dense {
	if len(records) == 0 {
		return nil
	}

	pos := mat.NewDense(len(records), 2, nil)
	for i, r := range records {
		px, py := r.Measurement.Raw.AtVec(0), r.Measurement.Raw.AtVec(1)
		if r.Measurement.Sensor == fusion.Radar {
			px, py, _, _ = model.ToCartesian(r.Measurement.Raw)
		}
		pos.Set(i, 0, px)
		pos.Set(i, 1, py)
	}

	return pos
}

// Positions returns the first two components of vectors vs in rows.
// It returns nil if vs is empty.
func Positions(vs []mat.Vector) *mat.Dense {
	if len(vs) == 0 {
		return nil
	}

	pos := mat.NewDense(len(vs), 2, nil)
	for i, v := range vs {
		pos.Set(i, 0, v.AtVec(0))
		pos.Set(i, 1, v.AtVec(1))
	}

	return pos
}
