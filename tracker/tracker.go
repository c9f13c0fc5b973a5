package tracker

import (
	"fmt"
	"math"

	fusion "github.com/milosgajdos/go-fusion"
	"github.com/milosgajdos/go-fusion/estimate"
	"github.com/milosgajdos/go-fusion/kalman"
	"github.com/milosgajdos/go-fusion/kalman/kf"
	"github.com/milosgajdos/go-fusion/kalman/ukf"
	"github.com/milosgajdos/go-fusion/matrix"
	"github.com/milosgajdos/go-fusion/model"
	"gonum.org/v1/gonum/mat"
)

// Tracker fuses lidar and radar measurements of a single object into CTRV state estimate
type Tracker struct {
	// c is tracker configuration
	c *Config
	// ukf predicts state and corrects it with radar measurements
	ukf *ukf.UKF
	// kf corrects state with lidar measurements
	kf *kf.KF
	// radar is radar measurement model
	radar *model.Radar
	// x is state mean
	x *mat.VecDense
	// p is state covariance
	p *mat.SymDense
	// nis stores the latest NIS per sensor
	nis map[fusion.SensorType]float64
	// t is the timestamp of the latest processed measurement
	t int64
	// init is true once the first measurement was processed
	init bool
}

// New creates new Tracker and returns it.
// If init is nil model.DefaultInitCond is used; if c is nil DefaultConfig is used.
// It returns error if the configuration is invalid or the filters fail to be created.
func New(init fusion.InitCond, c *Config) (*Tracker, error) {
	if init == nil {
		init = model.DefaultInitCond()
	}

	if c == nil {
		c = DefaultConfig()
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	state, cov := init.State(), init.Cov()
	if state.Len() != model.StateDim || cov.SymmetricDim() != model.StateDim {
		return nil, fmt.Errorf("invalid initial condition dimensions: x=%d, p=%d", state.Len(), cov.SymmetricDim())
	}

	q, err := model.NewProcessNoise(c.StdA, c.StdYawDD, c.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to create process noise: %w", err)
	}

	ctrv, err := model.NewCTRV(q)
	if err != nil {
		return nil, fmt.Errorf("failed to create process model: %w", err)
	}
	ctrv.YawRateThreshold = c.YawRateThreshold

	ln, err := model.NewLidarNoise(c.StdLaserPx, c.StdLaserPy, c.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to create lidar noise: %w", err)
	}

	lidar, err := model.NewLidar(ln)
	if err != nil {
		return nil, fmt.Errorf("failed to create lidar model: %w", err)
	}

	rn, err := model.NewRadarNoise(c.StdRadarRho, c.StdRadarPhi, c.StdRadarRhoDot, c.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to create radar noise: %w", err)
	}

	radar, err := model.NewRadar(rn)
	if err != nil {
		return nil, fmt.Errorf("failed to create radar model: %w", err)
	}

	u, err := ukf.New(ctrv, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create UKF: %w", err)
	}

	k, err := kf.New(lidar)
	if err != nil {
		return nil, fmt.Errorf("failed to create KF: %w", err)
	}

	x := &mat.VecDense{}
	x.CloneFromVec(state)

	p := mat.NewSymDense(model.StateDim, nil)
	p.CopySym(cov)

	return &Tracker{
		c:     c,
		ukf:   u,
		kf:    k,
		radar: radar,
		x:     x,
		p:     p,
		nis:   make(map[fusion.SensorType]float64),
	}, nil
}

// ProcessMeasurement initializes the tracker with the first usable measurement
// and then predicts the state to the measurement time and corrects it with m.
// Measurements of disabled sensors are ignored once the tracker is initialized.
// The tracker state is modified only if both prediction and correction succeed.
// It returns fusion.ErrOutOfOrder if m is older than the latest processed measurement.
func (t *Tracker) ProcessMeasurement(m *fusion.Measurement) error {
	if m == nil {
		return fmt.Errorf("%w: nil measurement", fusion.ErrInvalidMeasurement)
	}

	if err := m.Validate(); err != nil {
		return err
	}

	if !t.init {
		t.initialize(m)
		return nil
	}

	if !t.enabled(m.Sensor) {
		return nil
	}

	// timestamps are in microseconds
	dt := float64(m.Timestamp-t.t) / 1e6
	if dt < 0 {
		return fmt.Errorf("%w: measurement at %d precedes %d", fusion.ErrOutOfOrder, m.Timestamp, t.t)
	}

	pred, err := t.ukf.Predict(t.x, t.p, dt)
	if err != nil {
		return fmt.Errorf("prediction failed: %w", err)
	}

	var c *kalman.Correction
	switch m.Sensor {
	case fusion.Lidar:
		c, err = t.kf.Update(pred.Mean, pred.Cov, m.Raw)
	case fusion.Radar:
		c, err = t.ukf.Update(pred, t.radar, m.Raw)
	}
	if err != nil {
		return fmt.Errorf("%v update failed: %w", m.Sensor, err)
	}

	if !matrix.IsFinite(c.X) || !matrix.IsFinite(c.P) {
		return fmt.Errorf("%v update failed: %w", m.Sensor, fusion.ErrNotFinite)
	}

	// it's safe to update the tracker state
	t.x.CopyVec(c.X)
	t.ukf.Model().Normalize(t.x)
	t.p.CopySym(c.P)
	t.nis[m.Sensor] = c.NIS
	t.t = m.Timestamp

	return nil
}

// initialize sets the state position (and for radar speed and heading) from m.
// Measurements with zero in either of the first two components are skipped.
func (t *Tracker) initialize(m *fusion.Measurement) {
	if m.Raw.AtVec(0) == 0 || m.Raw.AtVec(1) == 0 {
		return
	}

	switch m.Sensor {
	case fusion.Lidar:
		t.x.SetVec(model.Px, m.Raw.AtVec(0))
		t.x.SetVec(model.Py, m.Raw.AtVec(1))
	case fusion.Radar:
		px, py, vx, vy := model.ToCartesian(m.Raw)
		yaw := t.c.DefaultHeading
		if math.Abs(vx) > t.c.HeadingVxThreshold {
			yaw = math.Atan2(vy, vx)
		}
		t.x.SetVec(model.Px, px)
		t.x.SetVec(model.Py, py)
		t.x.SetVec(model.V, math.Hypot(vx, vy))
		t.x.SetVec(model.Yaw, yaw)
		t.x.SetVec(model.YawRate, t.c.InitYawRate)
	}

	t.t = m.Timestamp
	t.init = true
}

func (t *Tracker) enabled(s fusion.SensorType) bool {
	switch s {
	case fusion.Lidar:
		return t.c.UseLidar
	case fusion.Radar:
		return t.c.UseRadar
	}

	return false
}

// State returns tracker state mean
func (t *Tracker) State() mat.Vector {
	x := &mat.VecDense{}
	x.CloneFromVec(t.x)

	return x
}

// Cov returns tracker state covariance
func (t *Tracker) Cov() mat.Symmetric {
	p := mat.NewSymDense(model.StateDim, nil)
	p.CopySym(t.p)

	return p
}

// Estimate returns tracker state estimate
func (t *Tracker) Estimate() fusion.Estimate {
	// dimensions are validated in New
	est, _ := estimate.NewBaseWithCov(t.x, t.p)

	return est
}

// NIS returns normalized innovation squared of the latest update by sensor s.
// It returns 0 if no update by s has been made yet.
func (t *Tracker) NIS(s fusion.SensorType) float64 {
	return t.nis[s]
}

// Initialized returns true if the tracker has been initialized with a measurement
func (t *Tracker) Initialized() bool {
	return t.init
}

// Time returns timestamp of the latest processed measurement in microseconds
func (t *Tracker) Time() int64 {
	return t.t
}

// Config returns tracker configuration
func (t *Tracker) Config() Config {
	return *t.c
}
