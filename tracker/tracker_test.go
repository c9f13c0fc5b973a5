package tracker

import (
	"math"
	"os"
	"testing"

	fusion "github.com/milosgajdos/go-fusion"
	"github.com/milosgajdos/go-fusion/matrix"
	"github.com/milosgajdos/go-fusion/model"
	"github.com/milosgajdos/go-fusion/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var defaultState *mat.VecDense

func setup() {
	defaultState = mat.NewVecDense(model.StateDim, []float64{0.1, 0.1, 0.1, 0.1, 0.01})
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func lidarMeas(px, py float64, ts int64) *fusion.Measurement {
	return &fusion.Measurement{
		Sensor:    fusion.Lidar,
		Raw:       mat.NewVecDense(2, []float64{px, py}),
		Timestamp: ts,
	}
}

func radarMeas(rho, phi, rhoDot float64, ts int64) *fusion.Measurement {
	return &fusion.Measurement{
		Sensor:    fusion.Radar,
		Raw:       mat.NewVecDense(3, []float64{rho, phi, rhoDot}),
		Timestamp: ts,
	}
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	tr, err := New(nil, nil)
	assert.NoError(err)
	assert.NotNil(tr)
	assert.False(tr.Initialized())
	assert.True(mat.Equal(defaultState, tr.State()))
	assert.Equal(0.2, tr.Cov().At(model.Px, model.Px))
	assert.Equal(0.3, tr.Cov().At(model.YawRate, model.YawRate))
	assert.Equal(*DefaultConfig(), tr.Config())

	// invalid config
	c := DefaultConfig()
	c.StdA = -1.0
	tr, err = New(nil, c)
	assert.Nil(tr)
	assert.Error(err)

	// invalid initial condition
	ic := model.NewInitCond(mat.NewVecDense(3, nil), mat.NewSymDense(3, nil))
	tr, err = New(ic, nil)
	assert.Nil(tr)
	assert.Error(err)
}

func TestInitLidar(t *testing.T) {
	assert := assert.New(t)

	tr, err := New(nil, nil)
	assert.NoError(err)

	assert.NoError(tr.ProcessMeasurement(lidarMeas(1.0, 1.0, 1477010443000000)))
	assert.True(tr.Initialized())
	assert.Equal(int64(1477010443000000), tr.Time())

	x := tr.State()
	assert.Equal(1.0, x.AtVec(model.Px))
	assert.Equal(1.0, x.AtVec(model.Py))
	assert.Equal(0.1, x.AtVec(model.V))
	assert.Equal(0.1, x.AtVec(model.Yaw))
	assert.Equal(0.01, x.AtVec(model.YawRate))

	assert.Equal(0.0, tr.NIS(fusion.Lidar))
	assert.Equal(0.0, tr.NIS(fusion.Radar))

	est := tr.Estimate()
	assert.True(mat.Equal(x, est.Val()))
	assert.True(mat.Equal(tr.Cov(), est.Cov()))
}

func TestInitSkipsZero(t *testing.T) {
	assert := assert.New(t)

	tr, err := New(nil, nil)
	assert.NoError(err)

	assert.NoError(tr.ProcessMeasurement(lidarMeas(0.0, 1.0, 100)))
	assert.False(tr.Initialized())
	assert.NoError(tr.ProcessMeasurement(radarMeas(1.0, 0.0, 1.0, 200)))
	assert.False(tr.Initialized())
	assert.True(mat.Equal(defaultState, tr.State()))
	assert.Equal(int64(0), tr.Time())

	assert.NoError(tr.ProcessMeasurement(lidarMeas(2.0, 3.0, 300)))
	assert.True(tr.Initialized())
	assert.Equal(int64(300), tr.Time())
}

func TestInitRadar(t *testing.T) {
	assert := assert.New(t)

	testCases := []struct {
		rho, phi, rhoDot float64
		v, yaw           float64
	}{
		{2.0, 0.5, 1.0, 1.0, 0.5},
		{2.0, 0.5, -1.0, 1.0, 0.5 - math.Pi},
		{2.0, 0.5, 0.0, 0.0, 0.1},
		{2.0, math.Pi / 2, 1.0, 1.0, 0.1},
	}

	for _, tc := range testCases {
		tr, err := New(nil, nil)
		assert.NoError(err)

		assert.NoError(tr.ProcessMeasurement(radarMeas(tc.rho, tc.phi, tc.rhoDot, 10)))
		assert.True(tr.Initialized())

		x := tr.State()
		assert.InDelta(tc.rho*math.Cos(tc.phi), x.AtVec(model.Px), 1e-12)
		assert.InDelta(tc.rho*math.Sin(tc.phi), x.AtVec(model.Py), 1e-12)
		assert.InDelta(tc.v, x.AtVec(model.V), 1e-12)
		assert.InDelta(tc.yaw, x.AtVec(model.Yaw), 1e-12)
		assert.Equal(0.01, x.AtVec(model.YawRate))
	}
}

func TestProcessMeasurementErrors(t *testing.T) {
	assert := assert.New(t)

	tr, err := New(nil, nil)
	assert.NoError(err)

	assert.ErrorIs(tr.ProcessMeasurement(nil), fusion.ErrInvalidMeasurement)
	assert.ErrorIs(tr.ProcessMeasurement(&fusion.Measurement{
		Sensor: fusion.Radar,
		Raw:    mat.NewVecDense(2, []float64{1, 1}),
	}), fusion.ErrInvalidMeasurement)
	assert.False(tr.Initialized())

	// non-finite values never seed the state
	assert.ErrorIs(tr.ProcessMeasurement(lidarMeas(math.NaN(), 1.0, 0)), fusion.ErrInvalidMeasurement)
	assert.False(tr.Initialized())
	assert.True(mat.Equal(defaultState, tr.State()))

	assert.NoError(tr.ProcessMeasurement(lidarMeas(1.0, 1.0, 0)))
	x, p := tr.State(), tr.Cov()

	// non-finite values are rejected after initialization
	assert.ErrorIs(tr.ProcessMeasurement(lidarMeas(math.NaN(), 1.0, 100000)), fusion.ErrInvalidMeasurement)
	assert.ErrorIs(tr.ProcessMeasurement(radarMeas(1.0, 0.5, math.Inf(1), 100000)), fusion.ErrInvalidMeasurement)

	assert.True(mat.Equal(x, tr.State()))
	assert.True(mat.Equal(p, tr.Cov()))
	assert.Equal(int64(0), tr.Time())
	assert.Equal(0.0, tr.NIS(fusion.Lidar))
	assert.Equal(0.0, tr.NIS(fusion.Radar))

	// the tracker keeps working
	assert.NoError(tr.ProcessMeasurement(lidarMeas(1.1, 1.0, 100000)))
	assert.True(matrix.IsFinite(tr.State()))
}

func TestOutOfOrder(t *testing.T) {
	assert := assert.New(t)

	tr, err := New(nil, nil)
	assert.NoError(err)

	assert.NoError(tr.ProcessMeasurement(lidarMeas(1.0, 1.0, 1000000)))
	assert.NoError(tr.ProcessMeasurement(lidarMeas(1.1, 1.0, 1100000)))

	x, p := tr.State(), tr.Cov()
	nis := tr.NIS(fusion.Lidar)

	err = tr.ProcessMeasurement(radarMeas(1.5, 0.8, 0.1, 1050000))
	assert.ErrorIs(err, fusion.ErrOutOfOrder)

	assert.True(mat.Equal(x, tr.State()))
	assert.True(mat.Equal(p, tr.Cov()))
	assert.Equal(nis, tr.NIS(fusion.Lidar))
	assert.Equal(0.0, tr.NIS(fusion.Radar))
	assert.Equal(int64(1100000), tr.Time())

	// equal timestamp is a zero time step
	assert.NoError(tr.ProcessMeasurement(lidarMeas(1.1, 1.0, 1100000)))
}

func TestAtomicUpdate(t *testing.T) {
	assert := assert.New(t)

	// covariance which can not be factorized
	cov := mat.NewSymDense(model.StateDim, nil)
	for i := 0; i < model.StateDim; i++ {
		cov.SetSym(i, i, 1.0)
	}
	cov.SetSym(0, 1, 2.0)

	tr, err := New(model.NewInitCond(defaultState, cov), nil)
	assert.NoError(err)

	assert.NoError(tr.ProcessMeasurement(lidarMeas(1.0, 1.0, 0)))

	x, p := tr.State(), tr.Cov()
	err = tr.ProcessMeasurement(lidarMeas(1.1, 1.0, 100000))
	assert.ErrorIs(err, fusion.ErrNotPositiveDefinite)

	assert.True(mat.Equal(x, tr.State()))
	assert.True(mat.Equal(p, tr.Cov()))
	assert.Equal(int64(0), tr.Time())
	assert.Equal(0.0, tr.NIS(fusion.Lidar))
}

func TestSeedIndependent(t *testing.T) {
	assert := assert.New(t)

	meas := []*fusion.Measurement{
		lidarMeas(1.0, 1.0, 0),
		radarMeas(1.5, 0.8, 2.0, 50000),
		lidarMeas(1.2, 1.1, 100000),
		radarMeas(1.6, 0.79, 2.1, 150000),
	}

	var trackers []*Tracker
	for _, seed := range []uint64{1, 42, 0} {
		c := DefaultConfig()
		c.Seed = seed
		tr, err := New(nil, c)
		assert.NoError(err)
		for _, m := range meas {
			assert.NoError(tr.ProcessMeasurement(m))
		}
		trackers = append(trackers, tr)
	}

	for _, tr := range trackers[1:] {
		assert.True(mat.Equal(trackers[0].State(), tr.State()))
		assert.True(mat.Equal(trackers[0].Cov(), tr.Cov()))
		assert.Equal(trackers[0].NIS(fusion.Radar), tr.NIS(fusion.Radar))
	}
}

func TestDisabledSensors(t *testing.T) {
	assert := assert.New(t)

	c := DefaultConfig()
	c.UseRadar = false

	tr, err := New(nil, c)
	assert.NoError(err)

	// disabled sensor still initializes
	assert.NoError(tr.ProcessMeasurement(radarMeas(2.0, 0.5, 1.0, 0)))
	assert.True(tr.Initialized())

	x, p := tr.State(), tr.Cov()
	assert.NoError(tr.ProcessMeasurement(radarMeas(2.1, 0.5, 1.0, 100000)))
	assert.True(mat.Equal(x, tr.State()))
	assert.True(mat.Equal(p, tr.Cov()))
	assert.Equal(int64(0), tr.Time())
	assert.Equal(0.0, tr.NIS(fusion.Radar))

	// lidar is processed
	assert.NoError(tr.ProcessMeasurement(lidarMeas(1.8, 1.0, 100000)))
	assert.Equal(int64(100000), tr.Time())
	assert.True(tr.NIS(fusion.Lidar) > 0)

	c = DefaultConfig()
	c.UseLidar = false
	tr, err = New(nil, c)
	assert.NoError(err)

	assert.NoError(tr.ProcessMeasurement(lidarMeas(1.0, 1.0, 0)))
	assert.NoError(tr.ProcessMeasurement(lidarMeas(1.1, 1.0, 100000)))
	assert.Equal(int64(0), tr.Time())
	assert.Equal(1.0, tr.State().AtVec(model.Px))
}

func TestLidarConvergence(t *testing.T) {
	assert := assert.New(t)

	tr, err := New(nil, nil)
	require.NoError(t, err)

	ts := int64(0)
	require.NoError(t, tr.ProcessMeasurement(lidarMeas(3.0, 4.0, ts)))

	var first mat.Symmetric
	for i := 0; i < 100; i++ {
		ts += 100000
		require.NoError(t, tr.ProcessMeasurement(lidarMeas(3.0, 4.0, ts)))

		p := tr.Cov()
		assert.True(matrix.IsSymmetric(p, 0))
		assert.True(matrix.IsPSD(p, 1e-9))

		yaw := tr.State().AtVec(model.Yaw)
		assert.True(yaw > -math.Pi && yaw <= math.Pi)

		if i == 0 {
			first = p
		}
	}

	x, p := tr.State(), tr.Cov()
	assert.InDelta(3.0, x.AtVec(model.Px), 0.05)
	assert.InDelta(4.0, x.AtVec(model.Py), 0.05)

	// position uncertainty shrinks; heading is not observable by lidar
	assert.True(p.At(model.Px, model.Px)+p.At(model.Py, model.Py) <
		first.At(model.Px, model.Px)+first.At(model.Py, model.Py))
	assert.True(p.At(model.Px, model.Px) < 0.15*0.15)
}

func TestRadarNISConsistency(t *testing.T) {
	assert := assert.New(t)

	c := DefaultConfig()
	c.StdA = 0.5
	c.StdYawDD = 0.2

	q, err := model.NewProcessNoise(c.StdA, c.StdYawDD, 11)
	require.NoError(t, err)
	tgt, err := sim.NewTarget(mat.NewVecDense(model.StateDim, []float64{60.0, 40.0, 3.0, 0.5, 0.1}), q)
	require.NoError(t, err)

	ln, err := model.NewLidarNoise(c.StdLaserPx, c.StdLaserPy, 12)
	require.NoError(t, err)
	lidar, err := model.NewLidar(ln)
	require.NoError(t, err)

	rn, err := model.NewRadarNoise(c.StdRadarRho, c.StdRadarPhi, c.StdRadarRhoDot, 13)
	require.NoError(t, err)
	radar, err := model.NewRadar(rn)
	require.NoError(t, err)

	s := &sim.Scenario{
		Target:  tgt,
		Lidar:   lidar,
		Radar:   radar,
		Pattern: []fusion.SensorType{fusion.Radar, fusion.Lidar},
		Dt:      0.05,
	}

	recs, err := s.Run(300)
	require.NoError(t, err)

	tr, err := New(nil, c)
	require.NoError(t, err)

	var nis []float64
	for i, r := range recs {
		require.NoError(t, tr.ProcessMeasurement(r.Measurement))

		p := tr.Cov()
		assert.True(matrix.IsSymmetric(p, 0))
		assert.True(matrix.IsPSD(p, 1e-9))

		if i >= 50 && r.Measurement.Sensor == fusion.Radar {
			nis = append(nis, tr.NIS(fusion.Radar))
		}
	}

	var mean float64
	for _, v := range nis {
		mean += v
	}
	mean /= float64(len(nis))

	assert.InDelta(3.0, mean, 1.5)

	// estimate stays close to the truth
	truth := recs[len(recs)-1].Truth
	x := tr.State()
	assert.InDelta(truth.AtVec(0), x.AtVec(model.Px), 1.0)
	assert.InDelta(truth.AtVec(1), x.AtVec(model.Py), 1.0)
}
