package eval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestRMSE(t *testing.T) {
	assert := assert.New(t)

	estimates := []mat.Vector{
		mat.NewVecDense(2, []float64{1.0, 2.0}),
		mat.NewVecDense(2, []float64{3.0, 4.0}),
	}
	truths := []mat.Vector{
		mat.NewVecDense(2, []float64{2.0, 2.0}),
		mat.NewVecDense(2, []float64{0.0, 4.0}),
	}

	rmse, err := RMSE(estimates, truths)
	assert.NoError(err)
	assert.InDelta(math.Sqrt(5.0), rmse.AtVec(0), 1e-12)
	assert.InDelta(0.0, rmse.AtVec(1), 1e-12)

	// length mismatch
	rmse, err = RMSE(estimates, truths[:1])
	assert.Nil(rmse)
	assert.Error(err)

	// empty
	rmse, err = RMSE(nil, nil)
	assert.Nil(rmse)
	assert.Error(err)

	// dimension mismatch
	truths[1] = mat.NewVecDense(3, nil)
	rmse, err = RMSE(estimates, truths)
	assert.Nil(rmse)
	assert.Error(err)
}

func TestCartesianState(t *testing.T) {
	assert := assert.New(t)

	x := mat.NewVecDense(5, []float64{1.0, 2.0, 2.0, math.Pi / 2, 0.1})
	c := CartesianState(x)

	assert.Equal(4, c.Len())
	assert.Equal(1.0, c.AtVec(0))
	assert.Equal(2.0, c.AtVec(1))
	assert.InDelta(0.0, c.AtVec(2), 1e-12)
	assert.InDelta(2.0, c.AtVec(3), 1e-12)
}

func TestNewNISStats(t *testing.T) {
	assert := assert.New(t)

	s, err := NewNISStats(3, []float64{1.0, 2.0, 3.0, 10.0})
	assert.NoError(err)
	assert.Equal(3, s.Dim)
	assert.Equal(4, s.Samples)
	assert.InDelta(4.0, s.Mean, 1e-12)
	assert.InDelta(7.815, s.Threshold, 1e-3)
	assert.InDelta(0.25, s.Exceeded, 1e-12)
	assert.Contains(s.String(), "samples=4")

	s, err = NewNISStats(2, []float64{1.0})
	assert.NoError(err)
	assert.InDelta(5.991, s.Threshold, 1e-3)

	s, err = NewNISStats(0, []float64{1.0})
	assert.Nil(s)
	assert.Error(err)

	s, err = NewNISStats(2, nil)
	assert.Nil(s)
	assert.Error(err)
}
