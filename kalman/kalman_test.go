package kalman

import (
	"testing"

	fusion "github.com/milosgajdos/go-fusion"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestGain(t *testing.T) {
	assert := assert.New(t)

	pxy := mat.NewDense(3, 2, []float64{
		1.0, 0.0,
		0.0, 2.0,
		0.5, 0.5,
	})
	s := mat.NewSymDense(2, []float64{2.0, 0.0, 0.0, 4.0})

	k, sInv, err := Gain(pxy, s)
	assert.NoError(err)

	assert.InDelta(0.5, sInv.At(0, 0), 1e-12)
	assert.InDelta(0.25, sInv.At(1, 1), 1e-12)
	assert.InDelta(0.0, sInv.At(0, 1), 1e-12)

	expK := mat.NewDense(3, 2, []float64{
		0.5, 0.0,
		0.0, 0.5,
		0.25, 0.125,
	})
	assert.True(mat.EqualApprox(expK, k, 1e-12))

	// singular innovation covariance
	k, sInv, err = Gain(pxy, mat.NewSymDense(2, []float64{1.0, 1.0, 1.0, 1.0}))
	assert.Nil(k)
	assert.Nil(sInv)
	assert.ErrorIs(err, fusion.ErrSingular)
}

func TestNIS(t *testing.T) {
	assert := assert.New(t)

	inn := mat.NewVecDense(2, []float64{1.0, 2.0})
	sInv := mat.NewSymDense(2, []float64{0.5, 0.0, 0.0, 0.25})

	assert.InDelta(1.5, NIS(inn, sInv), 1e-12)
	assert.Equal(0.0, NIS(mat.NewVecDense(2, nil), sInv))
}
