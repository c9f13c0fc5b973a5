package noise

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

const zeroDim = 2

func TestNewZero(t *testing.T) {
	assert := assert.New(t)

	z, err := NewZero(zeroDim)
	assert.NotNil(z)
	assert.NoError(err)

	for _, dim := range []int{-10, 0} {
		z, err := NewZero(dim)
		assert.Nil(z)
		assert.Error(err)
	}
}

func TestZeroMeanCov(t *testing.T) {
	assert := assert.New(t)

	for _, dim := range []int{1, 2, 5} {
		z, err := NewZero(dim)
		assert.NoError(err)

		assert.True(mat.Equal(mat.NewSymDense(dim, nil), z.Cov()))
		assert.Equal(make([]float64, dim), z.Mean())
	}
}

func TestZeroCovIsolated(t *testing.T) {
	assert := assert.New(t)

	z, err := NewZero(zeroDim)
	assert.NoError(err)

	cov := z.Cov().(*mat.SymDense)
	cov.SetSym(0, 0, 10.0)
	mean := z.Mean()
	mean[1] = 3.0

	assert.Equal(0.0, z.Cov().At(0, 0))
	assert.Equal([]float64{0, 0}, z.Mean())
}

func TestZeroSampleReset(t *testing.T) {
	assert := assert.New(t)

	z, err := NewZero(zeroDim)
	assert.NoError(err)

	sample1 := z.Sample()
	assert.Equal(zeroDim, sample1.Len())
	assert.True(mat.Equal(mat.NewVecDense(zeroDim, nil), sample1))

	assert.NoError(z.Reset())
	assert.True(mat.Equal(sample1, z.Sample()))
}

func TestZeroString(t *testing.T) {
	assert := assert.New(t)

	str := `Zero{
Mean=[0 0]
Cov=⎡0  0⎤
    ⎣0  0⎦
}`

	z, err := NewZero(zeroDim)
	assert.NoError(err)
	assert.Equal(str, z.String())
}
