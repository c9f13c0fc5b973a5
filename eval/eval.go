package eval

import (
	"fmt"
	"math"

	"github.com/milosgajdos/go-fusion/model"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultConfidence is the chi-square quantile used for NIS consistency checks
const DefaultConfidence = 0.95

// RMSE returns root mean square error of estimates against truths per vector component.
// It returns error if the slices are empty, differ in length or contain vectors of different dimensions.
func RMSE(estimates, truths []mat.Vector) (*mat.VecDense, error) {
	if len(estimates) == 0 || len(estimates) != len(truths) {
		return nil, fmt.Errorf("invalid number of samples: estimates=%d, truths=%d", len(estimates), len(truths))
	}

	dim := estimates[0].Len()
	sum := make([]float64, dim)
	diff := make([]float64, dim)

	for i := range estimates {
		if estimates[i].Len() != dim || truths[i].Len() != dim {
			return nil, fmt.Errorf("invalid sample %d dimensions: %d, %d", i, estimates[i].Len(), truths[i].Len())
		}

		for j := 0; j < dim; j++ {
			diff[j] = estimates[i].AtVec(j) - truths[i].AtVec(j)
		}
		floats.Mul(diff, diff)
		floats.Add(sum, diff)
	}

	floats.Scale(1/float64(len(estimates)), sum)
	for j := range sum {
		sum[j] = math.Sqrt(sum[j])
	}

	return mat.NewVecDense(dim, sum), nil
}

// CartesianState converts CTRV state x to [px, py, vx, vy]
func CartesianState(x mat.Vector) *mat.VecDense {
	v, yaw := x.AtVec(model.V), x.AtVec(model.Yaw)

	return mat.NewVecDense(4, []float64{
		x.AtVec(model.Px),
		x.AtVec(model.Py),
		v * math.Cos(yaw),
		v * math.Sin(yaw),
	})
}

// NISStats summarizes normalized innovation squared samples of a single sensor
type NISStats struct {
	// Dim is measurement dimension: NIS degrees of freedom
	Dim int
	// Samples is number of NIS samples
	Samples int
	// Mean is NIS sample mean; it is close to Dim for a consistent filter
	Mean float64
	// Threshold is the chi-square quantile at DefaultConfidence
	Threshold float64
	// Exceeded is the fraction of samples above Threshold
	Exceeded float64
}

// NewNISStats computes NIS statistics of samples of dim dimensional measurements and returns them.
// It returns error if dim is not positive or there are no samples.
func NewNISStats(dim int, samples []float64) (*NISStats, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid measurement dimension: %d", dim)
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("no NIS samples")
	}

	chi := distuv.ChiSquared{K: float64(dim)}
	threshold := chi.Quantile(DefaultConfidence)

	var above int
	for _, s := range samples {
		if s > threshold {
			above++
		}
	}

	return &NISStats{
		Dim:       dim,
		Samples:   len(samples),
		Mean:      stat.Mean(samples, nil),
		Threshold: threshold,
		Exceeded:  float64(above) / float64(len(samples)),
	}, nil
}

// String implements the Stringer interface.
func (s *NISStats) String() string {
	return fmt.Sprintf("NIS: dim=%d samples=%d mean=%.3f chi2(%.2f)=%.3f exceeded=%.1f%%",
		s.Dim, s.Samples, s.Mean, DefaultConfidence, s.Threshold, 100*s.Exceeded)
}
