package matrix

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// NormalizeFunc wraps angular components of v in place
type NormalizeFunc func(v *mat.VecDense)

// NormalizeAngle wraps angle a into (-Pi, Pi].
func NormalizeAngle(a float64) float64 {
	if a > -math.Pi && a <= math.Pi {
		return a
	}

	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}

	a -= math.Pi
	if a <= -math.Pi {
		return math.Pi
	}

	return a
}

// WeightedMean returns the weighted sum of the columns of x.
// It panics if the number of columns of x does not match the length of w.
func WeightedMean(x mat.Matrix, w mat.Vector) *mat.VecDense {
	rows, _ := x.Dims()
	mean := mat.NewVecDense(rows, nil)
	mean.MulVec(x, w)

	return mean
}

// WeightedCov returns the weighted sum of outer products of the residuals between the columns of x and mean.
// If norm is not nil each residual is normalized with it before being squared.
func WeightedCov(x mat.Matrix, mean mat.Vector, w mat.Vector, norm NormalizeFunc) *mat.SymDense {
	rows, cols := x.Dims()

	cov := mat.NewSymDense(rows, nil)
	d := mat.NewVecDense(rows, nil)

	for c := 0; c < cols; c++ {
		residual(d, x, c, mean, norm)
		cov.SymRankOne(cov, w.AtVec(c), d)
	}

	return cov
}

// WeightedCrossCov returns the weighted sum of outer products of the residuals of the columns of x and y
// from their respective means. Residuals are normalized with xNorm and yNorm when they are not nil.
func WeightedCrossCov(x mat.Matrix, xMean mat.Vector, xNorm NormalizeFunc,
	y mat.Matrix, yMean mat.Vector, yNorm NormalizeFunc, w mat.Vector) *mat.Dense {
	xRows, cols := x.Dims()
	yRows, _ := y.Dims()

	cov := mat.NewDense(xRows, yRows, nil)
	dx := mat.NewVecDense(xRows, nil)
	dy := mat.NewVecDense(yRows, nil)

	for c := 0; c < cols; c++ {
		residual(dx, x, c, xMean, xNorm)
		residual(dy, y, c, yMean, yNorm)
		cov.RankOne(cov, w.AtVec(c), dx, dy)
	}

	return cov
}

func residual(dst *mat.VecDense, x mat.Matrix, c int, mean mat.Vector, norm NormalizeFunc) {
	rows, _ := x.Dims()
	for r := 0; r < rows; r++ {
		dst.SetVec(r, x.At(r, c)-mean.AtVec(r))
	}

	if norm != nil {
		norm(dst)
	}
}

// Symmetrize returns the symmetric part (a + a^T)/2 of a square matrix a.
// It panics if a is not square.
func Symmetrize(a mat.Matrix) *mat.SymDense {
	r, c := a.Dims()
	if r != c {
		panic(mat.ErrShape)
	}

	s := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			s.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}

	return s
}

// IsSymmetric returns true if a is square and a(i,j) and a(j,i) differ by at most tol.
func IsSymmetric(a mat.Matrix, tol float64) bool {
	r, c := a.Dims()
	if r != c {
		return false
	}

	for i := 0; i < r; i++ {
		for j := i + 1; j < r; j++ {
			if math.Abs(a.At(i, j)-a.At(j, i)) > tol {
				return false
			}
		}
	}

	return true
}

// IsFinite returns true if no element of a is NaN or infinite.
func IsFinite(a mat.Matrix) bool {
	r, c := a.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := a.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}

	return true
}

// IsPSD returns true if all eigenvalues of a are greater than -tol.
// It returns false if the eigen decomposition fails.
func IsPSD(a mat.Symmetric, tol float64) bool {
	var eig mat.EigenSym
	if ok := eig.Factorize(a, false); !ok {
		return false
	}

	for _, v := range eig.Values(nil) {
		if v < -tol {
			return false
		}
	}

	return true
}
