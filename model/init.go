package model

import (
	"gonum.org/v1/gonum/mat"
)

// InitCond implements fusion.InitCond
type InitCond struct {
	state *mat.VecDense
	cov   *mat.SymDense
}

// NewInitCond creates new InitCond and returns it
func NewInitCond(state mat.Vector, cov mat.Symmetric) *InitCond {
	s := &mat.VecDense{}
	s.CloneFromVec(state)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	return &InitCond{
		state: s,
		cov:   c,
	}
}

// DefaultInitCond returns CTRV initial condition used before the first measurement arrives.
// The state is non-zero so the first sigma points are not degenerate.
func DefaultInitCond() *InitCond {
	state := mat.NewVecDense(StateDim, []float64{0.1, 0.1, 0.1, 0.1, 0.01})
	cov := mat.NewSymDense(StateDim, nil)
	for i, v := range []float64{0.2, 0.2, 0.2, 0.3, 0.3} {
		cov.SetSym(i, i, v)
	}

	return &InitCond{
		state: state,
		cov:   cov,
	}
}

// State returns initial state
func (c *InitCond) State() mat.Vector {
	state := mat.NewVecDense(c.state.Len(), nil)
	state.CopyVec(c.state)

	return state
}

// Cov returns initial covariance
func (c *InitCond) Cov() mat.Symmetric {
	cov := mat.NewSymDense(c.cov.SymmetricDim(), nil)
	cov.CopySym(c.cov)

	return cov
}
