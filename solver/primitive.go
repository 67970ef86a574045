package solver

import (
	"fmt"

	"github.com/notargets/topopt/assembly"
	"github.com/notargets/topopt/autodiff"
)

// SolveCOO solves A u = b for A given as triplet values over a fixed (Rows,
// Cols) pattern of size N. Its inputs are [entries, b]. The index pattern is
// part of the primitive, not an input, so it is never differentiated.
//
// A SolveCOO value is meant for a single tape: Forward keeps the
// factorization so the reverse pass can reuse it.
type SolveCOO struct {
	Rows, Cols []int
	N          int
	Symmetric  bool

	fact *Factorization
}

func NewSolveCOO(rows, cols []int, n int, symmetric bool) *SolveCOO {
	return &SolveCOO{Rows: rows, Cols: cols, N: n, Symmetric: symmetric}
}

func (s *SolveCOO) Name() string { return "solve_coo" }

func (s *SolveCOO) Forward(in [][]float64) ([]float64, error) {
	if len(in) != 2 {
		return nil, fmt.Errorf("solve_coo needs [entries, b], got %d inputs", len(in))
	}
	entries, b := in[0], in[1]
	a, err := assembly.NewCSR(s.N, entries, s.Rows, s.Cols)
	if err != nil {
		return nil, err
	}
	if s.fact, err = Factorize(a, s.Symmetric); err != nil {
		return nil, err
	}
	return s.fact.Solve(b)
}

// Backward returns d(loss)/d(entries). With λ the solution of Aᵀ λ = ḡ, the
// sensitivity of entry k at (i, j) is -λ[i] u[j]. A gradient with respect to
// b is not provided.
func (s *SolveCOO) Backward(in [][]float64, u, g []float64, needs []bool) ([][]float64, error) {
	if needs[1] {
		return nil, fmt.Errorf("solve_coo with respect to the right hand side: %w",
			autodiff.ErrGradientNotImplemented)
	}
	grads := make([][]float64, 2)
	if !needs[0] {
		return grads, nil
	}
	if s.fact == nil {
		a, err := assembly.NewCSR(s.N, in[0], s.Rows, s.Cols)
		if err != nil {
			return nil, err
		}
		if s.fact, err = Factorize(a, s.Symmetric); err != nil {
			return nil, err
		}
	}
	var (
		lambda []float64
		err    error
	)
	if s.Symmetric {
		lambda, err = s.fact.Solve(g)
	} else {
		lambda, err = s.fact.SolveTranspose(g)
	}
	if err != nil {
		return nil, fmt.Errorf("adjoint solve: %w", err)
	}
	dA := make([]float64, len(in[0]))
	for k := range dA {
		dA[k] = -lambda[s.Rows[k]] * u[s.Cols[k]]
	}
	grads[0] = dA
	return grads, nil
}

// ExpandPrimitive is Expand as a differentiable gather: zeros are appended
// for the fixed DOFs and the result is indexed by the partition's index map.
func ExpandPrimitive(indexMap []int, nFixed int) []autodiff.Primitive {
	return []autodiff.Primitive{
		autodiff.Pad{N: nFixed},
		autodiff.Gather{Index: indexMap},
	}
}
