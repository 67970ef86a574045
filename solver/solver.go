package solver

import (
	"errors"
	"fmt"
	"math"

	"github.com/james-bowman/sparse"
	"github.com/notargets/topopt/partitions"
	"gonum.org/v1/gonum/mat"
)

// ErrIllConditioned is returned when the reduced stiffness matrix cannot be
// factored or solved to a finite result
var ErrIllConditioned = errors.New("ill-conditioned system")

// Factorization is a direct factorization of a reduced system. Symmetric
// systems are stored in band form with bandwidth equal to the largest
// |row-col| of the sparsity pattern and factored by banded Cholesky, so fill
// stays inside the band. Unsymmetric systems fall back to dense LU.
type Factorization struct {
	N         int
	Bandwidth int
	Symmetric bool

	chol mat.BandCholesky
	lu   mat.LU
}

// Bandwidth returns max |i-j| over the stored entries of a
func Bandwidth(a *sparse.CSR) int {
	k := 0
	a.DoNonZero(func(i, j int, _ float64) {
		if d := j - i; d > k {
			k = d
		} else if -d > k {
			k = -d
		}
	})
	return k
}

// Factorize factors the square matrix a. Symmetric matrices must be positive
// definite; anything else is reported as ErrIllConditioned.
func Factorize(a *sparse.CSR, symmetric bool) (*Factorization, error) {
	n, c := a.Dims()
	if n != c {
		return nil, fmt.Errorf("matrix is %dx%d, not square", n, c)
	}
	f := &Factorization{N: n, Symmetric: symmetric}
	if n == 0 {
		return f, nil
	}
	finite := true
	a.DoNonZero(func(_, _ int, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			finite = false
		}
	})
	if !finite {
		return nil, fmt.Errorf("%w: non-finite matrix entry", ErrIllConditioned)
	}

	if !symmetric {
		f.lu.Factorize(a)
		if cond := f.lu.Cond(); math.IsInf(cond, 1) || math.IsNaN(cond) {
			return nil, fmt.Errorf("%w: singular matrix of size %d", ErrIllConditioned, n)
		}
		return f, nil
	}

	f.Bandwidth = Bandwidth(a)
	band := mat.NewSymBandDense(n, f.Bandwidth, nil)
	a.DoNonZero(func(i, j int, v float64) {
		if j >= i {
			band.SetSymBand(i, j, v)
		}
	})
	if ok := f.chol.Factorize(band); !ok {
		return nil, fmt.Errorf("%w: matrix of size %d is not positive definite", ErrIllConditioned, n)
	}
	if cond := f.chol.Cond(); cond > mat.ConditionTolerance || math.IsNaN(cond) {
		return nil, fmt.Errorf("%w: condition number %g", ErrIllConditioned, cond)
	}
	return f, nil
}

// Solve returns x with A x = b
func (f *Factorization) Solve(b []float64) ([]float64, error) {
	return f.solve(b, false)
}

// SolveTranspose returns x with Aᵀ x = b
func (f *Factorization) SolveTranspose(b []float64) ([]float64, error) {
	return f.solve(b, true)
}

func (f *Factorization) solve(b []float64, trans bool) ([]float64, error) {
	if len(b) != f.N {
		return nil, fmt.Errorf("right hand side length %d does not match system size %d", len(b), f.N)
	}
	if f.N == 0 {
		return []float64{}, nil
	}
	var (
		x   mat.VecDense
		err error
		rhs = mat.NewVecDense(f.N, append([]float64(nil), b...))
	)
	if f.Symmetric {
		err = f.chol.SolveVecTo(&x, rhs)
	} else {
		err = f.lu.SolveVecTo(&x, trans, rhs)
	}
	if err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) {
			return nil, fmt.Errorf("%w: condition number %g", ErrIllConditioned, float64(cond))
		}
		return nil, err
	}
	out := x.RawVector().Data
	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite solution at %d", ErrIllConditioned, i)
		}
	}
	return out, nil
}

// Expand pads the free-DOF solution with zeros for the fixed DOFs and puts
// every value back at its global DOF through the partition's index map.
func Expand(uFree []float64, p *partitions.DOFPartition) ([]float64, error) {
	if len(uFree) != p.NumFree() {
		return nil, fmt.Errorf("solution length %d does not match %d free DOFs", len(uFree), p.NumFree())
	}
	padded := make([]float64, p.NumDOFs)
	copy(padded, uFree)
	u := make([]float64, p.NumDOFs)
	for d, pos := range p.IndexMap {
		u[d] = padded[pos]
	}
	return u, nil
}
