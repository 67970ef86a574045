package partitions

import (
	"errors"
	"fmt"
)

// ErrInvalidPartition marks a DOF partition that is not a sorted, disjoint
// cover of all DOFs
var ErrInvalidPartition = errors.New("invalid DOF partition")

// DOFPartition splits the global degrees of freedom into free DOFs, which are
// solved for, and fixed DOFs, which carry a zero Dirichlet condition.
type DOFPartition struct {
	NumDOFs int

	// Sorted, disjoint, and together covering 0..NumDOFs-1
	Free  []int
	Fixed []int

	// IndexMap is the inverse permutation of concat(Free, Fixed): global DOF
	// d sits at position IndexMap[d] of the free-then-fixed ordering, so d is
	// free exactly when IndexMap[d] < len(Free).
	IndexMap []int
}

// New validates free and fixed against ndof and builds the index map
func New(free, fixed []int, ndof int) (*DOFPartition, error) {
	p := &DOFPartition{
		NumDOFs: ndof,
		Free:    free,
		Fixed:   fixed,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.IndexMap = InversePermutation(p.Ordering())
	return p, nil
}

// Ordering returns concat(Free, Fixed)
func (p *DOFPartition) Ordering() []int {
	order := make([]int, 0, len(p.Free)+len(p.Fixed))
	order = append(order, p.Free...)
	return append(order, p.Fixed...)
}

// NumFree returns the size of the reduced system
func (p *DOFPartition) NumFree() int { return len(p.Free) }

// IsFree reports whether global DOF d is solved for
func (p *DOFPartition) IsFree(d int) bool {
	return p.IndexMap[d] < len(p.Free)
}

// Validate checks that Free and Fixed are sorted without duplicates, disjoint,
// and cover every DOF. It must pass before any solve.
func (p *DOFPartition) Validate() error {
	if p.NumDOFs <= 0 {
		return fmt.Errorf("%w: no degrees of freedom (%d)", ErrInvalidPartition, p.NumDOFs)
	}
	if n := len(p.Free) + len(p.Fixed); n != p.NumDOFs {
		return fmt.Errorf("%w: %d free + %d fixed != %d DOFs",
			ErrInvalidPartition, len(p.Free), len(p.Fixed), p.NumDOFs)
	}
	seen := make([]bool, p.NumDOFs)
	for _, set := range []struct {
		name string
		dofs []int
	}{{"free", p.Free}, {"fixed", p.Fixed}} {
		for k, d := range set.dofs {
			if d < 0 || d >= p.NumDOFs {
				return fmt.Errorf("%w: %s DOF %d out of range [0,%d)",
					ErrInvalidPartition, set.name, d, p.NumDOFs)
			}
			if k > 0 && d <= set.dofs[k-1] {
				return fmt.Errorf("%w: %s DOFs not strictly increasing at position %d",
					ErrInvalidPartition, set.name, k)
			}
			if seen[d] {
				return fmt.Errorf("%w: DOF %d is both free and fixed", ErrInvalidPartition, d)
			}
			seen[d] = true
		}
	}
	// Length check plus no repeats means every DOF was seen
	return nil
}

// InversePermutation returns inv with inv[indices[k]] = k
func InversePermutation(indices []int) []int {
	inv := make([]int, len(indices))
	for k, i := range indices {
		inv[i] = k
	}
	return inv
}
