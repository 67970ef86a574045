package partitions

import (
	"fmt"
)

// PartitionBuilder constructs a DOF partition from per-node boundary flags
type PartitionBuilder struct {
	// Grid size in elements; the node grid is (Nx+1) x (Ny+1)
	Nx, Ny int

	// Normals holds one flag per node and axis, shape (Nx+1, Ny+1, 2) raveled
	// row-major, so node (i, j) axis a sits at 2*((Ny+1)*i+j)+a. A nonzero
	// flag fixes that DOF.
	Normals []float64
}

// FromNormals is shorthand for building a partition from boundary flags
func FromNormals(normals []float64, nx, ny int) (*DOFPartition, error) {
	pb := &PartitionBuilder{Nx: nx, Ny: ny, Normals: normals}
	return pb.BuildPartition()
}

// NumDOFs returns 2*(Nx+1)*(Ny+1)
func (pb *PartitionBuilder) NumDOFs() int {
	return 2 * (pb.Nx + 1) * (pb.Ny + 1)
}

// BuildPartition collects fixed DOFs in increasing order and takes the
// complement as the free set
func (pb *PartitionBuilder) BuildPartition() (*DOFPartition, error) {
	if pb.Nx <= 0 || pb.Ny <= 0 {
		return nil, fmt.Errorf("%w: invalid grid %dx%d", ErrInvalidPartition, pb.Nx, pb.Ny)
	}
	ndof := pb.NumDOFs()
	if len(pb.Normals) != ndof {
		return nil, fmt.Errorf("%w: normals length %d does not match %d DOFs",
			ErrInvalidPartition, len(pb.Normals), ndof)
	}

	var free, fixed []int
	for d, flag := range pb.Normals {
		if flag != 0 {
			fixed = append(fixed, d)
		} else {
			free = append(free, d)
		}
	}
	if len(free) == 0 {
		return nil, fmt.Errorf("%w: every DOF is fixed", ErrInvalidPartition)
	}

	p, err := New(free, fixed, ndof)
	if err != nil {
		return nil, fmt.Errorf("invalid partition from normals: %w", err)
	}
	return p, nil
}
