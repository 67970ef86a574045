package partitions

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionFromNormals(t *testing.T) {
	// 2x1 grid, left column fully clamped
	nx, ny := 2, 1
	normals := make([]float64, 2*(nx+1)*(ny+1))
	for j := 0; j <= ny; j++ {
		for a := 0; a < 2; a++ {
			normals[2*((ny+1)*0+j)+a] = 1
		}
	}
	p, err := FromNormals(normals, nx, ny)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2, 3}, p.Fixed)
	assert.Equal(t, []int{4, 5, 6, 7, 8, 9, 10, 11}, p.Free)
	assert.Equal(t, 12, p.NumDOFs)
	assert.Equal(t, 8, p.NumFree())
	for d := 0; d < 12; d++ {
		assert.Equal(t, d >= 4, p.IsFree(d), "dof %d", d)
	}
	// IndexMap inverts concat(free, fixed)
	order := p.Ordering()
	for k, d := range order {
		assert.Equal(t, k, p.IndexMap[d])
	}
}

func TestPartitionCoversAndDisjoint(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		nx, ny := 1+rng.Intn(6), 1+rng.Intn(6)
		pb := &PartitionBuilder{Nx: nx, Ny: ny}
		pb.Normals = make([]float64, pb.NumDOFs())
		for d := range pb.Normals {
			if rng.Float64() < 0.3 {
				pb.Normals[d] = 1
			}
		}
		pb.Normals[0] = 0 // keep at least one free DOF
		p, err := pb.BuildPartition()
		require.NoError(t, err)

		assert.Equal(t, pb.NumDOFs(), len(p.Free)+len(p.Fixed))
		inFree := make(map[int]bool)
		for _, d := range p.Free {
			inFree[d] = true
		}
		for _, d := range p.Fixed {
			assert.False(t, inFree[d], "dof %d in both sets", d)
		}
		assert.NoError(t, p.Validate())
	}
}

func TestPartitionValidateRejects(t *testing.T) {
	cases := []struct {
		name        string
		free, fixed []int
		ndof        int
	}{
		{"overlap", []int{0, 1, 2}, []int{2}, 4},
		{"missing", []int{0, 1}, []int{3}, 4},
		{"unsorted", []int{1, 0, 2}, []int{3}, 4},
		{"duplicate", []int{0, 0, 2}, []int{3}, 4},
		{"out of range", []int{0, 1, 2}, []int{4}, 4},
		{"empty", nil, nil, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := New(c.free, c.fixed, c.ndof)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPartition))
		})
	}
}

func TestPartitionBuilderErrors(t *testing.T) {
	_, err := FromNormals(make([]float64, 5), 1, 1)
	assert.True(t, errors.Is(err, ErrInvalidPartition))

	all := make([]float64, 8)
	for i := range all {
		all[i] = 1
	}
	_, err = FromNormals(all, 1, 1)
	assert.True(t, errors.Is(err, ErrInvalidPartition))

	_, err = FromNormals(nil, 0, 1)
	assert.True(t, errors.Is(err, ErrInvalidPartition))
}

func TestInversePermutation(t *testing.T) {
	assert.Equal(t, []int{2, 0, 1}, InversePermutation([]int{1, 2, 0}))
	assert.Equal(t, []int{}, InversePermutation([]int{}))
}
