package compliance

import (
	"math"
	"math/rand"
	"testing"

	"github.com/notargets/topopt/assembly"
	"github.com/notargets/topopt/autodiff"
	"github.com/notargets/topopt/element"
	"github.com/notargets/topopt/filter"
	"github.com/notargets/topopt/material"
	"github.com/notargets/topopt/partitions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSIMP = material.SIMP{E0: 1, Emin: 1.e-9, Penal: 3}

// cantileverModel clamps the left column and pulls down at the bottom right
func cantileverModel(t *testing.T, nx, ny int, width float64) *Model {
	g, err := assembly.NewGrid(nx, ny)
	require.NoError(t, err)
	normals := make([]float64, g.NumDOFs())
	for j := 0; j <= ny; j++ {
		normals[2*element.NodeID(0, j, ny)] = 1
		normals[2*element.NodeID(0, j, ny)+1] = 1
	}
	p, err := partitions.FromNormals(normals, nx, ny)
	require.NoError(t, err)
	forces := make([]float64, g.NumDOFs())
	forces[2*element.NodeID(nx, 0, ny)+1] = -1
	ke, err := element.NewStiffness(1, 0.3)
	require.NoError(t, err)
	f, err := filter.New(width, nx, ny)
	require.NoError(t, err)
	mask := make([]float64, g.NumElements())
	for i := range mask {
		mask[i] = 1
	}
	m, err := NewModel(g, p, ke, testSIMP, f, mask, forces)
	require.NoError(t, err)
	return m
}

func constant(n int, v float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = v
	}
	return x
}

func TestScenarioTwoByOne(t *testing.T) {
	m := cantileverModel(t, 2, 1, 0)
	tp := autodiff.NewTape()
	x := tp.Variable(constant(2, 0.5))
	xPhys, err := m.PhysicalDensity(tp, x)
	require.NoError(t, err)
	u, err := m.Displacement(tp, xPhys)
	require.NoError(t, err)
	require.Len(t, u.Value, m.Grid.NumDOFs())
	for _, d := range m.Partition.Fixed {
		assert.Equal(t, 0., u.Value[d], "fixed dof %d", d)
	}

	tp2 := autodiff.NewTape()
	loss, _, err := m.Evaluate(tp2, tp2.Variable(constant(2, 0.5)))
	require.NoError(t, err)
	c := loss.Scalar()
	assert.False(t, math.IsNaN(c) || math.IsInf(c, 0))
	assert.GreaterOrEqual(t, c, 0.)

	// Compliance is the work of the external load, f.u
	var work float64
	for d, fv := range m.Forces {
		work += fv * u.Value[d]
	}
	assert.InDelta(t, work, c, 1.e-9*math.Max(1, c))

	// The free-function form gives the same number
	c2, err := Compliance(tp, m.Grid, xPhys, u, m.Ke, m.Material)
	require.NoError(t, err)
	assert.InDelta(t, c, c2.Scalar(), 1.e-9*math.Max(1, c))
}

func TestObjectiveGradient(t *testing.T) {
	m := cantileverModel(t, 4, 3, 2)
	rng := rand.New(rand.NewSource(17))
	x0 := make([]float64, m.Grid.NumElements())
	for i := range x0 {
		x0[i] = 0.3 + 0.6*rng.Float64()
	}
	value := func(x []float64) float64 {
		tp := autodiff.NewTape()
		loss, _, err := m.Evaluate(tp, tp.Constant(x))
		require.NoError(t, err)
		return loss.Scalar()
	}

	tp := autodiff.NewTape()
	x := tp.Variable(x0)
	loss, _, err := m.Evaluate(tp, x)
	require.NoError(t, err)
	require.NoError(t, tp.Backward(loss))
	require.Len(t, x.Grad, len(x0))

	for i := range x0 {
		h := 1.e-6
		plus := append([]float64(nil), x0...)
		minus := append([]float64(nil), x0...)
		plus[i] += h
		minus[i] -= h
		fd := (value(plus) - value(minus)) / (2 * h)
		assert.InDelta(t, fd, x.Grad[i], 1.e-4*math.Max(1, math.Abs(fd)), "element %d", i)
		// more material never makes the structure softer
		assert.LessOrEqual(t, x.Grad[i], 1.e-9)
	}
}

func TestVolumeConstraint(t *testing.T) {
	m := cantileverModel(t, 5, 4, 2)
	m.Mask[0] = 0
	m2, err := NewModel(m.Grid, m.Partition, m.Ke, m.Material, m.Filter, m.Mask, m.Forces)
	require.NoError(t, err)

	x0 := constant(m.Grid.NumElements(), 0.4)
	tp := autodiff.NewTape()
	x := tp.Variable(x0)
	c, err := m2.VolumeConstraint(tp, x, 0.4)
	require.NoError(t, err)
	require.NoError(t, tp.Backward(c))

	value := func(x []float64) float64 {
		tp := autodiff.NewTape()
		c, err := m2.VolumeConstraint(tp, tp.Constant(x), 0.4)
		require.NoError(t, err)
		return c.Scalar()
	}
	// constraint is linear in x
	for i := range x0 {
		plus := append([]float64(nil), x0...)
		plus[i] += 1
		assert.InDelta(t, value(plus)-value(x0), x.Grad[i], 1.e-12, "element %d", i)
	}
	assert.Equal(t, 0., x.Grad[0])
}

func TestQuadraticForm(t *testing.T) {
	ke, err := element.NewStiffness(1, 0.3)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(2))
	nelem := 3
	ue := make([]float64, 8*nelem)
	for i := range ue {
		ue[i] = rng.NormFloat64()
	}
	q := QuadraticForm{Ke: ke}
	ce, err := q.Forward([][]float64{ue})
	require.NoError(t, err)
	for f := 0; f < nelem; f++ {
		var want float64
		for i := 0; i < 8; i++ {
			for j := 0; j < 8; j++ {
				want += ue[i*nelem+f] * ke.At(i, j) * ue[j*nelem+f]
			}
		}
		assert.InDelta(t, want, ce[f], 1.e-12)
	}

	g := []float64{1, -2, 0.5}
	grads, err := q.Backward([][]float64{ue}, ce, g, []bool{true})
	require.NoError(t, err)
	for k := range ue {
		h := 1.e-6
		plus := append([]float64(nil), ue...)
		minus := append([]float64(nil), ue...)
		plus[k] += h
		minus[k] -= h
		cp, _ := q.Forward([][]float64{plus})
		cm, _ := q.Forward([][]float64{minus})
		var fd float64
		for f := range g {
			fd += g[f] * (cp[f] - cm[f]) / (2 * h)
		}
		assert.InDelta(t, fd, grads[0][k], 1.e-6)
	}

	_, err = q.Forward([][]float64{make([]float64, 7)})
	assert.Error(t, err)
}

func TestNewModelErrors(t *testing.T) {
	m := cantileverModel(t, 2, 2, 0)
	_, err := NewModel(m.Grid, m.Partition, m.Ke, m.Material, m.Filter, m.Mask[1:], m.Forces)
	assert.Error(t, err)
	_, err = NewModel(m.Grid, m.Partition, m.Ke, m.Material, m.Filter, m.Mask, m.Forces[1:])
	assert.Error(t, err)
	_, err = NewModel(m.Grid, m.Partition, m.Ke, material.SIMP{E0: 1, Emin: 0, Penal: 3}, m.Filter, m.Mask, m.Forces)
	assert.Error(t, err)
	_, err = NewModel(m.Grid, m.Partition, m.Ke, m.Material, m.Filter, constant(4, 0), m.Forces)
	assert.Error(t, err)

	tp := autodiff.NewTape()
	_, _, err = m.Evaluate(tp, tp.Variable(constant(3, 0.5)))
	assert.Error(t, err)
}
