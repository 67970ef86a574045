package compliance

import (
	"fmt"

	"github.com/notargets/gocfd/utils"
	"github.com/notargets/topopt/assembly"
	"github.com/notargets/topopt/autodiff"
	"github.com/notargets/topopt/element"
	"github.com/notargets/topopt/filter"
	"github.com/notargets/topopt/material"
	"github.com/notargets/topopt/partitions"
	"github.com/notargets/topopt/solver"
	"gonum.org/v1/gonum/floats"
)

// Model holds everything that stays fixed across evaluations of one problem:
// the grid, the DOF partition, the element matrix, the material law, the
// filter, the design mask and the load vector. Index patterns of the reduced
// system are computed once here; values are rebuilt on every evaluation.
type Model struct {
	Grid      assembly.Grid
	Partition *partitions.DOFPartition
	Ke        *element.Stiffness
	Material  material.SIMP
	Filter    *filter.Gaussian
	Mask      []float64
	Forces    []float64
	Symmetric bool

	kept         []int
	rows, cols   []int
	freeForces   []float64
	elementDOFs  []int
	maskFraction float64
}

func NewModel(g assembly.Grid, p *partitions.DOFPartition, ke *element.Stiffness,
	simp material.SIMP, f *filter.Gaussian, mask, forces []float64) (*Model, error) {
	switch {
	case p == nil || ke == nil || f == nil:
		return nil, fmt.Errorf("model needs a partition, an element matrix and a filter")
	case len(mask) != g.NumElements():
		return nil, fmt.Errorf("mask length %d does not match %d elements", len(mask), g.NumElements())
	case len(forces) != g.NumDOFs():
		return nil, fmt.Errorf("force vector length %d does not match %d DOFs", len(forces), g.NumDOFs())
	case p.NumDOFs != g.NumDOFs():
		return nil, fmt.Errorf("partition covers %d DOFs, grid has %d", p.NumDOFs, g.NumDOFs())
	case f.Nx != g.Nx || f.Ny != g.Ny:
		return nil, fmt.Errorf("filter shape %dx%d does not match grid %dx%d", f.Nx, f.Ny, g.Nx, g.Ny)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := simp.Validate(); err != nil {
		return nil, err
	}
	m := &Model{
		Grid:      g,
		Partition: p,
		Ke:        ke,
		Material:  simp,
		Filter:    f,
		Mask:      mask,
		Forces:    forces,
		Symmetric: true,
	}
	if m.maskFraction = floats.Sum(mask) / float64(len(mask)); m.maskFraction <= 0 {
		return nil, fmt.Errorf("mask has no design area")
	}

	rows, cols := assembly.Pattern(g)
	m.kept = assembly.KeptPositions(rows, cols, p)
	m.rows = make([]int, len(m.kept))
	m.cols = make([]int, len(m.kept))
	for k, pos := range m.kept {
		m.rows[k] = p.IndexMap[rows[pos]]
		m.cols[k] = p.IndexMap[cols[pos]]
	}
	m.freeForces = make([]float64, p.NumFree())
	for k, d := range p.Free {
		m.freeForces[k] = forces[d]
	}
	m.elementDOFs = ElementDOFIndex(g)
	return m, nil
}

// ElementDOFIndex returns the gather index that lays the element DOF vectors
// out as an 8 x nelem matrix: position i*nelem + f holds local DOF i of the
// element at field index f.
func ElementDOFIndex(g assembly.Grid) []int {
	nelem := g.NumElements()
	idx := make([]int, 8*nelem)
	for f, edof := range g.ElementDOFs() {
		for i, d := range edof {
			idx[i*nelem+f] = d
		}
	}
	return idx
}

// PhysicalDensity records x_phys = filter(mask * x)
func (m *Model) PhysicalDensity(t *autodiff.Tape, x *autodiff.Node) (*autodiff.Node, error) {
	if len(x.Value) != m.Grid.NumElements() {
		return nil, fmt.Errorf("design length %d does not match %d elements",
			len(x.Value), m.Grid.NumElements())
	}
	masked, err := t.Apply(autodiff.Mul{}, x, t.Constant(m.Mask))
	if err != nil {
		return nil, err
	}
	return t.Apply(m.Filter, masked)
}

// Displacement records the full DOF displacement for x_phys: SIMP moduli,
// triplet values, the kept free-free entries, the reduced solve and the
// expansion back to global DOFs.
func (m *Model) Displacement(t *autodiff.Tape, xPhys *autodiff.Node) (*autodiff.Node, error) {
	steps := []autodiff.Primitive{
		m.Material.Primitive(),
		assembly.Values{Grid: m.Grid, Ke: m.Ke},
		autodiff.Gather{Index: m.kept},
	}
	n := xPhys
	var err error
	for _, p := range steps {
		if n, err = t.Apply(p, n); err != nil {
			return nil, err
		}
	}
	solve := solver.NewSolveCOO(m.rows, m.cols, m.Partition.NumFree(), m.Symmetric)
	if n, err = t.Apply(solve, n, t.Constant(m.freeForces)); err != nil {
		return nil, err
	}
	for _, p := range solver.ExpandPrimitive(m.Partition.IndexMap, len(m.Partition.Fixed)) {
		if n, err = t.Apply(p, n); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Evaluate records the full compliance graph for the design x and returns the
// scalar loss together with the x_phys node.
func (m *Model) Evaluate(t *autodiff.Tape, x *autodiff.Node) (loss, xPhys *autodiff.Node, err error) {
	if xPhys, err = m.PhysicalDensity(t, x); err != nil {
		return nil, nil, err
	}
	u, err := m.Displacement(t, xPhys)
	if err != nil {
		return nil, nil, err
	}
	if loss, err = m.compliance(t, xPhys, u); err != nil {
		return nil, nil, err
	}
	return loss, xPhys, nil
}

func (m *Model) compliance(t *autodiff.Tape, xPhys, u *autodiff.Node) (*autodiff.Node, error) {
	ue, err := t.Apply(autodiff.Gather{Index: m.elementDOFs}, u)
	if err != nil {
		return nil, err
	}
	ce, err := t.Apply(QuadraticForm{Ke: m.Ke}, ue)
	if err != nil {
		return nil, err
	}
	e, err := t.Apply(m.Material.Primitive(), xPhys)
	if err != nil {
		return nil, err
	}
	c, err := t.Apply(autodiff.Mul{}, e, ce)
	if err != nil {
		return nil, err
	}
	return t.Apply(autodiff.Sum{}, c)
}

// Compliance records sum_e E(x_phys[e]) u_e^T ke u_e for a displacement u
// over the grid g.
func Compliance(t *autodiff.Tape, g assembly.Grid, xPhys, u *autodiff.Node,
	ke *element.Stiffness, simp material.SIMP) (*autodiff.Node, error) {
	m := &Model{Grid: g, Ke: ke, Material: simp, elementDOFs: ElementDOFIndex(g)}
	return m.compliance(t, xPhys, u)
}

// VolumeConstraint records mean(x_phys)/mean(mask) - density. The design is
// feasible when the value is at most the constraint tolerance.
func (m *Model) VolumeConstraint(t *autodiff.Tape, x *autodiff.Node, density float64) (*autodiff.Node, error) {
	xPhys, err := m.PhysicalDensity(t, x)
	if err != nil {
		return nil, err
	}
	steps := []autodiff.Primitive{
		autodiff.Mean{},
		autodiff.Scale{Factor: 1 / m.maskFraction},
		autodiff.Shift{Offset: -density},
	}
	n := xPhys
	for _, p := range steps {
		if n, err = t.Apply(p, n); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// QuadraticForm maps the element DOF matrix U (8 x nelem, row-major) to the
// per-element energies u_e^T ke u_e.
type QuadraticForm struct {
	Ke *element.Stiffness
}

func (QuadraticForm) Name() string { return "quadratic_form" }

func (q QuadraticForm) Forward(in [][]float64) ([]float64, error) {
	U, nelem, err := q.elementMatrix(in)
	if err != nil {
		return nil, err
	}
	KU := q.Ke.K.Mul(U)
	ce := make([]float64, nelem)
	for i := 0; i < 8; i++ {
		for f := 0; f < nelem; f++ {
			ce[f] += U.At(i, f) * KU.At(i, f)
		}
	}
	return ce, nil
}

func (q QuadraticForm) Backward(in [][]float64, _, g []float64, _ []bool) ([][]float64, error) {
	U, nelem, err := q.elementMatrix(in)
	if err != nil {
		return nil, err
	}
	KU := q.Ke.K.Mul(U)
	KtU := q.Ke.K.Transpose().Mul(U)
	dU := make([]float64, 8*nelem)
	for i := 0; i < 8; i++ {
		for f := 0; f < nelem; f++ {
			dU[i*nelem+f] = g[f] * (KU.At(i, f) + KtU.At(i, f))
		}
	}
	return [][]float64{dU}, nil
}

func (q QuadraticForm) elementMatrix(in [][]float64) (U utils.Matrix, nelem int, err error) {
	if len(in) != 1 || len(in[0])%8 != 0 || len(in[0]) == 0 {
		err = fmt.Errorf("quadratic form needs one 8 x nelem input")
		return
	}
	nelem = len(in[0]) / 8
	data := make([]float64, len(in[0]))
	copy(data, in[0])
	U = utils.NewMatrix(8, nelem, data)
	return
}
