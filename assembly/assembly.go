package assembly

import (
	"fmt"
	"sort"

	"github.com/james-bowman/sparse"
	"github.com/notargets/topopt/element"
	"github.com/notargets/topopt/partitions"
)

// Grid is a structured nx by ny grid of unit Q4 elements. Fields defined per
// element are stored row-major with shape (Ny, Nx).
type Grid struct {
	Nx, Ny int
}

func NewGrid(nx, ny int) (Grid, error) {
	if nx <= 0 || ny <= 0 {
		return Grid{}, fmt.Errorf("invalid grid %dx%d", nx, ny)
	}
	return Grid{Nx: nx, Ny: ny}, nil
}

func (g Grid) NumElements() int { return g.Nx * g.Ny }
func (g Grid) NumNodes() int    { return (g.Nx + 1) * (g.Ny + 1) }
func (g Grid) NumDOFs() int     { return 2 * g.NumNodes() }

// FieldIndex returns the row-major position of element (ely, elx)
func (g Grid) FieldIndex(ely, elx int) int { return ely*g.Nx + elx }

// Elements visits every element in assembly order, column by column
// (elx outer, ely inner), passing its assembly number e and field index.
func (g Grid) Elements(fn func(e, field, ely, elx int)) {
	e := 0
	for elx := 0; elx < g.Nx; elx++ {
		for ely := 0; ely < g.Ny; ely++ {
			fn(e, g.FieldIndex(ely, elx), ely, elx)
			e++
		}
	}
}

// ElementDOFs returns the DOF table in field order: row f holds the 8 global
// DOFs of the element at field index f.
func (g Grid) ElementDOFs() [][8]int {
	edofs := make([][8]int, g.NumElements())
	g.Elements(func(_, f, ely, elx int) {
		edofs[f] = element.QuadDOFs(ely, elx, g.Ny)
	})
	return edofs
}

// Triplets is a sparse matrix in coordinate form. Repeated (row, col) pairs
// are summed when the matrix is built.
type Triplets struct {
	Values     []float64
	Rows, Cols []int
}

func (t Triplets) Len() int { return len(t.Values) }

// Pattern returns the row and column indices of the 64 triplets per element,
// in assembly order: element e owns positions 64e..64e+63 and position
// 64e + 8a + b addresses (edof[a], edof[b]).
func Pattern(g Grid) (rows, cols []int) {
	n := 64 * g.NumElements()
	rows = make([]int, n)
	cols = make([]int, n)
	g.Elements(func(e, _, ely, elx int) {
		edof := element.QuadDOFs(ely, elx, g.Ny)
		for a := 0; a < 8; a++ {
			for b := 0; b < 8; b++ {
				k := 64*e + 8*a + b
				rows[k] = edof[a]
				cols[k] = edof[b]
			}
		}
	})
	return
}

// Assemble scales the local stiffness matrix by each element's stiffness
// factor and emits its 64 entries. stiffness is a field of length Nx*Ny.
func Assemble(g Grid, stiffness []float64, ke *element.Stiffness) (Triplets, error) {
	values, err := EntryValues(g, stiffness, ke)
	if err != nil {
		return Triplets{}, err
	}
	rows, cols := Pattern(g)
	return Triplets{Values: values, Rows: rows, Cols: cols}, nil
}

// EntryValues returns only the triplet values of Assemble
func EntryValues(g Grid, stiffness []float64, ke *element.Stiffness) ([]float64, error) {
	if len(stiffness) != g.NumElements() {
		return nil, fmt.Errorf("stiffness field length %d does not match %d elements",
			len(stiffness), g.NumElements())
	}
	values := make([]float64, 64*g.NumElements())
	g.Elements(func(e, f, _, _ int) {
		s := stiffness[f]
		for k, v := range ke.Values {
			values[64*e+k] = s * v
		}
	})
	return values, nil
}

// Reduced is the triplet list restricted to free DOFs and renumbered into the
// reduced system of size N
type Reduced struct {
	N          int
	Values     []float64
	Rows, Cols []int
	Kept       []int // Positions of the kept triplets in the full list
}

// Reduce keeps the triplets whose row and column are both free and maps them
// through the partition's index map. Fixed rows and columns are dropped,
// which eliminates the zero Dirichlet conditions without building the full
// matrix.
func Reduce(t Triplets, p *partitions.DOFPartition) Reduced {
	kept := KeptPositions(t.Rows, t.Cols, p)
	r := Reduced{
		N:      p.NumFree(),
		Values: make([]float64, len(kept)),
		Rows:   make([]int, len(kept)),
		Cols:   make([]int, len(kept)),
		Kept:   kept,
	}
	for k, pos := range kept {
		r.Values[k] = t.Values[pos]
		r.Rows[k] = p.IndexMap[t.Rows[pos]]
		r.Cols[k] = p.IndexMap[t.Cols[pos]]
	}
	return r
}

// KeptPositions returns the positions whose row and column are both free
func KeptPositions(rows, cols []int, p *partitions.DOFPartition) []int {
	kept := make([]int, 0, len(rows))
	for k := range rows {
		if p.IsFree(rows[k]) && p.IsFree(cols[k]) {
			kept = append(kept, k)
		}
	}
	return kept
}

// Matrix builds the reduced system as a CSR matrix
func (r Reduced) Matrix() (*sparse.CSR, error) {
	return NewCSR(r.N, r.Values, r.Rows, r.Cols)
}

// NewCSR sums repeated (row, col) entries and returns an n by n CSR matrix
// with one stored value per distinct position, rows and columns ascending.
func NewCSR(n int, values []float64, rows, cols []int) (*sparse.CSR, error) {
	if len(rows) != len(values) || len(cols) != len(values) {
		return nil, fmt.Errorf("triplet lengths differ: %d values, %d rows, %d cols",
			len(values), len(rows), len(cols))
	}
	order := make([]int, len(values))
	for k := range order {
		if rows[k] < 0 || rows[k] >= n || cols[k] < 0 || cols[k] >= n {
			return nil, fmt.Errorf("triplet %d at (%d,%d) outside %dx%d", k, rows[k], cols[k], n, n)
		}
		order[k] = k
	}
	sort.SliceStable(order, func(a, b int) bool {
		ka, kb := order[a], order[b]
		if rows[ka] != rows[kb] {
			return rows[ka] < rows[kb]
		}
		return cols[ka] < cols[kb]
	})

	var (
		ia   = make([]int, 0, len(order))
		ja   = make([]int, 0, len(order))
		data = make([]float64, 0, len(order))
	)
	for idx, k := range order {
		if idx > 0 {
			prev := order[idx-1]
			if rows[prev] == rows[k] && cols[prev] == cols[k] {
				data[len(data)-1] += values[k]
				continue
			}
		}
		ia = append(ia, rows[k])
		ja = append(ja, cols[k])
		data = append(data, values[k])
	}
	return sparse.NewCOO(n, n, ia, ja, data).ToCSR(), nil
}
