package element

type Dimensionality uint8

const (
	D1 Dimensionality = iota
	D2
	D3
)

type ElementGeometry uint8

const (
	Line ElementGeometry = iota
	Rectangle
)

// ElementProperties contains metadata describing an element type
type ElementProperties struct {
	Name         string          // Full descriptive name
	ShortName    string          // Abbreviated name (e.g., "Q4")
	Type         ElementGeometry // Element shape
	Np           int             // Number of nodes
	DOFsPerNode  int             // Displacement components per node
	NDOF         int             // Np * DOFsPerNode
	Dimensions   Dimensionality
	PlaneStress  bool
	UnitGeometry bool // Element is the unit square, no geometric transform
}

// Quad4 describes the bilinear unit-square plane-stress element used on the
// structured grid. Local nodes run counter-clockwise from the (0,0) corner:
//
//	n4 ---- n3
//	|        |
//	n1 ---- n2
//
// and the 8 local DOFs are [x1 y1 x2 y2 x3 y3 x4 y4].
var Quad4 = ElementProperties{
	Name:         "Bilinear Quadrilateral Plane Stress",
	ShortName:    "Q4",
	Type:         Rectangle,
	Np:           4,
	DOFsPerNode:  2,
	NDOF:         8,
	Dimensions:   D2,
	PlaneStress:  true,
	UnitGeometry: true,
}

// NodeID numbers grid nodes column by column: node (i, j), with i the column
// 0..nx and j the row 0..ny, has id (ny+1)*i + j.
func NodeID(i, j, ny int) int {
	return (ny+1)*i + j
}

// QuadNodes returns the global node ids of the element at grid row ely and
// column elx, in local node order n1..n4.
func QuadNodes(ely, elx, ny int) [4]int {
	n1 := NodeID(elx, ely, ny)
	n2 := NodeID(elx+1, ely, ny)
	return [4]int{n1, n2, n2 + 1, n1 + 1}
}

// QuadDOFs returns the 8 global DOF indices of the element at grid row ely
// and column elx, x before y for every node.
func QuadDOFs(ely, elx, ny int) (edof [8]int) {
	for a, n := range QuadNodes(ely, elx, ny) {
		edof[2*a] = 2 * n
		edof[2*a+1] = 2*n + 1
	}
	return
}
