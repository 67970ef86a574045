package element

import (
	"fmt"
	"math"

	"github.com/notargets/gocfd/utils"
)

// Stiffness is the constant local stiffness matrix of a unit Q4 element
type Stiffness struct {
	E, Nu float64

	// K is the 8x8 matrix, Values holds the same entries row-major
	K      utils.Matrix
	Values []float64
}

// stiffnessPattern maps each entry of the 8x8 matrix onto one of the eight
// distinct coefficients of the bilinear element.
var stiffnessPattern = [8][8]int{
	{0, 1, 2, 3, 4, 5, 6, 7},
	{1, 0, 7, 6, 5, 4, 3, 2},
	{2, 7, 0, 5, 6, 3, 4, 1},
	{3, 6, 5, 0, 7, 2, 1, 4},
	{4, 5, 6, 7, 0, 1, 2, 3},
	{5, 4, 3, 2, 1, 0, 7, 6},
	{6, 3, 4, 1, 2, 7, 0, 5},
	{7, 2, 1, 4, 3, 6, 5, 0},
}

// NewStiffness returns the closed form plane-stress stiffness matrix of the
// unit square bilinear element for Young's modulus e and Poisson ratio nu.
func NewStiffness(e, nu float64) (*Stiffness, error) {
	if err := checkMaterial(e, nu); err != nil {
		return nil, err
	}
	k := [8]float64{
		1./2 - nu/6, 1./8 + nu/8, -1./4 - nu/12, -1./8 + 3*nu/8,
		-1./4 + nu/12, -1./8 - nu/8, nu / 6, 1./8 - 3*nu/8,
	}
	scale := e / (1 - nu*nu)
	values := make([]float64, 64)
	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			values[8*i+j] = scale * k[stiffnessPattern[i][j]]
		}
	}
	return newStiffness(e, nu, values), nil
}

func newStiffness(e, nu float64, values []float64) *Stiffness {
	data := make([]float64, len(values))
	copy(data, values)
	return &Stiffness{
		E:      e,
		Nu:     nu,
		K:      utils.NewMatrix(8, 8, data),
		Values: values,
	}
}

// At returns entry (i, j)
func (s *Stiffness) At(i, j int) float64 {
	return s.Values[8*i+j]
}

func checkMaterial(e, nu float64) error {
	if math.IsNaN(e) || math.IsInf(e, 0) || e <= 0 {
		return fmt.Errorf("young's modulus must be finite and positive, got %v", e)
	}
	if math.IsNaN(nu) || nu <= -1 || nu >= 0.5 {
		return fmt.Errorf("poisson ratio must lie in (-1, 0.5), got %v", nu)
	}
	return nil
}
