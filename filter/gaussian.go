package filter

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// truncate is the kernel support in standard deviations
const truncate = 4.0

// Gaussian is an isotropic blur of an (Ny, Nx) row-major field with
// reflective boundaries (d c b a | a b c d | d c b a). Width is the minimum
// feature length in elements; the kernel standard deviation is Width/2.
// Widths of 1 or less leave the field unchanged.
type Gaussian struct {
	Width  float64
	Nx, Ny int

	weights []float64 // weights[k] for offsets -radius..radius, sums to 1
}

func New(width float64, nx, ny int) (*Gaussian, error) {
	if math.IsNaN(width) || math.IsInf(width, 0) || width < 0 {
		return nil, fmt.Errorf("filter width must be finite and non-negative, got %v", width)
	}
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("invalid field shape %dx%d", ny, nx)
	}
	g := &Gaussian{Width: width, Nx: nx, Ny: ny}
	if !g.Identity() {
		g.weights = kernel(width / 2)
	}
	return g, nil
}

// Identity reports whether the filter is a no-op
func (g *Gaussian) Identity() bool {
	return g.Width <= 1
}

// Radius returns the kernel half width in elements
func (g *Gaussian) Radius() int {
	if g.Identity() {
		return 0
	}
	return (len(g.weights) - 1) / 2
}

func kernel(sigma float64) []float64 {
	radius := int(truncate*sigma + 0.5)
	w := make([]float64, 2*radius+1)
	for k := -radius; k <= radius; k++ {
		w[k+radius] = math.Exp(-0.5 * float64(k*k) / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(w), w)
	return w
}

// reflect maps an out of range index onto [0,n) by half-sample symmetric
// extension, which is periodic with period 2n.
func reflect(i, n int) int {
	p := 2 * n
	m := i % p
	if m < 0 {
		m += p
	}
	if m >= n {
		m = p - 1 - m
	}
	return m
}

// Apply returns the filtered copy of field
func (g *Gaussian) Apply(field []float64) ([]float64, error) {
	if len(field) != g.Nx*g.Ny {
		return nil, fmt.Errorf("field length %d does not match shape %dx%d", len(field), g.Ny, g.Nx)
	}
	out := make([]float64, len(field))
	copy(out, field)
	if g.Identity() {
		return out, nil
	}
	var (
		radius = g.Radius()
		line   = make([]float64, max(g.Nx, g.Ny))
	)
	// along rows
	for j := 0; j < g.Ny; j++ {
		row := out[j*g.Nx : (j+1)*g.Nx]
		copy(line, row)
		for i := range row {
			var v float64
			for k := -radius; k <= radius; k++ {
				v += g.weights[k+radius] * line[reflect(i+k, g.Nx)]
			}
			row[i] = v
		}
	}
	// along columns
	for i := 0; i < g.Nx; i++ {
		for j := 0; j < g.Ny; j++ {
			line[j] = out[j*g.Nx+i]
		}
		for j := 0; j < g.Ny; j++ {
			var v float64
			for k := -radius; k <= radius; k++ {
				v += g.weights[k+radius] * line[reflect(j+k, g.Ny)]
			}
			out[j*g.Nx+i] = v
		}
	}
	return out, nil
}

func (g *Gaussian) Name() string { return "gaussian_filter" }

func (g *Gaussian) Forward(in [][]float64) ([]float64, error) {
	return g.Apply(in[0])
}

// Backward applies the same filter to the incoming gradient. With reflective
// boundaries and a symmetric kernel the operator is symmetric, so it is its
// own adjoint.
func (g *Gaussian) Backward(_ [][]float64, _, grad []float64, _ []bool) ([][]float64, error) {
	out, err := g.Apply(grad)
	if err != nil {
		return nil, err
	}
	return [][]float64{out}, nil
}
