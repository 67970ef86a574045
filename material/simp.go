package material

import (
	"fmt"
	"math"

	"github.com/notargets/topopt/autodiff"
)

// SIMP interpolates Young's modulus from physical density,
// E(ρ) = Emin + ρ^Penal (E0 - Emin).
type SIMP struct {
	E0    float64 // Solid modulus
	Emin  float64 // Void modulus, strictly positive to keep the system SPD
	Penal float64 // Penalization exponent
}

// Validate checks the interpolation is monotone and keeps every element stiff
func (s SIMP) Validate() error {
	switch {
	case math.IsNaN(s.Emin) || s.Emin <= 0:
		return fmt.Errorf("young_min must be strictly positive, got %v", s.Emin)
	case math.IsNaN(s.E0) || math.IsInf(s.E0, 0) || s.E0 <= s.Emin:
		return fmt.Errorf("young %v must be finite and exceed young_min %v", s.E0, s.Emin)
	case math.IsNaN(s.Penal) || math.IsInf(s.Penal, 0) || s.Penal < 1:
		// dE/dρ is unbounded at ρ = 0 below one
		return fmt.Errorf("penalization exponent must be at least 1, got %v", s.Penal)
	}
	return nil
}

func (s SIMP) Young(rho float64) float64 {
	return s.Emin + math.Pow(rho, s.Penal)*(s.E0-s.Emin)
}

// Derivative returns dE/dρ
func (s SIMP) Derivative(rho float64) float64 {
	return s.Penal * math.Pow(rho, s.Penal-1) * (s.E0 - s.Emin)
}

// Stiffness maps a density field to per-element moduli
func (s SIMP) Stiffness(rho []float64) []float64 {
	out := make([]float64, len(rho))
	for i, r := range rho {
		out[i] = s.Young(r)
	}
	return out
}

// Primitive returns the interpolation as a differentiable elementwise map
func (s SIMP) Primitive() autodiff.Primitive {
	return autodiff.Map{
		Label: "simp",
		F:     s.Young,
		DF:    s.Derivative,
	}
}
