package assembly

import (
	"fmt"

	"github.com/notargets/topopt/element"
)

// Values is EntryValues as an autodiff primitive: the single input is the
// element stiffness field, the output the 64*nelem triplet values in assembly
// order.
type Values struct {
	Grid Grid
	Ke   *element.Stiffness
}

func (v Values) Name() string { return "assemble" }

func (v Values) Forward(in [][]float64) ([]float64, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("assemble needs one input, got %d", len(in))
	}
	return EntryValues(v.Grid, in[0], v.Ke)
}

func (v Values) Backward(_ [][]float64, _, g []float64, _ []bool) ([][]float64, error) {
	ds := make([]float64, v.Grid.NumElements())
	v.Grid.Elements(func(e, f, _, _ int) {
		var sum float64
		for k, kv := range v.Ke.Values {
			sum += g[64*e+k] * kv
		}
		ds[f] = sum
	})
	return [][]float64{ds}, nil
}
