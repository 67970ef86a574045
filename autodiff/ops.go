package autodiff

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Mul is the elementwise product of two equal length inputs
type Mul struct{}

func (Mul) Name() string { return "mul" }

func (Mul) Forward(in [][]float64) ([]float64, error) {
	if len(in) != 2 || len(in[0]) != len(in[1]) {
		return nil, fmt.Errorf("mul needs two equal length inputs")
	}
	return floats.MulTo(make([]float64, len(in[0])), in[0], in[1]), nil
}

func (Mul) Backward(in [][]float64, _, g []float64, needs []bool) ([][]float64, error) {
	grads := make([][]float64, 2)
	if needs[0] {
		grads[0] = floats.MulTo(make([]float64, len(g)), g, in[1])
	}
	if needs[1] {
		grads[1] = floats.MulTo(make([]float64, len(g)), g, in[0])
	}
	return grads, nil
}

// Scale multiplies its input by a constant
type Scale struct {
	Factor float64
}

func (Scale) Name() string { return "scale" }

func (s Scale) Forward(in [][]float64) ([]float64, error) {
	return floats.ScaleTo(make([]float64, len(in[0])), s.Factor, in[0]), nil
}

func (s Scale) Backward(_ [][]float64, _, g []float64, _ []bool) ([][]float64, error) {
	return [][]float64{floats.ScaleTo(make([]float64, len(g)), s.Factor, g)}, nil
}

// Shift adds a constant to every element
type Shift struct {
	Offset float64
}

func (Shift) Name() string { return "shift" }

func (s Shift) Forward(in [][]float64) ([]float64, error) {
	out := make([]float64, len(in[0]))
	copy(out, in[0])
	floats.AddConst(s.Offset, out)
	return out, nil
}

func (Shift) Backward(_ [][]float64, _, g []float64, _ []bool) ([][]float64, error) {
	out := make([]float64, len(g))
	copy(out, g)
	return [][]float64{out}, nil
}

// Sum reduces its input to a scalar
type Sum struct{}

func (Sum) Name() string { return "sum" }

func (Sum) Forward(in [][]float64) ([]float64, error) {
	return []float64{floats.Sum(in[0])}, nil
}

func (Sum) Backward(in [][]float64, _, g []float64, _ []bool) ([][]float64, error) {
	out := make([]float64, len(in[0]))
	for i := range out {
		out[i] = g[0]
	}
	return [][]float64{out}, nil
}

// Mean reduces its input to its arithmetic mean
type Mean struct{}

func (Mean) Name() string { return "mean" }

func (Mean) Forward(in [][]float64) ([]float64, error) {
	if len(in[0]) == 0 {
		return nil, fmt.Errorf("mean of an empty vector")
	}
	return []float64{floats.Sum(in[0]) / float64(len(in[0]))}, nil
}

func (Mean) Backward(in [][]float64, _, g []float64, _ []bool) ([][]float64, error) {
	n := len(in[0])
	out := make([]float64, n)
	for i := range out {
		out[i] = g[0] / float64(n)
	}
	return [][]float64{out}, nil
}

// Gather selects out[k] = in[Index[k]]. Repeated indices are allowed; their
// gradients are summed on the way back.
type Gather struct {
	Index []int
}

func (Gather) Name() string { return "gather" }

func (op Gather) Forward(in [][]float64) ([]float64, error) {
	src := in[0]
	out := make([]float64, len(op.Index))
	for k, i := range op.Index {
		if i < 0 || i >= len(src) {
			return nil, fmt.Errorf("gather index %d out of range [0,%d)", i, len(src))
		}
		out[k] = src[i]
	}
	return out, nil
}

func (op Gather) Backward(in [][]float64, _, g []float64, _ []bool) ([][]float64, error) {
	out := make([]float64, len(in[0]))
	for k, i := range op.Index {
		out[i] += g[k]
	}
	return [][]float64{out}, nil
}

// Pad appends N zeros to its input
type Pad struct {
	N int
}

func (Pad) Name() string { return "pad" }

func (op Pad) Forward(in [][]float64) ([]float64, error) {
	out := make([]float64, len(in[0])+op.N)
	copy(out, in[0])
	return out, nil
}

func (Pad) Backward(in [][]float64, _, g []float64, _ []bool) ([][]float64, error) {
	out := make([]float64, len(in[0]))
	copy(out, g[:len(in[0])])
	return [][]float64{out}, nil
}

// Map applies a scalar function and its derivative elementwise
type Map struct {
	Label string
	F     func(float64) float64
	DF    func(float64) float64
}

func (m Map) Name() string { return m.Label }

func (m Map) Forward(in [][]float64) ([]float64, error) {
	out := make([]float64, len(in[0]))
	for i, v := range in[0] {
		out[i] = m.F(v)
	}
	return out, nil
}

func (m Map) Backward(in [][]float64, _, g []float64, _ []bool) ([][]float64, error) {
	if m.DF == nil {
		return nil, ErrGradientNotImplemented
	}
	out := make([]float64, len(g))
	for i, v := range in[0] {
		out[i] = g[i] * m.DF(v)
	}
	return [][]float64{out}, nil
}
