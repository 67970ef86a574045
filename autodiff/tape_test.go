package autodiff

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// f(x) = sum( (2*x[idx] + 1) * x[idx]^3 )
func buildComposite(t *Tape, x *Node) (*Node, error) {
	g, err := t.Apply(Gather{Index: []int{0, 2, 2, 1}}, x)
	if err != nil {
		return nil, err
	}
	lin, err := t.Apply(Scale{Factor: 2}, g)
	if err != nil {
		return nil, err
	}
	lin, err = t.Apply(Shift{Offset: 1}, lin)
	if err != nil {
		return nil, err
	}
	cube, err := t.Apply(Map{
		Label: "cube",
		F:     func(v float64) float64 { return v * v * v },
		DF:    func(v float64) float64 { return 3 * v * v },
	}, g)
	if err != nil {
		return nil, err
	}
	prod, err := t.Apply(Mul{}, lin, cube)
	if err != nil {
		return nil, err
	}
	return t.Apply(Sum{}, prod)
}

func TestTapeCompositeGradient(t *testing.T) {
	x0 := []float64{0.3, -0.7, 1.1}

	tape := NewTape()
	x := tape.Variable(append([]float64(nil), x0...))
	out, err := buildComposite(tape, x)
	require.NoError(t, err)
	require.NoError(t, tape.Backward(out))

	eval := func(v []float64) float64 {
		tp := NewTape()
		o, err := buildComposite(tp, tp.Constant(v))
		require.NoError(t, err)
		return o.Scalar()
	}

	h := 1.e-6
	for i := range x0 {
		xp := append([]float64(nil), x0...)
		xm := append([]float64(nil), x0...)
		xp[i] += h
		xm[i] -= h
		fd := (eval(xp) - eval(xm)) / (2 * h)
		assert.InDelta(t, fd, x.Grad[i], 1.e-6, "component %d", i)
	}
}

func TestTapeMeanAndPad(t *testing.T) {
	tape := NewTape()
	x := tape.Variable([]float64{1, 2, 3, 4})
	p, err := tape.Apply(Pad{N: 2}, x)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 0, 0}, p.Value)

	m, err := tape.Apply(Mean{}, p)
	require.NoError(t, err)
	assert.InDelta(t, 10./6., m.Scalar(), 1.e-15)

	require.NoError(t, tape.Backward(m))
	assert.InDeltaSlice(t, []float64{1. / 6, 1. / 6, 1. / 6, 1. / 6}, x.Grad, 1.e-15)
}

func TestTapeConstantsReceiveNoGradient(t *testing.T) {
	tape := NewTape()
	x := tape.Variable([]float64{1, 2})
	c := tape.Constant([]float64{3, 5})
	prod, err := tape.Apply(Mul{}, x, c)
	require.NoError(t, err)
	s, err := tape.Apply(Sum{}, prod)
	require.NoError(t, err)
	require.NoError(t, tape.Backward(s))

	assert.Equal(t, []float64{3, 5}, x.Grad)
	assert.Nil(t, c.Grad)
}

func TestTapeBackwardErrors(t *testing.T) {
	tape := NewTape()
	x := tape.Variable([]float64{1, 2})
	err := tape.Backward(x)
	assert.Error(t, err, "non scalar output must be rejected")

	c := tape.Constant([]float64{4})
	assert.Error(t, tape.Backward(c), "output without variables must be rejected")

	noGrad, err := tape.Apply(Map{Label: "abs", F: math.Abs}, x)
	require.NoError(t, err)
	s, err := tape.Apply(Sum{}, noGrad)
	require.NoError(t, err)
	err = tape.Backward(s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGradientNotImplemented))
}

func TestGatherOutOfRange(t *testing.T) {
	tape := NewTape()
	x := tape.Variable([]float64{1, 2})
	_, err := tape.Apply(Gather{Index: []int{2}}, x)
	assert.Error(t, err)
	assert.Equal(t, 1, tape.Len())
}
