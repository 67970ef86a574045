package filter

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func randomField(rng *rand.Rand, n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = rng.Float64()
	}
	return v
}

func TestFilterIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	x := randomField(rng, 6*4)
	for _, w := range []float64{0, 0.5, 1} {
		g, err := New(w, 6, 4)
		require.NoError(t, err)
		assert.True(t, g.Identity())
		y, err := g.Apply(x)
		require.NoError(t, err)
		assert.Equal(t, x, y)
	}
}

func TestFilterAdjoint(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	shapes := []struct {
		nx, ny int
		width  float64
	}{
		{8, 5, 2},
		{13, 7, 3.5},
		{3, 2, 20}, // kernel much wider than the field
		{1, 9, 4},
	}
	for _, s := range shapes {
		t.Run(fmt.Sprintf("%dx%d_w%.1f", s.ny, s.nx, s.width), func(t *testing.T) {
			g, err := New(s.width, s.nx, s.ny)
			require.NoError(t, err)
			for trial := 0; trial < 5; trial++ {
				x := randomField(rng, s.nx*s.ny)
				v := randomField(rng, s.nx*s.ny)
				fx, err := g.Apply(x)
				require.NoError(t, err)
				fv, err := g.Apply(v)
				require.NoError(t, err)
				assert.InDelta(t, floats.Dot(fx, v), floats.Dot(x, fv), 1.e-12)
			}
		})
	}
}

func TestFilterPreservesConstantsAndMass(t *testing.T) {
	g, err := New(3, 9, 6)
	require.NoError(t, err)
	c := make([]float64, 54)
	for i := range c {
		c[i] = 0.4
	}
	y, err := g.Apply(c)
	require.NoError(t, err)
	assert.InDeltaSlice(t, c, y, 1.e-14)

	// each column of the operator sums to one, so the mean is preserved
	rng := rand.New(rand.NewSource(3))
	x := randomField(rng, 54)
	y, err = g.Apply(x)
	require.NoError(t, err)
	assert.InDelta(t, floats.Sum(x), floats.Sum(y), 1.e-12)
}

func TestFilterSmoothsImpulse(t *testing.T) {
	g, err := New(2, 9, 9)
	require.NoError(t, err)
	assert.Equal(t, 4, g.Radius())
	x := make([]float64, 81)
	x[4*9+4] = 1
	y, err := g.Apply(x)
	require.NoError(t, err)
	assert.Less(t, y[4*9+4], 1.)
	assert.Greater(t, y[4*9+5], 0.)
	// isotropic: symmetric about the impulse
	assert.InDelta(t, y[4*9+3], y[4*9+5], 1.e-15)
	assert.InDelta(t, y[3*9+4], y[4*9+3], 1.e-15)
}

func TestFilterBackwardIsForward(t *testing.T) {
	g, err := New(2.5, 5, 4)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(11))
	grad := randomField(rng, 20)
	back, err := g.Backward(nil, nil, grad, []bool{true})
	require.NoError(t, err)
	fwd, err := g.Apply(grad)
	require.NoError(t, err)
	assert.Equal(t, fwd, back[0])
}

func TestFilterErrors(t *testing.T) {
	_, err := New(-1, 3, 3)
	assert.Error(t, err)
	_, err = New(2, 0, 3)
	assert.Error(t, err)
	g, err := New(2, 3, 3)
	require.NoError(t, err)
	_, err = g.Apply(make([]float64, 8))
	assert.Error(t, err)
}
