package fd

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMatchesClassicalStencils(t *testing.T) {
	two, err := New(2)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 0}, two.Offsets)
	assert.InDeltaSlice(t, []float64{-1, 1}, two.Weights, 1e-12)

	three, err := New(3)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 1}, three.Offsets)
	assert.InDeltaSlice(t, []float64{-0.5, 0.5}, three.Weights, 1e-12)

	five, err := ForOrder(4)
	require.NoError(t, err)
	assert.Equal(t, []float64{-2, -1, 1, 2}, five.Offsets)
	assert.InDeltaSlice(t, []float64{1.0 / 12, -2.0 / 3, 2.0 / 3, -1.0 / 12}, five.Weights, 1e-12)
}

func TestWeightsSecondDerivative(t *testing.T) {
	w, err := Weights([]float64{-1, 0, 1}, 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, -2, 1}, w, 1e-12)

	_, err = Weights([]float64{0, 1}, 2)
	assert.Error(t, err)
}

func TestCheckScalarConvergesAtStencilOrder(t *testing.T) {
	fun := func(x []float64) (float64, error) {
		return math.Sin(x[0]) * math.Exp(x[1]), nil
	}
	x := []float64{0.3, -0.2}
	v := []float64{1, 0.5}
	exact := math.Cos(x[0])*math.Exp(x[1])*v[0] + math.Sin(x[0])*math.Exp(x[1])*v[1]

	res, err := CheckScalar(fun, exact, x, v, []float64{1e-1, 1e-2, 1e-3}, Central())
	require.NoError(t, err)
	// second order: each decade of h gains two decades of accuracy
	assert.Less(t, res[1], res[0]/50)
	assert.Less(t, res[2], res[1]/50)

	res, err = CheckScalar(fun, exact, x, v, []float64{1e-1, 1e-2, 1e-3}, Backward())
	require.NoError(t, err)
	assert.Less(t, res[1], res[0]/5)
	assert.Greater(t, res[2], res[1]/50)
}

func TestCheckComplexLinearFunctionIsExact(t *testing.T) {
	fun := func(x []float64) ([]complex128, error) {
		return []complex128{complex(2*x[0], -x[0]), complex(0, 3*x[0])}, nil
	}
	res, err := CheckComplex(fun, []complex128{2 - 1i, 3i}, []float64{0.7}, []float64{1}, Steps(4), Central())
	require.NoError(t, err)
	for _, r := range res {
		assert.Less(t, r, 1e-9)
	}
}

func TestMinAndSteps(t *testing.T) {
	steps := Steps(3)
	assert.InDeltaSlice(t, []float64{1, 0.1, 0.01}, steps, 1e-15)
	m, i := Min([]float64{3, 1, 2})
	assert.Equal(t, 1.0, m)
	assert.Equal(t, 1, i)
}
