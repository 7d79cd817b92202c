package landscape

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qaoa/internal/circuit"
	"qaoa/internal/operator"
)

type funcObjective struct {
	dim int
	f   func([]float64) float64
}

func (o funcObjective) NumStages() int { return o.dim }

func (o funcObjective) Value(theta []float64) (float64, error) {
	return o.f(theta), nil
}

// trig is exactly representable with at least three nodes per axis.
func trig(theta []float64) float64 {
	return math.Sin(2*theta[0])*math.Sin(4*theta[1]) + 0.5*math.Sin(6*theta[0])*math.Sin(2*theta[1])
}

func TestFitRecoversSineSeries(t *testing.T) {
	s, err := Fit(context.Background(), funcObjective{dim: 2, f: trig}, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, s.Points())
	assert.Equal(t, 2, s.Dim())

	coeffs := s.Coefficients()
	require.Len(t, coeffs, 25)
	// coefficient (k0, k1) sits at k0*5 + k1
	assert.InDelta(t, 1.0, coeffs[0*5+1], 1e-12)
	assert.InDelta(t, 0.5, coeffs[2*5+0], 1e-12)
	for i, c := range coeffs {
		if i != 1 && i != 10 {
			assert.InDelta(t, 0, c, 1e-12, "coefficient %d", i)
		}
	}

	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 10; i++ {
		theta := []float64{rng.Float64() * math.Pi / 2, rng.Float64() * math.Pi / 2}
		got, err := s.Eval(theta)
		require.NoError(t, err)
		assert.InDelta(t, trig(theta), got, 1e-12)
	}
}

func TestValuesOnFittingGridReproduceSamples(t *testing.T) {
	problem, err := operator.NewIsingDense([]float64{0.5, -1}, [][]float64{{0, 1}, {1, 0}})
	require.NoError(t, err)
	q, err := circuit.NewQAOA(1, problem, nil, circuit.Options{})
	require.NoError(t, err)

	s, err := Fit(context.Background(), q, 6)
	require.NoError(t, err)
	values, err := s.Values(6)
	require.NoError(t, err)
	samples := s.Samples()
	require.Len(t, values, len(samples))
	for i := range samples {
		assert.InDelta(t, samples[i], values[i], 1e-10, "node %d", i)
	}

	grid, err := Grid(6, 2)
	require.NoError(t, err)
	for _, i := range []int{0, 7, 20, 35} {
		v, err := q.Value(grid[i])
		require.NoError(t, err)
		assert.InDelta(t, v, samples[i], 1e-12)
		e, err := s.Eval(grid[i])
		require.NoError(t, err)
		assert.InDelta(t, v, e, 1e-10)
	}
}

func TestValuesOnFinerGridMatchEval(t *testing.T) {
	s, err := Fit(context.Background(), funcObjective{dim: 2, f: func(x []float64) float64 {
		return math.Cos(x[0]) * x[1] * (math.Pi/2 - x[1])
	}}, 4)
	require.NoError(t, err)

	values, err := s.Values(9)
	require.NoError(t, err)
	grid, err := Grid(9, 2)
	require.NoError(t, err)
	require.Len(t, values, 81)
	for i, theta := range grid {
		e, err := s.Eval(theta)
		require.NoError(t, err)
		assert.InDelta(t, e, values[i], 1e-10, "node %d", i)
	}
}

func TestFitErrors(t *testing.T) {
	_, err := Fit(context.Background(), nil, 3)
	require.Error(t, err)

	_, err = Fit(context.Background(), funcObjective{dim: 2, f: trig}, 0)
	require.Error(t, err)

	_, err = Fit(context.Background(), funcObjective{dim: 30, f: trig}, 4)
	require.ErrorContains(t, err, "exceeds")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Fit(ctx, funcObjective{dim: 1, f: trig}, 3)
	require.True(t, errors.Is(err, context.Canceled))

	s, err := Fit(context.Background(), funcObjective{dim: 2, f: trig}, 3)
	require.NoError(t, err)
	_, err = s.Eval([]float64{1})
	require.Error(t, err)
	_, err = s.Values(2)
	require.Error(t, err)
}
