package circuit

import (
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"qaoa/internal/graph"
	"qaoa/internal/linalg"
	"qaoa/internal/operator"
)

type dense [][]complex128

func identity(n int) dense {
	m := make(dense, n)
	for i := range m {
		m[i] = make([]complex128, n)
		m[i][i] = 1
	}
	return m
}

func (a dense) mul(b dense) dense {
	n := len(a)
	out := make(dense, n)
	for i := range out {
		out[i] = make([]complex128, n)
		for k := 0; k < n; k++ {
			if a[i][k] == 0 {
				continue
			}
			for j := 0; j < n; j++ {
				out[i][j] += a[i][k] * b[k][j]
			}
		}
	}
	return out
}

func (a dense) apply(v []complex128) []complex128 {
	out := make([]complex128, len(v))
	for i, row := range a {
		for j, x := range row {
			out[i] += x * v[j]
		}
	}
	return out
}

// expI computes exp(iθA) by scaling and squaring a truncated Taylor series.
func expI(a dense, theta float64) dense {
	n := len(a)
	m := make(dense, n)
	var norm float64
	for i := range a {
		m[i] = make([]complex128, n)
		var row float64
		for j := range a[i] {
			m[i][j] = complex(0, theta) * a[i][j]
			row += cmplx.Abs(m[i][j])
		}
		norm = math.Max(norm, row)
	}
	squarings := 0
	for norm > 0.25 {
		norm /= 2
		squarings++
	}
	scale := complex(math.Ldexp(1, -squarings), 0)
	for i := range m {
		for j := range m[i] {
			m[i][j] *= scale
		}
	}
	result := identity(n)
	term := identity(n)
	for k := 1; k <= 24; k++ {
		term = term.mul(m)
		for i := range term {
			for j := range term[i] {
				term[i][j] /= complex(float64(k), 0)
				result[i][j] += term[i][j]
			}
		}
	}
	for ; squarings > 0; squarings-- {
		result = result.mul(result)
	}
	return result
}

// referenceState propagates psi0 through dense exponentials of the
// generators without any caching.
func referenceState(gens []operator.Hermitian, psi0 []complex128, theta []float64) []complex128 {
	psi := linalg.Clone(psi0)
	for k, g := range gens {
		psi = expI(operator.Matrix(g), theta[k]).apply(psi)
	}
	return psi
}

func referenceValue(gens []operator.Hermitian, target operator.Hermitian, psi0 []complex128, theta []float64) float64 {
	psi := referenceState(gens, psi0, theta)
	return operator.Expectation(target, psi)
}

func randomAngles(rng *rand.Rand, n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = rng.Float64() * math.Pi
	}
	return x
}

// randomDirection draws a direction of the given Euclidean length.
func randomDirection(rng *rand.Rand, n int, length float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = rng.NormFloat64()
	}
	floats.Scale(length/floats.Norm(x, 2), x)
	return x
}

func maxCutProblem(t *testing.T, degree, n int, seed int64) *operator.Ising {
	t.Helper()
	g, err := graph.RandomRegular(degree, n, rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	c, err := operator.NewMaxCut(g)
	require.NoError(t, err)
	return c
}

// mixedGenerators returns a three-qubit chain over every operator family
// that has a propagator.
func mixedGenerators(t *testing.T) ([]operator.Hermitian, operator.Hermitian) {
	t.Helper()
	ising, err := operator.NewIsingDense([]float64{0.5, -1, 0.25}, [][]float64{{0, 1, -0.5}, {0, 0, 0.75}, {0, 0, 0}})
	require.NoError(t, err)
	sx, err := operator.NewSumSigmaX(3)
	require.NoError(t, err)
	sy, err := operator.NewSumSigmaY(3)
	require.NoError(t, err)
	proj, err := operator.NewProjection([]complex128{1, 0, 1i, 0, 0, 2, 0, -1})
	require.NoError(t, err)
	ds, err := operator.NewDenseSymmetricRows([][]float64{
		{0, 1, 0, 0, 0, 0, 0, 0},
		{1, 0, 1, 0, 0, 0, 0, 0},
		{0, 1, 0, 1, 0, 0, 0, 0},
		{0, 0, 1, 0, 1, 0, 0, 0},
		{0, 0, 0, 1, 0, 1, 0, 0},
		{0, 0, 0, 0, 1, 0, 1, 0},
		{0, 0, 0, 0, 0, 1, 0, 1},
		{0, 0, 0, 0, 0, 0, 1, 0},
	})
	require.NoError(t, err)
	return []operator.Hermitian{ising, sx, sy, proj, ds, ising, sy}, ising
}
