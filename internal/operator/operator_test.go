package operator

import (
	"errors"
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qaoa/internal/graph"
	"qaoa/internal/linalg"
)

func randomVector(rng *rand.Rand, n int) []complex128 {
	v := make([]complex128, n)
	for i := range v {
		v[i] = complex(rng.NormFloat64(), rng.NormFloat64())
	}
	return v
}

func testOperators(t *testing.T) map[string]Hermitian {
	t.Helper()
	diag, err := NewDiagonal([]float64{0.5, -1, 2, 0.25, 3, -2, 1, 0})
	require.NoError(t, err)
	ising, err := NewIsingDense([]float64{0.3, -0.7, 1.1}, [][]float64{{0, 1, -0.5}, {0, 0, 2}, {0, 0, 0}})
	require.NoError(t, err)
	sx, err := NewSumSigmaX(3)
	require.NoError(t, err)
	sy, err := NewSumSigmaY(3)
	require.NoError(t, err)
	proj, err := NewProjection([]complex128{1, 1i, 0, 2, -1, 0.5, 0, 1 - 1i})
	require.NoError(t, err)
	dense, err := NewDenseSymmetricRows([][]float64{
		{1, 0.5, 0, 0, 0, 0, 0, 0.2},
		{0.5, -1, 0.3, 0, 0, 0, 0, 0},
		{0, 0.3, 2, 0, 0, 0, 0, 0},
		{0, 0, 0, 0, 1, 0, 0, 0},
		{0, 0, 0, 1, 0, 0, 0, 0},
		{0, 0, 0, 0, 0, 0.7, 0.1, 0},
		{0, 0, 0, 0, 0, 0.1, -0.4, 0},
		{0.2, 0, 0, 0, 0, 0, 0, 1.5},
	})
	require.NoError(t, err)
	return map[string]Hermitian{
		"diagonal":   diag,
		"ising":      ising,
		"sigma_x":    sx,
		"sigma_y":    sy,
		"projection": proj,
		"dense":      dense,
	}
}

func TestOperatorsAreHermitian(t *testing.T) {
	for name, op := range testOperators(t) {
		t.Run(name, func(t *testing.T) {
			m := Matrix(op)
			for i := range m {
				for j := range m {
					assert.InDelta(t, 0, cmplx.Abs(m[i][j]-cmplx.Conj(m[j][i])), 1e-12, "entry (%d,%d)", i, j)
				}
			}
		})
	}
}

func TestInnerProductsMatchApply(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for name, op := range testOperators(t) {
		t.Run(name, func(t *testing.T) {
			n := Dimension(op)
			u, v := randomVector(rng, n), randomVector(rng, n)
			av := make([]complex128, n)
			op.Apply(v, av)
			assert.InDelta(t, 0, cmplx.Abs(op.InnerProduct(u, v)-linalg.Dotu(u, av)), 1e-10)
			assert.InDelta(t, 0, cmplx.Abs(op.ConjInnerProduct(u, v)-linalg.Dotc(u, av)), 1e-10)
		})
	}
}

func TestPropagatorsAreUnitaryExponentials(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	const theta, h = 0.37, 1e-5
	for name, op := range testOperators(t) {
		t.Run(name, func(t *testing.T) {
			n := Dimension(op)
			v := randomVector(rng, n)
			prop, err := op.Propagator(theta)
			require.NoError(t, err)
			assert.Equal(t, theta, prop.Control())
			assert.Same(t, op, prop.Operator())

			uv := make([]complex128, n)
			back := make([]complex128, n)
			prop.Apply(v, uv)
			assert.InDelta(t, linalg.Norm(v), linalg.Norm(uv), 1e-12)
			prop.ApplyAdjoint(uv, back)
			assert.InDelta(t, 0, linalg.Distance(v, back), 1e-12)

			// d/dθ U(θ)v = iA U(θ)v
			plus := make([]complex128, n)
			minus := make([]complex128, n)
			prop.SetControl(theta + h)
			prop.Apply(v, plus)
			prop.SetControl(theta - h)
			prop.Apply(v, minus)
			prop.SetControl(theta)

			want := make([]complex128, n)
			op.Apply(uv, want)
			linalg.Scale(1i, want)
			fd := make([]complex128, n)
			for i := range fd {
				fd[i] = (plus[i] - minus[i]) / complex(2*h, 0)
			}
			assert.Less(t, linalg.Distance(fd, want), 1e-6)
		})
	}
}

func TestIsingDenseFieldsAndCouplings(t *testing.T) {
	cases := []struct {
		name string
		h    []float64
		j    [][]float64
		want []float64
	}{
		{name: "fields", h: []float64{-1, 2}, want: []float64{1, -3, 3, -1}},
		{
			name: "couplings",
			j:    [][]float64{{0, 3, -1}, {0, 0, -2}, {0, 0, 0}},
			want: []float64{0, 6, -2, -4, -4, -2, 6, 0},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			op, err := NewIsingDense(tc.h, tc.j)
			require.NoError(t, err)
			assert.Equal(t, tc.want, op.Data())
		})
	}
}

func TestIsingSparseTerms(t *testing.T) {
	fields, err := NewIsing(4, []Field{{Qubit: 0, Value: 1}, {Qubit: 3, Value: -1}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 2, 0, 2, 0, 2, 0, 2, -2, 0, -2, 0, -2, 0, -2, 0}, fields.Data())

	couplings, err := NewIsing(3, nil, []Coupling{{I: 0, J: 1, Weight: 0.25}, {I: 0, J: 2, Weight: -1}, {I: 1, J: 2, Weight: 0.75}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5, -2, 1.5, 1.5, -2, 0.5, 0}, couplings.Data())

	_, err = NewIsing(2, []Field{{Qubit: 2, Value: 1}}, nil)
	assert.ErrorIs(t, err, ErrDimension)
}

func TestMaxCutMatchesCutValues(t *testing.T) {
	g, err := graph.RandomRegular(3, 6, rand.New(rand.NewSource(6714)))
	require.NoError(t, err)
	op, err := NewMaxCut(g)
	require.NoError(t, err)

	// sum over edges of Z_i Z_j = |E| - 2 cut(k)
	edges := float64(len(g.Edges))
	for k, e := range op.Data() {
		assert.Equal(t, edges-2*g.CutValue(k), e, "basis state %d", k)
	}
	assert.Equal(t, edges, op.TrueMaximum())
}

func TestDiagonalInverseRejectsZeroEntry(t *testing.T) {
	op, err := NewDiagonal([]float64{1, 0})
	require.NoError(t, err)
	out := make([]complex128, 2)
	assert.ErrorIs(t, op.ApplyInverse([]complex128{1, 1}, out), ErrUnsupported)

	_, err = NewDiagonal([]float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrDimension)
}

func TestProjectionHasNoInverse(t *testing.T) {
	op, err := NewProjection([]complex128{3, 4})
	require.NoError(t, err)
	out := make([]complex128, 2)
	assert.ErrorIs(t, op.ApplyInverse([]complex128{1, 0}, out), ErrUnsupported)
	assert.ErrorIs(t, op.ApplyAdjointInverse([]complex128{1, 0}, out), ErrUnsupported)
	assert.InDelta(t, 1, linalg.Norm(op.Vector()), 1e-15)
	assert.Equal(t, 0.0, op.TrueMinimum())
	assert.Equal(t, 1.0, op.TrueMaximum())
}

func TestKroneckerInverseRoundTrip(t *testing.T) {
	k, err := NewKronecker(Matrix2{{2, 1i}, {0, 1}}, 3)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(5))
	v := randomVector(rng, 8)
	kv := make([]complex128, 8)
	back := make([]complex128, 8)
	k.Apply(v, kv)
	require.NoError(t, k.ApplyInverse(kv, back))
	assert.InDelta(t, 0, linalg.Distance(v, back), 1e-12)

	k.ApplyAdjoint(v, kv)
	require.NoError(t, k.ApplyAdjointInverse(kv, back))
	assert.InDelta(t, 0, linalg.Distance(v, back), 1e-12)

	singular, err := NewKronecker(Matrix2{{1, 1}, {1, 1}}, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, singular.ApplyInverse([]complex128{1, 0}, kv[:2]), ErrUnsupported)
}

func TestSumHasNoPropagator(t *testing.T) {
	sx, err := NewSumSigmaX(2)
	require.NoError(t, err)
	sy, err := NewSumSigmaY(2)
	require.NoError(t, err)
	sum, err := NewSum([]Hermitian{sx, sy}, []float64{1, 0.5})
	require.NoError(t, err)

	_, err = sum.Propagator(0.1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoPropagator))

	v := []complex128{1, 0, 0, 0}
	out := make([]complex128, 4)
	sum.Apply(v, out)
	// X1+X2 and 0.5(Y1+Y2) on |00>
	assert.InDelta(t, 0, cmplx.Abs(out[1]-(1+0.5i)), 1e-15)
	assert.InDelta(t, 0, cmplx.Abs(out[2]-(1+0.5i)), 1e-15)
}

func TestDenseSymmetricExtremes(t *testing.T) {
	op, err := NewDenseSymmetricRows([][]float64{{2, 1}, {1, 2}})
	require.NoError(t, err)
	assert.InDelta(t, 1, op.TrueMinimum(), 1e-12)
	assert.InDelta(t, 3, op.TrueMaximum(), 1e-12)

	_, err = NewDenseSymmetricRows([][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}})
	assert.ErrorIs(t, err, ErrDimension)
}

func TestRegisteredKinds(t *testing.T) {
	kinds := RegisteredKinds()
	for _, kind := range []string{KindDiagonal, KindIsing, KindSumSigmaX, KindSumSigmaY, KindProjection, KindDenseSymmetric} {
		assert.Contains(t, kinds, kind)
	}
	assert.NotContains(t, kinds, KindSum)
}

func TestExpectationOfUniformState(t *testing.T) {
	sx, err := NewSumSigmaX(4)
	require.NoError(t, err)
	assert.InDelta(t, 4, Expectation(sx, linalg.Uniform(4)), 1e-12)
	assert.False(t, math.IsNaN(Expectation(sx, linalg.Uniform(4))))
}
