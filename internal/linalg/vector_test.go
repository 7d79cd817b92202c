package linalg

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDotcConjugatesLeftOperand(t *testing.T) {
	u := []complex128{1i, 2}
	v := []complex128{1i, 1}
	assert.Equal(t, complex(3, 0), Dotc(u, v))
	assert.Equal(t, complex(1, 0), Dotu(u, v))
}

func TestAxpyScaleAdd(t *testing.T) {
	x := []complex128{1, 1i}
	y := []complex128{2, 2}
	Axpy(1i, x, y)
	assert.Equal(t, []complex128{2 + 1i, 1}, y)

	Scale(2, y)
	assert.Equal(t, []complex128{4 + 2i, 2}, y)

	Add(x, y)
	assert.Equal(t, []complex128{5 + 2i, 2 + 1i}, y)
}

func TestUniformIsNormalized(t *testing.T) {
	for n := 0; n <= 6; n++ {
		v := Uniform(n)
		require.Len(t, v, 1<<n)
		assert.InDelta(t, 1.0, Norm(v), 1e-14)
	}
}

func TestQubitsFor(t *testing.T) {
	cases := []struct {
		length int
		want   int
		ok     bool
	}{
		{1, 0, true},
		{2, 1, true},
		{16, 4, true},
		{0, 0, false},
		{12, 0, false},
		{-4, 0, false},
	}
	for _, c := range cases {
		got, ok := QubitsFor(c.length)
		assert.Equal(t, c.ok, ok, "length %d", c.length)
		if c.ok {
			assert.Equal(t, c.want, got, "length %d", c.length)
		}
	}
}

func TestDistance(t *testing.T) {
	assert.InDelta(t, math.Sqrt(2), Distance([]complex128{1, 1i}, []complex128{0, 0}), 1e-15)
}
