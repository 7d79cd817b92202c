// Package linalg holds the complex vector kernels shared by operators and
// circuit stages. All kernels assume unit stride and equal lengths.
package linalg

import (
	"math"

	"gonum.org/v1/gonum/blas/cblas128"
)

func vec(x []complex128) cblas128.Vector {
	return cblas128.Vector{N: len(x), Inc: 1, Data: x}
}

// Dotc returns sum(conj(u[i]) * v[i]).
func Dotc(u, v []complex128) complex128 {
	if len(u) == 0 {
		return 0
	}
	return cblas128.Dotc(vec(u), vec(v))
}

// Dotu returns sum(u[i] * v[i]) without conjugation.
func Dotu(u, v []complex128) complex128 {
	if len(u) == 0 {
		return 0
	}
	return cblas128.Dotu(vec(u), vec(v))
}

// Axpy computes y += alpha*x.
func Axpy(alpha complex128, x, y []complex128) {
	if len(x) == 0 {
		return
	}
	cblas128.Axpy(alpha, vec(x), vec(y))
}

// Scale computes x *= alpha.
func Scale(alpha complex128, x []complex128) {
	if len(x) == 0 {
		return
	}
	cblas128.Scal(alpha, vec(x))
}

// Copy copies src into dst.
func Copy(dst, src []complex128) {
	copy(dst, src)
}

// Add computes y += x.
func Add(x, y []complex128) {
	for i := range x {
		y[i] += x[i]
	}
}

func Zero(x []complex128) {
	for i := range x {
		x[i] = 0
	}
}

// Norm returns the Euclidean norm of x.
func Norm(x []complex128) float64 {
	if len(x) == 0 {
		return 0
	}
	return cblas128.Nrm2(vec(x))
}

// Distance returns the Euclidean norm of x - y.
func Distance(x, y []complex128) float64 {
	var s float64
	for i := range x {
		d := x[i] - y[i]
		s += real(d)*real(d) + imag(d)*imag(d)
	}
	return math.Sqrt(s)
}

// Uniform returns the equal superposition 1/sqrt(N) over N = 2^numQubits
// basis states.
func Uniform(numQubits int) []complex128 {
	n := 1 << numQubits
	amp := complex(1/math.Sqrt(float64(n)), 0)
	v := make([]complex128, n)
	for i := range v {
		v[i] = amp
	}
	return v
}

// Clone returns a copy of x.
func Clone(x []complex128) []complex128 {
	return append([]complex128(nil), x...)
}

// QubitsFor returns n such that 2^n == length, or false when length is not
// a positive power of two.
func QubitsFor(length int) (int, bool) {
	if length <= 0 || length&(length-1) != 0 {
		return 0, false
	}
	n := 0
	for 1<<n < length {
		n++
	}
	return n, true
}
