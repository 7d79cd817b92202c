package operator

import (
	"fmt"
)

// Matrix2 is a 2x2 complex matrix in row-major order.
type Matrix2 [2][2]complex128

func (m Matrix2) adjoint() Matrix2 {
	return Matrix2{
		{conj(m[0][0]), conj(m[1][0])},
		{conj(m[0][1]), conj(m[1][1])},
	}
}

func (m Matrix2) inverse() (Matrix2, bool) {
	det := m[0][0]*m[1][1] - m[0][1]*m[1][0]
	if det == 0 {
		return Matrix2{}, false
	}
	return Matrix2{
		{m[1][1] / det, -m[0][1] / det},
		{-m[1][0] / det, m[0][0] / det},
	}, true
}

func conj(z complex128) complex128 {
	return complex(real(z), -imag(z))
}

// Kronecker is the n-fold tensor product K ⊗ K ⊗ ... ⊗ K of one 2x2
// matrix. It is a building block for per-qubit propagators and is not
// Hermitian in general.
type Kronecker struct {
	K         Matrix2
	numQubits int
}

func NewKronecker(k Matrix2, numQubits int) (*Kronecker, error) {
	if numQubits <= 0 {
		return nil, fmt.Errorf("%w: kronecker product needs at least one qubit", ErrDimension)
	}
	return &Kronecker{K: k, numQubits: numQubits}, nil
}

func (k *Kronecker) NumQubits() int {
	return k.numQubits
}

func (k *Kronecker) Apply(v, out []complex128) {
	applyKron(k.K, k.numQubits, v, out)
}

func (k *Kronecker) ApplyAdjoint(v, out []complex128) {
	applyKron(k.K.adjoint(), k.numQubits, v, out)
}

func (k *Kronecker) ApplyInverse(v, out []complex128) error {
	inv, ok := k.K.inverse()
	if !ok {
		return fmt.Errorf("%w: singular kronecker factor", ErrUnsupported)
	}
	applyKron(inv, k.numQubits, v, out)
	return nil
}

func (k *Kronecker) ApplyAdjointInverse(v, out []complex128) error {
	inv, ok := k.K.adjoint().inverse()
	if !ok {
		return fmt.Errorf("%w: singular kronecker factor", ErrUnsupported)
	}
	applyKron(inv, k.numQubits, v, out)
	return nil
}

// applyKron applies m to every qubit in turn, in place on out.
func applyKron(m Matrix2, numQubits int, v, out []complex128) {
	copy(out, v)
	size := len(out)
	for q := 0; q < numQubits; q++ {
		bit := 1 << q
		for i := 0; i < size; i++ {
			if i&bit != 0 {
				continue
			}
			j := i | bit
			a, b := out[i], out[j]
			out[i] = m[0][0]*a + m[0][1]*b
			out[j] = m[1][0]*a + m[1][1]*b
		}
	}
}
