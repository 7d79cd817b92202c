package operator

import (
	"fmt"
	"math"

	"qaoa/internal/linalg"
)

const KindDiagonal = "diagonal"

// Diagonal is a real diagonal operator D = diag(d).
type Diagonal struct {
	data      []float64
	numQubits int
}

func NewDiagonal(d []float64) (*Diagonal, error) {
	n, ok := linalg.QubitsFor(len(d))
	if !ok {
		return nil, fmt.Errorf("%w: diagonal length %d is not a power of two", ErrDimension, len(d))
	}
	return &Diagonal{data: append([]float64(nil), d...), numQubits: n}, nil
}

func (d *Diagonal) Kind() string {
	return KindDiagonal
}

func (d *Diagonal) NumQubits() int {
	return d.numQubits
}

// Data returns a copy of the diagonal entries.
func (d *Diagonal) Data() []float64 {
	return append([]float64(nil), d.data...)
}

func (d *Diagonal) diagonal() []float64 {
	return d.data
}

func (d *Diagonal) Apply(v, out []complex128) {
	for k, x := range d.data {
		out[k] = complex(x, 0) * v[k]
	}
}

func (d *Diagonal) ApplyAdjoint(v, out []complex128) {
	d.Apply(v, out)
}

func (d *Diagonal) ApplyInverse(v, out []complex128) error {
	for k, x := range d.data {
		if x == 0 {
			return fmt.Errorf("%w: diagonal entry %d is zero", ErrUnsupported, k)
		}
	}
	for k, x := range d.data {
		out[k] = v[k] / complex(x, 0)
	}
	return nil
}

func (d *Diagonal) ApplyAdjointInverse(v, out []complex128) error {
	return d.ApplyInverse(v, out)
}

func (d *Diagonal) InnerProduct(u, v []complex128) complex128 {
	var s complex128
	for k, x := range d.data {
		s += u[k] * complex(x, 0) * v[k]
	}
	return s
}

func (d *Diagonal) ConjInnerProduct(u, v []complex128) complex128 {
	var s complex128
	for k, x := range d.data {
		uk := u[k]
		s += complex(real(uk), -imag(uk)) * complex(x, 0) * v[k]
	}
	return s
}

func (d *Diagonal) TrueMinimum() float64 {
	m := math.Inf(1)
	for _, x := range d.data {
		m = math.Min(m, x)
	}
	return m
}

func (d *Diagonal) TrueMaximum() float64 {
	m := math.Inf(-1)
	for _, x := range d.data {
		m = math.Max(m, x)
	}
	return m
}

func (d *Diagonal) Propagator(theta float64) (Propagator, error) {
	return NewPropagator(d, theta)
}

type diagonalSource interface {
	Hermitian
	diagonal() []float64
}

// DiagonalPropagator applies exp(iθ d_k) elementwise.
type DiagonalPropagator struct {
	op    diagonalSource
	theta float64
	phase []complex128
}

func newDiagonalPropagator(op Hermitian, theta float64) (Propagator, error) {
	src, ok := op.(diagonalSource)
	if !ok {
		return nil, kindMismatchError{want: KindDiagonal, got: op}
	}
	p := &DiagonalPropagator{op: src, phase: make([]complex128, len(src.diagonal()))}
	p.SetControl(theta)
	return p, nil
}

func (p *DiagonalPropagator) Operator() Hermitian {
	return p.op
}

func (p *DiagonalPropagator) Control() float64 {
	return p.theta
}

func (p *DiagonalPropagator) SetControl(theta float64) {
	p.theta = theta
	for k, x := range p.op.diagonal() {
		s, c := math.Sincos(theta * x)
		p.phase[k] = complex(c, s)
	}
}

func (p *DiagonalPropagator) Apply(v, out []complex128) {
	for k, ph := range p.phase {
		out[k] = ph * v[k]
	}
}

func (p *DiagonalPropagator) ApplyAdjoint(v, out []complex128) {
	for k, ph := range p.phase {
		out[k] = complex(real(ph), -imag(ph)) * v[k]
	}
}

func init() {
	Register(KindDiagonal, newDiagonalPropagator)
	Register(KindIsing, newDiagonalPropagator)
}
