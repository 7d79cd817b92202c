package operator

import (
	"errors"
	"fmt"
	"math"

	"qaoa/internal/linalg"
)

const KindProjection = "projection"

// Projection is the rank-one projector P = v v† onto a unit vector v.
type Projection struct {
	v         []complex128
	numQubits int
}

// NewProjection normalizes v and projects onto it.
func NewProjection(v []complex128) (*Projection, error) {
	n, ok := linalg.QubitsFor(len(v))
	if !ok {
		return nil, fmt.Errorf("%w: projection vector length %d is not a power of two", ErrDimension, len(v))
	}
	norm := linalg.Norm(v)
	if norm == 0 || math.IsNaN(norm) {
		return nil, errors.New("projection vector must be nonzero")
	}
	unit := linalg.Clone(v)
	linalg.Scale(complex(1/norm, 0), unit)
	return &Projection{v: unit, numQubits: n}, nil
}

func (p *Projection) Kind() string   { return KindProjection }
func (p *Projection) NumQubits() int { return p.numQubits }

// Vector returns a copy of the unit vector spanning the range of P.
func (p *Projection) Vector() []complex128 {
	return linalg.Clone(p.v)
}

func (p *Projection) Apply(x, out []complex128) {
	s := linalg.Dotc(p.v, x)
	for j, vj := range p.v {
		out[j] = s * vj
	}
}

func (p *Projection) ApplyAdjoint(x, out []complex128) {
	p.Apply(x, out)
}

func (p *Projection) ApplyInverse(_, _ []complex128) error {
	return fmt.Errorf("%w: projection operators have no inverse", ErrUnsupported)
}

func (p *Projection) ApplyAdjointInverse(_, _ []complex128) error {
	return fmt.Errorf("%w: projection operators have no inverse", ErrUnsupported)
}

func (p *Projection) InnerProduct(u, x []complex128) complex128 {
	return linalg.Dotc(p.v, x) * linalg.Dotu(u, p.v)
}

func (p *Projection) ConjInnerProduct(u, x []complex128) complex128 {
	return linalg.Dotc(p.v, x) * linalg.Dotc(u, p.v)
}

func (p *Projection) TrueMinimum() float64 {
	if len(p.v) == 1 {
		return 1
	}
	return 0
}

func (p *Projection) TrueMaximum() float64 { return 1 }

func (p *Projection) Propagator(theta float64) (Propagator, error) {
	return NewPropagator(p, theta)
}

// ProjectionPropagator uses exp(iθP) = I + (e^{iθ} - 1) P.
type ProjectionPropagator struct {
	op    *Projection
	theta float64
	alpha complex128
}

func newProjectionPropagator(op Hermitian, theta float64) (Propagator, error) {
	p, ok := op.(*Projection)
	if !ok {
		return nil, kindMismatchError{want: KindProjection, got: op}
	}
	prop := &ProjectionPropagator{op: p}
	prop.SetControl(theta)
	return prop, nil
}

func (p *ProjectionPropagator) Operator() Hermitian { return p.op }
func (p *ProjectionPropagator) Control() float64    { return p.theta }

func (p *ProjectionPropagator) SetControl(theta float64) {
	p.theta = theta
	s, c := math.Sincos(theta)
	p.alpha = complex(c-1, s)
}

func (p *ProjectionPropagator) Apply(x, out []complex128) {
	p.apply(p.alpha, x, out)
}

func (p *ProjectionPropagator) ApplyAdjoint(x, out []complex128) {
	p.apply(conj(p.alpha), x, out)
}

func (p *ProjectionPropagator) apply(alpha complex128, x, out []complex128) {
	s := alpha * linalg.Dotc(p.op.v, x)
	for j, vj := range p.op.v {
		out[j] = x[j] + s*vj
	}
}

func init() {
	Register(KindProjection, newProjectionPropagator)
}
