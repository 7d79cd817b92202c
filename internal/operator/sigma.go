package operator

import (
	"errors"
	"math"
)

const (
	KindSumSigmaX = "sum_sigma_x"
	KindSumSigmaY = "sum_sigma_y"
)

// SumSigmaX is the transverse-field driver sum_j X_j.
type SumSigmaX struct {
	numQubits int
}

func NewSumSigmaX(numQubits int) (*SumSigmaX, error) {
	if numQubits <= 0 {
		return nil, errors.New("sum sigma x needs at least one qubit")
	}
	return &SumSigmaX{numQubits: numQubits}, nil
}

func (s *SumSigmaX) Kind() string   { return KindSumSigmaX }
func (s *SumSigmaX) NumQubits() int { return s.numQubits }

func (s *SumSigmaX) Apply(v, out []complex128) {
	for j := range out {
		var acc complex128
		for q := 0; q < s.numQubits; q++ {
			acc += v[j^(1<<q)]
		}
		out[j] = acc
	}
}

func (s *SumSigmaX) ApplyAdjoint(v, out []complex128) {
	s.Apply(v, out)
}

func (s *SumSigmaX) InnerProduct(u, v []complex128) complex128 {
	var total complex128
	for j := range u {
		var acc complex128
		for q := 0; q < s.numQubits; q++ {
			acc += v[j^(1<<q)]
		}
		total += u[j] * acc
	}
	return total
}

func (s *SumSigmaX) ConjInnerProduct(u, v []complex128) complex128 {
	var total complex128
	for j := range u {
		var acc complex128
		for q := 0; q < s.numQubits; q++ {
			acc += v[j^(1<<q)]
		}
		total += conj(u[j]) * acc
	}
	return total
}

func (s *SumSigmaX) TrueMinimum() float64 { return -float64(s.numQubits) }
func (s *SumSigmaX) TrueMaximum() float64 { return float64(s.numQubits) }

func (s *SumSigmaX) Propagator(theta float64) (Propagator, error) {
	return NewPropagator(s, theta)
}

// SumSigmaY is sum_j Y_j.
type SumSigmaY struct {
	numQubits int
}

func NewSumSigmaY(numQubits int) (*SumSigmaY, error) {
	if numQubits <= 0 {
		return nil, errors.New("sum sigma y needs at least one qubit")
	}
	return &SumSigmaY{numQubits: numQubits}, nil
}

func (s *SumSigmaY) Kind() string   { return KindSumSigmaY }
func (s *SumSigmaY) NumQubits() int { return s.numQubits }

func (s *SumSigmaY) Apply(v, out []complex128) {
	for j := range out {
		var acc complex128
		for q := 0; q < s.numQubits; q++ {
			bit := 1 << q
			if j&bit == 0 {
				acc += -1i * v[j|bit]
			} else {
				acc += 1i * v[j&^bit]
			}
		}
		out[j] = acc
	}
}

func (s *SumSigmaY) ApplyAdjoint(v, out []complex128) {
	s.Apply(v, out)
}

func (s *SumSigmaY) InnerProduct(u, v []complex128) complex128 {
	return innerViaApply(s, u, v)
}

func (s *SumSigmaY) ConjInnerProduct(u, v []complex128) complex128 {
	return conjInnerViaApply(s, u, v)
}

func (s *SumSigmaY) TrueMinimum() float64 { return -float64(s.numQubits) }
func (s *SumSigmaY) TrueMaximum() float64 { return float64(s.numQubits) }

func (s *SumSigmaY) Propagator(theta float64) (Propagator, error) {
	return NewPropagator(s, theta)
}

// kronPropagator implements exp(iθ sum_j P_j) = ⊗_j exp(iθ P_j) for a
// single-qubit Pauli P, reconfiguring the 2x2 factor on SetControl.
type kronPropagator struct {
	op     Hermitian
	theta  float64
	factor func(theta float64) Matrix2
	kron   Kronecker
}

func (p *kronPropagator) Operator() Hermitian { return p.op }
func (p *kronPropagator) Control() float64    { return p.theta }

func (p *kronPropagator) SetControl(theta float64) {
	p.theta = theta
	p.kron.K = p.factor(theta)
}

func (p *kronPropagator) Apply(v, out []complex128) {
	p.kron.Apply(v, out)
}

func (p *kronPropagator) ApplyAdjoint(v, out []complex128) {
	p.kron.ApplyAdjoint(v, out)
}

// exp(iθX) = cos θ I + i sin θ X
func sigmaXFactor(theta float64) Matrix2 {
	s, c := math.Sincos(theta)
	return Matrix2{
		{complex(c, 0), complex(0, s)},
		{complex(0, s), complex(c, 0)},
	}
}

// exp(iθY) = cos θ I + i sin θ Y
func sigmaYFactor(theta float64) Matrix2 {
	s, c := math.Sincos(theta)
	return Matrix2{
		{complex(c, 0), complex(s, 0)},
		{complex(-s, 0), complex(c, 0)},
	}
}

func newKronFactory(kind string, factor func(float64) Matrix2) PropagatorFactory {
	return func(op Hermitian, theta float64) (Propagator, error) {
		if op.Kind() != kind {
			return nil, kindMismatchError{want: kind, got: op}
		}
		p := &kronPropagator{
			op:     op,
			factor: factor,
			kron:   Kronecker{numQubits: op.NumQubits()},
		}
		p.SetControl(theta)
		return p, nil
	}
}

func init() {
	Register(KindSumSigmaX, newKronFactory(KindSumSigmaX, sigmaXFactor))
	Register(KindSumSigmaY, newKronFactory(KindSumSigmaY, sigmaYFactor))
}
