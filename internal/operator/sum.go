package operator

import (
	"errors"
	"fmt"

	"qaoa/internal/linalg"
)

const KindSum = "sum"

// Sum is a weighted sum of Hermitian terms. It has no closed-form
// propagator, so it can serve as a target operator but not as a generator.
type Sum struct {
	terms   []Hermitian
	weights []float64
}

func NewSum(terms []Hermitian, weights []float64) (*Sum, error) {
	if len(terms) == 0 {
		return nil, errors.New("sum needs at least one term")
	}
	if weights == nil {
		weights = make([]float64, len(terms))
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(weights) != len(terms) {
		return nil, fmt.Errorf("%w: %d weights for %d terms", ErrDimension, len(weights), len(terms))
	}
	n := terms[0].NumQubits()
	for i, t := range terms {
		if t.NumQubits() != n {
			return nil, fmt.Errorf("%w: term %d has %d qubits, want %d", ErrDimension, i, t.NumQubits(), n)
		}
	}
	return &Sum{
		terms:   append([]Hermitian(nil), terms...),
		weights: append([]float64(nil), weights...),
	}, nil
}

func (s *Sum) Kind() string   { return KindSum }
func (s *Sum) NumQubits() int { return s.terms[0].NumQubits() }

func (s *Sum) Apply(v, out []complex128) {
	buf := borrow(len(v))
	defer release(buf)
	linalg.Zero(out)
	for i, t := range s.terms {
		t.Apply(v, *buf)
		linalg.Axpy(complex(s.weights[i], 0), *buf, out)
	}
}

func (s *Sum) ApplyAdjoint(v, out []complex128) {
	s.Apply(v, out)
}

func (s *Sum) InnerProduct(u, v []complex128) complex128 {
	var total complex128
	for i, t := range s.terms {
		total += complex(s.weights[i], 0) * t.InnerProduct(u, v)
	}
	return total
}

func (s *Sum) ConjInnerProduct(u, v []complex128) complex128 {
	var total complex128
	for i, t := range s.terms {
		total += complex(s.weights[i], 0) * t.ConjInnerProduct(u, v)
	}
	return total
}

func (s *Sum) Propagator(theta float64) (Propagator, error) {
	return NewPropagator(s, theta)
}
