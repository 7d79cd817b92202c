// Package operator defines the capability contract that circuit stages
// consume from Hermitian generators and their unitary propagators, together
// with the concrete operator families used to build QAOA problems.
//
// A Hermitian operator A acts on complex state vectors of length N = 2^n.
// Its propagator is U(θ) = exp(iθA). Propagators are associated with
// operator kinds through an explicit registry; see Register.
package operator

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnsupported reports an operation the operator family does not
	// provide, such as the inverse of a projection.
	ErrUnsupported = errors.New("operation not supported")
	// ErrNoPropagator reports an operator kind without a registered
	// propagator.
	ErrNoPropagator = errors.New("no propagator registered")
	// ErrDimension reports inconsistent qubit counts or vector lengths.
	ErrDimension = errors.New("dimension mismatch")
)

// Linear is the minimal contract of any operator on n-qubit state vectors.
// Apply and ApplyAdjoint write into out, which must not alias v.
type Linear interface {
	NumQubits() int
	Apply(v, out []complex128)
	ApplyAdjoint(v, out []complex128)
}

// Hermitian is a self-adjoint generator usable in a circuit stage.
type Hermitian interface {
	Linear
	Kind() string
	// InnerProduct returns sum(u[i] * (A v)[i]).
	InnerProduct(u, v []complex128) complex128
	// ConjInnerProduct returns sum(conj(u[i]) * (A v)[i]).
	ConjInnerProduct(u, v []complex128) complex128
	Propagator(theta float64) (Propagator, error)
}

// Propagator is the unitary exp(iθA) bound to one generator A.
type Propagator interface {
	Operator() Hermitian
	Control() float64
	// SetControl reconfigures the propagator for a new angle in O(N) or
	// better.
	SetControl(theta float64)
	Apply(v, out []complex128)
	ApplyAdjoint(v, out []complex128)
}

// Extremal is implemented by operators that can report their exact
// extreme eigenvalues.
type Extremal interface {
	TrueMinimum() float64
	TrueMaximum() float64
}

// Invertible is implemented by operators that have an inverse. Families
// without one return ErrUnsupported.
type Invertible interface {
	ApplyInverse(v, out []complex128) error
	ApplyAdjointInverse(v, out []complex128) error
}

// PropagatorFactory builds the propagator for one operator kind.
type PropagatorFactory func(op Hermitian, theta float64) (Propagator, error)

var registry = struct {
	mu        sync.RWMutex
	factories map[string]PropagatorFactory
}{factories: make(map[string]PropagatorFactory)}

// Register associates kind with a propagator factory, replacing any
// previous registration.
func Register(kind string, factory PropagatorFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.factories[kind] = factory
}

// RegisteredKinds lists operator kinds with a propagator, sorted.
func RegisteredKinds() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	kinds := make([]string, 0, len(registry.factories))
	for kind := range registry.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// NewPropagator looks up the factory registered for op.Kind().
func NewPropagator(op Hermitian, theta float64) (Propagator, error) {
	if op == nil {
		return nil, errors.New("operator is required")
	}
	registry.mu.RLock()
	factory, ok := registry.factories[op.Kind()]
	registry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for operator kind %q", ErrNoPropagator, op.Kind())
	}
	return factory(op, theta)
}

// Dimension returns 2^n for an n-qubit operator.
func Dimension(op Linear) int {
	return 1 << op.NumQubits()
}

// Matrix materializes op column by column. It costs N applications and is
// meant for verification only.
func Matrix(op Linear) [][]complex128 {
	n := Dimension(op)
	m := make([][]complex128, n)
	for i := range m {
		m[i] = make([]complex128, n)
	}
	e := make([]complex128, n)
	col := make([]complex128, n)
	for j := 0; j < n; j++ {
		e[j] = 1
		op.Apply(e, col)
		e[j] = 0
		for i := 0; i < n; i++ {
			m[i][j] = col[i]
		}
	}
	return m
}

type kindMismatchError struct {
	want string
	got  Hermitian
}

func (e kindMismatchError) Error() string {
	return fmt.Sprintf("propagator for %s cannot wrap operator of type %T", e.want, e.got)
}
