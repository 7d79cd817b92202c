package circuit

import (
	"errors"
	"fmt"
)

var (
	// ErrConstruction reports a circuit that cannot be assembled: qubit
	// counts disagree, angle vectors have the wrong length, or a generator
	// has no propagator.
	ErrConstruction = errors.New("circuit construction failed")
	// ErrState reports a malformed stage chain or an out-of-range stage
	// index.
	ErrState = errors.New("invalid stage state")
	// ErrReentrant reports a control update or evaluation issued while an
	// evaluation is already in flight on the same circuit.
	ErrReentrant = errors.New("reentrant circuit call")
	// ErrNotSupported reports an operation the target operator cannot
	// serve, such as exact extrema of an operator without Extremal.
	ErrNotSupported = errors.New("operation not supported by target operator")
	// ErrNumerical reports a result that could not be computed in floating
	// point, such as a non-finite Hessian.
	ErrNumerical = errors.New("numerical failure")
)

func stateFault(k int, format string, args ...any) error {
	return fmt.Errorf("%w: stage %d: %s", ErrState, k, fmt.Sprintf(format, args...))
}
