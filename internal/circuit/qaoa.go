package circuit

import (
	"fmt"

	"qaoa/internal/operator"
)

// QAOA is a circuit of p layers, each applying exp(iθ C) then exp(iθ D)
// for problem Hamiltonian C and driver D, measured against C.
type QAOA struct {
	*Circuit
	layers int
	driver operator.Hermitian
}

// NewQAOA builds a p-layer QAOA circuit with generators [C, D] * p. A nil
// driver defaults to the transverse field sum of X over all qubits.
func NewQAOA(p int, problem, driver operator.Hermitian, opts Options) (*QAOA, error) {
	if p < 1 {
		return nil, fmt.Errorf("%w: layer count must be positive, got %d", ErrConstruction, p)
	}
	if problem == nil {
		return nil, fmt.Errorf("%w: problem hamiltonian is required", ErrConstruction)
	}
	if driver == nil {
		sx, err := operator.NewSumSigmaX(problem.NumQubits())
		if err != nil {
			return nil, fmt.Errorf("%w: default driver: %w", ErrConstruction, err)
		}
		driver = sx
	}
	generators := make([]operator.Hermitian, 0, 2*p)
	for range p {
		generators = append(generators, problem, driver)
	}
	c, err := New(generators, problem, opts)
	if err != nil {
		return nil, err
	}
	return &QAOA{Circuit: c, layers: p, driver: driver}, nil
}

func (q *QAOA) Layers() int { return q.layers }

func (q *QAOA) Driver() operator.Hermitian { return q.driver }

// Clone copies the circuit and keeps the layer structure.
func (q *QAOA) Clone() (*QAOA, error) {
	c, err := q.Circuit.Clone()
	if err != nil {
		return nil, err
	}
	return &QAOA{Circuit: c, layers: q.layers, driver: q.driver}, nil
}

// SplitAngles separates a QAOA control vector into the problem angles γ
// and driver angles β of each layer.
func SplitAngles(theta []float64) (gamma, beta []float64, err error) {
	if len(theta)%2 != 0 {
		return nil, nil, fmt.Errorf("%w: qaoa control length %d is odd", ErrConstruction, len(theta))
	}
	p := len(theta) / 2
	gamma = make([]float64, p)
	beta = make([]float64, p)
	for i := 0; i < p; i++ {
		gamma[i] = theta[2*i]
		beta[i] = theta[2*i+1]
	}
	return gamma, beta, nil
}
