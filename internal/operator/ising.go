package operator

import (
	"errors"
	"fmt"

	"qaoa/internal/graph"
)

const KindIsing = "ising"

// Field is an external field coefficient h_i on qubit i.
type Field struct {
	Qubit int     `json:"qubit" yaml:"qubit"`
	Value float64 `json:"value" yaml:"value"`
}

// Coupling is an interaction coefficient J_ij between qubits i and j.
type Coupling struct {
	I      int     `json:"i" yaml:"i"`
	J      int     `json:"j" yaml:"j"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// Ising is the diagonal Hamiltonian
//
//	H = sum_i h_i Z_i + sum_{i<j} J_ij Z_i Z_j
//
// where qubit 0 is the most significant bit of the basis index.
type Ising struct {
	Diagonal
	fields    []Field
	couplings []Coupling
}

func NewIsing(numQubits int, fields []Field, couplings []Coupling) (*Ising, error) {
	if numQubits <= 0 {
		return nil, errors.New("ising hamiltonian needs at least one qubit")
	}
	for _, f := range fields {
		if f.Qubit < 0 || f.Qubit >= numQubits {
			return nil, fmt.Errorf("%w: field qubit %d outside [0,%d)", ErrDimension, f.Qubit, numQubits)
		}
	}
	for _, c := range couplings {
		if c.I < 0 || c.I >= numQubits || c.J < 0 || c.J >= numQubits {
			return nil, fmt.Errorf("%w: coupling (%d,%d) outside [0,%d)", ErrDimension, c.I, c.J, numQubits)
		}
		if c.I == c.J {
			return nil, fmt.Errorf("coupling (%d,%d) is a self interaction", c.I, c.J)
		}
	}

	size := 1 << numQubits
	data := make([]float64, size)
	for k := 0; k < size; k++ {
		var e float64
		for _, f := range fields {
			e += f.Value * zspin(numQubits, k, f.Qubit)
		}
		for _, c := range couplings {
			e += c.Weight * zspin(numQubits, k, c.I) * zspin(numQubits, k, c.J)
		}
		data[k] = e
	}
	return &Ising{
		Diagonal:  Diagonal{data: data, numQubits: numQubits},
		fields:    append([]Field(nil), fields...),
		couplings: append([]Coupling(nil), couplings...),
	}, nil
}

// NewIsingDense builds an Ising Hamiltonian from a dense field vector and
// the strict upper triangle of a dense interaction matrix. Either may be
// nil but not both.
func NewIsingDense(h []float64, j [][]float64) (*Ising, error) {
	n := len(h)
	if n == 0 {
		n = len(j)
	}
	if n == 0 {
		return nil, errors.New("ising hamiltonian needs fields or couplings")
	}
	if h != nil && len(h) != n {
		return nil, fmt.Errorf("%w: %d fields for %d qubits", ErrDimension, len(h), n)
	}
	var fields []Field
	for i, v := range h {
		if v != 0 {
			fields = append(fields, Field{Qubit: i, Value: v})
		}
	}
	var couplings []Coupling
	if j != nil {
		if len(j) != n {
			return nil, fmt.Errorf("%w: interaction matrix has %d rows for %d qubits", ErrDimension, len(j), n)
		}
		for a, row := range j {
			if len(row) != n {
				return nil, fmt.Errorf("%w: interaction matrix row %d has %d columns", ErrDimension, a, len(row))
			}
			for b := a + 1; b < n; b++ {
				if row[b] != 0 {
					couplings = append(couplings, Coupling{I: a, J: b, Weight: row[b]})
				}
			}
		}
	}
	return NewIsing(n, fields, couplings)
}

// NewMaxCut builds sum over edges of w_ij Z_i Z_j for g. Unweighted edges
// carry weight 1.
func NewMaxCut(g graph.Graph) (*Ising, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	couplings := make([]Coupling, 0, len(g.Edges))
	for _, e := range g.Edges {
		couplings = append(couplings, Coupling{I: e.U, J: e.V, Weight: e.EffectiveWeight()})
	}
	return NewIsing(g.Vertices, nil, couplings)
}

func (h *Ising) Kind() string {
	return KindIsing
}

func (h *Ising) Fields() []Field {
	return append([]Field(nil), h.fields...)
}

func (h *Ising) Couplings() []Coupling {
	return append([]Coupling(nil), h.couplings...)
}

func (h *Ising) Propagator(theta float64) (Propagator, error) {
	return NewPropagator(h, theta)
}

// zspin is the Z eigenvalue (+1 or -1) of qubit i in basis state k.
func zspin(n, k, i int) float64 {
	return float64(1 - 2*((k>>(n-i-1))&1))
}
