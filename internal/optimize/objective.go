// Package optimize minimizes circuit objectives with the gonum optimizers
// or the derivative-free exoself tuner, and runs layer-by-layer
// continuation for QAOA circuits.
package optimize

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Objective is the part of a circuit an optimizer needs.
type Objective interface {
	NumStages() int
	Value(theta []float64) (float64, error)
	Gradient(theta []float64) ([]float64, error)
	Hessian(theta []float64) (*mat.Dense, error)
}

// Prefix restricts an objective to its first Dim angles, holding the
// remaining ones at zero.
type Prefix struct {
	Objective
	Dim int
}

func NewPrefix(obj Objective, dim int) (*Prefix, error) {
	if dim < 1 || dim > obj.NumStages() {
		return nil, fmt.Errorf("prefix dimension %d outside [1,%d]", dim, obj.NumStages())
	}
	return &Prefix{Objective: obj, Dim: dim}, nil
}

func (p *Prefix) NumStages() int { return p.Dim }

// Embed pads x with zeros to the full control length.
func (p *Prefix) Embed(x []float64) []float64 {
	full := make([]float64, p.Objective.NumStages())
	copy(full, x)
	return full
}

func (p *Prefix) Value(x []float64) (float64, error) {
	return p.Objective.Value(p.Embed(x))
}

func (p *Prefix) Gradient(x []float64) ([]float64, error) {
	g, err := p.Objective.Gradient(p.Embed(x))
	if err != nil {
		return nil, err
	}
	return g[:p.Dim], nil
}

func (p *Prefix) Hessian(x []float64) (*mat.Dense, error) {
	h, err := p.Objective.Hessian(p.Embed(x))
	if err != nil {
		return nil, err
	}
	return mat.DenseCopyOf(h.Slice(0, p.Dim, 0, p.Dim)), nil
}
