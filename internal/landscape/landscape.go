// Package landscape fits a multivariate sine series to an objective
// sampled on a tensor grid over (0, pi/2)^d.
//
// Grid node j of n along an axis sits at (pi/2)(j+1)/(n+1) and basis
// function k is sin(2(k+1)theta), so the series vanishes on the domain
// boundary and interpolates the samples at the nodes.
package landscape

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// MaxGridPoints caps n^d for both fitting and evaluation grids.
const MaxGridPoints = 1 << 22

type Objective interface {
	NumStages() int
	Value(theta []float64) (float64, error)
}

type Surrogate struct {
	points  int
	dim     int
	samples []float64
	coeffs  []float64
}

// GridPoint is node j of an n-point axis.
func GridPoint(n, j int) float64 {
	return (math.Pi / 2) * float64(j+1) / float64(n+1)
}

func gridSize(n, dim int) (int, error) {
	if n < 1 {
		return 0, fmt.Errorf("grid needs at least one point per axis, got %d", n)
	}
	if dim < 1 {
		return 0, fmt.Errorf("grid dimension must be >= 1, got %d", dim)
	}
	size := 1
	for i := 0; i < dim; i++ {
		if size > MaxGridPoints/n {
			return 0, fmt.Errorf("grid of %d^%d points exceeds %d", n, dim, MaxGridPoints)
		}
		size *= n
	}
	return size, nil
}

// node writes the angles of flat grid index idx into theta. The first
// axis varies slowest.
func node(idx, n int, theta []float64) {
	for a := len(theta) - 1; a >= 0; a-- {
		theta[a] = GridPoint(n, idx%n)
		idx /= n
	}
}

// Fit samples obj on an n-point-per-axis grid and computes the series
// coefficients.
func Fit(ctx context.Context, obj Objective, n int) (*Surrogate, error) {
	if obj == nil {
		return nil, errors.New("objective is required")
	}
	dim := obj.NumStages()
	size, err := gridSize(n, dim)
	if err != nil {
		return nil, err
	}
	samples := make([]float64, size)
	theta := make([]float64, dim)
	for idx := range samples {
		if idx%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		node(idx, n, theta)
		if samples[idx], err = obj.Value(theta); err != nil {
			return nil, fmt.Errorf("grid point %d: %w", idx, err)
		}
	}
	coeffs := append([]float64(nil), samples...)
	// gonum's DST-I carries a factor of 2; the sine basis has squared
	// norm (n+1)/2 on the nodes.
	transformAxes(coeffs, n, dim, fourier.NewDST(n), 1/float64(n+1))
	return &Surrogate{points: n, dim: dim, samples: samples, coeffs: coeffs}, nil
}

// transformAxes applies t along every axis of the n^dim tensor data and
// multiplies each pass by scale.
func transformAxes(data []float64, n, dim int, t *fourier.DST, scale float64) {
	line := make([]float64, n)
	out := make([]float64, n)
	stride := len(data)
	for a := 0; a < dim; a++ {
		stride /= n
		block := stride * n
		for base := 0; base < len(data); base += block {
			for off := 0; off < stride; off++ {
				start := base + off
				for i := 0; i < n; i++ {
					line[i] = data[start+i*stride]
				}
				t.Transform(out, line)
				for i := 0; i < n; i++ {
					data[start+i*stride] = scale * out[i]
				}
			}
		}
	}
}

func (s *Surrogate) Points() int { return s.points }

func (s *Surrogate) Dim() int { return s.dim }

// Samples returns the objective values at the fitting nodes.
func (s *Surrogate) Samples() []float64 {
	return append([]float64(nil), s.samples...)
}

func (s *Surrogate) Coefficients() []float64 {
	return append([]float64(nil), s.coeffs...)
}

// Eval sums the series at theta. Cost is n^d per call; use Values for
// whole grids.
func (s *Surrogate) Eval(theta []float64) (float64, error) {
	if len(theta) != s.dim {
		return 0, fmt.Errorf("theta has length %d, surrogate has dimension %d", len(theta), s.dim)
	}
	basis := make([][]float64, s.dim)
	for a, x := range theta {
		basis[a] = make([]float64, s.points)
		for k := range basis[a] {
			basis[a][k] = math.Sin(2 * float64(k+1) * x)
		}
	}
	var sum float64
	for idx, c := range s.coeffs {
		term := c
		rest := idx
		for a := s.dim - 1; a >= 0; a-- {
			term *= basis[a][rest%s.points]
			rest /= s.points
		}
		sum += term
	}
	return sum, nil
}

// Values evaluates the series on the m-point-per-axis grid, flattened
// with the first axis slowest. m must be at least the fitting grid size.
func (s *Surrogate) Values(m int) ([]float64, error) {
	if m < s.points {
		return nil, fmt.Errorf("evaluation grid of %d points is coarser than the fitting grid of %d", m, s.points)
	}
	size, err := gridSize(m, s.dim)
	if err != nil {
		return nil, err
	}
	padded := make([]float64, size)
	idx := make([]int, s.dim)
	for flat, c := range s.coeffs {
		rest := flat
		for a := s.dim - 1; a >= 0; a-- {
			idx[a] = rest % s.points
			rest /= s.points
		}
		target := 0
		for a := 0; a < s.dim; a++ {
			target = target*m + idx[a]
		}
		padded[target] = c
	}
	transformAxes(padded, m, s.dim, fourier.NewDST(m), 0.5)
	return padded, nil
}

// Grid returns the angles of every node of the m-point grid in the order
// used by Values.
func Grid(m, dim int) ([][]float64, error) {
	size, err := gridSize(m, dim)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, size)
	for i := range out {
		out[i] = make([]float64, dim)
		node(i, m, out[i])
	}
	return out, nil
}
