// Package fd computes finite-difference stencils and the residuals used
// to validate analytic derivatives against them.
package fd

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// dropTolerance removes stencil points whose weight is numerically zero.
const dropTolerance = 1e-13

// Stencil approximates a first derivative as
//
//	f'(x) ≈ (1/h) sum_k Weights[k] f(x + Offsets[k] h)
type Stencil struct {
	Offsets []float64
	Weights []float64
}

// Weights solves the Vandermonde system for the weights of the deriv-th
// derivative on the given offsets.
func Weights(offsets []float64, deriv int) ([]float64, error) {
	n := len(offsets)
	if n == 0 {
		return nil, errors.New("stencil needs at least one offset")
	}
	if deriv < 0 || deriv >= n {
		return nil, fmt.Errorf("derivative order %d needs more than %d points", deriv, n)
	}
	m := mat.NewDense(n, n, nil)
	for j := 0; j < n; j++ {
		for i, d := range offsets {
			m.Set(j, i, math.Pow(d, float64(j)))
		}
	}
	rhs := mat.NewVecDense(n, nil)
	rhs.SetVec(deriv, factorial(deriv))

	var w mat.VecDense
	if err := w.SolveVec(m, rhs); err != nil {
		return nil, fmt.Errorf("solve stencil weights: %w", err)
	}
	return w.RawVector().Data, nil
}

func factorial(n int) float64 {
	f := 1.0
	for k := 2; k <= n; k++ {
		f *= float64(k)
	}
	return f
}

// New returns the first-derivative stencil on points consecutive integer
// offsets centred on zero (rounding down), with zero weights dropped. Two
// points give the backward difference, three the central difference.
func New(points int) (Stencil, error) {
	if points < 2 {
		return Stencil{}, fmt.Errorf("first derivative stencil needs at least 2 points, got %d", points)
	}
	offsets := make([]float64, points)
	for k := range offsets {
		offsets[k] = float64(k - points/2)
	}
	w, err := Weights(offsets, 1)
	if err != nil {
		return Stencil{}, err
	}
	var s Stencil
	for k, wk := range w {
		if math.Abs(wk) > dropTolerance {
			s.Offsets = append(s.Offsets, offsets[k])
			s.Weights = append(s.Weights, wk)
		}
	}
	return s, nil
}

// ForOrder returns the stencil whose truncation error is O(h^order).
func ForOrder(order int) (Stencil, error) {
	return New(order + 1)
}

func Central() Stencil {
	return Stencil{Offsets: []float64{-1, 1}, Weights: []float64{-0.5, 0.5}}
}

func Backward() Stencil {
	return Stencil{Offsets: []float64{-1, 0}, Weights: []float64{-1, 1}}
}

// Steps returns the geometric sequence 1, 1e-1, ..., 1e-(n-1).
func Steps(n int) []float64 {
	h := make([]float64, n)
	for k := range h {
		h[k] = math.Pow(10, -float64(k))
	}
	return h
}

// Check returns ‖D_h f(x; v) − exact‖ for every step h, where D_h is the
// stencil's directional difference quotient along v.
func Check(fun func(x []float64) ([]float64, error), exact, x, v, steps []float64, st Stencil) ([]float64, error) {
	if len(x) != len(v) {
		return nil, fmt.Errorf("point has length %d, direction %d", len(x), len(v))
	}
	res := make([]float64, len(steps))
	point := make([]float64, len(x))
	for i, h := range steps {
		approx := make([]float64, len(exact))
		for k, d := range st.Offsets {
			copy(point, x)
			floats.AddScaled(point, d*h, v)
			f, err := fun(point)
			if err != nil {
				return nil, err
			}
			if len(f) != len(exact) {
				return nil, fmt.Errorf("function returned length %d, exact derivative has %d", len(f), len(exact))
			}
			floats.AddScaled(approx, st.Weights[k]/h, f)
		}
		floats.Sub(approx, exact)
		res[i] = floats.Norm(approx, 2)
	}
	return res, nil
}

// CheckScalar is Check for a scalar function with exact directional
// derivative exact.
func CheckScalar(fun func(x []float64) (float64, error), exact float64, x, v, steps []float64, st Stencil) ([]float64, error) {
	wrapped := func(p []float64) ([]float64, error) {
		f, err := fun(p)
		return []float64{f}, err
	}
	return Check(wrapped, []float64{exact}, x, v, steps, st)
}

// CheckComplex is Check for a vector-valued function with complex entries.
func CheckComplex(fun func(x []float64) ([]complex128, error), exact []complex128, x, v, steps []float64, st Stencil) ([]float64, error) {
	if len(x) != len(v) {
		return nil, fmt.Errorf("point has length %d, direction %d", len(x), len(v))
	}
	res := make([]float64, len(steps))
	point := make([]float64, len(x))
	for i, h := range steps {
		approx := make([]complex128, len(exact))
		for k, d := range st.Offsets {
			copy(point, x)
			floats.AddScaled(point, d*h, v)
			f, err := fun(point)
			if err != nil {
				return nil, err
			}
			if len(f) != len(exact) {
				return nil, fmt.Errorf("function returned length %d, exact derivative has %d", len(f), len(exact))
			}
			w := complex(st.Weights[k]/h, 0)
			for j := range approx {
				approx[j] += w * f[j]
			}
		}
		var s float64
		for j := range approx {
			d := cmplx.Abs(approx[j] - exact[j])
			s += d * d
		}
		res[i] = math.Sqrt(s)
	}
	return res, nil
}

// Min returns the smallest residual and its index.
func Min(res []float64) (float64, int) {
	if len(res) == 0 {
		return math.NaN(), -1
	}
	i := floats.MinIdx(res)
	return res[i], i
}
