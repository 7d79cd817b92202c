package optimize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"qaoa/internal/tuning"
)

// golden ratio
var phi = (1 + math.Sqrt(5)) / 2

const (
	DefaultRestartStep      = 1e-4
	DefaultRestartGradient  = 1e-5
	DefaultMaxRestartTrials = 200
)

// LayerResult describes the minimiser found with the first Layer layers
// active. Theta holds the full control vector, zero beyond 2*Layer.
type LayerResult struct {
	Layer              int       `json:"layer"`
	Theta              []float64 `json:"theta"`
	Value              float64   `json:"value"`
	GradientNorm       float64   `json:"gradient_norm"`
	HessianEigenvalues []float64 `json:"hessian_eigenvalues"`
	Iterations         int       `json:"iterations"`
	FuncEvaluations    int       `json:"func_evaluations"`
	GradEvaluations    int       `json:"grad_evaluations"`
	Status             string    `json:"status"`
	RestartTrials      int       `json:"restart_trials"`
}

// Continuation minimises a layered circuit one layer at a time. Layer k
// optimises the first 2k angles with the rest held at zero, starting from
// the layer k-1 minimiser nudged off any stationary point.
type Continuation struct {
	Settings Settings
	Rand     *rand.Rand

	// RestartStep is the initial perturbation length; it grows by the
	// golden ratio until the restart point lowers the value or has a
	// gradient norm above RestartGradient.
	RestartStep      float64
	RestartGradient  float64
	MaxRestartTrials int

	// AttemptPolicy scales Settings.Attempts per layer for the exoself
	// method. Nil keeps the attempt budget fixed.
	AttemptPolicy tuning.AttemptPolicy

	// OnLayer, when set, receives each layer result as it completes.
	OnLayer func(LayerResult)
}

func (c *Continuation) rng() *rand.Rand {
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(1))
	}
	return c.Rand
}

// Run optimises obj, whose stage count must be even. theta seeds the first
// layer; nil draws both angles uniformly from [0, pi/2).
func (c *Continuation) Run(ctx context.Context, obj Objective, theta []float64) ([]LayerResult, error) {
	if obj == nil {
		return nil, errors.New("objective is required")
	}
	stages := obj.NumStages()
	if stages < 2 || stages%2 != 0 {
		return nil, fmt.Errorf("continuation needs an even number of stages, got %d", stages)
	}
	layers := stages / 2
	if theta == nil {
		theta = []float64{c.rng().Float64() * math.Pi / 2, c.rng().Float64() * math.Pi / 2}
	}
	if len(theta) != 2 {
		return nil, fmt.Errorf("continuation start has length %d, want 2", len(theta))
	}
	logger := c.Settings.logger()

	results := make([]LayerResult, 0, layers)
	for k := 1; k <= layers; k++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		sub, err := NewPrefix(obj, 2*k)
		if err != nil {
			return results, err
		}
		res, err := Minimize(ctx, sub, theta, c.layerSettings(k, layers))
		if err != nil {
			return results, fmt.Errorf("layer %d: %w", k, err)
		}
		full := sub.Embed(res.X)
		eig, err := hessianEigenvalues(obj, full)
		if err != nil {
			return results, fmt.Errorf("layer %d: %w", k, err)
		}
		layer := LayerResult{
			Layer:              k,
			Theta:              full,
			Value:              res.Value,
			GradientNorm:       res.GradientNorm,
			HessianEigenvalues: eig,
			Iterations:         res.Iterations,
			FuncEvaluations:    res.FuncEvaluations,
			GradEvaluations:    res.GradEvaluations,
			Status:             res.Status,
		}
		if k < layers {
			next, err := NewPrefix(obj, 2*(k+1))
			if err != nil {
				return results, err
			}
			theta, layer.RestartTrials, err = c.restart(ctx, next, full[:2*(k+1)], res.Value)
			if err != nil {
				return results, fmt.Errorf("layer %d restart: %w", k, err)
			}
		}
		logger.Info("continuation layer complete",
			slog.Int("layer", k),
			slog.Float64("value", layer.Value),
			slog.Float64("gradient_norm", layer.GradientNorm),
			slog.Int("iterations", layer.Iterations),
		)
		results = append(results, layer)
		if c.OnLayer != nil {
			c.OnLayer(layer)
		}
	}
	return results, nil
}

func (c *Continuation) layerSettings(layer, layers int) Settings {
	s := c.Settings
	if s.method() != MethodExoself || c.AttemptPolicy == nil {
		return s
	}
	base := s.Attempts
	if base <= 0 {
		base = max(s.MaxIterations, 100)
	}
	s.Attempts = max(c.AttemptPolicy.Attempts(base, layer, layers, 2*layer), 1)
	return s
}

// restart searches for a start point near theta0 that either improves on
// value or is not stationary.
func (c *Continuation) restart(ctx context.Context, obj Objective, theta0 []float64, value float64) ([]float64, int, error) {
	alpha := c.RestartStep
	if alpha <= 0 {
		alpha = DefaultRestartStep
	}
	gtol := c.RestartGradient
	if gtol <= 0 {
		gtol = DefaultRestartGradient
	}
	maxTrials := c.MaxRestartTrials
	if maxTrials <= 0 {
		maxTrials = DefaultMaxRestartTrials
	}
	rng := c.rng()
	theta := make([]float64, len(theta0))
	for trial := 1; trial <= maxTrials; trial++ {
		if err := ctx.Err(); err != nil {
			return nil, trial, err
		}
		for i := range theta {
			theta[i] = theta0[i] + alpha*rng.NormFloat64()
		}
		v, err := obj.Value(theta)
		if err != nil {
			return nil, trial, err
		}
		g, err := obj.Gradient(theta)
		if err != nil {
			return nil, trial, err
		}
		if v < value || floats.Norm(g, 2) > gtol {
			return theta, trial, nil
		}
		alpha *= phi
	}
	return nil, maxTrials, fmt.Errorf("no restart point found in %d trials", maxTrials)
}

func hessianEigenvalues(obj Objective, x []float64) ([]float64, error) {
	h, err := obj.Hessian(x)
	if err != nil {
		return nil, err
	}
	n, _ := h.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, 0.5*(h.At(i, j)+h.At(j, i)))
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(sym, false) {
		return nil, errors.New("hessian eigendecomposition failed")
	}
	return eig.Values(nil), nil
}
