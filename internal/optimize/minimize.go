package optimize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"qaoa/internal/tuning"
)

const (
	MethodBFGS            = "bfgs"
	MethodLBFGS           = "lbfgs"
	MethodNewton          = "newton"
	MethodNelderMead      = "nelder-mead"
	MethodGradientDescent = "gradient-descent"
	MethodExoself         = "exoself"
)

// Methods lists the supported method names.
func Methods() []string {
	return []string{MethodBFGS, MethodLBFGS, MethodNewton, MethodNelderMead, MethodGradientDescent, MethodExoself}
}

// IterationHook is told about every major iteration.
type IterationHook func(method string, iteration int, value float64)

type Settings struct {
	Method            string
	GradientThreshold float64
	MaxIterations     int
	MaxEvaluations    int

	// Exoself settings, used only by MethodExoself.
	Seed               int64
	Attempts           int
	Steps              int
	StepSize           float64
	PerturbationRange  float64
	AnnealingFactor    float64
	CandidateSelection string

	Logger    *slog.Logger
	Iteration IterationHook
}

func (s Settings) method() string {
	if s.Method == "" {
		return MethodBFGS
	}
	return s.Method
}

func (s Settings) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

type Result struct {
	Method          string        `json:"method"`
	X               []float64     `json:"x"`
	Value           float64       `json:"value"`
	GradientNorm    float64       `json:"gradient_norm"`
	Iterations      int           `json:"iterations"`
	FuncEvaluations int           `json:"func_evaluations"`
	GradEvaluations int           `json:"grad_evaluations"`
	HessEvaluations int           `json:"hess_evaluations"`
	Status          string        `json:"status"`
	Runtime         time.Duration `json:"runtime"`
}

// Minimize runs the configured method from x0.
func Minimize(ctx context.Context, obj Objective, x0 []float64, s Settings) (Result, error) {
	if obj == nil {
		return Result{}, errors.New("objective is required")
	}
	if len(x0) != obj.NumStages() {
		return Result{}, fmt.Errorf("start point has length %d, objective has %d stages", len(x0), obj.NumStages())
	}
	if s.method() == MethodExoself {
		return minimizeExoself(ctx, obj, x0, s)
	}
	method, err := gonumMethod(s.method())
	if err != nil {
		return Result{}, err
	}
	return minimizeGonum(ctx, obj, x0, s, method)
}

func gonumMethod(name string) (optimize.Method, error) {
	switch name {
	case MethodBFGS:
		return &optimize.BFGS{}, nil
	case MethodLBFGS:
		return &optimize.LBFGS{}, nil
	case MethodNewton:
		return &optimize.Newton{}, nil
	case MethodNelderMead:
		return &optimize.NelderMead{}, nil
	case MethodGradientDescent:
		return &optimize.GradientDescent{}, nil
	default:
		return nil, fmt.Errorf("unsupported optimization method %q", name)
	}
}

// problem adapts an Objective to gonum's error-free callbacks. The first
// evaluation error is kept and reported through Status, which stops the
// run at the next check.
type problem struct {
	ctx context.Context
	obj Objective
	err error
}

func (p *problem) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func (p *problem) gonum() optimize.Problem {
	return optimize.Problem{
		Func: func(x []float64) float64 {
			v, err := p.obj.Value(x)
			if err != nil {
				p.fail(err)
				return math.NaN()
			}
			return v
		},
		Grad: func(grad, x []float64) {
			g, err := p.obj.Gradient(x)
			if err != nil {
				p.fail(err)
				for i := range grad {
					grad[i] = math.NaN()
				}
				return
			}
			copy(grad, g)
		},
		Hess: func(hess *mat.SymDense, x []float64) {
			h, err := p.obj.Hessian(x)
			if err != nil {
				p.fail(err)
				return
			}
			n := hess.SymmetricDim()
			for i := 0; i < n; i++ {
				for j := i; j < n; j++ {
					hess.SetSym(i, j, 0.5*(h.At(i, j)+h.At(j, i)))
				}
			}
		},
		Status: func() (optimize.Status, error) {
			if p.err != nil {
				return optimize.Failure, p.err
			}
			if err := p.ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}
}

// iterationRecorder forwards major iterations to the hook and the log.
type iterationRecorder struct {
	method string
	logger *slog.Logger
	hook   IterationHook
}

func (r *iterationRecorder) Init() error { return nil }

func (r *iterationRecorder) Record(loc *optimize.Location, op optimize.Operation, stats *optimize.Stats) error {
	if op != optimize.MajorIteration {
		return nil
	}
	r.logger.Debug("optimizer iteration",
		slog.String("method", r.method),
		slog.Int("iteration", stats.MajorIterations),
		slog.Float64("value", loc.F),
	)
	if r.hook != nil {
		r.hook(r.method, stats.MajorIterations, loc.F)
	}
	return nil
}

func minimizeGonum(ctx context.Context, obj Objective, x0 []float64, s Settings, method optimize.Method) (Result, error) {
	p := &problem{ctx: ctx, obj: obj}
	settings := &optimize.Settings{
		GradientThreshold: s.GradientThreshold,
		MajorIterations:   s.MaxIterations,
		FuncEvaluations:   s.MaxEvaluations,
		Recorder:          &iterationRecorder{method: s.method(), logger: s.logger(), hook: s.Iteration},
	}
	if settings.GradientThreshold == 0 {
		settings.GradientThreshold = 1e-8
	}
	res, err := optimize.Minimize(p.gonum(), append([]float64(nil), x0...), settings, method)
	if p.err != nil {
		return Result{}, p.err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, ctxErr
	}
	if err != nil && res == nil {
		return Result{}, fmt.Errorf("%s: %w", s.method(), err)
	}
	if err != nil {
		// iteration and evaluation limits end the run without a usable
		// convergence status but still leave the best point found
		s.logger().Warn("optimizer stopped early", slog.String("method", s.method()), slog.String("reason", err.Error()))
	}

	out := Result{
		Method:          s.method(),
		X:               append([]float64(nil), res.X...),
		Value:           res.F,
		Iterations:      res.MajorIterations,
		FuncEvaluations: res.FuncEvaluations,
		GradEvaluations: res.GradEvaluations,
		HessEvaluations: res.HessEvaluations,
		Status:          res.Status.String(),
		Runtime:         res.Runtime,
	}
	if out.GradientNorm, err = gradientNorm(obj, out.X); err != nil {
		return Result{}, err
	}
	return out, nil
}

func gradientNorm(obj Objective, x []float64) (float64, error) {
	g, err := obj.Gradient(x)
	if err != nil {
		return 0, err
	}
	return floats.Norm(g, 2), nil
}

func minimizeExoself(ctx context.Context, obj Objective, x0 []float64, s Settings) (Result, error) {
	started := time.Now()
	tuner := &tuning.Exoself{
		Rand:               rand.New(rand.NewSource(s.Seed)),
		Steps:              s.Steps,
		StepSize:           s.StepSize,
		PerturbationRange:  s.PerturbationRange,
		AnnealingFactor:    s.AnnealingFactor,
		CandidateSelection: s.CandidateSelection,
	}
	if tuner.Steps <= 0 {
		tuner.Steps = max(1, len(x0))
	}
	if tuner.StepSize <= 0 {
		tuner.StepSize = 0.1
	}
	attempts := s.Attempts
	if attempts <= 0 {
		attempts = max(s.MaxIterations, 100)
	}
	iteration := 0
	x, report, err := tuner.TuneWithReport(ctx, x0, attempts, func(ctx context.Context, theta []float64) (float64, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		v, err := obj.Value(theta)
		if err == nil && s.Iteration != nil {
			iteration++
			s.Iteration(MethodExoself, iteration, v)
		}
		return v, err
	})
	if err != nil {
		return Result{}, err
	}
	out := Result{
		Method:          MethodExoself,
		X:               x,
		Value:           report.FinalValue,
		Iterations:      report.AttemptsExecuted,
		FuncEvaluations: report.CandidateEvaluations + 1,
		Status:          "AttemptsExhausted",
		Runtime:         time.Since(started),
	}
	if report.GoalReached {
		out.Status = "GoalReached"
	}
	if out.GradientNorm, err = gradientNorm(obj, out.X); err != nil {
		return Result{}, err
	}
	return out, nil
}
