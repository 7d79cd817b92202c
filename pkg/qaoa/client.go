// Package qaoa is the public entry point: it builds circuits from a run
// configuration and runs evaluations, sampling, optimization and
// landscape fits against a run store.
package qaoa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"qaoa/internal/circuit"
	"qaoa/internal/config"
	"qaoa/internal/fd"
	"qaoa/internal/landscape"
	"qaoa/internal/model"
	"qaoa/internal/optimize"
	"qaoa/internal/sampling"
	"qaoa/internal/storage"
	"qaoa/internal/telemetry"
	"qaoa/internal/tuning"
)

const defaultDBPath = "qaoa.db"

var ErrRunNotFound = errors.New("run not found")

type Options struct {
	StoreKind string
	DBPath    string
	Logger    *slog.Logger
	// Metrics may be nil.
	Metrics *telemetry.Metrics
}

type Client struct {
	store   storage.Store
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{store: store, logger: logger, metrics: opts.Metrics}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

func (c *Client) build(cfg config.Config) (config.Built, error) {
	opts := circuit.Options{Logger: c.logger}
	if c.metrics != nil {
		opts.Observer = c.metrics
	}
	return config.BuildCircuit(cfg, opts)
}

type EvaluateRequest struct {
	Config config.Config
	Theta  []float64
	// Hessian adds the full Hessian and its eigenvalues.
	Hessian bool
}

type Evaluation struct {
	Theta              []float64   `json:"theta"`
	Value              float64     `json:"value"`
	Gradient           []float64   `json:"gradient"`
	GradientNorm       float64     `json:"gradient_norm"`
	Hessian            [][]float64 `json:"hessian,omitempty"`
	HessianEigenvalues []float64   `json:"hessian_eigenvalues,omitempty"`
	TrueMinimum        *float64    `json:"true_minimum,omitempty"`
	TrueMaximum        *float64    `json:"true_maximum,omitempty"`
	// ExpectedCut is set for MaxCut problems.
	ExpectedCut *float64      `json:"expected_cut,omitempty"`
	Stats       circuit.Stats `json:"stats"`
}

// Evaluate computes value and gradient, and optionally the Hessian, at
// one control vector. A nil Theta evaluates at all-zero angles.
func (c *Client) Evaluate(_ context.Context, req EvaluateRequest) (Evaluation, error) {
	built, err := c.build(req.Config)
	if err != nil {
		return Evaluation{}, err
	}
	q := built.QAOA
	theta := req.Theta
	if theta == nil {
		theta = make([]float64, q.NumStages())
	}
	out := Evaluation{Theta: append([]float64(nil), theta...)}
	if out.Value, err = q.Value(theta); err != nil {
		return Evaluation{}, err
	}
	if out.Gradient, err = q.Gradient(theta); err != nil {
		return Evaluation{}, err
	}
	out.GradientNorm = floats.Norm(out.Gradient, 2)
	if req.Hessian {
		h, eig, err := q.HessianEig(theta)
		if err != nil {
			return Evaluation{}, err
		}
		n, _ := h.Dims()
		out.Hessian = make([][]float64, n)
		for i := range out.Hessian {
			out.Hessian[i] = mat.Row(nil, i, h)
		}
		out.HessianEigenvalues = eig
	}
	if built.Graph != nil {
		// sum_{ij} w_ij Z_i Z_j = W - 2 cut
		cut := (built.Graph.TotalWeight() - out.Value) / 2
		out.ExpectedCut = &cut
	}
	if lo, err := q.TrueMinimum(); err == nil {
		out.TrueMinimum = &lo
	}
	if hi, err := q.TrueMaximum(); err == nil {
		out.TrueMaximum = &hi
	}
	out.Stats = q.Stats()
	return out, nil
}

type CheckRequest struct {
	Config config.Config
	Theta  []float64
	// Direction defaults to a random unit vector scaled by 0.1.
	Direction []float64
	Steps     int
	Seed      int64
	Backward  bool
}

// CheckSummary holds finite-difference residuals, one per step size.
type CheckSummary struct {
	Steps         []float64 `json:"steps"`
	Gradient      []float64 `json:"gradient"`
	HessVec       []float64 `json:"hess_vec"`
	Tangent       []float64 `json:"tangent"`
	SecondAdjoint []float64 `json:"second_adjoint"`
}

func (c *Client) Check(_ context.Context, req CheckRequest) (CheckSummary, error) {
	built, err := c.build(req.Config)
	if err != nil {
		return CheckSummary{}, err
	}
	q := built.QAOA
	stages := q.NumStages()
	rng := rand.New(rand.NewSource(req.Seed))
	theta := req.Theta
	if theta == nil {
		theta = sampling.Uniform(0, math.Pi/2)(rng, stages)
	}
	dtheta := req.Direction
	if dtheta == nil {
		dtheta = make([]float64, stages)
		for i := range dtheta {
			dtheta[i] = rng.NormFloat64()
		}
		floats.Scale(0.1/floats.Norm(dtheta, 2), dtheta)
	}
	n := req.Steps
	if n <= 0 {
		n = 8
	}
	st := fd.Central()
	if req.Backward {
		st = fd.Backward()
	}
	out := CheckSummary{Steps: fd.Steps(n)}
	if out.Gradient, err = circuit.CheckGradient(q.Circuit, theta, dtheta, out.Steps, st); err != nil {
		return CheckSummary{}, err
	}
	if out.HessVec, err = circuit.CheckHessVec(q.Circuit, theta, dtheta, out.Steps, st); err != nil {
		return CheckSummary{}, err
	}
	if out.Tangent, err = circuit.CheckTangent(q.Circuit, theta, dtheta, out.Steps, st); err != nil {
		return CheckSummary{}, err
	}
	if out.SecondAdjoint, err = circuit.CheckSecondAdjoint(q.Circuit, theta, dtheta, out.Steps, st); err != nil {
		return CheckSummary{}, err
	}
	return out, nil
}

type SampleRequest struct {
	Config config.Config
	// Output receives CSV rows when set.
	Output io.Writer
}

func (c *Client) Sample(ctx context.Context, req SampleRequest) (sampling.Summary, error) {
	built, err := c.build(req.Config)
	if err != nil {
		return sampling.Summary{}, err
	}
	quantities, err := sampling.ParseQuantities(req.Config.Sampling.Quantities)
	if err != nil {
		return sampling.Summary{}, err
	}
	s := &sampling.Sampler{
		Circuit: built.QAOA.Circuit,
		Store:   c.store,
		Output:  req.Output,
		Logger:  c.logger,
	}
	if c.metrics != nil {
		s.Observer = c.metrics
	}
	sc := req.Config.Sampling
	return s.Run(ctx, sampling.Config{
		Samples:    sc.Samples,
		Workers:    sc.Workers,
		BufferSize: sc.BufferSize,
		Seed:       sc.Seed,
		Quantities: quantities,
		Problem:    req.Config.Problem.Kind,
		Layers:     built.QAOA.Layers(),
	})
}

func (c *Client) settings(cfg config.Optimization) optimize.Settings {
	s := optimize.Settings{
		Method:             cfg.Method,
		GradientThreshold:  cfg.GradientThreshold,
		MaxIterations:      cfg.MaxIterations,
		MaxEvaluations:     cfg.MaxEvaluations,
		Seed:               cfg.Seed,
		Attempts:           cfg.Attempts,
		Steps:              cfg.Steps,
		StepSize:           cfg.StepSize,
		PerturbationRange:  cfg.PerturbationRange,
		AnnealingFactor:    cfg.AnnealingFactor,
		CandidateSelection: cfg.CandidateSelection,
		Logger:             c.logger,
	}
	if c.metrics != nil {
		s.Iteration = c.metrics.ObserveIteration
	}
	return s
}

func (c *Client) startRun(ctx context.Context, kind string, cfg config.Config, q *circuit.QAOA, method string) (model.Run, error) {
	if method == "" {
		method = optimize.MethodBFGS
	}
	run := model.Run{
		VersionedRecord: storage.CurrentVersion(),
		ID:              uuid.NewString(),
		Kind:            kind,
		CreatedAt:       time.Now().UTC(),
		Problem:         cfg.Problem.Kind,
		NumQubits:       q.NumQubits(),
		Layers:          q.Layers(),
		Stages:          q.NumStages(),
		Method:          method,
		Seed:            cfg.Optimization.Seed,
		Status:          model.RunStatusRunning,
	}
	if err := c.store.SaveRun(ctx, run); err != nil {
		return model.Run{}, fmt.Errorf("save run: %w", err)
	}
	return run, nil
}

func (c *Client) finishRun(ctx context.Context, run model.Run, opt *model.Optimization, runErr error) error {
	run.Status = model.RunStatusCompleted
	if runErr != nil {
		run.Status = model.RunStatusFailed
	}
	ctx = context.WithoutCancel(ctx)
	if opt != nil && runErr == nil {
		if err := c.store.SaveOptimization(ctx, *opt); err != nil {
			return fmt.Errorf("save optimization: %w", err)
		}
	}
	if err := c.store.SaveRun(ctx, run); err != nil && runErr == nil {
		return fmt.Errorf("save run: %w", err)
	}
	return runErr
}

type OptimizeRequest struct {
	Config config.Config
}

type OptimizeSummary struct {
	RunID  string          `json:"run_id"`
	Start  []float64       `json:"start"`
	Result optimize.Result `json:"result"`
}

func (c *Client) Optimize(ctx context.Context, req OptimizeRequest) (OptimizeSummary, error) {
	built, err := c.build(req.Config)
	if err != nil {
		return OptimizeSummary{}, err
	}
	q := built.QAOA
	oc := req.Config.Optimization
	start := oc.Start
	if start == nil {
		start = sampling.Uniform(0, math.Pi/2)(rand.New(rand.NewSource(oc.Seed)), q.NumStages())
	}
	if len(start) != q.NumStages() {
		return OptimizeSummary{}, fmt.Errorf("start has %d angles, circuit has %d stages", len(start), q.NumStages())
	}

	run, err := c.startRun(ctx, model.RunKindOptimize, req.Config, q, oc.Method)
	if err != nil {
		return OptimizeSummary{}, err
	}
	res, runErr := optimize.Minimize(ctx, q, start, c.settings(oc))
	opt := model.Optimization{
		VersionedRecord: storage.CurrentVersion(),
		RunID:           run.ID,
		Method:          res.Method,
		Start:           append([]float64(nil), start...),
		X:               res.X,
		Value:           res.Value,
		GradientNorm:    res.GradientNorm,
		Iterations:      res.Iterations,
		FuncEvaluations: res.FuncEvaluations,
		GradEvaluations: res.GradEvaluations,
		HessEvaluations: res.HessEvaluations,
		Status:          res.Status,
		Runtime:         res.Runtime,
	}
	if err := c.finishRun(ctx, run, &opt, runErr); err != nil {
		return OptimizeSummary{RunID: run.ID}, err
	}
	c.logger.Info("optimization finished",
		slog.String("run_id", run.ID),
		slog.String("method", res.Method),
		slog.Float64("value", res.Value),
		slog.Int("iterations", res.Iterations),
	)
	return OptimizeSummary{RunID: run.ID, Start: opt.Start, Result: res}, nil
}

type ContinueRequest struct {
	Config config.Config
	// OnLayer, when set, sees each layer as it completes.
	OnLayer func(optimize.LayerResult)
}

type ContinueSummary struct {
	RunID  string                 `json:"run_id"`
	Layers []optimize.LayerResult `json:"layers"`
}

func (c *Client) Continue(ctx context.Context, req ContinueRequest) (ContinueSummary, error) {
	built, err := c.build(req.Config)
	if err != nil {
		return ContinueSummary{}, err
	}
	q := built.QAOA
	oc := req.Config.Optimization
	cc := req.Config.Continuation

	var start []float64
	if oc.Start != nil {
		if len(oc.Start) < 2 {
			return ContinueSummary{}, fmt.Errorf("continuation start needs 2 angles, got %d", len(oc.Start))
		}
		start = oc.Start[:2]
	}
	cont := &optimize.Continuation{
		Settings:         c.settings(oc),
		Rand:             rand.New(rand.NewSource(oc.Seed)),
		RestartStep:      cc.RestartStep,
		RestartGradient:  cc.RestartGradient,
		MaxRestartTrials: cc.MaxRestartTrials,
		OnLayer:          req.OnLayer,
	}
	if cc.AttemptPolicy != "" {
		if cont.AttemptPolicy, err = tuning.AttemptPolicyFromConfig(cc.AttemptPolicy, cc.AttemptParam); err != nil {
			return ContinueSummary{}, err
		}
	}

	run, err := c.startRun(ctx, model.RunKindContinuation, req.Config, q, oc.Method)
	if err != nil {
		return ContinueSummary{}, err
	}
	layers, runErr := cont.Run(ctx, q, start)
	var opt *model.Optimization
	if len(layers) > 0 {
		last := layers[len(layers)-1]
		opt = &model.Optimization{
			VersionedRecord: storage.CurrentVersion(),
			RunID:           run.ID,
			Method:          run.Method,
			Start:           start,
			X:               last.Theta,
			Value:           last.Value,
			GradientNorm:    last.GradientNorm,
			Status:          last.Status,
			Layers:          make([]model.LayerRecord, len(layers)),
		}
		for i, l := range layers {
			opt.Iterations += l.Iterations
			opt.FuncEvaluations += l.FuncEvaluations
			opt.GradEvaluations += l.GradEvaluations
			opt.Layers[i] = model.LayerRecord(l)
		}
	}
	if err := c.finishRun(ctx, run, opt, runErr); err != nil {
		return ContinueSummary{RunID: run.ID, Layers: layers}, err
	}
	return ContinueSummary{RunID: run.ID, Layers: layers}, nil
}

type LandscapeRequest struct {
	Config config.Config
}

type LandscapeSummary struct {
	Points      int         `json:"points"`
	EvalPoints  int         `json:"eval_points"`
	Grid        [][]float64 `json:"grid"`
	Values      []float64   `json:"values"`
	Min         float64     `json:"min"`
	Max         float64     `json:"max"`
	ArgMin      []float64   `json:"argmin"`
	TrueMinimum *float64    `json:"true_minimum,omitempty"`
}

// Landscape fits the sine-series surrogate and evaluates it on the finer
// grid.
func (c *Client) Landscape(ctx context.Context, req LandscapeRequest) (LandscapeSummary, error) {
	built, err := c.build(req.Config)
	if err != nil {
		return LandscapeSummary{}, err
	}
	q := built.QAOA
	lc := req.Config.Landscape
	points := lc.Points
	if points <= 0 {
		points = 16
	}
	evalPoints := max(lc.EvalPoints, points)
	fit, err := landscape.Fit(ctx, q, points)
	if err != nil {
		return LandscapeSummary{}, err
	}
	values, err := fit.Values(evalPoints)
	if err != nil {
		return LandscapeSummary{}, err
	}
	grid, err := landscape.Grid(evalPoints, q.NumStages())
	if err != nil {
		return LandscapeSummary{}, err
	}
	lo := floats.MinIdx(values)
	out := LandscapeSummary{
		Points:     points,
		EvalPoints: evalPoints,
		Grid:       grid,
		Values:     values,
		Min:        values[lo],
		Max:        floats.Max(values),
		ArgMin:     grid[lo],
	}
	if v, err := q.TrueMinimum(); err == nil {
		out.TrueMinimum = &v
	}
	return out, nil
}

type RunsRequest struct {
	Limit int
	Kind  string
}

// Runs lists stored runs, newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]model.Run, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Run, 0, min(len(runs), req.Limit))
	for i := len(runs) - 1; i >= 0 && len(out) < req.Limit; i-- {
		if req.Kind != "" && runs[i].Kind != req.Kind {
			continue
		}
		out = append(out, runs[i])
	}
	return out, nil
}

func (c *Client) Run(ctx context.Context, runID string) (model.Run, error) {
	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return model.Run{}, err
	}
	if !ok {
		return model.Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, nil
}

func (c *Client) Samples(ctx context.Context, runID string) ([]model.Sample, error) {
	samples, ok, err := c.store.GetSamples(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no samples for %s", ErrRunNotFound, runID)
	}
	return samples, nil
}

func (c *Client) Optimization(ctx context.Context, runID string) (model.Optimization, error) {
	opt, ok, err := c.store.GetOptimization(ctx, runID)
	if err != nil {
		return model.Optimization{}, err
	}
	if !ok {
		return model.Optimization{}, fmt.Errorf("%w: no optimization for %s", ErrRunNotFound, runID)
	}
	return opt, nil
}
