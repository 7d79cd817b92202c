package qaoa

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"math"
	"testing"

	"qaoa/internal/config"
	"qaoa/internal/model"
	"qaoa/internal/optimize"
	"qaoa/internal/telemetry"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(Options{StoreKind: "memory", Metrics: telemetry.New()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	if err := client.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return client
}

func smallConfig(layers int) config.Config {
	cfg := config.Default()
	cfg.Problem.Graph.Vertices = 6
	cfg.Circuit.Layers = layers
	return cfg
}

func TestClientEvaluate(t *testing.T) {
	client := newTestClient(t)
	ev, err := client.Evaluate(context.Background(), EvaluateRequest{
		Config:  smallConfig(2),
		Theta:   []float64{0.3, 0.2, 0.5, 0.1},
		Hessian: true,
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(ev.Gradient) != 4 || len(ev.Hessian) != 4 || len(ev.HessianEigenvalues) != 4 {
		t.Fatalf("unexpected shapes: %+v", ev)
	}
	for i := range ev.Hessian {
		for j := range ev.Hessian {
			if math.Abs(ev.Hessian[i][j]-ev.Hessian[j][i]) > 1e-8 {
				t.Fatalf("hessian not symmetric at (%d,%d)", i, j)
			}
		}
	}
	if ev.TrueMinimum == nil || ev.Value < *ev.TrueMinimum-1e-9 {
		t.Fatalf("value %v below true minimum %v", ev.Value, ev.TrueMinimum)
	}
}

func TestClientEvaluateRejectsWrongLength(t *testing.T) {
	client := newTestClient(t)
	if _, err := client.Evaluate(context.Background(), EvaluateRequest{
		Config: smallConfig(1),
		Theta:  []float64{0.1, 0.2, 0.3},
	}); err == nil {
		t.Fatal("expected length error")
	}
}

func TestClientCheckResidualsShrink(t *testing.T) {
	client := newTestClient(t)
	summary, err := client.Check(context.Background(), CheckRequest{
		Config: smallConfig(1),
		Steps:  4,
		Seed:   5,
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	for name, res := range map[string][]float64{
		"gradient":       summary.Gradient,
		"hess_vec":       summary.HessVec,
		"tangent":        summary.Tangent,
		"second_adjoint": summary.SecondAdjoint,
	} {
		if len(res) != len(summary.Steps) {
			t.Fatalf("%s: %d residuals for %d steps", name, len(res), len(summary.Steps))
		}
		if res[len(res)-1] > 1e-4 {
			t.Fatalf("%s: smallest-step residual too large: %v", name, res)
		}
	}
}

func TestClientSamplePersistsRun(t *testing.T) {
	client := newTestClient(t)
	cfg := smallConfig(1)
	cfg.Sampling.Samples = 12
	cfg.Sampling.Workers = 2
	cfg.Sampling.BufferSize = 5
	cfg.Sampling.Quantities = []string{"value", "apr"}

	var out bytes.Buffer
	summary, err := client.Sample(context.Background(), SampleRequest{Config: cfg, Output: &out})
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	samples, err := client.Samples(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("samples: %v", err)
	}
	if len(samples) != 12 {
		t.Fatalf("expected 12 samples, got %d", len(samples))
	}
	for _, s := range samples {
		if s.ApproximationRatio == nil || *s.ApproximationRatio > 1+1e-9 {
			t.Fatalf("bad approximation ratio on sample %d", s.Index)
		}
	}
	rows, err := csv.NewReader(&out).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 13 {
		t.Fatalf("expected header plus 12 rows, got %d", len(rows))
	}
	run, err := client.Run(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Kind != model.RunKindSample || run.Status != model.RunStatusCompleted {
		t.Fatalf("unexpected run: %+v", run)
	}
}

func TestClientOptimizePersistsResult(t *testing.T) {
	client := newTestClient(t)
	cfg := smallConfig(1)
	cfg.Optimization.Seed = 3

	summary, err := client.Optimize(context.Background(), OptimizeRequest{Config: cfg})
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if summary.Result.GradientNorm > 1e-4 {
		t.Fatalf("not converged: %+v", summary.Result)
	}
	opt, err := client.Optimization(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("optimization: %v", err)
	}
	if opt.Value != summary.Result.Value || len(opt.Start) != 2 {
		t.Fatalf("stored optimization mismatch: %+v", opt)
	}
	run, err := client.Run(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Method != optimize.MethodBFGS || run.Status != model.RunStatusCompleted {
		t.Fatalf("unexpected run: %+v", run)
	}
}

func TestClientOptimizeRejectsBadStart(t *testing.T) {
	client := newTestClient(t)
	cfg := smallConfig(2)
	cfg.Optimization.Start = []float64{0.1, 0.2}
	if _, err := client.Optimize(context.Background(), OptimizeRequest{Config: cfg}); err == nil {
		t.Fatal("expected start length error")
	}
	runs, err := client.Runs(context.Background(), RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no stored run, got %d", len(runs))
	}
}

func TestClientContinueStoresLayers(t *testing.T) {
	client := newTestClient(t)
	cfg := smallConfig(2)
	cfg.Optimization.Seed = 7

	var seen []int
	summary, err := client.Continue(context.Background(), ContinueRequest{
		Config:  cfg,
		OnLayer: func(l optimize.LayerResult) { seen = append(seen, l.Layer) },
	})
	if err != nil {
		t.Fatalf("continue: %v", err)
	}
	if len(summary.Layers) != 2 || len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("unexpected layers: %+v seen=%v", summary.Layers, seen)
	}
	opt, err := client.Optimization(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("optimization: %v", err)
	}
	if len(opt.Layers) != 2 || opt.Value != summary.Layers[1].Value {
		t.Fatalf("stored continuation mismatch: %+v", opt)
	}
	if len(opt.X) != 4 {
		t.Fatalf("expected full-length final angles, got %v", opt.X)
	}
}

func TestClientLandscapeBoundsTrueMinimum(t *testing.T) {
	client := newTestClient(t)
	cfg := smallConfig(1)
	cfg.Landscape.Points = 12
	cfg.Landscape.EvalPoints = 24

	summary, err := client.Landscape(context.Background(), LandscapeRequest{Config: cfg})
	if err != nil {
		t.Fatalf("landscape: %v", err)
	}
	if len(summary.Values) != 24*24 || len(summary.Grid) != len(summary.Values) {
		t.Fatalf("unexpected grid size: %d values %d points", len(summary.Values), len(summary.Grid))
	}
	if summary.Min > summary.Max || len(summary.ArgMin) != 2 {
		t.Fatalf("unexpected summary: min=%v max=%v argmin=%v", summary.Min, summary.Max, summary.ArgMin)
	}
}

func TestClientRunsNewestFirstWithKindFilter(t *testing.T) {
	client := newTestClient(t)
	cfg := smallConfig(1)
	cfg.Sampling.Samples = 2

	var ids []string
	for range 3 {
		summary, err := client.Sample(context.Background(), SampleRequest{Config: cfg})
		if err != nil {
			t.Fatalf("sample: %v", err)
		}
		ids = append(ids, summary.RunID)
	}
	if _, err := client.Optimize(context.Background(), OptimizeRequest{Config: cfg}); err != nil {
		t.Fatalf("optimize: %v", err)
	}

	runs, err := client.Runs(context.Background(), RunsRequest{Kind: model.RunKindSample, Limit: 2})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Fatalf("unexpected runs order: %+v", runs)
	}
	all, err := client.Runs(context.Background(), RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(all) != 4 || all[0].Kind != model.RunKindOptimize {
		t.Fatalf("expected optimize run first of 4, got %+v", all)
	}
}

func TestClientUnknownRun(t *testing.T) {
	client := newTestClient(t)
	if _, err := client.Run(context.Background(), "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	if _, err := client.Optimization(context.Background(), "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestClientRejectsInvalidConfig(t *testing.T) {
	client := newTestClient(t)
	cfg := smallConfig(1)
	cfg.Problem.Graph = &config.GraphSource{Edges: [][2]int{{0, 1}, {1, 2}}, Weights: []float64{1}}
	ctx := context.Background()

	if _, err := client.Evaluate(ctx, EvaluateRequest{Config: cfg}); err == nil {
		t.Fatal("evaluate: expected error for weight count mismatch")
	}
	if _, err := client.Check(ctx, CheckRequest{Config: cfg}); err == nil {
		t.Fatal("check: expected error")
	}
	if _, err := client.Sample(ctx, SampleRequest{Config: cfg}); err == nil {
		t.Fatal("sample: expected error")
	}
	if _, err := client.Optimize(ctx, OptimizeRequest{Config: cfg}); err == nil {
		t.Fatal("optimize: expected error")
	}
	if _, err := client.Continue(ctx, ContinueRequest{Config: cfg}); err == nil {
		t.Fatal("continue: expected error")
	}
	if _, err := client.Landscape(ctx, LandscapeRequest{Config: cfg}); err == nil {
		t.Fatal("landscape: expected error")
	}
	runs, err := client.Runs(ctx, RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no stored runs, got %d", len(runs))
	}
}

func TestClientEvaluateExpectedCutAndSpectrum(t *testing.T) {
	client := newTestClient(t)
	ev, err := client.Evaluate(context.Background(), EvaluateRequest{Config: smallConfig(1), Hessian: true})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	// the uniform state cuts every edge with probability 1/2
	if ev.ExpectedCut == nil || math.Abs(*ev.ExpectedCut-4.5) > 1e-9 {
		t.Fatalf("expected cut 4.5 on a 3-regular 6-vertex graph, got %v", ev.ExpectedCut)
	}
	var trace, sum float64
	for i := range ev.Hessian {
		trace += ev.Hessian[i][i]
		sum += ev.HessianEigenvalues[i]
	}
	if math.Abs(trace-sum) > 1e-9 {
		t.Fatalf("eigenvalues sum %v, hessian trace %v", sum, trace)
	}
}
