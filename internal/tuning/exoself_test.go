package tuning

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"
)

func bowl(center []float64) ObjectiveFn {
	return func(_ context.Context, theta []float64) (float64, error) {
		var s float64
		for i, x := range theta {
			d := x - center[i]
			s += d * d
		}
		return s, nil
	}
}

func TestExoselfLowersObjective(t *testing.T) {
	objective := bowl([]float64{1, -0.5})
	theta := []float64{-2, 2}
	tuner := &Exoself{Rand: rand.New(rand.NewSource(1)), Steps: 6, StepSize: 0.4}

	before, _ := objective(context.Background(), theta)
	tuned, report, err := tuner.TuneWithReport(context.Background(), theta, 60, objective)
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	after, _ := objective(context.Background(), tuned)
	if after >= before {
		t.Fatalf("expected tuned value < baseline: before=%f after=%f", before, after)
	}
	if report.InitialValue != before || report.FinalValue != after {
		t.Fatalf("report values mismatch: %+v before=%f after=%f", report, before, after)
	}
	if report.CandidateEvaluations != report.AcceptedCandidates+report.RejectedCandidates {
		t.Fatalf("inconsistent candidate accounting: %+v", report)
	}
	if theta[0] != -2 || theta[1] != 2 {
		t.Fatalf("input vector mutated: %v", theta)
	}
}

func TestExoselfEmptyVectorNoop(t *testing.T) {
	tuner := &Exoself{Rand: rand.New(rand.NewSource(1)), Steps: 4, StepSize: 0.2}
	out, err := tuner.Tune(context.Background(), nil, 10, func(context.Context, []float64) (float64, error) {
		t.Fatal("objective should not be evaluated")
		return 0, nil
	})
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("unexpected output: %v", out)
	}
}

func TestExoselfInputValidation(t *testing.T) {
	theta := []float64{0}
	objective := func(context.Context, []float64) (float64, error) { return 0, nil }
	src := func() *rand.Rand { return rand.New(rand.NewSource(1)) }

	cases := map[string]*Exoself{
		"rand":            {},
		"steps":           {Rand: src(), Steps: 0, StepSize: 1},
		"step size":       {Rand: src(), Steps: 1, StepSize: 0},
		"perturbation":    {Rand: src(), Steps: 1, StepSize: 1, PerturbationRange: -1},
		"annealing":       {Rand: src(), Steps: 1, StepSize: 1, AnnealingFactor: -1},
		"min improvement": {Rand: src(), Steps: 1, StepSize: 1, MinImprovement: -0.1},
		"selection":       {Rand: src(), Steps: 1, StepSize: 1, CandidateSelection: "unknown"},
	}
	for name, tuner := range cases {
		if _, err := tuner.Tune(context.Background(), theta, 1, objective); err == nil {
			t.Fatalf("expected %s validation error", name)
		}
	}
	if _, err := (&Exoself{Rand: src(), Steps: 1, StepSize: 1}).Tune(context.Background(), theta, 1, nil); err == nil {
		t.Fatal("expected objective validation error")
	}
}

func TestExoselfMinImprovementBlocksSmallGains(t *testing.T) {
	theta := []float64{0}
	tuner := &Exoself{
		Rand:           rand.New(rand.NewSource(3)),
		Steps:          6,
		StepSize:       0.25,
		MinImprovement: 0.5,
	}
	objective := func(_ context.Context, x []float64) (float64, error) {
		return math.Abs(x[0] - 0.2), nil
	}
	tuned, err := tuner.Tune(context.Background(), theta, 40, objective)
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	if tuned[0] != theta[0] {
		t.Fatalf("expected unchanged angle when gains are below threshold: got=%f", tuned[0])
	}
}

func TestExoselfAttemptsZeroReturnsClone(t *testing.T) {
	theta := []float64{1}
	tuner := &Exoself{Rand: rand.New(rand.NewSource(1)), Steps: 2, StepSize: 0.5}
	out, err := tuner.Tune(context.Background(), theta, 0, bowl([]float64{0}))
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	out[0] = 5
	if theta[0] != 1 {
		t.Fatal("expected a copy of the input")
	}
}

func TestExoselfSelectionModesSupported(t *testing.T) {
	modes := []string{
		CandidateSelectBestSoFar,
		CandidateSelectOriginal,
		CandidateSelectDynamicA,
		CandidateSelectDynamic,
		CandidateSelectAll,
		CandidateSelectAllRandom,
		CandidateSelectRecent,
		CandidateSelectRecentRnd,
	}
	for i, mode := range modes {
		tuner := &Exoself{
			Rand:               rand.New(rand.NewSource(int64(100 + i))),
			Steps:              3,
			StepSize:           0.15,
			CandidateSelection: mode,
		}
		if _, err := tuner.Tune(context.Background(), []float64{0.2, 0.4}, 8, bowl([]float64{0, 0})); err != nil {
			t.Fatalf("tune with mode=%s: %v", mode, err)
		}
	}
}

func TestExoselfRandomSelectionModesReturnNonEmptyPool(t *testing.T) {
	tuner := &Exoself{Rand: rand.New(rand.NewSource(11))}
	for _, mode := range []string{CandidateSelectDynamic, CandidateSelectAllRandom, CandidateSelectRecentRnd} {
		tuner.CandidateSelection = mode
		pool, err := tuner.candidateBases([]float64{1}, []float64{2}, []float64{3})
		if err != nil {
			t.Fatalf("candidateBases(%s): %v", mode, err)
		}
		if len(pool) == 0 {
			t.Fatalf("candidateBases(%s) returned empty pool", mode)
		}
	}
}

func TestExoselfConcurrentTuneSafe(t *testing.T) {
	tuner := &Exoself{Rand: rand.New(rand.NewSource(1)), Steps: 4, StepSize: 0.2}
	var wg sync.WaitGroup
	errCh := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tuner.Tune(context.Background(), []float64{0.1, 0.3}, 8, bowl([]float64{0, 0})); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("unexpected tuning error: %v", err)
	}
}

func TestExoselfStopsEarlyWhenGoalReached(t *testing.T) {
	calls := 0
	tuner := &Exoself{Rand: rand.New(rand.NewSource(19)), Steps: 4, StepSize: 0.2}
	tuner.SetGoal(-0.5)
	objective := func(context.Context, []float64) (float64, error) {
		calls++
		return -1, nil
	}
	_, report, err := tuner.TuneWithReport(context.Background(), []float64{0.5}, 25, objective)
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	if calls != 1 || !report.GoalReached {
		t.Fatalf("expected goal short-circuit after one evaluation, got calls=%d report=%+v", calls, report)
	}
}

func TestExoselfHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tuner := &Exoself{Rand: rand.New(rand.NewSource(2)), Steps: 2, StepSize: 0.1}
	if _, err := tuner.Tune(ctx, []float64{0}, 5, bowl([]float64{1})); err == nil {
		t.Fatal("expected context error")
	}
}

func TestExoselfPerturbationRangeAffectsDelta(t *testing.T) {
	objective := func(_ context.Context, x []float64) (float64, error) { return -x[0], nil }
	run := func(perturbationRange float64) float64 {
		tuner := Exoself{
			Rand:               rand.New(rand.NewSource(23)),
			Steps:              1,
			StepSize:           0.25,
			PerturbationRange:  perturbationRange,
			CandidateSelection: CandidateSelectOriginal,
		}
		x, err := tuner.Tune(context.Background(), []float64{0}, 1, objective)
		if err != nil {
			t.Fatalf("tune: %v", err)
		}
		return math.Abs(x[0])
	}
	// the same seed draws the same unit step, so a wider range moves
	// further whenever the step is accepted
	base, ranged := run(0), run(2)
	if base != 0 && ranged <= base {
		t.Fatalf("expected perturbation range to increase magnitude: base=%f ranged=%f", base, ranged)
	}
}
