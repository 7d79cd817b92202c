package storage

import (
	"context"
	"testing"
	"time"

	"qaoa/internal/model"
)

func newMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return store
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SaveRun(context.Background(), model.Run{ID: "r"}); err == nil {
		t.Fatal("expected error before init")
	}
}

func TestMemoryStoreRunsListedInCreationOrder(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"c", "a", "b"} {
		run := model.Run{VersionedRecord: CurrentVersion(), ID: id, CreatedAt: base.Add(time.Duration(2-i) * time.Minute)}
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run %s: %v", id, err)
		}
	}
	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	got := []string{runs[0].ID, runs[1].ID, runs[2].ID}
	want := []string{"b", "a", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order: got %v want %v", got, want)
		}
	}

	run, ok, err := store.GetRun(ctx, "a")
	if err != nil || !ok || run.ID != "a" {
		t.Fatalf("get run: %+v %v %v", run, ok, err)
	}
	if _, ok, _ := store.GetRun(ctx, "missing"); ok {
		t.Fatal("expected missing run")
	}
}

func TestMemoryStoreSamplesAppendAndSort(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)

	first := []model.Sample{{Index: 2, Theta: []float64{0.2}}, {Index: 0, Theta: []float64{0.0}}}
	second := []model.Sample{{Index: 1, Theta: []float64{0.1}, Value: float(-1)}}
	if err := store.SaveSamples(ctx, "run-1", first); err != nil {
		t.Fatalf("save samples: %v", err)
	}
	if err := store.SaveSamples(ctx, "run-1", second); err != nil {
		t.Fatalf("save samples: %v", err)
	}

	// stored copies must not alias the caller's slices
	first[0].Theta[0] = 99

	samples, ok, err := store.GetSamples(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get samples: %v %v", ok, err)
	}
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	for i, sample := range samples {
		if sample.Index != i {
			t.Fatalf("samples out of order: %+v", samples)
		}
	}
	if samples[2].Theta[0] != 0.2 {
		t.Fatalf("sample aliased caller slice: %v", samples[2].Theta)
	}
	if samples[1].Value == nil || *samples[1].Value != -1 {
		t.Fatalf("unexpected value: %+v", samples[1])
	}

	if _, ok, _ := store.GetSamples(ctx, "run-2"); ok {
		t.Fatal("expected no samples for unknown run")
	}
}

func TestMemoryStoreOptimizationRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)

	opt := model.Optimization{
		VersionedRecord: CurrentVersion(),
		RunID:           "run-3",
		Method:          "lbfgs",
		X:               []float64{0.5, 0.25},
		Value:           -2,
		Layers:          []model.LayerRecord{{Layer: 1, Theta: []float64{0.5, 0.25}}},
	}
	if err := store.SaveOptimization(ctx, opt); err != nil {
		t.Fatalf("save optimization: %v", err)
	}
	opt.Layers[0].Theta[0] = 7

	loaded, ok, err := store.GetOptimization(ctx, "run-3")
	if err != nil || !ok {
		t.Fatalf("get optimization: %v %v", ok, err)
	}
	if loaded.Method != "lbfgs" || loaded.Value != -2 || loaded.Layers[0].Theta[0] != 0.5 {
		t.Fatalf("unexpected optimization: %+v", loaded)
	}
}
