package storage

import (
	"context"

	"qaoa/internal/model"
)

// Store defines persistence for runs, their samples and optimization
// outcomes. Circuit cache state is never stored.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.Run) error
	GetRun(ctx context.Context, id string) (model.Run, bool, error)
	ListRuns(ctx context.Context) ([]model.Run, error)
	// SaveSamples adds samples to a run, replacing any with the same index.
	SaveSamples(ctx context.Context, runID string, samples []model.Sample) error
	GetSamples(ctx context.Context, runID string) ([]model.Sample, bool, error)
	SaveOptimization(ctx context.Context, opt model.Optimization) error
	GetOptimization(ctx context.Context, runID string) (model.Optimization, bool, error)
}
