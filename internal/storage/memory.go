package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"qaoa/internal/model"
)

type MemoryStore struct {
	mu            sync.RWMutex
	initialized   bool
	runs          map[string]model.Run
	samples       map[string]map[int]model.Sample
	optimizations map[string]model.Optimization
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.Run)
	s.samples = make(map[string]map[int]model.Sample)
	s.optimizations = make(map[string]model.Optimization)
	return nil
}

func (s *MemoryStore) ready() error {
	if !s.initialized {
		return errors.New("store is not initialized")
	}
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return model.Run{}, false, err
	}
	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return nil, err
	}
	runs := make([]model.Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sortRuns(runs)
	return runs, nil
}

func sortRuns(runs []model.Run) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.Before(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}

func (s *MemoryStore) SaveSamples(_ context.Context, runID string, samples []model.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	byIndex, ok := s.samples[runID]
	if !ok {
		byIndex = make(map[int]model.Sample, len(samples))
		s.samples[runID] = byIndex
	}
	for _, sample := range samples {
		byIndex[sample.Index] = copySample(sample)
	}
	return nil
}

func (s *MemoryStore) GetSamples(_ context.Context, runID string) ([]model.Sample, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return nil, false, err
	}
	byIndex, ok := s.samples[runID]
	if !ok {
		return nil, false, nil
	}
	out := make([]model.Sample, 0, len(byIndex))
	for _, sample := range byIndex {
		out = append(out, copySample(sample))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, true, nil
}

func (s *MemoryStore) SaveOptimization(_ context.Context, opt model.Optimization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	s.optimizations[opt.RunID] = copyOptimization(opt)
	return nil
}

func (s *MemoryStore) GetOptimization(_ context.Context, runID string) (model.Optimization, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return model.Optimization{}, false, err
	}
	opt, ok := s.optimizations[runID]
	if !ok {
		return model.Optimization{}, false, nil
	}
	return copyOptimization(opt), true, nil
}

func copyFloats(v []float64) []float64 {
	if v == nil {
		return nil
	}
	return append([]float64(nil), v...)
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copySample(s model.Sample) model.Sample {
	return model.Sample{
		Index:              s.Index,
		Theta:              copyFloats(s.Theta),
		Value:              copyFloat(s.Value),
		ApproximationRatio: copyFloat(s.ApproximationRatio),
		Gradient:           copyFloats(s.Gradient),
		GradientNorm:       copyFloat(s.GradientNorm),
		HessianEigenvalues: copyFloats(s.HessianEigenvalues),
	}
}

func copyOptimization(o model.Optimization) model.Optimization {
	out := o
	out.Start = copyFloats(o.Start)
	out.X = copyFloats(o.X)
	if o.Layers != nil {
		out.Layers = make([]model.LayerRecord, len(o.Layers))
		for i, layer := range o.Layers {
			layer.Theta = copyFloats(layer.Theta)
			layer.HessianEigenvalues = copyFloats(layer.HessianEigenvalues)
			out.Layers[i] = layer
		}
	}
	return out
}
