// Package sampling evaluates a circuit at many random control vectors in
// parallel, streaming the rows to CSV and to a run store.
package sampling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"qaoa/internal/circuit"
	"qaoa/internal/model"
	"qaoa/internal/storage"
)

const DefaultBufferSize = 50

// Observer is told about every evaluated sample and every flushed batch.
type Observer interface {
	ObserveSample(elapsed time.Duration)
	ObserveFlush()
}

// Distribution draws one control vector of the given length.
type Distribution func(rng *rand.Rand, stages int) []float64

// Uniform draws every angle independently from [lo, hi).
func Uniform(lo, hi float64) Distribution {
	return func(rng *rand.Rand, stages int) []float64 {
		theta := make([]float64, stages)
		for i := range theta {
			theta[i] = lo + (hi-lo)*rng.Float64()
		}
		return theta
	}
}

type Config struct {
	Samples    int
	Workers    int
	BufferSize int
	Seed       int64
	Quantities []Quantity

	// Distribution defaults to Uniform(0, pi/2).
	Distribution Distribution

	// Problem and Layers only label the stored run.
	Problem string
	Layers  int
}

type Summary struct {
	RunID   string        `json:"run_id"`
	Samples int           `json:"samples"`
	Workers int           `json:"workers"`
	Elapsed time.Duration `json:"elapsed"`
}

// Sampler owns the prototype circuit; each worker evaluates on its own
// clone. Store, Output and Observer are optional.
type Sampler struct {
	Circuit  *circuit.Circuit
	Store    storage.Store
	Output   io.Writer
	Logger   *slog.Logger
	Observer Observer
}

func (s *Sampler) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (cfg Config) normalize() (Config, error) {
	if cfg.Samples <= 0 {
		return cfg, fmt.Errorf("sample count must be > 0, got %d", cfg.Samples)
	}
	if cfg.Workers < 0 {
		return cfg, fmt.Errorf("worker count must be >= 0, got %d", cfg.Workers)
	}
	if cfg.Workers == 0 {
		cfg.Workers = max(1, runtime.NumCPU()/4)
	}
	cfg.Workers = min(cfg.Workers, cfg.Samples)
	if cfg.BufferSize < 0 {
		return cfg, fmt.Errorf("buffer size must be >= 0, got %d", cfg.BufferSize)
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if len(cfg.Quantities) == 0 {
		cfg.Quantities = []Quantity{QuantityValue}
	}
	if cfg.Distribution == nil {
		cfg.Distribution = Uniform(0, math.Pi/2)
	}
	return cfg, nil
}

func requested(quantities []Quantity, want ...Quantity) bool {
	for _, q := range quantities {
		for _, w := range want {
			if q == w {
				return true
			}
		}
	}
	return false
}

// Run draws cfg.Samples control vectors from a generator seeded with
// cfg.Seed and evaluates them on cfg.Workers circuit clones. The drawn
// vectors depend only on the seed, not on the worker count. Rows reach
// the output in completion order.
func (s *Sampler) Run(ctx context.Context, cfg Config) (Summary, error) {
	if s.Circuit == nil {
		return Summary{}, errors.New("sampler circuit is required")
	}
	cfg, err := cfg.normalize()
	if err != nil {
		return Summary{}, err
	}
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}
	started := time.Now()
	stages := s.Circuit.NumStages()
	logger := s.logger()

	var trueMin float64
	if requested(cfg.Quantities, QuantityApproximationRatio) {
		if trueMin, err = s.Circuit.TrueMinimum(); err != nil {
			return Summary{}, fmt.Errorf("approximation ratio: %w", err)
		}
		if trueMin == 0 {
			return Summary{}, errors.New("approximation ratio: target minimum is zero")
		}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	thetas := make([][]float64, cfg.Samples)
	for i := range thetas {
		thetas[i] = cfg.Distribution(rng, stages)
		if len(thetas[i]) != stages {
			return Summary{}, fmt.Errorf("distribution drew %d angles, circuit has %d stages", len(thetas[i]), stages)
		}
	}

	clones := make([]*circuit.Circuit, cfg.Workers)
	for i := range clones {
		if clones[i], err = s.Circuit.Clone(); err != nil {
			return Summary{}, err
		}
	}

	run := model.Run{
		VersionedRecord: storage.CurrentVersion(),
		ID:              uuid.NewString(),
		Kind:            model.RunKindSample,
		CreatedAt:       time.Now().UTC(),
		Problem:         cfg.Problem,
		NumQubits:       s.Circuit.NumQubits(),
		Layers:          cfg.Layers,
		Stages:          stages,
		Seed:            cfg.Seed,
		Samples:         cfg.Samples,
		Status:          model.RunStatusRunning,
	}
	if s.Store != nil {
		if err := s.Store.SaveRun(ctx, run); err != nil {
			return Summary{}, fmt.Errorf("save run: %w", err)
		}
	}
	logger.Info("sampling started",
		slog.String("run_id", run.ID),
		slog.Int("samples", cfg.Samples),
		slog.Int("workers", cfg.Workers),
		slog.Int("stages", stages),
	)

	writer, err := newBatchWriter(run.ID, s.Output, s.Store, cfg.Quantities, stages, cfg.BufferSize)
	if err != nil {
		return Summary{}, err
	}
	writer.onFlush = func(written int) {
		if s.Observer != nil {
			s.Observer.ObserveFlush()
		}
		logger.Info("samples written",
			slog.String("run_id", run.ID),
			slog.Int("written", written),
			slog.Int("total", cfg.Samples),
			slog.String("progress", fmt.Sprintf("%.2f%%", 100*float64(written)/float64(cfg.Samples))),
		)
	}

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan int)
	results := make(chan model.Sample, cfg.Workers)

	g.Go(func() error {
		defer close(jobs)
		for i := range thetas {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var workers sync.WaitGroup
	for _, c := range clones {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for i := range jobs {
				t0 := time.Now()
				sample, err := evaluate(c, i, thetas[i], cfg.Quantities, trueMin)
				if err != nil {
					return fmt.Errorf("sample %d: %w", i, err)
				}
				if s.Observer != nil {
					s.Observer.ObserveSample(time.Since(t0))
				}
				select {
				case results <- sample:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		workers.Wait()
		close(results)
		return nil
	})

	g.Go(func() error {
		for sample := range results {
			if err := writer.add(gctx, sample); err != nil {
				return fmt.Errorf("write samples: %w", err)
			}
		}
		// finished rows are kept even when the run was cancelled
		return writer.flush(context.WithoutCancel(gctx))
	})

	runErr := g.Wait()
	run.Status = model.RunStatusCompleted
	if runErr != nil {
		run.Status = model.RunStatusFailed
	}
	if s.Store != nil {
		if err := s.Store.SaveRun(context.WithoutCancel(ctx), run); err != nil && runErr == nil {
			runErr = fmt.Errorf("save run: %w", err)
		}
	}
	summary := Summary{RunID: run.ID, Samples: writer.written, Workers: cfg.Workers, Elapsed: time.Since(started)}
	if runErr != nil {
		logger.Error("sampling failed", slog.String("run_id", run.ID), slog.Int("written", writer.written), slog.Any("error", runErr))
		return summary, runErr
	}
	logger.Info("sampling finished",
		slog.String("run_id", run.ID),
		slog.Int("samples", summary.Samples),
		slog.Duration("elapsed", summary.Elapsed),
	)
	return summary, nil
}

func evaluate(c *circuit.Circuit, index int, theta []float64, quantities []Quantity, trueMin float64) (model.Sample, error) {
	sample := model.Sample{Index: index, Theta: append([]float64(nil), theta...)}
	if requested(quantities, QuantityValue, QuantityApproximationRatio) {
		v, err := c.Value(theta)
		if err != nil {
			return model.Sample{}, err
		}
		if requested(quantities, QuantityValue) {
			sample.Value = &v
		}
		if requested(quantities, QuantityApproximationRatio) {
			ratio := v / trueMin
			sample.ApproximationRatio = &ratio
		}
	}
	if requested(quantities, QuantityGradient, QuantityGradientNorm) {
		g, err := c.Gradient(theta)
		if err != nil {
			return model.Sample{}, err
		}
		if requested(quantities, QuantityGradient) {
			sample.Gradient = g
		}
		if requested(quantities, QuantityGradientNorm) {
			norm := floats.Norm(g, 2)
			sample.GradientNorm = &norm
		}
	}
	if requested(quantities, QuantityHessianEigenvalues) {
		eig, err := c.HessEig(theta)
		if err != nil {
			return model.Sample{}, err
		}
		sample.HessianEigenvalues = eig
	}
	return sample, nil
}
