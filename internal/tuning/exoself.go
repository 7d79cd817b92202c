package tuning

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
)

// Exoself is a stochastic hill climber over angle vectors. Each attempt
// perturbs one or more candidate bases for Steps rounds and accepts the
// best candidate when it lowers the objective by more than MinImprovement.
type Exoself struct {
	Rand               *rand.Rand
	Steps              int
	StepSize           float64
	PerturbationRange  float64
	AnnealingFactor    float64
	MinImprovement     float64
	HasGoal            bool
	GoalValue          float64
	CandidateSelection string
	mu                 sync.Mutex
}

const (
	CandidateSelectBestSoFar = "best_so_far"
	CandidateSelectOriginal  = "original"
	CandidateSelectDynamicA  = "dynamic"
	CandidateSelectDynamic   = "dynamic_random"
	CandidateSelectAll       = "all"
	CandidateSelectAllRandom = "all_random"
	CandidateSelectRecent    = "recent"
	CandidateSelectRecentRnd = "recent_random"
)

func (e *Exoself) Name() string {
	return "exoself_hillclimb"
}

// SetGoal stops tuning once the objective reaches value or lower.
func (e *Exoself) SetGoal(value float64) {
	e.HasGoal = true
	e.GoalValue = value
}

func (e *Exoself) Tune(ctx context.Context, theta []float64, attempts int, objective ObjectiveFn) ([]float64, error) {
	best, _, err := e.TuneWithReport(ctx, theta, attempts, objective)
	return best, err
}

func (e *Exoself) TuneWithReport(ctx context.Context, theta []float64, attempts int, objective ObjectiveFn) ([]float64, TuneReport, error) {
	report := TuneReport{AttemptsPlanned: attempts}
	if err := ctx.Err(); err != nil {
		return nil, report, err
	}
	if e == nil || e.Rand == nil {
		return nil, report, errors.New("random source is required")
	}
	if attempts <= 0 || len(theta) == 0 {
		report.AttemptsPlanned = max(attempts, 0)
		return clone(theta), report, nil
	}
	if err := e.validate(); err != nil {
		return nil, report, err
	}
	if objective == nil {
		return nil, report, errors.New("objective function is required")
	}
	perturbationRange := e.PerturbationRange
	if perturbationRange == 0 {
		perturbationRange = 1.0
	}
	annealingFactor := e.AnnealingFactor
	if annealingFactor == 0 {
		annealingFactor = 1.0
	}

	best := clone(theta)
	bestValue, err := objective(ctx, best)
	if err != nil {
		return nil, report, err
	}
	report.InitialValue = bestValue
	report.FinalValue = bestValue
	if e.goalReached(bestValue) {
		report.GoalReached = true
		return best, report, nil
	}
	recent := clone(best)

	for a := 0; a < attempts; a++ {
		report.AttemptsExecuted++
		bases, err := e.candidateBases(best, theta, recent)
		if err != nil {
			return nil, report, err
		}
		localBest := clone(best)
		localBestValue := bestValue
		for _, base := range bases {
			candidate, err := e.perturb(ctx, base, perturbationRange, annealingFactor)
			if err != nil {
				return nil, report, err
			}
			value, err := objective(ctx, candidate)
			if err != nil {
				return nil, report, err
			}
			report.CandidateEvaluations++
			if value < localBestValue-e.MinImprovement {
				localBest = candidate
				localBestValue = value
				report.AcceptedCandidates++
			} else {
				report.RejectedCandidates++
			}
		}
		recent = clone(localBest)
		if localBestValue < bestValue-e.MinImprovement {
			best = localBest
			bestValue = localBestValue
		}
		if e.goalReached(bestValue) {
			report.GoalReached = true
			break
		}
	}
	report.FinalValue = bestValue
	return best, report, nil
}

func (e *Exoself) validate() error {
	if e.Steps <= 0 {
		return errors.New("steps must be > 0")
	}
	if e.StepSize <= 0 {
		return errors.New("step size must be > 0")
	}
	if e.PerturbationRange < 0 {
		return errors.New("perturbation range must be >= 0")
	}
	if e.AnnealingFactor < 0 {
		return errors.New("annealing factor must be >= 0")
	}
	if e.MinImprovement < 0 {
		return errors.New("min improvement must be >= 0")
	}
	return nil
}

func (e *Exoself) goalReached(value float64) bool {
	return e.HasGoal && value <= e.GoalValue
}

func (e *Exoself) randIntn(n int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Rand.Intn(n)
}

func (e *Exoself) randFloat64() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Rand.Float64()
}

func clone(theta []float64) []float64 {
	return append([]float64(nil), theta...)
}

func NormalizeCandidateSelectionName(name string) string {
	switch name {
	case "", CandidateSelectBestSoFar:
		return CandidateSelectBestSoFar
	default:
		return name
	}
}

func (e *Exoself) candidateBases(best, original, recent []float64) ([][]float64, error) {
	mode := NormalizeCandidateSelectionName(e.CandidateSelection)
	if base, ok := randomSelectionBase(mode); ok {
		pool, err := candidateBasesForMode(base, best, original, recent)
		if err != nil {
			return nil, err
		}
		return e.randomSubset(pool), nil
	}
	return candidateBasesForMode(mode, best, original, recent)
}

func candidateBasesForMode(mode string, best, original, recent []float64) ([][]float64, error) {
	switch mode {
	case CandidateSelectBestSoFar:
		return [][]float64{clone(best)}, nil
	case CandidateSelectOriginal:
		return [][]float64{clone(original)}, nil
	case CandidateSelectDynamicA:
		return [][]float64{clone(best), clone(original)}, nil
	case CandidateSelectRecent:
		return [][]float64{clone(recent)}, nil
	case CandidateSelectAll:
		return [][]float64{clone(best), clone(original), clone(recent)}, nil
	default:
		return nil, errors.New("unsupported candidate selection")
	}
}

func randomSelectionBase(mode string) (string, bool) {
	switch mode {
	case CandidateSelectDynamic:
		return CandidateSelectDynamicA, true
	case CandidateSelectAllRandom:
		return CandidateSelectAll, true
	case CandidateSelectRecentRnd:
		return CandidateSelectRecent, true
	default:
		return mode, false
	}
}

func (e *Exoself) randomSubset(pool [][]float64) [][]float64 {
	if len(pool) <= 1 {
		return pool
	}
	p := 1 / math.Sqrt(float64(len(pool)))
	chosen := make([][]float64, 0, len(pool))
	for i := range pool {
		if e.randFloat64() < p {
			chosen = append(chosen, pool[i])
		}
	}
	if len(chosen) > 0 {
		return chosen
	}
	return [][]float64{pool[e.randIntn(len(pool))]}
}

// perturb nudges one random angle per step with a spread that anneals
// geometrically over the steps.
func (e *Exoself) perturb(ctx context.Context, base []float64, perturbationRange, annealingFactor float64) ([]float64, error) {
	candidate := clone(base)
	for s := 0; s < e.Steps; s++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx := e.randIntn(len(candidate))
		spread := e.StepSize * perturbationRange * math.Pow(annealingFactor, float64(s))
		candidate[idx] += (e.randFloat64()*2 - 1) * spread
	}
	return candidate, nil
}
