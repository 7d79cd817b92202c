// Package tuning holds derivative-free local search over control angle
// vectors. Tuners minimize the objective.
package tuning

import "context"

// ObjectiveFn evaluates the objective at theta. It must not retain theta.
type ObjectiveFn func(ctx context.Context, theta []float64) (float64, error)

type TuneReport struct {
	AttemptsPlanned      int     `json:"attempts_planned"`
	AttemptsExecuted     int     `json:"attempts_executed"`
	CandidateEvaluations int     `json:"candidate_evaluations"`
	AcceptedCandidates   int     `json:"accepted_candidates"`
	RejectedCandidates   int     `json:"rejected_candidates"`
	GoalReached          bool    `json:"goal_reached"`
	InitialValue         float64 `json:"initial_value"`
	FinalValue           float64 `json:"final_value"`
}

type Tuner interface {
	Name() string
	Tune(ctx context.Context, theta []float64, attempts int, objective ObjectiveFn) ([]float64, error)
}

type ReportingTuner interface {
	Tuner
	TuneWithReport(ctx context.Context, theta []float64, attempts int, objective ObjectiveFn) ([]float64, TuneReport, error)
}
