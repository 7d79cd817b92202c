package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

const (
	RunKindSample       = "sample"
	RunKindOptimize     = "optimize"
	RunKindContinuation = "continue"
)

// Run describes one sampling or optimization job over a circuit.
type Run struct {
	VersionedRecord
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	Problem   string    `json:"problem"`
	NumQubits int       `json:"num_qubits"`
	Layers    int       `json:"layers"`
	Stages    int       `json:"stages"`
	Method    string    `json:"method,omitempty"`
	Seed      int64     `json:"seed"`
	Samples   int       `json:"samples,omitempty"`
	Status    string    `json:"status"`
}

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Sample is one evaluated control vector. Fields other than Index and
// Theta are filled only for the quantities the run requested.
type Sample struct {
	Index              int       `json:"index"`
	Theta              []float64 `json:"theta"`
	Value              *float64  `json:"value,omitempty"`
	ApproximationRatio *float64  `json:"approximation_ratio,omitempty"`
	Gradient           []float64 `json:"gradient,omitempty"`
	GradientNorm       *float64  `json:"gradient_norm,omitempty"`
	HessianEigenvalues []float64 `json:"hessian_eigenvalues,omitempty"`
}

type LayerRecord struct {
	Layer              int       `json:"layer"`
	Theta              []float64 `json:"theta"`
	Value              float64   `json:"value"`
	GradientNorm       float64   `json:"gradient_norm"`
	HessianEigenvalues []float64 `json:"hessian_eigenvalues"`
	Iterations         int       `json:"iterations"`
	FuncEvaluations    int       `json:"func_evaluations"`
	GradEvaluations    int       `json:"grad_evaluations"`
	Status             string    `json:"status"`
	RestartTrials      int       `json:"restart_trials"`
}

// Optimization is the outcome of an optimize or continuation run. Layers
// is set only for continuation runs.
type Optimization struct {
	VersionedRecord
	RunID           string        `json:"run_id"`
	Method          string        `json:"method"`
	Start           []float64     `json:"start"`
	X               []float64     `json:"x"`
	Value           float64       `json:"value"`
	GradientNorm    float64       `json:"gradient_norm"`
	Iterations      int           `json:"iterations"`
	FuncEvaluations int           `json:"func_evaluations"`
	GradEvaluations int           `json:"grad_evaluations"`
	HessEvaluations int           `json:"hess_evaluations"`
	Status          string        `json:"status"`
	Runtime         time.Duration `json:"runtime"`
	Layers          []LayerRecord `json:"layers,omitempty"`
}
