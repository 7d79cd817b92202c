// Package config loads YAML run configurations and turns them into
// problem operators and QAOA circuits.
package config

import (
	"errors"
	"fmt"
	"math/bits"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	ProblemMaxCut   = "maxcut"
	ProblemIsing    = "ising"
	ProblemDiagonal = "diagonal"

	DriverSigmaX = "sigma_x"
	DriverSigmaY = "sigma_y"

	InitialUniform = "uniform"
	InitialZero    = "zero"
)

type Config struct {
	Problem      Problem      `yaml:"problem" validate:"required"`
	Circuit      Circuit      `yaml:"circuit"`
	Sampling     Sampling     `yaml:"sampling"`
	Optimization Optimization `yaml:"optimization"`
	Continuation Continuation `yaml:"continuation"`
	Landscape    Landscape    `yaml:"landscape"`
	Storage      Storage      `yaml:"storage"`
	Logging      Logging      `yaml:"logging"`
}

type Problem struct {
	Kind string `yaml:"kind" validate:"required,oneof=maxcut ising diagonal"`

	// maxcut
	Graph *GraphSource `yaml:"graph,omitempty"`

	// ising: dense fields and the strict upper triangle of the couplings
	Fields    []float64   `yaml:"fields,omitempty"`
	Couplings [][]float64 `yaml:"couplings,omitempty"`

	// diagonal
	Diagonal []float64 `yaml:"diagonal,omitempty" validate:"omitempty,pow2len"`
}

// GraphSource picks a graph from a library file, builds a random regular
// graph, or lists edges inline, in that order of precedence.
type GraphSource struct {
	Library  string    `yaml:"library,omitempty"`
	Degree   int       `yaml:"degree,omitempty" validate:"gte=0"`
	Vertices int       `yaml:"vertices,omitempty" validate:"gte=0"`
	Index    int       `yaml:"index,omitempty" validate:"gte=0"`
	Seed     *int64    `yaml:"seed,omitempty"`
	Edges    [][2]int  `yaml:"edges,omitempty"`
	Weights  []float64 `yaml:"weights,omitempty"`
}

type Circuit struct {
	Layers       int    `yaml:"layers" validate:"min=1"`
	Driver       string `yaml:"driver" validate:"omitempty,oneof=sigma_x sigma_y"`
	InitialState string `yaml:"initial_state" validate:"omitempty,oneof=uniform zero"`
}

type Sampling struct {
	Samples    int      `yaml:"samples" validate:"gte=0"`
	Workers    int      `yaml:"workers" validate:"gte=0"`
	BufferSize int      `yaml:"buffer_size" validate:"gte=0"`
	Seed       int64    `yaml:"seed"`
	Quantities []string `yaml:"quantities,omitempty"`
	Output     string   `yaml:"output,omitempty"`
}

type Optimization struct {
	Method             string    `yaml:"method" validate:"omitempty,oneof=bfgs lbfgs newton nelder-mead gradient-descent exoself"`
	Start              []float64 `yaml:"start,omitempty"`
	Seed               int64     `yaml:"seed"`
	GradientThreshold  float64   `yaml:"gradient_threshold" validate:"gte=0"`
	MaxIterations      int       `yaml:"max_iterations" validate:"gte=0"`
	MaxEvaluations     int       `yaml:"max_evaluations" validate:"gte=0"`
	Attempts           int       `yaml:"attempts" validate:"gte=0"`
	Steps              int       `yaml:"steps" validate:"gte=0"`
	StepSize           float64   `yaml:"step_size" validate:"gte=0"`
	PerturbationRange  float64   `yaml:"perturbation_range" validate:"gte=0"`
	AnnealingFactor    float64   `yaml:"annealing_factor" validate:"gte=0"`
	CandidateSelection string    `yaml:"candidate_selection,omitempty"`
}

type Continuation struct {
	RestartStep      float64 `yaml:"restart_step" validate:"gte=0"`
	RestartGradient  float64 `yaml:"restart_gradient" validate:"gte=0"`
	MaxRestartTrials int     `yaml:"max_restart_trials" validate:"gte=0"`
	AttemptPolicy    string  `yaml:"attempt_policy,omitempty" validate:"omitempty,oneof=fixed linear_decay size_proportional"`
	AttemptParam     float64 `yaml:"attempt_param"`
}

type Landscape struct {
	Points     int    `yaml:"points" validate:"gte=0"`
	EvalPoints int    `yaml:"eval_points" validate:"gte=0"`
	Output     string `yaml:"output,omitempty"`
}

type Storage struct {
	Kind   string `yaml:"kind" validate:"omitempty,oneof=memory sqlite"`
	DBPath string `yaml:"db_path,omitempty"`
}

type Logging struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// Default returns a one-layer MaxCut run on a random 3-regular graph with
// eight vertices.
func Default() Config {
	seed := int64(1)
	return Config{
		Problem: Problem{
			Kind:  ProblemMaxCut,
			Graph: &GraphSource{Degree: 3, Vertices: 8, Seed: &seed},
		},
		Circuit:      Circuit{Layers: 1, Driver: DriverSigmaX, InitialState: InitialUniform},
		Sampling:     Sampling{Samples: 100, BufferSize: 50, Quantities: []string{"value"}},
		Optimization: Optimization{Method: "bfgs"},
		Landscape:    Landscape{Points: 16, EvalPoints: 64},
		Storage:      Storage{Kind: "memory", DBPath: "qaoa.db"},
		Logging:      Logging{Level: "info", Format: "text"},
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("pow2len", func(fl validator.FieldLevel) bool {
		n := fl.Field().Len()
		return n >= 2 && bits.OnesCount(uint(n)) == 1
	})
	return v
}

// Load reads path and fills every unset field from Default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	// problem sections replace the default wholesale
	cfg.Problem = Problem{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct tags and the per-problem requirements tags
// cannot express.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Problem.Kind {
	case ProblemMaxCut:
		g := c.Problem.Graph
		if g == nil {
			return errors.New("invalid config: maxcut problem needs a graph")
		}
		if g.Library == "" && len(g.Edges) == 0 && (g.Degree == 0 || g.Vertices == 0) {
			return errors.New("invalid config: graph needs a library, degree and vertices, or edges")
		}
		if len(g.Weights) > 0 && len(g.Weights) != len(g.Edges) {
			return fmt.Errorf("invalid config: %d weights for %d edges", len(g.Weights), len(g.Edges))
		}
	case ProblemIsing:
		if len(c.Problem.Fields) == 0 && len(c.Problem.Couplings) == 0 {
			return errors.New("invalid config: ising problem needs fields or couplings")
		}
	case ProblemDiagonal:
		if len(c.Problem.Diagonal) == 0 {
			return errors.New("invalid config: diagonal problem needs diagonal entries")
		}
	}
	return nil
}
