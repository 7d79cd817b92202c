package config

import (
	"fmt"
	"math/rand"
	"time"

	"qaoa/internal/circuit"
	"qaoa/internal/graph"
	"qaoa/internal/operator"
)

// BuildGraph resolves a graph source.
func BuildGraph(src GraphSource) (graph.Graph, error) {
	switch {
	case src.Library != "":
		return graph.Load(src.Library, src.Degree, src.Vertices, src.Index)
	case len(src.Edges) > 0:
		if len(src.Weights) > 0 && len(src.Weights) != len(src.Edges) {
			return graph.Graph{}, fmt.Errorf("%w: %d weights for %d edges", graph.ErrInvalidGraph, len(src.Weights), len(src.Edges))
		}
		g := graph.Graph{Vertices: src.Vertices}
		for i, e := range src.Edges {
			edge := graph.Edge{U: e[0], V: e[1]}
			if len(src.Weights) > 0 {
				w := src.Weights[i]
				edge.Weight = &w
			}
			g.Edges = append(g.Edges, edge)
			g.Vertices = max(g.Vertices, e[0]+1, e[1]+1)
		}
		return g, g.Validate()
	default:
		seed := time.Now().UnixNano()
		if src.Seed != nil {
			seed = *src.Seed
		}
		return graph.RandomRegular(src.Degree, src.Vertices, rand.New(rand.NewSource(seed)))
	}
}

// BuildProblem returns the target operator and, for MaxCut, its graph.
func BuildProblem(p Problem) (operator.Hermitian, *graph.Graph, error) {
	switch p.Kind {
	case ProblemMaxCut:
		if p.Graph == nil {
			return nil, nil, fmt.Errorf("maxcut problem needs a graph")
		}
		g, err := BuildGraph(*p.Graph)
		if err != nil {
			return nil, nil, err
		}
		op, err := operator.NewMaxCut(g)
		if err != nil {
			return nil, nil, err
		}
		return op, &g, nil
	case ProblemIsing:
		op, err := operator.NewIsingDense(p.Fields, p.Couplings)
		if err != nil {
			return nil, nil, err
		}
		return op, nil, nil
	case ProblemDiagonal:
		op, err := operator.NewDiagonal(p.Diagonal)
		if err != nil {
			return nil, nil, err
		}
		return op, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported problem kind %q", p.Kind)
	}
}

func buildDriver(name string, n int) (operator.Hermitian, error) {
	switch name {
	case "", DriverSigmaX:
		return operator.NewSumSigmaX(n)
	case DriverSigmaY:
		return operator.NewSumSigmaY(n)
	default:
		return nil, fmt.Errorf("unsupported driver %q", name)
	}
}

func initialState(name string, n int) ([]complex128, error) {
	switch name {
	case "", InitialUniform:
		return nil, nil
	case InitialZero:
		psi := make([]complex128, 1<<n)
		psi[0] = 1
		return psi, nil
	default:
		return nil, fmt.Errorf("unsupported initial state %q", name)
	}
}

// Built is a configured circuit together with what it was built from.
type Built struct {
	QAOA    *circuit.QAOA
	Problem operator.Hermitian
	Graph   *graph.Graph
}

// BuildCircuit validates cfg and assembles the QAOA circuit it describes.
// Logger and Observer in opts are kept; InitialState is taken from cfg.
func BuildCircuit(cfg Config, opts circuit.Options) (Built, error) {
	if err := cfg.Validate(); err != nil {
		return Built{}, err
	}
	problem, g, err := BuildProblem(cfg.Problem)
	if err != nil {
		return Built{}, err
	}
	n := problem.NumQubits()
	driver, err := buildDriver(cfg.Circuit.Driver, n)
	if err != nil {
		return Built{}, err
	}
	if opts.InitialState, err = initialState(cfg.Circuit.InitialState, n); err != nil {
		return Built{}, err
	}
	q, err := circuit.NewQAOA(cfg.Circuit.Layers, problem, driver, opts)
	if err != nil {
		return Built{}, err
	}
	return Built{QAOA: q, Problem: problem, Graph: g}, nil
}
