// Package graph holds the undirected problem graphs that MaxCut instances
// are built from, together with the regular-graph library loader and a
// pairing-model generator.
package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

var (
	ErrInvalidGraph = errors.New("invalid graph")
	ErrNotFound     = errors.New("graph not found")
)

// Edge joins vertices U and V. A nil Weight marks an unweighted edge.
type Edge struct {
	U      int      `json:"u" yaml:"u"`
	V      int      `json:"v" yaml:"v"`
	Weight *float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

func (e Edge) EffectiveWeight() float64 {
	if e.Weight == nil {
		return 1
	}
	return *e.Weight
}

// Graph is an undirected graph on vertices 0..Vertices-1.
type Graph struct {
	Vertices int    `json:"vertices" yaml:"vertices"`
	Edges    []Edge `json:"edges" yaml:"edges"`
}

func (g Graph) Validate() error {
	if g.Vertices <= 0 {
		return fmt.Errorf("%w: vertex count must be positive, got %d", ErrInvalidGraph, g.Vertices)
	}
	seen := make(map[[2]int]struct{}, len(g.Edges))
	for _, e := range g.Edges {
		if e.U < 0 || e.U >= g.Vertices || e.V < 0 || e.V >= g.Vertices {
			return fmt.Errorf("%w: edge (%d,%d) outside [0,%d)", ErrInvalidGraph, e.U, e.V, g.Vertices)
		}
		if e.U == e.V {
			return fmt.Errorf("%w: self loop on vertex %d", ErrInvalidGraph, e.U)
		}
		key := [2]int{min(e.U, e.V), max(e.U, e.V)}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate edge (%d,%d)", ErrInvalidGraph, e.U, e.V)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Weighted reports whether every edge carries an explicit weight.
func (g Graph) Weighted() bool {
	if len(g.Edges) == 0 {
		return false
	}
	for _, e := range g.Edges {
		if e.Weight == nil {
			return false
		}
	}
	return true
}

// TotalWeight is the sum of effective edge weights.
func (g Graph) TotalWeight() float64 {
	var total float64
	for _, e := range g.Edges {
		total += e.EffectiveWeight()
	}
	return total
}

func (g Graph) Degrees() []int {
	deg := make([]int, g.Vertices)
	for _, e := range g.Edges {
		deg[e.U]++
		deg[e.V]++
	}
	return deg
}

// Connected reports whether g has a single connected component.
func (g Graph) Connected() bool {
	if g.Vertices == 0 {
		return false
	}
	ug := simple.NewUndirectedGraph()
	for v := 0; v < g.Vertices; v++ {
		ug.AddNode(simple.Node(v))
	}
	for _, e := range g.Edges {
		if e.U == e.V {
			continue
		}
		ug.SetEdge(ug.NewEdge(simple.Node(e.U), simple.Node(e.V)))
	}
	return len(topo.ConnectedComponents(ug)) == 1
}

// CutValue is the total weight of edges whose endpoints fall on different
// sides of the bipartition encoded by the bits of basis index k, with
// vertex 0 on the most significant bit.
func (g Graph) CutValue(k int) float64 {
	var cut float64
	for _, e := range g.Edges {
		bu := (k >> (g.Vertices - e.U - 1)) & 1
		bv := (k >> (g.Vertices - e.V - 1)) & 1
		if bu != bv {
			cut += e.EffectiveWeight()
		}
	}
	return cut
}

// CheckRegular validates the degree/vertex pair of a d-regular graph on n
// vertices.
func CheckRegular(degree, n int) error {
	if degree < 1 {
		return fmt.Errorf("%w: degree must be positive, got %d", ErrInvalidGraph, degree)
	}
	if degree >= n {
		return fmt.Errorf("%w: degree %d must be less than vertex count %d", ErrInvalidGraph, degree, n)
	}
	if degree*n%2 != 0 {
		return fmt.Errorf("%w: degree*vertices must be even, got %d*%d", ErrInvalidGraph, degree, n)
	}
	return nil
}

// Library maps "(degree,n)" keys to lists of edge lists.
type Library map[string][][][2]int

func LibraryKey(degree, n int) string {
	return fmt.Sprintf("(%d,%d)", degree, n)
}

func ReadLibrary(path string) (Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph library: %w", err)
	}
	var lib Library
	if err := json.Unmarshal(data, &lib); err != nil {
		return nil, fmt.Errorf("decode graph library %s: %w", path, err)
	}
	return lib, nil
}

// Pick returns graph index of the (degree, n) family.
func (lib Library) Pick(degree, n, index int) (Graph, error) {
	if err := CheckRegular(degree, n); err != nil {
		return Graph{}, err
	}
	family, ok := lib[LibraryKey(degree, n)]
	if !ok {
		return Graph{}, fmt.Errorf("%w: no graph of degree %d with %d vertices", ErrNotFound, degree, n)
	}
	if index < 0 || index >= len(family) {
		return Graph{}, fmt.Errorf("%w: graph index %d outside [0,%d)", ErrNotFound, index, len(family))
	}
	g := Graph{Vertices: n, Edges: make([]Edge, 0, len(family[index]))}
	for _, pair := range family[index] {
		g.Edges = append(g.Edges, Edge{U: pair[0], V: pair[1]})
	}
	if err := g.Validate(); err != nil {
		return Graph{}, err
	}
	for v, d := range g.Degrees() {
		if d != degree {
			return Graph{}, fmt.Errorf("%w: vertex %d of library graph %s #%d has degree %d", ErrInvalidGraph, v, LibraryKey(degree, n), index, d)
		}
	}
	return g, nil
}

// Load reads a graph library file and returns one of its graphs.
func Load(path string, degree, n, index int) (Graph, error) {
	lib, err := ReadLibrary(path)
	if err != nil {
		return Graph{}, err
	}
	return lib.Pick(degree, n, index)
}

const maxPairingAttempts = 1000

// RandomRegular draws a connected simple d-regular graph on n vertices
// with the pairing model, rejecting configurations with loops, repeated
// edges or more than one component.
func RandomRegular(degree, n int, rng *rand.Rand) (Graph, error) {
	if err := CheckRegular(degree, n); err != nil {
		return Graph{}, err
	}
	if degree == 1 && n > 2 {
		return Graph{}, fmt.Errorf("%w: a 1-regular graph on %d vertices is never connected", ErrInvalidGraph, n)
	}
	if rng == nil {
		return Graph{}, errors.New("random source is required")
	}
	points := make([]int, 0, degree*n)
	for v := 0; v < n; v++ {
		for d := 0; d < degree; d++ {
			points = append(points, v)
		}
	}
	for attempt := 0; attempt < maxPairingAttempts; attempt++ {
		rng.Shuffle(len(points), func(i, j int) { points[i], points[j] = points[j], points[i] })
		edges, ok := pairUp(points)
		if !ok {
			continue
		}
		g := Graph{Vertices: n, Edges: edges}
		if !g.Connected() {
			continue
		}
		return g, nil
	}
	return Graph{}, fmt.Errorf("%w: no connected simple %d-regular graph on %d vertices after %d attempts", ErrInvalidGraph, degree, n, maxPairingAttempts)
}

func pairUp(points []int) ([]Edge, bool) {
	seen := make(map[[2]int]struct{}, len(points)/2)
	edges := make([]Edge, 0, len(points)/2)
	for i := 0; i+1 < len(points); i += 2 {
		u, v := points[i], points[i+1]
		if u == v {
			return nil, false
		}
		key := [2]int{min(u, v), max(u, v)}
		if _, dup := seen[key]; dup {
			return nil, false
		}
		seen[key] = struct{}{}
		edges = append(edges, Edge{U: key[0], V: key[1]})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].U != edges[j].U {
			return edges[i].U < edges[j].U
		}
		return edges[i].V < edges[j].V
	})
	return edges, true
}
