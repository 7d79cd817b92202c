// Package circuit implements parameterized quantum circuits whose value,
// gradient and Hessian-vector products are evaluated with forward and
// adjoint recursions over a chain of stages.
//
// The chain is an arena of stage records: the initial stage at index 0,
// unitary stages 1..L, and the target stage at L+1. Every unitary stage
// caches its forward state, adjoint, tangent and second adjoint behind a
// dirty flag. Changing one angle marks only the dependent caches stale and
// the next read recomputes exactly those.
//
// A Circuit is not safe for concurrent use. Use Clone to give each worker
// its own copy.
package circuit

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"qaoa/internal/linalg"
	"qaoa/internal/operator"
)

const (
	OpValue    = "value"
	OpGradient = "gradient"
	OpHessVec  = "hess_vec"
	OpHessian  = "hessian"
	OpHessEig  = "hess_eig"
)

// nearSingular bounds the smallest absolute Hessian eigenvalue relative to
// the largest one (or to 1 when all are small) before HessEig warns.
const nearSingular = 1e-10

// Observer receives one event per public evaluation.
type Observer interface {
	ObserveEvaluation(op string, elapsed time.Duration)
}

// Options configure New. The zero value starts from the uniform
// superposition and logs through slog.Default.
type Options struct {
	InitialState []complex128
	Logger       *slog.Logger
	Observer     Observer
}

// Counts tallies public evaluation calls by kind.
type Counts struct {
	Value    int `json:"value"`
	Gradient int `json:"gradient"`
	HessVec  int `json:"hess_vec"`
	Hessian  int `json:"hessian"`
}

// Stats tallies cache recomputations and non-fatal numerical warnings.
type Stats struct {
	StateRecomputes         int `json:"state_recomputes"`
	AdjointRecomputes       int `json:"adjoint_recomputes"`
	TangentRecomputes       int `json:"tangent_recomputes"`
	SecondAdjointRecomputes int `json:"second_adjoint_recomputes"`
	NumericalWarnings       int `json:"numerical_warnings"`
}

func (s Stats) Recomputes() int {
	return s.StateRecomputes + s.AdjointRecomputes + s.TangentRecomputes + s.SecondAdjointRecomputes
}

type Circuit struct {
	stages     []stage
	numQubits  int
	dim        int
	generators []operator.Hermitian
	target     operator.Hermitian

	// workspace holds ψ_0 followed by ψ, λ, δψ, δλ of every unitary
	// stage in construction order.
	workspace []complex128
	scratch   []complex128

	logger   *slog.Logger
	observer Observer
	counts   Counts
	stats    Stats
	busy     bool
}

// New builds a circuit applying generators in order to the initial state
// and measuring target at the end.
func New(generators []operator.Hermitian, target operator.Hermitian, opts Options) (*Circuit, error) {
	if len(generators) == 0 {
		return nil, fmt.Errorf("%w: at least one generator is required", ErrConstruction)
	}
	if target == nil {
		return nil, fmt.Errorf("%w: target operator is required", ErrConstruction)
	}
	n := target.NumQubits()
	for i, g := range generators {
		if g == nil {
			return nil, fmt.Errorf("%w: generator %d is nil", ErrConstruction, i)
		}
		if g.NumQubits() != n {
			return nil, fmt.Errorf("%w: generator %d acts on %d qubits, target on %d", ErrConstruction, i, g.NumQubits(), n)
		}
	}
	dim := 1 << n
	if opts.InitialState != nil && len(opts.InitialState) != dim {
		return nil, fmt.Errorf("%w: initial state has length %d, want %d", ErrConstruction, len(opts.InitialState), dim)
	}

	L := len(generators)
	c := &Circuit{
		stages:     make([]stage, L+2),
		numQubits:  n,
		dim:        dim,
		generators: append([]operator.Hermitian(nil), generators...),
		target:     target,
		workspace:  make([]complex128, (4*L+1)*dim),
		scratch:    make([]complex128, dim),
		logger:     opts.Logger,
		observer:   opts.Observer,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	next := c.allocator()
	c.stages[0] = stage{kind: initialStage, prev: -1, next: 1, psi: next()}
	if opts.InitialState != nil {
		copy(c.stages[0].psi, opts.InitialState)
	} else {
		copy(c.stages[0].psi, linalg.Uniform(n))
	}
	for k := 1; k <= L; k++ {
		g := generators[k-1]
		prop, err := g.Propagator(0)
		if err != nil {
			return nil, fmt.Errorf("%w: generator %d (%s): %w", ErrConstruction, k-1, g.Kind(), err)
		}
		c.stages[k] = stage{
			kind:              unitaryStage,
			prev:              k - 1,
			next:              k + 1,
			op:                g,
			prop:              prop,
			psi:               next(),
			lam:               next(),
			dpsi:              next(),
			dlam:              next(),
			needState:         true,
			needAdjoint:       true,
			needTangent:       true,
			needSecondAdjoint: true,
		}
	}
	c.stages[L+1] = stage{kind: targetStage, prev: L, next: -1, op: target}
	return c, nil
}

// allocator hands out consecutive non-overlapping workspace vectors.
func (c *Circuit) allocator() func() []complex128 {
	offset := 0
	return func() []complex128 {
		v := c.workspace[offset : offset+c.dim : offset+c.dim]
		offset += c.dim
		return v
	}
}

// NumStages is the number of unitary stages L.
func (c *Circuit) NumStages() int { return len(c.stages) - 2 }

func (c *Circuit) NumQubits() int { return c.numQubits }

func (c *Circuit) Generators() []operator.Hermitian {
	return append([]operator.Hermitian(nil), c.generators...)
}

func (c *Circuit) Target() operator.Hermitian { return c.target }

func (c *Circuit) InitialState() []complex128 {
	return linalg.Clone(c.stages[0].psi)
}

func (c *Circuit) Logger() *slog.Logger { return c.logger }

// Clone returns an independent circuit over the same operators with the
// same controls. Operators are shared read-only; propagators and caches
// are not.
func (c *Circuit) Clone() (*Circuit, error) {
	if c.busy {
		return nil, ErrReentrant
	}
	out, err := New(c.generators, c.target, Options{
		InitialState: c.stages[0].psi,
		Logger:       c.logger,
		Observer:     c.observer,
	})
	if err != nil {
		return nil, err
	}
	if err := out.SetControl(c.Control()); err != nil {
		return nil, err
	}
	if err := out.SetDifferentialControl(c.DifferentialControl()); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Circuit) begin() error {
	if c.busy {
		return ErrReentrant
	}
	c.busy = true
	return nil
}

func (c *Circuit) end() { c.busy = false }

func (c *Circuit) observe(op string, started time.Time) {
	if c.observer != nil {
		c.observer.ObserveEvaluation(op, time.Since(started))
	}
}

func (c *Circuit) checkLength(name string, v []float64) error {
	if len(v) != c.NumStages() {
		return fmt.Errorf("%w: %s has length %d, want %d", ErrConstruction, name, len(v), c.NumStages())
	}
	return nil
}

// SetControl assigns θ to the unitary stages in order. Stages whose angle
// is unchanged keep their caches.
func (c *Circuit) SetControl(theta []float64) error {
	if c.busy {
		return ErrReentrant
	}
	return c.setControl(theta)
}

func (c *Circuit) setControl(theta []float64) error {
	if theta == nil {
		return nil
	}
	if err := c.checkLength("control", theta); err != nil {
		return err
	}
	c.assignControl(theta)
	return nil
}

// assignControl writes a θ already known to have one entry per unitary
// stage.
func (c *Circuit) assignControl(theta []float64) {
	for i, t := range theta {
		c.setStageControl(i+1, t)
	}
}

func (c *Circuit) Control() []float64 {
	out := make([]float64, c.NumStages())
	for i := range out {
		out[i] = c.stages[i+1].theta
	}
	return out
}

// SetDifferentialControl assigns the direction δθ used by HessVec and the
// tangent recursion.
func (c *Circuit) SetDifferentialControl(dtheta []float64) error {
	if c.busy {
		return ErrReentrant
	}
	return c.setDifferentialControl(dtheta)
}

func (c *Circuit) setDifferentialControl(dtheta []float64) error {
	if dtheta == nil {
		return nil
	}
	if err := c.checkLength("differential control", dtheta); err != nil {
		return err
	}
	c.assignDifferentialControl(dtheta)
	return nil
}

// assignDifferentialControl writes a δθ already known to have one entry
// per unitary stage.
func (c *Circuit) assignDifferentialControl(dtheta []float64) {
	for i, d := range dtheta {
		c.setStageDifferentialControl(i+1, d)
	}
}

func (c *Circuit) DifferentialControl() []float64 {
	out := make([]float64, c.NumStages())
	for i := range out {
		out[i] = c.stages[i+1].dtheta
	}
	return out
}

// Value returns Re⟨ψ_L, C ψ_L⟩ at θ. A nil θ evaluates at the current
// controls; the same holds for every evaluation method below.
func (c *Circuit) Value(theta []float64) (float64, error) {
	if err := c.begin(); err != nil {
		return 0, err
	}
	defer c.end()
	defer c.observe(OpValue, time.Now())
	if err := c.setControl(theta); err != nil {
		return 0, err
	}
	c.counts.Value++
	return c.value(), nil
}

func (c *Circuit) value() float64 {
	return operator.Expectation(c.target, c.state(c.NumStages()))
}

// Gradient returns ∂f/∂θ_k for every stage from one forward and one
// backward pass.
func (c *Circuit) Gradient(theta []float64) ([]float64, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.end()
	defer c.observe(OpGradient, time.Now())
	if err := c.setControl(theta); err != nil {
		return nil, err
	}
	c.counts.Gradient++
	return c.gradient(), nil
}

func (c *Circuit) gradient() []float64 {
	g := make([]float64, c.NumStages())
	for i := range g {
		g[i] = c.deriv1(i + 1)
	}
	return g
}

func (c *Circuit) GradientNorm(theta []float64) (float64, error) {
	g, err := c.Gradient(theta)
	if err != nil {
		return 0, err
	}
	return floats.Norm(g, 2), nil
}

// HessVec returns the Hessian at θ applied to δθ.
func (c *Circuit) HessVec(theta, dtheta []float64) ([]float64, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.end()
	defer c.observe(OpHessVec, time.Now())
	if err := c.setControl(theta); err != nil {
		return nil, err
	}
	if err := c.setDifferentialControl(dtheta); err != nil {
		return nil, err
	}
	c.counts.HessVec++
	return c.hessVec(), nil
}

func (c *Circuit) hessVec() []float64 {
	hv := make([]float64, c.NumStages())
	for i := range hv {
		hv[i] = c.deriv2(i + 1)
	}
	return hv
}

// Hessian assembles the dense L×L Hessian column by column from L
// Hessian-vector products. The differential control is restored afterwards.
func (c *Circuit) Hessian(theta []float64) (*mat.Dense, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.end()
	defer c.observe(OpHessian, time.Now())
	if err := c.setControl(theta); err != nil {
		return nil, err
	}
	c.counts.Hessian++
	return c.hessian(), nil
}

func (c *Circuit) hessian() *mat.Dense {
	L := c.NumStages()
	saved := c.DifferentialControl()
	h := mat.NewDense(L, L, nil)
	e := make([]float64, L)
	for j := 0; j < L; j++ {
		e[j] = 1
		c.assignDifferentialControl(e)
		h.SetCol(j, c.hessVec())
		e[j] = 0
	}
	c.assignDifferentialControl(saved)
	return h
}

// HessEig returns the Hessian eigenvalues in ascending order. A
// near-singular Hessian is logged and counted but is not an error.
func (c *Circuit) HessEig(theta []float64) ([]float64, error) {
	_, values, err := c.HessianEig(theta)
	return values, err
}

// HessianEig returns the Hessian together with its eigenvalues from a
// single assembly.
func (c *Circuit) HessianEig(theta []float64) (*mat.Dense, []float64, error) {
	if err := c.begin(); err != nil {
		return nil, nil, err
	}
	defer c.end()
	defer c.observe(OpHessEig, time.Now())
	if err := c.setControl(theta); err != nil {
		return nil, nil, err
	}
	c.counts.Hessian++
	h := c.hessian()
	values, err := symmetricEigenvalues(h)
	if err != nil {
		return nil, nil, err
	}

	lo, hi := math.Inf(1), 0.0
	for _, v := range values {
		lo = math.Min(lo, math.Abs(v))
		hi = math.Max(hi, math.Abs(v))
	}
	if lo <= nearSingular*math.Max(hi, 1) {
		c.stats.NumericalWarnings++
		c.logger.Warn("near-singular hessian",
			slog.Int("stages", len(values)),
			slog.Float64("min_abs_eigenvalue", lo),
			slog.Float64("max_abs_eigenvalue", hi),
		)
	}
	return h, values, nil
}

// symmetricEigenvalues decomposes the symmetric part of h.
func symmetricEigenvalues(h *mat.Dense) ([]float64, error) {
	L, _ := h.Dims()
	sym := mat.NewSymDense(L, nil)
	for i := 0; i < L; i++ {
		for j := i; j < L; j++ {
			v := 0.5 * (h.At(i, j) + h.At(j, i))
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: hessian entry (%d,%d) is %v", ErrNumerical, i, j, v)
			}
			sym.SetSym(i, j, v)
		}
	}
	var es mat.EigenSym
	if ok := es.Factorize(sym, false); !ok {
		return nil, fmt.Errorf("%w: hessian eigen-decomposition did not converge", ErrNumerical)
	}
	return es.Values(nil), nil
}

// FinalState returns a copy of ψ_L at θ.
func (c *Circuit) FinalState(theta []float64) ([]complex128, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.end()
	if err := c.setControl(theta); err != nil {
		return nil, err
	}
	return linalg.Clone(c.state(c.NumStages())), nil
}

func (c *Circuit) TrueMinimum() (float64, error) {
	ext, ok := c.target.(operator.Extremal)
	if !ok {
		return 0, fmt.Errorf("%w: %s has no exact minimum", ErrNotSupported, c.target.Kind())
	}
	return ext.TrueMinimum(), nil
}

func (c *Circuit) TrueMaximum() (float64, error) {
	ext, ok := c.target.(operator.Extremal)
	if !ok {
		return 0, fmt.Errorf("%w: %s has no exact maximum", ErrNotSupported, c.target.Kind())
	}
	return ext.TrueMaximum(), nil
}

func (c *Circuit) Counts() Counts { return c.counts }

func (c *Circuit) ResetCounts() { c.counts = Counts{} }

func (c *Circuit) Stats() Stats { return c.stats }

func (c *Circuit) ResetStats() { c.stats = Stats{} }

// inspect validates k for the read-only stage inspectors.
func (c *Circuit) inspect(k int, read func(int) []complex128) ([]complex128, error) {
	if k < 1 || k > c.NumStages() {
		return nil, stateFault(k, "no unitary stage at this index (have 1..%d)", c.NumStages())
	}
	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.end()
	return linalg.Clone(read(k)), nil
}

// State returns a copy of ψ_k. Index 0 is the initial state.
func (c *Circuit) State(k int) ([]complex128, error) {
	if k == 0 {
		return c.InitialState(), nil
	}
	return c.inspect(k, c.state)
}

func (c *Circuit) Adjoint(k int) ([]complex128, error) {
	return c.inspect(k, c.adjoint)
}

func (c *Circuit) Tangent(k int) ([]complex128, error) {
	return c.inspect(k, c.tangent)
}

func (c *Circuit) SecondAdjoint(k int) ([]complex128, error) {
	return c.inspect(k, c.secondAdjoint)
}
