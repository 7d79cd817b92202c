package circuit

import (
	"qaoa/internal/linalg"
	"qaoa/internal/operator"
)

type stageKind uint8

const (
	initialStage stageKind = iota
	unitaryStage
	targetStage
)

func (k stageKind) String() string {
	switch k {
	case initialStage:
		return "initial"
	case unitaryStage:
		return "unitary"
	case targetStage:
		return "target"
	default:
		return "unknown"
	}
}

// stage is one record of the chain arena. Neighbors are arena indices and
// -1 marks a missing neighbor. The initial stage owns only psi; the target
// stage owns no vectors and reads the last unitary stage's state.
type stage struct {
	kind stageKind
	prev int
	next int

	op   operator.Hermitian
	prop operator.Propagator

	theta  float64
	dtheta float64

	psi  []complex128
	lam  []complex128
	dpsi []complex128
	dlam []complex128

	needState         bool
	needAdjoint       bool
	needTangent       bool
	needSecondAdjoint bool
}

func (c *Circuit) notifyState(k int) {
	for ; k >= 0; k = c.stages[k].next {
		s := &c.stages[k]
		s.needState = true
		s.needAdjoint = true
		s.needTangent = true
		s.needSecondAdjoint = true
	}
}

func (c *Circuit) notifyAdjoint(k int) {
	for ; k >= 0; k = c.stages[k].prev {
		s := &c.stages[k]
		s.needAdjoint = true
		s.needSecondAdjoint = true
	}
}

func (c *Circuit) notifyTangent(k int) {
	for ; k >= 0; k = c.stages[k].next {
		s := &c.stages[k]
		s.needTangent = true
		s.needSecondAdjoint = true
	}
}

func (c *Circuit) notifySecondAdjoint(k int) {
	for ; k >= 0; k = c.stages[k].prev {
		c.stages[k].needSecondAdjoint = true
	}
}

// setStageControl and setStageDifferentialControl are the only writers of stage
// angles. Equal values leave every cache untouched.
func (c *Circuit) setStageControl(k int, theta float64) {
	s := &c.stages[k]
	if s.theta == theta {
		return
	}
	s.theta = theta
	s.prop.SetControl(theta)
	c.notifyState(k)
	c.notifyAdjoint(k)
}

func (c *Circuit) setStageDifferentialControl(k int, dtheta float64) {
	s := &c.stages[k]
	if s.dtheta == dtheta {
		return
	}
	s.dtheta = dtheta
	c.notifyTangent(k)
	c.notifySecondAdjoint(k)
}

// unitary returns stage k after checking it can carry cached vectors.
// A mismatch means the chain was built wrong, so it panics.
func (c *Circuit) unitary(k int) *stage {
	if k < 0 || k >= len(c.stages) {
		panic(stateFault(k, "index outside chain of %d stages", len(c.stages)))
	}
	s := &c.stages[k]
	if s.kind != unitaryStage {
		panic(stateFault(k, "%s stage has no cached vectors", s.kind))
	}
	if s.prev < 0 || s.next < 0 {
		panic(stateFault(k, "unitary stage is not linked on both sides"))
	}
	return s
}

func (c *Circuit) isTarget(k int) bool {
	return c.stages[k].kind == targetStage
}

func (c *Circuit) isInitial(k int) bool {
	return c.stages[k].kind == initialStage
}

// state returns ψ_k = U_k ψ_{k-1}.
func (c *Circuit) state(k int) []complex128 {
	if k >= 0 && k < len(c.stages) && c.isInitial(k) {
		return c.stages[k].psi
	}
	s := c.unitary(k)
	if s.needState {
		s.prop.Apply(c.state(s.prev), s.psi)
		s.needState = false
		c.stats.StateRecomputes++
		if !c.isTarget(s.next) {
			c.notifyState(s.next)
		}
	}
	return s.psi
}

// adjoint returns λ_k, seeded as C ψ_L at the last unitary stage and
// carried backward by λ_k = U_{k+1}† λ_{k+1}.
func (c *Circuit) adjoint(k int) []complex128 {
	s := c.unitary(k)
	if s.needAdjoint {
		next := &c.stages[s.next]
		if next.kind == targetStage {
			next.op.Apply(c.state(k), s.lam)
		} else {
			next.prop.ApplyAdjoint(c.adjoint(s.next), s.lam)
		}
		c.notifyAdjoint(s.prev)
		s.needAdjoint = false
		c.stats.AdjointRecomputes++
	}
	return s.lam
}

// tangent returns δψ_k = U_k (iδθ_k A_k ψ_{k-1} + δψ_{k-1}), where the
// carried term is absent after the initial stage.
func (c *Circuit) tangent(k int) []complex128 {
	s := c.unitary(k)
	if s.needTangent {
		var carried []complex128
		if !c.isInitial(s.prev) {
			carried = c.tangent(s.prev)
		}
		w := c.scratch
		s.op.Apply(c.state(s.prev), w)
		linalg.Scale(complex(0, s.dtheta), w)
		if carried != nil {
			linalg.Add(carried, w)
		}
		s.prop.Apply(w, s.dpsi)
		s.needTangent = false
		c.stats.TangentRecomputes++
		c.notifyTangent(s.next)
	}
	return s.dpsi
}

// secondAdjoint returns δλ_k, seeded as C δψ_L and carried backward by
// δλ_k = U_{k+1}† δλ_{k+1} - iδθ_{k+1} A_{k+1} λ_k.
func (c *Circuit) secondAdjoint(k int) []complex128 {
	s := c.unitary(k)
	if s.needSecondAdjoint {
		next := &c.stages[s.next]
		if next.kind == targetStage {
			next.op.Apply(c.tangent(k), s.dlam)
		} else {
			carried := c.secondAdjoint(s.next)
			lam := c.adjoint(k)
			next.prop.ApplyAdjoint(carried, s.dlam)
			w := c.scratch
			next.op.Apply(lam, w)
			linalg.Axpy(complex(0, -next.dtheta), w, s.dlam)
		}
		s.needSecondAdjoint = false
		c.stats.SecondAdjointRecomputes++
		c.notifySecondAdjoint(s.prev)
	}
	return s.dlam
}

// deriv1 is ∂f/∂θ_k = -2 Im⟨λ_k, A_k ψ_k⟩.
func (c *Circuit) deriv1(k int) float64 {
	s := c.unitary(k)
	lam := c.adjoint(k)
	psi := c.state(k)
	return -2 * imag(s.op.ConjInnerProduct(lam, psi))
}

// deriv2 is the k-th entry of the Hessian applied to δθ.
func (c *Circuit) deriv2(k int) float64 {
	s := c.unitary(k)
	dlam := c.secondAdjoint(k)
	psi := c.state(k)
	lam := c.adjoint(k)
	dpsi := c.tangent(k)
	return -2 * imag(s.op.ConjInnerProduct(dlam, psi)+s.op.ConjInnerProduct(lam, dpsi))
}
