package circuit

import (
	"gonum.org/v1/gonum/floats"

	"qaoa/internal/fd"
)

// restore captures the controls and puts them back when the returned
// function runs. Both vectors come from the circuit itself, so they have
// the right length.
func (c *Circuit) restore() func() {
	theta := c.Control()
	dtheta := c.DifferentialControl()
	return func() {
		c.assignControl(theta)
		c.assignDifferentialControl(dtheta)
	}
}

// CheckGradient returns the finite-difference residual of the directional
// derivative δθ·∇f(θ) for every step size. The controls in effect before
// the call are restored.
func CheckGradient(c *Circuit, theta, dtheta, steps []float64, st fd.Stencil) ([]float64, error) {
	defer c.restore()()
	g, err := c.Gradient(theta)
	if err != nil {
		return nil, err
	}
	if err := c.checkLength("differential control", dtheta); err != nil {
		return nil, err
	}
	return fd.CheckScalar(c.Value, floats.Dot(dtheta, g), theta, dtheta, steps, st)
}

// CheckHessVec compares HessVec(θ, δθ) with differences of the gradient.
func CheckHessVec(c *Circuit, theta, dtheta, steps []float64, st fd.Stencil) ([]float64, error) {
	defer c.restore()()
	hv, err := c.HessVec(theta, dtheta)
	if err != nil {
		return nil, err
	}
	return fd.Check(c.Gradient, hv, theta, dtheta, steps, st)
}

// CheckTangent compares the tangent of the last unitary stage with
// differences of its forward state.
func CheckTangent(c *Circuit, theta, dtheta, steps []float64, st fd.Stencil) ([]float64, error) {
	defer c.restore()()
	last := c.NumStages()
	exact, err := c.tangentAt(theta, dtheta, last)
	if err != nil {
		return nil, err
	}
	psi := func(x []float64) ([]complex128, error) {
		if err := c.SetControl(x); err != nil {
			return nil, err
		}
		return c.State(last)
	}
	return fd.CheckComplex(psi, exact, theta, dtheta, steps, st)
}

// CheckSecondAdjoint compares the second adjoint of the first unitary
// stage with differences of its adjoint.
func CheckSecondAdjoint(c *Circuit, theta, dtheta, steps []float64, st fd.Stencil) ([]float64, error) {
	defer c.restore()()
	if err := c.SetControl(theta); err != nil {
		return nil, err
	}
	if err := c.SetDifferentialControl(dtheta); err != nil {
		return nil, err
	}
	exact, err := c.SecondAdjoint(1)
	if err != nil {
		return nil, err
	}
	lam := func(x []float64) ([]complex128, error) {
		if err := c.SetControl(x); err != nil {
			return nil, err
		}
		return c.Adjoint(1)
	}
	return fd.CheckComplex(lam, exact, theta, dtheta, steps, st)
}

func (c *Circuit) tangentAt(theta, dtheta []float64, k int) ([]complex128, error) {
	if err := c.SetControl(theta); err != nil {
		return nil, err
	}
	if err := c.SetDifferentialControl(dtheta); err != nil {
		return nil, err
	}
	return c.Tangent(k)
}
