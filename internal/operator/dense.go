package operator

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"qaoa/internal/linalg"
)

const KindDenseSymmetric = "dense_symmetric"

// DenseSymmetric is an explicit real symmetric matrix. Its propagator is
// built from an eigen-decomposition computed once at construction, so it
// suits small verification problems rather than large registers.
type DenseSymmetric struct {
	size      int
	numQubits int
	entries   []float64 // row major
	values    []float64
	vectors   []float64 // row major, column k is eigenvector k
}

func NewDenseSymmetric(m mat.Symmetric) (*DenseSymmetric, error) {
	if m == nil {
		return nil, errors.New("matrix is required")
	}
	size := m.SymmetricDim()
	n, ok := linalg.QubitsFor(size)
	if !ok {
		return nil, fmt.Errorf("%w: matrix dimension %d is not a power of two", ErrDimension, size)
	}

	var es mat.EigenSym
	if ok := es.Factorize(m, true); !ok {
		return nil, errors.New("symmetric eigen-decomposition did not converge")
	}
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	d := &DenseSymmetric{
		size:      size,
		numQubits: n,
		entries:   make([]float64, size*size),
		values:    es.Values(nil),
		vectors:   make([]float64, size*size),
	}
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			d.entries[i*size+j] = m.At(i, j)
			d.vectors[i*size+j] = vecs.At(i, j)
		}
	}
	return d, nil
}

// NewDenseSymmetricRows builds the operator from the upper triangle of rows.
func NewDenseSymmetricRows(rows [][]float64) (*DenseSymmetric, error) {
	size := len(rows)
	data := make([]float64, 0, size*size)
	for i, row := range rows {
		if len(row) != size {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrDimension, i, len(row), size)
		}
		data = append(data, row...)
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: empty matrix", ErrDimension)
	}
	return NewDenseSymmetric(mat.NewSymDense(size, data))
}

func (d *DenseSymmetric) Kind() string   { return KindDenseSymmetric }
func (d *DenseSymmetric) NumQubits() int { return d.numQubits }

func (d *DenseSymmetric) Apply(v, out []complex128) {
	for i := 0; i < d.size; i++ {
		row := d.entries[i*d.size : (i+1)*d.size]
		var acc complex128
		for j, a := range row {
			acc += complex(a, 0) * v[j]
		}
		out[i] = acc
	}
}

func (d *DenseSymmetric) ApplyAdjoint(v, out []complex128) {
	d.Apply(v, out)
}

func (d *DenseSymmetric) InnerProduct(u, v []complex128) complex128 {
	return innerViaApply(d, u, v)
}

func (d *DenseSymmetric) ConjInnerProduct(u, v []complex128) complex128 {
	return conjInnerViaApply(d, u, v)
}

// Eigenvalues returns the eigenvalues in ascending order.
func (d *DenseSymmetric) Eigenvalues() []float64 {
	return append([]float64(nil), d.values...)
}

func (d *DenseSymmetric) TrueMinimum() float64 { return d.values[0] }
func (d *DenseSymmetric) TrueMaximum() float64 { return d.values[len(d.values)-1] }

func (d *DenseSymmetric) Propagator(theta float64) (Propagator, error) {
	return NewPropagator(d, theta)
}

// spectralPropagator computes V diag(exp(iθλ)) Vᵀ v.
type spectralPropagator struct {
	op    *DenseSymmetric
	theta float64
	phase []complex128
	work  []complex128
}

func newSpectralPropagator(op Hermitian, theta float64) (Propagator, error) {
	d, ok := op.(*DenseSymmetric)
	if !ok {
		return nil, kindMismatchError{want: KindDenseSymmetric, got: op}
	}
	p := &spectralPropagator{
		op:    d,
		phase: make([]complex128, d.size),
		work:  make([]complex128, d.size),
	}
	p.SetControl(theta)
	return p, nil
}

func (p *spectralPropagator) Operator() Hermitian { return p.op }
func (p *spectralPropagator) Control() float64    { return p.theta }

func (p *spectralPropagator) SetControl(theta float64) {
	p.theta = theta
	for k, lambda := range p.op.values {
		s, c := math.Sincos(theta * lambda)
		p.phase[k] = complex(c, s)
	}
}

func (p *spectralPropagator) Apply(v, out []complex128) {
	p.apply(false, v, out)
}

func (p *spectralPropagator) ApplyAdjoint(v, out []complex128) {
	p.apply(true, v, out)
}

func (p *spectralPropagator) apply(adjoint bool, v, out []complex128) {
	n := p.op.size
	vecs := p.op.vectors
	for k := 0; k < n; k++ {
		var acc complex128
		for i := 0; i < n; i++ {
			acc += complex(vecs[i*n+k], 0) * v[i]
		}
		ph := p.phase[k]
		if adjoint {
			ph = conj(ph)
		}
		p.work[k] = ph * acc
	}
	for i := 0; i < n; i++ {
		row := vecs[i*n : (i+1)*n]
		var acc complex128
		for k, x := range row {
			acc += complex(x, 0) * p.work[k]
		}
		out[i] = acc
	}
}

func init() {
	Register(KindDenseSymmetric, newSpectralPropagator)
}
