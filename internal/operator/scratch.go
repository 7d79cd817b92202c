package operator

import (
	"sync"

	"qaoa/internal/linalg"
)

// Operators are shared between stages and between cloned circuits running
// on different goroutines, so temporaries come from a pool rather than from
// operator fields.
var scratchPool sync.Pool

func borrow(n int) *[]complex128 {
	if p, ok := scratchPool.Get().(*[]complex128); ok && cap(*p) >= n {
		*p = (*p)[:n]
		return p
	}
	buf := make([]complex128, n)
	return &buf
}

func release(p *[]complex128) {
	scratchPool.Put(p)
}

func innerViaApply(op Linear, u, v []complex128) complex128 {
	buf := borrow(len(v))
	defer release(buf)
	op.Apply(v, *buf)
	return linalg.Dotu(u, *buf)
}

func conjInnerViaApply(op Linear, u, v []complex128) complex128 {
	buf := borrow(len(v))
	defer release(buf)
	op.Apply(v, *buf)
	return linalg.Dotc(u, *buf)
}

// Expectation returns Re<v, A v>.
func Expectation(op Hermitian, v []complex128) float64 {
	return real(op.ConjInnerProduct(v, v))
}
