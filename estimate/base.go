package estimate

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Base is base estimate
type Base struct {
	// val is estimated value
	val *mat.VecDense
	// cov is estimated covariance
	cov *mat.SymDense
}

// New returns base estimate given val
func New(val mat.Vector) (*Base, error) {
	v := &mat.VecDense{}
	if val != nil {
		v.CloneFromVec(val)
	}

	c := mat.NewSymDense(v.Len(), nil)

	return &Base{
		val: v,
		cov: c,
	}, nil
}

// NewWithCov returns base estimate given value and covariance
func NewWithCov(val mat.Vector, cov mat.Symmetric) (*Base, error) {
	rv, _ := val.Dims()
	rc := cov.SymmetricDim()

	if rv != rc {
		return nil, fmt.Errorf("invalid dimensions. Val: %d, Cov: %d x %d", rv, rc, rc)
	}

	v := &mat.VecDense{}
	v.CloneFromVec(val)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	return &Base{
		val: v,
		cov: c,
	}, nil
}

// Val returns estimated value
func (b *Base) Val() mat.Vector {
	v := &mat.VecDense{}
	v.CloneFromVec(b.val)

	return v
}

// Cov returns covariance estimate
func (b *Base) Cov() mat.Symmetric {
	cov := mat.NewSymDense(b.cov.SymmetricDim(), nil)
	cov.CopySym(b.cov)

	return cov
}

// Pair is an estimate carrying the lag-one cross covariance
// Cov(x_t, x_t-1 | data) next to the marginal value and covariance.
type Pair struct {
	Base
	// pair is lag-one cross covariance
	pair *mat.Dense
}

// NewPair returns estimate with lag-one cross covariance given value,
// covariance and the cross covariance with the preceding state.
func NewPair(val mat.Vector, cov mat.Symmetric, pair mat.Matrix) (*Pair, error) {
	b, err := NewWithCov(val, cov)
	if err != nil {
		return nil, err
	}

	r, c := pair.Dims()
	if r != val.Len() || c != val.Len() {
		return nil, fmt.Errorf("invalid pair covariance dimensions: [%d x %d]", r, c)
	}

	p := &mat.Dense{}
	p.CloneFrom(pair)

	return &Pair{
		Base: *b,
		pair: p,
	}, nil
}

// PairCov returns the lag-one cross covariance
func (p *Pair) PairCov() mat.Matrix {
	pair := &mat.Dense{}
	pair.CloneFrom(p.pair)

	return pair
}
