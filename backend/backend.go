package backend

import (
	"math"

	filter "github.com/milosgajdos/go-emkf"
	"gonum.org/v1/gonum/mat"
)

// Dense implements filter.LinAlg on the CPU using gonum dense types.
// It is stateless and safe for reuse across filters.
type Dense struct{}

// NewDense creates new Dense backend and returns it
func NewDense() *Dense {
	return &Dense{}
}

// Mul returns the matrix product a*b
func (d *Dense) Mul(a, b mat.Matrix) *mat.Dense {
	out := &mat.Dense{}
	out.Mul(a, b)

	return out
}

// Add returns the sum a+b
func (d *Dense) Add(a, b mat.Matrix) *mat.Dense {
	out := &mat.Dense{}
	out.Add(a, b)

	return out
}

// Sub returns the difference a-b
func (d *Dense) Sub(a, b mat.Matrix) *mat.Dense {
	out := &mat.Dense{}
	out.Sub(a, b)

	return out
}

// Scale returns c*a
func (d *Dense) Scale(c float64, a mat.Matrix) *mat.Dense {
	out := &mat.Dense{}
	out.Scale(c, a)

	return out
}

// Outer returns the outer product x*y'
func (d *Dense) Outer(x, y mat.Vector) *mat.Dense {
	out := mat.NewDense(x.Len(), y.Len(), nil)
	out.Outer(1.0, x, y)

	return out
}

// MulVec returns the matrix-vector product a*x
func (d *Dense) MulVec(a mat.Matrix, x mat.Vector) *mat.VecDense {
	out := &mat.VecDense{}
	out.MulVec(a, x)

	return out
}

// AddVec returns the sum x+y
func (d *Dense) AddVec(x, y mat.Vector) *mat.VecDense {
	out := &mat.VecDense{}
	out.AddVec(x, y)

	return out
}

// SubVec returns the difference x-y
func (d *Dense) SubVec(x, y mat.Vector) *mat.VecDense {
	out := &mat.VecDense{}
	out.SubVec(x, y)

	return out
}

// ScaleVec returns c*x
func (d *Dense) ScaleVec(c float64, x mat.Vector) *mat.VecDense {
	out := &mat.VecDense{}
	out.ScaleVec(c, x)

	return out
}

// Pinv returns the Moore-Penrose pseudo-inverse of a.
// It is computed from the SVD of a with small singular values zeroed out,
// so singular and ill-conditioned matrices yield a finite result instead
// of an error.
func (d *Dense) Pinv(a mat.Matrix) *mat.Dense {
	r, c := a.Dims()

	var svd mat.SVD
	ok := svd.Factorize(a, mat.SVDThin)
	if !ok {
		// factorization of a finite matrix does not fail in practice;
		// a zero matrix is the safe fallback of last resort
		return mat.NewDense(c, r, nil)
	}

	u := &mat.Dense{}
	svd.UTo(u)
	v := &mat.Dense{}
	svd.VTo(v)
	vals := svd.Values(nil)

	// singular values below tol are treated as zero rank
	tol := float64(max(r, c)) * eps * maxVal(vals)
	for i := range vals {
		if vals[i] > tol {
			vals[i] = 1.0 / vals[i]
		} else {
			vals[i] = 0.0
		}
	}

	diag := mat.NewDiagDense(len(vals), vals)

	out := &mat.Dense{}
	out.Mul(v, diag)
	out.Mul(out, u.T())

	return out
}

// Clip returns a with every element clamped to [-bound, bound]
func (d *Dense) Clip(a mat.Matrix, bound float64) *mat.Dense {
	out := &mat.Dense{}
	out.CloneFrom(a)
	out.Apply(func(i, j int, v float64) float64 {
		return clamp(v, bound)
	}, out)

	return out
}

// ClipVec returns x with every element clamped to [-bound, bound]
func (d *Dense) ClipVec(x mat.Vector, bound float64) *mat.VecDense {
	out := mat.NewVecDense(x.Len(), nil)
	for i := 0; i < x.Len(); i++ {
		out.SetVec(i, clamp(x.AtVec(i), bound))
	}

	return out
}

// eps is double precision machine epsilon
var eps = math.Nextafter(1.0, 2.0) - 1.0

func clamp(v, bound float64) float64 {
	if v > bound {
		return bound
	}
	if v < -bound {
		return -bound
	}
	return v
}

func maxVal(vals []float64) float64 {
	m := 0.0
	for _, v := range vals {
		if v > m {
			m = v
		}
	}
	return m
}

var _ filter.LinAlg = (*Dense)(nil)
