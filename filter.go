package filter

import "gonum.org/v1/gonum/mat"

// Filter is a dynamical system filter.
type Filter interface {
	// Predict estimates the next internal state of the system
	Predict(mat.Vector, mat.Vector) (Estimate, error)
	// Update updates the system state based on external measurement
	Update(mat.Vector, mat.Vector, mat.Vector) (Estimate, error)
}

// Smoother is a fixed interval smoother which refines filter
// estimates using information from later observations.
type Smoother interface {
	// Smooth computes smoothed estimates from filter estimates
	Smooth([]Estimate, []mat.Vector) ([]Estimate, error)
}

// InitCond is initial state condition of the filter
type InitCond interface {
	// State returns initial filter state
	State() mat.Vector
	// Cov returns initial state covariance
	Cov() mat.Symmetric
}

// Estimate is dynamical system filter estimate
type Estimate interface {
	// Val returns estimate value
	Val() mat.Vector
	// Cov returns estimate covariance
	Cov() mat.Symmetric
}

// Noise is dynamical system noise
type Noise interface {
	// Mean returns noise mean
	Mean() []float64
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Sample returns a sample of the noise
	Sample() mat.Vector
	// Reset resets the noise
	Reset()
}

// LinAlg is the dense linear algebra surface the filters are written against.
// Implementations are free to delegate to an accelerator; the reference
// implementation in the backend package runs on the CPU via gonum.
// All operations return newly allocated results and leave their inputs intact.
type LinAlg interface {
	// Mul returns the matrix product a*b
	Mul(a, b mat.Matrix) *mat.Dense
	// Add returns the sum a+b
	Add(a, b mat.Matrix) *mat.Dense
	// Sub returns the difference a-b
	Sub(a, b mat.Matrix) *mat.Dense
	// Scale returns c*a
	Scale(c float64, a mat.Matrix) *mat.Dense
	// Outer returns the outer product x*y'
	Outer(x, y mat.Vector) *mat.Dense
	// MulVec returns the matrix-vector product a*x
	MulVec(a mat.Matrix, x mat.Vector) *mat.VecDense
	// AddVec returns the sum x+y
	AddVec(x, y mat.Vector) *mat.VecDense
	// SubVec returns the difference x-y
	SubVec(x, y mat.Vector) *mat.VecDense
	// ScaleVec returns c*x
	ScaleVec(c float64, x mat.Vector) *mat.VecDense
	// Pinv returns the Moore-Penrose pseudo-inverse of a.
	// It must tolerate singular and ill-conditioned input.
	Pinv(a mat.Matrix) *mat.Dense
	// Clip returns a with every element clamped to [-bound, bound]
	Clip(a mat.Matrix, bound float64) *mat.Dense
	// ClipVec returns x with every element clamped to [-bound, bound]
	ClipVec(x mat.Vector, bound float64) *mat.VecDense
}

// Phase is the stage of an estimation run reported to Progress observers.
type Phase int

const (
	// Filtering is the forward predict/update recursion
	Filtering Phase = iota
	// Smoothing is the backward recursion
	Smoothing
)

// String implements the Stringer interface.
func (p Phase) String() string {
	switch p {
	case Filtering:
		return "filtering"
	case Smoothing:
		return "smoothing"
	}
	return "unknown"
}

// Progress is an optional observer notified as an estimation run advances.
// It is a diagnostic side channel: cur is the current step index and total
// the number of steps in the reported phase.
type Progress func(phase Phase, cur, total int)
