package emkf

import "gonum.org/v1/gonum/mat"

// trajectory is arena backed per-timestep storage of state means and
// covariances. Means live in one T x n matrix, covariances in one
// contiguous T*n*n slice; accessors hand out views into the arenas so the
// recursions mutate the storage in place without per-timestep allocation.
type trajectory struct {
	// n is state dimension
	n int
	// mean stores one mean per row
	mean *mat.Dense
	// cov is the covariance arena
	cov []float64
}

func newTrajectory(steps, n int) *trajectory {
	return &trajectory{
		n:    n,
		mean: mat.NewDense(steps, n, nil),
		cov:  make([]float64, steps*n*n),
	}
}

// meanAt returns a view of the mean at time t
func (tr *trajectory) meanAt(t int) *mat.VecDense {
	return mat.NewVecDense(tr.n, tr.mean.RawRowView(t))
}

// covAt returns a view of the covariance at time t
func (tr *trajectory) covAt(t int) *mat.Dense {
	return mat.NewDense(tr.n, tr.n, tr.cov[t*tr.n*tr.n:(t+1)*tr.n*tr.n])
}

func (tr *trajectory) setMean(t int, x mat.Vector) {
	for i := 0; i < tr.n; i++ {
		tr.mean.Set(t, i, x.AtVec(i))
	}
}

func (tr *trajectory) setCov(t int, m mat.Matrix) {
	tr.covAt(t).Copy(m)
}

// covSeq is arena backed per-timestep storage of square matrices; it holds
// the lag-one pairwise covariances. The entry at index 0 is unused.
type covSeq struct {
	n    int
	data []float64
}

func newCovSeq(steps, n int) *covSeq {
	return &covSeq{
		n:    n,
		data: make([]float64, steps*n*n),
	}
}

// at returns a view of the matrix at time t
func (c *covSeq) at(t int) *mat.Dense {
	return mat.NewDense(c.n, c.n, c.data[t*c.n*c.n:(t+1)*c.n*c.n])
}

func (c *covSeq) set(t int, m mat.Matrix) {
	c.at(t).Copy(m)
}
