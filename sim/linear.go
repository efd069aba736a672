package sim

import (
	"fmt"

	filter "github.com/milosgajdos/go-emkf"
	"github.com/milosgajdos/go-emkf/noise"
	"github.com/milosgajdos/go-emkf/rand"
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// InitCond implements filter.InitCond
type InitCond struct {
	state *mat.VecDense
	cov   *mat.SymDense
}

// NewInitCond creates new InitCond and returns it
func NewInitCond(state mat.Vector, cov mat.Symmetric) *InitCond {
	s := &mat.VecDense{}
	s.CloneFromVec(state)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	return &InitCond{
		state: s,
		cov:   c,
	}
}

// State returns initial state
func (c *InitCond) State() mat.Vector {
	state := mat.NewVecDense(c.state.Len(), nil)
	state.CloneFromVec(c.state)

	return state
}

// Cov returns initial covariance
func (c *InitCond) Cov() mat.Symmetric {
	cov := mat.NewSymDense(c.cov.SymmetricDim(), nil)
	cov.CopySym(c.cov)

	return cov
}

// LinearGaussian generates sample sequences from a discrete linear-Gaussian
// state space model
//
//	x_t+1 = F*x_t + b + v_t
//	y_t   = H*x_t + d + w_t
//
// with v and w drawn from the configured noise sources.
type LinearGaussian struct {
	// F is state transition matrix
	F *mat.Dense
	// H is observation matrix
	H *mat.Dense
	// B is transition offset
	B *mat.VecDense
	// D is observation offset
	D *mat.VecDense
	// Q is transition noise source
	Q filter.Noise
	// R is observation noise source
	R filter.Noise
}

// NewLinearGaussian creates new LinearGaussian model and returns it.
// Nil offsets default to zero; nil noise sources default to Zero noise,
// producing noise-free sequences.
// It returns error if the supplied matrix dimensions disagree.
func NewLinearGaussian(F, H *mat.Dense, b, d mat.Vector, q, r filter.Noise) (*LinearGaussian, error) {
	if F == nil || H == nil {
		return nil, fmt.Errorf("invalid model matrices: %v, %v", F, H)
	}

	nx, cols := F.Dims()
	if nx != cols {
		return nil, fmt.Errorf("invalid transition matrix dimensions: [%d x %d]", nx, cols)
	}

	ny, hCols := H.Dims()
	if hCols != nx {
		return nil, fmt.Errorf("invalid observation matrix dimensions: [%d x %d]", ny, hCols)
	}

	if q == nil {
		q, _ = noise.NewZero(nx)
	}
	if r == nil {
		r, _ = noise.NewZero(ny)
	}

	m := &LinearGaussian{
		F: mat.DenseCopyOf(F),
		H: mat.DenseCopyOf(H),
		B: mat.NewVecDense(nx, nil),
		D: mat.NewVecDense(ny, nil),
		Q: q,
		R: r,
	}

	if b != nil {
		if b.Len() != nx {
			return nil, fmt.Errorf("invalid transition offset dimension: %d", b.Len())
		}
		m.B.CloneFromVec(b)
	}

	if d != nil {
		if d.Len() != ny {
			return nil, fmt.Errorf("invalid observation offset dimension: %d", d.Len())
		}
		m.D.CloneFromVec(d)
	}

	return m, nil
}

// Simulate generates a sequence of steps hidden states and observations
// starting from x0 and returns both, one timestep per row.
// It returns error if x0 does not match the model state dimension.
func (m *LinearGaussian) Simulate(x0 mat.Vector, steps int) (states, obs *mat.Dense, err error) {
	nx, _ := m.F.Dims()
	ny, _ := m.H.Dims()

	if x0 == nil || x0.Len() != nx {
		return nil, nil, fmt.Errorf("invalid initial state: %v", x0)
	}

	states = mat.NewDense(steps, nx, nil)
	obs = mat.NewDense(steps, ny, nil)

	x := &mat.VecDense{}
	x.CloneFromVec(x0)

	for t := 0; t < steps; t++ {
		if t > 0 {
			next := &mat.VecDense{}
			next.MulVec(m.F, x)
			next.AddVec(next, m.B)
			next.AddVec(next, m.Q.Sample())
			x = next
		}

		y := &mat.VecDense{}
		y.MulVec(m.H, x)
		y.AddVec(y, m.D)
		y.AddVec(y, m.R.Sample())

		for i := 0; i < nx; i++ {
			states.Set(t, i, x.AtVec(i))
		}
		for i := 0; i < ny; i++ {
			obs.Set(t, i, y.AtVec(i))
		}
	}

	return states, obs, nil
}

// Observe corrupts a clean trajectory (one state per row) into observations
// y_t = H*x_t + d + w_t with w drawn from N(0, cov) in a single batch using
// src as the randomness source.
// It returns error if the dimensions disagree or sampling fails.
func Observe(traj *mat.Dense, H *mat.Dense, d mat.Vector, cov mat.Symmetric, src *xrand.Rand) (*mat.Dense, error) {
	if traj == nil || H == nil {
		return nil, fmt.Errorf("invalid observation inputs: %v, %v", traj, H)
	}

	steps, nx := traj.Dims()
	ny, hCols := H.Dims()
	if hCols != nx {
		return nil, fmt.Errorf("invalid observation matrix dimensions: [%d x %d]", ny, hCols)
	}

	noise, err := rand.WithCovN(cov, steps, src)
	if err != nil {
		return nil, err
	}

	out := mat.NewDense(steps, ny, nil)
	y := &mat.VecDense{}
	for t := 0; t < steps; t++ {
		y.MulVec(H, mat.NewVecDense(nx, traj.RawRowView(t)))
		if d != nil {
			y.AddVec(y, d)
		}
		y.AddVec(y, noise.ColView(t))
		for i := 0; i < ny; i++ {
			out.Set(t, i, y.AtVec(i))
		}
	}

	return out, nil
}
