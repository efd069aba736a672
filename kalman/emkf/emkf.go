// Package emkf implements an Expectation-Maximization Kalman Filter for
// linear-Gaussian state space models:
//
//	x_t = F*x_t-1 + b + v_t
//	y_t = H*x_t   + d + w_t
//	v_t ~ N(0, Q), w_t ~ N(0, R)
//
// Besides estimating the hidden state trajectory it learns the transition
// matrix F (and optionally the transition offset b) online: the observation
// sequence is processed in blocks of Tau timesteps and after each block the
// transition parameters are re-estimated from accumulated sufficient
// statistics and blended in via a damped, elementwise clipped update.
package emkf

import (
	"fmt"

	filter "github.com/milosgajdos/go-emkf"
	"github.com/milosgajdos/go-emkf/backend"
	"github.com/milosgajdos/go-emkf/dims"
	"github.com/milosgajdos/go-emkf/estimate"
	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"
)

// Mode selects how filtering, smoothing and parameter re-estimation interleave.
type Mode string

const (
	// ModeSmooth runs exact block EM: each block is filtered forward,
	// smoothed backward and the M-step consumes smoothed statistics.
	ModeSmooth Mode = "smooth"
	// ModeFilter runs a streaming approximation: a short look-ahead window
	// of filtered statistics feeds the M-step and no backward pass is run.
	ModeFilter Mode = "filter"
)

// Var identifies a model parameter subject to EM re-estimation.
type Var int

const (
	// TransitionMatrix selects the state transition matrix F
	TransitionMatrix Var = iota
	// TransitionOffset selects the state transition offset b
	TransitionOffset
)

// Config contains EMKF configuration parameters.
// Zero values select the documented defaults; fields whose zero value is
// meaningful (StoreMatrices, EMVars) keep it.
type Config struct {
	// Init is initial state condition; zero mean and identity covariance when nil
	Init filter.InitCond
	// F is state transition matrix; identity when nil
	F *mat.Dense
	// Q is transition covariance; identity when nil
	Q *mat.Dense
	// H is observation matrix; identity-padded when nil
	H *mat.Dense
	// R is observation covariance; identity when nil
	R *mat.Dense
	// B is constant transition offset; zero when nil
	B mat.Vector
	// BSeq is per-timestep transition offsets stored one per row.
	// When set it takes precedence over B.
	BSeq *mat.Dense
	// D is observation offset; zero when nil
	D mat.Vector
	// Tau is block length between re-estimations (default 1)
	Tau int
	// Eta is transition matrix learning rate in (0,1] (default 0.1)
	Eta float64
	// Cutoff is transition matrix elementwise clip threshold (default 0.1)
	Cutoff float64
	// EtaB is transition offset learning rate in (0,1] (default 0.1)
	EtaB float64
	// CutoffB is transition offset clip threshold (default 0.1)
	CutoffB float64
	// Iteration is the refinement iteration count per block (default 1)
	Iteration int
	// StoreMatrices retains a history of transition matrix snapshots
	StoreMatrices bool
	// EMVars lists the parameters re-estimated by EM.
	// Leave nil to keep all parameters fixed: the filter then reduces to a
	// plain fixed-parameter Kalman filter and RTS smoother.
	EMVars []Var
	// Mode is the operating mode (default ModeSmooth)
	Mode Mode
	// NX overrides the inferred state dimension
	NX int
	// NY overrides the inferred observation dimension
	NY int
	// LinAlg is the linear algebra backend; CPU gonum backend when nil
	LinAlg filter.LinAlg
	// Progress is an optional per-step observer
	Progress filter.Progress
}

// EMKF is Expectation-Maximization Kalman Filter
type EMKF struct {
	// y stores observations, one per row
	y *mat.Dense
	// nx and ny are state and observation dimensions
	nx, ny int
	// f is state transition matrix
	f *mat.Dense
	// q is transition covariance
	q *mat.Dense
	// h is observation matrix
	h *mat.Dense
	// r is observation covariance
	r *mat.Dense
	// b is constant transition offset
	b *mat.VecDense
	// bSeq is optional per-timestep transition offsets
	bSeq *mat.Dense
	// d is observation offset
	d *mat.VecDense
	// initMean and initCov seed the first predicted state
	initMean *mat.VecDense
	initCov  *mat.Dense

	tau       int
	eta       float64
	cutoff    float64
	etab      float64
	cutoffb   float64
	iteration int
	mode      Mode
	updateF   bool
	updateB   bool
	store     bool

	// fs is transition matrix history: fs[0] is the initial F and every
	// block update appends one snapshot
	fs []*mat.Dense

	la       filter.LinAlg
	progress filter.Progress

	// trajectories, allocated once per run and filled in place
	pred *trajectory
	filt *trajectory
	smth *trajectory
	pair *covSeq
	done bool
}

// New creates new EMKF for the observation sequence y (one observation per
// row) and returns it. A nil config selects all defaults.
// It returns error if either of the following conditions is met:
//   - y is nil or empty
//   - state or observation dimensionality cannot be resolved consistently
//     from the supplied matrices
//   - an invalid mode, block length, learning rate, clip threshold or
//     iteration count is given
//   - a supplied matrix does not match the resolved dimensions
func New(y *mat.Dense, c *Config) (*EMKF, error) {
	if y == nil || y.IsEmpty() {
		return nil, fmt.Errorf("invalid observation sequence: %v", y)
	}

	if c == nil {
		c = &Config{}
	}

	var initState mat.Vector
	var initCov mat.Matrix
	if c.Init != nil {
		initState = c.Init.State()
		initCov = c.Init.Cov()
	}

	// a nil *mat.Dense wrapped in a mat.Matrix is not a nil interface,
	// so only concretely supplied matrices become candidates
	var nxCands []dims.Candidate
	if c.F != nil {
		nxCands = append(nxCands, dims.Candidate{M: c.F, Axis: dims.Rows})
	}
	if initState != nil {
		nxCands = append(nxCands, dims.Candidate{M: initState})
	}
	if initCov != nil {
		nxCands = append(nxCands, dims.Candidate{M: initCov, Axis: dims.Rows})
	}
	if c.H != nil {
		nxCands = append(nxCands, dims.Candidate{M: c.H, Axis: dims.Cols})
	}

	nx, err := dims.Resolve(nxCands, c.NX)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve state dimension: %v", err)
	}

	T, yCols := y.Dims()
	nyCands := []dims.Candidate{{M: y, Axis: dims.Cols}}
	if c.H != nil {
		nyCands = append(nyCands, dims.Candidate{M: c.H, Axis: dims.Rows})
	}
	if c.R != nil {
		nyCands = append(nyCands, dims.Candidate{M: c.R, Axis: dims.Rows})
	}

	ny, err := dims.Resolve(nyCands, c.NY)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve observation dimension: %v", err)
	}

	if yCols != ny {
		return nil, fmt.Errorf("invalid observation dimensions: [%d x %d]", T, yCols)
	}

	e := &EMKF{
		y:  mat.DenseCopyOf(y),
		nx: nx,
		ny: ny,
	}

	if err := e.setParams(c, initState, initCov); err != nil {
		return nil, err
	}

	if err := e.setSchedule(c, T); err != nil {
		return nil, err
	}

	return e, nil
}

// setParams populates model parameters from c, applying defaults for
// parameters which were not supplied.
func (e *EMKF) setParams(c *Config, initState mat.Vector, initCov mat.Matrix) error {
	T, _ := e.y.Dims()

	e.f, _ = matrix.NewDenseValIdentity(e.nx, 1.0)
	if c.F != nil {
		if err := checkDims(c.F, e.nx, e.nx, "transition matrix"); err != nil {
			return err
		}
		e.f = mat.DenseCopyOf(c.F)
	}

	e.q, _ = matrix.NewDenseValIdentity(e.nx, 1.0)
	if c.Q != nil {
		if err := checkDims(c.Q, e.nx, e.nx, "transition covariance"); err != nil {
			return err
		}
		e.q = mat.DenseCopyOf(c.Q)
	}

	e.h = eye(e.ny, e.nx)
	if c.H != nil {
		if err := checkDims(c.H, e.ny, e.nx, "observation matrix"); err != nil {
			return err
		}
		e.h = mat.DenseCopyOf(c.H)
	}

	e.r, _ = matrix.NewDenseValIdentity(e.ny, 1.0)
	if c.R != nil {
		if err := checkDims(c.R, e.ny, e.ny, "observation covariance"); err != nil {
			return err
		}
		e.r = mat.DenseCopyOf(c.R)
	}

	e.b = mat.NewVecDense(e.nx, nil)
	if c.B != nil {
		if c.B.Len() != e.nx {
			return fmt.Errorf("invalid transition offset dimension: %d", c.B.Len())
		}
		e.b.CloneFromVec(c.B)
	}

	if c.BSeq != nil {
		if err := checkDims(c.BSeq, T, e.nx, "transition offset sequence"); err != nil {
			return err
		}
		e.bSeq = mat.DenseCopyOf(c.BSeq)
	}

	e.d = mat.NewVecDense(e.ny, nil)
	if c.D != nil {
		if c.D.Len() != e.ny {
			return fmt.Errorf("invalid observation offset dimension: %d", c.D.Len())
		}
		e.d.CloneFromVec(c.D)
	}

	e.initMean = mat.NewVecDense(e.nx, nil)
	if initState != nil {
		if initState.Len() != e.nx {
			return fmt.Errorf("invalid initial state dimension: %d", initState.Len())
		}
		e.initMean.CloneFromVec(initState)
	}

	e.initCov, _ = matrix.NewDenseValIdentity(e.nx, 1.0)
	if initCov != nil {
		if err := checkDims(initCov, e.nx, e.nx, "initial covariance"); err != nil {
			return err
		}
		e.initCov = mat.DenseCopyOf(initCov)
	}

	return nil
}

// setSchedule populates scheduling hyperparameters from c and validates them.
func (e *EMKF) setSchedule(c *Config, T int) error {
	e.mode = c.Mode
	if e.mode == "" {
		e.mode = ModeSmooth
	}
	if e.mode != ModeSmooth && e.mode != ModeFilter {
		return fmt.Errorf("invalid mode %q: only %q and %q modes are supported", c.Mode, ModeFilter, ModeSmooth)
	}

	e.tau = c.Tau
	if e.tau == 0 {
		e.tau = 1
	}
	if e.tau < 1 {
		return fmt.Errorf("invalid block length: %d", c.Tau)
	}

	var err error
	if e.eta, err = rate(c.Eta, "learning rate"); err != nil {
		return err
	}
	if e.etab, err = rate(c.EtaB, "offset learning rate"); err != nil {
		return err
	}
	if e.cutoff, err = threshold(c.Cutoff, "clip threshold"); err != nil {
		return err
	}
	if e.cutoffb, err = threshold(c.CutoffB, "offset clip threshold"); err != nil {
		return err
	}

	e.iteration = c.Iteration
	if e.iteration == 0 {
		e.iteration = 1
	}
	if e.iteration < 1 {
		return fmt.Errorf("invalid iteration count: %d", c.Iteration)
	}

	for _, v := range c.EMVars {
		switch v {
		case TransitionMatrix:
			e.updateF = true
		case TransitionOffset:
			e.updateB = true
		default:
			return fmt.Errorf("invalid EM variable: %d", v)
		}
	}

	e.store = c.StoreMatrices
	if e.store {
		e.fs = make([]*mat.Dense, (T-1)/e.tau+2)
		for i := range e.fs {
			e.fs[i] = mat.NewDense(e.nx, e.nx, nil)
		}
		e.fs[0] = mat.DenseCopyOf(e.f)
	}

	e.la = c.LinAlg
	if e.la == nil {
		e.la = backend.NewDense()
	}
	e.progress = c.Progress

	return nil
}

// Run executes the main estimation pass over the whole observation sequence.
// It is idempotent: repeated calls after the first are no-ops. Result
// accessors invoke it lazily, so calling Run explicitly is optional.
func (e *EMKF) Run() {
	e.run()
}

// Predicted returns the predicted mean trajectory, one state per row.
func (e *EMKF) Predicted() *mat.Dense {
	e.run()
	return mat.DenseCopyOf(e.pred.mean)
}

// Filtered returns the filtered mean trajectory, one state per row.
func (e *EMKF) Filtered() *mat.Dense {
	e.run()
	return mat.DenseCopyOf(e.filt.mean)
}

// Smoothed returns the smoothed mean trajectory, one state per row.
// In ModeFilter no backward pass runs and the smoothed trajectory entries
// outside completed blocks remain zero.
func (e *EMKF) Smoothed() *mat.Dense {
	e.run()
	return mat.DenseCopyOf(e.smth.mean)
}

// PredictedDim returns the time series of coordinate dim of the predicted means.
// It returns error if dim is outside the state dimensionality.
func (e *EMKF) PredictedDim(dim int) ([]float64, error) {
	e.run()
	return e.dimSeries(e.pred, dim)
}

// FilteredDim returns the time series of coordinate dim of the filtered means.
// It returns error if dim is outside the state dimensionality.
func (e *EMKF) FilteredDim(dim int) ([]float64, error) {
	e.run()
	return e.dimSeries(e.filt, dim)
}

// SmoothedDim returns the time series of coordinate dim of the smoothed means.
// It returns error if dim is outside the state dimensionality.
func (e *EMKF) SmoothedDim(dim int) ([]float64, error) {
	e.run()
	return e.dimSeries(e.smth, dim)
}

// PredictedEstimate returns the predicted (mean, covariance) pair at time t.
func (e *EMKF) PredictedEstimate(t int) (*estimate.Base, error) {
	e.run()
	if err := e.checkTime(t); err != nil {
		return nil, err
	}
	return estimate.NewWithCov(e.pred.meanAt(t), symCopy(e.pred.covAt(t)))
}

// FilteredEstimate returns the filtered (mean, covariance) pair at time t.
func (e *EMKF) FilteredEstimate(t int) (*estimate.Base, error) {
	e.run()
	if err := e.checkTime(t); err != nil {
		return nil, err
	}
	return estimate.NewWithCov(e.filt.meanAt(t), symCopy(e.filt.covAt(t)))
}

// SmoothedEstimate returns the smoothed estimate at time t together with the
// lag-one cross covariance Cov(x_t, x_t-1 | data). The cross covariance at
// t = 0 is zero: index 0 has no predecessor.
func (e *EMKF) SmoothedEstimate(t int) (*estimate.Pair, error) {
	e.run()
	if err := e.checkTime(t); err != nil {
		return nil, err
	}
	return estimate.NewPair(e.smth.meanAt(t), symCopy(e.smth.covAt(t)), e.pair.at(t))
}

// TransitionMatrices returns the transition matrix history. With no ids the
// full history buffer is returned; with ids a subsequence indexed by them.
// When history retention is disabled it returns the single current matrix.
// It returns error if any id is outside the history buffer.
func (e *EMKF) TransitionMatrices(ids ...int) ([]*mat.Dense, error) {
	e.run()

	if !e.store {
		return []*mat.Dense{mat.DenseCopyOf(e.f)}, nil
	}

	if len(ids) == 0 {
		out := make([]*mat.Dense, len(e.fs))
		for i, f := range e.fs {
			out[i] = mat.DenseCopyOf(f)
		}
		return out, nil
	}

	out := make([]*mat.Dense, len(ids))
	for i, id := range ids {
		if id < 0 || id >= len(e.fs) {
			return nil, fmt.Errorf("transition matrix index out of range: %d", id)
		}
		out[i] = mat.DenseCopyOf(e.fs[id])
	}
	return out, nil
}

// dimSeries extracts coordinate dim of tr as a time series
func (e *EMKF) dimSeries(tr *trajectory, dim int) ([]float64, error) {
	if dim < 0 || dim >= e.nx {
		return nil, fmt.Errorf("dimension out of range: %d must be less than %d", dim, e.nx)
	}

	T, _ := e.y.Dims()
	out := make([]float64, T)
	for t := 0; t < T; t++ {
		out[t] = tr.mean.At(t, dim)
	}
	return out, nil
}

func (e *EMKF) checkTime(t int) error {
	T, _ := e.y.Dims()
	if t < 0 || t >= T {
		return fmt.Errorf("time index out of range: %d", t)
	}
	return nil
}

// notify reports progress to the configured observer, if any
func (e *EMKF) notify(p filter.Phase, cur, total int) {
	if e.progress != nil {
		e.progress(p, cur, total)
	}
}

func rate(v float64, name string) (float64, error) {
	if v == 0 {
		return 0.1, nil
	}
	if v < 0 || v > 1 {
		return 0, fmt.Errorf("invalid %s: %v", name, v)
	}
	return v, nil
}

func threshold(v float64, name string) (float64, error) {
	if v == 0 {
		return 0.1, nil
	}
	if v < 0 {
		return 0, fmt.Errorf("invalid %s: %v", name, v)
	}
	return v, nil
}

func checkDims(m mat.Matrix, rows, cols int, name string) error {
	r, c := m.Dims()
	if r != rows || c != cols {
		return fmt.Errorf("invalid %s dimensions: [%d x %d]", name, r, c)
	}
	return nil
}

// eye returns an r x c matrix with ones on the main diagonal
func eye(r, c int) *mat.Dense {
	m := mat.NewDense(r, c, nil)
	for i := 0; i < r && i < c; i++ {
		m.Set(i, i, 1.0)
	}
	return m
}

// symCopy copies the upper triangle of a square dense matrix into a SymDense
func symCopy(m *mat.Dense) *mat.SymDense {
	n, _ := m.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, m.At(i, j))
		}
	}
	return s
}
