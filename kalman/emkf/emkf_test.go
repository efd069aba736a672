package emkf

import (
	"math"
	"os"
	"testing"

	"github.com/milosgajdos/go-emkf/backend"
	"github.com/milosgajdos/go-emkf/noise"
	"github.com/milosgajdos/go-emkf/sim"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

var (
	// scalar AR(0.9) model observations, generated once with fixed seeds
	arObs *mat.Dense
	// small 2-state constant velocity observations
	cvObs *mat.Dense
)

func setup() {
	F := mat.NewDense(1, 1, []float64{0.9})
	H := mat.NewDense(1, 1, []float64{1.0})
	q, _ := noise.NewGaussianSeed([]float64{0.0}, mat.NewSymDense(1, []float64{1.0}), 21)
	r, _ := noise.NewGaussianSeed([]float64{0.0}, mat.NewSymDense(1, []float64{1.0}), 22)

	m, _ := sim.NewLinearGaussian(F, H, nil, nil, q, r)
	_, arObs, _ = m.Simulate(mat.NewVecDense(1, []float64{0.0}), 200)

	Fcv := mat.NewDense(2, 2, []float64{1.0, 0.1, 0.0, 1.0})
	Hcv := mat.NewDense(1, 2, []float64{1.0, 0.0})
	qcv, _ := noise.NewGaussianSeed([]float64{0.0, 0.0}, mat.NewSymDense(2, []float64{0.01, 0.0, 0.0, 0.01}), 23)
	rcv, _ := noise.NewGaussianSeed([]float64{0.0}, mat.NewSymDense(1, []float64{0.25}), 24)

	mcv, _ := sim.NewLinearGaussian(Fcv, Hcv, nil, nil, qcv, rcv)
	_, cvObs, _ = mcv.Simulate(mat.NewVecDense(2, []float64{1.0, 0.5}), 40)
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	f, err := New(arObs, &Config{F: mat.NewDense(1, 1, []float64{0.9})})
	assert.NoError(err)
	assert.NotNil(f)

	// nil config: dimensions from the observations alone
	f, err = New(cvObs, &Config{NX: 2})
	assert.NoError(err)
	assert.NotNil(f)

	// nil observations
	f, err = New(nil, nil)
	assert.Nil(f)
	assert.Error(err)
}

func TestNewDefaults(t *testing.T) {
	assert := assert.New(t)

	// every model matrix omitted in turn: a single supplied matrix (or an
	// explicit dimension override) must be enough, defaults fill the rest
	configs := []*Config{
		{F: mat.NewDense(2, 2, nil)},
		{H: mat.NewDense(1, 2, nil)},
		{Q: mat.NewDense(2, 2, nil), NX: 2},
		{R: mat.NewDense(1, 1, nil), NX: 2},
		{Init: sim.NewInitCond(mat.NewVecDense(2, nil), mat.NewSymDense(2, nil))},
		{NX: 2},
	}

	for i, c := range configs {
		f, err := New(cvObs, c)
		assert.NoError(err, "config %d", i)
		assert.NotNil(f, "config %d", i)
	}
}

func TestNewInvalidConfig(t *testing.T) {
	assert := assert.New(t)

	F := mat.NewDense(1, 1, []float64{0.9})

	// unknown mode
	f, err := New(arObs, &Config{F: F, Mode: "exact"})
	assert.Nil(f)
	assert.Error(err)

	// learning rate outside (0,1]
	f, err = New(arObs, &Config{F: F, Eta: 1.5})
	assert.Nil(f)
	assert.Error(err)

	f, err = New(arObs, &Config{F: F, EtaB: -0.1})
	assert.Nil(f)
	assert.Error(err)

	// negative clip threshold
	f, err = New(arObs, &Config{F: F, Cutoff: -1.0})
	assert.Nil(f)
	assert.Error(err)

	// invalid block length and iteration count
	f, err = New(arObs, &Config{F: F, Tau: -3})
	assert.Nil(f)
	assert.Error(err)

	f, err = New(arObs, &Config{F: F, Iteration: -1})
	assert.Nil(f)
	assert.Error(err)

	// unknown EM variable
	f, err = New(arObs, &Config{F: F, EMVars: []Var{Var(42)}})
	assert.Nil(f)
	assert.Error(err)
}

func TestNewInconsistentDims(t *testing.T) {
	assert := assert.New(t)

	// transition matrix rows disagree with observation matrix columns
	f, err := New(cvObs, &Config{
		F: mat.NewDense(2, 2, nil),
		H: mat.NewDense(1, 3, nil),
	})
	assert.Nil(f)
	assert.Error(err)

	// observation covariance disagrees with observation dimension
	f, err = New(cvObs, &Config{
		F: mat.NewDense(2, 2, nil),
		R: mat.NewDense(2, 2, nil),
	})
	assert.Nil(f)
	assert.Error(err)

	// observation sequence width disagrees with the resolved dimension
	f, err = New(cvObs, &Config{
		F: mat.NewDense(2, 2, nil),
		H: mat.NewDense(3, 2, nil),
	})
	assert.Nil(f)
	assert.Error(err)
}

func TestDimensionGuard(t *testing.T) {
	assert := assert.New(t)

	f, err := New(cvObs, &Config{F: mat.NewDense(2, 2, []float64{1.0, 0.1, 0.0, 1.0})})
	assert.NoError(err)

	// requesting dim equal to the state dimensionality must fail,
	// not clamp or wrap
	series, err := f.FilteredDim(2)
	assert.Nil(series)
	assert.Error(err)

	series, err = f.PredictedDim(-1)
	assert.Nil(series)
	assert.Error(err)

	series, err = f.SmoothedDim(2)
	assert.Nil(series)
	assert.Error(err)

	series, err = f.FilteredDim(1)
	assert.NoError(err)
	assert.Len(series, 40)
}

func TestLazyRun(t *testing.T) {
	assert := assert.New(t)

	f, err := New(arObs, &Config{F: mat.NewDense(1, 1, []float64{0.9})})
	assert.NoError(err)

	// accessor triggers the run without an explicit Run call
	filtered := f.Filtered()
	assert.NotNil(filtered)

	// Run is idempotent
	f.Run()
	f.Run()
	assert.True(mat.Equal(filtered, f.Filtered()))
}

func TestEstimateAccessors(t *testing.T) {
	assert := assert.New(t)

	f, err := New(cvObs, &Config{
		F:      mat.NewDense(2, 2, []float64{1.0, 0.1, 0.0, 1.0}),
		Tau:    10,
		EMVars: []Var{TransitionMatrix},
	})
	assert.NoError(err)

	est, err := f.FilteredEstimate(5)
	assert.NoError(err)
	assert.Equal(2, est.Val().Len())
	assert.Equal(2, est.Cov().SymmetricDim())

	pair, err := f.SmoothedEstimate(5)
	assert.NoError(err)
	r, c := pair.PairCov().Dims()
	assert.Equal(2, r)
	assert.Equal(2, c)

	// index 0 has no predecessor: zero cross covariance
	pair, err = f.SmoothedEstimate(0)
	assert.NoError(err)
	assert.True(mat.Equal(mat.NewDense(2, 2, nil), pair.PairCov()))

	// out of range time index
	_, err = f.FilteredEstimate(40)
	assert.Error(err)
	_, err = f.SmoothedEstimate(-1)
	assert.Error(err)
}

func TestTransitionMatricesNoHistory(t *testing.T) {
	assert := assert.New(t)

	f, err := New(arObs, &Config{F: mat.NewDense(1, 1, []float64{0.9})})
	assert.NoError(err)

	fs, err := f.TransitionMatrices()
	assert.NoError(err)
	assert.Len(fs, 1)
	assert.InDelta(0.9, fs[0].At(0, 0), 1e-12)
}

func TestHistoryIndexing(t *testing.T) {
	assert := assert.New(t)

	f, err := New(arObs, &Config{
		F:             mat.NewDense(1, 1, []float64{0.5}),
		Tau:           20,
		EMVars:        []Var{TransitionMatrix},
		StoreMatrices: true,
	})
	assert.NoError(err)

	full, err := f.TransitionMatrices()
	assert.NoError(err)
	// (200-1)/20 + 2
	assert.Len(full, 11)

	// strided subset must equal elementwise slicing of the full history
	ids := []int{0, 2, 4, 6, 8}
	sub, err := f.TransitionMatrices(ids...)
	assert.NoError(err)
	assert.Len(sub, len(ids))
	for i, id := range ids {
		assert.True(mat.Equal(full[id], sub[i]))
	}

	// out of range id
	_, err = f.TransitionMatrices(0, 11)
	assert.Error(err)
	_, err = f.TransitionMatrices(-1)
	assert.Error(err)
}

func TestDampedStepBounds(t *testing.T) {
	assert := assert.New(t)

	e := &EMKF{la: backend.NewDense()}

	// adversarially distant candidate: every entry moves by exactly
	// rate*bound, no further
	old := mat.NewDense(2, 2, nil)
	cand := mat.NewDense(2, 2, []float64{1e9, -1e9, 1e9, -1e9})
	out := e.dampedStep(old, cand, 0.5, 0.2)
	assert.InDelta(0.1, out.At(0, 0), 1e-12)
	assert.InDelta(-0.1, out.At(0, 1), 1e-12)

	// nearby candidate: plain damped step, clip inactive
	cand = mat.NewDense(2, 2, []float64{0.1, 0.0, 0.0, 0.1})
	out = e.dampedStep(old, cand, 0.5, 0.2)
	assert.InDelta(0.05, out.At(0, 0), 1e-12)

	vOld := mat.NewVecDense(2, nil)
	vCand := mat.NewVecDense(2, []float64{100.0, -100.0})
	vOut := e.dampedStepVec(vOld, vCand, 0.5, 0.2)
	assert.InDelta(0.1, vOut.AtVec(0), 1e-12)
	assert.InDelta(-0.1, vOut.AtVec(1), 1e-12)
}

func TestClipBoundPerBlock(t *testing.T) {
	assert := assert.New(t)

	// observations engineered to produce wild single-block regressions
	data := make([]float64, 20)
	for i := range data {
		data[i] = 1e6 * float64(1+i%3)
		if i%2 == 0 {
			data[i] = -data[i]
		}
	}
	y := mat.NewDense(20, 1, data)

	f, err := New(y, &Config{
		F:             mat.NewDense(1, 1, []float64{1.0}),
		Tau:           5,
		Eta:           1.0,
		Cutoff:        0.05,
		EMVars:        []Var{TransitionMatrix},
		StoreMatrices: true,
	})
	assert.NoError(err)

	fs, err := f.TransitionMatrices()
	assert.NoError(err)

	for i := 1; i < 5; i++ {
		delta := math.Abs(fs[i].At(0, 0) - fs[i-1].At(0, 0))
		assert.LessOrEqual(delta, 1.0*0.05+1e-12, "block %d moved too far", i)
	}
}

func TestPinvRobustness(t *testing.T) {
	assert := assert.New(t)

	// redundant observation dimension with a singular (zero) observation
	// covariance: the innovation covariance is rank deficient every step
	data := make([]float64, 60)
	for i := 0; i < 30; i++ {
		v := math.Sin(float64(i) / 3.0)
		data[2*i] = v
		data[2*i+1] = v
	}
	y := mat.NewDense(30, 2, data)

	f, err := New(y, &Config{
		F:      mat.NewDense(1, 1, []float64{0.9}),
		H:      mat.NewDense(2, 1, []float64{1.0, 1.0}),
		R:      mat.NewDense(2, 2, nil),
		Tau:    5,
		EMVars: []Var{TransitionMatrix},
	})
	assert.NoError(err)

	filtered := f.Filtered()
	smoothed := f.Smoothed()
	for t := 0; t < 30; t++ {
		assert.False(math.IsNaN(filtered.At(t, 0)), "filtered NaN at %d", t)
		assert.False(math.IsInf(filtered.At(t, 0), 0), "filtered Inf at %d", t)
		assert.False(math.IsNaN(smoothed.At(t, 0)), "smoothed NaN at %d", t)
	}
}
