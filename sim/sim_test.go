package sim

import (
	"math"
	"testing"

	"github.com/milosgajdos/go-emkf/noise"
	"github.com/stretchr/testify/assert"
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

func TestTrajectory(t *testing.T) {
	assert := assert.New(t)

	ode := DampedOscillation(1.0, 0.5, 0.3, func(t float64) float64 { return 0.0 })
	traj := Trajectory(ode, []float64{5.0, 0.0}, 0.05, 100)

	r, c := traj.Dims()
	assert.Equal(100, r)
	assert.Equal(2, c)

	// first row is the initial state
	assert.Equal(5.0, traj.At(0, 0))
	assert.Equal(0.0, traj.At(0, 1))

	// damping shrinks the envelope
	assert.True(math.Abs(traj.At(99, 0)) < 5.0)
}

func TestLorenz63(t *testing.T) {
	assert := assert.New(t)

	traj := Trajectory(Lorenz63(10.0, 28.0, 8.0/3.0), []float64{1.0, 1.0, 1.0}, 0.01, 500)

	r, c := traj.Dims()
	assert.Equal(500, r)
	assert.Equal(3, c)
	for i := 0; i < c; i++ {
		assert.False(math.IsNaN(traj.At(r-1, i)))
	}
}

func TestLinearGaussianSimulate(t *testing.T) {
	assert := assert.New(t)

	F := mat.NewDense(1, 1, []float64{0.9})
	H := mat.NewDense(1, 1, []float64{1.0})

	q, err := noise.NewGaussianSeed([]float64{0.0}, mat.NewSymDense(1, []float64{1.0}), 11)
	assert.NoError(err)
	r, err := noise.NewGaussianSeed([]float64{0.0}, mat.NewSymDense(1, []float64{1.0}), 12)
	assert.NoError(err)

	m, err := NewLinearGaussian(F, H, nil, nil, q, r)
	assert.NoError(err)

	states, obs, err := m.Simulate(mat.NewVecDense(1, []float64{1.0}), 50)
	assert.NoError(err)

	sr, sc := states.Dims()
	assert.Equal(50, sr)
	assert.Equal(1, sc)
	or, oc := obs.Dims()
	assert.Equal(50, or)
	assert.Equal(1, oc)

	// first hidden state is x0
	assert.Equal(1.0, states.At(0, 0))

	// invalid initial state
	_, _, err = m.Simulate(mat.NewVecDense(2, nil), 10)
	assert.Error(err)
}

func TestSimulateNoiseFree(t *testing.T) {
	assert := assert.New(t)

	// nil noise sources default to zero noise: the hidden states follow the
	// deterministic recursion exactly and observations equal H*x
	F := mat.NewDense(1, 1, []float64{0.5})
	H := mat.NewDense(1, 1, []float64{2.0})

	m, err := NewLinearGaussian(F, H, nil, nil, nil, nil)
	assert.NoError(err)

	states, obs, err := m.Simulate(mat.NewVecDense(1, []float64{1.0}), 4)
	assert.NoError(err)

	want := []float64{1.0, 0.5, 0.25, 0.125}
	for t, w := range want {
		assert.Equal(w, states.At(t, 0))
		assert.Equal(2.0*w, obs.At(t, 0))
	}
}

func TestNewLinearGaussianInvalid(t *testing.T) {
	assert := assert.New(t)

	// non-square transition matrix
	m, err := NewLinearGaussian(mat.NewDense(2, 1, nil), mat.NewDense(1, 2, nil), nil, nil, nil, nil)
	assert.Nil(m)
	assert.Error(err)

	// observation matrix disagrees with state dimension
	m, err = NewLinearGaussian(mat.NewDense(2, 2, nil), mat.NewDense(1, 3, nil), nil, nil, nil, nil)
	assert.Nil(m)
	assert.Error(err)
}

func TestObserve(t *testing.T) {
	assert := assert.New(t)

	ode := DampedOscillation(1.0, 0.5, 0.3, func(t float64) float64 { return 0.0 })
	traj := Trajectory(ode, []float64{5.0, 0.0}, 0.05, 100)

	H := mat.NewDense(1, 2, []float64{1.0, 0.0})
	cov := mat.NewSymDense(1, []float64{0.01})

	obs, err := Observe(traj, H, nil, cov, xrand.New(xrand.NewSource(3)))
	assert.NoError(err)

	r, c := obs.Dims()
	assert.Equal(100, r)
	assert.Equal(1, c)

	// mismatched observation matrix
	obs, err = Observe(traj, mat.NewDense(1, 3, nil), nil, cov, nil)
	assert.Nil(obs)
	assert.Error(err)
}

func TestNewTracePlot(t *testing.T) {
	assert := assert.New(t)

	truth := mat.NewDense(10, 2, nil)
	meas := mat.NewDense(10, 1, nil)
	est := mat.NewDense(10, 2, nil)

	p, err := NewTracePlot(truth, meas, est, 0)
	assert.NoError(err)
	assert.NotNil(p)

	// dim outside the measurement columns
	p, err = NewTracePlot(truth, meas, est, 1)
	assert.Nil(p)
	assert.Error(err)

	p, err = NewTracePlot(nil, meas, est, 0)
	assert.Nil(p)
	assert.Error(err)
}
