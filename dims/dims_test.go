package dims

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestResolve(t *testing.T) {
	assert := assert.New(t)

	f := mat.NewDense(2, 2, nil)
	h := mat.NewDense(1, 2, nil)
	m0 := mat.NewVecDense(2, nil)

	// agreement across matrices, vectors and axes
	d, err := Resolve([]Candidate{
		{M: f, Axis: Rows},
		{M: m0},
		{M: h, Axis: Cols},
	}, 0)
	assert.NoError(err)
	assert.Equal(2, d)

	// nil candidates are skipped
	d, err = Resolve([]Candidate{
		{M: nil, Axis: Rows},
		{M: h, Axis: Rows},
	}, 0)
	assert.NoError(err)
	assert.Equal(1, d)

	// override wins when nothing else is supplied
	d, err = Resolve([]Candidate{{M: nil}}, 5)
	assert.NoError(err)
	assert.Equal(5, d)
}

func TestResolveInconsistent(t *testing.T) {
	assert := assert.New(t)

	f := mat.NewDense(2, 2, nil)
	r := mat.NewDense(3, 3, nil)

	_, err := Resolve([]Candidate{
		{M: f, Axis: Rows},
		{M: r, Axis: Rows},
	}, 0)
	assert.Error(err)

	// override must agree with the candidates too
	_, err = Resolve([]Candidate{{M: f, Axis: Rows}}, 3)
	assert.Error(err)
}

func TestResolveUndetermined(t *testing.T) {
	assert := assert.New(t)

	_, err := Resolve(nil, 0)
	assert.Error(err)

	_, err = Resolve([]Candidate{{M: nil}, {M: nil}}, 0)
	assert.Error(err)
}
