// Package dims infers state and observation space sizes from whichever
// model matrices were actually supplied.
package dims

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Axis selects which dimension of a candidate matrix determines the size.
type Axis int

const (
	// Rows selects the row count of the candidate
	Rows Axis = iota
	// Cols selects the column count of the candidate
	Cols
)

// Candidate is a possibly nil matrix together with the axis along which
// it constrains the inferred dimension. Vector candidates constrain via
// their length regardless of the axis.
type Candidate struct {
	// M is the candidate matrix; nil candidates are skipped
	M mat.Matrix
	// Axis is the constraining axis of M
	Axis Axis
}

// dim returns the size of c along its constraining axis
func (c Candidate) dim() int {
	if v, ok := c.M.(mat.Vector); ok {
		return v.Len()
	}

	r, cols := c.M.Dims()
	if c.Axis == Rows {
		return r
	}

	return cols
}

// Resolve returns the single dimension consistent with all non-nil candidates.
// A positive override wins but must still agree with every candidate.
// It returns error if the candidates disagree with each other or with the
// override, or if nothing determines the dimension at all.
func Resolve(cands []Candidate, override int) (int, error) {
	dim := 0
	if override > 0 {
		dim = override
	}

	for _, c := range cands {
		if c.M == nil {
			continue
		}

		d := c.dim()
		if dim == 0 {
			dim = d
			continue
		}

		if d != dim {
			return 0, fmt.Errorf("inconsistent dimensions: %d != %d", d, dim)
		}
	}

	if dim == 0 {
		return 0, fmt.Errorf("unable to determine dimensionality: no candidates supplied")
	}

	return dim, nil
}
