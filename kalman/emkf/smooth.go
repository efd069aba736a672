package emkf

import (
	filter "github.com/milosgajdos/go-emkf"
	"gonum.org/v1/gonum/mat"
)

// backward runs the Rauch-Tung-Striebel recursion over the block of tau
// transitions ending at time s. It requires the forward pass to have filled
// predicted and filtered values for the whole block. The smoothed state at
// the block end is the filtered state; walking back it also fills the
// lag-one pairwise covariances needed by the transition regression.
func (e *EMKF) backward(s, tau int, F mat.Matrix) {
	if F == nil {
		F = e.f
	}

	e.smth.setMean(s, e.filt.meanAt(s))
	e.smth.setCov(s, e.filt.covAt(s))

	for t := s - 1; t >= s-tau; t-- {
		e.notify(filter.Smoothing, s-t, tau)

		// smoother gain A = V_filt_t * F * (V_pred_t+1)^+
		a := e.la.Mul(e.la.Mul(e.filt.covAt(t), F), e.la.Pinv(e.pred.covAt(t+1)))

		e.smth.setMean(t, e.la.AddVec(
			e.filt.meanAt(t),
			e.la.MulVec(a, e.la.SubVec(e.smth.meanAt(t+1), e.pred.meanAt(t+1))),
		))
		e.smth.setCov(t, e.la.Add(
			e.filt.covAt(t),
			e.la.Mul(e.la.Mul(a, e.la.Sub(e.smth.covAt(t+1), e.pred.covAt(t+1))), a.T()),
		))

		e.pair.set(t+1, e.la.Mul(e.smth.covAt(t+1), a.T()))
	}
}
