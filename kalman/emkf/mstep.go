package emkf

import "gonum.org/v1/gonum/mat"

// estimateTransition runs the backward sweep over the block of tau
// transitions ending at time s and regresses candidate transition parameters
// from the smoothed sufficient statistics:
//
//	res1 = sum_t [ P_t,t-1 + x_t*x_t-1' - b_t-1*x_t-1' ]
//	res2 = sum_t [ V_t-1   + x_t-1*x_t-1' ]
//	F_cand = res1 * res2^+
//
// The offset candidate is the mean interior residual x_t - F*x_t-1 and is
// only computed when the block has more than one transition. Candidates for
// parameters outside the EM-update set are left at their incoming values.
func (e *EMKF) estimateTransition(s, tau int, F *mat.Dense) (*mat.Dense, *mat.VecDense) {
	e.backward(s, tau, F)

	fEst := F
	if e.updateF {
		res1 := mat.NewDense(e.nx, e.nx, nil)
		res2 := mat.NewDense(e.nx, e.nx, nil)

		for t := s - tau + 1; t <= s; t++ {
			b := e.offsetAt(t - 1)
			sm := e.smth.meanAt(t)
			smPrev := e.smth.meanAt(t - 1)

			res1 = e.la.Add(res1, e.pair.at(t))
			res1 = e.la.Add(res1, e.la.Outer(sm, smPrev))
			res1 = e.la.Sub(res1, e.la.Outer(b, smPrev))

			res2 = e.la.Add(res2, e.smth.covAt(t-1))
			res2 = e.la.Add(res2, e.la.Outer(smPrev, smPrev))
		}

		fEst = e.la.Mul(res1, e.la.Pinv(res2))
	}

	var bEst *mat.VecDense
	if e.updateB && tau > 1 {
		acc := mat.NewVecDense(e.nx, nil)
		for t := s - tau + 1; t < s; t++ {
			acc = e.la.AddVec(acc, e.la.SubVec(
				e.smth.meanAt(t),
				e.la.MulVec(e.f, e.smth.meanAt(t-1)),
			))
		}
		bEst = e.la.ScaleVec(1.0/float64(tau-1), acc)
	}

	return fEst, bEst
}

// estimateTransitionApprox regresses a transition matrix candidate from the
// filtered statistics of the look-ahead window [t+1, t+tau] and applies the
// damped clipped update immediately. No backward pass is involved: the
// pairwise covariances come straight from the pair-tracking forward steps.
func (e *EMKF) estimateTransitionApprox(t int) {
	if e.updateF {
		res1 := mat.NewDense(e.nx, e.nx, nil)
		res2 := mat.NewDense(e.nx, e.nx, nil)

		for s := t + 1; s <= t+e.tau; s++ {
			b := e.offsetAt(s - 1)
			xf := e.filt.meanAt(s)
			xfPrev := e.filt.meanAt(s - 1)

			res1 = e.la.Add(res1, e.pair.at(s))
			res1 = e.la.Add(res1, e.la.Outer(xf, xfPrev))
			res1 = e.la.Sub(res1, e.la.Outer(b, xfPrev))

			res2 = e.la.Add(res2, e.filt.covAt(s-1))
			res2 = e.la.Add(res2, e.la.Outer(xfPrev, xfPrev))
		}

		fEst := e.la.Mul(res1, e.la.Pinv(res2))
		e.f = e.dampedStep(e.f, fEst, e.eta, e.cutoff)
	}

	if e.store {
		e.fs[t/e.tau+1] = mat.DenseCopyOf(e.f)
	}
}

// dampedStep blends cand into old with a bounded move:
//
//	new = old - rate * clip(old - cand, -bound, bound)
//
// No entry moves by more than rate*bound in one update, which keeps a noisy
// single-block regression from destabilizing the learned parameters.
func (e *EMKF) dampedStep(old, cand *mat.Dense, rate, bound float64) *mat.Dense {
	return e.la.Sub(old, e.la.Scale(rate, e.la.Clip(e.la.Sub(old, cand), bound)))
}

// dampedStepVec is dampedStep for vector parameters
func (e *EMKF) dampedStepVec(old, cand *mat.VecDense, rate, bound float64) *mat.VecDense {
	return e.la.SubVec(old, e.la.ScaleVec(rate, e.la.ClipVec(e.la.SubVec(old, cand), bound)))
}
