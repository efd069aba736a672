package emkf

import (
	filter "github.com/milosgajdos/go-emkf"
	"gonum.org/v1/gonum/mat"
)

// run executes the forward recursion under the configured operating mode.
// It allocates the trajectory arenas on first use and fills them in place.
func (e *EMKF) run() {
	if e.done {
		return
	}

	T, _ := e.y.Dims()
	e.pred = newTrajectory(T, e.nx)
	e.filt = newTrajectory(T, e.nx)
	e.smth = newTrajectory(T, e.nx)
	e.pair = newCovSeq(T, e.nx)

	e.pred.setMean(0, e.initMean)
	e.pred.setCov(0, e.initCov)

	switch e.mode {
	case ModeSmooth:
		e.runSmooth(T)
	case ModeFilter:
		e.runFilter(T)
	}

	e.done = true
}

// runSmooth runs exact block EM: for every block the forward recursion is
// refined over iteration passes, each followed by a backward sweep and a
// transition re-estimation; the damped clipped update applies the last
// iteration's candidates once per block.
func (e *EMKF) runSmooth(T int) {
	for s := 0; s < T; s += e.tau {
		fEst := mat.DenseCopyOf(e.f)
		var bEst *mat.VecDense

		if s != 0 {
			e.predictStep(s, fEst)
		}
		e.updateStep(s)

		end := s + e.tau
		if end > T-1 {
			end = T - 1
		}
		blk := end - s

		if blk == 0 {
			// lone trailing timestep: no transitions to regress on,
			// the smoothed state is the filtered state
			e.smth.setMean(s, e.filt.meanAt(s))
			e.smth.setCov(s, e.filt.covAt(s))
			if e.store {
				e.fs[s/e.tau+1] = mat.DenseCopyOf(e.f)
			}
			continue
		}

		for n := 0; n < e.iteration; n++ {
			if n != 0 {
				// restart the block from the latest smoothed estimate
				sm := e.smth.meanAt(s)
				e.pred.setMean(s, sm)
				e.pred.setCov(s, e.la.Sub(e.smth.covAt(s), e.la.Outer(sm, sm)))
			}

			for t := s + 1; t <= end; t++ {
				e.notify(filter.Filtering, t, T)
				e.predictStep(t, fEst)
				e.updateStep(t)
			}

			fEst, bEst = e.estimateTransition(end, blk, fEst)
		}

		if e.updateF {
			e.f = e.dampedStep(e.f, fEst, e.eta, e.cutoff)
		}
		if e.updateB && bEst != nil {
			e.b = e.dampedStepVec(e.b, bEst, e.etab, e.cutoffb)
		}
		if e.store {
			e.fs[s/e.tau+1] = mat.DenseCopyOf(e.f)
		}
	}
}

// runFilter runs the streaming approximation: plain predict/update steps,
// with a look-ahead window of tau+1 pair-tracking steps every tau timesteps
// feeding an immediate transition update from filtered statistics. The
// timesteps touched by the look-ahead are recomputed by the normal loop
// right after, so the final trajectories reflect the post-update parameters.
func (e *EMKF) runFilter(T int) {
	e.updateStep(0)

	for t := 1; t < T; t++ {
		e.notify(filter.Filtering, t, T)

		if (t-1)%e.tau == 0 && t < T-e.tau {
			for s := t; s <= t+e.tau; s++ {
				e.predictPairStep(s)
				e.updatePairStep(s)
			}
			e.estimateTransitionApprox(t)
		}

		e.predictStep(t, nil)
		e.updateStep(t)
	}
}

// predictStep computes the predicted state at time t from the filtered state
// at t-1. A non-nil F overrides the current transition matrix: the scheduler
// passes block candidates through here while refining.
func (e *EMKF) predictStep(t int, F mat.Matrix) {
	if F == nil {
		F = e.f
	}
	b := e.offsetAt(t - 1)

	e.pred.setMean(t, e.la.AddVec(e.la.MulVec(F, e.filt.meanAt(t-1)), b))
	e.pred.setCov(t, e.la.Add(e.la.Mul(e.la.Mul(F, e.filt.covAt(t-1)), F.T()), e.q))
}

// predictPairStep is predictStep recording additionally the cross term
// cov_filt_t-1 * F' used by the approximate M-step in ModeFilter.
func (e *EMKF) predictPairStep(t int) {
	e.predictStep(t, nil)
	e.pair.set(t, e.la.Mul(e.filt.covAt(t-1), e.f.T()))
}

// updateStep fuses the predicted state at time t with the observation at t.
// The innovation covariance is pseudo-inverted, so rank deficient or
// ill-conditioned covariances degrade gracefully instead of failing.
func (e *EMKF) updateStep(t int) {
	vPred := e.pred.covAt(t)
	xPred := e.pred.meanAt(t)

	// S = H*V*H' + R
	s := e.la.Add(e.la.Mul(e.la.Mul(e.h, vPred), e.h.T()), e.r)
	// K = V*H'*S^+
	k := e.la.Mul(e.la.Mul(vPred, e.h.T()), e.la.Pinv(s))

	// innovation y_t - (H*x + d)
	inn := e.la.SubVec(e.obsAt(t), e.la.AddVec(e.la.MulVec(e.h, xPred), e.d))

	e.filt.setMean(t, e.la.AddVec(xPred, e.la.MulVec(k, inn)))
	e.filt.setCov(t, e.la.Sub(vPred, e.la.Mul(k, e.la.Mul(e.h, vPred))))
}

// updatePairStep is updateStep propagating the Kalman gain correction
// through the pairwise covariance as well.
func (e *EMKF) updatePairStep(t int) {
	vPred := e.pred.covAt(t)

	s := e.la.Add(e.la.Mul(e.la.Mul(e.h, vPred), e.h.T()), e.r)
	k := e.la.Mul(e.la.Mul(vPred, e.h.T()), e.la.Pinv(s))

	inn := e.la.SubVec(e.obsAt(t), e.la.AddVec(e.la.MulVec(e.h, e.pred.meanAt(t)), e.d))

	e.filt.setMean(t, e.la.AddVec(e.pred.meanAt(t), e.la.MulVec(k, inn)))
	e.filt.setCov(t, e.la.Sub(vPred, e.la.Mul(k, e.la.Mul(e.h, vPred))))
	e.pair.set(t, e.la.Sub(e.pair.at(t), e.la.Mul(k, e.la.Mul(e.h, e.pair.at(t)))))
}

// obsAt returns a view of the observation at time t
func (e *EMKF) obsAt(t int) *mat.VecDense {
	return mat.NewVecDense(e.ny, e.y.RawRowView(t))
}

// offsetAt returns the transition offset applicable at time t
func (e *EMKF) offsetAt(t int) *mat.VecDense {
	if e.bSeq != nil {
		return mat.NewVecDense(e.nx, e.bSeq.RawRowView(t))
	}
	return e.b
}
