package sim

import "gonum.org/v1/gonum/mat"

// ODE is the right-hand side of an ordinary differential equation
// dx/dt = f(x, t). It writes the derivative of x at time t into dst.
// The model library below is a closed set of closures: test trajectories
// are synthesized from these, the estimators never see them.
type ODE func(dst, x []float64, t float64)

// DampedOscillation models m*x'' = -k*x - r*x' + w(t) with state (x, x').
func DampedOscillation(m, k, r float64, w func(t float64) float64) ODE {
	return func(dst, x []float64, t float64) {
		dst[0] = x[1]
		dst[1] = (-k*x[0] - r*x[1] + w(t)) / m
	}
}

// CoeffDampedOscillation is DampedOscillation with time varying stiffness
// and damping coefficients.
func CoeffDampedOscillation(m float64, k, r, w func(t float64) float64) ODE {
	return func(dst, x []float64, t float64) {
		dst[0] = x[1]
		dst[1] = (-k(t)*x[0] - r(t)*x[1] + w(t)) / m
	}
}

// Duffing models the unforced Duffing oscillator m*x'' = -alpha*x - beta*x^3.
func Duffing(m, alpha, beta float64) ODE {
	return func(dst, x []float64, t float64) {
		dst[0] = x[1]
		dst[1] = (-alpha*x[0] - beta*x[0]*x[0]*x[0]) / m
	}
}

// Lorenz63 models the Lorenz 1963 system.
func Lorenz63(sigma, rho, beta float64) ODE {
	return func(dst, x []float64, t float64) {
		dst[0] = sigma * (x[1] - x[0])
		dst[1] = x[0]*(rho-x[2]) - x[1]
		dst[2] = x[0]*x[1] - beta*x[2]
	}
}

// VanDerPol models the Van der Pol oscillator x'' = mu*(1-x^2)*x' - x.
func VanDerPol(mu float64) ODE {
	return func(dst, x []float64, t float64) {
		dst[0] = x[1]
		dst[1] = mu*(1.0-x[0]*x[0])*x[1] - x[0]
	}
}

// FitzHughNagumo models the FitzHugh-Nagumo neuron with input current i.
func FitzHughNagumo(a, b, c float64, i func(t float64) float64) ODE {
	return func(dst, x []float64, t float64) {
		dst[0] = c * (x[0] - x[1] - x[0]*x[0]*x[0]/3.0 + i(t))
		dst[1] = a + x[0] - b*x[1]
	}
}

// LotkaVolterra models two-species predator-prey dynamics.
func LotkaVolterra(a, b, c, d float64) ODE {
	return func(dst, x []float64, t float64) {
		dst[0] = a*x[0] - b*x[0]*x[1]
		dst[1] = c*x[0]*x[1] - d*x[1]
	}
}

// ClockReaction models the iodine clock reaction with rate constants k1, k2
// over concentrations (A, B, T, L).
func ClockReaction(k1, k2 float64) ODE {
	return func(dst, x []float64, t float64) {
		dst[0] = -k1 * x[0] * x[1]
		dst[1] = -k1 * x[0] * x[1]
		dst[2] = k1*x[0]*x[1] - k2*x[2]*x[3]
		dst[3] = -k2 * x[2] * x[3]
	}
}

// Trajectory integrates f from x0 with the forward Euler method using
// timestep dt and returns the resulting trajectory, one state per row.
// The first row is x0; steps must cover it, so steps-1 Euler steps are taken.
func Trajectory(f ODE, x0 []float64, dt float64, steps int) *mat.Dense {
	n := len(x0)
	out := mat.NewDense(steps, n, nil)
	out.SetRow(0, x0)

	x := make([]float64, n)
	dx := make([]float64, n)
	copy(x, x0)

	for s := 1; s < steps; s++ {
		f(dx, x, float64(s-1)*dt)
		for i := 0; i < n; i++ {
			x[i] += dt * dx[i]
		}
		out.SetRow(s, x)
	}

	return out
}
