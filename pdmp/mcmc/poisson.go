package mcmc

import (
	"math"
	"math/rand"

	"github.com/inference-sim/pdmp-sim/pdmp"
)

// linearRateTime returns the first time at which the integrated rate
// max(0, a + b*s) over [0, t] reaches e, or +Inf if it never does.
func linearRateTime(a, b, e float64) float64 {
	switch {
	case b == 0:
		if a > 0 {
			return e / a
		}
		return math.Inf(1)
	case b > 0:
		if a < 0 {
			return -a/b + math.Sqrt(2*e/b)
		}
		return (-a + math.Sqrt(a*a+2*b*e)) / b
	default:
		if a <= 0 {
			return math.Inf(1)
		}
		// the rate vanishes at -a/b after accumulating a^2 / (2|b|)
		if e >= -a*a/(2*b) {
			return math.Inf(1)
		}
		return (-a + math.Sqrt(a*a+2*b*e)) / b
	}
}

// HomogeneousProposal returns an exact proposal function for a constant
// rate. A non-positive rate never fires.
func HomogeneousProposal(rate float64, rng *rand.Rand) pdmp.ProposeFunc {
	return func([]float64, pdmp.State, *pdmp.FactorNode) pdmp.Proposal {
		if rate <= 0 {
			return pdmp.Never()
		}
		return pdmp.Exact(rng.ExpFloat64() / rate)
	}
}

// BoundFunc returns an upper bound of a factor's intensity over [0, horizon]
// along the flow, starting from the factor's coordinates sub.
type BoundFunc func(sub []float64, horizon float64) float64

// BoundedThinning returns a proposal function simulating a factor by
// thinning against a dominating constant rate. Each proposal draws the bound
// over the next horizon; a candidate past the horizon, or a zero bound,
// becomes a rejected virtual event at the horizon that restarts the clock
// there. A candidate at time t is accepted with probability
// intensity(t) / bound, evaluated through the factor's intensity function.
func BoundedThinning(rng *rand.Rand, horizon float64, bound BoundFunc) pdmp.ProposeFunc {
	return func(sub []float64, full pdmp.State, factor *pdmp.FactorNode) pdmp.Proposal {
		b := bound(sub, horizon)
		if b <= 0 {
			return virtualEvent(horizon)
		}
		t := rng.ExpFloat64() / b
		if t > horizon {
			return virtualEvent(horizon)
		}
		u := rng.Float64()
		return pdmp.Proposal{Time: t, Accept: func() bool {
			return u*b < factor.EvaluateIntensity(full, t)
		}}
	}
}

func virtualEvent(horizon float64) pdmp.Proposal {
	return pdmp.Proposal{Time: horizon, Accept: func() bool { return false }}
}
