package mcmc

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/inference-sim/pdmp-sim/pdmp"
)

// BpsOptions configures a Bouncy Particle Sampler.
type BpsOptions struct {
	// RefreshRate is the rate of each factor's local velocity refreshment.
	// Zero disables refreshment.
	RefreshRate float64
	// ThinningHorizon selects bounce simulation by thinning over windows of
	// this length. Zero inverts the Gaussian bounce rate exactly.
	ThinningHorizon float64
}

// DefaultBpsOptions refreshes at rate 1 and inverts bounce rates exactly.
func DefaultBpsOptions() BpsOptions {
	return BpsOptions{RefreshRate: 1}
}

// BpsBuilder assembles a local Bouncy Particle Sampler over n model
// variables. The process state holds the n positions followed by the n
// velocities. Every factor contributes a bounce factor, reflecting the
// factor's velocities off its energy gradient, and a refreshment factor
// redrawing them.
type BpsBuilder struct {
	n       int
	opts    BpsOptions
	rng     *pdmp.PartitionedRNG
	builder *pdmp.Builder
	err     error
}

// NewBpsBuilder starts a sampler over n model variables. Random streams are
// drawn from rng per factor and kernel id.
func NewBpsBuilder(n int, opts BpsOptions, rng *pdmp.PartitionedRNG) *BpsBuilder {
	b := &BpsBuilder{n: n, opts: opts, rng: rng, builder: pdmp.NewBuilder(2*n, pdmp.LinearFlow{})}
	switch {
	case n <= 0:
		b.err = fmt.Errorf("%w: sampler needs at least one model variable, got %d", pdmp.ErrConfiguration, n)
	case opts.RefreshRate < 0:
		b.err = fmt.Errorf("%w: refresh rate must be non-negative, got %g", pdmp.ErrConfiguration, opts.RefreshRate)
	case opts.ThinningHorizon < 0:
		b.err = fmt.Errorf("%w: thinning horizon must be non-negative, got %g", pdmp.ErrConfiguration, opts.ThinningHorizon)
	}
	return b
}

// AddFactor adds the bounce and refreshment factors of f.
func (b *BpsBuilder) AddFactor(f Factor) error {
	if b.err != nil {
		return b.err
	}
	pos, vel, err := modelIDs(b.n, f)
	if err != nil {
		return err
	}
	reads := append(append([]int(nil), pos...), vel...)
	k := len(pos)
	target := f.Target

	id := b.builder.NumFactors()
	propose := exactBounce(target, k, b.rng.ForSubsystem(pdmp.SubsystemFactor(id)))
	if b.opts.ThinningHorizon > 0 {
		propose = BoundedThinning(b.rng.ForSubsystem(pdmp.SubsystemFactor(id)), b.opts.ThinningHorizon,
			gaussianBounceBound(target, k))
	}
	if _, err := b.builder.AddFactorNode(reads, propose, bounceIntensity(target, k)); err != nil {
		return err
	}
	if _, err := b.builder.AddMarkovKernelNode(reads, vel, ReflectionKernel(target.EnergyGradient, k)); err != nil {
		return err
	}

	if b.opts.RefreshRate == 0 {
		return nil
	}
	id = b.builder.NumFactors()
	if _, err := b.builder.AddFactorNode(nil,
		HomogeneousProposal(b.opts.RefreshRate, b.rng.ForSubsystem(pdmp.SubsystemFactor(id))), nil); err != nil {
		return err
	}
	_, err = b.builder.AddMarkovKernelNode(vel, vel, RefreshKernel(b.rng.ForSubsystem(pdmp.SubsystemKernel(id))))
	return err
}

// Graph returns the dependencies graph of the factors added so far.
func (b *BpsBuilder) Graph() (*pdmp.DependenciesGraph, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.builder.Graph()
}

// Build returns the sampler.
func (b *BpsBuilder) Build() (*pdmp.Pdmp, error) {
	g, err := b.Graph()
	if err != nil {
		return nil, err
	}
	return pdmp.NewFromGraph(g), nil
}

// InitialState pairs position with standard normal velocities.
func (b *BpsBuilder) InitialState(position []float64) (pdmp.State, error) {
	if len(position) != b.n {
		return pdmp.State{}, fmt.Errorf("%w: initial position has %d coordinates, sampler has %d",
			pdmp.ErrConfiguration, len(position), b.n)
	}
	rng := b.rng.ForSubsystem(pdmp.SubsystemRefresh)
	velocity := make([]float64, b.n)
	for i := range velocity {
		velocity[i] = rng.NormFloat64()
	}
	return pdmp.NewPositionVelocityState(position, velocity), nil
}

// splitPV splits a factor subvector [x..., v...] of k positions.
func splitPV(sub []float64, k int) (x, v []float64) {
	return sub[:k], sub[k:]
}

// bounceRate returns a and b of the linear bounce rate a + b*t along the flow.
func bounceRate(target *Gaussian, sub []float64, k int) (a, b float64) {
	x, v := splitPV(sub, k)
	return floats.Dot(v, target.EnergyGradient(x)), floats.Dot(v, target.apply(v))
}

func bounceIntensity(target *Gaussian, k int) pdmp.IntensityFunc {
	return func(sub []float64) float64 {
		x, v := splitPV(sub, k)
		return max(0, floats.Dot(v, target.EnergyGradient(x)))
	}
}

func exactBounce(target *Gaussian, k int, rng *rand.Rand) pdmp.ProposeFunc {
	return func(sub []float64, _ pdmp.State, _ *pdmp.FactorNode) pdmp.Proposal {
		a, b := bounceRate(target, sub, k)
		return pdmp.Exact(linearRateTime(a, b, rng.ExpFloat64()))
	}
}

// gaussianBounceBound bounds max(0, a + b*t) on [0, h]; b >= 0 for a
// positive definite precision.
func gaussianBounceBound(target *Gaussian, k int) BoundFunc {
	return func(sub []float64, h float64) float64 {
		a, b := bounceRate(target, sub, k)
		return max(0, a, a+b*h)
	}
}

// ReflectionKernel returns the bounce kernel for a factor of k positions:
// velocities are reflected off the hyperplane orthogonal to the energy
// gradient, v - 2<v,g>/<g,g> g. A vanishing gradient leaves them unchanged.
func ReflectionKernel(energyGradient func(x []float64) []float64, k int) pdmp.KernelFunc {
	return func(needed []float64) []float64 {
		out := append([]float64(nil), needed...)
		x, v := splitPV(out, k)
		g := energyGradient(x)
		gg := floats.Dot(g, g)
		if gg == 0 {
			return out
		}
		floats.AddScaled(v, -2*floats.Dot(v, g)/gg, g)
		return out
	}
}

// RefreshKernel redraws every needed coordinate from a standard normal.
func RefreshKernel(rng *rand.Rand) pdmp.KernelFunc {
	return func(needed []float64) []float64 {
		out := make([]float64, len(needed))
		for i := range out {
			out[i] = rng.NormFloat64()
		}
		return out
	}
}

// modelIDs maps the factor's model variables to its position and velocity
// coordinates in a 2n-dimensional state.
func modelIDs(n int, f Factor) (pos, vel []int, err error) {
	if f.Target == nil {
		return nil, nil, fmt.Errorf("%w: factor over %v has no target", pdmp.ErrConfiguration, f.Variables)
	}
	if len(f.Variables) != f.Target.Dim() {
		return nil, nil, fmt.Errorf("%w: factor over %d variables has a %d-dimensional target",
			pdmp.ErrConfiguration, len(f.Variables), f.Target.Dim())
	}
	seen := make(map[int]bool, len(f.Variables))
	for _, v := range f.Variables {
		if v < 0 || v >= n {
			return nil, nil, fmt.Errorf("%w: model variable %d, sampler has %d", pdmp.ErrOutOfRange, v, n)
		}
		if seen[v] {
			return nil, nil, fmt.Errorf("%w: model variable %d listed twice", pdmp.ErrConfiguration, v)
		}
		seen[v] = true
		pos = append(pos, v)
		vel = append(vel, n+v)
	}
	return pos, vel, nil
}
