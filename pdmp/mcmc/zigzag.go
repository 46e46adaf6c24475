package mcmc

import (
	"fmt"
	"math/rand"

	"github.com/inference-sim/pdmp-sim/pdmp"
)

// ZigZagBuilder assembles a Zig-Zag sampler over n model variables. Every
// factor contributes one flip factor per model variable it covers; each
// flip factor fires at rate max(0, v_j * dU/dx_j) and negates velocity j.
type ZigZagBuilder struct {
	n       int
	rng     *pdmp.PartitionedRNG
	builder *pdmp.Builder
	err     error
}

// NewZigZagBuilder starts a sampler over n model variables.
func NewZigZagBuilder(n int, rng *pdmp.PartitionedRNG) *ZigZagBuilder {
	b := &ZigZagBuilder{n: n, rng: rng, builder: pdmp.NewBuilder(2*n, pdmp.LinearFlow{})}
	if n <= 0 {
		b.err = fmt.Errorf("%w: sampler needs at least one model variable, got %d", pdmp.ErrConfiguration, n)
	}
	return b
}

// AddFactor adds the flip factors of f.
func (b *ZigZagBuilder) AddFactor(f Factor) error {
	if b.err != nil {
		return b.err
	}
	pos, vel, err := modelIDs(b.n, f)
	if err != nil {
		return err
	}
	reads := append(append([]int(nil), pos...), vel...)
	k := len(pos)
	for j := 0; j < k; j++ {
		id := b.builder.NumFactors()
		rng := b.rng.ForSubsystem(pdmp.SubsystemFactor(id))
		if _, err := b.builder.AddFactorNode(reads, exactFlip(f.Target, k, j, rng), flipIntensity(f.Target, k, j)); err != nil {
			return err
		}
		if _, err := b.builder.AddMarkovKernelNode([]int{vel[j]}, []int{vel[j]}, FlipKernel); err != nil {
			return err
		}
	}
	return nil
}

// Graph returns the dependencies graph of the factors added so far.
func (b *ZigZagBuilder) Graph() (*pdmp.DependenciesGraph, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.builder.Graph()
}

// Build returns the sampler.
func (b *ZigZagBuilder) Build() (*pdmp.Pdmp, error) {
	g, err := b.Graph()
	if err != nil {
		return nil, err
	}
	return pdmp.NewFromGraph(g), nil
}

// InitialState pairs position with uniformly random unit velocities.
func (b *ZigZagBuilder) InitialState(position []float64) (pdmp.State, error) {
	if len(position) != b.n {
		return pdmp.State{}, fmt.Errorf("%w: initial position has %d coordinates, sampler has %d",
			pdmp.ErrConfiguration, len(position), b.n)
	}
	rng := b.rng.ForSubsystem(pdmp.SubsystemRefresh)
	velocity := make([]float64, b.n)
	for i := range velocity {
		velocity[i] = 1
		if rng.Intn(2) == 0 {
			velocity[i] = -1
		}
	}
	return pdmp.NewPositionVelocityState(position, velocity), nil
}

// flipRate returns a and b of the linear rate v_j * (g_j + t (Pv)_j).
func flipRate(target *Gaussian, sub []float64, k, j int) (a, b float64) {
	x, v := splitPV(sub, k)
	return v[j] * target.EnergyGradient(x)[j], v[j] * target.apply(v)[j]
}

func flipIntensity(target *Gaussian, k, j int) pdmp.IntensityFunc {
	return func(sub []float64) float64 {
		x, v := splitPV(sub, k)
		return max(0, v[j]*target.EnergyGradient(x)[j])
	}
}

func exactFlip(target *Gaussian, k, j int, rng *rand.Rand) pdmp.ProposeFunc {
	return func(sub []float64, _ pdmp.State, _ *pdmp.FactorNode) pdmp.Proposal {
		a, b := flipRate(target, sub, k, j)
		return pdmp.Exact(linearRateTime(a, b, rng.ExpFloat64()))
	}
}

// FlipKernel negates every needed coordinate.
func FlipKernel(needed []float64) []float64 {
	out := make([]float64, len(needed))
	for i, v := range needed {
		out[i] = -v
	}
	return out
}
