package pdmp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimulationKey_Creation(t *testing.T) {
	for _, seed := range []int64{42, 0, -1, math.MaxInt64, math.MinInt64} {
		if got := int64(NewSimulationKey(seed)); got != seed {
			t.Errorf("NewSimulationKey(%d) = %d", seed, got)
		}
	}
}

func TestPartitionedRNG_DeterministicDerivation(t *testing.T) {
	rng1 := NewPartitionedRNG(NewSimulationKey(42))
	rng2 := NewPartitionedRNG(NewSimulationKey(42))
	for i := 0; i < 3; i++ {
		a := rng1.ForSubsystem(SubsystemFactor(3)).Float64()
		b := rng2.ForSubsystem(SubsystemFactor(3)).Float64()
		if a != b {
			t.Errorf("draw %d: got %v and %v, want identical", i, a, b)
		}
	}
}

func TestPartitionedRNG_SubsystemIsolation(t *testing.T) {
	rngA := NewPartitionedRNG(NewSimulationKey(42))
	rngB := NewPartitionedRNG(NewSimulationKey(42))

	for i := 0; i < 10; i++ {
		rngA.ForSubsystem(SubsystemKernel(0)).Float64()
	}
	want := rngB.ForSubsystem(SubsystemRefresh).Float64()
	assert.Equal(t, want, rngA.ForSubsystem(SubsystemRefresh).Float64())
}

func TestPartitionedRNG_CachesStreams(t *testing.T) {
	p := NewPartitionedRNG(NewSimulationKey(1))
	assert.Same(t, p.ForSubsystem("x"), p.ForSubsystem("x"))
	assert.NotSame(t, p.ForSubsystem("x"), p.ForSubsystem("y"))
	assert.Equal(t, SimulationKey(1), p.Key())
}

func TestPartitionedRNG_Derive(t *testing.T) {
	p1 := NewPartitionedRNG(NewSimulationKey(9))
	p2 := NewPartitionedRNG(NewSimulationKey(9))
	r0 := p1.Derive(SubsystemReplica(0))
	r1 := p1.Derive(SubsystemReplica(1))
	assert.Equal(t, r0.Key(), p2.Derive(SubsystemReplica(0)).Key())
	assert.NotEqual(t, r0.Key(), r1.Key())
}

func TestSubsystemNames(t *testing.T) {
	assert.Equal(t, "factor_2", SubsystemFactor(2))
	assert.Equal(t, "kernel_0", SubsystemKernel(0))
	assert.Equal(t, "replica_11", SubsystemReplica(11))
}
