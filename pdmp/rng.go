package pdmp

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// SimulationKey identifies a reproducible run. Two runs with the same key
// and identical configuration produce identical paths.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// SubsystemRefresh is the RNG subsystem for velocity refreshment draws.
const SubsystemRefresh = "refresh"

// SubsystemFactor returns the subsystem name for the proposals of factor id.
func SubsystemFactor(id int) string {
	return fmt.Sprintf("factor_%d", id)
}

// SubsystemKernel returns the subsystem name for the jumps of kernel id.
func SubsystemKernel(id int) string {
	return fmt.Sprintf("kernel_%d", id)
}

// SubsystemReplica returns the subsystem name seeding replica id.
func SubsystemReplica(id int) string {
	return fmt.Sprintf("replica_%d", id)
}

// PartitionedRNG hands out isolated, deterministically seeded streams per
// named subsystem. Each stream is seeded with key XOR fnv1a64(name), so
// draws on one subsystem never shift another.
//
// Not thread-safe. Replicas each hold their own.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns the stream for name, creating it on first use.
// The same name always returns the same *rand.Rand.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(int64(p.key) ^ fnv1a64(name)))
	p.subsystems[name] = rng
	return rng
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// Derive returns a PartitionedRNG keyed by the first draw of subsystem name.
// Used to give each replica its own independent family of streams.
func (p *PartitionedRNG) Derive(name string) *PartitionedRNG {
	return NewPartitionedRNG(SimulationKey(p.ForSubsystem(name).Int63()))
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
