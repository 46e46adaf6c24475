// Package pdmp simulates piecewise-deterministic Markov processes.
//
// A process alternates a deterministic Flow with jumps. Jump times come from
// the superposition of per-factor point processes and each jump applies the
// Markov kernel paired with the factor that fired.
//
// # Reading Guide
//
//   - graph.go: DependenciesGraph and the factor dependency closure
//   - poisson_process.go: the thinning event scheduler over a lazily
//     invalidated min-heap
//   - pdmp.go: one iteration = jump time, flow, jump
//   - builder.go: the construction API used by samplers
//
// Samplers built on top of the core live in sub-packages:
//   - pdmp/mcmc/: Bouncy Particle and Zig-Zag samplers for Gaussian targets
//   - pdmp/analysis/: run driver and observers (path statistics, batch means)
//   - pdmp/replica/: parallel independent replicas
//   - pdmp/observability/: Prometheus metrics
package pdmp
