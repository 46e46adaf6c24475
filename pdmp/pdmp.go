package pdmp

// JumpTimer returns the time until the next jump from a post-jump state.
type JumpTimer interface {
	JumpTime(s State) float64
}

// Jumper applies the random jump at the end of an iteration.
type Jumper interface {
	Jump(s State) State
}

// IterationResult is the outcome of one simulated iteration: the state right
// after the jump and the process time the iteration took.
type IterationResult struct {
	State       State
	ElapsedTime float64
}

// Equal reports exact equality of both state and elapsed time.
func (r IterationResult) Equal(other IterationResult) bool {
	return r.ElapsedTime == other.ElapsedTime && r.State.Equal(other.State)
}

// Pdmp composes a jump-time policy, a jump kernel and a flow into one
// simulation step.
type Pdmp struct {
	poissonProcess JumpTimer
	markovKernel   Jumper
	flow           Flow
}

// New composes a Pdmp from its three policies.
func New(poissonProcess JumpTimer, markovKernel Jumper, flow Flow) *Pdmp {
	return &Pdmp{
		poissonProcess: poissonProcess,
		markovKernel:   markovKernel,
		flow:           flow,
	}
}

// NewFromGraph wires a PoissonProcess and a MarkovKernel over graph.
func NewFromGraph(graph *DependenciesGraph) *Pdmp {
	pp := NewPoissonProcess(graph)
	return New(pp, NewMarkovKernel(graph, pp), graph.Flow())
}

// PoissonProcess returns the jump-time policy.
func (p *Pdmp) PoissonProcess() JumpTimer { return p.poissonProcess }

// MarkovKernel returns the jump policy.
func (p *Pdmp) MarkovKernel() Jumper { return p.markovKernel }

// Flow returns the deterministic dynamics.
func (p *Pdmp) Flow() Flow { return p.flow }

// SimulateOneIteration evolves s along the flow until the next event and
// applies the jump.
func (p *Pdmp) SimulateOneIteration(s State) IterationResult {
	t := p.poissonProcess.JumpTime(s)
	atJump := p.flow.Advance(s, t)
	return IterationResult{
		State:       p.markovKernel.Jump(atJump),
		ElapsedTime: t,
	}
}
