package pdmp

import (
	"fmt"
	"math"
)

// Proposal is a candidate event returned by a factor.
// Time is relative to the state the proposal was made from. Accept is the
// thinning test evaluated when the event reaches the head of the queue;
// a nil Accept always accepts.
type Proposal struct {
	Time   float64
	Accept func() bool
}

// Exact returns a proposal that is always accepted.
func Exact(t float64) Proposal {
	return Proposal{Time: t}
}

// Never returns a proposal that can never fire.
func Never() Proposal {
	return Proposal{Time: math.Inf(1)}
}

// Shifted returns a copy of p with dt added to its time.
func (p Proposal) Shifted(dt float64) Proposal {
	return Proposal{Time: p.Time + dt, Accept: p.Accept}
}

// ProposeFunc generates the next candidate event of a factor.
// sub holds the factor's dependent coordinates, full is the whole state the
// proposal starts from, and factor is the calling node, so that thinning
// tests can call factor.EvaluateIntensity(full, t).
type ProposeFunc func(sub []float64, full State, factor *FactorNode) Proposal

// IntensityFunc evaluates the true event rate from the factor's coordinates.
type IntensityFunc func(sub []float64) float64

// KernelFunc maps the needed subvector of a Markov kernel to its image.
// The result is aligned with the needed ids.
type KernelFunc func(needed []float64) []float64

// VariableNode records the factors whose intensity reads one coordinate.
type VariableNode struct {
	DependentFactorIDs []int
}

// FactorNode is one point-process intensity component.
type FactorNode struct {
	DependentVariableIDs []int

	propose   ProposeFunc
	intensity IntensityFunc
	flow      Flow
}

// NewFactorNode creates a factor reading the coordinates ids. intensity may
// be nil for factors that are simulated exactly.
func NewFactorNode(ids []int, propose ProposeFunc, intensity IntensityFunc, flow Flow) *FactorNode {
	return &FactorNode{
		DependentVariableIDs: append([]int(nil), ids...),
		propose:              propose,
		intensity:            intensity,
		flow:                 flow,
	}
}

// HasIntensity reports whether the factor can evaluate its true intensity.
func (f *FactorNode) HasIntensity() bool { return f.intensity != nil }

// EvaluateIntensity returns the intensity at the state reached from s after
// time dt under the factor's flow.
// Panics with ErrUnimplemented if the factor declared no intensity function.
func (f *FactorNode) EvaluateIntensity(s State, dt float64) float64 {
	if f.intensity == nil {
		panic(fmt.Errorf("%w: factor reading %v", ErrUnimplemented, f.DependentVariableIDs))
	}
	if dt != 0 {
		s = f.flow.Advance(s, dt)
	}
	return f.intensity(s.Subvector(f.DependentVariableIDs))
}

// Propose returns the next candidate event starting from s.
func (f *FactorNode) Propose(s State) Proposal {
	return f.propose(s.Subvector(f.DependentVariableIDs), s, f)
}

// MarkovKernelNode is the jump applied when its paired factor fires.
type MarkovKernelNode struct {
	NeededVariableIDs   []int
	ModifiedVariableIDs []int

	kernel KernelFunc
	// writeBack[k] is the position of ModifiedVariableIDs[k] within NeededVariableIDs.
	writeBack []int
}

// NewMarkovKernelNode creates a kernel reading needed and writing modified.
// Returns an error wrapping ErrConfiguration if modified is not a subset of needed.
func NewMarkovKernelNode(needed, modified []int, kernel KernelFunc) (*MarkovKernelNode, error) {
	pos := make(map[int]int, len(needed))
	for k, id := range needed {
		pos[id] = k
	}
	writeBack := make([]int, len(modified))
	for k, id := range modified {
		p, ok := pos[id]
		if !ok {
			return nil, fmt.Errorf("%w: kernel modifies variable %d it does not read (needed %v)",
				ErrConfiguration, id, needed)
		}
		writeBack[k] = p
	}
	return &MarkovKernelNode{
		NeededVariableIDs:   append([]int(nil), needed...),
		ModifiedVariableIDs: append([]int(nil), modified...),
		kernel:              kernel,
		writeBack:           writeBack,
	}, nil
}

// Jump applies the kernel to s and returns the resulting state.
func (m *MarkovKernelNode) Jump(s State) State {
	out := m.kernel(s.Subvector(m.NeededVariableIDs))
	if len(out) != len(m.NeededVariableIDs) {
		panic(fmt.Errorf("%w: kernel returned %d values for %d needed variables",
			ErrConfiguration, len(out), len(m.NeededVariableIDs)))
	}
	values := make([]float64, len(m.writeBack))
	for k, p := range m.writeBack {
		values[k] = out[p]
	}
	return s.WithModified(m.ModifiedVariableIDs, values)
}
