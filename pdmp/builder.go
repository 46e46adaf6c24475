package pdmp

import "fmt"

// Builder assembles a DependenciesGraph from factor and kernel declarations.
// Factors and kernels are paired by insertion order: the i-th factor added
// fires the i-th kernel added.
type Builder struct {
	dim       int
	flow      Flow
	variables []VariableNode
	factors   []*FactorNode
	kernels   []*MarkovKernelNode
	err       error
}

// NewBuilder starts a graph over a state space of dimension dim. A nil flow
// selects LinearFlow.
func NewBuilder(dim int, flow Flow) *Builder {
	if flow == nil {
		flow = LinearFlow{}
	}
	b := &Builder{dim: dim, flow: flow}
	if dim <= 0 {
		b.err = fmt.Errorf("%w: state space dimension must be positive, got %d", ErrConfiguration, dim)
		return b
	}
	b.variables = make([]VariableNode, dim)
	return b
}

// Dim returns the state space dimension.
func (b *Builder) Dim() int { return b.dim }

// NumFactors returns the number of factors added so far.
func (b *Builder) NumFactors() int { return len(b.factors) }

// NumKernels returns the number of kernels added so far.
func (b *Builder) NumKernels() int { return len(b.kernels) }

// AddFactorNode adds a factor reading the coordinates ids and records it on
// each of their variable nodes. intensity may be nil for exactly simulated
// factors. Returns the new factor id.
func (b *Builder) AddFactorNode(ids []int, propose ProposeFunc, intensity IntensityFunc) (int, error) {
	if b.err != nil {
		return -1, b.err
	}
	if propose == nil {
		return -1, fmt.Errorf("%w: factor %d has no proposal function", ErrConfiguration, len(b.factors))
	}
	if err := b.checkIDs(ids); err != nil {
		return -1, fmt.Errorf("factor %d: %w", len(b.factors), err)
	}
	id := len(b.factors)
	b.factors = append(b.factors, NewFactorNode(ids, propose, intensity, b.flow))
	seen := make(map[int]bool, len(ids))
	for _, v := range ids {
		if seen[v] {
			continue
		}
		seen[v] = true
		b.variables[v].DependentFactorIDs = append(b.variables[v].DependentFactorIDs, id)
	}
	return id, nil
}

// AddMarkovKernelNode adds a kernel reading needed and writing modified,
// which must be a subset of needed. Returns the new kernel id.
func (b *Builder) AddMarkovKernelNode(needed, modified []int, kernel KernelFunc) (int, error) {
	if b.err != nil {
		return -1, b.err
	}
	if kernel == nil {
		return -1, fmt.Errorf("%w: kernel %d has no kernel function", ErrConfiguration, len(b.kernels))
	}
	if err := b.checkIDs(needed); err != nil {
		return -1, fmt.Errorf("kernel %d: %w", len(b.kernels), err)
	}
	node, err := NewMarkovKernelNode(needed, modified, kernel)
	if err != nil {
		return -1, fmt.Errorf("kernel %d: %w", len(b.kernels), err)
	}
	b.kernels = append(b.kernels, node)
	return len(b.kernels) - 1, nil
}

// Graph validates the declarations and returns the dependencies graph.
func (b *Builder) Graph() (*DependenciesGraph, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.factors) == 0 {
		return nil, fmt.Errorf("%w: no factors added", ErrConfiguration)
	}
	return NewDependenciesGraph(b.kernels, b.variables, b.factors, b.flow)
}

// Build returns a Pdmp driven by the dependencies graph.
func (b *Builder) Build() (*Pdmp, error) {
	g, err := b.Graph()
	if err != nil {
		return nil, err
	}
	return NewFromGraph(g), nil
}

func (b *Builder) checkIDs(ids []int) error {
	for _, id := range ids {
		if id < 0 || id >= b.dim {
			return fmt.Errorf("%w: variable %d, dimension %d", ErrOutOfRange, id, b.dim)
		}
	}
	return nil
}
