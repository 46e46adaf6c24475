package pdmp

import (
	"fmt"
	"sort"
	"sync"
)

// DependenciesGraph is the static structure linking Markov kernels to the
// variables they modify and variables to the factors reading them.
// Kernel i is paired with factor i.
//
// The graph is immutable after construction apart from its dependency
// cache, which is filled lazily and is safe for concurrent use.
type DependenciesGraph struct {
	kernels   []*MarkovKernelNode
	variables []VariableNode
	factors   []*FactorNode
	flow      Flow

	once  []sync.Once
	cache [][]int
}

// NewDependenciesGraph assembles a graph. The number of kernels must equal
// the number of factors and every id referenced by a node must be in range.
// Factors without a flow of their own evaluate under flow; the graph holds
// copies of those nodes and leaves the caller's nodes untouched.
func NewDependenciesGraph(kernels []*MarkovKernelNode, variables []VariableNode,
	factors []*FactorNode, flow Flow) (*DependenciesGraph, error) {
	if len(kernels) != len(factors) {
		return nil, fmt.Errorf("%w: %d markov kernel nodes but %d factor nodes",
			ErrConfiguration, len(kernels), len(factors))
	}
	if flow == nil {
		return nil, fmt.Errorf("%w: flow is nil", ErrConfiguration)
	}
	dim := len(variables)
	for i, k := range kernels {
		for _, id := range k.NeededVariableIDs {
			if id < 0 || id >= dim {
				return nil, fmt.Errorf("%w: kernel %d reads variable %d, graph has %d",
					ErrOutOfRange, i, id, dim)
			}
		}
		for _, id := range k.ModifiedVariableIDs {
			if id < 0 || id >= dim {
				return nil, fmt.Errorf("%w: kernel %d modifies variable %d, graph has %d",
					ErrOutOfRange, i, id, dim)
			}
		}
	}
	for v, node := range variables {
		for _, id := range node.DependentFactorIDs {
			if id < 0 || id >= len(factors) {
				return nil, fmt.Errorf("%w: variable %d lists factor %d, graph has %d",
					ErrOutOfRange, v, id, len(factors))
			}
		}
	}
	resolved := make([]*FactorNode, len(factors))
	for i, f := range factors {
		for _, id := range f.DependentVariableIDs {
			if id < 0 || id >= dim {
				return nil, fmt.Errorf("%w: factor %d reads variable %d, graph has %d",
					ErrOutOfRange, i, id, dim)
			}
		}
		resolved[i] = f
		if f.flow == nil {
			c := *f
			c.flow = flow
			resolved[i] = &c
		}
	}
	return &DependenciesGraph{
		kernels:   kernels,
		variables: variables,
		factors:   resolved,
		flow:      flow,
		once:      make([]sync.Once, len(factors)),
		cache:     make([][]int, len(factors)),
	}, nil
}

// NumFactors returns the number of factors (and kernels).
func (g *DependenciesGraph) NumFactors() int { return len(g.factors) }

// Dim returns the number of variables.
func (g *DependenciesGraph) Dim() int { return len(g.variables) }

// Flow returns the flow the dependencies are computed for.
func (g *DependenciesGraph) Flow() Flow { return g.flow }

// Factor returns factor node id.
func (g *DependenciesGraph) Factor(id int) *FactorNode {
	g.checkFactor(id)
	return g.factors[id]
}

// Kernel returns the Markov kernel node paired with factor id.
func (g *DependenciesGraph) Kernel(id int) *MarkovKernelNode {
	g.checkFactor(id)
	return g.kernels[id]
}

// Variable returns variable node id.
func (g *DependenciesGraph) Variable(id int) VariableNode {
	if id < 0 || id >= len(g.variables) {
		panic(fmt.Errorf("%w: variable %d, graph has %d", ErrOutOfRange, id, len(g.variables)))
	}
	return g.variables[id]
}

// FactorDependencies returns, sorted ascending, the factors that must be
// re-proposed after factor id fires: every factor reading a variable that
// kernel id modifies, directly or through the flow.
// The result is cached and must not be modified by the caller.
// Panics with ErrOutOfRange on an unknown factor id.
func (g *DependenciesGraph) FactorDependencies(id int) []int {
	g.checkFactor(id)
	g.once[id].Do(func() {
		g.cache[id] = g.computeDependencies(id)
	})
	return g.cache[id]
}

// Precompute fills the dependency cache for every factor.
func (g *DependenciesGraph) Precompute() {
	for id := range g.factors {
		g.FactorDependencies(id)
	}
}

func (g *DependenciesGraph) computeDependencies(id int) []int {
	dim := len(g.variables)
	touched := make(map[int]struct{})
	for _, modified := range g.kernels[id].ModifiedVariableIDs {
		for _, v := range g.flow.DependentVariables(modified, dim) {
			touched[v] = struct{}{}
		}
	}
	seen := make(map[int]struct{})
	deps := make([]int, 0)
	for v := range touched {
		for _, f := range g.variables[v].DependentFactorIDs {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			deps = append(deps, f)
		}
	}
	sort.Ints(deps)
	return deps
}

func (g *DependenciesGraph) checkFactor(id int) {
	if id < 0 || id >= len(g.factors) {
		panic(fmt.Errorf("%w: factor %d, graph has %d", ErrOutOfRange, id, len(g.factors)))
	}
}
