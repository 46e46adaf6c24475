package pdmp

import "fmt"

// LastFactorReporter exposes the factor chosen by the latest jump-time
// computation.
type LastFactorReporter interface {
	LastFactorID() int
}

// MarkovKernel applies the kernel paired with the factor that fired last.
type MarkovKernel struct {
	graph    *DependenciesGraph
	reporter LastFactorReporter
}

// NewMarkovKernel creates the kernel policy for graph, reading the fired
// factor from reporter (normally the PoissonProcess over the same graph).
func NewMarkovKernel(graph *DependenciesGraph, reporter LastFactorReporter) *MarkovKernel {
	return &MarkovKernel{graph: graph, reporter: reporter}
}

// Jump applies the last fired factor's kernel to s.
// Panics with ErrNoFactorFired if no factor has fired yet.
func (mk *MarkovKernel) Jump(s State) State {
	return mk.lastKernel().Jump(s)
}

// LastModifiedVariables returns a copy of the coordinates the last jump may
// have changed.
func (mk *MarkovKernel) LastModifiedVariables() []int {
	return append([]int(nil), mk.lastKernel().ModifiedVariableIDs...)
}

func (mk *MarkovKernel) lastKernel() *MarkovKernelNode {
	id := mk.reporter.LastFactorID()
	if id < 0 {
		panic(fmt.Errorf("%w: kernel requested before the first jump time", ErrNoFactorFired))
	}
	return mk.graph.Kernel(id)
}
