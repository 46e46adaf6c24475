package analysis

import "github.com/inference-sim/pdmp-sim/pdmp"

// segmentTracker turns the stream of iteration results into path segments:
// the state a segment starts from and how long the flow runs from it.
type segmentTracker struct {
	flow    pdmp.Flow
	current pdmp.State
	started bool
}

func (st *segmentTracker) begin(p *pdmp.Pdmp, initial pdmp.State) {
	st.flow = p.Flow()
	st.current = initial
	st.started = true
}

// next returns the start state of the segment ending at r, then moves on.
func (st *segmentTracker) next(r pdmp.IterationResult) pdmp.State {
	if !st.started {
		panic("analysis: iteration result before ProcessBegins")
	}
	from := st.current
	st.current = r.State
	return from
}
