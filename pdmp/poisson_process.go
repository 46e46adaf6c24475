package pdmp

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// SchedulerStats counts the work done by a PoissonProcess.
type SchedulerStats struct {
	Jumps       uint64 // accepted events
	Proposals   uint64 // calls into FactorNode.Propose
	Rejections  uint64 // proposals thinned out
	StaleEvents uint64 // invalidated events discarded at the head of the queue
	// ProposalsByFactor[i] counts proposals issued for factor i.
	ProposalsByFactor []uint64
}

// Since returns the work done between an earlier snapshot prev and s.
func (s SchedulerStats) Since(prev SchedulerStats) SchedulerStats {
	d := SchedulerStats{
		Jumps:             s.Jumps - prev.Jumps,
		Proposals:         s.Proposals - prev.Proposals,
		Rejections:        s.Rejections - prev.Rejections,
		StaleEvents:       s.StaleEvents - prev.StaleEvents,
		ProposalsByFactor: append([]uint64(nil), s.ProposalsByFactor...),
	}
	for i := range d.ProposalsByFactor {
		if i < len(prev.ProposalsByFactor) {
			d.ProposalsByFactor[i] -= prev.ProposalsByFactor[i]
		}
	}
	return d
}

// PoissonProcess selects the next jump of the superposition of all factor
// point processes of a DependenciesGraph.
//
// Every factor keeps exactly one valid event in a shared min-heap. After a
// factor fires only the factors in its dependency closure, plus itself, are
// re-proposed; superseded events stay in the heap marked invalid and are
// dropped when they surface. A rejected proposal is replaced by a new
// proposal of the same factor starting at the rejected time, so each factor
// keeps its own proposal clock until it is the one accepted.
//
// Not safe for concurrent use.
type PoissonProcess struct {
	graph        *DependenciesGraph
	queue        eventQueue
	latest       []*poissonEvent
	toResimulate []int
	currentTime  float64
	lastFactorID int
	seq          uint64
	stats        SchedulerStats
}

// NewPoissonProcess creates a scheduler over graph with every factor marked
// for its first proposal.
func NewPoissonProcess(graph *DependenciesGraph) *PoissonProcess {
	n := graph.NumFactors()
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	return &PoissonProcess{
		graph:        graph,
		queue:        make(eventQueue, 0, n),
		latest:       make([]*poissonEvent, n),
		toResimulate: all,
		lastFactorID: -1,
		stats:        SchedulerStats{ProposalsByFactor: make([]uint64, n)},
	}
}

// LastFactorID returns the factor selected by the latest JumpTime call,
// or -1 before the first one.
func (pp *PoissonProcess) LastFactorID() int { return pp.lastFactorID }

// CurrentTime returns the absolute process time of the latest jump.
func (pp *PoissonProcess) CurrentTime() float64 { return pp.currentTime }

// Graph returns the dependencies graph driving the scheduler.
func (pp *PoissonProcess) Graph() *DependenciesGraph { return pp.graph }

// Stats returns a snapshot of the scheduler counters.
func (pp *PoissonProcess) Stats() SchedulerStats {
	s := pp.stats
	s.ProposalsByFactor = append([]uint64(nil), pp.stats.ProposalsByFactor...)
	return s
}

// JumpTime returns the time from the previous jump to the next one, given
// the process state s right after the previous jump.
// Panics with ErrNoFiniteEvent if the next accepted event lies at infinity.
func (pp *PoissonProcess) JumpTime(s State) float64 {
	pp.resimulateExpiredFactors(s)
	flow := pp.graph.Flow()

	for {
		ev := pp.queue.popNext()
		if ev == nil {
			panic(fmt.Errorf("%w: event queue is empty", ErrNoFiniteEvent))
		}
		if !ev.valid {
			pp.stats.StaleEvents++
			continue
		}
		if math.IsInf(ev.time, 1) {
			panic(fmt.Errorf("%w: factor %d at %v", ErrNoFiniteEvent, ev.factorID, ev.time))
		}
		if !ev.accepted() {
			pp.stats.Rejections++
			if logrus.IsLevelEnabled(logrus.DebugLevel) {
				logrus.Debugf("factor %d rejected at t=%g", ev.factorID, ev.time)
			}
			stateAtRejection := flow.Advance(s, ev.time-pp.currentTime)
			pp.resimulateFactor(stateAtRejection, ev.factorID, ev.time)
			continue
		}

		pp.stats.Jumps++
		pp.lastFactorID = ev.factorID
		pp.latest[ev.factorID] = nil
		pp.toResimulate = pp.graph.FactorDependencies(ev.factorID)
		elapsed := ev.time - pp.currentTime
		pp.currentTime = ev.time
		return elapsed
	}
}

// resimulateExpiredFactors re-proposes every factor invalidated by the last
// jump, including the fired factor itself.
func (pp *PoissonProcess) resimulateExpiredFactors(s State) {
	firedIncluded := pp.lastFactorID < 0
	for _, id := range pp.toResimulate {
		if id == pp.lastFactorID {
			firedIncluded = true
		}
		pp.resimulateFactor(s, id, pp.currentTime)
	}
	if !firedIncluded {
		pp.resimulateFactor(s, pp.lastFactorID, pp.currentTime)
	}
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		logrus.Debugf("t=%g resimulated factors %v (fired %d)", pp.currentTime, pp.toResimulate, pp.lastFactorID)
	}
	pp.toResimulate = nil
}

// resimulateFactor invalidates the live event of factor id and pushes a new
// proposal made from s, which is the process state at startTime.
func (pp *PoissonProcess) resimulateFactor(s State, id int, startTime float64) {
	if old := pp.latest[id]; old != nil {
		old.valid = false
	}
	proposal := pp.graph.Factor(id).Propose(s).Shifted(startTime)
	pp.stats.Proposals++
	pp.stats.ProposalsByFactor[id]++
	pp.seq++
	ev := &poissonEvent{
		factorID: id,
		time:     proposal.Time,
		accept:   proposal.Accept,
		valid:    true,
		seq:      pp.seq,
	}
	pp.latest[id] = ev
	pp.queue.schedule(ev)
}

// validEvents returns the number of valid queued events per factor.
func (pp *PoissonProcess) validEvents() []int {
	counts := make([]int, len(pp.latest))
	for _, ev := range pp.queue {
		if ev.valid {
			counts[ev.factorID]++
		}
	}
	return counts
}
