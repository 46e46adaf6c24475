// Package analysis drives a Pdmp and feeds its iterations to observers that
// estimate expectations along the simulated path.
package analysis

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inference-sim/pdmp-sim/pdmp"
)

// Observer receives the lifecycle of one run.
type Observer interface {
	// ProcessBegins is called once with the process and the state the
	// observed part of the run starts from.
	ProcessBegins(p *pdmp.Pdmp, initial pdmp.State)
	IterationResult(r pdmp.IterationResult)
	ProcessEnded()
}

// Clock abstracts wall time so that timed runs are testable.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Runner simulates a Pdmp and notifies its observers in registration order.
type Runner struct {
	observers []Observer
	clock     Clock
	runID     string
	// chargeObservers counts time spent in observers against RunFor budgets.
	chargeObservers bool
}

// NewRunner creates a runner notifying observers.
func NewRunner(observers ...Observer) *Runner {
	return &Runner{
		observers: observers,
		clock:     wallClock{},
		runID:     uuid.NewString(),
	}
}

// WithClock replaces the wall clock used by RunFor.
func (r *Runner) WithClock(c Clock) *Runner {
	r.clock = c
	return r
}

// WithObserverTime makes RunFor charge the time spent notifying observers
// against its budget. By default only simulation time is charged.
func (r *Runner) WithObserverTime(charge bool) *Runner {
	r.chargeObservers = charge
	return r
}

// WithRunID overrides the random run id attached to log lines.
func (r *Runner) WithRunID(id string) *Runner {
	r.runID = id
	return r
}

// RunID returns the id attached to this runner's log lines.
func (r *Runner) RunID() string { return r.runID }

// Register appends an observer.
func (r *Runner) Register(o Observer) {
	r.observers = append(r.observers, o)
}

// Summary describes a finished run.
type Summary struct {
	RunID       string
	Iterations  int
	ProcessTime float64
	FinalState  pdmp.State
}

// RunIterations simulates n iterations from initial.
func (r *Runner) RunIterations(p *pdmp.Pdmp, initial pdmp.State, n int) (Summary, error) {
	if n < 0 {
		return Summary{}, fmt.Errorf("%w: iteration count must be non-negative, got %d", pdmp.ErrConfiguration, n)
	}
	log := r.logger()
	log.Infof("run begins: %d iterations", n)

	r.begin(p, initial)
	s := initial
	var total float64
	for i := 0; i < n; i++ {
		res := p.SimulateOneIteration(s)
		r.notify(res)
		s = res.State
		total += res.ElapsedTime
	}
	r.end()

	log.Infof("run ended: process time %g", total)
	return Summary{RunID: r.runID, Iterations: n, ProcessTime: total, FinalState: s}, nil
}

// BurnIn simulates n iterations without notifying anyone and returns the
// final state.
func BurnIn(p *pdmp.Pdmp, initial pdmp.State, n int) pdmp.State {
	s := initial
	for i := 0; i < n; i++ {
		s = p.SimulateOneIteration(s).State
	}
	return s
}

// RunFor simulates for a wall-clock budget after a burn-in period. Observers
// are not notified during burn-in. Time spent inside observers counts against
// the budget only when enabled with WithObserverTime.
func (r *Runner) RunFor(p *pdmp.Pdmp, initial pdmp.State, budget, burnIn time.Duration) (Summary, error) {
	if budget < 0 || burnIn < 0 {
		return Summary{}, fmt.Errorf("%w: durations must be non-negative, got budget %v burn-in %v",
			pdmp.ErrConfiguration, budget, burnIn)
	}
	log := r.logger()
	log.Infof("run begins: budget %v, burn-in %v", budget, burnIn)

	s := initial
	burnStart := r.clock.Now()
	burned := 0
	for r.clock.Now().Sub(burnStart) < burnIn {
		s = p.SimulateOneIteration(s).State
		burned++
	}
	if burned > 0 {
		log.Debugf("burn-in discarded %d iterations", burned)
	}

	r.begin(p, s)
	var elapsed time.Duration
	var total float64
	iterations := 0
	for elapsed < budget {
		start := r.clock.Now()
		res := p.SimulateOneIteration(s)
		if !r.chargeObservers {
			elapsed += r.clock.Now().Sub(start)
			r.notify(res)
		} else {
			r.notify(res)
			elapsed += r.clock.Now().Sub(start)
		}
		s = res.State
		total += res.ElapsedTime
		iterations++
	}
	r.end()

	log.Infof("run ended: %d iterations, process time %g", iterations, total)
	return Summary{RunID: r.runID, Iterations: iterations, ProcessTime: total, FinalState: s}, nil
}

func (r *Runner) begin(p *pdmp.Pdmp, s pdmp.State) {
	for _, o := range r.observers {
		o.ProcessBegins(p, s)
	}
}

func (r *Runner) notify(res pdmp.IterationResult) {
	for _, o := range r.observers {
		o.IterationResult(res)
	}
}

func (r *Runner) end() {
	for _, o := range r.observers {
		o.ProcessEnded()
	}
}

func (r *Runner) logger() *logrus.Entry {
	return logrus.WithField("run_id", r.runID)
}
