package analysis

import (
	"math"

	"github.com/inference-sim/pdmp-sim/pdmp"
)

// PathPoint is the state right after a jump and the absolute process time
// it happened at.
type PathPoint struct {
	Time  float64
	State pdmp.State
}

// PathCollector records the skeleton of the path: the initial state and
// every post-jump state. With a positive Limit only the first Limit points
// are kept. Between points the path follows the flow.
type PathCollector struct {
	Limit int

	points []PathPoint
	now    float64
}

func (pc *PathCollector) ProcessBegins(_ *pdmp.Pdmp, initial pdmp.State) {
	pc.points = []PathPoint{{Time: 0, State: initial}}
	pc.now = 0
}

func (pc *PathCollector) IterationResult(r pdmp.IterationResult) {
	pc.now += r.ElapsedTime
	if pc.Limit > 0 && len(pc.points) >= pc.Limit {
		return
	}
	pc.points = append(pc.points, PathPoint{Time: pc.now, State: r.State})
}

func (pc *PathCollector) ProcessEnded() {}

// Path returns the collected points.
func (pc *PathCollector) Path() []PathPoint { return pc.points }

// Coordinate returns the event times and the values of coordinate id at them.
func (pc *PathCollector) Coordinate(id int) (times, values []float64) {
	times = make([]float64, len(pc.points))
	values = make([]float64, len(pc.points))
	for i, p := range pc.points {
		times[i], values[i] = p.Time, p.State.At(id)
	}
	return times, values
}

// ProcessStats summarizes a run: iteration count, process time, the
// shortest and longest inter-jump time, and the scheduler work done during
// the run when the process is driven by a PoissonProcess. Work done before
// ProcessBegins, such as burn-in, is not counted.
type ProcessStats struct {
	Iterations   int
	ProcessTime  float64
	MinElapsed   float64
	MaxElapsed   float64
	Scheduler    pdmp.SchedulerStats
	HasScheduler bool

	pp    *pdmp.PoissonProcess
	start pdmp.SchedulerStats
}

func (ps *ProcessStats) ProcessBegins(p *pdmp.Pdmp, _ pdmp.State) {
	*ps = ProcessStats{MinElapsed: math.Inf(1), MaxElapsed: math.Inf(-1)}
	ps.pp, ps.HasScheduler = p.PoissonProcess().(*pdmp.PoissonProcess)
	if ps.pp != nil {
		ps.start = ps.pp.Stats()
	}
}

func (ps *ProcessStats) IterationResult(r pdmp.IterationResult) {
	ps.Iterations++
	ps.ProcessTime += r.ElapsedTime
	ps.MinElapsed = math.Min(ps.MinElapsed, r.ElapsedTime)
	ps.MaxElapsed = math.Max(ps.MaxElapsed, r.ElapsedTime)
}

func (ps *ProcessStats) ProcessEnded() {
	if ps.pp != nil {
		ps.Scheduler = ps.pp.Stats().Since(ps.start)
	}
}

// JumpRate returns iterations per unit of process time.
func (ps *ProcessStats) JumpRate() float64 {
	if ps.ProcessTime == 0 {
		return 0
	}
	return float64(ps.Iterations) / ps.ProcessTime
}
