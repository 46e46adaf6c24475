// Package observability exposes Prometheus metrics for simulation runs.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/inference-sim/pdmp-sim/pdmp"
)

// Collector holds the simulation metrics. Counters are shared by every run
// observed through it; use one RunObserver per run.
type Collector struct {
	gatherer prometheus.Gatherer

	Runs          prometheus.Counter
	Iterations    prometheus.Counter
	Proposals     prometheus.Counter
	Rejections    prometheus.Counter
	StaleEvents   prometheus.Counter
	IterationTime prometheus.Histogram
}

// NewCollector registers the simulation metrics against reg, reusing
// collectors already registered under the same names.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error
	counters := []struct {
		dst  *prometheus.Counter
		name string
		help string
	}{
		{&c.Runs, "pdmp_runs_total", "Number of simulation runs started."},
		{&c.Iterations, "pdmp_iterations_total", "Number of simulated jumps."},
		{&c.Proposals, "pdmp_proposals_total", "Number of factor proposals issued by the event scheduler."},
		{&c.Rejections, "pdmp_rejections_total", "Number of proposals rejected by thinning."},
		{&c.StaleEvents, "pdmp_stale_events_total", "Number of invalidated events discarded from the event queue."},
	}
	for _, def := range counters {
		counter := prometheus.NewCounter(prometheus.CounterOpts{Name: def.name, Help: def.help})
		if *def.dst, err = registerCounter(reg, counter, def.name); err != nil {
			return nil, err
		}
	}

	hist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pdmp_iteration_time",
		Help:    "Process time elapsed between consecutive jumps.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})
	if c.IterationTime, err = registerHistogram(reg, hist, "pdmp_iteration_time"); err != nil {
		return nil, err
	}
	return c, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// RunObserver returns an observer feeding one run into the collector.
func (c *Collector) RunObserver() *RunObserver {
	return &RunObserver{c: c}
}

// addScheduler adds the scheduler work of one run.
func (c *Collector) addScheduler(d pdmp.SchedulerStats) {
	c.Proposals.Add(float64(d.Proposals))
	c.Rejections.Add(float64(d.Rejections))
	c.StaleEvents.Add(float64(d.StaleEvents))
}

// RunObserver records one run. Scheduler counters are read from the
// observed PoissonProcess when the run ends, so work done during burn-in is
// not attributed to the run.
type RunObserver struct {
	c     *Collector
	pp    *pdmp.PoissonProcess
	start pdmp.SchedulerStats
}

func (o *RunObserver) ProcessBegins(p *pdmp.Pdmp, _ pdmp.State) {
	if o.c == nil {
		return
	}
	o.c.Runs.Inc()
	o.pp, _ = p.PoissonProcess().(*pdmp.PoissonProcess)
	if o.pp != nil {
		o.start = o.pp.Stats()
	}
}

func (o *RunObserver) IterationResult(r pdmp.IterationResult) {
	if o.c == nil {
		return
	}
	o.c.Iterations.Inc()
	o.c.IterationTime.Observe(r.ElapsedTime)
}

func (o *RunObserver) ProcessEnded() {
	if o.c == nil || o.pp == nil {
		return
	}
	o.c.addScheduler(o.pp.Stats().Since(o.start))
	o.pp = nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

// WriteTextfile writes the gathered metrics in the Prometheus text format,
// for the node exporter's textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.gatherer); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
