package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/inference-sim/pdmp-sim/pdmp"
)

func newThinnedProcess(t *testing.T) *pdmp.Pdmp {
	t.Helper()
	// every other proposal is thinned out
	calls := 0
	b := pdmp.NewBuilder(2, nil)
	if _, err := b.AddFactorNode([]int{0}, func([]float64, pdmp.State, *pdmp.FactorNode) pdmp.Proposal {
		calls++
		if calls%2 == 1 {
			return pdmp.Proposal{Time: 0.25, Accept: func() bool { return false }}
		}
		return pdmp.Exact(0.25)
	}, nil); err != nil {
		t.Fatalf("AddFactorNode: %v", err)
	}
	if _, err := b.AddMarkovKernelNode([]int{1}, []int{1}, func(v []float64) []float64 { return v }); err != nil {
		t.Fatalf("AddMarkovKernelNode: %v", err)
	}
	p, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return p
}

func run(p *pdmp.Pdmp, o *RunObserver, n int) {
	s := pdmp.NewState([]float64{0, 1})
	o.ProcessBegins(p, s)
	for i := 0; i < n; i++ {
		res := p.SimulateOneIteration(s)
		o.IterationResult(res)
		s = res.State
	}
	o.ProcessEnded()
}

func TestRunObserver_RecordsSchedulerStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	run(newThinnedProcess(t), c.RunObserver(), 3)

	if got := testutil.ToFloat64(c.Runs); got != 1 {
		t.Errorf("pdmp_runs_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Iterations); got != 3 {
		t.Errorf("pdmp_iterations_total = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.Proposals); got != 6 {
		t.Errorf("pdmp_proposals_total = %v, want 6", got)
	}
	if got := testutil.ToFloat64(c.Rejections); got != 3 {
		t.Errorf("pdmp_rejections_total = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.StaleEvents); got != 0 {
		t.Errorf("pdmp_stale_events_total = %v, want 0", got)
	}
	if count := histogramSampleCount(t, reg, "pdmp_iteration_time"); count != 3 {
		t.Errorf("pdmp_iteration_time sample_count = %d, want 3", count)
	}
}

func TestRunObserver_CountsOnlyObservedPart(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	p := newThinnedProcess(t)
	// unobserved burn-in
	s := pdmp.NewState([]float64{0, 1})
	for i := 0; i < 5; i++ {
		s = p.SimulateOneIteration(s).State
	}
	run(p, c.RunObserver(), 2)

	if got := testutil.ToFloat64(c.Proposals); got != 4 {
		t.Errorf("pdmp_proposals_total = %v, want 4", got)
	}
}

func TestNewCollector_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}
	first.Iterations.Inc()
	if got := testutil.ToFloat64(second.Iterations); got != 1 {
		t.Errorf("shared counter = %v, want 1", got)
	}
}

func TestNewCollector_IncompatibleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{Name: "pdmp_runs_total", Help: "clash"}))
	if _, err := NewCollector(reg); err == nil {
		t.Fatal("expected an error for an incompatible existing collector")
	}
}

func TestCollector_WriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	c.Iterations.Add(7)

	path := filepath.Join(t.TempDir(), "pdmp.prom")
	if err := c.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading textfile: %v", err)
	}
	if !strings.Contains(string(data), "pdmp_iterations_total 7") {
		t.Errorf("textfile missing iteration counter:\n%s", data)
	}
}

func histogramSampleCount(t *testing.T, reg *prometheus.Registry, name string) uint64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name || mf.GetType() != dto.MetricType_HISTOGRAM {
			continue
		}
		for _, m := range mf.GetMetric() {
			return m.GetHistogram().GetSampleCount()
		}
	}
	t.Fatalf("histogram %s not found", name)
	return 0
}
