package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/inference-sim/pdmp-sim/pdmp"
	"github.com/inference-sim/pdmp-sim/pdmp/analysis"
	"github.com/inference-sim/pdmp-sim/pdmp/observability"
	"github.com/inference-sim/pdmp-sim/pdmp/replica"
)

// ReplicaReport is the outcome of one replica.
type ReplicaReport struct {
	Means              []float64
	AsymptoticVariance []float64
	Stats              analysis.ProcessStats
	Summary            analysis.Summary
}

// Report aggregates all replicas of a run.
type Report struct {
	BatchID  string
	Replicas []ReplicaReport
	// Mean and StdErr are the per-coordinate average of the replica means
	// and the standard error across replicas (zero for a single replica).
	Mean   []float64
	StdErr []float64
	// AsymptoticVariance averages the replicas' batch-means estimates,
	// centred on the true target mean.
	AsymptoticVariance []float64
}

// runSimulation runs every replica of cfg and aggregates their estimates.
// A nil collector disables metrics.
func runSimulation(ctx context.Context, cfg *RunConfig, collector *observability.Collector) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run config: %w", err)
	}
	// Per-replica stream families are derived up front: PartitionedRNG is
	// not safe for concurrent use.
	root := pdmp.NewPartitionedRNG(pdmp.NewSimulationKey(cfg.Seed))
	rngs := make([]*pdmp.PartitionedRNG, cfg.Replicas)
	for i := range rngs {
		rngs[i] = root.Derive(pdmp.SubsystemReplica(i))
	}
	trueMean := cfg.Target.TrueMean()

	res, err := replica.Run(ctx, replica.Pool{Workers: cfg.Workers}, cfg.Replicas,
		func(_ context.Context, id int) (ReplicaReport, error) {
			return runReplica(cfg, rngs[id], trueMean, collector, id)
		})
	if err != nil {
		return nil, err
	}
	return aggregate(res.BatchID, res.Values), nil
}

func runReplica(cfg *RunConfig, rng *pdmp.PartitionedRNG, trueMean []float64,
	collector *observability.Collector, id int) (ReplicaReport, error) {
	s, err := cfg.newSampler(rng)
	if err != nil {
		return ReplicaReport{}, err
	}
	p, err := s.Build()
	if err != nil {
		return ReplicaReport{}, err
	}
	initial, err := s.InitialState(cfg.initialPosition())
	if err != nil {
		return ReplicaReport{}, err
	}

	dim := len(trueMean)
	means := make([]*analysis.QuadratureMean, dim)
	batches := make([]*analysis.BatchMeans, dim)
	stats := &analysis.ProcessStats{}
	runner := analysis.NewRunner(stats).WithObserverTime(cfg.ChargeObserverTime)
	for j := 0; j < dim; j++ {
		means[j] = analysis.NewQuadratureMean(analysis.Coordinate(j), 0)
		batches[j] = analysis.NewBatchMeans(analysis.Coordinate(j), 0)
		runner.Register(means[j])
		runner.Register(batches[j])
	}
	if collector != nil {
		runner.Register(collector.RunObserver())
	}
	logrus.WithFields(logrus.Fields{"replica": id, "run_id": runner.RunID()}).Debugf("replica starting")

	var summary analysis.Summary
	if cfg.Duration > 0 {
		summary, err = runner.RunFor(p, initial, cfg.Duration, cfg.BurnInDuration)
	} else {
		summary, err = runner.RunIterations(p, analysis.BurnIn(p, initial, cfg.BurnIn), cfg.Iterations)
	}
	if err != nil {
		return ReplicaReport{}, err
	}

	report := ReplicaReport{
		Means:              make([]float64, dim),
		AsymptoticVariance: make([]float64, dim),
		Stats:              *stats,
		Summary:            summary,
	}
	for j := 0; j < dim; j++ {
		report.Means[j] = means[j].Mean()
		v, err := batches[j].AsymptoticVarianceKnownMean(trueMean[j])
		if err != nil {
			logrus.Warnf("replica %d coordinate %d: %v", id, j, err)
			v = 0
		}
		report.AsymptoticVariance[j] = v
	}
	return report, nil
}

func aggregate(batchID string, replicas []ReplicaReport) *Report {
	r := &Report{BatchID: batchID, Replicas: replicas}
	if len(replicas) == 0 {
		return r
	}
	dim := len(replicas[0].Means)
	r.Mean = make([]float64, dim)
	r.StdErr = make([]float64, dim)
	r.AsymptoticVariance = make([]float64, dim)
	column := make([]float64, len(replicas))
	for j := 0; j < dim; j++ {
		for i, rep := range replicas {
			column[i] = rep.Means[j]
		}
		r.Mean[j] = stat.Mean(column, nil)
		if len(replicas) > 1 {
			r.StdErr[j] = stat.StdErr(stat.StdDev(column, nil), float64(len(replicas)))
		}
		for i, rep := range replicas {
			column[i] = rep.AsymptoticVariance[j]
		}
		r.AsymptoticVariance[j] = stat.Mean(column, nil)
	}
	return r
}

// Print writes the report in a fixed-width text layout.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "=== Simulation Report (batch %s) ===\n", r.BatchID)
	var iterations int
	var processTime float64
	var sched pdmp.SchedulerStats
	for _, rep := range r.Replicas {
		iterations += rep.Summary.Iterations
		processTime += rep.Summary.ProcessTime
		sched.Proposals += rep.Stats.Scheduler.Proposals
		sched.Rejections += rep.Stats.Scheduler.Rejections
		sched.StaleEvents += rep.Stats.Scheduler.StaleEvents
	}
	fmt.Fprintf(w, "replicas: %d  iterations: %d  process time: %.4g\n", len(r.Replicas), iterations, processTime)
	fmt.Fprintf(w, "proposals: %d  rejections: %d  stale events: %d\n", sched.Proposals, sched.Rejections, sched.StaleEvents)
	fmt.Fprintf(w, "%-6s %12s %12s %14s\n", "coord", "mean", "std_err", "asym_var")
	for j := range r.Mean {
		fmt.Fprintf(w, "%-6d %12.5f %12.5f %14.5f\n", j, r.Mean[j], r.StdErr[j], r.AsymptoticVariance[j])
	}
}

// printDependencies writes the dependency closure of every factor of g.
func printDependencies(w io.Writer, g *pdmp.DependenciesGraph) {
	for id := 0; id < g.NumFactors(); id++ {
		fmt.Fprintf(w, "factor %d reads %s modifies %s resimulates %s\n", id,
			formatIDs(g.Factor(id).DependentVariableIDs),
			formatIDs(g.Kernel(id).ModifiedVariableIDs),
			formatIDs(g.FactorDependencies(id)))
	}
}

func formatIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
