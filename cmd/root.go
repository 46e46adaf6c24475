package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/pdmp-sim/pdmp"
	"github.com/inference-sim/pdmp-sim/pdmp/observability"
)

var (
	// CLI flags for the run command; set flags override the YAML file.
	configPath  string // Path to the YAML run config
	seed        int64  // Seed of the root simulation key
	iterations  int    // Iterations per replica
	burnIn      int    // Discarded iterations per replica
	replicas    int    // Independent replicas
	workers     int    // Replicas run concurrently
	algorithm   string // bps or zigzag
	logLevel    string // Log verbosity level
	metricsFile string // Prometheus textfile written after the run
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "pdmp-sim",
	Short: "Piecewise deterministic Markov process simulator for MCMC",
}

// runCmd samples the configured target and prints the estimates
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a PDMP sampler on a Gaussian target",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		cfg := loadConfig(cmd)

		var collector *observability.Collector
		if cfg.Output.MetricsFile != "" {
			var err error
			collector, err = observability.NewCollector(prometheus.NewRegistry())
			if err != nil {
				logrus.Fatalf("Failed to create metrics collector: %v", err)
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		logrus.Infof("Starting %s run: %d replica(s), seed %d", cfg.Algorithm, cfg.Replicas, cfg.Seed)
		report, err := runSimulation(ctx, cfg, collector)
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		report.Print(os.Stdout)

		if collector != nil {
			if err := collector.WriteTextfile(cfg.Output.MetricsFile); err != nil {
				logrus.Fatalf("Failed to write metrics: %v", err)
			}
			logrus.Infof("Metrics written to: %s", cfg.Output.MetricsFile)
		}
	},
}

// depsCmd prints the dependency closure of every factor of the configured sampler
var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Print the factor dependency graph of the configured sampler",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		cfg := loadConfig(cmd)
		g, err := buildGraph(cfg)
		if err != nil {
			logrus.Fatalf("Failed to build graph: %v", err)
		}
		printDependencies(os.Stdout, g)
	},
}

func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// loadConfig reads --config, or starts from defaults, then applies the
// flags the user set explicitly.
func loadConfig(cmd *cobra.Command) *RunConfig {
	var cfg *RunConfig
	if configPath != "" {
		var err error
		cfg, err = LoadRunConfig(configPath)
		if err != nil {
			logrus.Fatalf("Failed to load run config: %v", err)
		}
	} else {
		d := DefaultRunConfig()
		cfg = &d
	}
	applyFlagOverrides(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid run config: %v", err)
	}
	return cfg
}

func applyFlagOverrides(cmd *cobra.Command, cfg *RunConfig) {
	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("iterations") {
		cfg.Iterations = iterations
	}
	if flags.Changed("burn-in") {
		cfg.BurnIn = burnIn
	}
	if flags.Changed("replicas") {
		cfg.Replicas = replicas
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("algorithm") {
		cfg.Algorithm = algorithm
	}
	if flags.Changed("metrics-file") {
		cfg.Output.MetricsFile = metricsFile
	}
}

// buildGraph assembles the sampler of cfg seeded from its root key.
func buildGraph(cfg *RunConfig) (*pdmp.DependenciesGraph, error) {
	rng := pdmp.NewPartitionedRNG(pdmp.NewSimulationKey(cfg.Seed))
	s, err := cfg.newSampler(rng)
	if err != nil {
		return nil, err
	}
	return s.Graph()
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func registerConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configPath, "config", "", "Path to YAML run config")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Seed of the root simulation key")
	cmd.Flags().StringVar(&algorithm, "algorithm", "bps", "Sampler (bps, zigzag)")
	cmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
}

func init() {
	registerConfigFlags(runCmd)
	runCmd.Flags().IntVar(&iterations, "iterations", 10000, "Iterations per replica")
	runCmd.Flags().IntVar(&burnIn, "burn-in", 0, "Discarded iterations per replica")
	runCmd.Flags().IntVar(&replicas, "replicas", 1, "Number of independent replicas")
	runCmd.Flags().IntVar(&workers, "workers", 0, "Replicas run concurrently (0 = GOMAXPROCS)")
	runCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics in textfile format to this path")

	registerConfigFlags(depsCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(depsCmd)
}
