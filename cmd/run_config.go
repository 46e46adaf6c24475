package cmd

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inference-sim/pdmp-sim/pdmp"
	"github.com/inference-sim/pdmp-sim/pdmp/mcmc"
)

// RunConfig is the YAML description of a sampling run.
// All sections must be listed to satisfy KnownFields(true) strict parsing.
type RunConfig struct {
	Algorithm string `yaml:"algorithm"` // bps or zigzag
	Seed      int64  `yaml:"seed"`

	// Iterations per replica. Ignored when Duration is set.
	Iterations int `yaml:"iterations"`
	BurnIn     int `yaml:"burn_in"`
	// Duration switches replicas to a wall-clock budget.
	Duration       time.Duration `yaml:"duration"`
	BurnInDuration time.Duration `yaml:"burn_in_duration"`
	// ChargeObserverTime counts estimator work against Duration.
	ChargeObserverTime bool `yaml:"charge_observer_time"`

	Replicas int `yaml:"replicas"`
	Workers  int `yaml:"workers"`

	// RefreshRate of BPS velocity refreshment; nil means 1.
	RefreshRate     *float64 `yaml:"refresh_rate"`
	ThinningHorizon float64  `yaml:"thinning_horizon"`

	InitialPosition []float64    `yaml:"initial_position"`
	Target          TargetConfig `yaml:"target"`
	Output          OutputConfig `yaml:"output"`
}

// TargetConfig describes the Gaussian target: either a dense Gaussian given
// by mean and covariance, or a chain of pairwise correlated variables.
type TargetConfig struct {
	Mean       []float64    `yaml:"mean"`
	Covariance [][]float64  `yaml:"covariance"`
	Chain      *ChainConfig `yaml:"chain"`
}

// ChainConfig is a chain of Dim zero-mean variables in which every
// neighbouring pair carries a bivariate normal factor with unit variances
// and the given Correlation. The joint marginals are not unit.
type ChainConfig struct {
	Dim         int     `yaml:"dim"`
	Correlation float64 `yaml:"correlation"`
}

// OutputConfig selects run artefacts.
type OutputConfig struct {
	MetricsFile string `yaml:"metrics_file"`
}

var validAlgorithms = map[string]bool{"bps": true, "zigzag": true}

// DefaultRunConfig returns the settings used for keys absent from the YAML.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Algorithm:  "bps",
		Seed:       42,
		Iterations: 10000,
		Replicas:   1,
	}
}

// LoadRunConfig reads and parses a YAML run configuration on top of
// DefaultRunConfig. Uses strict parsing: unrecognized keys are rejected.
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run config: %w", err)
	}
	cfg := DefaultRunConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing run config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that all fields in the config are valid.
func (c *RunConfig) Validate() error {
	if !validAlgorithms[c.Algorithm] {
		return fmt.Errorf("unknown algorithm %q; valid: bps, zigzag", c.Algorithm)
	}
	if c.Iterations < 0 || c.BurnIn < 0 {
		return fmt.Errorf("iterations and burn_in must be non-negative, got %d and %d", c.Iterations, c.BurnIn)
	}
	if c.Duration < 0 || c.BurnInDuration < 0 {
		return fmt.Errorf("duration and burn_in_duration must be non-negative, got %v and %v", c.Duration, c.BurnInDuration)
	}
	if c.ChargeObserverTime && c.Duration == 0 {
		return fmt.Errorf("charge_observer_time requires duration")
	}
	if c.Iterations == 0 && c.Duration == 0 {
		return fmt.Errorf("one of iterations or duration must be positive")
	}
	if c.Replicas <= 0 {
		return fmt.Errorf("replicas must be positive, got %d", c.Replicas)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Workers)
	}
	if c.RefreshRate != nil {
		if err := validateFiniteNonNegative("refresh_rate", *c.RefreshRate); err != nil {
			return err
		}
	}
	if err := validateFiniteNonNegative("thinning_horizon", c.ThinningHorizon); err != nil {
		return err
	}
	if c.Algorithm == "zigzag" && (c.RefreshRate != nil || c.ThinningHorizon != 0) {
		return fmt.Errorf("refresh_rate and thinning_horizon apply to bps only")
	}
	if err := c.Target.validate(); err != nil {
		return err
	}
	if c.InitialPosition != nil && len(c.InitialPosition) != c.Target.dim() {
		return fmt.Errorf("initial_position has %d coordinates, target has %d", len(c.InitialPosition), c.Target.dim())
	}
	return nil
}

func (t *TargetConfig) validate() error {
	dense := t.Mean != nil || t.Covariance != nil
	switch {
	case dense && t.Chain != nil:
		return fmt.Errorf("target: mean/covariance and chain are mutually exclusive")
	case t.Chain != nil:
		if t.Chain.Dim <= 0 {
			return fmt.Errorf("target.chain.dim must be positive, got %d", t.Chain.Dim)
		}
		if math.Abs(t.Chain.Correlation) >= 1 {
			return fmt.Errorf("target.chain.correlation must lie in (-1, 1), got %g", t.Chain.Correlation)
		}
	case dense:
		if len(t.Mean) == 0 {
			return fmt.Errorf("target.mean must not be empty")
		}
		if len(t.Covariance) != len(t.Mean) {
			return fmt.Errorf("target.covariance has %d rows, mean has %d entries", len(t.Covariance), len(t.Mean))
		}
	default:
		return fmt.Errorf("target: one of mean/covariance or chain is required")
	}
	return nil
}

func (t *TargetConfig) dim() int {
	if t.Chain != nil {
		return t.Chain.Dim
	}
	return len(t.Mean)
}

// Factors returns the factorised target and its number of model variables.
func (t *TargetConfig) Factors() ([]mcmc.Factor, int, error) {
	if t.Chain != nil {
		factors, err := mcmc.GaussianChain(t.Chain.Dim, t.Chain.Correlation)
		return factors, t.Chain.Dim, err
	}
	g, err := mcmc.NewGaussian(t.Mean, t.Covariance)
	if err != nil {
		return nil, 0, fmt.Errorf("target: %w", err)
	}
	vars := make([]int, len(t.Mean))
	for i := range vars {
		vars[i] = i
	}
	return []mcmc.Factor{{Variables: vars, Target: g}}, len(t.Mean), nil
}

// TrueMean returns the target mean, used to centre variance estimates.
func (t *TargetConfig) TrueMean() []float64 {
	if t.Chain != nil {
		return make([]float64, t.Chain.Dim)
	}
	return append([]float64(nil), t.Mean...)
}

func validateFiniteNonNegative(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%s must be a finite non-negative number, got %f", name, v)
	}
	return nil
}

// sampler is the construction surface shared by the BPS and Zig-Zag builders.
type sampler interface {
	AddFactor(mcmc.Factor) error
	Graph() (*pdmp.DependenciesGraph, error)
	Build() (*pdmp.Pdmp, error)
	InitialState(position []float64) (pdmp.State, error)
}

// newSampler builds the configured sampler with every target factor added.
func (c *RunConfig) newSampler(rng *pdmp.PartitionedRNG) (sampler, error) {
	factors, n, err := c.Target.Factors()
	if err != nil {
		return nil, err
	}
	var s sampler
	switch c.Algorithm {
	case "zigzag":
		s = mcmc.NewZigZagBuilder(n, rng)
	default:
		opts := mcmc.DefaultBpsOptions()
		if c.RefreshRate != nil {
			opts.RefreshRate = *c.RefreshRate
		}
		opts.ThinningHorizon = c.ThinningHorizon
		s = mcmc.NewBpsBuilder(n, opts, rng)
	}
	for i, f := range factors {
		if err := s.AddFactor(f); err != nil {
			return nil, fmt.Errorf("target factor %d: %w", i, err)
		}
	}
	return s, nil
}

// initialPosition returns the configured start, or the origin.
func (c *RunConfig) initialPosition() []float64 {
	if c.InitialPosition != nil {
		return append([]float64(nil), c.InitialPosition...)
	}
	return make([]float64, c.Target.dim())
}
