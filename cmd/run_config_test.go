package cmd

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func chainConfig(dim int, rho float64) RunConfig {
	cfg := DefaultRunConfig()
	cfg.Iterations = 200
	cfg.Target = TargetConfig{Chain: &ChainConfig{Dim: dim, Correlation: rho}}
	return cfg
}

func TestLoadRunConfig_AppliesDefaultsForAbsentKeys(t *testing.T) {
	// GIVEN a config naming only the target
	path := writeTempYAML(t, `
target:
  mean: [1, 2]
  covariance: [[1, 0], [0, 1]]
`)

	// WHEN it is loaded
	cfg, err := LoadRunConfig(path)

	// THEN the defaults fill the remaining keys
	require.NoError(t, err)
	assert.Equal(t, "bps", cfg.Algorithm)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, 10000, cfg.Iterations)
	assert.Equal(t, 1, cfg.Replicas)
	assert.Nil(t, cfg.RefreshRate)
	assert.Equal(t, []float64{1, 2}, cfg.Target.Mean)
	assert.NoError(t, cfg.Validate())
}

func TestLoadRunConfig_ParsesAllSections(t *testing.T) {
	path := writeTempYAML(t, `
algorithm: zigzag
seed: 7
iterations: 0
burn_in: 10
duration: 2s
burn_in_duration: 500ms
charge_observer_time: true
replicas: 3
workers: 2
initial_position: [0.5, -0.5, 0]
target:
  chain:
    dim: 3
    correlation: 0.4
output:
  metrics_file: out.prom
`)

	cfg, err := LoadRunConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "zigzag", cfg.Algorithm)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, 2*time.Second, cfg.Duration)
	assert.Equal(t, 500*time.Millisecond, cfg.BurnInDuration)
	assert.True(t, cfg.ChargeObserverTime)
	assert.Equal(t, 3, cfg.Replicas)
	assert.Equal(t, 2, cfg.Workers)
	require.NotNil(t, cfg.Target.Chain)
	assert.Equal(t, 3, cfg.Target.Chain.Dim)
	assert.Equal(t, "out.prom", cfg.Output.MetricsFile)
	assert.NoError(t, cfg.Validate())
}

func TestLoadRunConfig_RejectsUnknownKeys(t *testing.T) {
	path := writeTempYAML(t, `
algorithm: bps
refresh: 2
`)
	_, err := LoadRunConfig(path)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "parsing run config"), "got %v", err)
}

func TestLoadRunConfig_MissingFile(t *testing.T) {
	_, err := LoadRunConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading run config")
}

func TestRunConfig_Validate(t *testing.T) {
	rate := func(v float64) *float64 { return &v }
	tests := []struct {
		name    string
		mutate  func(*RunConfig)
		wantErr string
	}{
		{"valid chain", func(c *RunConfig) {}, ""},
		{"unknown algorithm", func(c *RunConfig) { c.Algorithm = "hmc" }, "unknown algorithm"},
		{"negative iterations", func(c *RunConfig) { c.Iterations = -1 }, "non-negative"},
		{"no budget", func(c *RunConfig) { c.Iterations = 0 }, "iterations or duration"},
		{"duration only", func(c *RunConfig) { c.Iterations = 0; c.Duration = time.Second }, ""},
		{"observer time without duration", func(c *RunConfig) { c.ChargeObserverTime = true }, "requires duration"},
		{"zero replicas", func(c *RunConfig) { c.Replicas = 0 }, "replicas"},
		{"negative workers", func(c *RunConfig) { c.Workers = -2 }, "workers"},
		{"NaN refresh", func(c *RunConfig) { c.RefreshRate = rate(math.NaN()) }, "refresh_rate"},
		{"zero refresh", func(c *RunConfig) { c.RefreshRate = rate(0) }, ""},
		{"infinite horizon", func(c *RunConfig) { c.ThinningHorizon = math.Inf(1) }, "thinning_horizon"},
		{"zigzag with refresh", func(c *RunConfig) { c.Algorithm = "zigzag"; c.RefreshRate = rate(1) }, "bps only"},
		{"no target", func(c *RunConfig) { c.Target = TargetConfig{} }, "required"},
		{"both targets", func(c *RunConfig) { c.Target.Mean = []float64{0} }, "mutually exclusive"},
		{"chain correlation", func(c *RunConfig) { c.Target.Chain.Correlation = 1 }, "correlation"},
		{"covariance rows", func(c *RunConfig) {
			c.Target = TargetConfig{Mean: []float64{0, 0}, Covariance: [][]float64{{1, 0}}}
		}, "rows"},
		{"initial position length", func(c *RunConfig) { c.InitialPosition = []float64{0} }, "initial_position"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := chainConfig(2, 0.5)
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestTargetConfig_Factors(t *testing.T) {
	// GIVEN a dense target
	dense := TargetConfig{Mean: []float64{1, -1}, Covariance: [][]float64{{2, 0.5}, {0.5, 1}}}

	// WHEN factorised
	factors, n, err := dense.Factors()

	// THEN one factor covers every variable
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, factors, 1)
	assert.Equal(t, []int{0, 1}, factors[0].Variables)
	assert.Equal(t, []float64{1, -1}, dense.TrueMean())

	// AND a chain yields one factor per neighbouring pair
	chain := TargetConfig{Chain: &ChainConfig{Dim: 4, Correlation: 0.3}}
	factors, n, err = chain.Factors()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Len(t, factors, 3)
	assert.Equal(t, []float64{0, 0, 0, 0}, chain.TrueMean())
}

func TestTargetConfig_Factors_RejectsIndefiniteCovariance(t *testing.T) {
	target := TargetConfig{Mean: []float64{0, 0}, Covariance: [][]float64{{1, 2}, {2, 1}}}
	_, _, err := target.Factors()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target")
}

func TestRunConfig_InitialPositionDefaultsToOrigin(t *testing.T) {
	cfg := chainConfig(3, 0)
	assert.Equal(t, []float64{0, 0, 0}, cfg.initialPosition())

	cfg.InitialPosition = []float64{1, 2, 3}
	pos := cfg.initialPosition()
	pos[0] = 9
	assert.Equal(t, 1.0, cfg.InitialPosition[0], "initialPosition must return a copy")
}

func TestBundledChainConfigIsValid(t *testing.T) {
	cfg, err := LoadRunConfig(filepath.Join("..", "configs", "chain.yaml"))
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.Target.dim())
}
