// Package config holds all bayzzer configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface consumed by the core.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Analysis configures the derivation engine and model builder.
	Analysis AnalysisConfig `yaml:"analysis"`

	// Inference configures exact marginal queries.
	Inference InferenceConfig `yaml:"inference"`

	// Fuzzing configures the campaign round loop.
	Fuzzing FuzzingConfig `yaml:"fuzzing"`

	// Report configures result persistence.
	Report ReportConfig `yaml:"report"`
}

// AnalysisConfig configures the static pipeline.
type AnalysisConfig struct {
	// PriorProbability is P(true) for parentless fact nodes: confidence in
	// the static analysis itself.
	PriorProbability float64 `yaml:"prior_probability"`

	// RuleProbability is P(rule fires | all premises true).
	RuleProbability float64 `yaml:"rule_probability"`

	// MaxFixpointPasses bounds forward chaining. Exceeding it is fatal.
	MaxFixpointPasses int `yaml:"max_fixpoint_passes"`

	// CrossCheck re-derives the fixpoint through the Mangle engine after
	// every analysis and fails on divergence.
	CrossCheck bool `yaml:"cross_check"`
}

// InferenceConfig configures the inference engine.
type InferenceConfig struct {
	// Tolerance is the accepted floating-point slack outside [0,1] before a
	// computed marginal is declared an internal-consistency failure.
	Tolerance float64 `yaml:"tolerance"`
}

// FuzzingConfig configures the campaign orchestrator.
type FuzzingConfig struct {
	TotalBudget  string `yaml:"total_budget"`  // overall campaign budget
	TargetBudget string `yaml:"target_budget"` // per-target budget (beta)

	// Alpha is the fraction of ranked targets selected per round.
	Alpha float64 `yaml:"alpha"`

	// ReconstructionPeriod is the round interval N at which negative
	// evidence is cleared.
	ReconstructionPeriod int `yaml:"reconstruction_period"`

	// Workers bounds concurrent target executions per round.
	Workers int `yaml:"workers"`
}

// ReportConfig configures the sqlite report store.
type ReportConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "bayzzer",
		Version: "1.0.0",

		Analysis: AnalysisConfig{
			PriorProbability:  0.9,
			RuleProbability:   0.9,
			MaxFixpointPasses: 1000,
			CrossCheck:        false,
		},

		Inference: InferenceConfig{
			Tolerance: 1e-6,
		},

		Fuzzing: FuzzingConfig{
			TotalBudget:          "10m",
			TargetBudget:         "10s",
			Alpha:                0.25,
			ReconstructionPeriod: 5,
			Workers:              4,
		},

		Report: ReportConfig{
			DatabasePath: "bayzzer_results.db",
		},
	}
}

// Load reads configuration from a YAML file, layered over defaults and the
// environment. A missing path yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				cfg.applyEnv()
				return cfg, cfg.Validate()
			}
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays select knobs from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("BAYZZER_REPORT_DB"); v != "" {
		c.Report.DatabasePath = v
	}
	if v := os.Getenv("BAYZZER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Fuzzing.Workers = n
		}
	}
	if v := os.Getenv("BAYZZER_TOTAL_BUDGET"); v != "" {
		c.Fuzzing.TotalBudget = v
	}
}

// Validate checks ranges and duration syntax.
func (c *Config) Validate() error {
	if p := c.Analysis.PriorProbability; p <= 0 || p > 1 {
		return fmt.Errorf("analysis.prior_probability %v outside (0,1]", p)
	}
	if p := c.Analysis.RuleProbability; p <= 0 || p > 1 {
		return fmt.Errorf("analysis.rule_probability %v outside (0,1]", p)
	}
	if c.Analysis.MaxFixpointPasses <= 0 {
		return fmt.Errorf("analysis.max_fixpoint_passes must be positive")
	}
	if c.Inference.Tolerance <= 0 {
		return fmt.Errorf("inference.tolerance must be positive")
	}
	if a := c.Fuzzing.Alpha; a <= 0 || a > 1 {
		return fmt.Errorf("fuzzing.alpha %v outside (0,1]", a)
	}
	if c.Fuzzing.ReconstructionPeriod <= 0 {
		return fmt.Errorf("fuzzing.reconstruction_period must be positive")
	}
	if c.Fuzzing.Workers <= 0 {
		return fmt.Errorf("fuzzing.workers must be positive")
	}
	if _, err := c.TotalBudget(); err != nil {
		return err
	}
	if _, err := c.TargetBudget(); err != nil {
		return err
	}
	return nil
}

// TotalBudget parses the overall campaign budget.
func (c *Config) TotalBudget() (time.Duration, error) {
	d, err := time.ParseDuration(c.Fuzzing.TotalBudget)
	if err != nil {
		return 0, fmt.Errorf("fuzzing.total_budget: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("fuzzing.total_budget must be positive")
	}
	return d, nil
}

// TargetBudget parses the per-target budget (beta).
func (c *Config) TargetBudget() (time.Duration, error) {
	d, err := time.ParseDuration(c.Fuzzing.TargetBudget)
	if err != nil {
		return 0, fmt.Errorf("fuzzing.target_budget: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("fuzzing.target_budget must be positive")
	}
	return d, nil
}
