// Package config loads and validates a run's configuration (§6): the
// enumerated run options, read from a strict YAML file (unrecognized
// keys rejected, matching the teacher's workload spec loader) with Cobra
// flag overrides applied on top.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Server selects which kind of function endpoint a run targets.
type Server string

const (
	ServerTrace Server = "trace"
	ServerWimpy Server = "wimpy"
	ServerEmpty Server = "empty"
)

// SchedAlg selects the elastic scheduler's allocation policy, or "none"
// to disable the scheduler variant entirely.
type SchedAlg string

const (
	SchedAlgNone        SchedAlg = "none"
	SchedAlgElastic     SchedAlg = "elastic"
	SchedAlgElasticFlow SchedAlg = "elastic_flow"
	SchedAlgInfless     SchedAlg = "infless"
)

var validServers = map[Server]bool{ServerTrace: true, ServerWimpy: true, ServerEmpty: true}

var validSchedAlgs = map[SchedAlg]bool{
	SchedAlgNone: true, SchedAlgElastic: true, SchedAlgElasticFlow: true, SchedAlgInfless: true,
}

var validDistributions = map[string]bool{"exponential": true, "uniform": true, "equidistant": true}

// RunMode selects whether C2 replays the trace's raw invocation counts
// verbatim or scales them by FunctionMultiplier (§4.2 step 2).
type RunMode string

const (
	RunModeTrace     RunMode = "trace"
	RunModeSynthetic RunMode = "synthetic"
)

var validRunModes = map[RunMode]bool{RunModeTrace: true, RunModeSynthetic: true}

// RunConfig is the concrete struct backing "Run configuration" (§6).
type RunConfig struct {
	TracePath                   string   `yaml:"trace_path"`
	OutputPathPrefix            string   `yaml:"output_path_prefix"`
	Duration                    int      `yaml:"duration_minutes"`
	WarmupDuration              int      `yaml:"warmup_duration_minutes"`
	IATDistribution             string   `yaml:"iat_distribution"`
	Server                      Server   `yaml:"server"`
	Cluster                     int      `yaml:"cluster_nodes"`
	Seed                        int64    `yaml:"seed"`
	EnableMetricsScrapping      bool     `yaml:"enable_metrics_scrapping"`
	MetricScrapingPeriodSeconds int      `yaml:"metric_scraping_period_seconds"`
	GRPCTimeoutSeconds          int      `yaml:"grpc_timeout_seconds"`
	SingleSlot                  bool     `yaml:"single_slot"`
	SchedAlg                    SchedAlg `yaml:"sched_alg"`
	TotalGPU                    int      `yaml:"total_gpu"`
	Mode                        RunMode  `yaml:"mode"`
	FunctionMultiplier          int      `yaml:"function_multiplier"`

	Tag      string `yaml:"tag"`
	Scenario string `yaml:"scenario"`
}

// Default returns a RunConfig populated with the stock single-node,
// no-scheduler, trace-mode defaults.
func Default() RunConfig {
	return RunConfig{
		OutputPathPrefix:            ".",
		Duration:                    10,
		WarmupDuration:              1,
		IATDistribution:             "exponential",
		Server:                      ServerTrace,
		Cluster:                     1,
		MetricScrapingPeriodSeconds: 5,
		GRPCTimeoutSeconds:          10,
		SchedAlg:                    SchedAlgNone,
		TotalGPU:                    40,
		Mode:                        RunModeTrace,
		FunctionMultiplier:          1,
		Tag:                         "run",
		Scenario:                    "default",
	}
}

// Load reads a RunConfig from a strict YAML file, rejecting unrecognized
// keys. Fields absent from the file keep base's values, so callers
// typically pass Default() as base.
func Load(path string, base RunConfig) (RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("reading run config: %w", err)
	}
	cfg := base
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return base, fmt.Errorf("parsing run config: %w", err)
	}
	return cfg, nil
}

// Validate checks a RunConfig's enumerated fields and required paths.
func (c RunConfig) Validate() error {
	if c.TracePath == "" {
		return fmt.Errorf("trace_path is required")
	}
	if c.OutputPathPrefix == "" {
		return fmt.Errorf("output_path_prefix is required")
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration_minutes must be positive, got %d", c.Duration)
	}
	if c.WarmupDuration < 0 {
		return fmt.Errorf("warmup_duration_minutes must be >= 0, got %d", c.WarmupDuration)
	}
	if !validDistributions[c.IATDistribution] {
		return fmt.Errorf("unknown iat_distribution %q; valid: exponential, uniform, equidistant", c.IATDistribution)
	}
	if !validServers[c.Server] {
		return fmt.Errorf("unknown server %q; valid: trace, wimpy, empty", c.Server)
	}
	if c.Cluster <= 0 {
		return fmt.Errorf("cluster_nodes must be positive, got %d", c.Cluster)
	}
	if c.MetricScrapingPeriodSeconds <= 0 {
		return fmt.Errorf("metric_scraping_period_seconds must be positive, got %d", c.MetricScrapingPeriodSeconds)
	}
	if c.GRPCTimeoutSeconds <= 0 {
		return fmt.Errorf("grpc_timeout_seconds must be positive, got %d", c.GRPCTimeoutSeconds)
	}
	if !validSchedAlgs[c.SchedAlg] {
		return fmt.Errorf("unknown sched_alg %q; valid: none, elastic, elastic_flow, infless", c.SchedAlg)
	}
	if c.SchedAlg != SchedAlgNone && c.TotalGPU <= 0 {
		return fmt.Errorf("total_gpu must be positive when sched_alg is %q", c.SchedAlg)
	}
	if !validRunModes[c.Mode] {
		return fmt.Errorf("unknown mode %q; valid: trace, synthetic", c.Mode)
	}
	if c.FunctionMultiplier < 0 {
		return fmt.Errorf("function_multiplier must be >= 0, got %d", c.FunctionMultiplier)
	}
	return nil
}
