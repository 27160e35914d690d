// Package config provides configuration loading for the autoscaler.
// Missing optional fields and a missing file fall back to built-in
// defaults instead of failing validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all autoscaler configuration.
type Config struct {
	Prometheus PrometheusConfig `yaml:"prometheus"`
	Target     TargetConfig     `yaml:"target"`
	Scaling    ScalingConfig    `yaml:"scaling"`
	Weights    WeightsConfig    `yaml:"weights"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Model      ModelConfig      `yaml:"model"`
}

// PrometheusConfig configures the metrics source.
type PrometheusConfig struct {
	URL string `yaml:"url"`
}

// TargetConfig names the Deployment the control loop manages.
type TargetConfig struct {
	Namespace  string `yaml:"namespace"`
	Deployment string `yaml:"deployment"`
}

// ScalingConfig bounds and paces the control loop. Interval and cooldown
// are in seconds.
type ScalingConfig struct {
	MinReplicas           int `yaml:"min_replicas"`
	MaxReplicas           int `yaml:"max_replicas"`
	CheckIntervalSeconds  int `yaml:"check_interval"`
	CooldownPeriodSeconds int `yaml:"cooldown_period"`
}

// WeightsConfig is the four-axis RuleEngine score weighting. Must sum to 1.0.
type WeightsConfig struct {
	CPU     float64 `yaml:"cpu"`
	Memory  float64 `yaml:"memory"`
	Network float64 `yaml:"network"`
	Cost    float64 `yaml:"cost"`
}

// ThresholdsConfig is parsed for forward compatibility but currently unused:
// RuleEngine hardcodes its cpu/memory/network targets (see internal/rules).
// reserved, not yet wired into RuleEngine
type ThresholdsConfig struct {
	CPUTarget     float64 `yaml:"cpu_target"`
	MemoryTarget  float64 `yaml:"memory_target"`
	NetworkTarget float64 `yaml:"network_target"`
}

// ModelConfig configures where MLPredictor persists its trained state.
type ModelConfig struct {
	Path string `yaml:"path"`
}

const (
	defaultPrometheusURL         = "http://localhost:30090"
	defaultNamespace             = "default"
	defaultDeployment            = "tomcat-sample-app"
	defaultMinReplicas           = 1
	defaultMaxReplicas           = 10
	defaultCheckIntervalSeconds  = 30
	defaultCooldownPeriodSeconds = 60
	defaultWeightCPU             = 0.4
	defaultWeightMemory          = 0.3
	defaultWeightNetwork         = 0.2
	defaultWeightCost            = 0.1
	defaultCPUTarget             = 70.0
	defaultMemoryTarget          = 70.0
	defaultNetworkTarget         = 70.0
	defaultModelPath             = "models/scaler_model.json"
)

// Default returns the built-in configuration used when no config file is
// present.
func Default() *Config {
	return &Config{
		Prometheus: PrometheusConfig{URL: defaultPrometheusURL},
		Target: TargetConfig{
			Namespace:  defaultNamespace,
			Deployment: defaultDeployment,
		},
		Scaling: ScalingConfig{
			MinReplicas:           defaultMinReplicas,
			MaxReplicas:           defaultMaxReplicas,
			CheckIntervalSeconds:  defaultCheckIntervalSeconds,
			CooldownPeriodSeconds: defaultCooldownPeriodSeconds,
		},
		Weights: WeightsConfig{
			CPU:     defaultWeightCPU,
			Memory:  defaultWeightMemory,
			Network: defaultWeightNetwork,
			Cost:    defaultWeightCost,
		},
		Thresholds: ThresholdsConfig{
			CPUTarget:     defaultCPUTarget,
			MemoryTarget:  defaultMemoryTarget,
			NetworkTarget: defaultNetworkTarget,
		},
		Model: ModelConfig{Path: defaultModelPath},
	}
}

// Load reads configuration from a YAML file. If the file does not exist,
// the default configuration is returned instead of an error and the
// fallback is logged as a warning.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Warn("config file not found, using defaults", "path", path)
		cfg := Default()
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.applyDefaults()
	cfg.normalizeWeights()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-valued optional fields after unmarshaling,
// so a partial YAML file only overrides what it sets.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Prometheus.URL == "" {
		c.Prometheus.URL = d.Prometheus.URL
	}
	if c.Target.Namespace == "" {
		c.Target.Namespace = d.Target.Namespace
	}
	if c.Target.Deployment == "" {
		c.Target.Deployment = d.Target.Deployment
	}
	if c.Scaling.MinReplicas == 0 {
		c.Scaling.MinReplicas = d.Scaling.MinReplicas
	}
	if c.Scaling.MaxReplicas == 0 {
		c.Scaling.MaxReplicas = d.Scaling.MaxReplicas
	}
	if c.Scaling.CheckIntervalSeconds == 0 {
		c.Scaling.CheckIntervalSeconds = d.Scaling.CheckIntervalSeconds
	}
	if c.Scaling.CooldownPeriodSeconds == 0 {
		c.Scaling.CooldownPeriodSeconds = d.Scaling.CooldownPeriodSeconds
	}
	if c.Weights == (WeightsConfig{}) {
		c.Weights = d.Weights
	}
	if c.Thresholds == (ThresholdsConfig{}) {
		c.Thresholds = d.Thresholds
	}
	if c.Model.Path == "" {
		c.Model.Path = d.Model.Path
	}
}

// normalizeWeights rescales a user-overridden weight set so it sums to 1.0,
// preserving the relative ratios. A zero-sum override is left untouched and
// caught by Validate instead, since there is nothing sensible to normalize.
func (c *Config) normalizeWeights() {
	sum := c.Weights.CPU + c.Weights.Memory + c.Weights.Network + c.Weights.Cost
	if sum <= 0 || (sum > 0.99 && sum < 1.01) {
		return
	}
	c.Weights.CPU /= sum
	c.Weights.Memory /= sum
	c.Weights.Network /= sum
	c.Weights.Cost /= sum
}

// Validate checks the config is internally consistent.
func (c *Config) Validate() error {
	if c.Prometheus.URL == "" {
		return fmt.Errorf("prometheus.url is required")
	}
	if c.Target.Namespace == "" {
		return fmt.Errorf("target.namespace is required")
	}
	if c.Target.Deployment == "" {
		return fmt.Errorf("target.deployment is required")
	}
	if c.Scaling.MinReplicas < 1 {
		return fmt.Errorf("scaling.min_replicas must be >= 1")
	}
	if c.Scaling.MaxReplicas < c.Scaling.MinReplicas {
		return fmt.Errorf("scaling.max_replicas must be >= scaling.min_replicas")
	}
	if c.Scaling.CheckIntervalSeconds < 1 {
		return fmt.Errorf("scaling.check_interval must be >= 1")
	}
	if c.Scaling.CooldownPeriodSeconds < 0 {
		return fmt.Errorf("scaling.cooldown_period must be >= 0")
	}
	sum := c.Weights.CPU + c.Weights.Memory + c.Weights.Network + c.Weights.Cost
	if sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("weights must sum to 1.0, got %.3f", sum)
	}
	return nil
}

// CheckInterval returns the reconcile interval as a duration.
func (c *ScalingConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

// CooldownPeriod returns the post-scale cooldown as a duration.
func (c *ScalingConfig) CooldownPeriod() time.Duration {
	return time.Duration(c.CooldownPeriodSeconds) * time.Second
}
