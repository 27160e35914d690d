package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load should fall back to defaults when file is missing: %v", err)
	}
	if cfg.Prometheus.URL != defaultPrometheusURL {
		t.Fatalf("expected default prometheus URL, got %q", cfg.Prometheus.URL)
	}
	if cfg.Scaling.MinReplicas != defaultMinReplicas || cfg.Scaling.MaxReplicas != defaultMaxReplicas {
		t.Fatalf("expected default replica bounds, got %d-%d", cfg.Scaling.MinReplicas, cfg.Scaling.MaxReplicas)
	}
}

func TestLoad_PartialFileFillsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")

	content := `
target:
  namespace: payments
  deployment: checkout-api
scaling:
  min_replicas: 2
  max_replicas: 20
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load should succeed on a partial config: %v", err)
	}
	if cfg.Target.Namespace != "payments" || cfg.Target.Deployment != "checkout-api" {
		t.Fatalf("expected overridden target, got %+v", cfg.Target)
	}
	if cfg.Scaling.MinReplicas != 2 || cfg.Scaling.MaxReplicas != 20 {
		t.Fatalf("expected overridden replica bounds, got %d-%d", cfg.Scaling.MinReplicas, cfg.Scaling.MaxReplicas)
	}
	if cfg.Prometheus.URL != defaultPrometheusURL {
		t.Fatalf("expected default prometheus URL to survive partial override, got %q", cfg.Prometheus.URL)
	}
	if cfg.Scaling.CheckIntervalSeconds != defaultCheckIntervalSeconds {
		t.Fatalf("expected default check interval, got %d", cfg.Scaling.CheckIntervalSeconds)
	}
}

func TestValidate_RejectsBadWeights(t *testing.T) {
	cfg := Default()
	cfg.Weights.CPU = 0.9
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected Validate to reject weights that don't sum to 1.0")
	}
}

func TestLoad_NormalizesOverriddenWeights(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")

	content := `
weights:
  cpu: 0.8
  memory: 0.8
  network: 0.2
  cost: 0.2
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load should normalize, not reject, an overridden weight set: %v", err)
	}
	sum := cfg.Weights.CPU + cfg.Weights.Memory + cfg.Weights.Network + cfg.Weights.Cost
	if sum < 0.99 || sum > 1.01 {
		t.Fatalf("expected normalized weights to sum to 1.0, got %.3f", sum)
	}
	if cfg.Weights.CPU != cfg.Weights.Memory || cfg.Weights.Network != cfg.Weights.Cost {
		t.Fatalf("expected normalization to preserve relative weight ratios, got %+v", cfg.Weights)
	}
}

func TestValidate_RejectsMaxBelowMin(t *testing.T) {
	cfg := Default()
	cfg.Scaling.MinReplicas = 5
	cfg.Scaling.MaxReplicas = 2
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected Validate to reject max_replicas < min_replicas")
	}
}
