// Package metrics implements the MetricsSource boundary against a
// Prometheus server, plus self-instrumentation for the control loop.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

const (
	instantQueryTimeout = 10 * time.Second
	rangeQueryTimeout   = 30 * time.Second
	healthCheckTimeout  = 5 * time.Second
)

// Sample is a single (timestamp, value) pair from a range query, used to
// build FeatureEngineer's rolling-window history.
type Sample struct {
	Timestamp time.Time
	Value     float64
}

// CPUUsage is the result of the cpu_usage query.
type CPUUsage struct {
	TotalMillicores  float64
	PerPodMillicores float64
}

// MemoryUsage is the result of the memory_usage query.
type MemoryUsage struct {
	TotalBytes      float64
	PerPodBytes     float64
	TotalMB         float64
	PerPodMB        float64
}

// NetworkIO is the result of the network_io query. The underlying PromQL is
// cluster-wide (no namespace/pod label selector).
type NetworkIO struct {
	InBytesPerSec  float64
	OutBytesPerSec float64
	InMbps         float64
	OutMbps        float64
}

// Client queries Prometheus for the metrics MetricsSource needs.
type Client struct {
	api    v1.API
	url    string
	logger *slog.Logger
}

// ClientConfig configures a Client.
type ClientConfig struct {
	PrometheusURL string
	Logger        *slog.Logger
	// API lets tests inject a fake v1.API instead of dialing a real server.
	API v1.API
}

// NewClient builds a Client against the given Prometheus URL. Tests may
// inject cfg.API directly instead, in which case PrometheusURL is only
// needed for HealthCheck's liveness probe.
func NewClient(cfg ClientConfig) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	v1api := cfg.API
	if v1api == nil {
		if cfg.PrometheusURL == "" {
			return nil, fmt.Errorf("PrometheusURL is required")
		}
		c, err := api.NewClient(api.Config{Address: cfg.PrometheusURL})
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus client: %w", err)
		}
		v1api = v1.NewAPI(c)
	}

	return &Client{api: v1api, url: cfg.PrometheusURL, logger: logger}, nil
}

// PodCount returns the number of running pods matching the deployment's
// name prefix, via `count(kube_pod_info{namespace=..., pod=~"<app>.*"})`.
func (c *Client) PodCount(ctx context.Context, namespace, appLabel string) (int, error) {
	query := fmt.Sprintf(`count(kube_pod_info{namespace=%q, pod=~%q})`, namespace, appLabel+".*")
	result, err := c.instantQuery(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("pod count query: %w", err)
	}
	v, ok := firstValue(result)
	if !ok {
		return 0, nil
	}
	return int(v), nil
}

// CPUUsage returns total and per-pod CPU usage in millicores.
func (c *Client) CPUUsage(ctx context.Context, namespace, appLabel string) (CPUUsage, error) {
	totalQuery := fmt.Sprintf(
		`sum(rate(container_cpu_usage_seconds_total{namespace=%q,pod=~%q}[1m])) * 1000`,
		namespace, appLabel+".*")

	total, err := c.instantQuery(ctx, totalQuery)
	if err != nil {
		return CPUUsage{}, fmt.Errorf("cpu total query: %w", err)
	}
	totalVal, _ := firstValue(total)

	podCount, err := c.PodCount(ctx, namespace, appLabel)
	if err != nil {
		return CPUUsage{}, err
	}

	usage := CPUUsage{TotalMillicores: totalVal}
	if podCount > 0 {
		usage.PerPodMillicores = totalVal / float64(podCount)
	} else {
		usage.PerPodMillicores = totalVal
	}
	return usage, nil
}

// MemoryUsage returns total and per-pod working-set memory.
func (c *Client) MemoryUsage(ctx context.Context, namespace, appLabel string) (MemoryUsage, error) {
	totalQuery := fmt.Sprintf(
		`sum(container_memory_working_set_bytes{namespace=%q,pod=~%q})`,
		namespace, appLabel+".*")

	total, err := c.instantQuery(ctx, totalQuery)
	if err != nil {
		return MemoryUsage{}, fmt.Errorf("memory total query: %w", err)
	}
	totalVal, _ := firstValue(total)

	podCount, err := c.PodCount(ctx, namespace, appLabel)
	if err != nil {
		return MemoryUsage{}, err
	}

	usage := MemoryUsage{TotalBytes: totalVal}
	if podCount > 0 {
		usage.PerPodBytes = totalVal / float64(podCount)
	} else {
		usage.PerPodBytes = totalVal
	}
	usage.TotalMB = usage.TotalBytes / (1024 * 1024)
	usage.PerPodMB = usage.PerPodBytes / (1024 * 1024)
	return usage, nil
}

// NetworkIO returns cluster-wide network receive/transmit rates. The PromQL
// deliberately ignores namespace/appLabel; both arguments are accepted to
// keep the metrics-source interface symmetric. Callers wanting a
// per-workload signal must redesign the query.
func (c *Client) NetworkIO(ctx context.Context, _, _ string) (NetworkIO, error) {
	rxQuery := `sum(rate(container_network_receive_bytes_total{job="kubernetes-cadvisor"}[1m]))`
	txQuery := `sum(rate(container_network_transmit_bytes_total{job="kubernetes-cadvisor"}[1m]))`

	rx, err := c.instantQuery(ctx, rxQuery)
	if err != nil {
		return NetworkIO{}, fmt.Errorf("network rx query: %w", err)
	}
	tx, err := c.instantQuery(ctx, txQuery)
	if err != nil {
		return NetworkIO{}, fmt.Errorf("network tx query: %w", err)
	}

	rxVal, _ := firstValue(rx)
	txVal, _ := firstValue(tx)

	return NetworkIO{
		InBytesPerSec:  rxVal,
		OutBytesPerSec: txVal,
		InMbps:         (rxVal * 8) / (1024 * 1024),
		OutMbps:        (txVal * 8) / (1024 * 1024),
	}, nil
}

// HistoricalCPU returns CPU usage samples over the last durationMinutes.
func (c *Client) HistoricalCPU(ctx context.Context, namespace, appLabel string, durationMinutes int) ([]Sample, error) {
	query := fmt.Sprintf(
		`sum(rate(container_cpu_usage_seconds_total{namespace=%q,pod=~%q}[1m])) * 1000`,
		namespace, appLabel+".*")
	return c.historicalRange(ctx, query, durationMinutes)
}

// HistoricalMemory returns memory working-set samples over the last
// durationMinutes, mirroring HistoricalCPU's range query.
func (c *Client) HistoricalMemory(ctx context.Context, namespace, appLabel string, durationMinutes int) ([]Sample, error) {
	query := fmt.Sprintf(
		`sum(container_memory_working_set_bytes{namespace=%q,pod=~%q})`,
		namespace, appLabel+".*")
	return c.historicalRange(ctx, query, durationMinutes)
}

func (c *Client) historicalRange(ctx context.Context, query string, durationMinutes int) ([]Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, rangeQueryTimeout)
	defer cancel()

	end := time.Now()
	start := end.Add(-time.Duration(durationMinutes) * time.Minute)

	result, warnings, err := c.api.QueryRange(ctx, query, v1.Range{
		Start: start,
		End:   end,
		Step:  15 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	if len(warnings) > 0 {
		c.logger.Warn("prometheus range query warnings", "warnings", warnings)
	}

	matrix, ok := result.(model.Matrix)
	if !ok || len(matrix) == 0 {
		return nil, nil
	}

	samples := make([]Sample, 0, len(matrix[0].Values))
	for _, v := range matrix[0].Values {
		samples = append(samples, Sample{
			Timestamp: v.Timestamp.Time(),
			Value:     float64(v.Value),
		})
	}
	return samples, nil
}

// HealthCheck reports whether Prometheus is reachable via its /-/healthy
// endpoint.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/-/healthy", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) instantQuery(ctx context.Context, query string) (model.Value, error) {
	ctx, cancel := context.WithTimeout(ctx, instantQueryTimeout)
	defer cancel()

	result, warnings, err := c.api.Query(ctx, query, time.Now())
	if err != nil {
		return nil, err
	}
	if len(warnings) > 0 {
		c.logger.Warn("prometheus query warnings", "warnings", warnings)
	}
	return result, nil
}

func firstValue(v model.Value) (float64, bool) {
	switch res := v.(type) {
	case model.Vector:
		if len(res) == 0 {
			return 0, false
		}
		return float64(res[0].Value), true
	case *model.Scalar:
		return float64(res.Value), true
	default:
		return 0, false
	}
}
