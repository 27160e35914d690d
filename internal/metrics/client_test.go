package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

type QueryFunc func(query string) (model.Value, error)

// SmartMockAPI implements v1.API, routing Query calls through QueryFn by
// inspecting the PromQL text, so one mock can serve every metric.
type SmartMockAPI struct {
	v1.API
	QueryFn     QueryFunc
	RangeResult model.Matrix
	RangeErr    error
}

func (m *SmartMockAPI) Query(ctx context.Context, query string, ts time.Time, opts ...v1.Option) (model.Value, v1.Warnings, error) {
	val, err := m.QueryFn(query)
	return val, nil, err
}

func (m *SmartMockAPI) QueryRange(ctx context.Context, query string, r v1.Range, opts ...v1.Option) (model.Value, v1.Warnings, error) {
	return m.RangeResult, nil, m.RangeErr
}

func TestNewClient_RequiresURLOrAPI(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Fatal("expected error when neither PrometheusURL nor API is set")
	}
	if _, err := NewClient(ClientConfig{API: &SmartMockAPI{}}); err != nil {
		t.Fatalf("expected injected API to be accepted: %v", err)
	}
}

func TestPodCount(t *testing.T) {
	mock := &SmartMockAPI{
		QueryFn: func(query string) (model.Value, error) {
			if !strings.Contains(query, "kube_pod_info") {
				return nil, fmt.Errorf("unexpected query: %s", query)
			}
			return model.Vector{{Value: 3}}, nil
		},
	}
	c := &Client{api: mock, logger: slog.Default()}

	got, err := c.PodCount(context.Background(), "default", "checkout")
	if err != nil {
		t.Fatalf("PodCount failed: %v", err)
	}
	if got != 3 {
		t.Fatalf("expected 3 pods, got %d", got)
	}
}

func TestCPUUsage_PerPodDividesTotal(t *testing.T) {
	mock := &SmartMockAPI{
		QueryFn: func(query string) (model.Value, error) {
			switch {
			case strings.Contains(query, "container_cpu_usage_seconds_total"):
				return model.Vector{{Value: 1000}}, nil
			case strings.Contains(query, "kube_pod_info"):
				return model.Vector{{Value: 4}}, nil
			}
			return nil, fmt.Errorf("unexpected query: %s", query)
		},
	}
	c := &Client{api: mock, logger: slog.Default()}

	usage, err := c.CPUUsage(context.Background(), "default", "checkout")
	if err != nil {
		t.Fatalf("CPUUsage failed: %v", err)
	}
	if usage.TotalMillicores != 1000 {
		t.Fatalf("expected total 1000m, got %f", usage.TotalMillicores)
	}
	if usage.PerPodMillicores != 250 {
		t.Fatalf("expected per-pod 250m, got %f", usage.PerPodMillicores)
	}
}

func TestCPUUsage_ZeroPodsFallsBackToTotal(t *testing.T) {
	mock := &SmartMockAPI{
		QueryFn: func(query string) (model.Value, error) {
			if strings.Contains(query, "kube_pod_info") {
				return model.Vector{}, nil
			}
			return model.Vector{{Value: 500}}, nil
		},
	}
	c := &Client{api: mock, logger: slog.Default()}

	usage, err := c.CPUUsage(context.Background(), "default", "checkout")
	if err != nil {
		t.Fatalf("CPUUsage failed: %v", err)
	}
	if usage.PerPodMillicores != 500 {
		t.Fatalf("expected per-pod to fall back to total when pod count is 0, got %f", usage.PerPodMillicores)
	}
}

func TestMemoryUsage_ConvertsToMB(t *testing.T) {
	mock := &SmartMockAPI{
		QueryFn: func(query string) (model.Value, error) {
			switch {
			case strings.Contains(query, "container_memory_working_set_bytes"):
				return model.Vector{{Value: 2 * 1024 * 1024}}, nil
			case strings.Contains(query, "kube_pod_info"):
				return model.Vector{{Value: 1}}, nil
			}
			return nil, fmt.Errorf("unexpected query: %s", query)
		},
	}
	c := &Client{api: mock, logger: slog.Default()}

	usage, err := c.MemoryUsage(context.Background(), "default", "checkout")
	if err != nil {
		t.Fatalf("MemoryUsage failed: %v", err)
	}
	if usage.TotalMB != 2 {
		t.Fatalf("expected 2 MB total, got %f", usage.TotalMB)
	}
}

func TestNetworkIO_IgnoresNamespaceAndAppLabel(t *testing.T) {
	mock := &SmartMockAPI{
		QueryFn: func(query string) (model.Value, error) {
			if strings.Contains(query, "namespace=") {
				t.Errorf("network query should not be namespace-scoped: %s", query)
			}
			switch {
			case strings.Contains(query, "receive"):
				return model.Vector{{Value: 1024 * 1024}}, nil
			case strings.Contains(query, "transmit"):
				return model.Vector{{Value: 512 * 1024}}, nil
			}
			return nil, fmt.Errorf("unexpected query: %s", query)
		},
	}
	c := &Client{api: mock, logger: slog.Default()}

	io, err := c.NetworkIO(context.Background(), "default", "checkout")
	if err != nil {
		t.Fatalf("NetworkIO failed: %v", err)
	}
	if io.InMbps <= 0 || io.OutMbps <= 0 {
		t.Fatalf("expected positive Mbps, got in=%f out=%f", io.InMbps, io.OutMbps)
	}
}

func TestHistoricalCPU_ReturnsSamples(t *testing.T) {
	now := time.Now()
	mock := &SmartMockAPI{
		RangeResult: model.Matrix{
			{
				Values: []model.SamplePair{
					{Timestamp: model.TimeFromUnixNano(now.UnixNano()), Value: 100},
					{Timestamp: model.TimeFromUnixNano(now.Add(15 * time.Second).UnixNano()), Value: 110},
				},
			},
		},
	}
	c := &Client{api: mock, logger: slog.Default()}

	samples, err := c.HistoricalCPU(context.Background(), "default", "checkout", 15)
	if err != nil {
		t.Fatalf("HistoricalCPU failed: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if samples[1].Value != 110 {
		t.Fatalf("expected second sample value 110, got %f", samples[1].Value)
	}
}

func TestHistoricalMemory_EmptyMatrixReturnsNil(t *testing.T) {
	mock := &SmartMockAPI{RangeResult: model.Matrix{}}
	c := &Client{api: mock, logger: slog.Default()}

	samples, err := c.HistoricalMemory(context.Background(), "default", "checkout", 15)
	if err != nil {
		t.Fatalf("HistoricalMemory failed: %v", err)
	}
	if samples != nil {
		t.Fatalf("expected nil samples for empty matrix, got %v", samples)
	}
}
