package features

import (
	"context"
	"testing"
	"time"

	"github.com/pradeepsingh/spotvortex-hpa/internal/metrics"
)

type fakeSource struct {
	podCount   int
	cpu        metrics.CPUUsage
	mem        metrics.MemoryUsage
	net        metrics.NetworkIO
	cpuHistory []metrics.Sample
	memHistory []metrics.Sample
	err        error
}

func (f *fakeSource) PodCount(ctx context.Context, namespace, appLabel string) (int, error) {
	return f.podCount, f.err
}

func (f *fakeSource) CPUUsage(ctx context.Context, namespace, appLabel string) (metrics.CPUUsage, error) {
	return f.cpu, f.err
}

func (f *fakeSource) MemoryUsage(ctx context.Context, namespace, appLabel string) (metrics.MemoryUsage, error) {
	return f.mem, f.err
}

func (f *fakeSource) NetworkIO(ctx context.Context, namespace, appLabel string) (metrics.NetworkIO, error) {
	return f.net, f.err
}

func (f *fakeSource) HistoricalCPU(ctx context.Context, namespace, appLabel string, durationMinutes int) ([]metrics.Sample, error) {
	return f.cpuHistory, nil
}

func (f *fakeSource) HistoricalMemory(ctx context.Context, namespace, appLabel string, durationMinutes int) ([]metrics.Sample, error) {
	return f.memHistory, nil
}

func risingSamples(n int, start float64, step float64) []metrics.Sample {
	samples := make([]metrics.Sample, n)
	now := time.Now()
	for i := 0; i < n; i++ {
		samples[i] = metrics.Sample{
			Timestamp: now.Add(time.Duration(i) * 15 * time.Second),
			Value:     start + step*float64(i),
		}
	}
	return samples
}

func TestExtract_PropagatesCurrentMetricFailure(t *testing.T) {
	src := &fakeSource{err: errBoom}
	eng := New(src)

	if _, err := eng.Extract(context.Background(), "default", "checkout"); err == nil {
		t.Fatal("expected error when PodCount fails")
	}
}

func TestExtract_InsufficientHistoryDefaultsTrendAndPattern(t *testing.T) {
	src := &fakeSource{
		podCount:   2,
		cpu:        metrics.CPUUsage{TotalMillicores: 400, PerPodMillicores: 200},
		mem:        metrics.MemoryUsage{TotalMB: 256, PerPodMB: 128},
		net:        metrics.NetworkIO{InMbps: 1, OutMbps: 2},
		cpuHistory: risingSamples(3, 100, 0),
		memHistory: nil,
	}
	eng := New(src)

	fv, err := eng.Extract(context.Background(), "default", "checkout")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if fv.CPUPattern.Pattern != "unknown" {
		t.Fatalf("expected unknown pattern with <10 samples, got %q", fv.CPUPattern.Pattern)
	}
	if fv.CPUTrend.Trend != 0 {
		t.Fatalf("expected zero trend with insufficient history, got %f", fv.CPUTrend.Trend)
	}
	if fv.CPUHistorical != (MetricStats{}) {
		t.Fatalf("expected zeroed rolling stats with <10 samples, got %+v", fv.CPUHistorical)
	}
	if fv.HourOfDay < 0 || fv.HourOfDay > 23 {
		t.Fatalf("expected real hour-of-day even on the fallback path, got %d", fv.HourOfDay)
	}
}

func TestExtract_DetectsIncreasingTrend(t *testing.T) {
	src := &fakeSource{
		podCount:   2,
		cpu:        metrics.CPUUsage{TotalMillicores: 400, PerPodMillicores: 200},
		mem:        metrics.MemoryUsage{TotalMB: 256, PerPodMB: 128},
		net:        metrics.NetworkIO{InMbps: 1, OutMbps: 2},
		cpuHistory: risingSamples(30, 100, 10),
	}
	eng := New(src)

	fv, err := eng.Extract(context.Background(), "default", "checkout")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if fv.CPUTrend.Trend <= 0 {
		t.Fatalf("expected positive CPU trend slope, got %f", fv.CPUTrend.Trend)
	}
	if fv.CPUPattern.Pattern != "increasing" {
		t.Fatalf("expected increasing pattern, got %q", fv.CPUPattern.Pattern)
	}
	if fv.CPUTrend.TrendStrength < 0.9 {
		t.Fatalf("expected strong R^2 for a perfectly linear series, got %f", fv.CPUTrend.TrendStrength)
	}
}

func TestExtract_DetectsStablePattern(t *testing.T) {
	src := &fakeSource{
		podCount:   2,
		cpu:        metrics.CPUUsage{TotalMillicores: 400, PerPodMillicores: 200},
		mem:        metrics.MemoryUsage{TotalMB: 256, PerPodMB: 128},
		net:        metrics.NetworkIO{InMbps: 1, OutMbps: 2},
		cpuHistory: risingSamples(30, 100, 0),
	}
	eng := New(src)

	fv, err := eng.Extract(context.Background(), "default", "checkout")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if fv.CPUPattern.Pattern != "stable" {
		t.Fatalf("expected stable pattern for a flat series, got %q", fv.CPUPattern.Pattern)
	}
}

func TestPopulateTimeFeatures_CyclicEncodingMatchesHour(t *testing.T) {
	src := &fakeSource{podCount: 1}
	eng := New(src)
	fixed := time.Date(2026, 7, 29, 14, 0, 0, 0, time.UTC) // Wednesday, peak hour
	eng.now = func() time.Time { return fixed }

	fv := &FeatureVector{}
	eng.populateTimeFeatures(fv)

	if fv.HourOfDay != 14 {
		t.Fatalf("expected hour 14, got %d", fv.HourOfDay)
	}
	if fv.IsPeakHour != 1 {
		t.Fatal("expected 14:00 to be flagged as a peak hour")
	}
	if fv.IsWeekend != 0 {
		t.Fatal("expected Wednesday to not be a weekend")
	}
	if fv.IsBusinessHours != 1 {
		t.Fatal("expected 14:00 on a Wednesday to be business hours")
	}
}

var errBoom = &extractError{"boom"}

type extractError struct{ msg string }

func (e *extractError) Error() string { return e.msg }
