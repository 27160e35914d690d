// Package features implements the FeatureEngineer: it turns raw
// MetricsSource readings into the feature vector RuleEngine and MLPredictor
// consume, including rolling-window statistics, OLS trend detection, and
// cyclic time encoding.
package features

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/pradeepsingh/spotvortex-hpa/internal/metrics"
)

// minHistorySamples is the minimum number of historical points required
// before rolling/trend/pattern features are computed; below this, those
// groups default to zero values (time features are always computed for
// real).
const minHistorySamples = 10

// trendWindow caps how many trailing historical points feed the OLS fit
// and pattern comparison.
const trendWindow = 60

// Source is the subset of MetricsSource FeatureEngineer depends on.
type Source interface {
	PodCount(ctx context.Context, namespace, appLabel string) (int, error)
	CPUUsage(ctx context.Context, namespace, appLabel string) (metrics.CPUUsage, error)
	MemoryUsage(ctx context.Context, namespace, appLabel string) (metrics.MemoryUsage, error)
	NetworkIO(ctx context.Context, namespace, appLabel string) (metrics.NetworkIO, error)
	HistoricalCPU(ctx context.Context, namespace, appLabel string, durationMinutes int) ([]metrics.Sample, error)
	HistoricalMemory(ctx context.Context, namespace, appLabel string, durationMinutes int) ([]metrics.Sample, error)
}

// MetricStats is the rolling-window summary for one metric (CPU or memory).
type MetricStats struct {
	Avg15m     float64
	Avg1h      float64
	Max15m     float64
	Min15m     float64
	Std15m     float64
	Volatility float64
}

// TrendStats is the OLS trend summary for one metric.
type TrendStats struct {
	Trend         float64 // OLS slope, per sample
	TrendStrength float64 // R^2 of the fit
	RateOfChange  float64
}

// PatternStats labels the recent shape of one metric's history.
type PatternStats struct {
	Pattern      string // "increasing", "decreasing", "stable", "unknown"
	IsIncreasing int
	IsStable     int
	IsDecreasing int
}

// FeatureVector is the full feature set handed to RuleEngine and MLPredictor.
type FeatureVector struct {
	PodCount int

	CPUCurrent    float64
	CPUTotal      float64
	MemoryCurrent float64
	MemoryTotal   float64

	NetworkInRate  float64
	NetworkOutRate float64
	NetworkTotal   float64

	CPUPerPodRatio    float64
	MemoryPerPodRatio float64

	CPUHistorical    MetricStats
	MemoryHistorical MetricStats

	CPUTrend    TrendStats
	MemoryTrend TrendStats

	CPUPattern    PatternStats
	MemoryPattern PatternStats

	HourOfDay       int
	DayOfWeek       int
	IsBusinessHours int
	IsWeekend       int
	IsPeakHour      int
	HourSin         float64
	HourCos         float64
	DaySin          float64
	DayCos          float64
}

var peakHours = map[int]bool{9: true, 10: true, 11: true, 14: true, 15: true, 16: true}

// Engineer extracts FeatureVectors from a metrics Source.
type Engineer struct {
	source Source
	logger *slog.Logger
	now    func() time.Time
}

// New builds an Engineer backed by source.
func New(source Source) *Engineer {
	return &Engineer{source: source, logger: slog.Default(), now: time.Now}
}

// Extract fetches current and historical metrics and builds a FeatureVector.
// It returns an error only when the current-metric queries themselves fail;
// insufficient history degrades to default trend/pattern/historical groups
// rather than failing the whole cycle.
func (e *Engineer) Extract(ctx context.Context, namespace, appLabel string) (*FeatureVector, error) {
	podCount, err := e.source.PodCount(ctx, namespace, appLabel)
	if err != nil {
		return nil, fmt.Errorf("pod count: %w", err)
	}
	cpu, err := e.source.CPUUsage(ctx, namespace, appLabel)
	if err != nil {
		return nil, fmt.Errorf("cpu usage: %w", err)
	}
	mem, err := e.source.MemoryUsage(ctx, namespace, appLabel)
	if err != nil {
		return nil, fmt.Errorf("memory usage: %w", err)
	}
	net, err := e.source.NetworkIO(ctx, namespace, appLabel)
	if err != nil {
		return nil, fmt.Errorf("network io: %w", err)
	}

	fv := &FeatureVector{
		PodCount:      podCount,
		CPUCurrent:    cpu.PerPodMillicores,
		CPUTotal:      cpu.TotalMillicores,
		MemoryCurrent: mem.PerPodMB,
		MemoryTotal:   mem.TotalMB,

		NetworkInRate:  net.InMbps,
		NetworkOutRate: net.OutMbps,
		NetworkTotal:   net.InMbps + net.OutMbps,
	}
	if podCount > 0 {
		fv.CPUPerPodRatio = fv.CPUCurrent / 500.0
		fv.MemoryPerPodRatio = fv.MemoryCurrent / 512.0
	}

	e.populateTimeFeatures(fv)

	cpuHistory, err := e.source.HistoricalCPU(ctx, namespace, appLabel, 15)
	if err != nil {
		e.logger.Warn("cpu history fetch failed, defaulting rolling features", "error", err)
		cpuHistory = nil
	}
	memHistory, err := e.source.HistoricalMemory(ctx, namespace, appLabel, 15)
	if err != nil {
		e.logger.Warn("memory history fetch failed, defaulting rolling features", "error", err)
		memHistory = nil
	}

	fv.CPUHistorical = historicalStats(cpuHistory)
	fv.MemoryHistorical = historicalStats(memHistory)
	fv.CPUTrend, fv.CPUPattern = trendAndPattern(cpuHistory)
	fv.MemoryTrend, fv.MemoryPattern = trendAndPattern(memHistory)

	return fv, nil
}

func (e *Engineer) populateTimeFeatures(fv *FeatureVector) {
	now := e.now()
	hour := now.Hour()
	weekday := int(now.Weekday())
	// Monday=0..Sunday=6, so the weekend check is a single >= 5 comparison.
	isoWeekday := (weekday + 6) % 7

	fv.HourOfDay = hour
	fv.DayOfWeek = isoWeekday
	fv.IsWeekend = 0
	if isoWeekday >= 5 {
		fv.IsWeekend = 1
	}
	fv.IsBusinessHours = 0
	if hour >= 9 && hour < 17 && isoWeekday < 5 {
		fv.IsBusinessHours = 1
	}
	fv.IsPeakHour = 0
	if peakHours[hour] {
		fv.IsPeakHour = 1
	}
	fv.HourSin = math.Sin(2 * math.Pi * float64(hour) / 24.0)
	fv.HourCos = math.Cos(2 * math.Pi * float64(hour) / 24.0)
	fv.DaySin = math.Sin(2 * math.Pi * float64(isoWeekday) / 7.0)
	fv.DayCos = math.Cos(2 * math.Pi * float64(isoWeekday) / 7.0)
}

func toValues(samples []metrics.Sample) []float64 {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}
	return values
}

func historicalStats(samples []metrics.Sample) MetricStats {
	if len(samples) < minHistorySamples {
		return MetricStats{}
	}
	values := toValues(samples)

	avg15m := stat.Mean(values, nil)
	std15m := stat.StdDev(values, nil)
	maxV, minV := values[0], values[0]
	for _, v := range values {
		if v > maxV {
			maxV = v
		}
		if v < minV {
			minV = v
		}
	}

	avg1h := avg15m
	if len(values) >= 240 {
		avg1h = stat.Mean(values[len(values)-240:], nil)
	}

	var volatility float64
	if avg15m > 0 {
		volatility = std15m / avg15m
	}

	return MetricStats{
		Avg15m:     avg15m,
		Avg1h:      avg1h,
		Max15m:     maxV,
		Min15m:     minV,
		Std15m:     std15m,
		Volatility: volatility,
	}
}

func trendAndPattern(samples []metrics.Sample) (TrendStats, PatternStats) {
	if len(samples) < minHistorySamples {
		return TrendStats{}, PatternStats{Pattern: "unknown"}
	}

	values := toValues(samples)
	if len(values) > trendWindow {
		values = values[len(values)-trendWindow:]
	}

	trend := olsTrend(values)

	var rateOfChange float64
	if len(values) >= 10 {
		rateOfChange = values[len(values)-1] - values[len(values)-10]
	} else {
		rateOfChange = values[len(values)-1] - values[0]
	}
	trend.RateOfChange = rateOfChange

	pattern := patternLabel(values)

	return trend, pattern
}

// olsTrend fits a degree-1 ordinary-least-squares line to values against
// their sample index and reports the slope plus R^2. The slope is per
// sample, not per second.
func olsTrend(values []float64) TrendStats {
	n := len(values)
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}

	intercept, slope := stat.LinearRegression(xs, values, nil, false)

	var rSquared float64
	if stat.Variance(values, nil) > 0 {
		estimates := make([]float64, n)
		for i, x := range xs {
			estimates[i] = intercept + slope*x
		}
		rSquared = stat.RSquaredFrom(estimates, values, nil)
	}

	return TrendStats{Trend: slope, TrendStrength: rSquared}
}

func patternLabel(values []float64) PatternStats {
	if len(values) < 3 {
		return PatternStats{Pattern: "stable", IsStable: 1}
	}

	window := 20
	if window > len(values) {
		window = len(values)
	}
	recentAvg := stat.Mean(values[len(values)-window:], nil)
	olderAvg := stat.Mean(values[:window], nil)

	var changePct float64
	if olderAvg > 0 {
		changePct = (recentAvg - olderAvg) / olderAvg * 100
	}

	switch {
	case changePct > 10:
		return PatternStats{Pattern: "increasing", IsIncreasing: 1}
	case changePct < -10:
		return PatternStats{Pattern: "decreasing", IsDecreasing: 1}
	default:
		return PatternStats{Pattern: "stable", IsStable: 1}
	}
}
