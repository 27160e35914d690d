// Package controller implements the ControlLoop: the top-level periodic
// scheduler that ties MetricsSource, FeatureEngineer, and DecisionEngine
// together and actuates the orchestrator, enforcing cooldown and keeping a
// bounded history for the interrupt-time summary.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pradeepsingh/spotvortex-hpa/internal/decision"
	"github.com/pradeepsingh/spotvortex-hpa/internal/features"
	"github.com/pradeepsingh/spotvortex-hpa/internal/metrics"
	"github.com/pradeepsingh/spotvortex-hpa/internal/ml"
)

// maxHistory bounds the scale and metrics histories.
const maxHistory = 100

// Orchestrator is the subset of the orchestrator boundary ControlLoop
// depends on.
type Orchestrator interface {
	GetReplicas(ctx context.Context) (int, error)
	PatchReplicas(ctx context.Context, replicas int) error
}

// MLStats is the subset of MLPredictor ControlLoop reads for its own
// self-instrumentation gauges. Optional: a nil MLStats simply skips those
// gauge updates.
type MLStats interface {
	Stats() ml.Stats
}

// FeatureSource is the subset of FeatureEngineer ControlLoop depends on.
type FeatureSource interface {
	Extract(ctx context.Context, namespace, appLabel string) (*features.FeatureVector, error)
}

// HealthChecker is the subset of MetricsSource ControlLoop depends on for
// its startup gate.
type HealthChecker interface {
	HealthCheck(ctx context.Context) bool
}

// scaleEvent is one entry in ScaleHistory.
type scaleEvent struct {
	Timestamp   time.Time
	NewReplicas int
}

// historyEntry is one entry in MetricsHistory.
type historyEntry struct {
	Timestamp       time.Time
	CurrentReplicas int
	Decision        decision.Decision
}

// Config configures a ControlLoop.
type Config struct {
	Namespace    string
	AppLabel     string
	Features     FeatureSource
	Decision     *decision.Engine
	Orchestrator Orchestrator
	Health       HealthChecker
	// MLPredictor is optional; when set, ControlLoop publishes its training
	// progress as self-instrumentation gauges each cycle.
	MLPredictor MLStats

	MinReplicas    int
	MaxReplicas    int
	CheckInterval  time.Duration
	CooldownPeriod time.Duration

	// DryRun computes and logs decisions but never actuates the
	// orchestrator or advances the cooldown clock.
	DryRun bool

	Logger *slog.Logger
}

// Loop is the ControlLoop: a single-threaded, ticker-driven cycle.
type Loop struct {
	cfg Config

	logger *slog.Logger
	now    func() time.Time

	lastScaleTime  *time.Time
	scaleHistory   []scaleEvent
	metricsHistory []historyEntry
}

// New builds a Loop. It does not start ticking until Run is called.
func New(cfg Config) (*Loop, error) {
	if cfg.Features == nil {
		return nil, fmt.Errorf("feature source is required")
	}
	if cfg.Decision == nil {
		return nil, fmt.Errorf("decision engine is required")
	}
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if cfg.CheckInterval <= 0 {
		return nil, fmt.Errorf("check interval must be positive")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("control loop configured",
		"namespace", cfg.Namespace,
		"deployment", cfg.AppLabel,
		"min_replicas", cfg.MinReplicas,
		"max_replicas", cfg.MaxReplicas,
		"check_interval", cfg.CheckInterval,
		"cooldown_period", cfg.CooldownPeriod,
		"dry_run", cfg.DryRun,
	)

	return &Loop{cfg: cfg, logger: logger, now: time.Now}, nil
}

// Run verifies the metrics backend is healthy, then ticks every
// CheckInterval until ctx is cancelled, printing a summary on exit. It
// returns a non-nil error only for the startup health check failure (exit
// code 1 at the CLI layer).
func (l *Loop) Run(ctx context.Context) error {
	if l.cfg.Health != nil && !l.cfg.Health.HealthCheck(ctx) {
		return fmt.Errorf("metrics backend health check failed")
	}

	ticker := time.NewTicker(l.cfg.CheckInterval)
	defer ticker.Stop()

	l.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			l.printSummary()
			return nil
		case <-ticker.C:
			l.runCycle(ctx)
		}
	}
}

// runCycle executes exactly one control loop iteration: read current
// replicas, extract features, decide, (maybe) actuate, append history.
// A failed replica read defaults the current count to 1 and skips
// actuation for this cycle; a failed feature extraction skips the whole
// cycle. Neither aborts the loop.
func (l *Loop) runCycle(ctx context.Context) {
	start := l.now()
	defer func() {
		metrics.ReconcileLoopDuration.Observe(l.now().Sub(start).Seconds())
	}()

	currentReplicas, err := l.cfg.Orchestrator.GetReplicas(ctx)
	readFailed := err != nil
	if readFailed {
		l.logger.Error("failed to read current replicas, defaulting to 1", "error", err)
		currentReplicas = 1
	}
	metrics.CurrentReplicas.Set(float64(currentReplicas))

	fv, err := l.cfg.Features.Extract(ctx, l.cfg.Namespace, l.cfg.AppLabel)
	if err != nil {
		l.logger.Warn("failed to extract features, skipping cycle", "error", err)
		return
	}

	d := l.cfg.Decision.Decide(fv, currentReplicas)
	l.recordDecisionMetrics(d)

	l.logger.Info("decision",
		"action", d.Action,
		"current_replicas", d.CurrentReplicas,
		"target_replicas", d.TargetReplicas,
		"total_score", d.Scores.TotalScore,
		"source", d.DecisionSource,
		"reason", d.Reason,
	)

	if d.Action != decision.ActionNoChange {
		if readFailed {
			l.logger.Warn("current replicas unknown, skipping actuation", "target_replicas", d.TargetReplicas)
		} else {
			l.actuate(ctx, d)
		}
	}

	l.appendHistory(historyEntry{Timestamp: start, CurrentReplicas: currentReplicas, Decision: d})
}

func (l *Loop) recordDecisionMetrics(d decision.Decision) {
	metrics.TargetReplicas.Set(float64(d.TargetReplicas))
	metrics.WeightedScore.Set(d.Scores.TotalScore)
	metrics.DecisionConfidence.Set(d.Confidence)
	metrics.ActionsTotal.WithLabelValues(string(d.Action)).Inc()
	metrics.MLConfidence.Set(d.MLConfidence)
	metrics.DecisionSourceTotal.WithLabelValues(decisionSourceLabel(d.DecisionSource)).Inc()

	if l.cfg.MLPredictor == nil {
		return
	}
	stats := l.cfg.MLPredictor.Stats()
	metrics.MLTrainingSamples.Set(float64(stats.Samples))
	trained := 0.0
	if stats.Trained {
		trained = 1.0
	}
	metrics.MLTrained.Set(trained)
}

// decisionSourceLabel collapses a Decision's free-text source string into
// the coarse rule/ml label the decision_source_total counter is keyed on.
func decisionSourceLabel(source string) string {
	if strings.HasPrefix(source, "ML") {
		return "ml"
	}
	return "rule"
}

// actuate applies the decision to the orchestrator, subject to dry-run and
// cooldown gating. Cooldown blocks actuation but not the decision itself,
// and lastScaleTime only advances on a successful patch.
func (l *Loop) actuate(ctx context.Context, d decision.Decision) {
	if l.cfg.DryRun {
		l.logger.Info("dry-run: suppressing actuation", "target_replicas", d.TargetReplicas)
		return
	}

	if l.lastScaleTime != nil {
		elapsed := l.now().Sub(*l.lastScaleTime)
		if elapsed < l.cfg.CooldownPeriod {
			l.logger.Info("cooldown active, skipping actuation",
				"elapsed", elapsed, "cooldown_period", l.cfg.CooldownPeriod)
			metrics.CooldownBlockedTotal.Inc()
			return
		}
	}

	if err := l.cfg.Orchestrator.PatchReplicas(ctx, d.TargetReplicas); err != nil {
		l.logger.Error("failed to patch replicas, will retry next cycle", "error", err)
		metrics.ScaleFailuresTotal.Inc()
		return
	}

	now := l.now()
	l.lastScaleTime = &now
	l.scaleHistory = append(l.scaleHistory, scaleEvent{Timestamp: now, NewReplicas: d.TargetReplicas})
	if len(l.scaleHistory) > maxHistory {
		l.scaleHistory = l.scaleHistory[len(l.scaleHistory)-maxHistory:]
	}
}

func (l *Loop) appendHistory(e historyEntry) {
	l.metricsHistory = append(l.metricsHistory, e)
	if len(l.metricsHistory) > maxHistory {
		l.metricsHistory = l.metricsHistory[len(l.metricsHistory)-maxHistory:]
	}
}

// printSummary logs the interrupt-time summary: total cycles, min/avg/max
// replicas observed, and the last five scale actions.
func (l *Loop) printSummary() {
	if len(l.metricsHistory) == 0 {
		l.logger.Info("shutdown summary: no cycles recorded")
		return
	}

	minReplicas, maxReplicas := l.metricsHistory[0].CurrentReplicas, l.metricsHistory[0].CurrentReplicas
	var sum int
	for _, e := range l.metricsHistory {
		if e.CurrentReplicas < minReplicas {
			minReplicas = e.CurrentReplicas
		}
		if e.CurrentReplicas > maxReplicas {
			maxReplicas = e.CurrentReplicas
		}
		sum += e.CurrentReplicas
	}
	avg := float64(sum) / float64(len(l.metricsHistory))

	lastN := l.scaleHistory
	if len(lastN) > 5 {
		lastN = lastN[len(lastN)-5:]
	}
	actions := make([]string, 0, len(lastN))
	for _, e := range lastN {
		actions = append(actions, fmt.Sprintf("%s -> %d replicas", e.Timestamp.Format(time.RFC3339), e.NewReplicas))
	}

	l.logger.Info("shutdown summary",
		"cycles", len(l.metricsHistory),
		"min_replicas", minReplicas,
		"avg_replicas", avg,
		"max_replicas", maxReplicas,
		"last_actions", actions,
	)
}
