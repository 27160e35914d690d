package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CurrentReplicas tracks the Deployment's replica count observed at the
	// start of each cycle.
	CurrentReplicas = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "spotvortex",
			Name:      "current_replicas",
			Help:      "Replica count observed at the start of the current cycle",
		},
	)

	// TargetReplicas tracks the decided target replica count.
	TargetReplicas = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "spotvortex",
			Name:      "target_replicas",
			Help:      "Replica count the decision engine chose for the current cycle",
		},
	)

	// WeightedScore tracks DecisionEngine's total_score.
	WeightedScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "spotvortex",
			Name:      "weighted_score",
			Help:      "Weighted multi-axis load score (0-100)",
		},
	)

	// DecisionConfidence tracks the confidence of the last decision.
	DecisionConfidence = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "spotvortex",
			Name:      "decision_confidence",
			Help:      "Confidence of the most recent scaling decision (0-1)",
		},
	)

	// ActionsTotal counts scale actions by kind.
	// action=scale_up|scale_down|no_change
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spotvortex",
			Name:      "actions_total",
			Help:      "Total scaling decisions grouped by action",
		},
		[]string{"action"},
	)

	// DecisionSourceTotal counts decisions by which component chose the target.
	// source=rule|ml
	DecisionSourceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spotvortex",
			Name:      "decision_source_total",
			Help:      "Total decisions grouped by rule-based vs ML source",
		},
		[]string{"source"},
	)

	// CooldownBlockedTotal counts scale attempts blocked by the cooldown window.
	CooldownBlockedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "spotvortex",
			Name:      "cooldown_blocked_total",
			Help:      "Total scale attempts blocked by the post-scale cooldown",
		},
	)

	// ScaleFailuresTotal counts orchestrator patch failures.
	ScaleFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "spotvortex",
			Name:      "scale_failures_total",
			Help:      "Total failed Deployment replica patch attempts",
		},
	)

	// ReconcileLoopDuration tracks control loop cycle time.
	ReconcileLoopDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "spotvortex",
			Name:      "reconcile_loop_duration_seconds",
			Help:      "Duration of one control loop cycle",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// MLTrainingSamples tracks MLPredictor's accumulated training sample count.
	MLTrainingSamples = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "spotvortex",
			Name:      "ml_training_samples",
			Help:      "Total training samples accumulated by the ML predictor",
		},
	)

	// MLTrained reports whether the ML predictor has a fitted model (1) or not (0).
	MLTrained = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "spotvortex",
			Name:      "ml_trained",
			Help:      "Whether the ML predictor currently has a fitted model",
		},
	)

	// MLConfidence tracks the last ML prediction's confidence.
	MLConfidence = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "spotvortex",
			Name:      "ml_confidence",
			Help:      "Confidence of the most recent ML prediction (0-1)",
		},
	)
)
