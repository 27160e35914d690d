// Package decision implements the DecisionEngine: it fuses RuleEngine and
// MLPredictor outputs into a single replica target, applies the dampening
// rules that prevent oscillation, and feeds its own accepted decisions back
// to MLPredictor as training labels.
package decision

import (
	"fmt"

	"github.com/pradeepsingh/spotvortex-hpa/internal/features"
	"github.com/pradeepsingh/spotvortex-hpa/internal/ml"
	"github.com/pradeepsingh/spotvortex-hpa/internal/rules"
)

// Action is the scaling direction chosen for a cycle.
type Action string

const (
	ActionScaleUp   Action = "scale_up"
	ActionScaleDown Action = "scale_down"
	ActionNoChange  Action = "no_change"
)

// Decision source tags. Formatted as full sentences with the gating value
// baked in, so the field reads as an operational signal rather than a bare
// enum value.
const (
	sourceLowScoreFmt = "Rule-based (low score: %.1f)"
	sourceMLFmt       = "ML (confidence: %.2f)"
	sourceMLTooLowFmt = "Rule-based (ML confidence too low)"
)

// lowScoreThreshold is the total score below which ML is never trusted: at
// very low load the system must be free to scale down aggressively, and the
// model has little signal to extrapolate from.
const lowScoreThreshold = 25.0

// mlConfidenceThreshold is the minimum ML confidence required to let its
// prediction override the rule-based optimum. Strictly greater-than:
// exactly 0.6 is too low.
const mlConfidenceThreshold = 0.6

// Dampening thresholds.
const (
	largeGapReplicas      = 2
	highLoadScaleUpScore  = 60.0
	lowLoadScaleDownScore = 30.0
	idleCPUPerPod         = 5.0
	rapidRiseTrendSlope   = 50.0
	boundaryLowScore      = 10.0
	boundaryHighScore     = 90.0
)

// Decision is the DecisionEngine's output for one cycle.
type Decision struct {
	CurrentReplicas int
	TargetReplicas  int
	RuleReplicas    int
	MLReplicas      int
	MLReplicasSet   bool
	MLConfidence    float64
	DecisionSource  string
	Action          Action
	ShouldScale     bool
	Reason          string
	Scores          rules.Decision
	Confidence      float64
}

// Predictor is the subset of MLPredictor DecisionEngine depends on.
type Predictor interface {
	Predict(f ml.Features) (replicas int, confidence float64, ok bool)
	AddSample(f ml.Features, labelReplicas int) error
}

// Engine fuses RuleEngine and Predictor outputs into a gated Decision.
type Engine struct {
	rules     *rules.Engine
	predictor Predictor
}

// New builds an Engine over the given RuleEngine and MLPredictor.
func New(ruleEngine *rules.Engine, predictor Predictor) *Engine {
	return &Engine{rules: ruleEngine, predictor: predictor}
}

// Decide computes a gated scaling Decision for the current cycle: fuse the
// rule-based and ML replica targets, dampen, then score the result's
// confidence. currentReplicas is the orchestrator's last-observed replica
// count.
func (e *Engine) Decide(fv *features.FeatureVector, currentReplicas int) Decision {
	scores := e.rules.Evaluate(fv)
	mlFeatures := ml.ExtractFeatures(fv)
	mlReplicas, mlConf, mlOK := e.predictor.Predict(mlFeatures)

	var optimal int
	var source string
	switch {
	case scores.TotalScore < lowScoreThreshold:
		optimal = scores.OptimalReplicas
		source = fmt.Sprintf(sourceLowScoreFmt, scores.TotalScore)
	case mlOK && mlConf > mlConfidenceThreshold:
		optimal = mlReplicas
		source = fmt.Sprintf(sourceMLFmt, mlConf)
	default:
		// An untrained predictor reports zero confidence, so "too low"
		// covers both the not-ready and the unconfident case.
		optimal = scores.OptimalReplicas
		source = sourceMLTooLowFmt
	}

	// The rule-based optimum arrives pre-clamped; an ML prediction does not.
	if optimal < e.rules.MinReplicas() {
		optimal = e.rules.MinReplicas()
	}
	if optimal > e.rules.MaxReplicas() {
		optimal = e.rules.MaxReplicas()
	}

	d := Decision{
		CurrentReplicas: currentReplicas,
		TargetReplicas:  currentReplicas,
		RuleReplicas:    scores.OptimalReplicas,
		MLReplicas:      mlReplicas,
		MLReplicasSet:   mlOK,
		MLConfidence:    mlConf,
		DecisionSource:  source,
		Scores:          scores,
	}

	// The idle-override check divides by the orchestrator-observed replica
	// count, not the metrics-derived pod count: while a scale is in flight
	// the two diverge, and the gate must follow what was actually asked of
	// the orchestrator.
	cpuPerPod := fv.CPUCurrent
	if currentReplicas > 0 {
		cpuPerPod = fv.CPUCurrent / float64(currentReplicas)
	}

	shouldScale, reason := e.dampen(scores.TotalScore, optimal, currentReplicas, cpuPerPod, fv.CPUTrend.Trend)
	d.ShouldScale = shouldScale
	d.Reason = reason
	if shouldScale {
		d.TargetReplicas = optimal
	}

	switch {
	case d.TargetReplicas > currentReplicas:
		d.Action = ActionScaleUp
	case d.TargetReplicas < currentReplicas:
		d.Action = ActionScaleDown
	default:
		d.Action = ActionNoChange
	}

	d.Confidence = confidence(scores.TotalScore, fv.CPUTrend.TrendStrength)

	if d.Action != ActionNoChange {
		// Training feedback is best-effort: a failed sample append must
		// never block actuation.
		_ = e.predictor.AddSample(mlFeatures, d.TargetReplicas)
	}

	return d
}

// dampen evaluates the scale-gating conditions in order, returning the
// first that matches. A decision with no matching condition is held at the
// current replica count.
func (e *Engine) dampen(totalScore float64, optimal, current int, cpuPerPod, cpuTrend float64) (bool, string) {
	gap := optimal - current
	if gap < 0 {
		gap = -gap
	}

	switch {
	case gap >= largeGapReplicas:
		return true, "large_gap"
	case totalScore > highLoadScaleUpScore && optimal > current:
		return true, "high_load_scale_up"
	case totalScore < lowLoadScaleDownScore && optimal < current:
		return true, "low_load_scale_down"
	case cpuPerPod < idleCPUPerPod && optimal < current:
		return true, "idle_override"
	case cpuTrend > rapidRiseTrendSlope && optimal > current:
		return true, "rapid_rise"
	case optimal == e.rules.MinReplicas() && totalScore < boundaryLowScore:
		return true, "boundary_low"
	case optimal == e.rules.MaxReplicas() && totalScore > boundaryHighScore:
		return true, "boundary_high"
	default:
		return false, "no_change"
	}
}

// confidence computes the overall decision confidence: a coarse bucket on
// the total score (extreme scores are easy calls) averaged with the feature
// trend strength.
func confidence(totalScore, trendStrength float64) float64 {
	var scoreConf float64
	switch {
	case totalScore > 80 || totalScore < 20:
		scoreConf = 0.9
	case totalScore > 60 || totalScore < 40:
		scoreConf = 0.7
	default:
		scoreConf = 0.5
	}
	c := (scoreConf + trendStrength) / 2
	if c > 1 {
		c = 1
	}
	return c
}
