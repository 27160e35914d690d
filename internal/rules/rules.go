// Package rules implements the RuleEngine: a weighted multi-axis load score
// plus a deterministic optimal-replica-count calculation, used whenever the
// ML predictor is unavailable or not yet confident (see internal/decision).
package rules

import (
	"math"

	"github.com/pradeepsingh/spotvortex-hpa/internal/features"
)

// Per-pod resource targets used to normalize each axis to a 0-100 score
// (500m CPU, 512Mi memory, 10Mbps network). Fixed rather than read from
// the thresholds config keys, which stay reserved.
const (
	cpuTargetMillicores = 500.0
	memoryTargetMB      = 512.0
	networkTargetMbps   = 10.0

	// idleCPUPerPodMillicores is the per-pod CPU floor below which the
	// rule-based calculator skips the memory comparison and aggressively
	// follows the CPU-based projection down.
	idleCPUPerPodMillicores = 10.0
)

// Weights controls how much each axis contributes to TotalScore. The zero
// value is invalid; use DefaultWeights or config-loaded weights.
type Weights struct {
	CPU     float64
	Memory  float64
	Network float64
	Cost    float64
}

// DefaultWeights is the default scoring weight split: CPU-dominant, with a
// small cost term rewarding headroom under the replica cap.
func DefaultWeights() Weights {
	return Weights{CPU: 0.4, Memory: 0.3, Network: 0.2, Cost: 0.1}
}

// Engine computes weighted load scores and rule-based replica targets.
type Engine struct {
	weights     Weights
	minReplicas int
	maxReplicas int
}

// New builds an Engine with the given weights and replica bounds.
func New(weights Weights, minReplicas, maxReplicas int) *Engine {
	return &Engine{weights: weights, minReplicas: minReplicas, maxReplicas: maxReplicas}
}

// MinReplicas returns the configured floor on replica counts.
func (e *Engine) MinReplicas() int { return e.minReplicas }

// MaxReplicas returns the configured ceiling on replica counts.
func (e *Engine) MaxReplicas() int { return e.maxReplicas }

// Decision is the RuleEngine's scoring and replica recommendation.
type Decision struct {
	CPUScore        float64
	MemoryScore     float64
	NetworkScore    float64
	CostScore       float64
	TotalScore      float64
	OptimalReplicas int
	Reason          string
}

// Evaluate scores the current feature vector and proposes a replica count.
//
// The CPU and memory projections each estimate how many replicas would be
// needed to bring the per-pod metric down to its target, given the current
// pod count. When the workload is idle at the per-pod level
// (cpu_per_pod < 10m), the CPU projection alone drives the result - this
// lets an overprovisioned-but-otherwise-quiet workload scale down fast
// without memory holding it up. Otherwise the optimum is the larger of the
// two projections, so neither axis is starved.
func (e *Engine) Evaluate(fv *features.FeatureVector) Decision {
	d := Decision{
		CPUScore:     clamp(fv.CPUCurrent/cpuTargetMillicores*100, 0, 100),
		MemoryScore:  clamp(fv.MemoryCurrent/memoryTargetMB*100, 0, 100),
		NetworkScore: clamp(fv.NetworkTotal/networkTargetMbps*100, 0, 100),
		CostScore:    clamp(100-100*float64(fv.PodCount)/float64(e.maxReplicas), 0, 100),
	}
	d.TotalScore = d.CPUScore*e.weights.CPU +
		d.MemoryScore*e.weights.Memory +
		d.NetworkScore*e.weights.Network +
		d.CostScore*e.weights.Cost

	cpuBased := e.axisBased(fv.CPUCurrent, fv.PodCount, cpuTargetMillicores)
	memBased := e.axisBased(fv.MemoryCurrent, fv.PodCount, memoryTargetMB)

	cpuPerPod := fv.CPUCurrent
	if fv.PodCount > 0 {
		cpuPerPod = fv.CPUCurrent / float64(fv.PodCount)
	}

	var optimal int
	reason := "cpu_bound"
	if cpuPerPod < idleCPUPerPodMillicores {
		optimal = cpuBased
		reason = "idle_workload"
	} else {
		optimal = cpuBased
		if memBased > optimal {
			optimal = memBased
			reason = "memory_bound"
		}
	}
	if optimal == fv.PodCount {
		reason = "stable"
	}

	d.OptimalReplicas = e.clampReplicas(optimal)
	d.Reason = reason
	return d
}

// axisBased projects ceil(value*podCount/target) replicas needed to bring
// the per-pod metric down to target. A zero reading naturally projects down
// to zero replicas before clamping, which is what drives the idle-workload
// override in Evaluate all the way down to the replica floor.
func (e *Engine) axisBased(perPodValue float64, podCount int, target float64) int {
	if perPodValue <= 0 {
		return 0
	}
	return int(math.Ceil(perPodValue * float64(podCount) / target))
}

func (e *Engine) clampReplicas(n int) int {
	if n < e.minReplicas {
		return e.minReplicas
	}
	if n > e.maxReplicas {
		return e.maxReplicas
	}
	return n
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
