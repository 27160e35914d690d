// Package ml implements the MLPredictor: an online-trained bagged linear
// regressor ensemble over a 12-dimensional feature subset, with persistence
// of the fitted model, scaler, and a bounded tail of training samples.
//
// There is no drop-in random-forest regressor in gonum, so the ensemble
// here is bagged ridge-regularized linear models, each fit on an
// independent bootstrap resample of the training buffer. The contract is
// what matters: a replica estimate plus a [0,1] confidence derived from
// how much the estimators disagree.
package ml

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/pradeepsingh/spotvortex-hpa/internal/features"
)

// NumFeatures is the dimensionality of the ML feature subvector.
const NumFeatures = 12

// numEstimators is the size of the bagged ensemble; each is fit on an
// independent bootstrap resample so per-estimator predictions disagree in
// proportion to how noisy/small the training set is.
const numEstimators = 25

// minSamplesForTraining is the minimum labeled sample count before the
// first fit is attempted.
const minSamplesForTraining = 20

// retrainEvery fires a retrain once the sample counter crosses a multiple of
// this value, starting at minSamplesForTraining.
const retrainEvery = 10

// maxPersistedSamples bounds how many trailing samples are written to disk.
const maxPersistedSamples = 100

// ridgeLambda regularizes the per-estimator least-squares fit so a
// near-singular bootstrap resample (e.g. a feature column that is constant
// across the resample) still solves.
const ridgeLambda = 1e-3

// Features is the 12-dimensional ML feature subvector.
type Features [NumFeatures]float64

// ExtractFeatures derives the ML subvector from a full FeatureVector:
// [cpu_current, memory_current, network_total, cpu_avg, cpu_max, cpu_min,
//
//	cpu_std, memory_avg, memory_max, cpu_trend, cpu_trend_strength, pod_count]
func ExtractFeatures(fv *features.FeatureVector) Features {
	return Features{
		fv.CPUCurrent,
		fv.MemoryCurrent,
		fv.NetworkTotal,
		fv.CPUHistorical.Avg15m,
		fv.CPUHistorical.Max15m,
		fv.CPUHistorical.Min15m,
		fv.CPUHistorical.Std15m,
		fv.MemoryHistorical.Avg15m,
		fv.MemoryHistorical.Max15m,
		fv.CPUTrend.Trend,
		fv.CPUTrend.TrendStrength,
		float64(fv.PodCount),
	}
}

// scaler standardizes features using the mean/stddev of the same training
// matrix the estimators were fit on.
type scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

func fitScaler(rows [][]float64) scaler {
	s := scaler{Mean: make([]float64, NumFeatures), Std: make([]float64, NumFeatures)}
	col := make([]float64, len(rows))
	for j := 0; j < NumFeatures; j++ {
		for i, r := range rows {
			col[i] = r[j]
		}
		s.Mean[j] = stat.Mean(col, nil)
		std := stat.StdDev(col, nil)
		if std == 0 {
			std = 1
		}
		s.Std[j] = std
	}
	return s
}

func (s scaler) transform(f Features) []float64 {
	out := make([]float64, NumFeatures)
	for j := 0; j < NumFeatures; j++ {
		out[j] = (f[j] - s.Mean[j]) / s.Std[j]
	}
	return out
}

// estimator is one ridge-regularized linear model in the ensemble:
// predicted = intercept + coef . standardized_features.
type estimator struct {
	Intercept float64   `json:"intercept"`
	Coef      []float64 `json:"coef"`
}

func (e estimator) predict(x []float64) float64 {
	out := e.Intercept
	for i, v := range x {
		out += e.Coef[i] * v
	}
	return out
}

// fitEstimator solves ridge regression (X^T X + lambda*I) beta = X^T y via
// gonum's linear solve (LU, since the normal-equations matrix is square), on
// an augmented design matrix with an intercept column.
func fitEstimator(x [][]float64, y []float64) estimator {
	n := len(x)
	p := NumFeatures + 1

	xm := mat.NewDense(n, p, nil)
	for i := range x {
		xm.Set(i, 0, 1)
		for j, v := range x[i] {
			xm.Set(i, j+1, v)
		}
	}
	ym := mat.NewVecDense(n, y)

	var xtx mat.Dense
	xtx.Mul(xm.T(), xm)
	for i := 0; i < p; i++ {
		xtx.Set(i, i, xtx.At(i, i)+ridgeLambda)
	}

	var xty mat.VecDense
	xty.MulVec(xm.T(), ym)

	var beta mat.VecDense
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		// Degenerate normal equations the ridge term could not rescue: fall
		// back to a zero-slope estimator that always predicts the mean.
		mean := stat.Mean(y, nil)
		return estimator{Intercept: mean, Coef: make([]float64, NumFeatures)}
	}

	coef := make([]float64, NumFeatures)
	for i := 0; i < NumFeatures; i++ {
		coef[i] = beta.AtVec(i + 1)
	}
	return estimator{Intercept: beta.AtVec(0), Coef: coef}
}

// sample is one persisted (features, label) training pair.
type sample struct {
	Features Features `json:"features"`
	Label    int      `json:"label"`
}

// state is the full persisted model bundle: serialized estimators, fitted
// scaler, training-sample counter, trained flag, and the trailing training
// samples.
type state struct {
	Trained     bool        `json:"trained"`
	SampleCount int         `json:"sample_count"`
	Scaler      scaler      `json:"scaler"`
	Estimators  []estimator `json:"estimators"`
	Samples     []sample    `json:"samples"`
}

// Predictor is the MLPredictor: online training, ensemble-variance
// confidence, and atomic disk persistence.
type Predictor struct {
	path    string
	logger  *slog.Logger
	seed    int64
	samples []sample
	st      state
}

// Config configures a Predictor.
type Config struct {
	// Path is the file a trained model is persisted to and reloaded from.
	Path   string
	Logger *slog.Logger
}

// New builds a Predictor, loading any previously persisted model at Path.
// A missing or corrupt file means "start fresh, untrained", not a
// constructor error.
func New(cfg Config) (*Predictor, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("model path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create model directory %s: %w", dir, err)
		}
	}

	p := &Predictor{path: cfg.Path, logger: logger, seed: 1}

	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to read model file, starting untrained", "path", cfg.Path, "error", err)
		}
		return p, nil
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		logger.Warn("model file is corrupt, discarding and starting untrained", "path", cfg.Path, "error", err)
		return p, nil
	}
	p.st = st
	p.samples = append(p.samples, st.Samples...)
	return p, nil
}

// Stats summarizes the predictor's training progress.
type Stats struct {
	Trained          bool
	Samples          int
	ModelOnDisk      bool
	MinSamplesNeeded int
}

// Stats returns the predictor's current training status.
func (p *Predictor) Stats() Stats {
	_, err := os.Stat(p.path)
	return Stats{
		Trained:          p.st.Trained,
		Samples:          p.st.SampleCount,
		ModelOnDisk:      err == nil,
		MinSamplesNeeded: minSamplesForTraining,
	}
}

// AddSample appends a labeled training pair and triggers Train once the
// sample count reaches minSamplesForTraining, then again every retrainEvery
// samples after that.
func (p *Predictor) AddSample(f Features, labelReplicas int) error {
	p.samples = append(p.samples, sample{Features: f, Label: labelReplicas})
	p.st.SampleCount++

	if p.st.SampleCount >= minSamplesForTraining && p.st.SampleCount%retrainEvery == 0 {
		if err := p.Train(); err != nil {
			p.logger.Error("ml predictor retrain failed, keeping prior model state", "error", err)
		}
	}
	return p.persist()
}

// Train fits the feature scaler and the bagged ensemble on the full
// buffered sample matrix. Requires at least minSamplesForTraining samples.
// A successful fit replaces the model atomically: Trained only flips to
// true, and Estimators/Scaler only change, once every estimator has fit
// without error.
func (p *Predictor) Train() error {
	if len(p.samples) < minSamplesForTraining {
		return fmt.Errorf("need at least %d samples to train, have %d", minSamplesForTraining, len(p.samples))
	}

	rows := make([][]float64, len(p.samples))
	labels := make([]float64, len(p.samples))
	for i, s := range p.samples {
		rows[i] = s.Features[:]
		labels[i] = float64(s.Label)
	}
	sc := fitScaler(rows)

	standardized := make([][]float64, len(rows))
	for i, r := range rows {
		standardized[i] = sc.transform(Features(toArray(r)))
	}

	rng := newPRNG(p.seed)
	estimators := make([]estimator, numEstimators)
	for t := 0; t < numEstimators; t++ {
		bx, by := bootstrapSample(standardized, labels, rng)
		estimators[t] = fitEstimator(bx, by)
	}

	p.st.Scaler = sc
	p.st.Estimators = estimators
	p.st.Trained = true

	p.logger.Info("ml predictor trained",
		"samples", len(p.samples),
		"estimators", numEstimators,
		"train_r2", trainingRSquared(estimators, standardized, labels),
	)

	return p.persist()
}

// trainingRSquared scores the fitted ensemble's mean prediction against the
// labels it was trained on. Diagnostic only; nothing gates on it.
func trainingRSquared(estimators []estimator, x [][]float64, y []float64) float64 {
	if stat.Variance(y, nil) == 0 {
		return 0
	}
	estimates := make([]float64, len(x))
	for i, row := range x {
		var sum float64
		for _, est := range estimators {
			sum += est.predict(row)
		}
		estimates[i] = sum / float64(len(estimators))
	}
	return stat.RSquaredFrom(estimates, y, nil)
}

func toArray(r []float64) Features {
	var f Features
	copy(f[:], r)
	return f
}

// bootstrapSample draws len(x) samples with replacement, the standard
// bagging resample each ensemble member trains on.
func bootstrapSample(x [][]float64, y []float64, rng *prngState) ([][]float64, []float64) {
	n := len(x)
	bx := make([][]float64, n)
	by := make([]float64, n)
	for i := 0; i < n; i++ {
		idx := rng.intn(n)
		bx[i] = x[idx]
		by[i] = y[idx]
	}
	return bx, by
}

// Predict returns a replica estimate and a [0,1] confidence, or ok=false if
// the predictor has not been trained yet.
func (p *Predictor) Predict(f Features) (replicas int, confidence float64, ok bool) {
	if !p.st.Trained || len(p.st.Estimators) == 0 {
		return 0, 0, false
	}

	x := p.st.Scaler.transform(f)
	preds := make([]float64, len(p.st.Estimators))
	for i, est := range p.st.Estimators {
		preds[i] = est.predict(x)
	}

	mean := stat.Mean(preds, nil)
	std := stat.StdDev(preds, nil)

	denom := mean
	if denom < 1 {
		denom = 1
	}
	conf := 1 - std/denom
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	replicas = int(math.Max(1, math.Round(mean)))
	return replicas, conf, true
}

// persist atomically replaces the model file on disk: write to a temp file
// in the same directory, then rename over the target, so a crash mid-write
// never leaves a half-written model for the next load.
func (p *Predictor) persist() error {
	p.st.Samples = p.trailingSamples()

	data, err := json.MarshalIndent(p.st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal model state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p.path), ".model-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp model file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp model file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp model file: %w", err)
	}
	if err := os.Rename(tmpPath, p.path); err != nil {
		return fmt.Errorf("replace model file: %w", err)
	}
	return nil
}

func (p *Predictor) trailingSamples() []sample {
	if len(p.samples) <= maxPersistedSamples {
		out := make([]sample, len(p.samples))
		copy(out, p.samples)
		return out
	}
	out := make([]sample, maxPersistedSamples)
	copy(out, p.samples[len(p.samples)-maxPersistedSamples:])
	return out
}

// prngState is a small deterministic xorshift generator, used
// instead of math/rand so bootstrap resampling has no hidden global state
// and reruns with the same seed reproduce the same ensemble.
type prngState struct {
	state uint64
}

func newPRNG(seed int64) *prngState {
	return &prngState{state: uint64(seed)*2685821657736338717 + 1}
}

func (p *prngState) next() uint64 {
	p.state ^= p.state << 13
	p.state ^= p.state >> 7
	p.state ^= p.state << 17
	return p.state
}

func (p *prngState) intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(p.next() % uint64(n))
}
