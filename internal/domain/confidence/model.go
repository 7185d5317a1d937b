// Package confidence implements the learned match-confidence model.
//
// The model is a logistic regression over the four match features. It scores
// candidate pairs, retrains from committed matches (positives) and skipped
// pairs (negatives), and derives an adaptive auto-match threshold from recent
// user activity.
//
// Weights are loaded once at startup and published through an atomic pointer,
// so Score never blocks on a running Train.
package confidence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/model"
)

// Config tunes scoring and training.
type Config struct {
	LearningRate float64
	Epochs       int
	MinSamples   int

	// PositiveWindow bounds how far back committed matches count as positives.
	PositiveWindow time.Duration
	// ActivityWindow bounds the match/skip ratio used for the adaptive threshold.
	ActivityWindow time.Duration
	// AssumedMerchantSimilarity stands in for the merchant feature of positives.
	AssumedMerchantSimilarity float64

	UnknownAmountPenalty float64
	UnknownDatePenalty   float64
	AmountCap            float64
	DateCap              float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		LearningRate:              0.01,
		Epochs:                    100,
		MinSamples:                10,
		PositiveWindow:            90 * 24 * time.Hour,
		ActivityWindow:            7 * 24 * time.Hour,
		AssumedMerchantSimilarity: 0.9,
		UnknownAmountPenalty:      5.0,
		UnknownDatePenalty:        3.0,
		AmountCap:                 50,
		DateCap:                   30,
	}
}

// Adaptive threshold levels.
const (
	ThresholdNoActivity = 70
	ThresholdHighAccept = 65
	ThresholdMidAccept  = 70
	ThresholdLowAccept  = 75
)

// WeightStore persists model weights.
type WeightStore interface {
	// LoadWeights returns model.ErrNotFound when nothing has been saved yet.
	LoadWeights(ctx context.Context) (*model.Weights, error)
	SaveWeights(ctx context.Context, w model.Weights) error
}

// SampleSource supplies labeled training data.
type SampleSource interface {
	PositiveSamples(ctx context.Context, since time.Time) ([]model.TrainingSample, error)
	NegativeSamples(ctx context.Context) ([]model.TrainingSample, error)
}

// ActivityCounter reports recent user decisions.
type ActivityCounter interface {
	CountMatchesSince(ctx context.Context, since time.Time) (int, error)
	CountSkipsSince(ctx context.Context, since time.Time) (int, error)
}

// TrainResult summarizes one Train call.
type TrainResult struct {
	Trained   bool          `json:"trained"`
	Reason    string        `json:"reason,omitempty"`
	Samples   int           `json:"samples"`
	Positives int           `json:"positives"`
	Negatives int           `json:"negatives"`
	Loss      float64       `json:"loss,omitempty"`
	Weights   model.Weights `json:"weights"`
}

// Model scores features and learns from user decisions.
type Model struct {
	cfg      Config
	store    WeightStore
	samples  SampleSource
	activity ActivityCounter
	logger   *slog.Logger

	weights atomic.Pointer[model.Weights]
	trainMu sync.Mutex

	now func() time.Time
}

// NewModel creates a model publishing the default weights. Call Load to pick
// up persisted weights.
func NewModel(cfg Config, store WeightStore, samples SampleSource, activity ActivityCounter, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Model{
		cfg:      cfg,
		store:    store,
		samples:  samples,
		activity: activity,
		logger:   logger,
		now:      time.Now,
	}
	w := model.DefaultWeights()
	m.weights.Store(&w)
	return m
}

// Load replaces the published weights with the persisted ones, if any.
func (m *Model) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	w, err := m.store.LoadWeights(ctx)
	if errors.Is(err, model.ErrNotFound) {
		m.logger.Info("no saved weights, using defaults")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load weights: %w", err)
	}

	m.weights.Store(w)
	m.logger.Info("loaded model weights",
		"version", w.Version,
		"sample_count", w.SampleCount)
	return nil
}

// Weights returns a copy of the published weights.
func (m *Model) Weights() model.Weights {
	return *m.weights.Load()
}

// Score returns the learned confidence in [0, 100].
func (m *Model) Score(f model.Features) int {
	w := m.weights.Load()
	p := sigmoid(dot(w, m.inputs(f)))
	return int(math.Round(100 * p))
}

// inputs maps features to model inputs, substituting the fixed penalties for
// unknown values.
func (m *Model) inputs(f model.Features) [4]float64 {
	var x [4]float64

	if f.AmountDiff.Known {
		x[0] = math.Min(math.Abs(f.AmountDiff.Value), m.cfg.AmountCap)
	} else {
		x[0] = m.cfg.UnknownAmountPenalty
	}

	if f.DateDiffDays.Known {
		x[1] = math.Min(math.Abs(f.DateDiffDays.Value), m.cfg.DateCap)
	} else {
		x[1] = m.cfg.UnknownDatePenalty
	}

	if f.MerchantSimilarity.Known {
		x[2] = f.MerchantSimilarity.Value
	}
	if f.CategoryMatch.Known {
		x[3] = f.CategoryMatch.Value
	}

	return x
}

// Train refits the weights from recent matches and skips. Every run starts
// from DefaultWeights, so the same samples always produce the same weights;
// only Version advances. With fewer than MinSamples samples it leaves the
// weights untouched and reports Trained=false.
func (m *Model) Train(ctx context.Context) (TrainResult, error) {
	if !m.trainMu.TryLock() {
		return TrainResult{}, model.ErrTrainingInProgress
	}
	defer m.trainMu.Unlock()

	since := m.now().Add(-m.cfg.PositiveWindow)

	positives, err := m.samples.PositiveSamples(ctx, since)
	if err != nil {
		return TrainResult{}, fmt.Errorf("failed to load positive samples: %w", err)
	}
	negatives, err := m.samples.NegativeSamples(ctx)
	if err != nil {
		return TrainResult{}, fmt.Errorf("failed to load negative samples: %w", err)
	}

	all := make([]model.TrainingSample, 0, len(positives)+len(negatives))
	all = append(all, positives...)
	all = append(all, negatives...)

	current := m.Weights()
	result := TrainResult{
		Samples:   len(all),
		Positives: len(positives),
		Negatives: len(negatives),
		Weights:   current,
	}

	if len(all) < m.cfg.MinSamples {
		result.Reason = model.ErrInsufficientTrainingData.Error()
		m.logger.Info("skipping training",
			"samples", len(all),
			"min_samples", m.cfg.MinSamples)
		return result, nil
	}

	inputs := make([][4]float64, len(all))
	for i, s := range all {
		inputs[i] = m.inputs(s.Features)
	}

	next := model.DefaultWeights()
	for epoch := 0; epoch < m.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return TrainResult{}, err
		}

		var grad [4]float64
		var gradBias float64
		for i, s := range all {
			e := sigmoid(dot(&next, inputs[i])) - s.Label
			for j := range grad {
				grad[j] += e * inputs[i][j]
			}
			gradBias += e
		}

		n := float64(len(all))
		next.Amount -= m.cfg.LearningRate * grad[0] / n
		next.Date -= m.cfg.LearningRate * grad[1] / n
		next.Merchant -= m.cfg.LearningRate * grad[2] / n
		next.Category -= m.cfg.LearningRate * grad[3] / n
		next.Bias -= m.cfg.LearningRate * gradBias / n
	}

	next.Version = current.Version + 1
	next.SampleCount = len(all)
	next.TrainedAt = m.now().UTC()

	if m.store != nil {
		if err := m.store.SaveWeights(ctx, next); err != nil {
			return TrainResult{}, fmt.Errorf("failed to save weights: %w", err)
		}
	}
	m.weights.Store(&next)

	result.Trained = true
	result.Weights = next
	result.Loss = logLoss(&next, inputs, all)

	m.logger.Info("model trained",
		"version", next.Version,
		"samples", len(all),
		"positives", len(positives),
		"negatives", len(negatives),
		"loss", fmt.Sprintf("%.4f", result.Loss))

	return result, nil
}

// AdaptiveThreshold derives the auto-match threshold from the match/skip
// ratio over the activity window. Count failures fall back to the
// no-activity level.
func (m *Model) AdaptiveThreshold(ctx context.Context) int {
	if m.activity == nil {
		return ThresholdNoActivity
	}

	since := m.now().Add(-m.cfg.ActivityWindow)

	matches, err := m.activity.CountMatchesSince(ctx, since)
	if err != nil {
		m.logger.Warn("failed to count recent matches", "error", err)
		return ThresholdNoActivity
	}
	skips, err := m.activity.CountSkipsSince(ctx, since)
	if err != nil {
		m.logger.Warn("failed to count recent skips", "error", err)
		return ThresholdNoActivity
	}

	return thresholdForRatio(matches, skips)
}

func thresholdForRatio(matches, skips int) int {
	total := matches + skips
	if total == 0 {
		return ThresholdNoActivity
	}

	ratio := float64(matches) / float64(total)
	switch {
	case ratio >= 0.8:
		return ThresholdHighAccept
	case ratio >= 0.5:
		return ThresholdMidAccept
	default:
		return ThresholdLowAccept
	}
}

func dot(w *model.Weights, x [4]float64) float64 {
	return w.Amount*x[0] + w.Date*x[1] + w.Merchant*x[2] + w.Category*x[3] + w.Bias
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func logLoss(w *model.Weights, inputs [][4]float64, samples []model.TrainingSample) float64 {
	const eps = 1e-12
	var sum float64
	for i, s := range samples {
		p := sigmoid(dot(w, inputs[i]))
		sum -= s.Label*math.Log(p+eps) + (1-s.Label)*math.Log(1-p+eps)
	}
	return sum / float64(len(samples))
}
