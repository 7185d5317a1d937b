package service

import (
	"context"
	"fmt"
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/model"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/skipledger"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/storage"
)

// trainingSource feeds the confidence model: committed matches are
// positives, the skip ledger supplies negatives.
type trainingSource struct {
	repo      storage.MatchRepository
	extractor *matcher.Generator
	ledger    *skipledger.Ledger

	// Accepted matches are treated as strong merchant agreement.
	assumedMerchant float64
}

// PositiveSamples returns features of matches committed at or after since.
func (t *trainingSource) PositiveSamples(ctx context.Context, since time.Time) ([]model.TrainingSample, error) {
	pairs, err := t.repo.ListMatchedPairsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list matched pairs: %w", err)
	}

	samples := make([]model.TrainingSample, 0, len(pairs))
	for _, p := range pairs {
		f := t.extractor.ExtractFeatures(p.Receipt, p.Charge)
		f.MerchantSimilarity = model.KnownFeature(t.assumedMerchant)
		samples = append(samples, model.TrainingSample{Features: f, Label: 1})
	}
	return samples, nil
}

// NegativeSamples returns every recorded skip.
func (t *trainingSource) NegativeSamples(ctx context.Context) ([]model.TrainingSample, error) {
	return t.ledger.NegativeSamples(ctx)
}
