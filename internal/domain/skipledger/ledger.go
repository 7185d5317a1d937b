// Package skipledger records candidate pairs the user rejected.
//
// Skip events are append-only. They feed the confidence model as negative
// samples and keep rejected pairs out of future suggestions.
package skipledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/model"
	"github.com/google/uuid"
)

// Store persists skip events.
type Store interface {
	AppendSkip(ctx context.Context, event *model.SkipEvent) error
	ListSkips(ctx context.Context) ([]*model.SkipEvent, error)
}

// Ledger is the skip ledger.
type Ledger struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a ledger over store.
func New(store Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, logger: logger, now: time.Now}
}

// Record appends a rejection with the features the pair was scored on.
func (l *Ledger) Record(ctx context.Context, receiptID, chargeID string, f model.Features) (*model.SkipEvent, error) {
	if receiptID == "" || chargeID == "" {
		return nil, fmt.Errorf("skip requires receipt and charge ids")
	}

	event := &model.SkipEvent{
		ID:        uuid.NewString(),
		ReceiptID: receiptID,
		ChargeID:  chargeID,
		Features:  f,
		CreatedAt: l.now().UTC(),
	}

	if err := l.store.AppendSkip(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to record skip: %w", err)
	}

	l.logger.Debug("recorded skip",
		"receipt_id", receiptID,
		"charge_id", chargeID)
	return event, nil
}

// NegativeSamples returns every skip as a label-0 training sample.
func (l *Ledger) NegativeSamples(ctx context.Context) ([]model.TrainingSample, error) {
	events, err := l.store.ListSkips(ctx)
	if err != nil {
		return nil, err
	}

	samples := make([]model.TrainingSample, 0, len(events))
	for _, e := range events {
		samples = append(samples, model.TrainingSample{Features: e.Features, Label: 0})
	}
	return samples, nil
}

// Exclusions returns the set of rejected pairs.
func (l *Ledger) Exclusions(ctx context.Context) (map[model.PairKey]bool, error) {
	events, err := l.store.ListSkips(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[model.PairKey]bool, len(events))
	for _, e := range events {
		out[model.PairKey{ReceiptID: e.ReceiptID, ChargeID: e.ChargeID}] = true
	}
	return out, nil
}
