package service

import (
	"context"
	"fmt"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/model"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/storage"
)

// ReconcileOptions scopes a batch run.
type ReconcileOptions struct {
	// StatementID limits the run to one statement's receipts.
	StatementID string

	// Progress, when set, is called after each receipt.
	Progress func(done, total int)
}

// ReconcileSummary reports a batch run.
type ReconcileSummary struct {
	Attempted    int `json:"attempted"`
	Matched      int `json:"matched"`
	NeedsReview  int `json:"needs_review"`
	NoCandidate  int `json:"no_candidate"`
	Insufficient int `json:"insufficient"`
	Errors       int `json:"errors"`
}

// Reconcile attempts every unmatched receipt in scope. Receipts whose best
// candidate fell short of the threshold are flagged for review. A failing
// receipt is logged and counted; the run continues.
func (s *Reconciler) Reconcile(ctx context.Context, opts ReconcileOptions) (*ReconcileSummary, error) {
	receipts, err := s.repo.ListReceipts(ctx, storage.ReceiptFilter{
		StatementID:   opts.StatementID,
		UnmatchedOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}

	summary := &ReconcileSummary{}
	total := len(receipts)

	for i, r := range receipts {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		summary.Attempted++
		result, err := s.attempt(ctx, r)
		switch {
		case err != nil:
			summary.Errors++
			s.logger.Error("attempt failed", "receipt_id", r.ID, "error", err)
		case result.Matched:
			summary.Matched++
		case result.Reason == ReasonBelowThreshold:
			summary.NeedsReview++
			s.flagForReview(ctx, r)
		case result.Reason == model.ErrInsufficientData.Error():
			summary.Insufficient++
		default:
			summary.NoCandidate++
		}

		if opts.Progress != nil {
			opts.Progress(i+1, total)
		}
	}

	s.logger.Info("reconcile complete",
		"attempted", summary.Attempted,
		"matched", summary.Matched,
		"needs_review", summary.NeedsReview,
		"no_candidate", summary.NoCandidate,
		"insufficient", summary.Insufficient,
		"errors", summary.Errors)

	return summary, nil
}

func (s *Reconciler) flagForReview(ctx context.Context, r *model.Receipt) {
	if r.NeedsReview {
		return
	}
	r.NeedsReview = true
	if err := s.repo.UpdateReceipt(ctx, r); err != nil {
		s.logger.Warn("failed to flag receipt for review", "receipt_id", r.ID, "error", err)
	}
}
