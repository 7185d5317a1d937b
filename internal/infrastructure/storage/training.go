package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/merchant"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/model"
)

// ================================================================
// SKIP LEDGER
// ================================================================

// AppendSkip records a rejected candidate pair
func (s *Storage) AppendSkip(ctx context.Context, event *model.SkipEvent) error {
	featuresJSON, err := json.Marshal(event.Features)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO skip_events (id, receipt_id, charge_id, features_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, event.ID, event.ReceiptID, event.ChargeID, string(featuresJSON), event.CreatedAt.UTC())
	return err
}

// ListSkips returns the full ledger, oldest first
func (s *Storage) ListSkips(ctx context.Context) ([]*model.SkipEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, receipt_id, charge_id, features_json, created_at
		FROM skip_events
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []*model.SkipEvent
	for rows.Next() {
		e := &model.SkipEvent{}
		var featuresJSON string
		if err := rows.Scan(&e.ID, &e.ReceiptID, &e.ChargeID, &featuresJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(featuresJSON), &e.Features); err != nil {
			return nil, fmt.Errorf("skip %s has corrupt features: %w", e.ID, err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		events = append(events, e)
	}

	return events, rows.Err()
}

// CountSkipsSince counts skips recorded at or after since
func (s *Storage) CountSkipsSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM skip_events WHERE created_at >= ?`, since.UTC(),
	).Scan(&count)
	return count, err
}

// ================================================================
// MODEL WEIGHTS
// ================================================================

// LoadWeights returns the highest weight version
func (s *Storage) LoadWeights(ctx context.Context) (*model.Weights, error) {
	w := &model.Weights{}
	var trainedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT version, amount, date, merchant, category, bias, sample_count, trained_at
		FROM model_weights
		ORDER BY version DESC
		LIMIT 1
	`).Scan(&w.Version, &w.Amount, &w.Date, &w.Merchant, &w.Category, &w.Bias, &w.SampleCount, &trainedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if trainedAt.Valid {
		w.TrainedAt = trainedAt.Time.UTC()
	}
	return w, nil
}

// SaveWeights stores a weight version. Re-saving a version overwrites it.
func (s *Storage) SaveWeights(ctx context.Context, w model.Weights) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO model_weights
		(version, amount, date, merchant, category, bias, sample_count, trained_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, w.Version, w.Amount, w.Date, w.Merchant, w.Category, w.Bias, w.SampleCount, nullTime(&w.TrainedAt))
	return err
}

// ================================================================
// MERCHANT ALIASES
// ================================================================

// SaveAlias upserts a user alias
func (s *Storage) SaveAlias(ctx context.Context, a merchant.Alias) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO merchant_aliases (pattern, is_regex, canonical)
		VALUES (?, ?, ?)
		ON CONFLICT (pattern, is_regex) DO UPDATE SET canonical = excluded.canonical
	`, a.Pattern, a.Regex, a.Canonical)
	return err
}

// ListAliases returns user aliases in insertion order
func (s *Storage) ListAliases(ctx context.Context) ([]merchant.Alias, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pattern, canonical, is_regex FROM merchant_aliases ORDER BY created_at ASC, rowid ASC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var aliases []merchant.Alias
	for rows.Next() {
		var a merchant.Alias
		if err := rows.Scan(&a.Pattern, &a.Canonical, &a.Regex); err != nil {
			return nil, err
		}
		aliases = append(aliases, a)
	}

	return aliases, rows.Err()
}

// ================================================================
// STATS
// ================================================================

// GetStats returns aggregate reconciliation statistics
func (s *Storage) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx, `
	SELECT
		COUNT(*),
		COUNT(CASE WHEN is_matched = 1 THEN 1 END),
		COUNT(CASE WHEN statement_id IS NULL THEN 1 END),
		COUNT(CASE WHEN needs_review = 1 THEN 1 END)
	FROM receipts
	`).Scan(&stats.Receipts, &stats.MatchedReceipts, &stats.UnassignedReceipts, &stats.NeedsReview)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
	SELECT
		COUNT(*),
		COUNT(CASE WHEN is_matched = 1 THEN 1 END),
		COUNT(CASE WHEN is_matched = 0 AND is_personal = 0 AND no_receipt_required = 0 THEN 1 END)
	FROM charges
	`).Scan(&stats.Charges, &stats.MatchedCharges, &stats.ChargesOwingReceipt)
	if err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM skip_events`).Scan(&stats.Skips); err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM model_weights`,
	).Scan(&stats.ModelVersion); err != nil {
		return nil, err
	}

	return stats, nil
}
