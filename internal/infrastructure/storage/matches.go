package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/model"
)

// CommitMatch links a receipt and a charge. Both updates are guarded by
// is_matched = 0 so two concurrent commits against the same record produce
// one success and one ErrAlreadyMatched.
func (s *Storage) CommitMatch(ctx context.Context, receiptID, chargeID string, matchedAt time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var chargeStatement string
		var chargeMatched bool
		err := tx.QueryRowContext(ctx,
			`SELECT statement_id, is_matched FROM charges WHERE id = ?`, chargeID,
		).Scan(&chargeStatement, &chargeMatched)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("charge %s: %w", chargeID, model.ErrNotFound)
		}
		if err != nil {
			return err
		}

		var receiptMatched bool
		err = tx.QueryRowContext(ctx,
			`SELECT is_matched FROM receipts WHERE id = ?`, receiptID,
		).Scan(&receiptMatched)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("receipt %s: %w", receiptID, model.ErrNotFound)
		}
		if err != nil {
			return err
		}

		if receiptMatched || chargeMatched {
			return model.ErrAlreadyMatched
		}

		// An empty charge statement keeps the receipt's current period.
		result, err := tx.ExecContext(ctx, `
			UPDATE receipts
			SET is_matched = 1,
			    matched_charge_id = ?,
			    matched_at = ?,
			    statement_id = COALESCE(NULLIF(?, ''), statement_id),
			    needs_review = 0,
			    updated_at = ?
			WHERE id = ? AND is_matched = 0
		`, chargeID, matchedAt.UTC(), chargeStatement, time.Now().UTC(), receiptID)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return model.ErrAlreadyMatched
		}

		result, err = tx.ExecContext(ctx, `
			UPDATE charges
			SET is_matched = 1, receipt_id = ?
			WHERE id = ? AND is_matched = 0
		`, receiptID, chargeID)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return model.ErrAlreadyMatched
		}

		return nil
	})
}

// Unmatch clears both sides of a receipt's match
func (s *Storage) Unmatch(ctx context.Context, receiptID string) (string, error) {
	var chargeID string

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var matched sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT matched_charge_id FROM receipts WHERE id = ?`, receiptID,
		).Scan(&matched)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("receipt %s: %w", receiptID, model.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if !matched.Valid || matched.String == "" {
			return model.ErrNotMatched
		}
		chargeID = matched.String

		if _, err := tx.ExecContext(ctx, `
			UPDATE receipts
			SET is_matched = 0, matched_charge_id = NULL, matched_at = NULL, updated_at = ?
			WHERE id = ?
		`, time.Now().UTC(), receiptID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE charges SET is_matched = 0, receipt_id = NULL WHERE id = ?
		`, chargeID)
		return err
	})
	if err != nil {
		return "", err
	}

	return chargeID, nil
}

// ListMatchedPairsSince returns committed matches with both sides loaded
func (s *Storage) ListMatchedPairsSince(ctx context.Context, since time.Time) ([]model.MatchedPair, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+receiptColumns+`
		FROM receipts
		WHERE is_matched = 1 AND matched_at >= ?
		ORDER BY matched_at ASC
	`, since.UTC())
	if err != nil {
		return nil, err
	}

	var receipts []*model.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	// Single connection: rows must be closed before the charge lookups.
	_ = rows.Close()

	pairs := make([]model.MatchedPair, 0, len(receipts))
	for _, r := range receipts {
		if r.MatchedChargeID == nil {
			continue
		}
		c, err := s.GetCharge(ctx, *r.MatchedChargeID)
		if errors.Is(err, model.ErrNotFound) {
			s.logger.Warn("matched receipt points at missing charge",
				"receipt_id", r.ID,
				"charge_id", *r.MatchedChargeID)
			continue
		}
		if err != nil {
			return nil, err
		}

		pair := model.MatchedPair{Receipt: r, Charge: c}
		if r.MatchedAt != nil {
			pair.MatchedAt = *r.MatchedAt
		}
		pairs = append(pairs, pair)
	}

	return pairs, nil
}

// CountMatchesSince counts matches committed at or after since
func (s *Storage) CountMatchesSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM receipts WHERE is_matched = 1 AND matched_at >= ?`, since.UTC(),
	).Scan(&count)
	return count, err
}
