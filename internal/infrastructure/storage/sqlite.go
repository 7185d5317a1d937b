package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/model"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// Storage provides SQLite database access for reconciliation records.
// It implements the Repository interface.
type Storage struct {
	db     *sql.DB
	logger *slog.Logger
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage opens (or creates) the SQLite database at dbPath and runs all
// pending migrations. ":memory:" gives a private in-memory database.
func NewStorage(dbPath string, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := dbPath + "?_foreign_keys=1"
	if dbPath != ":memory:" {
		dsn += "&_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // SQLite serializes writers; one connection keeps :memory: stable

	s := &Storage{db: db, logger: logger}

	// Run all pending migrations
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil || p.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: p.UTC(), Valid: true}
}

func nullDecimal(p *decimal.Decimal) decimal.NullDecimal {
	if p == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time.UTC()
	return &v
}

// ================================================================
// RECEIPTS
// ================================================================

const receiptColumns = `id, merchant, amount, receipt_date, category, is_matched,
	matched_charge_id, matched_at, statement_id, original_filename, storage_path,
	organized_path, status, needs_review, created_at, updated_at`

func scanReceipt(row scanner) (*model.Receipt, error) {
	r := &model.Receipt{}
	var (
		merchant, category, matchedChargeID, statementID sql.NullString
		amount                                           decimal.NullDecimal
		date, matchedAt                                  sql.NullTime
		status                                           string
	)

	err := row.Scan(
		&r.ID,
		&merchant,
		&amount,
		&date,
		&category,
		&r.IsMatched,
		&matchedChargeID,
		&matchedAt,
		&statementID,
		&r.OriginalFilename,
		&r.StoragePath,
		&r.OrganizedPath,
		&status,
		&r.NeedsReview,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Merchant = stringPtr(merchant)
	r.Category = stringPtr(category)
	r.MatchedChargeID = stringPtr(matchedChargeID)
	r.StatementID = stringPtr(statementID)
	r.Date = timePtr(date)
	r.MatchedAt = timePtr(matchedAt)
	r.Status = model.ProcessingStatus(status)
	if amount.Valid {
		a := amount.Decimal
		r.Amount = &a
	}

	return r, nil
}

// CreateReceipt inserts a new receipt. Match fields are ignored; a receipt is
// always created unmatched.
func (s *Storage) CreateReceipt(ctx context.Context, r *model.Receipt) error {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = model.StatusPending
	}

	query := `
	INSERT INTO receipts
	(id, merchant, amount, receipt_date, category, statement_id,
	 original_filename, storage_path, organized_path, status, needs_review,
	 created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		r.ID,
		nullString(r.Merchant),
		nullDecimal(r.Amount),
		nullTime(r.Date),
		nullString(r.Category),
		nullString(r.StatementID),
		r.OriginalFilename,
		r.StoragePath,
		r.OrganizedPath,
		string(r.Status),
		r.NeedsReview,
		r.CreatedAt.UTC(),
		r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create receipt %s: %w", r.ID, err)
	}

	r.IsMatched = false
	r.MatchedChargeID = nil
	r.MatchedAt = nil
	return nil
}

// GetReceipt retrieves a receipt by id
func (s *Storage) GetReceipt(ctx context.Context, id string) (*model.Receipt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id = ?`, id)

	r, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("receipt %s: %w", id, model.ErrNotFound)
	}
	return r, err
}

// UpdateReceipt writes the receipt's extracted fields, statement, paths and
// status. Match fields are left alone.
func (s *Storage) UpdateReceipt(ctx context.Context, r *model.Receipt) error {
	r.UpdatedAt = time.Now().UTC()

	query := `
	UPDATE receipts
	SET merchant = ?, amount = ?, receipt_date = ?, category = ?, statement_id = ?,
	    original_filename = ?, storage_path = ?, organized_path = ?, status = ?,
	    needs_review = ?, updated_at = ?
	WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		nullString(r.Merchant),
		nullDecimal(r.Amount),
		nullTime(r.Date),
		nullString(r.Category),
		nullString(r.StatementID),
		r.OriginalFilename,
		r.StoragePath,
		r.OrganizedPath,
		string(r.Status),
		r.NeedsReview,
		r.UpdatedAt,
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update receipt %s: %w", r.ID, err)
	}

	return requireRow(result, "receipt", r.ID)
}

// ListReceipts returns receipts matching the filter, oldest first
func (s *Storage) ListReceipts(ctx context.Context, filter ReceiptFilter) ([]*model.Receipt, error) {
	var where []string
	var args []any

	if filter.StatementID != "" {
		where = append(where, "statement_id = ?")
		args = append(args, filter.StatementID)
	}
	if filter.Unassigned {
		where = append(where, "statement_id IS NULL")
	}
	if filter.UnmatchedOnly {
		where = append(where, "is_matched = 0")
	}
	if filter.NeedsReview {
		where = append(where, "needs_review = 1")
	}

	query := `SELECT ` + receiptColumns + ` FROM receipts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var receipts []*model.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}

	return receipts, rows.Err()
}

// DeleteReceipt removes the receipt and clears its charge's match in the
// same transaction
func (s *Storage) DeleteReceipt(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE charges SET is_matched = 0, receipt_id = NULL WHERE receipt_id = ?
		`, id); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM receipts WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireRow(result, "receipt", id)
	})
}

// ================================================================
// CHARGES
// ================================================================

const chargeColumns = `id, charge_date, description, amount, category, is_matched,
	receipt_id, statement_id, is_personal, no_receipt_required, is_non_amex, created_at`

func scanCharge(row scanner) (*model.Charge, error) {
	c := &model.Charge{}
	var receiptID sql.NullString

	err := row.Scan(
		&c.ID,
		&c.Date,
		&c.Description,
		&c.Amount,
		&c.Category,
		&c.IsMatched,
		&receiptID,
		&c.StatementID,
		&c.IsPersonal,
		&c.NoReceiptRequired,
		&c.IsNonAmex,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Date = c.Date.UTC()
	c.ReceiptID = stringPtr(receiptID)
	return c, nil
}

// CreateCharge inserts a new, unmatched charge
func (s *Storage) CreateCharge(ctx context.Context, c *model.Charge) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	query := `
	INSERT INTO charges
	(id, charge_date, description, amount, category, statement_id,
	 is_personal, no_receipt_required, is_non_amex, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		c.ID,
		c.Date.UTC(),
		c.Description,
		c.Amount,
		c.Category,
		c.StatementID,
		c.IsPersonal,
		c.NoReceiptRequired,
		c.IsNonAmex,
		c.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create charge %s: %w", c.ID, err)
	}

	c.IsMatched = false
	c.ReceiptID = nil
	return nil
}

// GetCharge retrieves a charge by id
func (s *Storage) GetCharge(ctx context.Context, id string) (*model.Charge, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chargeColumns+` FROM charges WHERE id = ?`, id)

	c, err := scanCharge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("charge %s: %w", id, model.ErrNotFound)
	}
	return c, err
}

// ListCharges returns charges matching the filter, by date
func (s *Storage) ListCharges(ctx context.Context, filter ChargeFilter) ([]*model.Charge, error) {
	var where []string
	var args []any

	if filter.StatementID != "" {
		where = append(where, "statement_id = ?")
		args = append(args, filter.StatementID)
	}
	if filter.UnmatchedOnly {
		where = append(where, "is_matched = 0")
	}

	query := `SELECT ` + chargeColumns + ` FROM charges`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY charge_date ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var charges []*model.Charge
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		charges = append(charges, c)
	}

	return charges, rows.Err()
}

// SetChargeFlags toggles the personal / no-receipt-required flags
func (s *Storage) SetChargeFlags(ctx context.Context, id string, personal, noReceiptRequired *bool) (*model.Charge, error) {
	var sets []string
	var args []any

	if personal != nil {
		sets = append(sets, "is_personal = ?")
		args = append(args, *personal)
	}
	if noReceiptRequired != nil {
		sets = append(sets, "no_receipt_required = ?")
		args = append(args, *noReceiptRequired)
	}

	if len(sets) > 0 {
		args = append(args, id)
		result, err := s.db.ExecContext(ctx,
			`UPDATE charges SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			return nil, err
		}
		if err := requireRow(result, "charge", id); err != nil {
			return nil, err
		}
	}

	return s.GetCharge(ctx, id)
}

// DeleteCharge removes the charge and clears its receipt's match in the same
// transaction
func (s *Storage) DeleteCharge(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE receipts
			SET is_matched = 0, matched_charge_id = NULL, matched_at = NULL, updated_at = ?
			WHERE matched_charge_id = ?
		`, time.Now().UTC(), id); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM charges WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireRow(result, "charge", id)
	})
}

// ================================================================
// STATEMENTS
// ================================================================

// CreateStatement inserts a statement period
func (s *Storage) CreateStatement(ctx context.Context, st *model.Statement) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO statements (id, name, start_date, end_date, is_active)
		VALUES (?, ?, ?, ?, ?)
	`, st.ID, st.Name, st.StartDate.UTC(), st.EndDate.UTC(), st.IsActive)
	if err != nil {
		return fmt.Errorf("failed to create statement %s: %w", st.ID, err)
	}
	return nil
}

// GetStatement retrieves a statement by id
func (s *Storage) GetStatement(ctx context.Context, id string) (*model.Statement, error) {
	st := &model.Statement{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, start_date, end_date, is_active FROM statements WHERE id = ?
	`, id).Scan(&st.ID, &st.Name, &st.StartDate, &st.EndDate, &st.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("statement %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	st.StartDate = st.StartDate.UTC()
	st.EndDate = st.EndDate.UTC()
	return st, nil
}

// ListStatements returns all statements, most recent first
func (s *Storage) ListStatements(ctx context.Context) ([]*model.Statement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, start_date, end_date, is_active
		FROM statements
		ORDER BY start_date DESC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var statements []*model.Statement
	for rows.Next() {
		st := &model.Statement{}
		if err := rows.Scan(&st.ID, &st.Name, &st.StartDate, &st.EndDate, &st.IsActive); err != nil {
			return nil, err
		}
		st.StartDate = st.StartDate.UTC()
		st.EndDate = st.EndDate.UTC()
		statements = append(statements, st)
	}

	return statements, rows.Err()
}

// ================================================================
// HELPERS
// ================================================================

// withTx runs fn in a transaction, committing on success
func (s *Storage) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func requireRow(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, model.ErrNotFound)
	}
	return nil
}
