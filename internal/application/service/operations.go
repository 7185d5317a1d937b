package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/confidence"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/merchant"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/model"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/statement"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidInput marks a request the engine cannot act on.
var ErrInvalidInput = errors.New("invalid input")

// ================================================================
// SKIPS
// ================================================================

// RecordSkip stores a user rejection. When features is nil they are
// recomputed from the current receipt and charge.
func (s *Reconciler) RecordSkip(ctx context.Context, receiptID, chargeID string, features *model.Features) (*model.SkipEvent, error) {
	if receiptID == "" || chargeID == "" {
		return nil, fmt.Errorf("%w: receipt_id and charge_id are required", ErrInvalidInput)
	}

	var f model.Features
	if features != nil {
		f = *features
	} else {
		r, err := s.repo.GetReceipt(ctx, receiptID)
		if err != nil {
			return nil, err
		}
		c, err := s.repo.GetCharge(ctx, chargeID)
		if err != nil {
			return nil, err
		}
		f = s.generator.ExtractFeatures(r, c)
	}

	return s.ledger.Record(ctx, receiptID, chargeID, f)
}

// RecordSkipAsync records a skip in the background. The caller's context is
// not used so the write survives the request. Call Wait before shutdown.
func (s *Reconciler) RecordSkipAsync(receiptID, chargeID string, features *model.Features) {
	s.skipsWG.Add(1)
	go func() {
		defer s.skipsWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if _, err := s.RecordSkip(ctx, receiptID, chargeID, features); err != nil {
			s.logger.Error("failed to record skip",
				"receipt_id", receiptID,
				"charge_id", chargeID,
				"error", err)
		}
	}()
}

// Wait blocks until background skip writes finish.
func (s *Reconciler) Wait() {
	s.skipsWG.Wait()
}

// ================================================================
// MODEL
// ================================================================

// ModelInfo describes the published model.
type ModelInfo struct {
	Weights           model.Weights `json:"weights"`
	AdaptiveThreshold int           `json:"adaptive_threshold"`
}

// Train refits the confidence model.
func (s *Reconciler) Train(ctx context.Context) (confidence.TrainResult, error) {
	return s.model.Train(ctx)
}

// ModelInfo returns the current weights and adaptive threshold.
func (s *Reconciler) ModelInfo(ctx context.Context) ModelInfo {
	return ModelInfo{
		Weights:           s.model.Weights(),
		AdaptiveThreshold: s.model.AdaptiveThreshold(ctx),
	}
}

// ================================================================
// CANDIDATES
// ================================================================

// CandidateQuery scopes GetCandidates.
type CandidateQuery struct {
	StatementID    string
	CrossStatement bool
}

// CandidateSet is the review queue: suggested pairs plus whatever is left
// over on each side.
type CandidateSet struct {
	Pairs    []model.MatchCandidate `json:"pairs"`
	Receipts []*model.Receipt       `json:"receipts"`
	Charges  []*model.Charge        `json:"charges"`
}

// GetCandidates suggests the best charge for every unmatched receipt in scope.
func (s *Reconciler) GetCandidates(ctx context.Context, q CandidateQuery) (*CandidateSet, error) {
	receipts, err := s.repo.ListReceipts(ctx, storage.ReceiptFilter{
		StatementID:   q.StatementID,
		UnmatchedOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}

	chargeFilter := storage.ChargeFilter{UnmatchedOnly: true}
	if !q.CrossStatement {
		chargeFilter.StatementID = q.StatementID
	}
	charges, err := s.repo.ListCharges(ctx, chargeFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to list charges: %w", err)
	}

	exclusions, err := s.ledger.Exclusions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load skipped pairs: %w", err)
	}

	pairs := s.generator.Generate(receipts, charges, matcher.Options{Exclusions: exclusions})

	pairedReceipts := make(map[string]bool, len(pairs))
	pairedCharges := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		pairedReceipts[p.Receipt.ID] = true
		pairedCharges[p.Charge.ID] = true
	}

	set := &CandidateSet{
		Pairs:    pairs,
		Receipts: []*model.Receipt{},
		Charges:  []*model.Charge{},
	}
	if set.Pairs == nil {
		set.Pairs = []model.MatchCandidate{}
	}
	for _, r := range receipts {
		if !pairedReceipts[r.ID] {
			set.Receipts = append(set.Receipts, r)
		}
	}
	for _, c := range charges {
		if !pairedCharges[c.ID] && c.NeedsReceipt() {
			set.Charges = append(set.Charges, c)
		}
	}

	return set, nil
}

// ================================================================
// RECEIPTS
// ================================================================

// ReceiptPatch carries a progressive update. Nil fields are left alone.
type ReceiptPatch struct {
	Merchant *string
	Amount   *decimal.Decimal
	Date     *time.Time
	Category *string
	Status   *model.ProcessingStatus
}

// UpdateResult is the outcome of a progressive update.
type UpdateResult struct {
	Receipt *model.Receipt `json:"receipt"`
	Attempt *AttemptResult `json:"attempt,omitempty"`
}

// AddReceipt stores a new receipt, assigns its statement and attempts an
// auto-match.
func (s *Reconciler) AddReceipt(ctx context.Context, r *model.Receipt) (*UpdateResult, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if err := s.repo.CreateReceipt(ctx, r); err != nil {
		return nil, err
	}
	s.logger.Info("receipt added", "receipt_id", r.ID, "known_fields", r.KnownFieldCount())
	return s.settle(ctx, r.ID)
}

// UpdateReceipt applies extracted fields as they arrive, then reassigns the
// statement and attempts an auto-match.
func (s *Reconciler) UpdateReceipt(ctx context.Context, id string, patch ReceiptPatch) (*UpdateResult, error) {
	r, err := s.repo.GetReceipt(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Merchant != nil {
		r.Merchant = blankToNil(*patch.Merchant)
	}
	if patch.Amount != nil {
		amount := *patch.Amount
		r.Amount = &amount
	}
	if patch.Date != nil {
		d := patch.Date.UTC()
		r.Date = &d
	}
	if patch.Category != nil {
		r.Category = blankToNil(*patch.Category)
	}
	if patch.Status != nil {
		r.Status = *patch.Status
	}

	if err := s.repo.UpdateReceipt(ctx, r); err != nil {
		return nil, err
	}
	return s.settle(ctx, id)
}

// settle runs the assign then attempt pipeline for one receipt.
func (s *Reconciler) settle(ctx context.Context, id string) (*UpdateResult, error) {
	r, err := s.AssignStatement(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &UpdateResult{Receipt: r}
	if r.IsMatched {
		return result, nil
	}

	attempt, err := s.attempt(ctx, r)
	if err != nil {
		return nil, err
	}
	result.Attempt = attempt

	if attempt.Matched {
		if result.Receipt, err = s.repo.GetReceipt(ctx, id); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// AssignStatement places the receipt in the statement containing its date.
// Matched receipts keep their charge's statement.
func (s *Reconciler) AssignStatement(ctx context.Context, id string) (*model.Receipt, error) {
	r, err := s.repo.GetReceipt(ctx, id)
	if err != nil {
		return nil, err
	}

	statements, err := s.repo.ListStatements(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list statements: %w", err)
	}

	statementID, changed := statement.Assign(r, statements)
	if changed {
		r.StatementID = statementID
		if err := s.repo.UpdateReceipt(ctx, r); err != nil {
			return nil, err
		}
		s.logger.Info("assigned receipt to statement",
			"receipt_id", r.ID,
			"statement_id", derefOr(statementID, "<none>"))
	}

	s.reorganize(ctx, r)
	return r, nil
}

// GetReceipt returns a receipt by id.
func (s *Reconciler) GetReceipt(ctx context.Context, id string) (*model.Receipt, error) {
	return s.repo.GetReceipt(ctx, id)
}

// DeleteReceipt removes a receipt and frees its charge.
func (s *Reconciler) DeleteReceipt(ctx context.Context, id string) error {
	if err := s.repo.DeleteReceipt(ctx, id); err != nil {
		return err
	}
	s.logger.Info("receipt deleted", "receipt_id", id)
	return nil
}

// ================================================================
// CHARGES
// ================================================================

// AddCharge stores a statement charge.
func (s *Reconciler) AddCharge(ctx context.Context, c *model.Charge) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Date.IsZero() {
		return fmt.Errorf("%w: charge %s has no date", ErrInvalidInput, c.ID)
	}
	return s.repo.CreateCharge(ctx, c)
}

// DeleteCharge removes a charge. A receipt matched to it becomes unmatched
// and its file moves back to the Unmatched folder.
func (s *Reconciler) DeleteCharge(ctx context.Context, id string) error {
	c, err := s.repo.GetCharge(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteCharge(ctx, id); err != nil {
		return err
	}
	s.logger.Info("charge deleted", "charge_id", id)

	if c.ReceiptID != nil {
		r, err := s.repo.GetReceipt(ctx, *c.ReceiptID)
		if err != nil {
			s.logger.Warn("failed to reload freed receipt", "receipt_id", *c.ReceiptID, "error", err)
			return nil
		}
		s.reorganize(ctx, r)
	}
	return nil
}

// SetChargeFlags marks a charge personal or not requiring a receipt.
func (s *Reconciler) SetChargeFlags(ctx context.Context, id string, personal, noReceiptRequired *bool) (*model.Charge, error) {
	if personal == nil && noReceiptRequired == nil {
		return nil, fmt.Errorf("%w: no flags given", ErrInvalidInput)
	}
	return s.repo.SetChargeFlags(ctx, id, personal, noReceiptRequired)
}

// CreateChargeFromReceipt records a charge paid outside the statement card
// and matches the receipt to it.
func (s *Reconciler) CreateChargeFromReceipt(ctx context.Context, receiptID string) (*model.Receipt, *model.Charge, error) {
	r, err := s.repo.GetReceipt(ctx, receiptID)
	if err != nil {
		return nil, nil, err
	}
	if r.IsMatched {
		return nil, nil, model.ErrAlreadyMatched
	}
	if !r.HasAmount() || !r.HasDate() {
		return nil, nil, fmt.Errorf("%w: receipt needs an amount and a date", model.ErrInsufficientData)
	}

	statementID := ""
	if r.IsAssigned() {
		statementID = *r.StatementID
	} else {
		statements, err := s.repo.ListStatements(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list statements: %w", err)
		}
		if st := statement.Containing(*r.Date, statements); st != nil {
			statementID = st.ID
		}
	}

	description := "Manual charge"
	if r.HasMerchant() {
		description = strings.TrimSpace(*r.Merchant)
	}
	category := ""
	if r.HasCategory() {
		category = *r.Category
	}

	c := &model.Charge{
		ID:          uuid.NewString(),
		Date:        r.Date.UTC(),
		Description: description,
		Amount:      *r.Amount,
		Category:    category,
		StatementID: statementID,
		IsNonAmex:   true,
	}
	if err := s.repo.CreateCharge(ctx, c); err != nil {
		return nil, nil, err
	}
	s.logger.Info("created non-card charge from receipt", "receipt_id", r.ID, "charge_id", c.ID)

	return s.commit(ctx, r.ID, c.ID)
}

// ================================================================
// STATEMENTS, ALIASES, STATS
// ================================================================

// AddStatement stores a statement period and pulls in the unassigned
// receipts it now covers.
func (s *Reconciler) AddStatement(ctx context.Context, st *model.Statement) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.EndDate.Before(st.StartDate) {
		return fmt.Errorf("%w: statement ends before it starts", ErrInvalidInput)
	}
	if err := s.repo.CreateStatement(ctx, st); err != nil {
		return err
	}

	unassigned, err := s.repo.ListReceipts(ctx, storage.ReceiptFilter{Unassigned: true})
	if err != nil {
		return fmt.Errorf("failed to list unassigned receipts: %w", err)
	}
	for _, r := range unassigned {
		if _, err := s.AssignStatement(ctx, r.ID); err != nil {
			s.logger.Warn("failed to assign receipt to new statement", "receipt_id", r.ID, "error", err)
		}
	}
	return nil
}

// ListStatements returns all statements, most recent first.
func (s *Reconciler) ListStatements(ctx context.Context) ([]*model.Statement, error) {
	return s.repo.ListStatements(ctx)
}

// AddAlias registers a merchant alias and persists it.
func (s *Reconciler) AddAlias(ctx context.Context, a merchant.Alias) error {
	if err := s.normalizer.AddAlias(a); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.repo.SaveAlias(ctx, a); err != nil {
		return fmt.Errorf("failed to save alias: %w", err)
	}
	s.logger.Info("merchant alias added", "pattern", a.Pattern, "canonical", a.Canonical, "regex", a.Regex)
	return nil
}

// Normalize returns the canonical merchant name.
func (s *Reconciler) Normalize(name string) string {
	return s.normalizer.Normalize(name)
}

// Stats returns aggregate counts.
func (s *Reconciler) Stats(ctx context.Context) (*storage.Stats, error) {
	return s.repo.GetStats(ctx)
}

func blankToNil(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func derefOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}
