// Package service coordinates the reconciliation engine.
//
// Reconciler owns the write paths: auto-match attempts, manual commits and
// unmatches, skips, statement assignment, file reorganization and model
// training. Domain packages stay pure; every side effect goes through here.
//
// Example usage:
//
//	rec := service.NewReconciler(service.DefaultConfig(), repo, nil, normalizer, files, logger)
//	if err := rec.Init(ctx); err != nil { ... }
//	result, err := rec.Attempt(ctx, receiptID)
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/confidence"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/merchant"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/model"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/organizer"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/skipledger"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/storage"
)

// Attempt outcomes reported in AttemptResult.Reason.
const (
	ReasonMatched        = "matched"
	ReasonAlreadyMatched = "receipt already matched"
	ReasonNoCandidate    = "no candidate above inclusion floor"
	ReasonBelowThreshold = "best candidate below threshold"
	ReasonLostRace       = "charge matched concurrently"
)

// Required confidence by number of known fields among amount, date and merchant.
const (
	RequiredAllKnown  = 75
	RequiredTwoKnown  = 85
	RequiredOneKnown  = 95
	RequiredNoneKnown = 100
)

// FileMover relocates receipt files. Paths are relative to the storage root.
type FileMover interface {
	Move(ctx context.Context, from, to string) (string, error)
}

// Config holds the tunables for the engine.
type Config struct {
	Matcher matcher.Config
	Model   confidence.Config

	// AllowCrossStatement lets an assigned receipt draw candidates from
	// every statement instead of only its own.
	AllowCrossStatement bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Matcher: matcher.DefaultConfig(),
		Model:   confidence.DefaultConfig(),
	}
}

// AttemptResult reports an auto-match attempt. Matched=false is an expected
// outcome, not an error.
type AttemptResult struct {
	Matched            bool                  `json:"matched"`
	Reason             string                `json:"reason"`
	Candidate          *model.MatchCandidate `json:"candidate,omitempty"`
	RequiredConfidence int                   `json:"required_confidence"`
	Threshold          int                   `json:"threshold"`
}

// Reconciler is the reconciliation engine.
type Reconciler struct {
	cfg        Config
	repo       storage.Repository
	normalizer *merchant.Normalizer
	generator  *matcher.Generator
	model      *confidence.Model
	ledger     *skipledger.Ledger
	files      FileMover
	logger     *slog.Logger

	// Background skip recording
	skipsWG sync.WaitGroup

	now func() time.Time
}

// NewReconciler wires the engine. weights may be nil to keep model weights in
// repo; files may be nil to record organized paths without moving anything.
func NewReconciler(
	cfg Config,
	repo storage.Repository,
	weights confidence.WeightStore,
	normalizer *merchant.Normalizer,
	files FileMover,
	logger *slog.Logger,
) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if weights == nil {
		weights = repo
	}

	ledger := skipledger.New(repo, logger.With("system", "skips"))

	// Features for training come from the same extraction used for scoring.
	extractor := matcher.NewGenerator(cfg.Matcher, normalizer, nil)
	source := &trainingSource{
		repo:            repo,
		extractor:       extractor,
		ledger:          ledger,
		assumedMerchant: cfg.Model.AssumedMerchantSimilarity,
	}

	m := confidence.NewModel(cfg.Model, weights, source, repo, logger.With("system", "model"))

	return &Reconciler{
		cfg:        cfg,
		repo:       repo,
		normalizer: normalizer,
		generator:  matcher.NewGenerator(cfg.Matcher, normalizer, m),
		model:      m,
		ledger:     ledger,
		files:      files,
		logger:     logger,
		now:        time.Now,
	}
}

// Init loads persisted weights and user aliases.
func (s *Reconciler) Init(ctx context.Context) error {
	if err := s.model.Load(ctx); err != nil {
		return err
	}

	aliases, err := s.repo.ListAliases(ctx)
	if err != nil {
		return fmt.Errorf("failed to load merchant aliases: %w", err)
	}
	for _, a := range aliases {
		if err := s.normalizer.AddAlias(a); err != nil {
			s.logger.Warn("skipping invalid stored alias", "pattern", a.Pattern, "error", err)
		}
	}
	if len(aliases) > 0 {
		s.logger.Info("loaded merchant aliases", "count", len(aliases))
	}

	return nil
}

// RequiredConfidence is the field-count floor for auto-matching.
func RequiredConfidence(knownFields int) int {
	switch {
	case knownFields >= 3:
		return RequiredAllKnown
	case knownFields == 2:
		return RequiredTwoKnown
	case knownFields == 1:
		return RequiredOneKnown
	default:
		return RequiredNoneKnown
	}
}

// Attempt tries to auto-match one receipt against the charges of its
// statement. State changes only when the best candidate clears the threshold.
func (s *Reconciler) Attempt(ctx context.Context, receiptID string) (*AttemptResult, error) {
	r, err := s.repo.GetReceipt(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	return s.attempt(ctx, r)
}

func (s *Reconciler) attempt(ctx context.Context, r *model.Receipt) (*AttemptResult, error) {
	if r.IsMatched {
		return &AttemptResult{Reason: ReasonAlreadyMatched}, nil
	}

	known := r.KnownFieldCount()
	result := &AttemptResult{RequiredConfidence: RequiredConfidence(known)}
	if known == 0 {
		result.Reason = model.ErrInsufficientData.Error()
		return result, nil
	}

	best, err := s.bestCandidate(ctx, r)
	if err != nil {
		return nil, err
	}
	if best == nil {
		result.Reason = ReasonNoCandidate
		return result, nil
	}

	result.Candidate = best
	result.Threshold = min(result.RequiredConfidence, s.model.AdaptiveThreshold(ctx))

	if best.Confidence < result.Threshold {
		result.Reason = ReasonBelowThreshold
		s.logger.Debug("candidate below threshold",
			"receipt_id", r.ID,
			"charge_id", best.Charge.ID,
			"confidence", best.Confidence,
			"threshold", result.Threshold)
		return result, nil
	}

	if _, _, err := s.commit(ctx, r.ID, best.Charge.ID); err != nil {
		if errors.Is(err, model.ErrAlreadyMatched) {
			result.Reason = ReasonLostRace
			return result, nil
		}
		return nil, err
	}

	result.Matched = true
	result.Reason = ReasonMatched
	s.logger.Info("auto-matched receipt",
		"receipt_id", r.ID,
		"charge_id", best.Charge.ID,
		"confidence", best.Confidence,
		"rule_score", best.RuleScore,
		"learned_score", best.LearnedScore,
		"threshold", result.Threshold)
	return result, nil
}

// bestCandidate returns the top candidate for r, or nil.
func (s *Reconciler) bestCandidate(ctx context.Context, r *model.Receipt) (*model.MatchCandidate, error) {
	filter := storage.ChargeFilter{UnmatchedOnly: true}
	if r.IsAssigned() && !s.cfg.AllowCrossStatement {
		filter.StatementID = *r.StatementID
	}

	charges, err := s.repo.ListCharges(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list charges: %w", err)
	}

	exclusions, err := s.ledger.Exclusions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load skipped pairs: %w", err)
	}

	candidates := s.generator.Generate([]*model.Receipt{r}, charges, matcher.Options{Exclusions: exclusions})
	if len(candidates) == 0 {
		return nil, nil
	}
	return &candidates[0], nil
}

// CommitMatch links a receipt and a charge chosen by the user.
func (s *Reconciler) CommitMatch(ctx context.Context, receiptID, chargeID string) (*model.Receipt, *model.Charge, error) {
	return s.commit(ctx, receiptID, chargeID)
}

func (s *Reconciler) commit(ctx context.Context, receiptID, chargeID string) (*model.Receipt, *model.Charge, error) {
	if err := s.repo.CommitMatch(ctx, receiptID, chargeID, s.now().UTC()); err != nil {
		return nil, nil, err
	}

	r, err := s.repo.GetReceipt(ctx, receiptID)
	if err != nil {
		return nil, nil, err
	}
	c, err := s.repo.GetCharge(ctx, chargeID)
	if err != nil {
		return nil, nil, err
	}

	s.reorganize(ctx, r)
	return r, c, nil
}

// Unmatch clears a receipt's match on both sides. The receipt keeps the
// statement it inherited from the charge.
func (s *Reconciler) Unmatch(ctx context.Context, receiptID string) (*model.Receipt, *model.Charge, error) {
	chargeID, err := s.repo.Unmatch(ctx, receiptID)
	if err != nil {
		return nil, nil, err
	}

	r, err := s.repo.GetReceipt(ctx, receiptID)
	if err != nil {
		return nil, nil, err
	}
	c, err := s.repo.GetCharge(ctx, chargeID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, nil, err
	}

	s.logger.Info("unmatched receipt", "receipt_id", receiptID, "charge_id", chargeID)
	s.reorganize(ctx, r)
	return r, c, nil
}

// reorganize moves the receipt file to its computed location. Failures are
// logged and never undo the caller's change.
func (s *Reconciler) reorganize(ctx context.Context, r *model.Receipt) {
	var st *model.Statement
	if r.IsAssigned() {
		found, err := s.repo.GetStatement(ctx, *r.StatementID)
		switch {
		case err == nil:
			st = found
		case errors.Is(err, model.ErrNotFound):
			s.logger.Warn("receipt points at missing statement",
				"receipt_id", r.ID,
				"statement_id", *r.StatementID)
		default:
			s.logger.Warn("failed to load statement for reorganize", "receipt_id", r.ID, "error", err)
			return
		}
	}

	target := organizer.OrganizedPath(r, st)
	if target == r.OrganizedPath {
		return
	}

	current := r.OrganizedPath
	if current == "" {
		current = r.StoragePath
	}

	final := target
	if s.files != nil && current != "" {
		moved, err := s.files.Move(ctx, current, target)
		if err != nil {
			s.logger.Warn("failed to move receipt file",
				"receipt_id", r.ID,
				"from", current,
				"to", target,
				"error", err)
			return
		}
		final = moved
	}

	if final == r.OrganizedPath {
		return
	}

	r.OrganizedPath = final
	if err := s.repo.UpdateReceipt(ctx, r); err != nil {
		s.logger.Warn("failed to record organized path", "receipt_id", r.ID, "error", err)
		return
	}
	s.logger.Debug("reorganized receipt", "receipt_id", r.ID, "path", final)
}
