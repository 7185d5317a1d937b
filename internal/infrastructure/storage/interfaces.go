package storage

import (
	"context"
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/merchant"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/model"
)

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, in-memory mock)
// and makes testing with mocks straightforward.
type Repository interface {
	ReceiptRepository
	ChargeRepository
	StatementRepository
	MatchRepository
	SkipRepository
	WeightRepository
	AliasRepository

	// GetStats returns aggregate reconciliation statistics
	GetStats(ctx context.Context) (*Stats, error)

	Close() error
}

// ReceiptRepository handles receipt rows.
// UpdateReceipt never touches match fields; those change only through MatchRepository.
type ReceiptRepository interface {
	CreateReceipt(ctx context.Context, r *model.Receipt) error

	// GetReceipt returns model.ErrNotFound for unknown ids
	GetReceipt(ctx context.Context, id string) (*model.Receipt, error)

	UpdateReceipt(ctx context.Context, r *model.Receipt) error

	ListReceipts(ctx context.Context, filter ReceiptFilter) ([]*model.Receipt, error)

	// DeleteReceipt removes the receipt and clears the match on its charge
	DeleteReceipt(ctx context.Context, id string) error
}

// ChargeRepository handles statement charge rows
type ChargeRepository interface {
	CreateCharge(ctx context.Context, c *model.Charge) error
	GetCharge(ctx context.Context, id string) (*model.Charge, error)
	ListCharges(ctx context.Context, filter ChargeFilter) ([]*model.Charge, error)

	// SetChargeFlags updates whichever flags are non-nil
	SetChargeFlags(ctx context.Context, id string, personal, noReceiptRequired *bool) (*model.Charge, error)

	// DeleteCharge removes the charge and clears the match on its receipt
	DeleteCharge(ctx context.Context, id string) error
}

// StatementRepository handles statement periods
type StatementRepository interface {
	CreateStatement(ctx context.Context, s *model.Statement) error
	GetStatement(ctx context.Context, id string) (*model.Statement, error)
	ListStatements(ctx context.Context) ([]*model.Statement, error)
}

// MatchRepository owns the bidirectional receipt/charge link.
type MatchRepository interface {
	// CommitMatch links both sides in one transaction. If either side is
	// already matched nothing changes and model.ErrAlreadyMatched is returned.
	// The receipt moves to the charge's statement.
	CommitMatch(ctx context.Context, receiptID, chargeID string, matchedAt time.Time) error

	// Unmatch clears both sides and returns the former charge id
	Unmatch(ctx context.Context, receiptID string) (string, error)

	// ListMatchedPairsSince returns matches committed at or after since
	ListMatchedPairsSince(ctx context.Context, since time.Time) ([]model.MatchedPair, error)

	CountMatchesSince(ctx context.Context, since time.Time) (int, error)
}

// SkipRepository is the append-only skip ledger
type SkipRepository interface {
	AppendSkip(ctx context.Context, event *model.SkipEvent) error
	ListSkips(ctx context.Context) ([]*model.SkipEvent, error)
	CountSkipsSince(ctx context.Context, since time.Time) (int, error)
}

// WeightRepository persists confidence model weights
type WeightRepository interface {
	// LoadWeights returns the latest version or model.ErrNotFound
	LoadWeights(ctx context.Context) (*model.Weights, error)
	SaveWeights(ctx context.Context, w model.Weights) error
}

// AliasRepository persists user-defined merchant aliases
type AliasRepository interface {
	SaveAlias(ctx context.Context, a merchant.Alias) error
	ListAliases(ctx context.Context) ([]merchant.Alias, error)
}
