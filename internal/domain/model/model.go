// Package model defines the records the reconciliation engine reasons about.
//
// Receipts and charges are peers. A match is a mutual reference: a matched
// receipt points at its charge and that charge points back at the receipt.
// Nothing in this module sets one side without the other.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProcessingStatus tracks where a receipt is in extraction.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
)

// Receipt is a user-submitted proof of purchase. Merchant, amount, date and
// category are optional and fill in incrementally.
type Receipt struct {
	ID               string           `json:"id"`
	Merchant         *string          `json:"merchant,omitempty"`
	Amount           *decimal.Decimal `json:"amount,omitempty"`
	Date             *time.Time       `json:"date,omitempty"`
	Category         *string          `json:"category,omitempty"`
	IsMatched        bool             `json:"is_matched"`
	MatchedChargeID  *string          `json:"matched_charge_id,omitempty"`
	MatchedAt        *time.Time       `json:"matched_at,omitempty"`
	StatementID      *string          `json:"statement_id,omitempty"`
	OriginalFilename string           `json:"original_filename"`
	StoragePath      string           `json:"storage_path"`
	OrganizedPath    string           `json:"organized_path,omitempty"`
	Status           ProcessingStatus `json:"status"`
	NeedsReview      bool             `json:"needs_review"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// HasMerchant reports whether a non-blank merchant is known.
func (r *Receipt) HasMerchant() bool {
	return r.Merchant != nil && trimmed(*r.Merchant) != ""
}

// HasAmount reports whether an amount is known.
func (r *Receipt) HasAmount() bool {
	return r.Amount != nil
}

// HasDate reports whether a transaction date is known.
func (r *Receipt) HasDate() bool {
	return r.Date != nil && !r.Date.IsZero()
}

// HasCategory reports whether a non-blank category is known.
func (r *Receipt) HasCategory() bool {
	return r.Category != nil && trimmed(*r.Category) != ""
}

// KnownFieldCount counts how many of amount, date and merchant are populated.
func (r *Receipt) KnownFieldCount() int {
	n := 0
	if r.HasAmount() {
		n++
	}
	if r.HasDate() {
		n++
	}
	if r.HasMerchant() {
		n++
	}
	return n
}

// IsAssigned reports whether the receipt lives in a statement period.
func (r *Receipt) IsAssigned() bool {
	return r.StatementID != nil && *r.StatementID != ""
}

// Charge is a line item from a credit-card statement.
type Charge struct {
	ID                string          `json:"id"`
	Date              time.Time       `json:"date"`
	Description       string          `json:"description"`
	Amount            decimal.Decimal `json:"amount"`
	Category          string          `json:"category,omitempty"`
	IsMatched         bool            `json:"is_matched"`
	ReceiptID         *string         `json:"receipt_id,omitempty"`
	StatementID       string          `json:"statement_id"`
	IsPersonal        bool            `json:"is_personal"`
	NoReceiptRequired bool            `json:"no_receipt_required"`
	IsNonAmex         bool            `json:"is_non_amex"`
	CreatedAt         time.Time       `json:"created_at"`
}

// NeedsReceipt reports whether the charge still owes a receipt.
func (c *Charge) NeedsReceipt() bool {
	return !c.IsPersonal && !c.NoReceiptRequired
}

// Statement is a named, inclusive date interval charges are grouped under.
type Statement struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	IsActive  bool      `json:"is_active"`
}

// SkipEvent records a candidate pair the user rejected. It is training data
// only and is never mutated after it is written.
type SkipEvent struct {
	ID        string    `json:"id"`
	ReceiptID string    `json:"receipt_id"`
	ChargeID  string    `json:"charge_id"`
	Features  Features  `json:"features"`
	CreatedAt time.Time `json:"created_at"`
}

// MatchedPair is a committed receipt/charge match, used as positive training data.
type MatchedPair struct {
	Receipt   *Receipt
	Charge    *Charge
	MatchedAt time.Time
}

// MatchCandidate is an ephemeral scored pairing. It is never persisted.
type MatchCandidate struct {
	Receipt      *Receipt `json:"receipt"`
	Charge       *Charge  `json:"charge"`
	Features     Features `json:"features"`
	RuleScore    int      `json:"rule_score"`
	LearnedScore int      `json:"learned_score"`
	Confidence   int      `json:"confidence"`
}

// PairKey identifies a receipt/charge pairing.
type PairKey struct {
	ReceiptID string
	ChargeID  string
}
