package dto

import (
	"fmt"
	"strings"
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/model"
	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format accepted and returned by the API.
const DateLayout = "2006-01-02"

// MatchRequest is the body of POST /api/matches and POST /api/skips.
type MatchRequest struct {
	ReceiptID string          `json:"receipt_id" binding:"required"`
	ChargeID  string          `json:"charge_id" binding:"required"`
	Features  *model.Features `json:"features,omitempty"`
}

// ReceiptRequest is the body of POST /api/receipts.
type ReceiptRequest struct {
	ID               string           `json:"id"`
	OriginalFilename string           `json:"original_filename" binding:"required"`
	StoragePath      string           `json:"storage_path" binding:"required"`
	Merchant         *string          `json:"merchant,omitempty"`
	Amount           *decimal.Decimal `json:"amount,omitempty"`
	Date             *string          `json:"date,omitempty"`
	Category         *string          `json:"category,omitempty"`
}

// ToReceipt converts the request into a new receipt.
func (r ReceiptRequest) ToReceipt() (*model.Receipt, error) {
	receipt := &model.Receipt{
		ID:               r.ID,
		OriginalFilename: r.OriginalFilename,
		StoragePath:      r.StoragePath,
		Merchant:         r.Merchant,
		Amount:           r.Amount,
		Category:         r.Category,
	}
	if r.Date != nil && strings.TrimSpace(*r.Date) != "" {
		d, err := ParseDate(*r.Date)
		if err != nil {
			return nil, err
		}
		receipt.Date = &d
	}
	return receipt, nil
}

// ReceiptPatchRequest is the body of PATCH /api/receipts/:id. Omitted fields
// are left unchanged.
type ReceiptPatchRequest struct {
	Merchant *string                 `json:"merchant,omitempty"`
	Amount   *decimal.Decimal        `json:"amount,omitempty"`
	Date     *string                 `json:"date,omitempty"`
	Category *string                 `json:"category,omitempty"`
	Status   *model.ProcessingStatus `json:"status,omitempty"`
}

// ChargeRequest is the body of POST /api/charges.
type ChargeRequest struct {
	ID          string          `json:"id"`
	Date        string          `json:"date" binding:"required"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	StatementID string          `json:"statement_id" binding:"required"`
}

// ToCharge converts the request into a charge.
func (r ChargeRequest) ToCharge() (*model.Charge, error) {
	d, err := ParseDate(r.Date)
	if err != nil {
		return nil, err
	}
	return &model.Charge{
		ID:          r.ID,
		Date:        d,
		Description: r.Description,
		Amount:      r.Amount,
		Category:    r.Category,
		StatementID: r.StatementID,
	}, nil
}

// ChargeFlagsRequest is the body of PUT /api/charges/:id/flags.
type ChargeFlagsRequest struct {
	Personal          *bool `json:"personal,omitempty"`
	NoReceiptRequired *bool `json:"no_receipt_required,omitempty"`
}

// StatementRequest is the body of POST /api/statements.
type StatementRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name" binding:"required"`
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
	IsActive  bool   `json:"is_active"`
}

// ToStatement converts the request into a statement.
func (r StatementRequest) ToStatement() (*model.Statement, error) {
	start, err := ParseDate(r.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := ParseDate(r.EndDate)
	if err != nil {
		return nil, err
	}
	return &model.Statement{
		ID:        r.ID,
		Name:      r.Name,
		StartDate: start,
		EndDate:   end,
		IsActive:  r.IsActive,
	}, nil
}

// AliasRequest is the body of POST /api/aliases.
type AliasRequest struct {
	Pattern   string `json:"pattern" binding:"required"`
	Canonical string `json:"canonical" binding:"required"`
	Regex     bool   `json:"regex"`
}

// ParseDate accepts a calendar date or an RFC3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t.UTC(), nil
}
