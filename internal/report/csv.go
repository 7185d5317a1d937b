// Package report reads and writes reconciliation CSV files.
//
// Candidate exports give a reviewer the scored pairs in a spreadsheet.
// Charge imports load a card statement export into the engine.
package report

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/model"
)

const dateLayout = "2006-01-02"

// Card exports disagree on date format; these are tried in order.
var importDateLayouts = []string{dateLayout, "01/02/2006", "1/2/2006", "01/02/06"}

// CandidateRow is one suggested pair in an export.
type CandidateRow struct {
	ReceiptID         string `csv:"receipt_id"`
	ChargeID          string `csv:"charge_id"`
	ReceiptDate       string `csv:"receipt_date"`
	ChargeDate        string `csv:"charge_date"`
	Merchant          string `csv:"merchant"`
	ChargeDescription string `csv:"charge_description"`
	ReceiptAmount     string `csv:"receipt_amount"`
	ChargeAmount      string `csv:"charge_amount"`
	RuleScore         int    `csv:"rule_score"`
	LearnedScore      int    `csv:"learned_score"`
	Confidence        int    `csv:"confidence"`
}

// ChargeRow is one line of a statement export.
type ChargeRow struct {
	ID          string `csv:"id"`
	Date        string `csv:"date"`
	Description string `csv:"description"`
	Amount      string `csv:"amount"`
	Category    string `csv:"category"`
}

// CandidateRows flattens candidates for export, keeping their order.
func CandidateRows(pairs []model.MatchCandidate) []*CandidateRow {
	rows := make([]*CandidateRow, 0, len(pairs))
	for _, p := range pairs {
		row := &CandidateRow{
			ReceiptID:         p.Receipt.ID,
			ChargeID:          p.Charge.ID,
			ChargeDate:        p.Charge.Date.UTC().Format(dateLayout),
			ChargeDescription: p.Charge.Description,
			ChargeAmount:      p.Charge.Amount.StringFixed(2),
			RuleScore:         p.RuleScore,
			LearnedScore:      p.LearnedScore,
			Confidence:        p.Confidence,
		}
		if p.Receipt.HasDate() {
			row.ReceiptDate = p.Receipt.Date.UTC().Format(dateLayout)
		}
		if p.Receipt.HasMerchant() {
			row.Merchant = *p.Receipt.Merchant
		}
		if p.Receipt.HasAmount() {
			row.ReceiptAmount = p.Receipt.Amount.StringFixed(2)
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteCandidates writes candidates as CSV with a header row.
func WriteCandidates(w io.Writer, pairs []model.MatchCandidate) error {
	rows := CandidateRows(pairs)
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("error writing candidates: %w", err)
	}
	return nil
}

// ReadCharges parses a statement export into charges for statementID. Rows
// without an id get a fresh one. Every bad row is reported, not just the first.
func ReadCharges(r io.Reader, statementID string) ([]*model.Charge, error) {
	var rows []*ChargeRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("error parsing charges: %w", err)
	}

	charges := make([]*model.Charge, 0, len(rows))
	var errs []error
	for i, row := range rows {
		c, err := row.toCharge(statementID)
		if err != nil {
			// Line 1 is the header.
			errs = append(errs, fmt.Errorf("line %d: %w", i+2, err))
			continue
		}
		charges = append(charges, c)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return charges, nil
}

func (row *ChargeRow) toCharge(statementID string) (*model.Charge, error) {
	date, err := parseDate(row.Date)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(normalizeAmount(row.Amount))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", row.Amount)
	}

	id := strings.TrimSpace(row.ID)
	if id == "" {
		id = uuid.NewString()
	}

	return &model.Charge{
		ID:          id,
		Date:        date,
		Description: strings.TrimSpace(row.Description),
		Amount:      amount,
		Category:    strings.TrimSpace(row.Category),
		StatementID: statementID,
	}, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range importDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// normalizeAmount strips currency symbols and thousands separators.
func normalizeAmount(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "$", "")
	return strings.TrimSpace(s)
}
