// Package statement maps receipts onto statement periods.
package statement

import (
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/model"
)

// Assign returns the statement whose inclusive [StartDate, EndDate] range
// contains the receipt date, compared by calendar day in UTC. A receipt with
// no date, or a date outside every period, is unassigned (nil). Matched
// receipts keep the period of their charge.
//
// changed reports whether the result differs from the receipt's current
// assignment.
func Assign(r *model.Receipt, statements []*model.Statement) (statementID *string, changed bool) {
	if r.IsMatched {
		return r.StatementID, false
	}

	var found *model.Statement
	if r.HasDate() {
		found = Containing(*r.Date, statements)
	}

	if found == nil {
		return nil, r.IsAssigned()
	}

	id := found.ID
	return &id, !r.IsAssigned() || *r.StatementID != id
}

// Containing finds the statement covering t. When periods overlap, the one
// that started latest wins.
func Containing(t time.Time, statements []*model.Statement) *model.Statement {
	d := truncate(t)

	var best *model.Statement
	for _, s := range statements {
		if d.Before(truncate(s.StartDate)) || d.After(truncate(s.EndDate)) {
			continue
		}
		if best == nil ||
			s.StartDate.After(best.StartDate) ||
			(s.StartDate.Equal(best.StartDate) && s.ID < best.ID) {
			best = s
		}
	}
	return best
}

func truncate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
