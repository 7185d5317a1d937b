package organizer

import (
	"testing"
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func octStatement() *model.Statement {
	return &model.Statement{
		ID:        "stmt-oct",
		Name:      "October 2025",
		StartDate: time.Date(2025, 9, 27, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 10, 26, 0, 0, 0, 0, time.UTC),
	}
}

func TestOrganizedPath(t *testing.T) {
	st := octStatement()

	tests := []struct {
		name      string
		receipt   *model.Receipt
		statement *model.Statement
		want      string
	}{
		{
			name:    "unassigned goes to inbox by original name",
			receipt: &model.Receipt{ID: "r1", OriginalFilename: "IMG_2041.HEIC", Merchant: ptr("Target")},
			want:    "inbox/IMG_2041.HEIC",
		},
		{
			name:    "inbox strips directories",
			receipt: &model.Receipt{ID: "r1", OriginalFilename: `C:\Users\me\scan.pdf`},
			want:    "inbox/scan.pdf",
		},
		{
			name:    "inbox without a filename falls back to id",
			receipt: &model.Receipt{ID: "r1", StoragePath: "uploads/r1.jpg"},
			want:    "inbox/r1.jpg",
		},
		{
			name: "assigned and matched",
			receipt: &model.Receipt{
				ID:               "r1",
				Merchant:         ptr("Uber Eats"),
				Amount:           ptr(decimal.RequireFromString("42.1")),
				Date:             ptr(time.Date(2025, 10, 10, 0, 0, 0, 0, time.UTC)),
				StatementID:      ptr("stmt-oct"),
				IsMatched:        true,
				OriginalFilename: "receipt.PDF",
			},
			statement: st,
			want:      "statements/October_2025/Matched/2025-10-10_Uber_Eats_$42.10_RECEIPT.pdf",
		},
		{
			name: "assigned but unmatched",
			receipt: &model.Receipt{
				ID:               "r1",
				Merchant:         ptr("Blue Bottle"),
				Amount:           ptr(decimal.RequireFromString("6.5")),
				Date:             ptr(time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)),
				StatementID:      ptr("stmt-oct"),
				OriginalFilename: "bb.jpg",
			},
			statement: st,
			want:      "statements/October_2025/Unmatched/2025-10-01_Blue_Bottle_$6.50_RECEIPT.jpg",
		},
		{
			name: "missing fields use fallback tokens",
			receipt: &model.Receipt{
				ID:               "r1",
				StatementID:      ptr("stmt-oct"),
				OriginalFilename: "x.png",
			},
			statement: st,
			want:      "statements/October_2025/Unmatched/UNKNOWN_DATE_UNKNOWN_MERCHANT_UNKNOWN_AMOUNT_RECEIPT.png",
		},
		{
			name: "statement provided but receipt unassigned",
			receipt: &model.Receipt{
				ID:               "r1",
				OriginalFilename: "x.png",
			},
			statement: st,
			want:      "inbox/x.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OrganizedPath(tt.receipt, tt.statement))
		})
	}
}

func TestOrganizedPath_Idempotent(t *testing.T) {
	r := &model.Receipt{
		ID:               "r1",
		Merchant:         ptr("Joe's Pizza & Grill"),
		Amount:           ptr(decimal.RequireFromString("18.00")),
		StatementID:      ptr("stmt-oct"),
		OriginalFilename: "pizza.jpeg",
	}
	st := octStatement()

	first := OrganizedPath(r, st)
	second := OrganizedPath(r, st)

	assert.Equal(t, first, second)
}

func TestSanitizeMerchant(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Uber Eats", "Uber_Eats"},
		{"Joe's Pizza & Grill", "Joe_s_Pizza_Grill"},
		{"  ***  ", ""},
		{"The Extraordinarily Long Merchant Name LLC", "The_Extraordinarily_Long"},
		{"Café Olé", "Caf_Ol"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := SanitizeMerchant(tt.in)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), MaxMerchantLength)
		})
	}
}

func TestFileName_BlankMerchantFallsBack(t *testing.T) {
	r := &model.Receipt{ID: "r1", Merchant: ptr("!!!"), OriginalFilename: "a.pdf"}

	assert.Equal(t, "UNKNOWN_DATE_UNKNOWN_MERCHANT_UNKNOWN_AMOUNT_RECEIPT.pdf", FileName(r))
}

func TestStatementFolder(t *testing.T) {
	assert.Equal(t, "October_2025", StatementFolder(octStatement()))
	assert.Equal(t, "2025-09", StatementFolder(&model.Statement{
		ID:        "stmt-oct",
		StartDate: time.Date(2025, 9, 27, 0, 0, 0, 0, time.UTC),
	}))
	assert.Equal(t, "stmt-1", StatementFolder(&model.Statement{ID: "stmt-1"}))
}
