package statement

import (
	"testing"
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

var statements = []*model.Statement{
	{ID: "sep", Name: "September 2025", StartDate: date(2025, 8, 27), EndDate: date(2025, 9, 26)},
	{ID: "oct", Name: "October 2025", StartDate: date(2025, 9, 27), EndDate: date(2025, 10, 26)},
}

func TestAssign(t *testing.T) {
	tests := []struct {
		name        string
		receipt     *model.Receipt
		wantID      *string
		wantChanged bool
	}{
		{
			name:        "date inside period",
			receipt:     &model.Receipt{ID: "r1", Date: ptr(date(2025, 10, 3))},
			wantID:      ptr("oct"),
			wantChanged: true,
		},
		{
			name:        "start date is inclusive",
			receipt:     &model.Receipt{ID: "r1", Date: ptr(date(2025, 9, 27))},
			wantID:      ptr("oct"),
			wantChanged: true,
		},
		{
			name:        "end date is inclusive even late in the day",
			receipt:     &model.Receipt{ID: "r1", Date: ptr(time.Date(2025, 9, 26, 22, 30, 0, 0, time.UTC))},
			wantID:      ptr("sep"),
			wantChanged: true,
		},
		{
			name:        "already in the right period",
			receipt:     &model.Receipt{ID: "r1", Date: ptr(date(2025, 10, 3)), StatementID: ptr("oct")},
			wantID:      ptr("oct"),
			wantChanged: false,
		},
		{
			name:        "date moved to another period",
			receipt:     &model.Receipt{ID: "r1", Date: ptr(date(2025, 9, 3)), StatementID: ptr("oct")},
			wantID:      ptr("sep"),
			wantChanged: true,
		},
		{
			name:        "no date stays unassigned",
			receipt:     &model.Receipt{ID: "r1"},
			wantID:      nil,
			wantChanged: false,
		},
		{
			name:        "date outside every period unassigns",
			receipt:     &model.Receipt{ID: "r1", Date: ptr(date(2025, 12, 1)), StatementID: ptr("oct")},
			wantID:      nil,
			wantChanged: true,
		},
		{
			name: "matched receipt keeps its charge's period",
			receipt: &model.Receipt{
				ID: "r1", Date: ptr(date(2025, 10, 3)), StatementID: ptr("sep"), IsMatched: true,
			},
			wantID:      ptr("sep"),
			wantChanged: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, changed := Assign(tt.receipt, statements)

			assert.Equal(t, tt.wantChanged, changed)
			if tt.wantID == nil {
				assert.Nil(t, id)
				return
			}
			require.NotNil(t, id)
			assert.Equal(t, *tt.wantID, *id)
		})
	}
}

func TestContaining_OverlapPrefersLatestStart(t *testing.T) {
	overlapping := []*model.Statement{
		{ID: "q4", StartDate: date(2025, 10, 1), EndDate: date(2025, 12, 31)},
		{ID: "nov", StartDate: date(2025, 11, 1), EndDate: date(2025, 11, 30)},
	}

	got := Containing(date(2025, 11, 15), overlapping)

	require.NotNil(t, got)
	assert.Equal(t, "nov", got.ID)
	assert.Equal(t, "q4", Containing(date(2025, 10, 15), overlapping).ID)
	assert.Nil(t, Containing(date(2026, 1, 1), overlapping))
}

func TestContaining_NonUTCInput(t *testing.T) {
	pacific := time.FixedZone("PDT", -7*60*60)

	// 20:00 PDT on Sep 26 is Sep 27 in UTC.
	got := Containing(time.Date(2025, 9, 26, 20, 0, 0, 0, pacific), statements)

	require.NotNil(t, got)
	assert.Equal(t, "oct", got.ID)
}
