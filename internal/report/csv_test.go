package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/model"
)

func TestWriteCandidates(t *testing.T) {
	t.Run("writes header and one row per pair", func(t *testing.T) {
		// Arrange
		merchant := "Uber Eats"
		amount := decimal.RequireFromString("23.45")
		date := time.Date(2025, 8, 8, 0, 0, 0, 0, time.UTC)
		pairs := []model.MatchCandidate{
			{
				Receipt: &model.Receipt{ID: "r-1", Merchant: &merchant, Amount: &amount, Date: &date},
				Charge: &model.Charge{
					ID:          "c-1",
					Date:        date,
					Description: "UBER EATS help.uber.com",
					Amount:      decimal.RequireFromString("23.45"),
				},
				RuleScore:    100,
				LearnedScore: 95,
				Confidence:   97,
			},
			{
				Receipt: &model.Receipt{ID: "r-2", Amount: &amount},
				Charge: &model.Charge{
					ID:     "c-2",
					Date:   date.AddDate(0, 0, 3),
					Amount: decimal.RequireFromString("23.4"),
				},
				RuleScore:    40,
				LearnedScore: 20,
				Confidence:   28,
			},
		}
		var buf bytes.Buffer

		// Act
		err := WriteCandidates(&buf, pairs)

		// Assert
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, "receipt_id,charge_id,receipt_date,charge_date,merchant,charge_description,receipt_amount,charge_amount,rule_score,learned_score,confidence", lines[0])
		assert.Equal(t, "r-1,c-1,2025-08-08,2025-08-08,Uber Eats,UBER EATS help.uber.com,23.45,23.45,100,95,97", lines[1])
		assert.Equal(t, "r-2,c-2,,2025-08-11,,,23.45,23.40,40,20,28", lines[2])
	})

	t.Run("writes only the header for no pairs", func(t *testing.T) {
		var buf bytes.Buffer

		err := WriteCandidates(&buf, nil)

		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(buf.String(), "receipt_id,"))
	})
}

func TestReadCharges(t *testing.T) {
	t.Run("parses common export formats", func(t *testing.T) {
		input := `id,date,description,amount,category
amex-1,2025-08-08,UBER EATS,23.45,Dining
,08/14/2025,COSTCO WHSE #0481,"$1,182.07",Groceries
`
		charges, err := ReadCharges(strings.NewReader(input), "stmt-aug")

		require.NoError(t, err)
		require.Len(t, charges, 2)

		assert.Equal(t, "amex-1", charges[0].ID)
		assert.Equal(t, time.Date(2025, 8, 8, 0, 0, 0, 0, time.UTC), charges[0].Date)
		assert.True(t, charges[0].Amount.Equal(decimal.RequireFromString("23.45")))
		assert.Equal(t, "stmt-aug", charges[0].StatementID)
		assert.Equal(t, "Dining", charges[0].Category)

		assert.NotEmpty(t, charges[1].ID, "missing ids are generated")
		assert.Equal(t, time.Date(2025, 8, 14, 0, 0, 0, 0, time.UTC), charges[1].Date)
		assert.True(t, charges[1].Amount.Equal(decimal.RequireFromString("1182.07")))
	})

	t.Run("reports every bad row", func(t *testing.T) {
		input := `date,description,amount
not-a-date,A,1.00
2025-08-01,B,abc
2025-08-02,C,3.00
`
		charges, err := ReadCharges(strings.NewReader(input), "stmt-aug")

		require.Error(t, err)
		assert.Nil(t, charges)
		assert.Contains(t, err.Error(), "line 2")
		assert.Contains(t, err.Error(), "line 3")
		assert.NotContains(t, err.Error(), "line 4")
	})
}
