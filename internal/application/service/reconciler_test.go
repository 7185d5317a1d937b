package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/merchant"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/model"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMover records moves and lands every file at the requested path.
type fakeMover struct {
	mu    sync.Mutex
	moves [][2]string
	err   error
}

func (m *fakeMover) Move(_ context.Context, from, to string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.moves = append(m.moves, [2]string{from, to})
	return to, nil
}

type testEnv struct {
	rec   *Reconciler
	repo  *storage.MockRepository
	mover *fakeMover
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	normalizer, err := merchant.NewNormalizer(merchant.DefaultRules())
	require.NoError(t, err)

	repo := storage.NewMockRepository()
	mover := &fakeMover{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rec := NewReconciler(DefaultConfig(), repo, nil, normalizer, mover, logger)
	require.NoError(t, rec.Init(context.Background()))

	require.NoError(t, repo.CreateStatement(context.Background(), &model.Statement{
		ID:        "stmt-aug",
		Name:      "August 2025",
		StartDate: time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC),
	}))

	return &testEnv{rec: rec, repo: repo, mover: mover}
}

func ptr[T any](v T) *T { return &v }

func aug(day int) time.Time {
	return time.Date(2025, 8, day, 0, 0, 0, 0, time.UTC)
}

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func (e *testEnv) addReceipt(t *testing.T, r *model.Receipt) {
	t.Helper()
	if r.OriginalFilename == "" {
		r.OriginalFilename = r.ID + ".jpg"
		r.StoragePath = "uploads/" + r.ID + ".jpg"
	}
	require.NoError(t, e.repo.CreateReceipt(context.Background(), r))
}

func (e *testEnv) addCharge(t *testing.T, id, amt string, date time.Time, description string) {
	t.Helper()
	require.NoError(t, e.repo.CreateCharge(context.Background(), &model.Charge{
		ID:          id,
		Date:        date,
		Description: description,
		Amount:      decimal.RequireFromString(amt),
		StatementID: "stmt-aug",
	}))
}

func uberReceipt(id string) *model.Receipt {
	return &model.Receipt{
		ID:          id,
		Merchant:    ptr("Uber Eats"),
		Amount:      amount("23.45"),
		Date:        ptr(aug(8)),
		StatementID: ptr("stmt-aug"),
	}
}

// ================================================================
// ATTEMPT
// ================================================================

func TestAttempt_FullDataAutoMatches(t *testing.T) {
	// Arrange
	env := newTestEnv(t)
	ctx := context.Background()
	env.addReceipt(t, uberReceipt("r-uber"))
	env.addCharge(t, "c-uber", "23.45", aug(8), "UBER EATS help.uber.com CA")
	env.addCharge(t, "c-other", "23.45", aug(20), "SHELL OIL 5744")

	// Act
	result, err := env.rec.Attempt(ctx, "r-uber")

	// Assert
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, ReasonMatched, result.Reason)
	assert.Equal(t, 75, result.RequiredConfidence)
	assert.Equal(t, 70, result.Threshold)
	require.NotNil(t, result.Candidate)
	assert.Equal(t, "c-uber", result.Candidate.Charge.ID)
	assert.Equal(t, 100, result.Candidate.RuleScore)
	assert.Equal(t, 95, result.Candidate.LearnedScore)
	assert.Equal(t, 97, result.Candidate.Confidence)

	r, err := env.repo.GetReceipt(ctx, "r-uber")
	require.NoError(t, err)
	c, err := env.repo.GetCharge(ctx, "c-uber")
	require.NoError(t, err)
	assert.True(t, r.IsMatched)
	assert.Equal(t, "c-uber", *r.MatchedChargeID)
	assert.True(t, c.IsMatched)
	assert.Equal(t, "r-uber", *c.ReceiptID)
	assert.Equal(t, "statements/August_2025/Matched/2025-08-08_Uber_Eats_$23.45_RECEIPT.jpg", r.OrganizedPath)
	assert.Equal(t, [][2]string{{"uploads/r-uber.jpg", r.OrganizedPath}}, env.mover.moves)
}

func TestAttempt_AmountOnlyStaysUnmatched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addReceipt(t, &model.Receipt{ID: "r-amt", Amount: amount("23.45"), StatementID: ptr("stmt-aug")})
	env.addCharge(t, "c-1", "23.45", aug(8), "UBER EATS")

	result, err := env.rec.Attempt(ctx, "r-amt")

	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Equal(t, ReasonBelowThreshold, result.Reason)
	assert.Equal(t, 95, result.RequiredConfidence)
	assert.Equal(t, 70, result.Threshold, "adaptive threshold caps the field-count requirement")
	require.NotNil(t, result.Candidate)
	assert.Equal(t, 40, result.Candidate.RuleScore)
	assert.Equal(t, 20, result.Candidate.LearnedScore)
	assert.Equal(t, 28, result.Candidate.Confidence)

	r, err := env.repo.GetReceipt(ctx, "r-amt")
	require.NoError(t, err)
	assert.False(t, r.IsMatched)
	assert.False(t, r.NeedsReview, "a failed attempt leaves state unchanged")
	assert.Equal(t, 0, env.repo.UpdateReceiptCall)
}

func TestAttempt_Outcomes(t *testing.T) {
	tests := []struct {
		name       string
		receipt    *model.Receipt
		wantReason string
	}{
		{
			name:       "no known fields",
			receipt:    &model.Receipt{ID: "r-empty", StatementID: ptr("stmt-aug")},
			wantReason: model.ErrInsufficientData.Error(),
		},
		{
			name: "nothing above the floor",
			receipt: &model.Receipt{
				ID:          "r-far",
				Amount:      amount("999.00"),
				Date:        ptr(aug(30)),
				Merchant:    ptr("Home Depot"),
				StatementID: ptr("stmt-aug"),
			},
			wantReason: ReasonNoCandidate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.addReceipt(t, tt.receipt)
			env.addCharge(t, "c-1", "4.50", aug(2), "SBUX #123")

			result, err := env.rec.Attempt(context.Background(), tt.receipt.ID)

			require.NoError(t, err)
			assert.False(t, result.Matched)
			assert.Equal(t, tt.wantReason, result.Reason)
			assert.Equal(t, 0, env.repo.CommitMatchCalls)
		})
	}
}

func TestAttempt_RestrictedToStatement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.repo.CreateStatement(ctx, &model.Statement{
		ID: "stmt-sep", Name: "September 2025",
		StartDate: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 9, 30, 0, 0, 0, 0, time.UTC),
	}))
	env.addReceipt(t, uberReceipt("r-uber"))
	require.NoError(t, env.repo.CreateCharge(ctx, &model.Charge{
		ID: "c-sep", Date: aug(8), Description: "UBER EATS", Amount: decimal.RequireFromString("23.45"), StatementID: "stmt-sep",
	}))

	result, err := env.rec.Attempt(ctx, "r-uber")
	require.NoError(t, err)
	assert.Equal(t, ReasonNoCandidate, result.Reason)

	cfg := DefaultConfig()
	cfg.AllowCrossStatement = true
	normalizer, err := merchant.NewNormalizer(merchant.DefaultRules())
	require.NoError(t, err)
	cross := NewReconciler(cfg, env.repo, nil, normalizer, env.mover, nil)

	result, err = cross.Attempt(ctx, "r-uber")
	require.NoError(t, err)
	assert.True(t, result.Matched)

	r, err := env.repo.GetReceipt(ctx, "r-uber")
	require.NoError(t, err)
	assert.Equal(t, "stmt-sep", *r.StatementID, "committing moves the receipt to the charge's statement")
}

func TestAttempt_AlreadyMatched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addReceipt(t, uberReceipt("r-uber"))
	env.addCharge(t, "c-uber", "23.45", aug(8), "UBER EATS")
	_, _, err := env.rec.CommitMatch(ctx, "r-uber", "c-uber")
	require.NoError(t, err)

	result, err := env.rec.Attempt(ctx, "r-uber")

	require.NoError(t, err)
	assert.Equal(t, ReasonAlreadyMatched, result.Reason)
}

func TestAttempt_MissingReceipt(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.rec.Attempt(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAttempt_StorageErrorPropagates(t *testing.T) {
	env := newTestEnv(t)
	env.addReceipt(t, uberReceipt("r-uber"))
	env.repo.ListChargesErr = errors.New("disk on fire")

	_, err := env.rec.Attempt(context.Background(), "r-uber")
	assert.ErrorContains(t, err, "disk on fire")
}

func TestRequiredConfidence(t *testing.T) {
	assert.Equal(t, 100, RequiredConfidence(0))
	assert.Equal(t, 95, RequiredConfidence(1))
	assert.Equal(t, 85, RequiredConfidence(2))
	assert.Equal(t, 75, RequiredConfidence(3))
}

// ================================================================
// COMMIT / UNMATCH / SKIP
// ================================================================

func TestCommitMatch_Conflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addReceipt(t, uberReceipt("r-1"))
	env.addReceipt(t, uberReceipt("r-2"))
	env.addCharge(t, "c-1", "23.45", aug(8), "UBER EATS")

	_, _, err := env.rec.CommitMatch(ctx, "r-1", "c-1")
	require.NoError(t, err)

	_, _, err = env.rec.CommitMatch(ctx, "r-2", "c-1")
	assert.ErrorIs(t, err, model.ErrAlreadyMatched)

	r2, err := env.repo.GetReceipt(ctx, "r-2")
	require.NoError(t, err)
	assert.False(t, r2.IsMatched)
}

func TestCommitMatch_MoveFailureKeepsMatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addReceipt(t, uberReceipt("r-1"))
	env.addCharge(t, "c-1", "23.45", aug(8), "UBER EATS")
	env.mover.err = errors.New("permission denied")

	r, c, err := env.rec.CommitMatch(ctx, "r-1", "c-1")

	require.NoError(t, err)
	assert.True(t, r.IsMatched)
	assert.True(t, c.IsMatched)
	assert.Empty(t, r.OrganizedPath)
}

func TestUnmatch_MovesFileBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addReceipt(t, uberReceipt("r-1"))
	env.addCharge(t, "c-1", "23.45", aug(8), "UBER EATS")
	_, _, err := env.rec.CommitMatch(ctx, "r-1", "c-1")
	require.NoError(t, err)

	r, c, err := env.rec.Unmatch(ctx, "r-1")

	require.NoError(t, err)
	assert.False(t, r.IsMatched)
	assert.False(t, c.IsMatched)
	assert.Equal(t, "statements/August_2025/Unmatched/2025-08-08_Uber_Eats_$23.45_RECEIPT.jpg", r.OrganizedPath)

	_, _, err = env.rec.Unmatch(ctx, "r-1")
	assert.ErrorIs(t, err, model.ErrNotMatched)
}

func TestRecordSkip_ExcludesPairFromSuggestions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addReceipt(t, uberReceipt("r-uber"))
	env.addCharge(t, "c-uber", "23.45", aug(8), "UBER EATS")

	event, err := env.rec.RecordSkip(ctx, "r-uber", "c-uber", nil)
	require.NoError(t, err)
	assert.True(t, event.Features.AmountDiff.Known)
	assert.InDelta(t, 0, event.Features.AmountDiff.Value, 1e-9)
	assert.InDelta(t, 1.0, event.Features.MerchantSimilarity.Value, 1e-9)

	result, err := env.rec.Attempt(ctx, "r-uber")
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Equal(t, ReasonNoCandidate, result.Reason)
}

func TestRecordSkip_Validation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.rec.RecordSkip(context.Background(), "", "c-1", nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.rec.RecordSkip(context.Background(), "missing", "c-1", nil)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRecordSkipAsync(t *testing.T) {
	env := newTestEnv(t)
	features := &model.Features{AmountDiff: model.KnownFeature(3)}

	env.rec.RecordSkipAsync("r-1", "c-1", features)
	env.rec.RecordSkipAsync("r-1", "c-2", features)
	env.rec.Wait()

	skips, err := env.repo.ListSkips(context.Background())
	require.NoError(t, err)
	assert.Len(t, skips, 2)
	assert.Equal(t, 2, env.repo.AppendSkipCount())
}

func TestRecordSkipAsync_ErrorIsLogged(t *testing.T) {
	env := newTestEnv(t)
	env.repo.AppendSkipErr = errors.New("locked")

	env.rec.RecordSkipAsync("r-1", "c-1", &model.Features{})
	env.rec.Wait()

	skips, err := env.repo.ListSkips(context.Background())
	require.NoError(t, err)
	assert.Empty(t, skips)
}

// ================================================================
// PROGRESSIVE UPDATE
// ================================================================

func TestUpdateReceipt_Progressive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addCharge(t, "c-uber", "23.45", aug(8), "UBER EATS help.uber.com CA")

	added, err := env.rec.AddReceipt(ctx, &model.Receipt{
		ID:               "r-new",
		OriginalFilename: "IMG_0042.JPG",
		StoragePath:      "uploads/IMG_0042.JPG",
	})
	require.NoError(t, err)
	assert.Nil(t, added.Receipt.StatementID)
	assert.Equal(t, "inbox/IMG_0042.JPG", added.Receipt.OrganizedPath)
	assert.Equal(t, model.ErrInsufficientData.Error(), added.Attempt.Reason)

	// Date arrives first: the receipt moves into the statement.
	step, err := env.rec.UpdateReceipt(ctx, "r-new", ReceiptPatch{Date: ptr(aug(8))})
	require.NoError(t, err)
	assert.Equal(t, "stmt-aug", *step.Receipt.StatementID)
	assert.Equal(t, "statements/August_2025/Unmatched/2025-08-08_UNKNOWN_MERCHANT_UNKNOWN_AMOUNT_RECEIPT.jpg", step.Receipt.OrganizedPath)
	assert.False(t, step.Attempt.Matched)

	// Amount and merchant complete the picture and trigger the match.
	step, err = env.rec.UpdateReceipt(ctx, "r-new", ReceiptPatch{
		Amount:   amount("23.45"),
		Merchant: ptr("Uber Eats"),
		Status:   ptr(model.StatusCompleted),
	})
	require.NoError(t, err)
	assert.True(t, step.Attempt.Matched)
	assert.True(t, step.Receipt.IsMatched)
	assert.Equal(t, model.StatusCompleted, step.Receipt.Status)
	assert.Equal(t, "statements/August_2025/Matched/2025-08-08_Uber_Eats_$23.45_RECEIPT.jpg", step.Receipt.OrganizedPath)
}

func TestUpdateReceipt_DateMovesOutOfStatement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addReceipt(t, &model.Receipt{ID: "r-1", Date: ptr(aug(8)), StatementID: ptr("stmt-aug")})

	result, err := env.rec.UpdateReceipt(ctx, "r-1", ReceiptPatch{Date: ptr(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC))})

	require.NoError(t, err)
	assert.Nil(t, result.Receipt.StatementID)
	assert.Equal(t, "inbox/r-1.jpg", result.Receipt.OrganizedPath)
}

func TestAssignStatement_SkipsMoveWhenPathUnchanged(t *testing.T) {
	// Arrange
	env := newTestEnv(t)
	ctx := context.Background()
	env.addReceipt(t, uberReceipt("r-uber"))

	// Act
	first, err := env.rec.AssignStatement(ctx, "r-uber")
	require.NoError(t, err)
	second, err := env.rec.AssignStatement(ctx, "r-uber")
	require.NoError(t, err)

	// Assert
	want := "statements/August_2025/Unmatched/2025-08-08_Uber_Eats_$23.45_RECEIPT.jpg"
	assert.Equal(t, want, first.OrganizedPath)
	assert.Equal(t, want, second.OrganizedPath)
	assert.Equal(t, [][2]string{{"uploads/r-uber.jpg", want}}, env.mover.moves)
}

func TestAddStatement_AssignsExistingReceipts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addReceipt(t, &model.Receipt{ID: "r-sep", Date: ptr(time.Date(2025, 9, 14, 0, 0, 0, 0, time.UTC))})

	err := env.rec.AddStatement(ctx, &model.Statement{
		ID: "stmt-sep", Name: "September 2025",
		StartDate: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 9, 30, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	r, err := env.repo.GetReceipt(ctx, "r-sep")
	require.NoError(t, err)
	assert.Equal(t, "stmt-sep", *r.StatementID)

	err = env.rec.AddStatement(ctx, &model.Statement{
		StartDate: time.Date(2025, 9, 30, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

// ================================================================
// CHARGES
// ================================================================

func TestCreateChargeFromReceipt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	receipt := uberReceipt("r-cash")
	receipt.StatementID = nil
	env.addReceipt(t, receipt)

	r, c, err := env.rec.CreateChargeFromReceipt(ctx, "r-cash")

	require.NoError(t, err)
	assert.True(t, c.IsNonAmex)
	assert.Equal(t, "stmt-aug", c.StatementID)
	assert.Equal(t, "Uber Eats", c.Description)
	assert.True(t, c.Amount.Equal(decimal.RequireFromString("23.45")))
	assert.True(t, r.IsMatched)
	assert.Equal(t, c.ID, *r.MatchedChargeID)
	assert.Equal(t, "stmt-aug", *r.StatementID)

	_, _, err = env.rec.CreateChargeFromReceipt(ctx, "r-cash")
	assert.ErrorIs(t, err, model.ErrAlreadyMatched)
}

func TestCreateChargeFromReceipt_NeedsAmountAndDate(t *testing.T) {
	env := newTestEnv(t)
	env.addReceipt(t, &model.Receipt{ID: "r-1", Merchant: ptr("Cafe")})

	_, _, err := env.rec.CreateChargeFromReceipt(context.Background(), "r-1")
	assert.ErrorIs(t, err, model.ErrInsufficientData)
}

func TestDeleteCharge_FreesReceipt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addReceipt(t, uberReceipt("r-1"))
	env.addCharge(t, "c-1", "23.45", aug(8), "UBER EATS")
	_, _, err := env.rec.CommitMatch(ctx, "r-1", "c-1")
	require.NoError(t, err)

	require.NoError(t, env.rec.DeleteCharge(ctx, "c-1"))

	r, err := env.repo.GetReceipt(ctx, "r-1")
	require.NoError(t, err)
	assert.False(t, r.IsMatched)
	assert.Contains(t, r.OrganizedPath, "/Unmatched/")
	assert.ErrorIs(t, env.rec.DeleteCharge(ctx, "c-1"), model.ErrNotFound)
}

func TestSetChargeFlags(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addCharge(t, "c-1", "10.00", aug(3), "NETFLIX")

	c, err := env.rec.SetChargeFlags(ctx, "c-1", nil, ptr(true))
	require.NoError(t, err)
	assert.True(t, c.NoReceiptRequired)

	_, err = env.rec.SetChargeFlags(ctx, "c-1", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

// ================================================================
// CANDIDATES / BATCH
// ================================================================

func TestGetCandidates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addReceipt(t, uberReceipt("r-uber"))
	env.addReceipt(t, &model.Receipt{ID: "r-lonely", Amount: amount("500.00"), StatementID: ptr("stmt-aug")})
	env.addCharge(t, "c-uber", "23.45", aug(8), "UBER EATS")
	env.addCharge(t, "c-left", "7.00", aug(12), "PARKING")
	require.NoError(t, env.repo.CreateCharge(ctx, &model.Charge{
		ID: "c-personal", Date: aug(2), Amount: decimal.RequireFromString("3.00"), StatementID: "stmt-aug", IsPersonal: true,
	}))

	set, err := env.rec.GetCandidates(ctx, CandidateQuery{StatementID: "stmt-aug"})

	require.NoError(t, err)
	require.Len(t, set.Pairs, 1)
	assert.Equal(t, "r-uber", set.Pairs[0].Receipt.ID)
	assert.Equal(t, "c-uber", set.Pairs[0].Charge.ID)
	require.Len(t, set.Receipts, 1)
	assert.Equal(t, "r-lonely", set.Receipts[0].ID)
	require.Len(t, set.Charges, 1)
	assert.Equal(t, "c-left", set.Charges[0].ID)
}

func TestReconcile_Batch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addReceipt(t, uberReceipt("r-uber"))
	env.addReceipt(t, &model.Receipt{ID: "r-amt", Amount: amount("7.00"), StatementID: ptr("stmt-aug")})
	env.addReceipt(t, &model.Receipt{ID: "r-empty"})
	env.addCharge(t, "c-uber", "23.45", aug(8), "UBER EATS")
	env.addCharge(t, "c-park", "7.00", aug(12), "PARKING")

	var calls []int
	summary, err := env.rec.Reconcile(ctx, ReconcileOptions{
		Progress: func(done, total int) {
			calls = append(calls, done)
			assert.Equal(t, 3, total)
		},
	})

	require.NoError(t, err)
	assert.Equal(t, 3, summary.Attempted)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 1, summary.NeedsReview)
	assert.Equal(t, 1, summary.Insufficient)
	assert.Equal(t, []int{1, 2, 3}, calls)

	r, err := env.repo.GetReceipt(ctx, "r-amt")
	require.NoError(t, err)
	assert.True(t, r.NeedsReview)
}

// ================================================================
// MODEL / ALIASES
// ================================================================

func TestTrain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.rec.Train(ctx)
	require.NoError(t, err)
	assert.False(t, result.Trained)
	assert.Equal(t, model.ErrInsufficientTrainingData.Error(), result.Reason)

	for i := 0; i < 6; i++ {
		id := string(rune('a' + i))
		env.addReceipt(t, uberReceipt("r-"+id))
		env.addCharge(t, "c-"+id, "23.45", aug(8), "UBER EATS")
		_, _, err := env.rec.CommitMatch(ctx, "r-"+id, "c-"+id)
		require.NoError(t, err)

		_, err = env.rec.RecordSkip(ctx, "r-"+id, "c-skip-"+id, &model.Features{
			AmountDiff:         model.KnownFeature(40),
			DateDiffDays:       model.KnownFeature(20),
			MerchantSimilarity: model.KnownFeature(0.1),
		})
		require.NoError(t, err)
	}

	result, err = env.rec.Train(ctx)

	require.NoError(t, err)
	assert.True(t, result.Trained)
	assert.Equal(t, 6, result.Positives)
	assert.Equal(t, 6, result.Negatives)
	require.NotNil(t, env.repo.LastSavedWeights)
	assert.Equal(t, 1, env.repo.LastSavedWeights.Version)
	assert.Equal(t, 1, env.rec.ModelInfo(ctx).Weights.Version)
}

func TestModelInfo_AdaptiveThreshold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assert.Equal(t, 70, env.rec.ModelInfo(ctx).AdaptiveThreshold)

	// All recent activity is acceptance: threshold drops.
	env.addReceipt(t, uberReceipt("r-1"))
	env.addCharge(t, "c-1", "23.45", aug(8), "UBER EATS")
	_, _, err := env.rec.CommitMatch(ctx, "r-1", "c-1")
	require.NoError(t, err)

	assert.Equal(t, 65, env.rec.ModelInfo(ctx).AdaptiveThreshold)
}

func TestAddAlias(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.rec.AddAlias(ctx, merchant.Alias{Pattern: "JPMCB", Canonical: "Chase Bank"}))
	assert.Equal(t, "Chase Bank", env.rec.Normalize("JPMCB CARD SERVICES"))

	stored, err := env.repo.ListAliases(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	err = env.rec.AddAlias(ctx, merchant.Alias{Pattern: "(", Canonical: "X", Regex: true})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestInit_LoadsStoredAliases(t *testing.T) {
	repo := storage.NewMockRepository()
	require.NoError(t, repo.SaveAlias(context.Background(), merchant.Alias{Pattern: "ZZ MART", Canonical: "ZED MART"}))
	require.NoError(t, repo.SaveAlias(context.Background(), merchant.Alias{Pattern: "[", Canonical: "BROKEN", Regex: true}))

	normalizer, err := merchant.NewNormalizer(merchant.DefaultRules())
	require.NoError(t, err)
	rec := NewReconciler(DefaultConfig(), repo, nil, normalizer, nil, nil)

	require.NoError(t, rec.Init(context.Background()))
	assert.Equal(t, "Zed Mart", rec.Normalize("ZZ MART #42"))
}
