package confidence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSamples struct {
	positives []model.TrainingSample
	negatives []model.TrainingSample
	since     time.Time
	err       error
}

func (f *fakeSamples) PositiveSamples(ctx context.Context, since time.Time) ([]model.TrainingSample, error) {
	f.since = since
	return f.positives, f.err
}

func (f *fakeSamples) NegativeSamples(ctx context.Context) ([]model.TrainingSample, error) {
	return f.negatives, f.err
}

type fakeStore struct {
	loaded  *model.Weights
	loadErr error
	saved   *model.Weights
	saveErr error
}

func (f *fakeStore) LoadWeights(ctx context.Context) (*model.Weights, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.loaded == nil {
		return nil, model.ErrNotFound
	}
	return f.loaded, nil
}

func (f *fakeStore) SaveWeights(ctx context.Context, w model.Weights) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = &w
	return nil
}

type fakeActivity struct {
	matches int
	skips   int
	err     error
}

func (f *fakeActivity) CountMatchesSince(ctx context.Context, since time.Time) (int, error) {
	return f.matches, f.err
}

func (f *fakeActivity) CountSkipsSince(ctx context.Context, since time.Time) (int, error) {
	return f.skips, f.err
}

func features(amount, days, merchant float64) model.Features {
	return model.Features{
		AmountDiff:         model.KnownFeature(amount),
		DateDiffDays:       model.KnownFeature(days),
		MerchantSimilarity: model.KnownFeature(merchant),
		CategoryMatch:      model.UnknownFeature(),
	}
}

func samples(n int, f model.Features, label float64) []model.TrainingSample {
	out := make([]model.TrainingSample, n)
	for i := range out {
		out[i] = model.TrainingSample{Features: f, Label: label}
	}
	return out
}

func TestModel_Score_DefaultWeights(t *testing.T) {
	m := NewModel(DefaultConfig(), nil, nil, nil, nil)

	t.Run("perfect match scores high", func(t *testing.T) {
		assert.Equal(t, 95, m.Score(features(0, 0, 1.0)))
	})

	t.Run("nothing known scores low", func(t *testing.T) {
		assert.Less(t, m.Score(model.Features{}), 10)
	})

	t.Run("unknown amount is penalized", func(t *testing.T) {
		known := features(0, 0, 1.0)
		unknown := known
		unknown.AmountDiff = model.UnknownFeature()

		assert.Less(t, m.Score(unknown), m.Score(known))
	})

	t.Run("amount and date are capped", func(t *testing.T) {
		assert.Equal(t, m.Score(features(50, 30, 0.5)), m.Score(features(5000, 300, 0.5)))
	})

	t.Run("score stays in range", func(t *testing.T) {
		for _, f := range []model.Features{
			features(0, 0, 1),
			features(1000, 1000, 0),
			{},
		} {
			s := m.Score(f)
			assert.GreaterOrEqual(t, s, 0)
			assert.LessOrEqual(t, s, 100)
		}
	})

	t.Run("merchant similarity raises score", func(t *testing.T) {
		assert.Greater(t, m.Score(features(0, 0, 0.9)), m.Score(features(0, 0, 0.3)))
	})
}

func TestModel_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("uses persisted weights", func(t *testing.T) {
		stored := model.Weights{Amount: -1, Date: -1, Merchant: 2, Category: 1, Bias: 0, Version: 4}
		m := NewModel(DefaultConfig(), &fakeStore{loaded: &stored}, nil, nil, nil)

		require.NoError(t, m.Load(ctx))

		assert.Equal(t, stored, m.Weights())
	})

	t.Run("keeps defaults when nothing saved", func(t *testing.T) {
		m := NewModel(DefaultConfig(), &fakeStore{}, nil, nil, nil)

		require.NoError(t, m.Load(ctx))

		assert.Equal(t, model.DefaultWeights(), m.Weights())
	})

	t.Run("propagates store errors", func(t *testing.T) {
		m := NewModel(DefaultConfig(), &fakeStore{loadErr: errors.New("disk gone")}, nil, nil, nil)

		assert.Error(t, m.Load(ctx))
		assert.Equal(t, model.DefaultWeights(), m.Weights())
	})
}

func TestModel_Train(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("too few samples is a no-op", func(t *testing.T) {
		// Arrange
		store := &fakeStore{}
		src := &fakeSamples{
			positives: samples(5, features(0, 0, 0.9), 1),
			negatives: samples(4, features(20, 10, 0.1), 0),
		}
		m := NewModel(DefaultConfig(), store, src, nil, nil)

		// Act
		result, err := m.Train(ctx)

		// Assert
		require.NoError(t, err)
		assert.False(t, result.Trained)
		assert.Equal(t, 9, result.Samples)
		assert.NotEmpty(t, result.Reason)
		assert.Nil(t, store.saved)
		assert.Equal(t, model.DefaultWeights(), m.Weights())
	})

	t.Run("fits and publishes new weights", func(t *testing.T) {
		// Arrange
		store := &fakeStore{}
		src := &fakeSamples{
			positives: samples(20, features(0, 0, 0.9), 1),
			negatives: samples(20, features(20, 10, 0.1), 0),
		}
		m := NewModel(DefaultConfig(), store, src, nil, nil)
		m.now = func() time.Time { return now }

		// Act
		result, err := m.Train(ctx)

		// Assert
		require.NoError(t, err)
		assert.True(t, result.Trained)
		assert.Equal(t, 40, result.Samples)
		assert.Equal(t, 20, result.Positives)
		assert.Equal(t, 20, result.Negatives)
		assert.Equal(t, 1, result.Weights.Version)
		assert.Equal(t, 40, result.Weights.SampleCount)
		assert.Equal(t, now, result.Weights.TrainedAt)
		assert.Greater(t, result.Weights.Merchant, model.DefaultWeights().Merchant)

		require.NotNil(t, store.saved)
		assert.Equal(t, result.Weights, *store.saved)
		assert.Equal(t, result.Weights, m.Weights())
		assert.Equal(t, now.Add(-90*24*time.Hour), src.since)
	})

	t.Run("retraining unchanged samples gives the same weights", func(t *testing.T) {
		// Arrange
		src := &fakeSamples{
			positives: samples(6, features(0, 0, 0.9), 1),
			negatives: samples(6, features(20, 10, 0.1), 0),
		}
		m := NewModel(DefaultConfig(), &fakeStore{}, src, nil, nil)

		// Act
		first, err := m.Train(ctx)
		require.NoError(t, err)
		second, err := m.Train(ctx)
		require.NoError(t, err)

		// Assert
		require.True(t, first.Trained)
		require.True(t, second.Trained)
		assert.Equal(t, first.Weights.Amount, second.Weights.Amount)
		assert.Equal(t, first.Weights.Date, second.Weights.Date)
		assert.Equal(t, first.Weights.Merchant, second.Weights.Merchant)
		assert.Equal(t, first.Weights.Category, second.Weights.Category)
		assert.Equal(t, first.Weights.Bias, second.Weights.Bias)
		assert.Equal(t, 1, first.Weights.Version)
		assert.Equal(t, 2, second.Weights.Version)
	})

	t.Run("rejects concurrent training", func(t *testing.T) {
		m := NewModel(DefaultConfig(), &fakeStore{}, &fakeSamples{}, nil, nil)
		m.trainMu.Lock()
		defer m.trainMu.Unlock()

		_, err := m.Train(ctx)

		assert.ErrorIs(t, err, model.ErrTrainingInProgress)
	})

	t.Run("save failure keeps old weights", func(t *testing.T) {
		store := &fakeStore{saveErr: errors.New("read-only")}
		src := &fakeSamples{
			positives: samples(10, features(0, 0, 0.9), 1),
			negatives: samples(10, features(20, 10, 0.1), 0),
		}
		m := NewModel(DefaultConfig(), store, src, nil, nil)

		_, err := m.Train(ctx)

		assert.Error(t, err)
		assert.Equal(t, model.DefaultWeights(), m.Weights())
	})

	t.Run("sample source failure", func(t *testing.T) {
		m := NewModel(DefaultConfig(), &fakeStore{}, &fakeSamples{err: errors.New("db locked")}, nil, nil)

		_, err := m.Train(ctx)

		assert.Error(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		src := &fakeSamples{
			positives: samples(10, features(0, 0, 0.9), 1),
			negatives: samples(10, features(20, 10, 0.1), 0),
		}
		m := NewModel(DefaultConfig(), &fakeStore{}, src, nil, nil)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := m.Train(cctx)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, model.DefaultWeights(), m.Weights())
	})
}

func TestModel_AdaptiveThreshold(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		activity *fakeActivity
		want     int
	}{
		{"no activity", &fakeActivity{}, 70},
		{"mostly accepted", &fakeActivity{matches: 8, skips: 2}, 65},
		{"all accepted", &fakeActivity{matches: 3}, 65},
		{"half accepted", &fakeActivity{matches: 5, skips: 5}, 70},
		{"mostly skipped", &fakeActivity{matches: 1, skips: 4}, 75},
		{"count failure", &fakeActivity{err: errors.New("boom")}, 70},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModel(DefaultConfig(), nil, nil, tt.activity, nil)
			assert.Equal(t, tt.want, m.AdaptiveThreshold(ctx))
		})
	}

	t.Run("no counter configured", func(t *testing.T) {
		m := NewModel(DefaultConfig(), nil, nil, nil, nil)
		assert.Equal(t, 70, m.AdaptiveThreshold(ctx))
	})
}
