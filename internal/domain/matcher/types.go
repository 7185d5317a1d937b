package matcher

import (
	"github.com/eshaffer321/receipt-reconciler/internal/domain/model"
	"github.com/shopspring/decimal"
)

// Config holds the rule bands and blend ratio.
type Config struct {
	RuleWeight     float64 // Default: 0.4
	LearnedWeight  float64 // Default: 0.6
	InclusionFloor int     // Candidates must score above this (default: 25)

	ExactAmountTolerance decimal.Decimal // Default: 0.01
	NearAmountTolerance  decimal.Decimal // Default: 1.00
	CloseAmountRatio     decimal.Decimal // Fraction of the receipt amount (default: 0.05)

	ExactAmountPoints int
	NearAmountPoints  int
	CloseAmountPoints int

	SameDayPoints   int
	OneDayPoints    int
	ThreeDayPoints  int
	HighMerchant    float64
	MidMerchant     float64
	LowMerchant     float64
	HighMerchantPts int
	MidMerchantPts  int
	LowMerchantPts  int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		RuleWeight:     0.4,
		LearnedWeight:  0.6,
		InclusionFloor: 25,

		ExactAmountTolerance: decimal.RequireFromString("0.01"),
		NearAmountTolerance:  decimal.RequireFromString("1.00"),
		CloseAmountRatio:     decimal.RequireFromString("0.05"),

		ExactAmountPoints: 40,
		NearAmountPoints:  25,
		CloseAmountPoints: 10,

		SameDayPoints:  30,
		OneDayPoints:   20,
		ThreeDayPoints: 10,

		HighMerchant:    0.8,
		MidMerchant:     0.6,
		LowMerchant:     0.4,
		HighMerchantPts: 30,
		MidMerchantPts:  20,
		LowMerchantPts:  10,
	}
}

// Scorer produces the learned confidence for a feature vector.
type Scorer interface {
	Score(f model.Features) int
}

// MerchantComparer scores two raw merchant strings in [0, 1].
type MerchantComparer interface {
	Compare(a, b string) float64
}

// Options narrows a Generate call.
type Options struct {
	// Exclusions are pairs the user already rejected.
	Exclusions map[model.PairKey]bool
}
