package model

import (
	"strings"
	"time"
)

// Feature is one engineered signal. Known is false when the inputs needed to
// compute it were missing; Value is meaningless in that case.
type Feature struct {
	Value float64 `json:"value"`
	Known bool    `json:"known"`
}

// KnownFeature wraps a computed value.
func KnownFeature(v float64) Feature {
	return Feature{Value: v, Known: true}
}

// UnknownFeature is the sentinel for a signal that could not be computed.
func UnknownFeature() Feature {
	return Feature{}
}

// Features is the feature vector shared by rule scoring, the learned model
// and the skip ledger.
type Features struct {
	AmountDiff         Feature `json:"amount_diff"`
	DateDiffDays       Feature `json:"date_diff_days"`
	MerchantSimilarity Feature `json:"merchant_similarity"`
	CategoryMatch      Feature `json:"category_match"`
}

// TrainingSample is a labeled feature vector. Label is 1 for an accepted
// match and 0 for a rejection.
type TrainingSample struct {
	Features Features
	Label    float64
}

// Weights parameterize the confidence model.
type Weights struct {
	Amount      float64   `json:"amount" yaml:"amount"`
	Date        float64   `json:"date" yaml:"date"`
	Merchant    float64   `json:"merchant" yaml:"merchant"`
	Category    float64   `json:"category" yaml:"category"`
	Bias        float64   `json:"bias" yaml:"bias"`
	Version     int       `json:"version" yaml:"version"`
	SampleCount int       `json:"sample_count" yaml:"sample_count"`
	TrainedAt   time.Time `json:"trained_at,omitempty" yaml:"trained_at,omitempty"`
}

// DefaultWeights produce sane scores with no training data: larger amount and
// date gaps lower confidence, merchant similarity and category match raise it.
func DefaultWeights() Weights {
	return Weights{
		Amount:   -0.5,
		Date:     -0.3,
		Merchant: 3.5,
		Category: 0.5,
		Bias:     -0.5,
	}
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
