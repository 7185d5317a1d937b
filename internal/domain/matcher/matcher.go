// Package matcher pairs receipts with statement charges.
//
// Each candidate pair gets a feature vector, a rule score from fixed point
// bands, and a learned score from the confidence model. The two are blended
// into a single confidence:
//   - Amount: exact (1 cent) / near ($1) / close (5% of receipt)
//   - Date: same day / within 1 day / within 3 days
//   - Merchant: normalized similarity bands
//
// Only the best candidate per receipt is kept.
//
// Example usage:
//
//	g := matcher.NewGenerator(matcher.DefaultConfig(), normalizer, model)
//	candidates := g.Generate(receipts, charges, matcher.Options{})
//	if len(candidates) > 0 {
//		best := candidates[0]
//	}
package matcher

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/model"
)

// Generator enumerates and ranks receipt/charge candidates.
type Generator struct {
	config   Config
	comparer MerchantComparer
	scorer   Scorer
}

// NewGenerator creates a new generator with the given config
func NewGenerator(config Config, comparer MerchantComparer, scorer Scorer) *Generator {
	return &Generator{
		config:   config,
		comparer: comparer,
		scorer:   scorer,
	}
}

// Generate returns at most one candidate per eligible receipt, sorted best
// first. Candidates at or below the inclusion floor are dropped.
func (g *Generator) Generate(receipts []*model.Receipt, charges []*model.Charge, opts Options) []model.MatchCandidate {
	eligible := make([]*model.Charge, 0, len(charges))
	for _, c := range charges {
		if c.IsMatched || !c.NeedsReceipt() {
			continue
		}
		eligible = append(eligible, c)
	}

	var out []model.MatchCandidate
	for _, r := range receipts {
		if r.IsMatched || !r.HasAmount() || !r.Amount.IsPositive() {
			continue
		}

		var best *model.MatchCandidate
		for _, c := range eligible {
			if opts.Exclusions[model.PairKey{ReceiptID: r.ID, ChargeID: c.ID}] {
				continue
			}

			cand := g.Score(r, c)
			if best == nil || compareCandidates(&cand, best) < 0 {
				best = &cand
			}
		}

		if best != nil && best.Confidence > g.config.InclusionFloor {
			out = append(out, *best)
		}
	}

	slices.SortStableFunc(out, func(a, b model.MatchCandidate) int {
		if c := compareCandidates(&a, &b); c != 0 {
			return c
		}
		return cmp.Compare(a.Receipt.ID, b.Receipt.ID)
	})

	return out
}

// Score builds a fully scored candidate for one pair.
func (g *Generator) Score(r *model.Receipt, c *model.Charge) model.MatchCandidate {
	f := g.ExtractFeatures(r, c)
	rule := g.RuleScore(f, r)

	learned := 0
	if g.scorer != nil {
		learned = g.scorer.Score(f)
	}

	return model.MatchCandidate{
		Receipt:      r,
		Charge:       c,
		Features:     f,
		RuleScore:    rule,
		LearnedScore: learned,
		Confidence:   g.Blend(rule, learned),
	}
}

// Blend mixes the rule and learned scores with the configured ratio.
func (g *Generator) Blend(rule, learned int) int {
	v := math.Round(g.config.RuleWeight*float64(rule) + g.config.LearnedWeight*float64(learned))
	return int(math.Max(0, math.Min(100, v)))
}

// ExtractFeatures computes the feature vector for a pair. A feature is
// unknown when the receipt field it depends on is missing.
func (g *Generator) ExtractFeatures(r *model.Receipt, c *model.Charge) model.Features {
	f := model.Features{
		AmountDiff:         model.UnknownFeature(),
		DateDiffDays:       model.UnknownFeature(),
		MerchantSimilarity: model.UnknownFeature(),
		CategoryMatch:      model.UnknownFeature(),
	}

	if r.HasAmount() {
		diff, _ := r.Amount.Sub(c.Amount).Abs().Float64()
		f.AmountDiff = model.KnownFeature(diff)
	}

	if r.HasDate() && !c.Date.IsZero() {
		f.DateDiffDays = model.KnownFeature(math.Abs(float64(DaysBetween(*r.Date, c.Date))))
	}

	if r.HasMerchant() && strings.TrimSpace(c.Description) != "" && g.comparer != nil {
		f.MerchantSimilarity = model.KnownFeature(g.comparer.Compare(*r.Merchant, c.Description))
	}

	if r.HasCategory() && strings.TrimSpace(c.Category) != "" {
		match := 0.0
		if strings.EqualFold(strings.TrimSpace(*r.Category), strings.TrimSpace(c.Category)) {
			match = 1.0
		}
		f.CategoryMatch = model.KnownFeature(match)
	}

	return f
}

// RuleScore sums the fixed band points for the known features.
func (g *Generator) RuleScore(f model.Features, r *model.Receipt) int {
	score := 0

	if f.AmountDiff.Known {
		diff := f.AmountDiff.Value
		exact, _ := g.config.ExactAmountTolerance.Float64()
		near, _ := g.config.NearAmountTolerance.Float64()

		// Small epsilon for float conversion of decimal amounts.
		const epsilon = 0.0000001
		switch {
		case diff <= exact+epsilon:
			score += g.config.ExactAmountPoints
		case diff <= near+epsilon:
			score += g.config.NearAmountPoints
		case r != nil && r.HasAmount() && r.Amount.IsPositive():
			limit, _ := r.Amount.Mul(g.config.CloseAmountRatio).Float64()
			if diff <= limit+epsilon {
				score += g.config.CloseAmountPoints
			}
		}
	}

	if f.DateDiffDays.Known {
		switch d := f.DateDiffDays.Value; {
		case d == 0:
			score += g.config.SameDayPoints
		case d <= 1:
			score += g.config.OneDayPoints
		case d <= 3:
			score += g.config.ThreeDayPoints
		}
	}

	if f.MerchantSimilarity.Known {
		switch s := f.MerchantSimilarity.Value; {
		case s >= g.config.HighMerchant:
			score += g.config.HighMerchantPts
		case s >= g.config.MidMerchant:
			score += g.config.MidMerchantPts
		case s >= g.config.LowMerchant:
			score += g.config.LowMerchantPts
		}
	}

	return score
}

// DaysBetween counts calendar days from a to b in UTC.
func DaysBetween(a, b time.Time) int {
	ad := time.Date(a.UTC().Year(), a.UTC().Month(), a.UTC().Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.UTC().Year(), b.UTC().Month(), b.UTC().Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad).Hours() / 24)
}

// compareCandidates orders candidates: higher confidence, then smaller amount
// gap, then smaller date gap, then charge ID.
func compareCandidates(a, b *model.MatchCandidate) int {
	if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
		return c
	}
	if c := cmp.Compare(gap(a.Features.AmountDiff), gap(b.Features.AmountDiff)); c != 0 {
		return c
	}
	if c := cmp.Compare(gap(a.Features.DateDiffDays), gap(b.Features.DateDiffDays)); c != 0 {
		return c
	}
	return cmp.Compare(a.Charge.ID, b.Charge.ID)
}

func gap(f model.Feature) float64 {
	if !f.Known {
		return math.Inf(1)
	}
	return f.Value
}
