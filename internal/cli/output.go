package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/eshaffer321/receipt-reconciler/internal/application/service"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/confidence"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/storage"
)

// PrintAttempt prints the outcome of a single auto-match attempt
func PrintAttempt(w io.Writer, receiptID string, result *service.AttemptResult) {
	status := "UNMATCHED"
	if result.Matched {
		status = "MATCHED"
	}
	fmt.Fprintf(w, "%s %s: %s\n", receiptID, status, result.Reason)

	if c := result.Candidate; c != nil {
		fmt.Fprintf(w, "  best: %s %s $%s (%s)\n",
			c.Charge.ID,
			c.Charge.Date.Format("2006-01-02"),
			c.Charge.Amount.StringFixed(2),
			c.Charge.Description)
		fmt.Fprintf(w, "  confidence=%d rule=%d learned=%d threshold=%d required=%d\n",
			c.Confidence, c.RuleScore, c.LearnedScore, result.Threshold, result.RequiredConfidence)
	}
}

// PrintReconcileSummary prints the batch result summary
func PrintReconcileSummary(w io.Writer, summary *service.ReconcileSummary) {
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Summary: Attempted=%d Matched=%d NeedsReview=%d NoCandidate=%d Insufficient=%d Errors=%d\n",
		summary.Attempted,
		summary.Matched,
		summary.NeedsReview,
		summary.NoCandidate,
		summary.Insufficient,
		summary.Errors)
}

// PrintTrainResult prints a training run
func PrintTrainResult(w io.Writer, result confidence.TrainResult) {
	if !result.Trained {
		fmt.Fprintf(w, "Training skipped: %s (positives=%d negatives=%d)\n",
			result.Reason, result.Positives, result.Negatives)
		return
	}

	wt := result.Weights
	fmt.Fprintf(w, "Trained model v%d on %d samples (positives=%d negatives=%d)\n",
		wt.Version, wt.SampleCount, result.Positives, result.Negatives)
	fmt.Fprintf(w, "  amount=%.4f date=%.4f merchant=%.4f category=%.4f bias=%.4f\n",
		wt.Amount, wt.Date, wt.Merchant, wt.Category, wt.Bias)
}

// PrintStats prints aggregate counts
func PrintStats(w io.Writer, stats *storage.Stats) {
	matchRate := 0.0
	if stats.Receipts > 0 {
		matchRate = float64(stats.MatchedReceipts) / float64(stats.Receipts) * 100
	}
	fmt.Fprintf(w, "Receipts=%d Matched=%d (%.1f%%) Unassigned=%d NeedsReview=%d\n",
		stats.Receipts, stats.MatchedReceipts, matchRate, stats.UnassignedReceipts, stats.NeedsReview)
	fmt.Fprintf(w, "Charges=%d Matched=%d OwingReceipt=%d Skips=%d ModelVersion=%d\n",
		stats.Charges, stats.MatchedCharges, stats.ChargesOwingReceipt, stats.Skips, stats.ModelVersion)
}
