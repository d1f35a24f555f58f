package score

import (
	"math"

	"github.com/opensource-finance/harrier/internal/domain"
)

// EstimateMetrics derives precision/recall estimates from the score
// distribution when no labels are available. Flagged accounts are bucketed
// by score and each bucket contributes an assumed precision.
func EstimateMetrics(accounts []*domain.SuspiciousAccount, filteredOut int) *domain.Metrics {
	var high, medium, low int
	for _, acct := range accounts {
		switch {
		case acct.SuspicionScore >= 70:
			high++
		case acct.SuspicionScore >= 50:
			medium++
		default:
			low++
		}
	}

	n := len(accounts)
	precision := 0.0
	if n > 0 {
		precision = (float64(high)*0.85 + float64(medium)*0.65 + float64(low)*0.40) / float64(n)
	}
	recall := math.Min(0.70, float64(n)/math.Max(100, float64(n)*1.5))
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}

	return &domain.Metrics{
		Precision:             percent(precision),
		Recall:                percent(recall),
		F1Score:               percent(f1),
		Estimated:             true,
		HighConfidenceCount:   high,
		MediumConfidenceCount: medium,
		LowConfidenceCount:    low,
		AccountsFiltered:      filteredOut,
	}
}

// ExactMetrics computes the confusion matrix against a labeled fraud set.
// totalAccounts is the full population the batch covered, so true negatives
// can be counted.
func ExactMetrics(accounts []*domain.SuspiciousAccount, fraudulent map[string]bool, totalAccounts int) *domain.Metrics {
	var tp, fp int
	detected := make(map[string]bool, len(accounts))
	for _, acct := range accounts {
		detected[acct.AccountID] = true
		if fraudulent[acct.AccountID] {
			tp++
		} else {
			fp++
		}
	}
	fn := 0
	for id := range fraudulent {
		if !detected[id] {
			fn++
		}
	}
	tn := totalAccounts - tp - fp - fn
	if tn < 0 {
		tn = 0
	}

	precision := ratio(tp, tp+fp)
	recall := ratio(tp, tp+fn)
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	accuracy := ratio(tp+tn, totalAccounts)

	return &domain.Metrics{
		Precision:      percent(precision),
		Recall:         percent(recall),
		F1Score:        percent(f1),
		Accuracy:       percent(accuracy),
		TruePositives:  tp,
		FalsePositives: fp,
		FalseNegatives: fn,
		TrueNegatives:  tn,
	}
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// percent maps a [0,1] ratio to a percentage with two decimals.
func percent(v float64) float64 {
	return math.Round(v*10000) / 100
}
