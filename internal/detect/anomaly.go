package detect

import (
	"math"
	"sort"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Amount anomaly thresholds. An account needs a minimum history before any
// ratio is meaningful.
const (
	amountMinHistory  = 5
	roundRatioFlag    = 0.6
	roundMinCount     = 10
	repeatRatioFlag   = 0.3
	repeatMinCount    = 5
	clusterRatioFlag  = 0.4
	clusterMinCount   = 10
	clusterMaxRelDiff = 0.05
)

// detectAmountAnomalies flags accounts whose amount distribution looks
// engineered: heavy use of round numbers, one exact amount repeated, or many
// amounts clustered within five percent of each other.
func (d *Detector) detectAmountAnomalies(txs []domain.Transaction) []domain.AnomalyMatch {
	byAccount := make(map[string][]float64)
	var order []string
	for _, tx := range txs {
		for _, id := range []string{tx.SenderID, tx.ReceiverID} {
			if _, ok := byAccount[id]; !ok {
				order = append(order, id)
			}
			byAccount[id] = append(byAccount[id], tx.Amount)
		}
	}

	var matches []domain.AnomalyMatch
	for _, id := range order {
		amounts := byAccount[id]
		if len(amounts) < amountMinHistory {
			continue
		}

		round := 0
		freq := make(map[float64]int)
		for _, amt := range amounts {
			if math.Mod(amt, 100) == 0 || math.Mod(amt, 1000) == 0 {
				round++
			}
			freq[amt]++
		}
		maxRepeat := 0
		for _, c := range freq {
			if c > maxRepeat {
				maxRepeat = c
			}
		}
		n := float64(len(amounts))
		roundRatio := float64(round) / n
		repeatRatio := float64(maxRepeat) / n

		sorted := make([]float64, len(amounts))
		copy(sorted, amounts)
		sort.Float64s(sorted)
		clusters := 0
		for i := 1; i < len(sorted); i++ {
			avg := (sorted[i] + sorted[i-1]) / 2
			if avg > 0 && (sorted[i]-sorted[i-1])/avg < clusterMaxRelDiff {
				clusters++
			}
		}
		clusterRatio := float64(clusters) / n

		if (roundRatio > roundRatioFlag && len(amounts) >= roundMinCount) ||
			(repeatRatio > repeatRatioFlag && len(amounts) >= repeatMinCount) ||
			(clusterRatio > clusterRatioFlag && len(amounts) >= clusterMinCount) {
			matches = append(matches, domain.AnomalyMatch{
				AccountID: id,
				Pattern:   domain.PatternAmountAnomaly,
			})
		}
	}
	return matches
}

// Lifecycle thresholds: new accounts that immediately run hot, and accounts
// whose activity density is out of proportion to their active span.
const (
	rapidWindowDays  = 7
	rapidMinTx       = 10
	densityFlag      = 5.0
	densityMinTx     = 20
	lifecycleDaySpan = 24 * time.Hour
)

// detectLifecycleAnomalies tracks each account's first activity relative to
// the dataset start and its transaction density over its own active span.
func (d *Detector) detectLifecycleAnomalies(txs []domain.Transaction) []domain.AnomalyMatch {
	if len(txs) == 0 {
		return nil
	}

	datasetStart := txs[0].Timestamp
	for _, tx := range txs {
		if tx.Timestamp.Before(datasetStart) {
			datasetStart = tx.Timestamp
		}
	}

	activity := make(map[string][]time.Time)
	var order []string
	for _, tx := range txs {
		for _, id := range []string{tx.SenderID, tx.ReceiverID} {
			if _, ok := activity[id]; !ok {
				order = append(order, id)
			}
			activity[id] = append(activity[id], tx.Timestamp)
		}
	}

	var matches []domain.AnomalyMatch
	for _, id := range order {
		times := activity[id]
		first, last := times[0], times[0]
		for _, t := range times {
			if t.Before(first) {
				first = t
			}
			if t.After(last) {
				last = t
			}
		}

		sinceStart := daysBetween(datasetStart, first)
		firstWeek := 0
		weekEnd := first.Add(rapidWindowDays * lifecycleDaySpan)
		for _, t := range times {
			if !t.After(weekEnd) {
				firstWeek++
			}
		}
		if sinceStart < rapidWindowDays && firstWeek >= rapidMinTx {
			matches = append(matches, domain.AnomalyMatch{
				AccountID: id,
				Pattern:   domain.PatternRapidNewAccount,
			})
		}

		spanDays := daysBetween(first, last)
		if spanDays < 1 {
			spanDays = 1
		}
		density := float64(len(times)) / float64(spanDays)
		if density > densityFlag && len(times) >= densityMinTx {
			matches = append(matches, domain.AnomalyMatch{
				AccountID: id,
				Pattern:   domain.PatternHighActivityDensity,
			})
		}
	}
	return matches
}

// daysBetween is the whole-day difference, truncated toward zero.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a) / lifecycleDaySpan)
}
