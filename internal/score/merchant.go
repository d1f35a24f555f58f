package score

import (
	"math"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
)

// isLegitimateMerchant decides whether a well-connected account looks like a
// regular business rather than a mule. Merchants keep their flags but get a
// suppressed score so organized activity still outranks them.
func (s *Scorer) isLegitimateMerchant(g *graph.Graph, id string, txs []domain.Transaction) bool {
	in, out := g.InDegree(id), g.OutDegree(id)
	if in < s.params.MerchantMinDegree || out < s.params.MerchantMinDegree {
		return false
	}
	if len(txs) == 0 {
		return false
	}

	span := activitySpanDays(txs)
	if !s.params.MerchantHeuristics {
		return span >= 30
	}

	// A long-running account with varied amounts across varied hours of the
	// day is the strongest merchant signal.
	if span >= 30 && amountBucketDiversity(txs) >= 0.4 && hourDiversity(txs) >= 0.3 {
		return true
	}

	// Fallback: balanced money in and out over a sustained period.
	return balanceRatio(txs, id) > 0.6 && span >= 20
}

// activitySpanDays is whole days between the earliest and latest transaction,
// truncated toward zero.
func activitySpanDays(txs []domain.Transaction) int {
	first, last := txs[0].Timestamp, txs[0].Timestamp
	for _, tx := range txs[1:] {
		if tx.Timestamp.Before(first) {
			first = tx.Timestamp
		}
		if tx.Timestamp.After(last) {
			last = tx.Timestamp
		}
	}
	return int(last.Sub(first).Hours() / 24)
}

// amountBucketDiversity counts distinct 100-unit floor buckets relative to
// transaction count. Mules recycle near-identical amounts; merchants do not.
func amountBucketDiversity(txs []domain.Transaction) float64 {
	buckets := make(map[float64]struct{}, len(txs))
	for _, tx := range txs {
		buckets[math.Floor(tx.Amount/100)*100] = struct{}{}
	}
	return float64(len(buckets)) / float64(len(txs))
}

// hourDiversity is the fraction of the 24 clock hours the account was active
// in.
func hourDiversity(txs []domain.Transaction) float64 {
	hours := make(map[int]struct{}, 24)
	for _, tx := range txs {
		hours[tx.Timestamp.Hour()] = struct{}{}
	}
	return float64(len(hours)) / 24
}

// balanceRatio compares total inflow to total outflow for the account,
// smaller over larger.
func balanceRatio(txs []domain.Transaction, id string) float64 {
	var inflow, outflow float64
	for _, tx := range txs {
		if tx.ReceiverID == id {
			inflow += tx.Amount
		}
		if tx.SenderID == id {
			outflow += tx.Amount
		}
	}
	lo, hi := math.Min(inflow, outflow), math.Max(inflow, outflow)
	if hi == 0 {
		return 0
	}
	return lo / hi
}
