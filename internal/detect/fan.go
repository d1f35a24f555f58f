package detect

import (
	"sort"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
)

// detectFans finds fan-in and fan-out hubs: accounts dealing with an
// unusually large number of distinct counterparties inside one sliding time
// window.
func (d *Detector) detectFans(g *graph.Graph, txs []domain.Transaction) []domain.FanMatch {
	incoming := make(map[string][]domain.Transaction)
	outgoing := make(map[string][]domain.Transaction)
	for _, tx := range txs {
		incoming[tx.ReceiverID] = append(incoming[tx.ReceiverID], tx)
		outgoing[tx.SenderID] = append(outgoing[tx.SenderID], tx)
	}

	var matches []domain.FanMatch
	for _, node := range g.Nodes() {
		if g.InDegree(node) >= d.params.FanDegreeThreshold {
			if m, ok := d.scanWindows(incoming[node], node, domain.PatternFanIn); ok {
				matches = append(matches, m)
			}
		}
		if g.OutDegree(node) >= d.params.FanDegreeThreshold {
			if m, ok := d.scanWindows(outgoing[node], node, domain.PatternFanOut); ok {
				matches = append(matches, m)
			}
		}
	}
	return matches
}

// scanWindows slides a fixed-duration window anchored at each transaction and
// stops at the first qualifying window. Later windows could in principle hold
// a larger counterparty count; the first hit is what gets reported.
func (d *Detector) scanWindows(txs []domain.Transaction, node string, pattern domain.PatternType) (domain.FanMatch, bool) {
	sorted := make([]domain.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	for i := range sorted {
		windowEnd := sorted[i].Timestamp.Add(d.params.FanWindow)

		counterparties := make(map[string]struct{})
		count := 0
		for j := i; j < len(sorted); j++ {
			if sorted[j].Timestamp.After(windowEnd) {
				break
			}
			counterparties[counterparty(sorted[j], pattern)] = struct{}{}
			count++
		}

		if len(counterparties) < d.params.FanMinCounterparties {
			continue
		}
		if d.params.FanMinTransactions > 0 && count < d.params.FanMinTransactions {
			continue
		}

		if !d.params.FanDiversityFilter {
			return domain.FanMatch{
				AccountID:        node,
				Pattern:          pattern,
				Counterparties:   len(counterparties),
				TransactionCount: count,
				AmountDiversity:  -1,
			}, true
		}

		// Bucket amounts to the nearest hundred; many repeated buckets mean
		// pass-through muling amounts, a wide spread means merchant traffic.
		amounts := make([]float64, 0, count)
		for j := i; j < i+count; j++ {
			amounts = append(amounts, sorted[j].Amount)
		}
		diversity := roundBucketDiversity(amounts, 100)
		if diversity < d.params.FanMaxDiversity {
			return domain.FanMatch{
				AccountID:        node,
				Pattern:          pattern,
				Counterparties:   len(counterparties),
				TransactionCount: count,
				AmountDiversity:  diversity,
			}, true
		}
	}

	return domain.FanMatch{}, false
}

func counterparty(tx domain.Transaction, pattern domain.PatternType) string {
	if pattern == domain.PatternFanIn {
		return tx.SenderID
	}
	return tx.ReceiverID
}
