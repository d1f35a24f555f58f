package graph

import (
	"math"
	"sort"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// PageRank damping factor and iteration count. These match the usual power
// iteration defaults; twenty rounds is plenty at the batch sizes the engine
// accepts.
const (
	pageRankDamping    = 0.85
	pageRankIterations = 20
)

// PageRank runs power iteration over the directed graph and returns per-node
// influence normalized to [0,100] by the maximum rank.
func PageRank(g *Graph) map[string]float64 {
	n := g.NodeCount()
	if n == 0 {
		return map[string]float64{}
	}

	rank := make(map[string]float64, n)
	for _, node := range g.Nodes() {
		rank[node] = 1.0 / float64(n)
	}

	for iter := 0; iter < pageRankIterations; iter++ {
		next := make(map[string]float64, n)
		for _, node := range g.Nodes() {
			r := (1 - pageRankDamping) / float64(n)
			for _, nb := range g.InNeighbors(node) {
				if outDeg := g.OutDegree(nb); outDeg > 0 {
					r += pageRankDamping * rank[nb] / float64(outDeg)
				}
			}
			next[node] = r
		}
		rank = next
	}

	return normalize(rank)
}

// Betweenness approximates bridge centrality: for every source node a BFS
// counts the number of shortest paths reaching each other node, and counts
// are summed across sources then normalized to [0,100]. This counts path
// occurrences, not true edge-disjoint betweenness.
func Betweenness(g *Graph) map[string]float64 {
	centrality := make(map[string]float64, g.NodeCount())
	for _, node := range g.Nodes() {
		centrality[node] = 0
	}

	for _, source := range g.Nodes() {
		dist := map[string]int{source: 0}
		sigma := map[string]float64{source: 1}
		queue := []string{source}

		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			for _, nb := range g.OutNeighbors(current) {
				if _, seen := dist[nb]; !seen {
					dist[nb] = dist[current] + 1
					queue = append(queue, nb)
				}
				if dist[nb] == dist[current]+1 {
					sigma[nb] += sigma[current]
				}
			}
		}

		for node, count := range sigma {
			if node != source {
				centrality[node] += count
			}
		}
	}

	return normalize(centrality)
}

// Velocity derives a [0,100] score per account from mean inter-arrival time
// across all incident transactions; an implied rate of 50 tx/hour maps to
// 100. Accounts with fewer than two transactions score 0.
func Velocity(txs []domain.Transaction) map[string]float64 {
	byAccount := make(map[string][]time.Time)
	for _, tx := range txs {
		byAccount[tx.SenderID] = append(byAccount[tx.SenderID], tx.Timestamp)
		byAccount[tx.ReceiverID] = append(byAccount[tx.ReceiverID], tx.Timestamp)
	}

	scores := make(map[string]float64, len(byAccount))
	for account, times := range byAccount {
		if len(times) < 2 {
			scores[account] = 0
			continue
		}
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

		var total time.Duration
		for i := 1; i < len(times); i++ {
			total += times[i].Sub(times[i-1])
		}
		avgGap := total / time.Duration(len(times)-1)
		if avgGap <= 0 {
			// All transactions share one instant: maximal velocity.
			scores[account] = 100
			continue
		}

		perHour := float64(time.Hour) / float64(avgGap) * float64(len(times))
		scores[account] = math.Min(100, perHour/50*100)
	}

	return scores
}

// PageRankAnomalies returns accounts whose influence is disproportionate to
// their connectivity: influence above 50 with total degree under 5.
func PageRankAnomalies(g *Graph, pageRank map[string]float64) map[string]bool {
	anomalies := make(map[string]bool)
	for _, node := range g.Nodes() {
		if pageRank[node] > 50 && g.TotalDegree(node) < 5 {
			anomalies[node] = true
		}
	}
	return anomalies
}

// normalize rescales values to [0,100] by the maximum. An all-zero input maps
// to all zeros.
func normalize(values map[string]float64) map[string]float64 {
	max := 0.0
	for _, v := range values {
		if v > max {
			max = v
		}
	}

	out := make(map[string]float64, len(values))
	for k, v := range values {
		if max > 0 {
			out[k] = v / max * 100
		} else {
			out[k] = 0
		}
	}
	return out
}
