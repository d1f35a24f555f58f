package graph

import (
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func tx(id, from, to string, amount float64, at time.Time) domain.Transaction {
	return domain.Transaction{
		ID:         id,
		SenderID:   from,
		ReceiverID: to,
		Amount:     amount,
		Timestamp:  at,
	}
}

func TestBuildAggregatesEdges(t *testing.T) {
	g := Build([]domain.Transaction{
		tx("T1", "A", "B", 100, t0),
		tx("T2", "A", "B", 250, t0.Add(time.Hour)),
		tx("T3", "B", "A", 50, t0.Add(2*time.Hour)),
	})

	if g.NodeCount() != 2 || g.EdgeCount() != 2 {
		t.Fatalf("nodes/edges = %d/%d, want 2/2", g.NodeCount(), g.EdgeCount())
	}

	e := g.Edge("A", "B")
	if e == nil || e.Amount != 350 || e.TransactionCount != 2 {
		t.Errorf("edge A->B = %+v, want amount 350 over 2 tx", e)
	}
	if !g.HasEdge("B", "A") || g.HasEdge("A", "C") {
		t.Error("edge membership wrong")
	}
}

func TestDegreesCountDistinctEdges(t *testing.T) {
	// Five transfers to B from two senders: in-degree stays 2.
	g := Build([]domain.Transaction{
		tx("T1", "A", "B", 10, t0),
		tx("T2", "A", "B", 20, t0),
		tx("T3", "A", "B", 30, t0),
		tx("T4", "C", "B", 40, t0),
		tx("T5", "C", "B", 50, t0),
	})

	if got := g.InDegree("B"); got != 2 {
		t.Errorf("in-degree B = %d, want 2", got)
	}
	if got := g.OutDegree("A"); got != 1 {
		t.Errorf("out-degree A = %d, want 1", got)
	}
	if got := g.TotalDegree("B"); got != 2 {
		t.Errorf("total degree B = %d, want 2", got)
	}
}

func TestNodeOrderFollowsFirstAppearance(t *testing.T) {
	g := Build([]domain.Transaction{
		tx("T1", "Z", "M", 10, t0),
		tx("T2", "A", "Z", 20, t0),
		tx("T3", "M", "A", 30, t0),
	})

	want := []string{"Z", "M", "A"}
	nodes := g.Nodes()
	if len(nodes) != len(want) {
		t.Fatalf("nodes = %v, want %v", nodes, want)
	}
	for i, id := range want {
		if nodes[i] != id {
			t.Errorf("node[%d] = %s, want %s", i, nodes[i], id)
		}
	}
}

func TestBuildEmptyBatch(t *testing.T) {
	g := Build(nil)
	if g.NodeCount() != 0 || g.EdgeCount() != 0 {
		t.Errorf("empty batch built %d nodes, %d edges", g.NodeCount(), g.EdgeCount())
	}
}

func TestPageRankFavorsSinks(t *testing.T) {
	// Everyone pays HUB; HUB's influence must dominate and normalize to 100.
	var txs []domain.Transaction
	for i := 0; i < 5; i++ {
		txs = append(txs, tx(
			fmt.Sprintf("T%d", i), fmt.Sprintf("S%d", i), "HUB", 100, t0,
		))
	}
	g := Build(txs)
	pr := PageRank(g)

	if pr["HUB"] != 100 {
		t.Errorf("pagerank HUB = %v, want 100", pr["HUB"])
	}
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("S%d", i)
		if pr[id] >= pr["HUB"] {
			t.Errorf("pagerank %s = %v, want below HUB", id, pr[id])
		}
	}
}

func TestBetweennessAccumulatesDownstream(t *testing.T) {
	// Path occurrences accumulate along the chain: every upstream source
	// contributes one shortest path to each node after it.
	g := Build([]domain.Transaction{
		tx("T1", "A", "B", 100, t0),
		tx("T2", "B", "C", 100, t0),
		tx("T3", "C", "D", 100, t0),
	})
	b := Betweenness(g)

	if b["A"] != 0 {
		t.Errorf("betweenness A = %v, want 0 (nothing flows into A)", b["A"])
	}
	if !(b["B"] < b["C"] && b["C"] < b["D"]) {
		t.Errorf("betweenness = %v, want strictly increasing along the chain", b)
	}
	if b["D"] != 100 {
		t.Errorf("betweenness D = %v, want 100 after normalization", b["D"])
	}
}

func TestVelocity(t *testing.T) {
	t.Run("steady sender", func(t *testing.T) {
		var txs []domain.Transaction
		for i := 0; i < 5; i++ {
			txs = append(txs, tx(
				fmt.Sprintf("T%d", i), "A", fmt.Sprintf("R%d", i), 100,
				t0.Add(time.Duration(i)*time.Hour),
			))
		}
		v := Velocity(txs)
		// One tx per hour over 5 tx implies 5 tx/h; 50 tx/h maps to 100.
		if v["A"] != 10 {
			t.Errorf("velocity A = %v, want 10", v["A"])
		}
		if v["R0"] != 0 {
			t.Errorf("velocity R0 = %v, want 0 (single transaction)", v["R0"])
		}
	})

	t.Run("simultaneous burst", func(t *testing.T) {
		v := Velocity([]domain.Transaction{
			tx("T1", "A", "B", 100, t0),
			tx("T2", "A", "C", 100, t0),
		})
		if v["A"] != 100 {
			t.Errorf("velocity A = %v, want 100 for zero gap", v["A"])
		}
	})

	t.Run("capped", func(t *testing.T) {
		var txs []domain.Transaction
		for i := 0; i < 30; i++ {
			txs = append(txs, tx(
				fmt.Sprintf("T%d", i), "A", fmt.Sprintf("R%d", i), 100,
				t0.Add(time.Duration(i)*time.Minute),
			))
		}
		v := Velocity(txs)
		if v["A"] != 100 {
			t.Errorf("velocity A = %v, want capped at 100", v["A"])
		}
	})
}

func TestPageRankAnomalies(t *testing.T) {
	// HUB collects from two accounts that themselves receive widely, giving
	// HUB high influence on low degree.
	var txs []domain.Transaction
	n := 0
	for _, mid := range []string{"M1", "M2"} {
		for i := 0; i < 6; i++ {
			txs = append(txs, tx(
				fmt.Sprintf("T%d", n), fmt.Sprintf("S%d", n), mid, 100, t0,
			))
			n++
		}
		txs = append(txs, tx(fmt.Sprintf("T%d", n), mid, "HUB", 500, t0))
		n++
	}
	g := Build(txs)
	pr := PageRank(g)
	anomalies := PageRankAnomalies(g, pr)

	if !anomalies["HUB"] {
		t.Errorf("HUB not anomalous: pagerank %v, degree %d", pr["HUB"], g.TotalDegree("HUB"))
	}
	if anomalies["M1"] {
		t.Error("well-connected M1 marked anomalous")
	}
}
