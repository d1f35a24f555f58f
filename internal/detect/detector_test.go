package detect

import (
	"fmt"
	"math"
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

func patterns(res *Result, id string) []domain.PatternType {
	if acct, ok := res.Accounts[id]; ok {
		return acct.DetectedPatterns
	}
	return nil
}

func hasPattern(res *Result, id string, p domain.PatternType) bool {
	for _, got := range patterns(res, id) {
		if got == p {
			return true
		}
	}
	return false
}

func TestCycleDetection(t *testing.T) {
	txs := []domain.Transaction{
		tx("T1", "A", "B", 100, t0),
		tx("T2", "B", "C", 200, t0.Add(time.Hour)),
		tx("T3", "C", "A", 150, t0.Add(2*time.Hour)),
	}
	res := New(Baseline()).Run(txs)

	if len(res.Cycles) != 1 {
		t.Fatalf("cycles = %d, want 1", len(res.Cycles))
	}
	cycle := res.Cycles[0]
	if cycle.Length != 3 || cycle.Pattern != domain.CyclePattern(3) {
		t.Errorf("cycle = %+v, want length 3", cycle)
	}
	if cycle.RingID != "RING_000" {
		t.Errorf("ring id = %s, want RING_000", cycle.RingID)
	}
	if cycle.TotalAmount != 450 {
		t.Errorf("total amount = %v, want 450", cycle.TotalAmount)
	}

	if len(res.Rings) != 1 {
		t.Fatalf("rings = %d, want 1", len(res.Rings))
	}
	for _, id := range []string{"A", "B", "C"} {
		if !hasPattern(res, id, domain.CyclePattern(3)) {
			t.Errorf("%s missing cycle_length_3", id)
		}
		if res.Accounts[id].RingID != "RING_000" {
			t.Errorf("%s ring = %s, want RING_000", id, res.Accounts[id].RingID)
		}
	}
}

func TestCycleRotationsCollapse(t *testing.T) {
	// The same 3-cycle is reachable from all three start nodes; only one
	// canonical cycle and one ring id may come out.
	txs := []domain.Transaction{
		tx("T1", "A", "B", 100, t0),
		tx("T2", "B", "C", 200, t0),
		tx("T3", "C", "A", 150, t0),
	}
	res := New(Baseline()).Run(txs)

	if len(res.Cycles) != 1 || len(res.Rings) != 1 {
		t.Errorf("cycles/rings = %d/%d, want 1/1", len(res.Cycles), len(res.Rings))
	}
}

func TestCycleRingIDsSequential(t *testing.T) {
	// Two disjoint cycles, discovered in node insertion order.
	txs := []domain.Transaction{
		tx("T1", "A", "B", 100, t0),
		tx("T2", "B", "C", 200, t0),
		tx("T3", "C", "A", 150, t0),
		tx("T4", "X", "Y", 500, t0),
		tx("T5", "Y", "Z", 900, t0),
		tx("T6", "Z", "X", 700, t0),
	}
	res := New(Baseline()).Run(txs)

	if len(res.Rings) != 2 {
		t.Fatalf("rings = %d, want 2", len(res.Rings))
	}
	if res.Rings[0].RingID != "RING_000" || res.Rings[1].RingID != "RING_001" {
		t.Errorf("ring ids = %s, %s; want RING_000, RING_001",
			res.Rings[0].RingID, res.Rings[1].RingID)
	}
}

func TestCycleLengthBounds(t *testing.T) {
	// 2-cycle must not match; 6-cycle exceeds the depth cap.
	short := []domain.Transaction{
		tx("T1", "A", "B", 100, t0),
		tx("T2", "B", "A", 200, t0),
	}
	if res := New(Baseline()).Run(short); len(res.Cycles) != 0 {
		t.Errorf("2-cycle matched: %+v", res.Cycles)
	}

	var long []domain.Transaction
	ids := []string{"A", "B", "C", "D", "E", "F"}
	for i := range ids {
		long = append(long, tx(
			fmt.Sprintf("T%d", i), ids[i], ids[(i+1)%len(ids)],
			100+float64(i)*50, t0,
		))
	}
	if res := New(Baseline()).Run(long); len(res.Cycles) != 0 {
		t.Errorf("6-cycle matched: %+v", res.Cycles)
	}
}

func TestEnhancedRejectsUniformCycle(t *testing.T) {
	uniform := []domain.Transaction{
		tx("T1", "A", "B", 100, t0),
		tx("T2", "B", "C", 100, t0),
		tx("T3", "C", "A", 100, t0),
	}
	if res := New(Enhanced()).Run(uniform); len(res.Cycles) != 0 {
		t.Errorf("uniform cycle matched in enhanced tier: %+v", res.Cycles)
	}

	varied := []domain.Transaction{
		tx("T1", "A", "B", 100, t0),
		tx("T2", "B", "C", 200, t0),
		tx("T3", "C", "A", 150, t0),
	}
	if res := New(Enhanced()).Run(varied); len(res.Cycles) != 1 {
		t.Errorf("varied cycle not matched in enhanced tier")
	}
}

// fanTxs sends n payments to hub within the given duration. amountAt picks
// each payment's amount.
func fanTxs(hub string, n, senders int, over time.Duration, amountAt func(i int) float64) []domain.Transaction {
	step := over / time.Duration(n)
	txs := make([]domain.Transaction, 0, n)
	for i := 0; i < n; i++ {
		txs = append(txs, tx(
			fmt.Sprintf("T%02d", i),
			fmt.Sprintf("S%02d", i%senders),
			hub,
			amountAt(i),
			t0.Add(time.Duration(i)*step),
		))
	}
	return txs
}

func TestFanInBaseline(t *testing.T) {
	txs := fanTxs("HUB", 10, 10, 10*time.Hour, func(i int) float64 { return 100 })
	res := New(Baseline()).Run(txs)

	if len(res.Fans) != 1 {
		t.Fatalf("fans = %+v, want 1", res.Fans)
	}
	fan := res.Fans[0]
	if fan.AccountID != "HUB" || fan.Pattern != domain.PatternFanIn {
		t.Errorf("fan = %+v, want fan_in on HUB", fan)
	}
	if fan.AmountDiversity != -1 {
		t.Errorf("baseline diversity = %v, want -1 (not computed)", fan.AmountDiversity)
	}
}

func TestFanInEnhancedDiversityGate(t *testing.T) {
	t.Run("diverse amounts suppressed", func(t *testing.T) {
		// 20 tx from 15 senders in 10 hours, amounts spread over $1-$10,000.
		txs := fanTxs("HUB", 20, 15, 10*time.Hour, func(i int) float64 {
			return 1 + float64(i)*526.3
		})
		res := New(Enhanced()).Run(txs)
		if hasPattern(res, "HUB", domain.PatternFanIn) {
			t.Errorf("diverse fan flagged: %+v", res.Fans)
		}
	})

	t.Run("bucketed amounts flagged", func(t *testing.T) {
		amounts := []float64{100, 200, 300}
		txs := fanTxs("HUB", 20, 15, 10*time.Hour, func(i int) float64 {
			return amounts[i%3]
		})
		res := New(Enhanced()).Run(txs)
		if len(res.Fans) != 1 {
			t.Fatalf("fans = %+v, want 1", res.Fans)
		}
		fan := res.Fans[0]
		if fan.AmountDiversity != 0.15 {
			t.Errorf("diversity = %v, want 0.15 (3 buckets over 20 tx)", fan.AmountDiversity)
		}
		acct := res.Accounts["HUB"]
		if got := acct.Confidence[domain.PatternFanIn]; math.Abs(got-0.85) > 1e-9 {
			t.Errorf("confidence = %v, want 1 - diversity = 0.85", got)
		}
	})
}

func TestFanWindowSlides(t *testing.T) {
	// Ten senders inside one 72h stretch that straddles a calendar-bucket
	// boundary; a sliding window must still catch it.
	var txs []domain.Transaction
	base := time.Date(2024, 5, 3, 22, 0, 0, 0, time.UTC) // late in the day
	for i := 0; i < 10; i++ {
		txs = append(txs, tx(
			fmt.Sprintf("T%02d", i),
			fmt.Sprintf("S%02d", i),
			"HUB",
			250,
			base.Add(time.Duration(i)*5*time.Hour),
		))
	}
	res := New(Baseline()).Run(txs)
	if !hasPattern(res, "HUB", domain.PatternFanIn) {
		t.Error("burst across day boundary not flagged")
	}
}

func TestFanOutsideWindowNotFlagged(t *testing.T) {
	// Ten senders but spread over 30 days: never 10 unique within 72 hours.
	txs := fanTxs("HUB", 10, 10, 720*time.Hour, func(i int) float64 { return 100 })
	res := New(Baseline()).Run(txs)
	if hasPattern(res, "HUB", domain.PatternFanIn) {
		t.Error("slow fan flagged")
	}
}

// shellChain builds start -> m1 -> m2 ... -> end with the given hop amounts.
func shellChain(amounts []float64) []domain.Transaction {
	var txs []domain.Transaction
	for i, amt := range amounts {
		txs = append(txs, tx(
			fmt.Sprintf("T%d", i),
			fmt.Sprintf("N%d", i),
			fmt.Sprintf("N%d", i+1),
			amt,
			t0.Add(time.Duration(i)*time.Hour),
		))
	}
	return txs
}

func TestShellDetection(t *testing.T) {
	res := New(Baseline()).Run(shellChain([]float64{1000, 980, 990}))

	// Chains of 3 and 4 nodes along N0..N3 qualify.
	if len(res.Shells) == 0 {
		t.Fatal("no shells detected")
	}
	for _, id := range []string{"N0", "N1", "N2", "N3"} {
		if !hasPattern(res, id, domain.PatternLayeredShell) {
			t.Errorf("%s missing layered_shell", id)
		}
	}
}

func TestShellIntermediateDegreeCap(t *testing.T) {
	txs := shellChain([]float64{1000, 980, 990})
	// Make N1 a busy account: extra counterparties push its degree past 3.
	for i := 0; i < 3; i++ {
		txs = append(txs, tx(
			fmt.Sprintf("X%d", i), fmt.Sprintf("B%d", i), "N1", 50,
			t0.Add(time.Duration(i)*time.Hour),
		))
	}
	res := New(Baseline()).Run(txs)
	for _, shell := range res.Shells {
		for _, id := range shell.Path[1 : len(shell.Path)-1] {
			if id == "N1" {
				t.Errorf("busy intermediate kept in shell %v", shell.Path)
			}
		}
	}
}

func TestShellEnhancedRequiresUniformAmounts(t *testing.T) {
	if res := New(Enhanced()).Run(shellChain([]float64{1000, 500, 2000})); len(res.Shells) != 0 {
		t.Errorf("varied-amount chain kept in enhanced tier: %+v", res.Shells)
	}
	if res := New(Enhanced()).Run(shellChain([]float64{1000, 980, 990})); len(res.Shells) == 0 {
		t.Error("uniform chain rejected in enhanced tier")
	}
}

func TestAmountAnomalies(t *testing.T) {
	cases := []struct {
		name    string
		amounts []float64
		want    bool
	}{
		{"round amounts", []float64{100, 200, 300, 400, 500, 600, 700, 800, 900, 1000}, true},
		{"repeated amount", []float64{777.77, 777.77, 777.77, 50, 60}, true},
		{"clustered amounts", []float64{500, 501, 502, 503, 504, 505, 506, 507, 508, 509}, true},
		{"varied amounts", []float64{13.37, 942.11, 87.6, 3071.9, 455.5}, false},
		{"too little history", []float64{100, 200}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var txs []domain.Transaction
			for i, amt := range tc.amounts {
				txs = append(txs, tx(
					fmt.Sprintf("T%d", i), "A", fmt.Sprintf("R%02d", i), amt,
					t0.Add(time.Duration(i)*24*time.Hour),
				))
			}
			res := New(Enhanced()).Run(txs)
			if got := hasPattern(res, "A", domain.PatternAmountAnomaly); got != tc.want {
				t.Errorf("anomaly = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLifecycleAnomalies(t *testing.T) {
	t.Run("rapid new account", func(t *testing.T) {
		// Dataset starts with other traffic; NEWB appears on day 2 and
		// fires 10 transactions within its first week.
		txs := []domain.Transaction{
			tx("T0", "OLD1", "OLD2", 123.45, t0),
		}
		for i := 0; i < 10; i++ {
			txs = append(txs, tx(
				fmt.Sprintf("N%d", i), "NEWB", fmt.Sprintf("R%02d", i), 90+float64(i)*7.3,
				t0.Add(48*time.Hour).Add(time.Duration(i)*12*time.Hour),
			))
		}
		res := New(Enhanced()).Run(txs)
		if !hasPattern(res, "NEWB", domain.PatternRapidNewAccount) {
			t.Error("rapid new account not flagged")
		}
		if hasPattern(res, "OLD1", domain.PatternRapidNewAccount) {
			t.Error("two-transaction account flagged")
		}
	})

	t.Run("late arrival not rapid", func(t *testing.T) {
		txs := []domain.Transaction{
			tx("T0", "OLD1", "OLD2", 123.45, t0),
		}
		for i := 0; i < 10; i++ {
			txs = append(txs, tx(
				fmt.Sprintf("N%d", i), "LATE", fmt.Sprintf("R%02d", i), 90+float64(i)*7.3,
				t0.Add(10*24*time.Hour).Add(time.Duration(i)*12*time.Hour),
			))
		}
		res := New(Enhanced()).Run(txs)
		if hasPattern(res, "LATE", domain.PatternRapidNewAccount) {
			t.Error("account first active on day 10 flagged as rapid")
		}
	})

	t.Run("high activity density", func(t *testing.T) {
		var txs []domain.Transaction
		for i := 0; i < 20; i++ {
			txs = append(txs, tx(
				fmt.Sprintf("D%d", i), "DENSE", fmt.Sprintf("R%02d", i), 55.5+float64(i),
				t0.Add(time.Duration(i)*2*time.Hour),
			))
		}
		res := New(Enhanced()).Run(txs)
		if !hasPattern(res, "DENSE", domain.PatternHighActivityDensity) {
			t.Error("dense account not flagged")
		}
	})
}

func TestBaselineSkipsAnomalyDetectors(t *testing.T) {
	txs := []domain.Transaction{}
	for i := 0; i < 10; i++ {
		txs = append(txs, tx(
			fmt.Sprintf("T%d", i), "A", fmt.Sprintf("R%02d", i), 100,
			t0.Add(time.Duration(i)*time.Hour),
		))
	}
	res := New(Baseline()).Run(txs)
	if len(res.Anomalies) != 0 {
		t.Errorf("baseline produced anomalies: %+v", res.Anomalies)
	}
}

func TestAggregateLastRingWins(t *testing.T) {
	// B sits in two cycles; the second ring processed keeps the id.
	txs := []domain.Transaction{
		tx("T1", "A", "B", 100, t0),
		tx("T2", "B", "C", 200, t0),
		tx("T3", "C", "A", 150, t0),
		tx("T4", "B", "D", 400, t0),
		tx("T5", "D", "E", 800, t0),
		tx("T6", "E", "B", 600, t0),
	}
	res := New(Baseline()).Run(txs)

	if len(res.Rings) != 2 {
		t.Fatalf("rings = %d, want 2", len(res.Rings))
	}
	if got := res.Accounts["B"].RingID; got != res.Rings[1].RingID {
		t.Errorf("B ring = %s, want the later ring %s", got, res.Rings[1].RingID)
	}
}
