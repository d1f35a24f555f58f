package score

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/detect"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
)

var testEpoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func tx(id, from, to string, amount float64, at time.Time) domain.Transaction {
	return domain.Transaction{
		ID:         id,
		SenderID:   from,
		ReceiverID: to,
		Amount:     amount,
		Timestamp:  at,
	}
}

// starTxs spreads n payments from center to distinct receivers, spaced far
// enough apart that velocity stays negligible.
func starTxs(center string, n int, gap time.Duration) []domain.Transaction {
	txs := make([]domain.Transaction, 0, n)
	for i := 0; i < n; i++ {
		txs = append(txs, tx(
			fmt.Sprintf("T%03d", i),
			center,
			fmt.Sprintf("%s_OUT%02d", center, i),
			100+float64(i)*37,
			testEpoch.Add(time.Duration(i)*10*time.Hour),
		))
	}
	return txs
}

// testResult wires a hand-built account list into a detection result over
// the given transactions.
func testResult(txs []domain.Transaction, accounts ...*domain.SuspiciousAccount) *detect.Result {
	g := graph.Build(txs)
	res := &detect.Result{
		Graph:    g,
		Accounts: make(map[string]*domain.SuspiciousAccount),
	}
	for _, acct := range accounts {
		acct.InDegree = g.InDegree(acct.AccountID)
		acct.OutDegree = g.OutDegree(acct.AccountID)
		res.Accounts[acct.AccountID] = acct
		res.AccountOrder = append(res.AccountOrder, acct.AccountID)
	}
	return res
}

func TestScoreBaselineWeights(t *testing.T) {
	txs := starTxs("A", 5, 10*time.Hour)
	acct := &domain.SuspiciousAccount{
		AccountID:        "A",
		DetectedPatterns: []domain.PatternType{domain.CyclePattern(3), domain.PatternFanOut},
	}
	out := NewScorer(Baseline()).Score(testResult(txs, acct), txs)

	if len(out.Accounts) != 1 {
		t.Fatalf("accounts = %d, want 1", len(out.Accounts))
	}
	// 40 for the cycle, 30 for the fan, no multi-pattern bonus in this tier.
	if got := out.Accounts[0].SuspicionScore; got != 70 {
		t.Errorf("suspicion score = %v, want 70", got)
	}
	if got := out.Accounts[0].ConfidenceScore; got != 0 {
		t.Errorf("confidence score = %v, want 0 (baseline has none)", got)
	}
	if out.FilteredOut != 0 {
		t.Errorf("filtered out = %d, want 0", out.FilteredOut)
	}
}

func TestScoreEnhancedConfidenceWeighting(t *testing.T) {
	txs := starTxs("A", 5, 10*time.Hour)
	acct := &domain.SuspiciousAccount{
		AccountID: "A",
		DetectedPatterns: []domain.PatternType{
			domain.CyclePattern(3),
			domain.PatternLayeredShell,
		},
		Confidence: map[domain.PatternType]float64{
			domain.CyclePattern(3):     0.9,
			domain.PatternLayeredShell: 0.75,
		},
	}
	out := NewScorer(Enhanced()).Score(testResult(txs, acct), txs)

	if len(out.Accounts) != 1 {
		t.Fatalf("accounts = %d, want 1", len(out.Accounts))
	}
	// 45*0.9 + 40*0.75 + 15 multi-pattern bonus.
	if got := out.Accounts[0].SuspicionScore; got != 85.5 {
		t.Errorf("suspicion score = %v, want 85.5", got)
	}
	// mean(0.9, 0.75) + 0.15 for the second pattern, rounded to 2 decimals.
	if got := out.Accounts[0].ConfidenceScore; got != 0.98 {
		t.Errorf("confidence score = %v, want 0.98", got)
	}
}

func TestScoreDefaultConfidenceForUntrackedPattern(t *testing.T) {
	txs := starTxs("A", 5, 10*time.Hour)
	acct := &domain.SuspiciousAccount{
		AccountID:        "A",
		DetectedPatterns: []domain.PatternType{domain.PatternFanOut},
	}
	params := Enhanced()
	params.AdaptiveFilter = false
	out := NewScorer(params).Score(testResult(txs, acct), txs)

	// 35 * 0.7 default confidence.
	if got := out.Accounts[0].SuspicionScore; got != 24.5 {
		t.Errorf("suspicion score = %v, want 24.5", got)
	}
}

func TestAdaptiveFilterDropsWeakFlags(t *testing.T) {
	var txs []domain.Transaction
	txs = append(txs, starTxs("A", 5, 10*time.Hour)...)
	txs = append(txs, starTxs("B", 5, 10*time.Hour)...)

	strong := &domain.SuspiciousAccount{
		AccountID: "A",
		DetectedPatterns: []domain.PatternType{
			domain.CyclePattern(3),
			domain.PatternLayeredShell,
		},
		Confidence: map[domain.PatternType]float64{
			domain.CyclePattern(3):     0.9,
			domain.PatternLayeredShell: 0.75,
		},
	}
	weak := &domain.SuspiciousAccount{
		AccountID:        "B",
		DetectedPatterns: []domain.PatternType{domain.PatternAmountAnomaly},
		Confidence: map[domain.PatternType]float64{
			domain.PatternAmountAnomaly: 0.6,
		},
	}
	out := NewScorer(Enhanced()).Score(testResult(txs, strong, weak), txs)

	if len(out.Accounts) != 1 || out.Accounts[0].AccountID != "A" {
		t.Fatalf("kept = %+v, want only A", out.Accounts)
	}
	if out.FilteredOut != 1 {
		t.Errorf("filtered out = %d, want 1", out.FilteredOut)
	}
}

func TestAdaptiveThresholdClamped(t *testing.T) {
	s := NewScorer(Enhanced())

	cases := []struct {
		name   string
		scores []float64
		want   float64
	}{
		{"empty defaults to floor", nil, 50},
		{"low median clamps up", []float64{20, 30, 40}, 50},
		{"high median clamps down", []float64{70, 80, 90}, 60},
		{"median inside band", []float64{40, 55, 70}, 55},
		{"even length takes lower middle", []float64{40, 52, 58, 70}, 52},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			accounts := make([]*domain.SuspiciousAccount, len(tc.scores))
			for i, sc := range tc.scores {
				accounts[i] = &domain.SuspiciousAccount{SuspicionScore: sc}
			}
			if got := s.adaptiveThreshold(accounts); got != tc.want {
				t.Errorf("threshold = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestConfidenceArchetypes(t *testing.T) {
	s := NewScorer(Enhanced())

	cases := []struct {
		name    string
		in, out int
		want    float64
	}{
		{"collector", 12, 2, 0.7},   // 0.6 base + 0.1
		{"distributor", 2, 12, 0.7}, // 0.6 base + 0.1
		{"intermediary", 9, 8, 0.65}, // 0.6 base + 0.05
		{"plain", 3, 3, 0.6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			acct := &domain.SuspiciousAccount{
				DetectedPatterns: []domain.PatternType{domain.PatternAmountAnomaly},
				Confidence: map[domain.PatternType]float64{
					domain.PatternAmountAnomaly: 0.6,
				},
				InDegree:  tc.in,
				OutDegree: tc.out,
			}
			got := s.confidenceScore(acct)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("confidence = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestWindowVelocityBonus(t *testing.T) {
	s := NewScorer(Baseline())

	burst := make([]domain.Transaction, 0, 20)
	for i := 0; i < 20; i++ {
		burst = append(burst, tx(
			fmt.Sprintf("T%02d", i), "A", "B", 50,
			testEpoch.Add(time.Duration(i)*30*time.Minute),
		))
	}
	if got := s.velocityBonus(0, burst); got != 10 {
		t.Errorf("burst bonus = %v, want 10", got)
	}

	slow := make([]domain.Transaction, 0, 20)
	for i := 0; i < 20; i++ {
		slow = append(slow, tx(
			fmt.Sprintf("T%02d", i), "A", "B", 50,
			testEpoch.Add(time.Duration(i)*48*time.Hour),
		))
	}
	if got := s.velocityBonus(0, slow); got != 0 {
		t.Errorf("slow bonus = %v, want 0", got)
	}

	if got := s.velocityBonus(0, burst[:3]); got != 0 {
		t.Errorf("tiny history bonus = %v, want 0", got)
	}
}

func TestRateVelocityBonus(t *testing.T) {
	s := NewScorer(Enhanced())
	if got := s.velocityBonus(75, nil); got != 12 {
		t.Errorf("bonus at 75 = %v, want 12", got)
	}
	if got := s.velocityBonus(55, nil); got != 6 {
		t.Errorf("bonus at 55 = %v, want 6", got)
	}
	if got := s.velocityBonus(40, nil); got != 0 {
		t.Errorf("bonus at 40 = %v, want 0", got)
	}
}

func TestMerchantSuppression(t *testing.T) {
	// Balanced flows, 10 in and 10 out, spread over 35 days.
	merchantTxs := func(spanDays int) []domain.Transaction {
		var txs []domain.Transaction
		step := time.Duration(spanDays) * 24 * time.Hour / 20
		for i := 0; i < 10; i++ {
			txs = append(txs, tx(
				fmt.Sprintf("IN%02d", i), fmt.Sprintf("S%02d", i), "M",
				100+float64(i)*13, testEpoch.Add(time.Duration(i*2)*step),
			))
			txs = append(txs, tx(
				fmt.Sprintf("OUT%02d", i), "M", fmt.Sprintf("R%02d", i),
				95+float64(i)*11, testEpoch.Add(time.Duration(i*2+1)*step),
			))
		}
		return txs
	}

	s := NewScorer(Baseline())

	long := merchantTxs(35)
	g := graph.Build(long)
	if !s.isLegitimateMerchant(g, "M", long) {
		t.Error("35-day balanced hub should read as a merchant")
	}

	short := merchantTxs(10)
	g = graph.Build(short)
	if s.isLegitimateMerchant(g, "M", short) {
		t.Error("10-day hub should not read as a merchant")
	}
}

func TestEnhancedMerchantHeuristics(t *testing.T) {
	s := NewScorer(Enhanced())

	// 15 in, 15 out, varied amounts, varied hours, 40-day span.
	var txs []domain.Transaction
	for i := 0; i < 15; i++ {
		at := testEpoch.Add(time.Duration(i*64)*time.Hour + time.Duration(i%24)*time.Hour)
		txs = append(txs, tx(
			fmt.Sprintf("IN%02d", i), fmt.Sprintf("S%02d", i), "M",
			120+float64(i)*140, at,
		))
		txs = append(txs, tx(
			fmt.Sprintf("OUT%02d", i), "M", fmt.Sprintf("R%02d", i),
			110+float64(i)*150, at.Add(3*time.Hour),
		))
	}
	g := graph.Build(txs)
	if !s.isLegitimateMerchant(g, "M", txs) {
		t.Error("diverse long-lived hub should read as a merchant")
	}

	// Same shape but uniform amounts and lopsided flow: mule-like.
	uniform := make([]domain.Transaction, len(txs))
	copy(uniform, txs)
	for i := range uniform {
		if uniform[i].ReceiverID == "M" {
			uniform[i].Amount = 150
		} else {
			uniform[i].Amount = 40
		}
	}
	g = graph.Build(uniform)
	if s.isLegitimateMerchant(g, "M", uniform) {
		t.Error("uniform-amount pass-through hub should not read as a merchant")
	}
}

func TestRingRiskFromMemberScores(t *testing.T) {
	s := NewScorer(Enhanced())
	accounts := map[string]*domain.SuspiciousAccount{
		"A": {AccountID: "A", SuspicionScore: 80},
		"B": {AccountID: "B", SuspicionScore: 60},
	}
	ring := domain.FraudRing{
		RingID:         "RING_001",
		MemberAccounts: []string{"A", "B", "C"}, // C filtered out, counts as 0
		PatternType:    "cycle",
	}
	got := s.memberRingRisk(ring, accounts)
	// avg(80,60,0)*0.7 + 80*0.3 = 32.666*0.7... -> 56.7
	want := round1((80.0+60.0+0)/3*0.7 + 80*0.3)
	if got.RiskScore != want {
		t.Errorf("risk = %v, want %v", got.RiskScore, want)
	}
}

func TestRingRiskFromDegrees(t *testing.T) {
	txs := []domain.Transaction{
		tx("T1", "A", "B", 100, testEpoch),
		tx("T2", "B", "C", 100, testEpoch.Add(time.Hour)),
		tx("T3", "C", "A", 100, testEpoch.Add(2*time.Hour)),
	}
	g := graph.Build(txs)

	s := NewScorer(Baseline())
	ring := domain.FraudRing{
		RingID:         "RING_001",
		MemberAccounts: []string{"A", "B", "C"},
		PatternType:    "cycle",
	}
	got := s.degreeRingRisk(ring, g)
	// Every member has total degree 2; avg(2*2) * 1.2 = 4.8.
	if got.RiskScore != 4.8 {
		t.Errorf("risk = %v, want 4.8", got.RiskScore)
	}
}

func TestRingsSortedByRisk(t *testing.T) {
	s := NewScorer(Enhanced())
	accounts := []*domain.SuspiciousAccount{
		{AccountID: "A", SuspicionScore: 90},
		{AccountID: "B", SuspicionScore: 40},
	}
	rings := []domain.FraudRing{
		{RingID: "RING_001", MemberAccounts: []string{"B"}, PatternType: "cycle"},
		{RingID: "RING_002", MemberAccounts: []string{"A"}, PatternType: "cycle"},
	}
	got := s.scoreRings(rings, nil, accounts)
	if got[0].RingID != "RING_002" || got[1].RingID != "RING_001" {
		t.Errorf("order = %s, %s; want RING_002 first", got[0].RingID, got[1].RingID)
	}
}

func TestAccountOrderingDeterministic(t *testing.T) {
	accounts := []*domain.SuspiciousAccount{
		{AccountID: "C", SuspicionScore: 70, ConfidenceScore: 0.8},
		{AccountID: "A", SuspicionScore: 70, ConfidenceScore: 0.8},
		{AccountID: "B", SuspicionScore: 70, ConfidenceScore: 0.9},
	}
	sortAccounts(accounts)
	want := []string{"B", "A", "C"}
	for i, id := range want {
		if accounts[i].AccountID != id {
			t.Fatalf("position %d = %s, want %s", i, accounts[i].AccountID, id)
		}
	}
}
