// Benchmark tool for testing Harrier against synthetic fraud batches.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -rings 10 -fans 5
//
// This tool:
//   1. Generates a synthetic transaction batch with planted fraud rings,
//      fan-in collectors, layered shell chains, and legitimate background
//      traffic including merchant-like hubs
//   2. Sends the batch with ground-truth labels to POST /analyze
//   3. Prints the exact precision, recall, F1-score, and confusion matrix
//      reported by the engine
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"
)

// Transaction matches Harrier's batch payload format.
type Transaction struct {
	ID         string  `json:"transaction_id"`
	SenderID   string  `json:"sender_id"`
	ReceiverID string  `json:"receiver_id"`
	Amount     float64 `json:"amount"`
	Timestamp  string  `json:"timestamp"`
}

// AnalyzeRequest is the Harrier API request format.
type AnalyzeRequest struct {
	Transactions []Transaction   `json:"transactions"`
	GroundTruth  map[string]bool `json:"ground_truth"`
}

// Report mirrors the fields of the analysis response the benchmark reads.
type Report struct {
	ID                 string `json:"id"`
	Tier               string `json:"tier"`
	SuspiciousAccounts []struct {
		AccountID      string  `json:"account_id"`
		SuspicionScore float64 `json:"suspicion_score"`
	} `json:"suspicious_accounts"`
	FraudRings []struct {
		RingID      string  `json:"ring_id"`
		PatternType string  `json:"pattern_type"`
		RiskScore   float64 `json:"risk_score"`
	} `json:"fraud_rings"`
	Summary struct {
		TotalAccountsAnalyzed     int     `json:"total_accounts_analyzed"`
		SuspiciousAccountsFlagged int     `json:"suspicious_accounts_flagged"`
		FraudRingsDetected        int     `json:"fraud_rings_detected"`
		ProcessingTimeSeconds     float64 `json:"processing_time_seconds"`
	} `json:"summary"`
	Metrics struct {
		Precision      float64 `json:"precision"`
		Recall         float64 `json:"recall"`
		F1Score        float64 `json:"f1Score"`
		Accuracy       float64 `json:"accuracy"`
		Estimated      bool    `json:"estimated"`
		TruePositives  int     `json:"truePositives"`
		FalsePositives int     `json:"falsePositives"`
		FalseNegatives int     `json:"falseNegatives"`
		TrueNegatives  int     `json:"trueNegatives"`
	} `json:"metrics"`
}

type generator struct {
	rng   *rand.Rand
	base  time.Time
	txSeq int
	acct  int

	txs   []Transaction
	truth map[string]bool
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Harrier base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	rings := flag.Int("rings", 10, "Number of planted cycle rings")
	fans := flag.Int("fans", 5, "Number of planted fan-in collectors")
	shells := flag.Int("shells", 5, "Number of planted layered shell chains")
	background := flag.Int("background", 500, "Number of legitimate background transactions")
	merchants := flag.Int("merchants", 3, "Number of high-volume merchant hubs")
	seed := flag.Int64("seed", 42, "Random seed")
	verbose := flag.Bool("verbose", false, "Print each flagged account")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        HARRIER BENCHMARK - Synthetic Fraud Detection          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nHarrier URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Rings:       %d\n", *rings)
	fmt.Printf("Fan-ins:     %d\n", *fans)
	fmt.Printf("Shells:      %d\n", *shells)
	fmt.Printf("Background:  %d\n", *background)
	fmt.Printf("Merchants:   %d\n", *merchants)
	fmt.Printf("Seed:        %d\n", *seed)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Harrier not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Harrier is running:")
		fmt.Println("  go run cmd/harrier/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Harrier is healthy")

	g := &generator{
		rng:   rand.New(rand.NewSource(*seed)),
		base:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		truth: make(map[string]bool),
	}

	for i := 0; i < *rings; i++ {
		g.plantRing(3 + g.rng.Intn(3))
	}
	for i := 0; i < *fans; i++ {
		g.plantFanIn(15 + g.rng.Intn(10))
	}
	for i := 0; i < *shells; i++ {
		g.plantShellChain(4 + g.rng.Intn(2))
	}
	for i := 0; i < *merchants; i++ {
		g.plantMerchant(20 + g.rng.Intn(10))
	}
	g.plantBackground(*background)

	fraudCount := 0
	for _, isFraud := range g.truth {
		if isFraud {
			fraudCount++
		}
	}
	fmt.Printf("\n✓ Generated %d transactions across %d accounts (%d labeled fraudulent)\n",
		len(g.txs), len(g.truth), fraudCount)

	fmt.Println("\nSubmitting batch for analysis...")
	start := time.Now()
	report, err := analyze(*baseURL, *tenantID, AnalyzeRequest{
		Transactions: g.txs,
		GroundTruth:  g.truth,
	})
	duration := time.Since(start)
	if err != nil {
		fmt.Printf("ERROR: analysis failed: %v\n", err)
		os.Exit(1)
	}

	printResults(report, duration, *verbose)
}

func (g *generator) nextTxID() string {
	g.txSeq++
	return fmt.Sprintf("TX_%06d", g.txSeq)
}

func (g *generator) nextAccount(fraud bool) string {
	g.acct++
	id := fmt.Sprintf("ACC_%05d", g.acct)
	g.truth[id] = fraud
	return id
}

func (g *generator) addTx(sender, receiver string, amount float64, at time.Time) {
	g.txs = append(g.txs, Transaction{
		ID:         g.nextTxID(),
		SenderID:   sender,
		ReceiverID: receiver,
		Amount:     amount,
		Timestamp:  at.Format("2006-01-02 15:04:05"),
	})
}

// plantRing creates a cycle of n accounts with varied amounts spread over
// several days.
func (g *generator) plantRing(n int) {
	members := make([]string, n)
	for i := range members {
		members[i] = g.nextAccount(true)
	}

	at := g.base.Add(time.Duration(g.rng.Intn(240)) * time.Hour)
	for i := 0; i < n; i++ {
		amount := 500 + g.rng.Float64()*4500
		g.addTx(members[i], members[(i+1)%n], amount, at)
		at = at.Add(time.Duration(12+g.rng.Intn(48)) * time.Hour)
	}
}

// plantFanIn creates a collector receiving similar round amounts from many
// sources inside a tight window.
func (g *generator) plantFanIn(sources int) {
	hub := g.nextAccount(true)
	at := g.base.Add(time.Duration(g.rng.Intn(240)) * time.Hour)

	for i := 0; i < sources; i++ {
		src := g.nextAccount(false)
		amount := float64(100 * (1 + g.rng.Intn(3)))
		g.addTx(src, hub, amount, at)
		at = at.Add(time.Duration(20+g.rng.Intn(40)) * time.Minute)
	}

	// extra transfers to clear the fan volume threshold
	for i := 0; i < 6; i++ {
		src := g.nextAccount(false)
		g.addTx(src, hub, 200, at)
		at = at.Add(15 * time.Minute)
	}
}

// plantShellChain creates a pass-through chain with near-identical amounts.
func (g *generator) plantShellChain(length int) {
	chain := make([]string, length)
	for i := range chain {
		chain[i] = g.nextAccount(true)
	}

	at := g.base.Add(time.Duration(g.rng.Intn(240)) * time.Hour)
	amount := 2000 + g.rng.Float64()*500
	for i := 0; i < length-1; i++ {
		g.addTx(chain[i], chain[i+1], amount, at)
		at = at.Add(time.Duration(6+g.rng.Intn(12)) * time.Hour)
	}
}

// plantMerchant creates a legitimate high-volume hub with diverse amounts
// spread over more than a month.
func (g *generator) plantMerchant(counterparties int) {
	hub := g.nextAccount(false)

	for i := 0; i < counterparties; i++ {
		customer := g.nextAccount(false)
		supplier := g.nextAccount(false)

		at := g.base.Add(time.Duration(g.rng.Intn(35*24)) * time.Hour)
		g.addTx(customer, hub, 50+g.rng.Float64()*950, at)
		g.addTx(hub, supplier, 50+g.rng.Float64()*950, at.Add(time.Duration(1+g.rng.Intn(40))*24*time.Hour))
	}
}

// plantBackground creates ordinary one-off transfers between fresh accounts.
func (g *generator) plantBackground(count int) {
	for i := 0; i < count; i++ {
		from := g.nextAccount(false)
		to := g.nextAccount(false)
		at := g.base.Add(time.Duration(g.rng.Intn(40*24)) * time.Hour)
		g.addTx(from, to, 10+g.rng.Float64()*2000, at)
	}
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func analyze(baseURL, tenantID string, req AnalyzeRequest) (*Report, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var report Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, err
	}

	return &report, nil
}

func printResults(r *Report, duration time.Duration, verbose bool) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 ANALYSIS SUMMARY\n")
	fmt.Printf("   Analysis ID:       %s\n", r.ID)
	fmt.Printf("   Tier:              %s\n", r.Tier)
	fmt.Printf("   Accounts Analyzed: %d\n", r.Summary.TotalAccountsAnalyzed)
	fmt.Printf("   Accounts Flagged:  %d\n", r.Summary.SuspiciousAccountsFlagged)
	fmt.Printf("   Rings Detected:    %d\n", r.Summary.FraudRingsDetected)

	m := r.Metrics
	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                   FLAG        CLEAR")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  F  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("          NF  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %6.2f%%  (of flags, how many were actual fraud)\n", m.Precision)
	fmt.Printf("   Recall:     %6.2f%%  (of fraud, how many did we catch)\n", m.Recall)
	fmt.Printf("   F1-Score:   %6.2f%%  (harmonic mean of precision & recall)\n", m.F1Score)
	fmt.Printf("   Accuracy:   %6.2f%%  (overall correct predictions)\n", m.Accuracy)

	if len(r.FraudRings) > 0 {
		fmt.Printf("\n🔗 TOP RINGS\n")
		limit := len(r.FraudRings)
		if limit > 5 {
			limit = 5
		}
		for _, ring := range r.FraudRings[:limit] {
			fmt.Printf("   %-10s %-15s risk %.1f\n", ring.RingID, ring.PatternType, ring.RiskScore)
		}
	}

	if verbose && len(r.SuspiciousAccounts) > 0 {
		fmt.Printf("\n🚩 FLAGGED ACCOUNTS\n")
		for _, acct := range r.SuspiciousAccounts {
			fmt.Printf("   %-12s score %.1f\n", acct.AccountID, acct.SuspicionScore)
		}
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Round Trip:       %v\n", duration.Round(time.Millisecond))
	fmt.Printf("   Engine Time:      %.2fs\n", r.Summary.ProcessingTimeSeconds)

	fmt.Printf("\n💡 INTERPRETATION\n")
	switch {
	case m.Recall >= 90:
		fmt.Println("   ✅ Excellent recall - catching most planted fraud")
	case m.Recall >= 70:
		fmt.Println("   ⚠️  Good recall - but missing some planted fraud")
	default:
		fmt.Println("   ❌ Low recall - most planted fraud is being missed")
	}

	switch {
	case m.Precision >= 80:
		fmt.Println("   ✅ High precision - flags are meaningful")
	case m.Precision >= 50:
		fmt.Println("   ⚠️  Moderate precision - some false alarms")
	default:
		fmt.Println("   ❌ Low precision - mostly false alarms")
	}

	fmt.Println()
}
