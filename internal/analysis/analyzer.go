// Package analysis orchestrates one batch run: detection, scoring, the
// baseline fallback, suppression rules and report assembly.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/detect"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
	"github.com/opensource-finance/harrier/internal/rules"
	"github.com/opensource-finance/harrier/internal/score"
)

// Analyzer runs the two-tier pipeline over transaction batches. All state is
// per-run; one Analyzer is safe for concurrent use.
type Analyzer struct {
	rules        *rules.Engine // optional
	maxBatchSize int
}

// New creates an analyzer. The rules engine may be nil when no suppression
// rules are configured.
func New(rulesEngine *rules.Engine, maxBatchSize int) *Analyzer {
	return &Analyzer{
		rules:        rulesEngine,
		maxBatchSize: maxBatchSize,
	}
}

// Request is one batch to analyze. GroundTruth, when non-nil, holds the
// labeled fraudulent account ids and switches metrics from estimated to
// exact.
type Request struct {
	TenantID     string
	Transactions []domain.Transaction
	GroundTruth  map[string]bool
}

// Analyze runs the enhanced tier and falls back to the baseline tier when
// the enhanced pipeline flags nothing. The fallback keeps the enhanced
// tier's metrics so precision estimates stay comparable across runs.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*domain.AnalysisReport, error) {
	if a.maxBatchSize > 0 && len(req.Transactions) > a.maxBatchSize {
		return nil, fmt.Errorf("%w: batch of %d exceeds limit %d",
			domain.ErrInvalidInput, len(req.Transactions), a.maxBatchSize)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	accountIDs := domain.AccountIDs(req.Transactions)

	tier := "enhanced"
	res := detect.New(detect.Enhanced()).Run(req.Transactions)
	out := score.NewScorer(score.Enhanced()).Score(res, req.Transactions)
	metrics := a.metricsFor(out, req.GroundTruth, len(accountIDs))

	// An empty batch legitimately flags nothing; only a non-empty batch
	// with zero enhanced flags falls back to the baseline tier.
	if len(out.Accounts) == 0 && len(req.Transactions) > 0 {
		slog.Info("enhanced pipeline flagged nothing, falling back to baseline",
			"tenant_id", req.TenantID,
			"transactions", len(req.Transactions))
		tier = "baseline"
		res = detect.New(detect.Baseline()).Run(req.Transactions)
		out = score.NewScorer(score.Baseline()).Score(res, req.Transactions)
	}

	if a.rules != nil {
		if hits := a.rules.Apply(out.Accounts); len(hits) > 0 {
			slog.Info("suppression rules applied",
				"tenant_id", req.TenantID,
				"hits", len(hits))
			resortAccounts(out.Accounts)
		}
	}

	report := &domain.AnalysisReport{
		ID:                 uuid.NewString(),
		TenantID:           req.TenantID,
		Tier:               tier,
		CreatedAt:          time.Now().UTC(),
		SuspiciousAccounts: accountResults(out.Accounts),
		FraudRings:         out.Rings,
		Summary: domain.Summary{
			TotalAccountsAnalyzed:     len(accountIDs),
			SuspiciousAccountsFlagged: len(out.Accounts),
			FraudRingsDetected:        len(out.Rings),
			ProcessingTimeSeconds:     round2(time.Since(start).Seconds()),
		},
		Metrics: *metrics,
	}

	slog.Info("analysis complete",
		"tenant_id", req.TenantID,
		"tier", tier,
		"accounts", report.Summary.TotalAccountsAnalyzed,
		"flagged", report.Summary.SuspiciousAccountsFlagged,
		"rings", report.Summary.FraudRingsDetected,
		"seconds", report.Summary.ProcessingTimeSeconds)

	return report, nil
}

// GraphView projects the batch into nodes and edges annotated with the
// report's findings, for visualization clients.
// Only the graph is built here; no detector pass runs.
func (a *Analyzer) GraphView(txs []domain.Transaction, report *domain.AnalysisReport) *domain.GraphView {
	g := graph.Build(txs)

	flagged := make(map[string]domain.AccountResult)
	if report != nil {
		for _, acct := range report.SuspiciousAccounts {
			flagged[acct.AccountID] = acct
		}
	}

	view := &domain.GraphView{
		Nodes: make([]domain.GraphNode, 0, g.NodeCount()),
		Edges: make([]domain.GraphEdge, 0, g.EdgeCount()),
	}
	for _, id := range g.Nodes() {
		node := domain.GraphNode{
			ID:        id,
			InDegree:  g.InDegree(id),
			OutDegree: g.OutDegree(id),
		}
		if acct, ok := flagged[id]; ok {
			node.Suspicious = true
			node.RingID = acct.RingID
			node.SuspicionScore = acct.SuspicionScore
		}
		view.Nodes = append(view.Nodes, node)
	}
	for _, edge := range g.Edges() {
		view.Edges = append(view.Edges, domain.GraphEdge{
			Source:           edge.From,
			Target:           edge.To,
			Amount:           edge.Amount,
			TransactionCount: edge.TransactionCount,
		})
	}
	return view
}

func (a *Analyzer) metricsFor(out *score.Output, truth map[string]bool, totalAccounts int) *domain.Metrics {
	if truth != nil {
		return score.ExactMetrics(out.Accounts, truth, totalAccounts)
	}
	return score.EstimateMetrics(out.Accounts, out.FilteredOut)
}

func accountResults(accounts []*domain.SuspiciousAccount) []domain.AccountResult {
	results := make([]domain.AccountResult, len(accounts))
	for i, acct := range accounts {
		var ringID *string
		if acct.RingID != "" {
			id := acct.RingID
			ringID = &id
		}
		results[i] = domain.AccountResult{
			AccountID:        acct.AccountID,
			SuspicionScore:   acct.SuspicionScore,
			DetectedPatterns: acct.DetectedPatterns,
			RingID:           ringID,
			ConfidenceScore:  acct.ConfidenceScore,
		}
	}
	return results
}

// resortAccounts restores ranked order after rule adjustments.
func resortAccounts(accounts []*domain.SuspiciousAccount) {
	sort.SliceStable(accounts, func(i, j int) bool {
		if accounts[i].SuspicionScore != accounts[j].SuspicionScore {
			return accounts[i].SuspicionScore > accounts[j].SuspicionScore
		}
		if accounts[i].ConfidenceScore != accounts[j].ConfidenceScore {
			return accounts[i].ConfidenceScore > accounts[j].ConfidenceScore
		}
		return accounts[i].AccountID < accounts[j].AccountID
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
