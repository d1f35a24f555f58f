// Package detect implements the bounded pattern search over the transaction
// graph: cycles, fan-in/fan-out hubs, layered shell chains, and amount and
// lifecycle anomalies. One parameterized pipeline serves both the baseline
// and enhanced tiers; the tiers differ only in thresholds and filters.
package detect

import (
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
)

// Params configures one detector tier.
type Params struct {
	Tier string

	// Cycle detection
	CycleMinLength    int
	CycleMaxLength    int
	CycleAmountFilter bool    // reject uniform-amount cycles (refund shape)
	CycleCoV          float64 // minimum coefficient of variation to keep
	CycleConfidence   float64

	// Fan-in / fan-out detection
	FanDegreeThreshold   int
	FanWindow            time.Duration
	FanMinCounterparties int
	FanMinTransactions   int     // 0 disables the transaction-count gate
	FanDiversityFilter   bool    // require low amount diversity
	FanMaxDiversity      float64 // flag only below this ratio

	// Layered shell detection
	ShellMinNodes        int
	ShellMaxNodes        int
	ShellMaxIntermediate int     // max total degree of pass-through accounts
	ShellAmountFilter    bool    // require uniform hop amounts
	ShellMaxCoV          float64 // keep only below this ratio
	ShellConfidence      float64

	// Enhanced-only detectors
	AmountAnomalies    bool
	LifecycleAnomalies bool

	// Confidences tracks per-pattern confidence; the baseline tier has no
	// confidence concept.
	Confidences       bool
	AnomalyConfidence float64 // amount anomaly
	LifecycleConf     float64
}

// Baseline returns the fixed-threshold tier: every structural match is
// accepted, no amount or diversity filtering, no confidence tracking.
func Baseline() Params {
	return Params{
		Tier:                 "baseline",
		CycleMinLength:       3,
		CycleMaxLength:       5,
		FanDegreeThreshold:   10,
		FanWindow:            72 * time.Hour,
		FanMinCounterparties: 10,
		ShellMinNodes:        3,
		ShellMaxNodes:        5,
		ShellMaxIntermediate: 3,
	}
}

// Enhanced returns the adaptive tier: tighter thresholds plus amount-variance
// and diversity filters, with per-pattern confidence.
func Enhanced() Params {
	return Params{
		Tier:                 "enhanced",
		CycleMinLength:       3,
		CycleMaxLength:       5,
		CycleAmountFilter:    true,
		CycleCoV:             0.2,
		CycleConfidence:      0.9,
		FanDegreeThreshold:   15,
		FanWindow:            48 * time.Hour,
		FanMinCounterparties: 15,
		FanMinTransactions:   20,
		FanDiversityFilter:   true,
		FanMaxDiversity:      0.3,
		ShellMinNodes:        3,
		ShellMaxNodes:        5,
		ShellMaxIntermediate: 3,
		ShellAmountFilter:    true,
		ShellMaxCoV:          0.2,
		ShellConfidence:      0.75,
		AmountAnomalies:      true,
		LifecycleAnomalies:   true,
		Confidences:          true,
		AnomalyConfidence:    0.6,
		LifecycleConf:        0.7,
	}
}

// Result holds everything one detection pass produced. All maps are owned by
// the single run and never shared across runs.
type Result struct {
	Graph     *graph.Graph
	Cycles    []domain.Cycle
	Fans      []domain.FanMatch
	Shells    []domain.ShellPath
	Anomalies []domain.AnomalyMatch

	// Accounts aggregates per-account pattern evidence; AccountOrder keeps
	// first-implication order for deterministic iteration.
	Accounts     map[string]*domain.SuspiciousAccount
	AccountOrder []string

	Rings []domain.FraudRing
}

// Detector runs the pattern search for one tier.
type Detector struct {
	params Params
}

// New creates a detector for the given tier parameters.
func New(params Params) *Detector {
	return &Detector{params: params}
}

// Run executes every detector over one transaction batch and aggregates the
// matches per account. The pass is synchronous and CPU-bound; the caller
// bounds batch size.
func (d *Detector) Run(txs []domain.Transaction) *Result {
	g := graph.Build(txs)

	res := &Result{
		Graph:    g,
		Accounts: make(map[string]*domain.SuspiciousAccount),
	}

	res.Cycles, res.Rings = d.detectCycles(g)
	res.Fans = d.detectFans(g, txs)
	res.Shells = d.detectShells(g)
	if d.params.AmountAnomalies {
		res.Anomalies = append(res.Anomalies, d.detectAmountAnomalies(txs)...)
	}
	if d.params.LifecycleAnomalies {
		res.Anomalies = append(res.Anomalies, d.detectLifecycleAnomalies(txs)...)
	}

	d.aggregate(res)
	return res
}

// account returns the aggregation entry for an id, creating it on first
// implication. Entries are never deleted within a run.
func (r *Result) account(g *graph.Graph, id string) *domain.SuspiciousAccount {
	if acct, ok := r.Accounts[id]; ok {
		return acct
	}
	acct := &domain.SuspiciousAccount{
		AccountID: id,
		InDegree:  g.InDegree(id),
		OutDegree: g.OutDegree(id),
	}
	r.Accounts[id] = acct
	r.AccountOrder = append(r.AccountOrder, id)
	return acct
}

func (r *Result) setConfidence(acct *domain.SuspiciousAccount, p domain.PatternType, c float64) {
	if acct.Confidence == nil {
		acct.Confidence = make(map[domain.PatternType]float64)
	}
	acct.Confidence[p] = c
}

// aggregate folds every detector match into the per-account map.
func (d *Detector) aggregate(res *Result) {
	for _, cycle := range res.Cycles {
		for _, id := range cycle.Accounts {
			acct := res.account(res.Graph, id)
			acct.AddPattern(cycle.Pattern)
			// An account in multiple cycles keeps the most recently
			// assigned ring id (last write wins).
			acct.RingID = cycle.RingID
			if d.params.Confidences {
				res.setConfidence(acct, cycle.Pattern, d.params.CycleConfidence)
			}
		}
	}

	for _, fan := range res.Fans {
		acct := res.account(res.Graph, fan.AccountID)
		acct.AddPattern(fan.Pattern)
		if d.params.Confidences && fan.AmountDiversity >= 0 {
			res.setConfidence(acct, fan.Pattern, 1-fan.AmountDiversity)
		}
	}

	for _, shell := range res.Shells {
		for _, id := range shell.Path {
			acct := res.account(res.Graph, id)
			acct.AddPattern(domain.PatternLayeredShell)
			if d.params.Confidences {
				res.setConfidence(acct, domain.PatternLayeredShell, d.params.ShellConfidence)
			}
		}
	}

	for _, anomaly := range res.Anomalies {
		acct := res.account(res.Graph, anomaly.AccountID)
		acct.AddPattern(anomaly.Pattern)
		if d.params.Confidences {
			conf := d.params.AnomalyConfidence
			if anomaly.Pattern != domain.PatternAmountAnomaly {
				conf = d.params.LifecycleConf
			}
			res.setConfidence(acct, anomaly.Pattern, conf)
		}
	}
}
