// Package score turns detector output into ranked suspicion scores,
// suppresses likely-legitimate merchants, filters low-confidence flags and
// prices fraud rings.
package score

import (
	"math"
	"sort"
	"time"

	"github.com/opensource-finance/harrier/internal/detect"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
)

// Params configures one scoring tier.
type Params struct {
	Tier    string
	Weights map[domain.PatternType]float64

	// Confidence handling. The baseline tier carries no confidence notion;
	// the enhanced tier weighs every pattern by its detector confidence,
	// defaulting when a detector did not set one.
	UseConfidence     bool
	DefaultConfidence float64
	MultiPatternBonus float64

	// Window velocity bonus (baseline): flat bonus when enough transactions
	// land in one sliding day window.
	WindowVelocityBonus  float64
	WindowVelocityMinTx  int
	WindowVelocityWindow time.Duration

	// Rate velocity bonuses (enhanced) keyed off the [0,100] velocity metric.
	RateVelocityHigh      float64
	RateVelocityHighBonus float64
	RateVelocityMid       float64
	RateVelocityMidBonus  float64

	// Extreme velocity add-on applied after suppression in both tiers.
	ExtremeVelocity      float64
	ExtremeVelocityBonus float64

	// Centrality and influence boosts.
	BetweennessHigh      float64
	BetweennessHighBonus float64
	BetweennessHighConf  float64
	BetweennessMid       float64
	BetweennessMidBonus  float64
	AnomalyBonus         float64
	AnomalyConfBoost     float64

	// Merchant suppression.
	MerchantMinDegree  int
	MerchantFactor     float64
	MerchantHeuristics bool // full diversity heuristics vs span-only

	// Adaptive filtering (enhanced only).
	AdaptiveFilter     bool
	FilterFloor        float64
	FilterCeil         float64
	HighConfidenceMin  float64
	BorderlineScore    float64
	BorderlineConfMin  float64

	// Ring risk: true for member-score weighting, false for degree-based.
	MemberRingRisk bool
}

// Baseline returns the fixed-weight scoring tier.
func Baseline() Params {
	return Params{
		Tier: "baseline",
		Weights: map[domain.PatternType]float64{
			domain.CyclePattern(3):     40,
			domain.CyclePattern(4):     40,
			domain.CyclePattern(5):     40,
			domain.PatternFanIn:        30,
			domain.PatternFanOut:       30,
			domain.PatternLayeredShell: 35,
		},
		WindowVelocityBonus:  10,
		WindowVelocityMinTx:  20,
		WindowVelocityWindow: 24 * time.Hour,
		ExtremeVelocity:      80,
		ExtremeVelocityBonus: 5,
		BetweennessHigh:      70,
		BetweennessHighBonus: 5,
		AnomalyBonus:         8,
		MerchantMinDegree:    10,
		MerchantFactor:       0.5,
	}
}

// Enhanced returns the confidence-weighted scoring tier with adaptive
// filtering.
func Enhanced() Params {
	return Params{
		Tier: "enhanced",
		Weights: map[domain.PatternType]float64{
			domain.CyclePattern(3):             45,
			domain.CyclePattern(4):             45,
			domain.CyclePattern(5):             45,
			domain.PatternFanIn:                35,
			domain.PatternFanOut:               35,
			domain.PatternLayeredShell:         40,
			domain.PatternAmountAnomaly:        25,
			domain.PatternRapidNewAccount:      30,
			domain.PatternHighActivityDensity:  25,
		},
		UseConfidence:         true,
		DefaultConfidence:     0.7,
		MultiPatternBonus:     15,
		RateVelocityHigh:      70,
		RateVelocityHighBonus: 12,
		RateVelocityMid:       50,
		RateVelocityMidBonus:  6,
		ExtremeVelocity:       85,
		ExtremeVelocityBonus:  5,
		BetweennessHigh:       75,
		BetweennessHighBonus:  8,
		BetweennessHighConf:   0.1,
		BetweennessMid:        60,
		BetweennessMidBonus:   4,
		AnomalyBonus:          10,
		AnomalyConfBoost:      0.15,
		MerchantMinDegree:     15,
		MerchantFactor:        0.3,
		MerchantHeuristics:    true,
		AdaptiveFilter:        true,
		FilterFloor:           50,
		FilterCeil:            60,
		HighConfidenceMin:     0.75,
		BorderlineScore:       65,
		BorderlineConfMin:     0.7,
		MemberRingRisk:        true,
	}
}

// Output is the scored, filtered, sorted result of one scoring pass.
type Output struct {
	Accounts    []*domain.SuspiciousAccount
	Rings       []domain.FraudRing
	FilteredOut int
}

// Scorer applies one tier's scoring parameters.
type Scorer struct {
	params Params
}

// NewScorer creates a scorer for the given tier parameters.
func NewScorer(params Params) *Scorer {
	return &Scorer{params: params}
}

// Score aggregates detector matches and graph metrics into per-account
// suspicion and confidence scores, then prices rings. The detection result
// and transaction slice are read-only; every returned structure is freshly
// allocated and owned by the caller.
func (s *Scorer) Score(res *detect.Result, txs []domain.Transaction) *Output {
	g := res.Graph
	betweenness := graph.Betweenness(g)
	pageRank := graph.PageRank(g)
	velocity := graph.Velocity(txs)
	anomalies := graph.PageRankAnomalies(g, pageRank)

	byAccount := groupByAccount(txs)

	accounts := make([]*domain.SuspiciousAccount, 0, len(res.AccountOrder))
	for _, id := range res.AccountOrder {
		acct := res.Accounts[id]

		if s.params.UseConfidence {
			acct.ConfidenceScore = s.confidenceScore(acct)
		}

		scoreVal := s.patternScore(acct)
		scoreVal += s.velocityBonus(velocity[id], byAccount[id])
		if s.isLegitimateMerchant(g, id, byAccount[id]) {
			scoreVal *= s.params.MerchantFactor
		}
		scoreVal = round1(math.Min(100, scoreVal))

		// Centrality and influence boosts land after suppression.
		b := betweenness[id]
		switch {
		case b > s.params.BetweennessHigh:
			scoreVal += s.params.BetweennessHighBonus
			acct.ConfidenceScore += s.params.BetweennessHighConf
		case s.params.BetweennessMid > 0 && b > s.params.BetweennessMid:
			scoreVal += s.params.BetweennessMidBonus
		}
		if anomalies[id] {
			scoreVal += s.params.AnomalyBonus
			acct.ConfidenceScore += s.params.AnomalyConfBoost
		}
		if velocity[id] > s.params.ExtremeVelocity {
			scoreVal += s.params.ExtremeVelocityBonus
		}

		acct.SuspicionScore = round1(math.Min(100, scoreVal))
		acct.ConfidenceScore = round2(math.Min(1, acct.ConfidenceScore))
		acct.Betweenness = round1(b)
		acct.PageRank = round1(pageRank[id])
		acct.Velocity = round1(velocity[id])

		accounts = append(accounts, acct)
	}

	sortAccounts(accounts)

	kept := accounts
	if s.params.AdaptiveFilter {
		kept = s.filterAccounts(accounts)
	}

	rings := s.scoreRings(res.Rings, g, kept)

	return &Output{
		Accounts:    kept,
		Rings:       rings,
		FilteredOut: len(accounts) - len(kept),
	}
}

// patternScore sums tier weights across detected patterns, weighted by
// per-pattern confidence in the enhanced tier, plus the multi-pattern bonus.
func (s *Scorer) patternScore(acct *domain.SuspiciousAccount) float64 {
	score := 0.0
	for _, p := range acct.DetectedPatterns {
		weight := s.params.Weights[p]
		if s.params.UseConfidence {
			conf, ok := acct.Confidence[p]
			if !ok {
				conf = s.params.DefaultConfidence
			}
			score += weight * conf
		} else {
			score += weight
		}
	}
	if s.params.MultiPatternBonus > 0 && len(acct.DetectedPatterns) >= 2 {
		score += s.params.MultiPatternBonus
	}
	return score
}

// velocityBonus applies either the enhanced rate-based bonus or the baseline
// day-window bonus, depending on tier parameters.
func (s *Scorer) velocityBonus(rate float64, txs []domain.Transaction) float64 {
	if s.params.RateVelocityHigh > 0 {
		switch {
		case rate > s.params.RateVelocityHigh:
			return s.params.RateVelocityHighBonus
		case rate > s.params.RateVelocityMid:
			return s.params.RateVelocityMidBonus
		}
		return 0
	}

	if s.params.WindowVelocityBonus == 0 || len(txs) < 5 {
		return 0
	}
	sorted := make([]domain.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	for i := range sorted {
		end := sorted[i].Timestamp.Add(s.params.WindowVelocityWindow)
		count := 0
		for j := i; j < len(sorted) && !sorted[j].Timestamp.After(end); j++ {
			count++
		}
		if count >= s.params.WindowVelocityMinTx {
			return s.params.WindowVelocityBonus
		}
	}
	return 0
}

// confidenceScore combines mean pattern confidence, a multi-pattern bonus
// and degree-shape archetypes (collector, distributor, intermediary).
func (s *Scorer) confidenceScore(acct *domain.SuspiciousAccount) float64 {
	conf := 0.0
	if len(acct.Confidence) > 0 {
		sum := 0.0
		for _, c := range acct.Confidence {
			sum += c
		}
		conf = sum / float64(len(acct.Confidence))
	}

	if n := len(acct.DetectedPatterns); n >= 2 {
		conf += 0.15 * float64(n-1)
	}

	in, out := acct.InDegree, acct.OutDegree
	if in > 10 && out < 5 {
		conf += 0.1 // collector
	}
	if out > 10 && in < 5 {
		conf += 0.1 // distributor
	}
	if in+out > 15 && abs(in-out) < 3 {
		conf += 0.05 // balanced intermediary
	}

	return math.Min(1, conf)
}

// filterAccounts applies the adaptive minimum-score threshold plus the
// confidence gates that hold precision up.
func (s *Scorer) filterAccounts(accounts []*domain.SuspiciousAccount) []*domain.SuspiciousAccount {
	threshold := s.adaptiveThreshold(accounts)

	kept := make([]*domain.SuspiciousAccount, 0, len(accounts))
	for _, acct := range accounts {
		if acct.SuspicionScore < threshold {
			continue
		}
		if !s.hasHighConfidencePattern(acct) && len(acct.DetectedPatterns) < 2 {
			continue
		}
		if acct.SuspicionScore < s.params.BorderlineScore && acct.ConfidenceScore < s.params.BorderlineConfMin {
			continue
		}
		kept = append(kept, acct)
	}
	return kept
}

// adaptiveThreshold is the median suspicion score clamped to the configured
// band, defaulting to the floor when nothing was flagged.
func (s *Scorer) adaptiveThreshold(accounts []*domain.SuspiciousAccount) float64 {
	if len(accounts) == 0 {
		return s.params.FilterFloor
	}
	scores := make([]float64, len(accounts))
	for i, acct := range accounts {
		scores[i] = acct.SuspicionScore
	}
	sort.Float64s(scores)
	// Even-length lists take the lower middle.
	median := scores[(len(scores)-1)/2]
	return math.Max(s.params.FilterFloor, math.Min(median, s.params.FilterCeil))
}

func (s *Scorer) hasHighConfidencePattern(acct *domain.SuspiciousAccount) bool {
	for _, p := range acct.DetectedPatterns {
		conf, ok := acct.Confidence[p]
		if !ok {
			conf = s.params.DefaultConfidence
		}
		if conf >= s.params.HighConfidenceMin {
			return true
		}
	}
	return false
}

// scoreRings prices each ring and sorts them by descending risk.
func (s *Scorer) scoreRings(rings []domain.FraudRing, g *graph.Graph, accounts []*domain.SuspiciousAccount) []domain.FraudRing {
	byID := make(map[string]*domain.SuspiciousAccount, len(accounts))
	for _, acct := range accounts {
		byID[acct.AccountID] = acct
	}

	scored := make([]domain.FraudRing, len(rings))
	for i, ring := range rings {
		if s.params.MemberRingRisk {
			scored[i] = s.memberRingRisk(ring, byID)
		} else {
			scored[i] = s.degreeRingRisk(ring, g)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].RiskScore != scored[j].RiskScore {
			return scored[i].RiskScore > scored[j].RiskScore
		}
		return scored[i].RingID < scored[j].RingID
	})
	return scored
}

// memberRingRisk averages member suspicion with a weight toward the worst
// member. Members filtered out of the account list contribute zero.
func (s *Scorer) memberRingRisk(ring domain.FraudRing, accounts map[string]*domain.SuspiciousAccount) domain.FraudRing {
	sum, max := 0.0, 0.0
	for _, id := range ring.MemberAccounts {
		memberScore := 0.0
		if acct, ok := accounts[id]; ok {
			memberScore = acct.SuspicionScore
		}
		sum += memberScore
		if memberScore > max {
			max = memberScore
		}
	}
	avg := 0.0
	if len(ring.MemberAccounts) > 0 {
		avg = sum / float64(len(ring.MemberAccounts))
	}
	ring.RiskScore = round1(math.Min(100, avg*0.7+max*0.3))
	return ring
}

// degreeRingRisk prices a ring from member connectivity with a per-pattern
// multiplier.
func (s *Scorer) degreeRingRisk(ring domain.FraudRing, g *graph.Graph) domain.FraudRing {
	total := 0.0
	for _, id := range ring.MemberAccounts {
		total += float64(g.TotalDegree(id)) * 2
	}
	avg := 0.0
	if len(ring.MemberAccounts) > 0 {
		avg = total / float64(len(ring.MemberAccounts))
	}

	multiplier := 1.0
	switch ring.PatternType {
	case "cycle":
		multiplier = 1.2
	case "fan_in", "fan_out":
		multiplier = 1.1
	case "layered_shell":
		multiplier = 1.15
	}

	ring.RiskScore = round1(math.Min(100, avg*multiplier))
	return ring
}

// sortAccounts orders by suspicion desc, confidence desc, account id asc.
// The id tie-break keeps output byte-stable across identical runs.
func sortAccounts(accounts []*domain.SuspiciousAccount) {
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

func groupByAccount(txs []domain.Transaction) map[string][]domain.Transaction {
	byAccount := make(map[string][]domain.Transaction)
	for _, tx := range txs {
		byAccount[tx.SenderID] = append(byAccount[tx.SenderID], tx)
		if tx.ReceiverID != tx.SenderID {
			byAccount[tx.ReceiverID] = append(byAccount[tx.ReceiverID], tx)
		}
	}
	return byAccount
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
