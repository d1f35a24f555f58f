package domain

import "fmt"

// PatternType tags a detected fraud pattern occurrence.
type PatternType string

// The fixed set of pattern types the detectors emit. Cycle patterns carry
// their edge count in the tag (cycle_length_3 .. cycle_length_5).
const (
	PatternFanIn               PatternType = "fan_in"
	PatternFanOut              PatternType = "fan_out"
	PatternLayeredShell        PatternType = "layered_shell"
	PatternAmountAnomaly       PatternType = "amount_anomaly"
	PatternRapidNewAccount     PatternType = "rapid_new_account"
	PatternHighActivityDensity PatternType = "high_activity_density"
)

// CyclePattern returns the pattern tag for a cycle with the given edge count.
func CyclePattern(edges int) PatternType {
	return PatternType(fmt.Sprintf("cycle_length_%d", edges))
}

// Cycle is a detected directed cycle through the transaction graph.
type Cycle struct {
	// Accounts is the closed traversal, first node repeated at the end.
	Accounts []string
	// Length is the number of edges in the cycle.
	Length int
	RingID string
	// TotalAmount is the sum of aggregated amounts across cycle edges.
	TotalAmount float64
	Pattern     PatternType
}

// FanMatch is a detected fan-in or fan-out hub.
type FanMatch struct {
	AccountID string
	Pattern   PatternType // PatternFanIn or PatternFanOut
	// Counterparties is the unique sender/receiver count in the best window.
	Counterparties   int
	TransactionCount int
	// AmountDiversity is the bucket-to-count ratio; -1 when the tier does not
	// compute it.
	AmountDiversity float64
}

// ShellPath is a detected layered-shell chain.
type ShellPath struct {
	Path        []string
	Length      int
	TotalAmount float64
}

// AnomalyMatch is an amount or lifecycle anomaly on a single account.
type AnomalyMatch struct {
	AccountID string
	Pattern   PatternType
}

// SuspiciousAccount aggregates every pattern implicating one account within a
// single analysis run.
type SuspiciousAccount struct {
	AccountID        string                  `json:"account_id"`
	DetectedPatterns []PatternType           `json:"detected_patterns"`
	RingID           string                  `json:"ring_id,omitempty"`
	InDegree         int                     `json:"in_degree"`
	OutDegree        int                     `json:"out_degree"`
	Confidence       map[PatternType]float64 `json:"pattern_confidence,omitempty"`

	// Computed by the scoring stage.
	SuspicionScore  float64 `json:"suspicion_score"`
	ConfidenceScore float64 `json:"confidence_score"`
	Betweenness     float64 `json:"betweenness_centrality,omitempty"`
	PageRank        float64 `json:"pagerank_score,omitempty"`
	Velocity        float64 `json:"transaction_velocity,omitempty"`
}

// HasPattern reports whether the account carries the given pattern tag.
func (a *SuspiciousAccount) HasPattern(p PatternType) bool {
	for _, dp := range a.DetectedPatterns {
		if dp == p {
			return true
		}
	}
	return false
}

// AddPattern appends a pattern tag if not already present.
func (a *SuspiciousAccount) AddPattern(p PatternType) {
	if !a.HasPattern(p) {
		a.DetectedPatterns = append(a.DetectedPatterns, p)
	}
}

// FraudRing groups the member accounts of one detected cycle.
type FraudRing struct {
	RingID         string   `json:"ring_id"`
	MemberAccounts []string `json:"member_accounts"`
	PatternType    string   `json:"pattern_type"`
	RiskScore      float64  `json:"risk_score"`
}
