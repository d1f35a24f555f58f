package domain

import (
	"time"
)

// AnalysisReport is the complete output of one batch analysis run.
type AnalysisReport struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Tier      string    `json:"tier"` // "enhanced" or "baseline" (after fallback)
	CreatedAt time.Time `json:"createdAt"`

	SuspiciousAccounts []AccountResult `json:"suspicious_accounts"`
	FraudRings         []FraudRing     `json:"fraud_rings"`
	Summary            Summary         `json:"summary"`
	Metrics            Metrics         `json:"metrics"`
}

// AccountResult is the external shape of a scored suspicious account.
type AccountResult struct {
	AccountID        string        `json:"account_id"`
	SuspicionScore   float64       `json:"suspicion_score"`
	DetectedPatterns []PatternType `json:"detected_patterns"`
	RingID           *string       `json:"ring_id"`
	ConfidenceScore  float64       `json:"confidence_score"`
}

// Summary holds batch-level counts for the report.
type Summary struct {
	TotalAccountsAnalyzed     int     `json:"total_accounts_analyzed"`
	SuspiciousAccountsFlagged int     `json:"suspicious_accounts_flagged"`
	FraudRingsDetected        int     `json:"fraud_rings_detected"`
	ProcessingTimeSeconds     float64 `json:"processing_time_seconds"`
}

// Metrics holds detection quality measures, exact when ground truth was
// supplied and estimated otherwise.
type Metrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1Score"`
	Accuracy  float64 `json:"accuracy"`
	Estimated bool    `json:"estimated"`

	// Confusion matrix, populated only for ground-truth metrics.
	TruePositives  int `json:"truePositives,omitempty"`
	FalsePositives int `json:"falsePositives,omitempty"`
	FalseNegatives int `json:"falseNegatives,omitempty"`
	TrueNegatives  int `json:"trueNegatives,omitempty"`

	// Bucket counts, populated only for estimated metrics.
	HighConfidenceCount   int `json:"highConfidenceCount,omitempty"`
	MediumConfidenceCount int `json:"mediumConfidenceCount,omitempty"`
	LowConfidenceCount    int `json:"lowConfidenceCount,omitempty"`

	AccountsFiltered int `json:"accountsFiltered,omitempty"`
}

// GraphView is the node/edge projection served for visualization clients.
type GraphView struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// GraphNode is one account in the visualization projection.
type GraphNode struct {
	ID             string  `json:"id"`
	InDegree       int     `json:"in_degree"`
	OutDegree      int     `json:"out_degree"`
	Suspicious     bool    `json:"suspicious"`
	RingID         *string `json:"ring_id"`
	SuspicionScore float64 `json:"suspicion_score"`
}

// GraphEdge is one aggregated directed edge in the projection.
type GraphEdge struct {
	Source           string  `json:"source"`
	Target           string  `json:"target"`
	Amount           float64 `json:"amount"`
	TransactionCount int     `json:"transaction_count"`
}
