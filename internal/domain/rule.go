package domain

// SuppressionRule is an operator-defined adjustment applied to scored
// accounts before the final report is assembled. The CEL expression is
// evaluated against the account's scoring facts; when it yields true the
// account's suspicion score is multiplied by Factor. Factors below 1 dampen
// known-good populations (payroll hubs, utilities); factors above 1 boost
// watchlisted shapes.
type SuppressionRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// CEL expression over account facts, must return bool.
	// Variables: account_id, suspicion_score, confidence_score, in_degree,
	// out_degree, pattern_count, patterns (list of string), velocity.
	Expression string `json:"expression"`

	// Factor multiplies the suspicion score when the expression matches.
	Factor float64 `json:"factor"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}
