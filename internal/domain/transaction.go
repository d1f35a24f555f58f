// Package domain defines the core interfaces and types for Harrier.
package domain

import (
	"math"
	"time"
)

// Transaction is a single validated money-transfer record.
// Records are supplied pre-validated by the ingestion layer; the analysis
// engine assumes every field is well-formed.
type Transaction struct {
	ID         string    `json:"transaction_id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Amount     float64   `json:"amount"`
	Timestamp  time.Time `json:"timestamp"`
}

// TransactionRequest is the API payload for a single transaction in a batch.
type TransactionRequest struct {
	ID         string  `json:"transaction_id"`
	SenderID   string  `json:"sender_id"`
	ReceiverID string  `json:"receiver_id"`
	Amount     float64 `json:"amount"`
	Timestamp  string  `json:"timestamp"`
}

// ValidAmount reports whether an amount is finite and non-negative.
// The engine assumes both; NaN or Inf would poison edge sums and scores.
func ValidAmount(amount float64) bool {
	return !math.IsNaN(amount) && !math.IsInf(amount, 0) && amount >= 0
}

// ToTransaction converts a request to a Transaction domain object.
// Returns false if the timestamp cannot be parsed or a required field is blank.
func (r *TransactionRequest) ToTransaction() (Transaction, bool) {
	if r.ID == "" || r.SenderID == "" || r.ReceiverID == "" || !ValidAmount(r.Amount) {
		return Transaction{}, false
	}
	ts, err := ParseTimestamp(r.Timestamp)
	if err != nil {
		return Transaction{}, false
	}
	return Transaction{
		ID:         r.ID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Amount:     r.Amount,
		Timestamp:  ts,
	}, true
}

// TimestampLayout is the canonical CSV timestamp format.
const TimestampLayout = "2006-01-02 15:04:05"

// ParseTimestamp parses the canonical layout first, then RFC3339.
func ParseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(TimestampLayout, s); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, s)
}

// AccountIDs returns the deduplicated set of account ids appearing in a batch,
// in first-appearance order.
func AccountIDs(txs []Transaction) []string {
	seen := make(map[string]struct{}, len(txs)*2)
	ids := make([]string, 0, len(txs)*2)
	for _, tx := range txs {
		if _, ok := seen[tx.SenderID]; !ok {
			seen[tx.SenderID] = struct{}{}
			ids = append(ids, tx.SenderID)
		}
		if _, ok := seen[tx.ReceiverID]; !ok {
			seen[tx.ReceiverID] = struct{}{}
			ids = append(ids, tx.ReceiverID)
		}
	}
	return ids
}
