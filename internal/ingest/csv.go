// Package ingest parses transaction batches out of uploaded CSV files.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/opensource-finance/harrier/internal/domain"
)

var requiredColumns = []string{
	"transaction_id",
	"sender_id",
	"receiver_id",
	"amount",
	"timestamp",
}

// ParseCSV reads a transaction batch from CSV. The header must carry every
// required column (any order, extra columns ignored). Rows with missing
// fields, unparseable timestamps, or amounts that fail to parse to a finite
// non-negative number are skipped; a batch where no row survives is an error.
func ParseCSV(r io.Reader) ([]domain.Transaction, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty CSV", domain.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: missing required column %q", domain.ErrInvalidInput, col)
		}
	}

	var txs []domain.Transaction
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A malformed row is skipped like any other bad row.
			continue
		}

		tx, ok := parseRow(record, index)
		if !ok {
			continue
		}
		txs = append(txs, tx)
	}

	if len(txs) == 0 {
		return nil, fmt.Errorf("%w: no valid transactions found in CSV", domain.ErrInvalidInput)
	}
	return txs, nil
}

func parseRow(record []string, index map[string]int) (domain.Transaction, bool) {
	field := func(col string) string {
		i := index[col]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	id := field("transaction_id")
	sender := field("sender_id")
	receiver := field("receiver_id")
	rawAmount := field("amount")
	rawTimestamp := field("timestamp")
	if id == "" || sender == "" || receiver == "" || rawAmount == "" || rawTimestamp == "" {
		return domain.Transaction{}, false
	}

	amount, err := strconv.ParseFloat(rawAmount, 64)
	if err != nil || !domain.ValidAmount(amount) {
		return domain.Transaction{}, false
	}
	ts, err := domain.ParseTimestamp(rawTimestamp)
	if err != nil {
		return domain.Transaction{}, false
	}

	return domain.Transaction{
		ID:         id,
		SenderID:   sender,
		ReceiverID: receiver,
		Amount:     amount,
		Timestamp:  ts,
	}, true
}
