// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransactions stores a transaction batch with tenant isolation. The
// batch goes in atomically; re-uploading a transaction id replaces the row.
func (r *SQLRepository) SaveTransactions(ctx context.Context, tenantID string, txs []domain.Transaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if len(txs) == 0 {
		return nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	query := `
		INSERT INTO transactions (
			id, tenant_id, sender_id, receiver_id, amount, timestamp, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			sender_id = excluded.sender_id,
			receiver_id = excluded.receiver_id,
			amount = excluded.amount,
			timestamp = excluded.timestamp
	`
	stmt, err := dbTx.PrepareContext(ctx, r.rebind(query))
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, tx := range txs {
		if _, err := stmt.ExecContext(ctx,
			tx.ID, tenantID, tx.SenderID, tx.ReceiverID,
			tx.Amount, tx.Timestamp.UTC(), now,
		); err != nil {
			return err
		}
	}

	return dbTx.Commit()
}

// ListTransactions retrieves every stored transaction for a tenant in
// timestamp order.
func (r *SQLRepository) ListTransactions(ctx context.Context, tenantID string) ([]domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, sender_id, receiver_id, amount, timestamp
		FROM transactions
		WHERE tenant_id = ?
		ORDER BY timestamp, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(&tx.ID, &tx.SenderID, &tx.ReceiverID, &tx.Amount, &tx.Timestamp); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	return txs, rows.Err()
}

// DeleteTransactions clears a tenant's transaction set, used before a fresh
// batch upload.
func (r *SQLRepository) DeleteTransactions(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	_, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM transactions WHERE tenant_id = ?`), tenantID)
	return err
}

// SaveAnalysis stores a full report plus its denormalized flagged accounts
// and rings in one database transaction.
func (r *SQLRepository) SaveAnalysis(ctx context.Context, tenantID string, report *domain.AnalysisReport) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if report == nil || report.ID == "" {
		return fmt.Errorf("%w: report with id is required", domain.ErrInvalidInput)
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	_, err = dbTx.ExecContext(ctx, r.rebind(`
		INSERT INTO analyses (id, tenant_id, tier, report, created_at)
		VALUES (?, ?, ?, ?, ?)
	`), report.ID, tenantID, report.Tier, string(payload), report.CreatedAt.UTC())
	if err != nil {
		return err
	}

	for _, acct := range report.SuspiciousAccounts {
		patterns, _ := json.Marshal(acct.DetectedPatterns)
		var ringID sql.NullString
		if acct.RingID != nil {
			ringID = sql.NullString{String: *acct.RingID, Valid: true}
		}
		_, err = dbTx.ExecContext(ctx, r.rebind(`
			INSERT INTO suspicious_accounts (
				analysis_id, tenant_id, account_id, suspicion_score,
				confidence_score, ring_id, patterns
			) VALUES (?, ?, ?, ?, ?, ?, ?)
		`), report.ID, tenantID, acct.AccountID, acct.SuspicionScore,
			acct.ConfidenceScore, ringID, string(patterns))
		if err != nil {
			return err
		}
	}

	for _, ring := range report.FraudRings {
		members, _ := json.Marshal(ring.MemberAccounts)
		_, err = dbTx.ExecContext(ctx, r.rebind(`
			INSERT INTO fraud_rings (
				analysis_id, tenant_id, ring_id, pattern_type, risk_score, member_accounts
			) VALUES (?, ?, ?, ?, ?, ?)
		`), report.ID, tenantID, ring.RingID, ring.PatternType, ring.RiskScore, string(members))
		if err != nil {
			return err
		}
	}

	return dbTx.Commit()
}

// GetAnalysis retrieves a report by id with tenant isolation.
func (r *SQLRepository) GetAnalysis(ctx context.Context, tenantID string, analysisID string) (*domain.AnalysisReport, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `SELECT report FROM analyses WHERE tenant_id = ? AND id = ?`
	return r.scanReport(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, analysisID))
}

// LatestAnalysis retrieves the most recent report for a tenant.
func (r *SQLRepository) LatestAnalysis(ctx context.Context, tenantID string) (*domain.AnalysisReport, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT report FROM analyses
		WHERE tenant_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanReport(r.db.QueryRowContext(ctx, r.rebind(query), tenantID))
}

func (r *SQLRepository) scanReport(row *sql.Row) (*domain.AnalysisReport, error) {
	var payload string
	err := row.Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var report domain.AnalysisReport
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}

// SaveSuppressionRule stores or updates a suppression rule.
func (r *SQLRepository) SaveSuppressionRule(ctx context.Context, tenantID string, rule *domain.SuppressionRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule with id is required", domain.ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO suppression_rules (
			id, tenant_id, name, description, expression, factor, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			factor = excluded.factor,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Expression, rule.Factor, enabled, now, now,
	)
	return err
}

// GetSuppressionRule retrieves a rule by id with tenant isolation.
func (r *SQLRepository) GetSuppressionRule(ctx context.Context, tenantID string, ruleID string) (*domain.SuppressionRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, expression, factor, enabled
		FROM suppression_rules
		WHERE tenant_id = ? AND id = ?
	`

	var rule domain.SuppressionRule
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID).Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
		&rule.Expression, &rule.Factor, &enabled,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1
	return &rule, nil
}

// ListSuppressionRules retrieves every rule for a tenant, enabled or not.
func (r *SQLRepository) ListSuppressionRules(ctx context.Context, tenantID string) ([]*domain.SuppressionRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, expression, factor, enabled
		FROM suppression_rules
		WHERE tenant_id = ?
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.SuppressionRule
	for rows.Next() {
		var rule domain.SuppressionRule
		var enabled int
		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
			&rule.Expression, &rule.Factor, &enabled,
		); err != nil {
			return nil, err
		}
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteSuppressionRule removes a rule.
func (r *SQLRepository) DeleteSuppressionRule(ctx context.Context, tenantID string, ruleID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `DELETE FROM suppression_rules WHERE tenant_id = ? AND id = ?`
	result, err := r.db.ExecContext(ctx, r.rebind(query), tenantID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
