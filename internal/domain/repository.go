package domain

import (
	"context"
	"time"
)

// Repository defines persistence operations for Harrier.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Transactions
	SaveTransactions(ctx context.Context, tenantID string, txs []Transaction) error
	ListTransactions(ctx context.Context, tenantID string) ([]Transaction, error)
	DeleteTransactions(ctx context.Context, tenantID string) error

	// Analysis reports
	SaveAnalysis(ctx context.Context, tenantID string, report *AnalysisReport) error
	GetAnalysis(ctx context.Context, tenantID string, analysisID string) (*AnalysisReport, error)
	LatestAnalysis(ctx context.Context, tenantID string) (*AnalysisReport, error)

	// Suppression rules
	SaveSuppressionRule(ctx context.Context, tenantID string, rule *SuppressionRule) error
	GetSuppressionRule(ctx context.Context, tenantID string, ruleID string) (*SuppressionRule, error)
	ListSuppressionRules(ctx context.Context, tenantID string) ([]*SuppressionRule, error)
	DeleteSuppressionRule(ctx context.Context, tenantID string, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is "sqlite" or "postgres"
	Driver string

	// SQLite settings (Community tier)
	SQLitePath string

	// PostgreSQL settings (Pro tier)
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	// Connection pool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
