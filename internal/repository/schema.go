package repository

// Schema definitions for the Harrier database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    sender_id TEXT NOT NULL,
    receiver_id TEXT NOT NULL,
    amount REAL NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_transactions_sender ON transactions(tenant_id, sender_id);
CREATE INDEX IF NOT EXISTS idx_transactions_receiver ON transactions(tenant_id, receiver_id);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(tenant_id, timestamp);
`

const schemaAnalyses = `
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    tier TEXT NOT NULL,
    report TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_tenant ON analyses(tenant_id, created_at);
`

// Flagged accounts and rings are denormalized out of the report for direct
// querying; the report JSON stays the source of truth.
const schemaSuspiciousAccounts = `
CREATE TABLE IF NOT EXISTS suspicious_accounts (
    analysis_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    suspicion_score REAL NOT NULL,
    confidence_score REAL NOT NULL,
    ring_id TEXT,
    patterns TEXT NOT NULL,
    PRIMARY KEY (analysis_id, account_id)
);

CREATE INDEX IF NOT EXISTS idx_suspicious_accounts_tenant ON suspicious_accounts(tenant_id, account_id);
`

const schemaFraudRings = `
CREATE TABLE IF NOT EXISTS fraud_rings (
    analysis_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    ring_id TEXT NOT NULL,
    pattern_type TEXT NOT NULL,
    risk_score REAL NOT NULL,
    member_accounts TEXT NOT NULL,
    PRIMARY KEY (analysis_id, ring_id)
);

CREATE INDEX IF NOT EXISTS idx_fraud_rings_tenant ON fraud_rings(tenant_id, ring_id);
`

const schemaSuppressionRules = `
CREATE TABLE IF NOT EXISTS suppression_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    factor REAL NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_suppression_rules_tenant ON suppression_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaAnalyses,
		schemaSuspiciousAccounts,
		schemaFraudRings,
		schemaSuppressionRules,
	}
}
