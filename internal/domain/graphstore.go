package domain

import "context"

// GraphStore exports analyzed transaction graphs to an external graph
// database for visualization and ad-hoc Cypher queries. Optional; the
// engine runs fully without one.
type GraphStore interface {
	// ExportView upserts the account nodes and aggregated edges of a
	// batch projection, tagged with the analysis results.
	ExportView(ctx context.Context, tenantID string, view *GraphView) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close(ctx context.Context) error
}
