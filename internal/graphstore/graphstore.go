// Package graphstore exports analyzed batches to Neo4j.
package graphstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Store writes account nodes and SENT_TO edges to a Neo4j database.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

// New connects to Neo4j and verifies connectivity.
func New(ctx context.Context, cfg domain.GraphStoreConfig) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("graph store URI is required")
	}

	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify neo4j connectivity: %w", err)
	}

	slog.Info("graph store connected", "uri", cfg.URI, "database", cfg.Database)

	return &Store{
		driver:   driver,
		database: cfg.Database,
	}, nil
}

// ExportView upserts the projection of one analyzed batch. Nodes and edges
// are merged so repeated exports converge on the latest analysis.
func (s *Store) ExportView(ctx context.Context, tenantID string, view *domain.GraphView) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	nodes := make([]map[string]any, 0, len(view.Nodes))
	for _, n := range view.Nodes {
		ringID := ""
		if n.RingID != nil {
			ringID = *n.RingID
		}
		nodes = append(nodes, map[string]any{
			"id":              n.ID,
			"in_degree":       n.InDegree,
			"out_degree":      n.OutDegree,
			"suspicious":      n.Suspicious,
			"ring_id":         ringID,
			"suspicion_score": n.SuspicionScore,
		})
	}

	edges := make([]map[string]any, 0, len(view.Edges))
	for _, e := range view.Edges {
		edges = append(edges, map[string]any{
			"source": e.Source,
			"target": e.Target,
			"amount": e.Amount,
			"count":  e.TransactionCount,
		})
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		nodeQuery := `
			UNWIND $nodes AS row
			MERGE (a:Account {tenant_id: $tenant_id, id: row.id})
			SET a.in_degree = row.in_degree,
				a.out_degree = row.out_degree,
				a.suspicious = row.suspicious,
				a.ring_id = row.ring_id,
				a.suspicion_score = row.suspicion_score
		`
		if _, err := tx.Run(ctx, nodeQuery, map[string]any{
			"tenant_id": tenantID,
			"nodes":     nodes,
		}); err != nil {
			return nil, err
		}

		edgeQuery := `
			UNWIND $edges AS row
			MATCH (from:Account {tenant_id: $tenant_id, id: row.source})
			MATCH (to:Account {tenant_id: $tenant_id, id: row.target})
			MERGE (from)-[r:SENT_TO]->(to)
			SET r.amount = row.amount,
				r.transaction_count = row.count
		`
		if _, err := tx.Run(ctx, edgeQuery, map[string]any{
			"tenant_id": tenantID,
			"edges":     edges,
		}); err != nil {
			return nil, err
		}

		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to export graph view: %w", err)
	}

	slog.Debug("graph view exported",
		"tenant_id", tenantID,
		"nodes", len(nodes),
		"edges", len(edges),
	)

	return nil
}

// Ping checks Neo4j connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// Close closes the Neo4j driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}
