// Package worker provides async batch processing for the pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/harrier/internal/analysis"
	"github.com/opensource-finance/harrier/internal/domain"
)

// Worker processes ingested batches asynchronously from the EventBus.
type Worker struct {
	bus        domain.EventBus
	repo       domain.Repository
	cache      domain.Cache
	analyzer   *analysis.Analyzer
	graphStore domain.GraphStore

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = global subscription)
	TenantIDs []string

	// ReportTTL controls how long completed reports stay cached
	ReportTTL time.Duration
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, analyzer *analysis.Analyzer) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		repo:     repo,
		cache:    cache,
		analyzer: analyzer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetGraphStore enables Neo4j export of analyzed batches.
func (w *Worker) SetGraphStore(gs domain.GraphStore) {
	w.graphStore = gs
}

// Start begins processing batch messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if cfg.ReportTTL == 0 {
		cfg.ReportTTL = time.Hour
	}

	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker(cfg)
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID, cfg); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker(cfg Config) error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicBatchIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.processBatch(ctx, msg.TenantID, msg, cfg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts a worker for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string, cfg Config) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicBatchIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.processBatch(ctx, tenantID, msg, cfg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicBatchIngested,
	)

	return nil
}

// BatchMessage is the payload published when a batch has been ingested.
type BatchMessage struct {
	TenantID         string          `json:"tenantId"`
	TransactionCount int             `json:"transactionCount"`
	GroundTruth      map[string]bool `json:"groundTruth,omitempty"`
}

// RingMessage is the payload published for each detected fraud ring.
type RingMessage struct {
	AnalysisID string           `json:"analysisId"`
	Ring       domain.FraudRing `json:"ring"`
}

// processBatch runs the full analysis pipeline over a tenant's stored batch.
func (w *Worker) processBatch(ctx context.Context, tenantID string, msg *domain.Message, cfg Config) error {
	start := time.Now()

	var batchMsg BatchMessage
	if err := json.Unmarshal(msg.Payload, &batchMsg); err != nil {
		slog.Error("failed to parse batch message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if batchMsg.TenantID != "" {
		tenantID = batchMsg.TenantID
	}

	txs, err := w.repo.ListTransactions(ctx, tenantID)
	if err != nil {
		slog.Error("failed to load batch",
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	report, err := w.analyzer.Analyze(ctx, analysis.Request{
		TenantID:     tenantID,
		Transactions: txs,
		GroundTruth:  batchMsg.GroundTruth,
	})
	if err != nil {
		slog.Error("analysis failed",
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	if err := w.repo.SaveAnalysis(ctx, tenantID, report); err != nil {
		slog.Error("failed to save analysis",
			"tenant_id", tenantID,
			"analysis_id", report.ID,
			"error", err,
		)
	}

	if w.cache != nil {
		if err := w.cache.SetReport(ctx, tenantID, report.ID, report, cfg.ReportTTL); err != nil {
			slog.Error("failed to cache report",
				"analysis_id", report.ID,
				"error", err,
			)
		}
	}

	if w.graphStore != nil {
		view := w.analyzer.GraphView(txs, report)
		if err := w.graphStore.ExportView(ctx, tenantID, view); err != nil {
			slog.Error("failed to export graph view",
				"tenant_id", tenantID,
				"analysis_id", report.ID,
				"error", err,
			)
		}
	}

	resultPayload, _ := json.Marshal(report)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicAnalysisComplete, resultPayload); err != nil {
		slog.Error("failed to publish analysis result",
			"analysis_id", report.ID,
			"error", err,
		)
	}

	for _, ring := range report.FraudRings {
		ringPayload, _ := json.Marshal(RingMessage{AnalysisID: report.ID, Ring: ring})
		if err := w.bus.Publish(ctx, tenantID, domain.TopicRingDetected, ringPayload); err != nil {
			slog.Error("failed to publish ring",
				"analysis_id", report.ID,
				"ring_id", ring.RingID,
				"error", err,
			)
		}
	}

	slog.Info("batch processed",
		"tenant_id", tenantID,
		"analysis_id", report.ID,
		"tier", report.Tier,
		"flagged", report.Summary.SuspiciousAccountsFlagged,
		"rings", report.Summary.FraudRingsDetected,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
