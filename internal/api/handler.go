package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/harrier/internal/analysis"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/ingest"
	"github.com/opensource-finance/harrier/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *rules.Engine
	analyzer  *analysis.Analyzer
	version   string
	reportTTL time.Duration
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, analyzer *analysis.Analyzer, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		engine:    engine,
		analyzer:  analyzer,
		version:   version,
		reportTTL: time.Hour,
	}
}

// GlobalTenantID is used for suppression rules that apply to all tenants.
const GlobalTenantID = "*"

// maxUploadBytes caps multipart CSV uploads at 100MB.
const maxUploadBytes = 100 << 20

// AnalyzeRequest is the request body for POST /analyze.
type AnalyzeRequest struct {
	Transactions []domain.TransactionRequest `json:"transactions"`
	GroundTruth  map[string]bool             `json:"ground_truth,omitempty"`
}

// Analyze handles POST /analyze requests with a JSON transaction batch.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	txs := make([]domain.Transaction, 0, len(req.Transactions))
	skipped := 0
	for i := range req.Transactions {
		tx, ok := req.Transactions[i].ToTransaction()
		if !ok {
			skipped++
			continue
		}
		txs = append(txs, tx)
	}
	if skipped > 0 {
		slog.Warn("skipped malformed transactions",
			"tenant_id", tenantID,
			"skipped", skipped,
		)
	}

	h.runAnalysis(w, r, tenantID, txs, req.GroundTruth)
}

// Upload handles POST /upload requests with a multipart CSV file.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid multipart form",
		})
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "file field is required",
		})
		return
	}
	defer file.Close()

	txs, err := ingest.ParseCSV(file)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("csv parse failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to parse CSV",
		})
		return
	}

	h.runAnalysis(w, r, tenantID, txs, nil)
}

// runAnalysis executes the shared upload pipeline: replace the tenant's
// stored batch, run the engine, persist and cache the report, publish
// completion events, and answer with the report. Identical batches are
// answered from cache by digest.
func (h *Handler) runAnalysis(w http.ResponseWriter, r *http.Request, tenantID string, txs []domain.Transaction, groundTruth map[string]bool) {
	ctx := r.Context()

	digest := batchDigest(txs)
	if h.cache != nil && groundTruth == nil {
		if cached, err := h.cache.GetReport(ctx, tenantID, "digest:"+digest); err == nil && cached != nil {
			slog.Info("batch answered from cache",
				"tenant_id", tenantID,
				"analysis_id", cached.ID,
			)
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	if h.repo != nil {
		if err := h.repo.DeleteTransactions(ctx, tenantID); err != nil {
			slog.Error("failed to clear previous batch", "tenant_id", tenantID, "error", err)
		}
		if err := h.repo.SaveTransactions(ctx, tenantID, txs); err != nil {
			slog.Error("failed to save batch", "tenant_id", tenantID, "error", err)
		}
	}

	report, err := h.analyzer.Analyze(ctx, analysis.Request{
		TenantID:     tenantID,
		Transactions: txs,
		GroundTruth:  groundTruth,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("analysis failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "analysis failed",
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveAnalysis(ctx, tenantID, report); err != nil {
			slog.Error("failed to save analysis",
				"tenant_id", tenantID,
				"analysis_id", report.ID,
				"error", err,
			)
		}
	}

	if h.cache != nil {
		if err := h.cache.SetReport(ctx, tenantID, report.ID, report, h.reportTTL); err != nil {
			slog.Error("failed to cache report", "analysis_id", report.ID, "error", err)
		}
		if groundTruth == nil {
			_ = h.cache.SetReport(ctx, tenantID, "digest:"+digest, report, h.reportTTL)
		}
	}

	if h.bus != nil {
		payload, _ := json.Marshal(report)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicAnalysisComplete, payload); err != nil {
			slog.Error("failed to publish analysis result",
				"analysis_id", report.ID,
				"error", err,
			)
		}
	}

	writeJSON(w, http.StatusOK, report)
}

// batchDigest computes a stable fingerprint of a transaction batch.
func batchDigest(txs []domain.Transaction) string {
	hash := sha256.New()
	for _, tx := range txs {
		fmt.Fprintf(hash, "%s|%s|%s|%.2f|%d\n",
			tx.ID, tx.SenderID, tx.ReceiverID, tx.Amount, tx.Timestamp.Unix())
	}
	return hex.EncodeToString(hash.Sum(nil))
}

// GetAnalysis retrieves a stored report by id.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	analysisID := chi.URLParam(r, "id")

	if analysisID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "analysis id is required",
		})
		return
	}

	if h.cache != nil {
		if cached, err := h.cache.GetReport(ctx, tenantID, analysisID); err == nil && cached != nil {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	report, err := h.repo.GetAnalysis(ctx, tenantID, analysisID)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "analysis not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get analysis", "id", analysisID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load analysis",
		})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// Results retrieves the most recent report for the tenant.
func (h *Handler) Results(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	report, err := h.repo.LatestAnalysis(ctx, tenantID)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no analysis available",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get latest analysis", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load analysis",
		})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// Graph serves the node/edge projection of the tenant's latest batch.
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	report, err := h.repo.LatestAnalysis(ctx, tenantID)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no analysis available",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get latest analysis", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load analysis",
		})
		return
	}

	txs, err := h.repo.ListTransactions(ctx, tenantID)
	if err != nil {
		slog.Error("failed to load batch", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load transactions",
		})
		return
	}

	writeJSON(w, http.StatusOK, h.analyzer.GraphView(txs, report))
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns all suppression rules currently loaded in the engine.
// Rules are loaded from the database at startup and can be reloaded via
// POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.LoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a suppression rule by id from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.engine.LoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a suppression rule.
type CreateRuleRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Expression  string  `json:"expression"`
	Factor      float64 `json:"factor"`
	Enabled     bool    `json:"enabled"`
}

// CreateRule creates a new suppression rule and saves it to the database.
// Rules are saved globally (tenant_id = "*") so they apply to all tenants.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	rule := &domain.SuppressionRule{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Factor:      req.Factor,
		Enabled:     req.Enabled,
	}

	if err := h.engine.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveSuppressionRule(ctx, GlobalTenantID, rule); err != nil {
			slog.Error("failed to save rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// UpdateRule updates an existing suppression rule.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	rule := &domain.SuppressionRule{
		ID:          ruleID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Factor:      req.Factor,
		Enabled:     req.Enabled,
	}

	if err := h.engine.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveSuppressionRule(ctx, GlobalTenantID, rule); err != nil {
			slog.Error("failed to update rule", "id", ruleID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to update rule",
			})
			return
		}
	}

	slog.Info("rule updated", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rule":    rule,
		"message": "Rule updated. Call POST /rules/reload to apply changes.",
	})
}

// DeleteRule deletes a suppression rule and auto-reloads the engine.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.DeleteSuppressionRule(ctx, GlobalTenantID, ruleID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{
					"error": "rule not found",
				})
				return
			}
			slog.Error("failed to delete rule", "id", ruleID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to delete rule",
			})
			return
		}

		// Auto-reload the engine after delete
		dbRules, err := h.repo.ListSuppressionRules(ctx, GlobalTenantID)
		if err != nil {
			slog.Error("failed to reload rules after delete", "error", err)
		} else if err := h.engine.ReloadRules(dbRules); err != nil {
			slog.Error("failed to reload rules into engine", "error", err)
		}
	}

	slog.Info("rule deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Rule deleted and engine reloaded.",
	})
}

// ReloadRules reloads all suppression rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListSuppressionRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   h.engine.RulesCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
