package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"notebook-rag/internal/contextutil"
	"notebook-rag/internal/indexer"
)

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// HealthHandler handles HTTP requests for health checks.
type HealthHandler struct {
	checks             map[string]HealthCheck
	stats              func() indexer.IngestionStats
	healthCheckTimeout time.Duration
}

// NewHealthHandler creates a new HealthHandler. stats may be nil.
func NewHealthHandler(checks map[string]HealthCheck, stats func() indexer.IngestionStats) *HealthHandler {
	return &HealthHandler{
		checks:             checks,
		stats:              stats,
		healthCheckTimeout: 5 * time.Second,
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	// Overall health status: "healthy" or "unhealthy"
	Status string `json:"status"`

	// Timestamp of the health check
	Timestamp string `json:"timestamp"`

	// Individual check results
	Checks map[string]string `json:"checks"`

	// List of issues (only present if status is unhealthy)
	Issues []string `json:"issues,omitempty"`

	// Ingestion counters since the process started
	Ingestion *indexer.IngestionStats `json:"ingestion,omitempty"`
}

// ServeHTTP handles GET /api/health.
// Returns 200 OK if healthy, 503 Service Unavailable otherwise.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	checkCtx, cancel := context.WithTimeout(ctx, h.healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	var issues []string
	for _, name := range names {
		if err := h.checks[name](checkCtx); err != nil {
			logger.WarnContext(ctx, "health check failed", "check", name, "error", err)
			checks[name] = "error"
			issues = append(issues, name+"_unavailable")
			continue
		}
		checks[name] = "ok"
	}

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Issues:    issues,
	}
	if h.stats != nil {
		stats := h.stats()
		response.Ingestion = &stats
	}

	httpStatus := http.StatusOK
	if len(issues) > 0 {
		response.Status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(ctx, w, httpStatus, response)
}
