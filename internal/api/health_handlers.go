package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/onnwee/feedrank/internal/health"
)

// ReadinessTimeout bounds all readiness checks of one probe.
const ReadinessTimeout = 5 * time.Second

// ReadinessCheck is a named dependency check. Non-critical checks are
// reported but never fail the probe.
type ReadinessCheck struct {
	Name     string
	Checker  health.Checker
	Critical bool
}

// HealthHandlers provides liveness and readiness endpoints.
type HealthHandlers struct {
	checks []ReadinessCheck
	logger *slog.Logger
	now    func() time.Time
}

// NewHealthHandlers creates health handlers running checks on /ready.
// logger may be nil.
func NewHealthHandlers(logger *slog.Logger, checks ...ReadinessCheck) *HealthHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandlers{checks: checks, logger: logger, now: time.Now}
}

// HealthResponse represents the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health (liveness). It succeeds while the process can
// serve requests.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, r.Context(), http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": "ok"},
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready (readiness). Checks run concurrently; the probe
// returns 503 if any critical check fails.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), ReadinessTimeout)
	defer cancel()

	results := make([]error, len(h.checks))
	var wg sync.WaitGroup
	for i, c := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.Checker.HealthCheck(ctx)
		}()
	}
	wg.Wait()

	checks := make(map[string]string, len(h.checks))
	healthy := true
	for i, c := range h.checks {
		if err := results[i]; err != nil {
			checks[c.Name] = "error"
			if c.Critical {
				healthy = false
			}
			h.logger.WarnContext(ctx, "readiness check failed",
				"check", c.Name, "critical", c.Critical, "error", err)
			continue
		}
		checks[c.Name] = "ok"
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	WriteJSON(w, r.Context(), code, HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}
