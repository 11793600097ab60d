package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/diewo77/devispro/httpx"
)

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the diagnostic endpoints.
type HealthHandler struct {
	db      Pinger
	version string
	// Features lists optional integrations and whether they are enabled.
	Features map[string]bool
	now      func() time.Time
}

func NewHealthHandler(db Pinger, version string, features map[string]bool) *HealthHandler {
	return &HealthHandler{db: db, version: version, Features: features, now: time.Now}
}

// Health is the liveness probe.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready checks the database; 503 when it does not answer.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Test reports the server state for manual checks.
func (h *HealthHandler) Test(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	database := "ok"
	if err := h.db.Ping(ctx); err != nil {
		database = "error"
	}
	httpx.OK(w, map[string]any{
		"message":   "API opérationnelle",
		"version":   h.version,
		"timestamp": h.now().UTC().Format(time.RFC3339),
		"database":  database,
		"features":  h.Features,
	})
}
