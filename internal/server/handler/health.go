package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	mode     string
	operator string
	logger   *slog.Logger
}

// NewHealthHandler creates a HealthHandler reporting the given run mode and
// the custodied operator address. Operator is empty when no key is loaded.
func NewHealthHandler(mode, operator string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{mode: mode, operator: operator, logger: logger}
}

// HealthCheck responds with a simple JSON status indicating the server is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "ok",
		"mode":      h.mode,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.operator != "" {
		body["operator"] = h.operator
	}
	writeJSON(w, http.StatusOK, body)
}
