package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping() error
}

// PingerFunc checks a dependency that takes a context, such as redis.
type PingerFunc func(ctx context.Context) error

// SystemHandler serves the unauthenticated service endpoints.
type SystemHandler struct {
	db     Pinger
	cache  PingerFunc
	logger *slog.Logger
}

// NewSystemHandler creates a SystemHandler. cache may be nil when the
// identity cache has no remote backend.
func NewSystemHandler(db Pinger, cache PingerFunc, logger *slog.Logger) *SystemHandler {
	return &SystemHandler{db: db, cache: cache, logger: logger}
}

// HandleRoot greets API clients.
//
// HTTP: GET /
func (h *SystemHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Welcome to the Contacts API"})
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Cache    string `json:"cache"`
}

// HandleHealth reports liveness.
//
// HTTP: GET /healthz
//
// Only the database decides the status code. The identity cache is
// best-effort, so a cache outage is reported as "degraded" with a 200.
func (h *SystemHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Database: "ok", Cache: "disabled"}

	if err := h.db.Ping(); err != nil {
		h.logger.Error("health check: database unreachable", slog.String("error", err.Error()))
		resp.Status = "unavailable"
		resp.Database = "unreachable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	if h.cache != nil {
		resp.Cache = "ok"
		if err := h.cache(r.Context()); err != nil {
			h.logger.Warn("health check: cache unreachable", slog.String("error", err.Error()))
			resp.Status = "degraded"
			resp.Cache = "unreachable"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
