package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// PingFunc checks one dependency.
type PingFunc func(ctx context.Context) error

// HealthHandler reports whether the database (required) and Redis (optional)
// answer. A nil redis check means Redis isn't configured.
type HealthHandler struct {
	db     PingFunc
	redis  PingFunc
	logger *slog.Logger
}

func NewHealthHandler(db, redis PingFunc, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, logger: logger}
}

type healthResponse struct {
	Status   string `json:"status"` // ok, degraded or down
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

// HandleHealth answers 200 while the database is reachable, even if Redis is
// not: everything Redis backs fails open. 503 when the database is down.
//
// HTTP: GET /healthz
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Database: "ok", Redis: "disabled"}
	status := http.StatusOK

	if err := h.db(ctx); err != nil {
		h.logger.Error("health check: database unreachable", slog.String("error", err.Error()))
		resp.Database = "error"
		resp.Status = "down"
		status = http.StatusServiceUnavailable
	}

	if h.redis != nil {
		resp.Redis = "ok"
		if err := h.redis(ctx); err != nil {
			h.logger.Warn("health check: redis unreachable", slog.String("error", err.Error()))
			resp.Redis = "error"
			if resp.Status == "ok" {
				resp.Status = "degraded"
			}
		}
	}

	writeJSON(w, status, resp)
}
