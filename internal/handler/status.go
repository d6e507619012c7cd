package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/calloway-labs/cvforge/internal/metrics"
	"github.com/calloway-labs/cvforge/internal/middleware"
	"github.com/calloway-labs/cvforge/internal/ratelimit"
)

// StatusHandler serves the caller's quota snapshot.
type StatusHandler struct {
	reporter *ratelimit.StatusReporter
	logger   *slog.Logger
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(reporter *ratelimit.StatusReporter, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		reporter: reporter,
		logger:   logger,
	}
}

// RegisterRoutes registers the status route. Authenticated only: an
// anonymous caller has no meaningful quota to report.
func (h *StatusHandler) RegisterRoutes(mux *http.ServeMux, authed func(http.Handler) http.Handler) {
	mux.Handle("GET /api/rate-limits/status", authed(http.HandlerFunc(h.Status)))
}

// Status returns per-scope usage, percentages, status labels, and an
// upgrade recommendation. Reading status never records usage.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id := ratelimit.Identity{
		UserID: user.ID.String(),
		IP:     middleware.ClientIP(r),
		Tier:   user.EffectivePlan(),
	}

	status, err := h.reporter.Status(r.Context(), id, time.Now())
	if err != nil {
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	metrics.QuotaStatusReads.Inc()

	respondJSON(w, h.logger, http.StatusOK, status)
}
