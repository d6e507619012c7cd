package handler

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// HealthHandler reports readiness of the service and its dependencies.
type HealthHandler struct {
	db           *sql.DB
	redis        *redis.Client // nil when running on the in-memory cache
	aiConfigured bool
	logger       *slog.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db *sql.DB, redisClient *redis.Client, aiConfigured bool, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		db:           db,
		redis:        redisClient,
		aiConfigured: aiConfigured,
		logger:       logger,
	}
}

// RegisterRoutes registers the health route. Public, unthrottled.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
}

// Health pings each dependency with a short deadline. The AI provider is
// never called from a health check; it is reported as configured or
// skipped. Any unhealthy dependency turns the overall status unhealthy
// with a 503.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	services := map[string]string{}
	healthy := true

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Warn("health check: database unreachable", "error", err)
		services["database"] = "unhealthy"
		healthy = false
	} else {
		services["database"] = "healthy"
	}

	if h.redis == nil {
		services["redis"] = "skipped"
	} else if err := h.redis.Ping(ctx).Err(); err != nil {
		h.logger.Warn("health check: redis unreachable", "error", err)
		services["redis"] = "unhealthy"
		healthy = false
	} else {
		services["redis"] = "healthy"
	}

	if h.aiConfigured {
		services["openai"] = "configured"
	} else {
		services["openai"] = "skipped"
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	respondJSON(w, h.logger, code, map[string]interface{}{
		"status":   status,
		"services": services,
	})
}
