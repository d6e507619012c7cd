// Operator endpoints for the rate-limit engine. These sit behind basic
// auth, not user sessions: they are for on-call tooling, the same
// operations the ratelimitctl CLI performs against Redis directly.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/calloway-labs/cvforge/internal/domain"
	"github.com/calloway-labs/cvforge/internal/ratelimit"
	"github.com/google/uuid"
)

// AdminHandler handles operator requests: counter resets and IP blocks.
type AdminHandler struct {
	counter *ratelimit.Counter
	guard   *ratelimit.IPGuard
	logger  *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(counter *ratelimit.Counter, guard *ratelimit.IPGuard, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		counter: counter,
		guard:   guard,
		logger:  logger,
	}
}

// RegisterRoutes registers admin routes behind the provided basic-auth
// middleware.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux, adminAuth func(http.Handler) http.Handler) {
	mux.Handle("POST /admin/rate-limits/reset", adminAuth(http.HandlerFunc(h.ResetCounters)))
	mux.Handle("POST /admin/ip-blocks", adminAuth(http.HandlerFunc(h.BlockIP)))
	mux.Handle("DELETE /admin/ip-blocks/{ip}", adminAuth(http.HandlerFunc(h.UnblockIP)))
}

// ResetCounters clears usage windows for one identity: a user ID or an IP,
// one scope or all of them.
func (h *AdminHandler) ResetCounters(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		IP     string `json:"ip"`
		Scope  string `json:"scope"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if (req.UserID == "") == (req.IP == "") {
		ErrorResponse(w, r, h.logger,
			domain.Invalid("", "Provide exactly one of user_id or ip"))
		return
	}

	var id ratelimit.Identity
	if req.UserID != "" {
		uid, err := uuid.Parse(req.UserID)
		if err != nil {
			ErrorResponse(w, r, h.logger, domain.Invalid("", "Invalid user_id"))
			return
		}
		id = ratelimit.Identity{UserID: uid.String()}
	} else {
		id = ratelimit.Anonymous(req.IP)
	}

	scopes := ratelimit.Scopes()
	if req.Scope != "" {
		scope := ratelimit.Scope(req.Scope)
		if !scopeKnown(scope) {
			ErrorResponse(w, r, h.logger, domain.Invalid("", "Unknown scope"))
			return
		}
		scopes = []ratelimit.Scope{scope}
	}

	cleared := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		existed, err := h.counter.Reset(r.Context(), id, scope)
		if err != nil {
			InternalErrorResponse(w, r, h.logger, err)
			return
		}
		if existed {
			cleared = append(cleared, string(scope))
		}
	}

	h.logger.Info("rate limit counters reset",
		"user_id", req.UserID,
		"ip", req.IP,
		"cleared", cleared,
	)

	respondJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"cleared_scopes": cleared,
	})
}

// BlockIP sets an explicit block flag for an IP. Duration defaults to the
// guard's configured block duration.
func (h *AdminHandler) BlockIP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IP              string `json:"ip"`
		DurationMinutes int    `json:"duration_minutes"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if req.IP == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid("", "ip is required"))
		return
	}

	duration := time.Duration(req.DurationMinutes) * time.Minute
	if err := h.guard.Block(r.Context(), req.IP, duration); err != nil {
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UnblockIP removes the block flag for an IP. Unblocking an IP that was
// never blocked is a 404 so operators notice typos.
func (h *AdminHandler) UnblockIP(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")
	if ip == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid("", "ip is required"))
		return
	}

	existed, err := h.guard.Unblock(r.Context(), ip)
	if err != nil {
		InternalErrorResponse(w, r, h.logger, err)
		return
	}
	if !existed {
		ErrorResponse(w, r, h.logger, domain.NotFound("", "ip block", ip))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// scopeKnown reports whether scope is one of the policy's scopes.
func scopeKnown(scope ratelimit.Scope) bool {
	for _, s := range ratelimit.Scopes() {
		if s == scope {
			return true
		}
	}
	return false
}
