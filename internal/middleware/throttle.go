package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/calloway-labs/cvforge/internal/domain"
	"github.com/calloway-labs/cvforge/internal/metrics"
	"github.com/calloway-labs/cvforge/internal/ratelimit"
)

// ThrottleMiddleware applies plan-based quota enforcement to a route. Each
// rate-limited route is wrapped with Limit(scope) for the scope of action
// it performs, so one user flooding questionnaire creation does not burn
// their AI generation quota.
//
// Must run after WithUser: the caller's identity (and therefore plan tier)
// comes from the request context. Anonymous requests are throttled at
// Free-tier limits keyed by client IP.
type ThrottleMiddleware struct {
	throttler *ratelimit.Throttler
	logger    *slog.Logger
}

// NewThrottleMiddleware creates a new ThrottleMiddleware instance.
func NewThrottleMiddleware(throttler *ratelimit.Throttler, logger *slog.Logger) *ThrottleMiddleware {
	return &ThrottleMiddleware{
		throttler: throttler,
		logger:    logger,
	}
}

// throttleDenialBody is the 429 response for a plan-quota denial. It tells
// the caller what ran out, when it resets, and what upgrading would buy.
type throttleDenialBody struct {
	Error       string             `json:"error"`
	Message     string             `json:"message"`
	CurrentPlan string             `json:"current_plan"`
	Limit       int                `json:"limit"`
	ResetAt     string             `json:"reset_at"`
	Suggestion  *upgradeSuggestion `json:"suggestion,omitempty"`
}

type upgradeSuggestion struct {
	Message         string `json:"message"`
	RecommendedPlan string `json:"recommended_plan"`
	NewLimit        int    `json:"new_limit"`
	UpgradeURL      string `json:"upgrade_url"`
}

// Limit returns middleware enforcing the given scope's plan quota.
//
// The quota charge is deferred until the handler has taken the request:
// a request the handler rejects as malformed (400 or 413) never spends
// quota, so a caller cannot burn their own budget with invalid bodies.
func (m *ThrottleMiddleware) Limit(scope ratelimit.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := requestIdentity(r)
			now := time.Now()

			verdict, err := m.throttler.Peek(r.Context(), id, scope, now)
			if err != nil {
				// Same availability call as the IP guard: a cache outage
				// must not take quota-limited endpoints down with it.
				m.logger.Error("throttle check failed, allowing request",
					"scope", scope,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			if !verdict.Allowed {
				metrics.ThrottleDenied(string(scope), string(verdict.Plan))
				m.writeDenial(w, verdict)
				return
			}

			metrics.ThrottleAllowed(string(scope), string(verdict.Plan))
			if verdict.Limit > 0 {
				setRateLimitHeaders(w, verdict.Limit, verdict.Remaining, verdict.ResetAt)
			}

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			if rw.statusCode == http.StatusBadRequest || rw.statusCode == http.StatusRequestEntityTooLarge {
				return
			}
			// The response is already on the wire, so the charge must land
			// even if the client has gone away.
			if err := m.throttler.Commit(context.WithoutCancel(r.Context()), id, scope, now); err != nil {
				m.logger.Error("throttle commit failed",
					"scope", scope,
					"error", err,
				)
			}
		})
	}
}

// writeDenial renders the 429 body with upgrade guidance.
func (m *ThrottleMiddleware) writeDenial(w http.ResponseWriter, v *ratelimit.Verdict) {
	body := throttleDenialBody{
		Error:       domain.ERATELIMIT,
		Message:     v.Reason,
		CurrentPlan: string(v.Plan),
		Limit:       v.Limit,
		ResetAt:     v.ResetAt.UTC().Format(time.RFC3339),
	}
	if s := v.Suggestion; s != nil {
		body.Suggestion = &upgradeSuggestion{
			Message: fmt.Sprintf("Upgrade to %s for a limit of %d",
				s.RecommendedPlan, s.NewLimit),
			RecommendedPlan: string(s.RecommendedPlan),
			NewLimit:        s.NewLimit,
			UpgradeURL:      s.UpgradeURL,
		}
	}

	setRateLimitHeaders(w, v.Limit, 0, v.ResetAt)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	//nolint:errcheck // headers are already written, nothing left to do
	json.NewEncoder(w).Encode(body)
}

// requestIdentity builds the throttle identity for a request: the
// authenticated user with their effective plan, or the anonymous client IP.
func requestIdentity(r *http.Request) ratelimit.Identity {
	if user := GetUser(r.Context()); user != nil {
		return ratelimit.Identity{
			UserID: user.ID.String(),
			IP:     ClientIP(r),
			Tier:   user.EffectivePlan(),
		}
	}
	return ratelimit.Anonymous(ClientIP(r))
}
