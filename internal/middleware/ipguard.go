package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/calloway-labs/cvforge/internal/domain"
	"github.com/calloway-labs/cvforge/internal/metrics"
	"github.com/calloway-labs/cvforge/internal/ratelimit"
)

// IPGuardMiddleware runs the per-IP abuse pre-filter. It sits at the outer
// edge of the chain, before logging, auth, and plan throttling: a blocked
// or flooding IP is rejected before the request costs anything else.
type IPGuardMiddleware struct {
	guard  *ratelimit.IPGuard
	logger *slog.Logger
}

// NewIPGuardMiddleware creates a new IPGuardMiddleware instance.
func NewIPGuardMiddleware(guard *ratelimit.IPGuard, logger *slog.Logger) *IPGuardMiddleware {
	return &IPGuardMiddleware{
		guard:  guard,
		logger: logger,
	}
}

// Handler evaluates the client IP against the guard.
//
// Blocked IPs get 403 with an access_denied code, distinct from the 429 a
// plain window overflow gets, so clients can tell a temporary flood from an
// explicit block. When the backing store is unreachable the request is let
// through: losing abuse protection briefly beats taking the API down with it.
func (m *IPGuardMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)

		verdict, err := m.guard.Check(r.Context(), ip, time.Now())
		if err != nil {
			m.logger.Error("IP guard check failed, allowing request",
				"ip", ip,
				"error", err,
			)
			next.ServeHTTP(w, r)
			return
		}

		if verdict.Blocked {
			metrics.IPRejected("blocked")
			writeJSONError(w, http.StatusForbidden, domain.EACCESSDENIED,
				"Access denied. Your IP has been temporarily blocked due to suspicious activity.")
			return
		}

		if !verdict.Allowed {
			metrics.IPRejected("rate_limited")
			setRateLimitHeaders(w, verdict.Limit, verdict.Remaining, verdict.ResetAt)
			writeJSONError(w, http.StatusTooManyRequests, domain.ERATELIMIT,
				"Too many requests. Please try again later.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// setRateLimitHeaders writes the standard rate-limit response headers.
// Retry-After is rounded up so clients never retry a second early.
func setRateLimitHeaders(w http.ResponseWriter, limit, remaining int, resetAt time.Time) {
	retryAfter := int(time.Until(resetAt).Seconds()) + 1
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}

// ClientIP extracts the client IP address from the request, trusting proxy
// headers in their conventional precedence.
func ClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs: client, proxy1, proxy2.
	// The first one is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			clientIP := strings.TrimSpace(ips[0])
			if clientIP != "" {
				return clientIP
			}
		}
	}

	// X-Real-IP (nginx)
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port
		return r.RemoteAddr
	}
	return ip
}
