// Package middleware contains the HTTP middleware chain for the CVForge API:
// per-IP abuse protection, request logging, metrics collection, bearer-token
// authentication, and per-scope plan throttling.
//
// Middleware functions follow the standard Go pattern of wrapping
// http.Handler and are composed with Stack. The package writes its own JSON
// error bodies so that handler can import middleware for context access
// without creating an import cycle.
package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/calloway-labs/cvforge/internal/domain"
	"github.com/calloway-labs/cvforge/internal/service"
)

// =============================================================================
// Context Keys
// =============================================================================

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// userContextKey is the key used to store the authenticated user in
	// context. Use GetUser(ctx) to retrieve the user.
	userContextKey contextKey = "user"
)

// =============================================================================
// Context Helpers
// =============================================================================

// GetUser retrieves the authenticated user from the request context.
//
// Returns nil if no user is authenticated (the request passed through
// WithUser without a valid bearer token).
func GetUser(ctx context.Context) *domain.User {
	user, ok := ctx.Value(userContextKey).(*domain.User)
	if !ok {
		return nil
	}
	return user
}

// setUser stores a user in the request context.
func setUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware resolves bearer session tokens into users.
//
// Create one instance and use its methods as middleware.
type AuthMiddleware struct {
	userService service.UserService
	logger      *slog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
func NewAuthMiddleware(userService service.UserService, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		userService: userService,
		logger:      logger,
	}
}

// WithUser is middleware that attempts to load the user from the
// Authorization header ("Bearer <token>").
//
// An absent, invalid, or expired token never rejects the request here: the
// request proceeds anonymously and RequireUser rejects it on routes where
// authentication is mandatory. Anonymous requests still pass through plan
// throttling at Free-tier limits, keyed by client IP.
func (m *AuthMiddleware) WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, err := m.userService.GetBySessionToken(r.Context(), token)
		if err != nil {
			m.logger.Debug("session token rejected",
				"path", r.URL.Path,
				"code", domain.ErrorCode(err),
			)
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(setUser(r.Context(), user)))
	})
}

// RequireUser is middleware that requires an authenticated user.
//
// Must run after WithUser in the chain. Unauthenticated requests receive
// a 401 JSON error.
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUser(r.Context()) == nil {
			writeJSONError(w, http.StatusUnauthorized, domain.EUNAUTHORIZED,
				"Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the session token from the Authorization header.
// Returns "" when the header is absent or not a bearer scheme.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

// =============================================================================
// Shared Response Helpers
// =============================================================================

// writeJSONError writes the standard error body used across the middleware
// chain. The shape matches handler error responses.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	//nolint:errcheck // headers are already written, nothing left to do
	json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
// Example:
//
//	stack := Stack(ipGuardMw.Handler, loggingMw.Handler, authMw.WithUser, authMw.RequireUser)
//	mux.Handle("GET /api/questionnaires", stack(listHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// =============================================================================
// Compile-time checks
// =============================================================================

var (
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).WithUser
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireUser
)
