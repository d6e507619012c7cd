// Package handler contains the HTTP handlers for the CVForge API.
//
// Handlers decode JSON, call services, and encode JSON. Authentication,
// throttling, and logging happen in the middleware chain; handlers only
// read the resolved user from the request context.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/calloway-labs/cvforge/internal/domain"
	"github.com/calloway-labs/cvforge/internal/middleware"
	"github.com/calloway-labs/cvforge/internal/service"
)

// AuthHandler handles registration, login, and logout.
type AuthHandler struct {
	userService service.UserService
	logger      *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(userService service.UserService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		logger:      logger,
	}
}

// RegisterRoutes registers auth routes on the provided mux. Register and
// login are public; logout needs the bearer token it invalidates.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, public, authed func(http.Handler) http.Handler) {
	mux.Handle("POST /api/auth/register", public(http.HandlerFunc(h.Register)))
	mux.Handle("POST /api/auth/login", public(http.HandlerFunc(h.Login)))
	mux.Handle("POST /api/auth/logout", authed(http.HandlerFunc(h.Logout)))
}

// userResponse is the public view of a user. The password hash never
// leaves the service layer.
type userResponse struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	Name               string `json:"name"`
	Plan               string `json:"plan"`
	SubscriptionStatus string `json:"subscription_status,omitempty"`
	CreatedAt          string `json:"created_at"`
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:                 u.ID.String(),
		Email:              u.Email,
		Name:               u.Name,
		Plan:               string(u.Plan),
		SubscriptionStatus: string(u.SubscriptionStatus),
		CreatedAt:          u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Register creates a new account on the Free plan.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	user, err := h.userService.Register(r.Context(), domain.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("user registered", "user_id", user.ID)

	respondJSON(w, h.logger, http.StatusCreated, map[string]interface{}{
		"user": toUserResponse(user),
	})
}

// Login authenticates a user and returns a fresh session token. The raw
// token is only ever returned here; the server stores a hash.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("user logged in", "user_id", result.User.ID)

	respondJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"token": result.Token,
		"user":  toUserResponse(result.User),
	})
}

// Logout invalidates the presented session token. Idempotent: an already
// dead token still logs out cleanly.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(token) > len(prefix) {
		token = token[len(prefix):]
	}

	if err := h.userService.Logout(r.Context(), token); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if user := middleware.GetUser(r.Context()); user != nil {
		h.logger.Info("user logged out", "user_id", user.ID)
	}

	w.WriteHeader(http.StatusNoContent)
}
