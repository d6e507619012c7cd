package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/calloway-labs/cvforge/internal/domain"
	"github.com/google/uuid"
)

// =============================================================================
// Mock UserService Implementation
// =============================================================================

// mockUserService implements the service.UserService interface for testing.
type mockUserService struct {
	GetBySessionTokenFunc func(ctx context.Context, token string) (*domain.User, error)
}

func (m *mockUserService) Register(ctx context.Context, params domain.RegisterParams) (*domain.User, error) {
	return nil, errors.New("not implemented")
}

func (m *mockUserService) Login(ctx context.Context, email, password string) (*domain.LoginResult, error) {
	return nil, errors.New("not implemented")
}

func (m *mockUserService) Logout(ctx context.Context, token string) error {
	return nil
}

func (m *mockUserService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return nil, errors.New("not implemented")
}

func (m *mockUserService) GetBySessionToken(ctx context.Context, token string) (*domain.User, error) {
	if m.GetBySessionTokenFunc != nil {
		return m.GetBySessionTokenFunc(ctx, token)
	}
	return nil, errors.New("not implemented")
}

func (m *mockUserService) DeleteExpiredSessions(ctx context.Context) error {
	return nil
}

func (m *mockUserService) UpdateStripeCustomer(ctx context.Context, userID uuid.UUID, stripeCustomerID string) error {
	return errors.New("not implemented")
}

func (m *mockUserService) UpdateSubscription(ctx context.Context, userID uuid.UUID, plan domain.PlanTier, status, subscriptionID string) error {
	return errors.New("not implemented")
}

func (m *mockUserService) GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*domain.User, error) {
	return nil, errors.New("not implemented")
}

// =============================================================================
// Test Helpers
// =============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testUser() *domain.User {
	return &domain.User{
		ID:    uuid.New(),
		Email: "user@example.com",
		Name:  "Test User",
		Plan:  domain.PlanPro,
	}
}

// =============================================================================
// WithUser Tests
// =============================================================================

func TestWithUser_NoHeader_ContinuesAnonymously(t *testing.T) {
	mw := NewAuthMiddleware(&mockUserService{
		GetBySessionTokenFunc: func(ctx context.Context, token string) (*domain.User, error) {
			t.Fatal("GetBySessionToken should not be called without a header")
			return nil, nil
		},
	}, testLogger())

	var sawUser *domain.User
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawUser = GetUser(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/questionnaires", nil)
	rec := httptest.NewRecorder()

	mw.WithUser(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if sawUser != nil {
		t.Errorf("expected no user in context, got %v", sawUser)
	}
}

func TestWithUser_ValidToken_SetsUserInContext(t *testing.T) {
	user := testUser()

	var gotToken string
	mw := NewAuthMiddleware(&mockUserService{
		GetBySessionTokenFunc: func(ctx context.Context, token string) (*domain.User, error) {
			gotToken = token
			return user, nil
		},
	}, testLogger())

	var sawUser *domain.User
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawUser = GetUser(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/questionnaires", nil)
	req.Header.Set("Authorization", "Bearer sometoken123")
	rec := httptest.NewRecorder()

	mw.WithUser(handler).ServeHTTP(rec, req)

	if gotToken != "sometoken123" {
		t.Errorf("expected token %q, got %q", "sometoken123", gotToken)
	}
	if sawUser == nil {
		t.Fatal("expected user in context, got nil")
	}
	if sawUser.ID != user.ID {
		t.Errorf("expected user %s, got %s", user.ID, sawUser.ID)
	}
}

func TestWithUser_InvalidToken_ContinuesAnonymously(t *testing.T) {
	mw := NewAuthMiddleware(&mockUserService{
		GetBySessionTokenFunc: func(ctx context.Context, token string) (*domain.User, error) {
			return nil, domain.Unauthorized("", "Invalid or expired session")
		},
	}, testLogger())

	var sawUser *domain.User
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawUser = GetUser(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/questionnaires", nil)
	req.Header.Set("Authorization", "Bearer expiredtoken")
	rec := httptest.NewRecorder()

	mw.WithUser(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if sawUser != nil {
		t.Errorf("expected no user in context, got %v", sawUser)
	}
}

func TestWithUser_NonBearerScheme_Ignored(t *testing.T) {
	mw := NewAuthMiddleware(&mockUserService{
		GetBySessionTokenFunc: func(ctx context.Context, token string) (*domain.User, error) {
			t.Fatal("GetBySessionToken should not be called for basic auth")
			return nil, nil
		},
	}, testLogger())

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/questionnaires", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()

	mw.WithUser(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

// =============================================================================
// RequireUser Tests
// =============================================================================

func TestRequireUser_WithUser_ContinuesToHandler(t *testing.T) {
	mw := NewAuthMiddleware(&mockUserService{}, testLogger())

	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/rate-limits/status", nil)
	req = req.WithContext(setUser(req.Context(), testUser()))
	rec := httptest.NewRecorder()

	mw.RequireUser(handler).ServeHTTP(rec, req)

	if !called {
		t.Error("expected handler to be called")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireUser_NoUser_Returns401JSON(t *testing.T) {
	mw := NewAuthMiddleware(&mockUserService{}, testLogger())

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	req := httptest.NewRequest("GET", "/api/rate-limits/status", nil)
	rec := httptest.NewRecorder()

	mw.RequireUser(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["error"] != domain.EUNAUTHORIZED {
		t.Errorf("expected error code %q, got %q", domain.EUNAUTHORIZED, body["error"])
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"no header", "", ""},
		{"bearer token", "Bearer abc123", "abc123"},
		{"lowercase scheme", "bearer abc123", "abc123"},
		{"basic auth", "Basic dXNlcjpwYXNz", ""},
		{"bare scheme", "Bearer", ""},
		{"padded token", "Bearer  abc123 ", "abc123"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if got := bearerToken(req); got != tc.want {
				t.Errorf("bearerToken(%q) = %q, want %q", tc.header, got, tc.want)
			}
		})
	}
}

func TestStack_AppliesInOrder(t *testing.T) {
	var order []string

	tag := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	stack := Stack(tag("outer"), tag("middle"), tag("inner"))
	handler := stack(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	want := []string{"outer", "middle", "inner", "handler"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}
