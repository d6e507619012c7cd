package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/calloway-labs/cvforge/internal/cache"
	"github.com/calloway-labs/cvforge/internal/domain"
	"github.com/calloway-labs/cvforge/internal/ratelimit"
	"github.com/google/uuid"
)

func newTestThrottleMiddleware(t *testing.T) *ThrottleMiddleware {
	t.Helper()
	store := cache.NewMemory(context.Background(), 0)
	throttler := ratelimit.NewThrottler(
		ratelimit.NewPolicy(),
		ratelimit.NewCounter(store),
		testLogger(),
		"",
	)
	return NewThrottleMiddleware(throttler, testLogger())
}

func proUser() *domain.User {
	return &domain.User{
		ID:                 uuid.New(),
		Email:              "pro@example.com",
		Plan:               domain.PlanPro,
		SubscriptionStatus: domain.SubscriptionStatusActive,
	}
}

func TestThrottleMiddleware_MalformedInputDoesNotSpendQuota(t *testing.T) {
	mw := newTestThrottleMiddleware(t)

	// A handler that rejects empty bodies the way decodeJSON does, and
	// accepts everything else.
	handler := mw.Limit(ratelimit.ScopeAIResponses)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Length") == "0" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	// Free tier allows 3 AI responses per day. Far more malformed
	// requests than that must leave the budget untouched.
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest("POST", "/api/questionnaires/1/improve", nil)
		req.RemoteAddr = "203.0.113.1:1000"
		req.Header.Set("Content-Length", "0")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("malformed request %d: expected 400, got %d", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest("POST", "/api/questionnaires/1/improve", strings.NewReader(`{}`))
	req.RemoteAddr = "203.0.113.1:1000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("valid request after malformed ones: expected 201, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "2" {
		t.Errorf("expected full quota minus this request (2 remaining), got %q", got)
	}
}

func TestThrottleMiddleware_OversizedInputDoesNotSpendQuota(t *testing.T) {
	mw := newTestThrottleMiddleware(t)

	handler := mw.Limit(ratelimit.ScopeUploads)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	}))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("POST", "/api/uploads/resume", nil)
		req.RemoteAddr = "203.0.113.1:1000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("request %d: expected 413, got %d", i+1, rec.Code)
		}
	}

	// Free uploads limit is 3; all five 413s passed through, so nothing
	// was charged.
	req := httptest.NewRequest("POST", "/api/uploads/resume", nil)
	req.RemoteAddr = "203.0.113.1:1000"
	rec := httptest.NewRecorder()

	okUpload := mw.Limit(ratelimit.ScopeUploads)(okHandler())
	okUpload.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "2" {
		t.Errorf("expected 2 remaining, got %q", got)
	}
}

func TestThrottleMiddleware_AllowsAndSetsHeaders(t *testing.T) {
	mw := newTestThrottleMiddleware(t)

	handler := mw.Limit(ratelimit.ScopeAIResponses)(okHandler())

	req := httptest.NewRequest("POST", "/api/questionnaires/1/improve", nil)
	req.RemoteAddr = "203.0.113.1:1000"
	req = req.WithContext(setUser(req.Context(), proUser()))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	// Pro tier allows 100 AI responses per day.
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "100" {
		t.Errorf("expected X-RateLimit-Limit 100, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "99" {
		t.Errorf("expected X-RateLimit-Remaining 99, got %q", got)
	}
}

func TestThrottleMiddleware_AnonymousGetsFreeLimits(t *testing.T) {
	mw := newTestThrottleMiddleware(t)

	handler := mw.Limit(ratelimit.ScopeAIResponses)(okHandler())

	// Free tier allows 3 AI responses per day.
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/api/questionnaires/1/improve", nil)
		req.RemoteAddr = "203.0.113.1:1000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest("POST", "/api/questionnaires/1/improve", nil)
	req.RemoteAddr = "203.0.113.1:1000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestThrottleMiddleware_DenialBody(t *testing.T) {
	mw := newTestThrottleMiddleware(t)

	handler := mw.Limit(ratelimit.ScopeAIResponses)(okHandler())

	for i := 0; i < 4; i++ {
		req := httptest.NewRequest("POST", "/api/questionnaires/1/improve", nil)
		req.RemoteAddr = "203.0.113.1:1000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if i < 3 {
			continue
		}

		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", rec.Code)
		}
		if rec.Header().Get("Retry-After") == "" {
			t.Error("expected Retry-After header")
		}

		var body struct {
			Error       string `json:"error"`
			Message     string `json:"message"`
			CurrentPlan string `json:"current_plan"`
			Limit       int    `json:"limit"`
			ResetAt     string `json:"reset_at"`
			Suggestion  *struct {
				Message         string `json:"message"`
				RecommendedPlan string `json:"recommended_plan"`
				NewLimit        int    `json:"new_limit"`
				UpgradeURL      string `json:"upgrade_url"`
			} `json:"suggestion"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}

		if body.Error != domain.ERATELIMIT {
			t.Errorf("expected error %q, got %q", domain.ERATELIMIT, body.Error)
		}
		if body.CurrentPlan != string(domain.PlanFree) {
			t.Errorf("expected current_plan Free, got %q", body.CurrentPlan)
		}
		if body.Limit != 3 {
			t.Errorf("expected limit 3, got %d", body.Limit)
		}
		if body.ResetAt == "" {
			t.Error("expected reset_at to be set")
		}
		if body.Suggestion == nil {
			t.Fatal("expected upgrade suggestion for Free tier")
		}
		if body.Suggestion.RecommendedPlan != string(domain.PlanBasic) {
			t.Errorf("expected recommended plan Basic, got %q", body.Suggestion.RecommendedPlan)
		}
		if body.Suggestion.NewLimit != 20 {
			t.Errorf("expected new limit 20, got %d", body.Suggestion.NewLimit)
		}
		if body.Suggestion.UpgradeURL == "" {
			t.Error("expected upgrade URL to be set")
		}
	}
}

func TestThrottleMiddleware_PremiumUserGetsPremiumLimits(t *testing.T) {
	mw := newTestThrottleMiddleware(t)

	user := &domain.User{
		ID:                 uuid.New(),
		Email:              "premium@example.com",
		Plan:               domain.PlanPremium,
		SubscriptionStatus: domain.SubscriptionStatusActive,
	}

	handler := mw.Limit(ratelimit.ScopeAIResponses)(okHandler())

	req := httptest.NewRequest("POST", "/api/questionnaires/1/improve", nil)
	req.RemoteAddr = "203.0.113.1:1000"
	req = req.WithContext(setUser(req.Context(), user))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "1000" {
		t.Errorf("expected X-RateLimit-Limit 1000, got %q", got)
	}
}

func TestThrottleMiddleware_ScopesAreIndependent(t *testing.T) {
	mw := newTestThrottleMiddleware(t)

	aiHandler := mw.Limit(ratelimit.ScopeAIResponses)(okHandler())
	qHandler := mw.Limit(ratelimit.ScopeQuestionnaires)(okHandler())

	// Exhaust the Free AI quota.
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/api/questionnaires/1/improve", nil)
		req.RemoteAddr = "203.0.113.1:1000"
		rec := httptest.NewRecorder()
		aiHandler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("ai request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest("POST", "/api/questionnaires/1/improve", nil)
	req.RemoteAddr = "203.0.113.1:1000"
	rec := httptest.NewRecorder()
	aiHandler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected ai scope exhausted, got %d", rec.Code)
	}

	// The questionnaire scope for the same caller is untouched.
	req = httptest.NewRequest("POST", "/api/questionnaires", nil)
	req.RemoteAddr = "203.0.113.1:1000"
	rec = httptest.NewRecorder()
	qHandler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected questionnaire scope unaffected, got %d", rec.Code)
	}
}

func TestRequestIdentity(t *testing.T) {
	t.Run("anonymous uses IP", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "203.0.113.1:1000"

		id := requestIdentity(req)
		if id.Authenticated() {
			t.Error("expected anonymous identity")
		}
		if id.IP != "203.0.113.1" {
			t.Errorf("expected IP 203.0.113.1, got %q", id.IP)
		}
		if id.EffectiveTier() != domain.PlanFree {
			t.Errorf("expected Free tier, got %q", id.EffectiveTier())
		}
	})

	t.Run("authenticated uses user and plan", func(t *testing.T) {
		user := proUser()
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "203.0.113.1:1000"
		req = req.WithContext(setUser(req.Context(), user))

		id := requestIdentity(req)
		if !id.Authenticated() {
			t.Fatal("expected authenticated identity")
		}
		if id.UserID != user.ID.String() {
			t.Errorf("expected user id %s, got %q", user.ID, id.UserID)
		}
		if id.EffectiveTier() != domain.PlanPro {
			t.Errorf("expected Pro tier, got %q", id.EffectiveTier())
		}
	})

	t.Run("lapsed subscription falls back to Free", func(t *testing.T) {
		user := proUser()
		user.SubscriptionStatus = domain.SubscriptionStatusCanceled
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "203.0.113.1:1000"
		req = req.WithContext(setUser(req.Context(), user))

		id := requestIdentity(req)
		if id.EffectiveTier() != domain.PlanFree {
			t.Errorf("expected Free tier for lapsed subscription, got %q", id.EffectiveTier())
		}
	})
}
