package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/calloway-labs/cvforge/internal/cache"
	"github.com/calloway-labs/cvforge/internal/ratelimit"
	"github.com/google/uuid"
)

func newTestAdminHandler(t *testing.T) (*AdminHandler, *ratelimit.Counter, *ratelimit.IPGuard) {
	t.Helper()
	store := cache.NewMemory(context.Background(), 0)
	counter := ratelimit.NewCounter(store)
	guard := ratelimit.NewIPGuard(store, ratelimit.DefaultIPGuardConfig(), testLogger())
	return NewAdminHandler(counter, guard, testLogger()), counter, guard
}

func adminMux(h *AdminHandler) *http.ServeMux {
	mux := http.NewServeMux()
	noAuth := func(next http.Handler) http.Handler { return next }
	h.RegisterRoutes(mux, noAuth)
	return mux
}

func TestResetCounters_SingleScope(t *testing.T) {
	h, counter, _ := newTestAdminHandler(t)
	mux := adminMux(h)

	id := ratelimit.Identity{UserID: uuid.NewString()}
	now := time.Now()
	ctx := context.Background()
	if err := counter.Record(ctx, id, ratelimit.ScopeAIResponses, 24*time.Hour, now); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := counter.Record(ctx, id, ratelimit.ScopeUploads, 24*time.Hour, now); err != nil {
		t.Fatalf("record: %v", err)
	}

	body, _ := json.Marshal(map[string]string{"user_id": id.UserID, "scope": "ai_responses"})
	req := httptest.NewRequest("POST", "/admin/rate-limits/reset", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		ClearedScopes []string `json:"cleared_scopes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(resp.ClearedScopes) != 1 || resp.ClearedScopes[0] != "ai_responses" {
		t.Errorf("expected cleared_scopes [ai_responses], got %v", resp.ClearedScopes)
	}

	count, _, err := counter.Count(ctx, id, ratelimit.ScopeAIResponses, 24*time.Hour, now)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("expected ai_responses counter cleared, got %d", count)
	}

	count, _, err = counter.Count(ctx, id, ratelimit.ScopeUploads, 24*time.Hour, now)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected uploads counter untouched, got %d", count)
	}
}

func TestResetCounters_AllScopes(t *testing.T) {
	h, counter, _ := newTestAdminHandler(t)
	mux := adminMux(h)

	id := ratelimit.Anonymous("203.0.113.9")
	now := time.Now()
	ctx := context.Background()
	for _, scope := range ratelimit.Scopes() {
		if err := counter.Record(ctx, id, scope, time.Hour, now); err != nil {
			t.Fatalf("record %s: %v", scope, err)
		}
	}

	body, _ := json.Marshal(map[string]string{"ip": "203.0.113.9"})
	req := httptest.NewRequest("POST", "/admin/rate-limits/reset", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		ClearedScopes []string `json:"cleared_scopes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(resp.ClearedScopes) != len(ratelimit.Scopes()) {
		t.Errorf("expected all %d scopes cleared, got %v", len(ratelimit.Scopes()), resp.ClearedScopes)
	}
}

func TestResetCounters_RejectsAmbiguousIdentity(t *testing.T) {
	h, _, _ := newTestAdminHandler(t)
	mux := adminMux(h)

	cases := []struct {
		name string
		body string
	}{
		{"neither", `{}`},
		{"both", `{"user_id": "` + uuid.NewString() + `", "ip": "203.0.113.9"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/admin/rate-limits/reset", bytes.NewReader([]byte(tc.body)))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestResetCounters_UnknownScope(t *testing.T) {
	h, _, _ := newTestAdminHandler(t)
	mux := adminMux(h)

	body := []byte(`{"ip": "203.0.113.9", "scope": "teleports"}`)
	req := httptest.NewRequest("POST", "/admin/rate-limits/reset", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestBlockAndUnblockIP(t *testing.T) {
	h, _, guard := newTestAdminHandler(t)
	mux := adminMux(h)
	ctx := context.Background()

	body := []byte(`{"ip": "198.51.100.7", "duration_minutes": 30}`)
	req := httptest.NewRequest("POST", "/admin/ip-blocks", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	blocked, err := guard.IsBlocked(ctx, "198.51.100.7")
	if err != nil {
		t.Fatalf("is blocked: %v", err)
	}
	if !blocked {
		t.Fatal("expected IP to be blocked")
	}

	req = httptest.NewRequest("DELETE", "/admin/ip-blocks/198.51.100.7", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	blocked, err = guard.IsBlocked(ctx, "198.51.100.7")
	if err != nil {
		t.Fatalf("is blocked: %v", err)
	}
	if blocked {
		t.Fatal("expected IP to be unblocked")
	}
}

func TestBlockIP_RequiresIP(t *testing.T) {
	h, _, _ := newTestAdminHandler(t)
	mux := adminMux(h)

	req := httptest.NewRequest("POST", "/admin/ip-blocks", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUnblockIP_NotBlocked(t *testing.T) {
	h, _, _ := newTestAdminHandler(t)
	mux := adminMux(h)

	req := httptest.NewRequest("DELETE", "/admin/ip-blocks/198.51.100.200", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
