package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/calloway-labs/cvforge/internal/cache"
	"github.com/calloway-labs/cvforge/internal/domain"
)

func newTestCounter(t *testing.T) *Counter {
	t.Helper()
	return NewCounter(cache.NewMemory(context.Background(), 0))
}

func TestCounterEmptyWindow(t *testing.T) {
	c := newTestCounter(t)
	id := Identity{UserID: "u1", Tier: domain.PlanFree}
	now := time.Now()

	used, newest, err := c.Count(context.Background(), id, ScopeAIResponses, 24*time.Hour, now)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if used != 0 {
		t.Errorf("empty window count = %d, want 0", used)
	}
	if !newest.IsZero() {
		t.Errorf("empty window newest = %v, want zero", newest)
	}
}

func TestCounterRecordAndCount(t *testing.T) {
	c := newTestCounter(t)
	id := Identity{UserID: "u1", Tier: domain.PlanFree}
	ctx := context.Background()
	t0 := time.Now()

	for i := 0; i < 3; i++ {
		at := t0.Add(time.Duration(i) * time.Second)
		if err := c.Record(ctx, id, ScopeAIResponses, 24*time.Hour, at); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	used, newest, err := c.Count(ctx, id, ScopeAIResponses, 24*time.Hour, t0.Add(3*time.Second))
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if used != 3 {
		t.Errorf("count = %d, want 3", used)
	}
	if !newest.Equal(t0.Add(2 * time.Second)) {
		t.Errorf("newest = %v, want %v", newest, t0.Add(2*time.Second))
	}
}

func TestCounterPrunesOnRead(t *testing.T) {
	c := newTestCounter(t)
	id := Identity{UserID: "u1"}
	ctx := context.Background()
	window := time.Hour
	t0 := time.Now()

	if err := c.Record(ctx, id, ScopeAPICalls, window, t0); err != nil {
		t.Fatalf("Record: %v", err)
	}

	// An event at exactly now-window is stale (inclusive cutoff).
	used, _, err := c.Count(ctx, id, ScopeAPICalls, window, t0.Add(window))
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if used != 0 {
		t.Errorf("count at window boundary = %d, want 0", used)
	}

	// One second past the window it is certainly gone.
	used, _, err = c.Count(ctx, id, ScopeAPICalls, window, t0.Add(window+time.Second))
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if used != 0 {
		t.Errorf("count past window = %d, want 0", used)
	}
}

func TestCounterMixedWindow(t *testing.T) {
	c := newTestCounter(t)
	id := Identity{UserID: "u1"}
	ctx := context.Background()
	window := time.Hour
	t0 := time.Now()

	// Two stale events and two fresh ones from the perspective of t0+90m.
	for _, offset := range []time.Duration{0, 10 * time.Minute, 40 * time.Minute, 80 * time.Minute} {
		if err := c.Record(ctx, id, ScopeAPICalls, window, t0.Add(offset)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	used, _, err := c.Count(ctx, id, ScopeAPICalls, window, t0.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if used != 2 {
		t.Errorf("count = %d, want 2", used)
	}
}

func TestCounterIdentityIsolation(t *testing.T) {
	c := newTestCounter(t)
	ctx := context.Background()
	now := time.Now()
	a := Identity{UserID: "a"}
	b := Identity{UserID: "b"}

	for i := 0; i < 5; i++ {
		if err := c.Record(ctx, a, ScopeAIResponses, 24*time.Hour, now); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	used, _, err := c.Count(ctx, b, ScopeAIResponses, 24*time.Hour, now)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if used != 0 {
		t.Errorf("identity B count = %d after recording for A, want 0", used)
	}
}

func TestCounterScopeIsolation(t *testing.T) {
	c := newTestCounter(t)
	ctx := context.Background()
	now := time.Now()
	id := Identity{UserID: "u1"}

	if err := c.Record(ctx, id, ScopeAIResponses, 24*time.Hour, now); err != nil {
		t.Fatalf("Record: %v", err)
	}

	used, _, err := c.Count(ctx, id, ScopeQuestionnaires, 24*time.Hour, now)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if used != 0 {
		t.Errorf("questionnaires count = %d after recording ai_responses, want 0", used)
	}
}

func TestCounterUserAndIPNamespacesDistinct(t *testing.T) {
	// A user whose id happens to look like an IP must not share a
	// partition with the anonymous caller at that IP.
	c := newTestCounter(t)
	ctx := context.Background()
	now := time.Now()

	user := Identity{UserID: "203.0.113.5"}
	anon := Anonymous("203.0.113.5")

	if err := c.Record(ctx, user, ScopeAPICalls, time.Hour, now); err != nil {
		t.Fatalf("Record: %v", err)
	}

	used, _, err := c.Count(ctx, anon, ScopeAPICalls, time.Hour, now)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if used != 0 {
		t.Errorf("anonymous count = %d after recording for user, want 0", used)
	}
}

func TestCounterReset(t *testing.T) {
	c := newTestCounter(t)
	ctx := context.Background()
	now := time.Now()
	id := Identity{UserID: "u1"}

	if err := c.Record(ctx, id, ScopeAIResponses, 24*time.Hour, now); err != nil {
		t.Fatalf("Record: %v", err)
	}

	ok, err := c.Reset(ctx, id, ScopeAIResponses)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !ok {
		t.Error("Reset = false, want true for existing counter")
	}

	used, _, err := c.Count(ctx, id, ScopeAIResponses, 24*time.Hour, now)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if used != 0 {
		t.Errorf("count after reset = %d, want 0", used)
	}

	ok, err = c.Reset(ctx, id, ScopeAIResponses)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if ok {
		t.Error("Reset = true for missing counter, want false")
	}
}
