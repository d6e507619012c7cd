package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/calloway-labs/cvforge/internal/cache"
	"github.com/calloway-labs/cvforge/internal/domain"
)

func newTestReporter(t *testing.T) (*StatusReporter, *Counter) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	counter := NewCounter(cache.NewMemory(context.Background(), 0))
	return NewStatusReporter(NewPolicy(), counter, logger), counter
}

func TestStatusLabelBands(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{0, StatusHealthy},
		{49.999, StatusHealthy},
		{50, StatusModerate},
		{66.67, StatusModerate},
		{69.999, StatusModerate},
		{70, StatusWarning},
		{89.999, StatusWarning},
		{90, StatusCritical},
		{100, StatusCritical},
	}

	for _, tc := range tests {
		if got := statusLabel(tc.pct); got != tc.want {
			t.Errorf("statusLabel(%v) = %q, want %q", tc.pct, got, tc.want)
		}
	}
}

func TestStatusFreshIdentity(t *testing.T) {
	r, _ := newTestReporter(t)
	ctx := context.Background()
	id := Identity{UserID: "u1", Tier: domain.PlanFree}
	now := time.Now()

	st, err := r.Status(ctx, id, now)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}

	if st.Plan != domain.PlanFree {
		t.Errorf("plan = %s, want Free", st.Plan)
	}
	if len(st.Scopes) != len(Scopes()) {
		t.Fatalf("got %d scopes, want %d", len(st.Scopes), len(Scopes()))
	}

	ai := st.Scopes[ScopeAIResponses]
	if ai.Limit != 3 || ai.Used != 0 || ai.Remaining != 3 {
		t.Errorf("ai_responses = %+v, want limit 3 used 0 remaining 3", ai)
	}
	if ai.Status != StatusHealthy {
		t.Errorf("fresh status = %q, want healthy", ai.Status)
	}
	if ai.PercentageUsed != 0 {
		t.Errorf("fresh percentage = %v, want 0", ai.PercentageUsed)
	}
	if !ai.ResetAt.Equal(now.Add(24 * time.Hour)) {
		t.Errorf("fresh reset_at = %v, want now+window", ai.ResetAt)
	}
	if st.Upgrade.ShouldUpgrade {
		t.Error("fresh identity recommends upgrade")
	}
}

func TestStatusReflectsUsage(t *testing.T) {
	r, counter := newTestReporter(t)
	ctx := context.Background()
	id := Identity{UserID: "u1", Tier: domain.PlanFree}
	t0 := time.Now()

	// 2 of 3 ai_responses used: 66.67%, moderate.
	for i := 0; i < 2; i++ {
		if err := counter.Record(ctx, id, ScopeAIResponses, 24*time.Hour, t0); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	st, err := r.Status(ctx, id, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("Status: %v", err)
	}

	ai := st.Scopes[ScopeAIResponses]
	if ai.Used != 2 || ai.Remaining != 1 {
		t.Errorf("used/remaining = %d/%d, want 2/1", ai.Used, ai.Remaining)
	}
	if ai.Status != StatusModerate {
		t.Errorf("status = %q, want moderate", ai.Status)
	}
	if st.Upgrade.ShouldUpgrade {
		t.Error("66% usage should not recommend upgrade")
	}
}

func TestStatusUpgradeRecommendation(t *testing.T) {
	r, counter := newTestReporter(t)
	ctx := context.Background()
	id := Identity{UserID: "u1", Tier: domain.PlanFree}
	t0 := time.Now()

	// 4 of 5 questionnaires = 80%, exactly at the threshold.
	for i := 0; i < 4; i++ {
		if err := counter.Record(ctx, id, ScopeQuestionnaires, 24*time.Hour, t0); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	// 3 of 3 ai_responses = 100%.
	for i := 0; i < 3; i++ {
		if err := counter.Record(ctx, id, ScopeAIResponses, 24*time.Hour, t0); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	st, err := r.Status(ctx, id, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("Status: %v", err)
	}

	if !st.Upgrade.ShouldUpgrade {
		t.Fatal("should_upgrade = false, want true")
	}
	if st.Upgrade.RecommendedPlan != domain.PlanBasic {
		t.Errorf("recommended plan = %s, want Basic", st.Upgrade.RecommendedPlan)
	}

	// Every scope at or above 80% is listed, not just the first.
	wantHigh := map[Scope]bool{ScopeAIResponses: true, ScopeQuestionnaires: true}
	if len(st.Upgrade.HighUsageScopes) != len(wantHigh) {
		t.Fatalf("high usage scopes = %v, want both ai_responses and questionnaires", st.Upgrade.HighUsageScopes)
	}
	for _, s := range st.Upgrade.HighUsageScopes {
		if !wantHigh[s] {
			t.Errorf("unexpected high usage scope %s", s)
		}
	}
}

func TestStatusPremiumNeverUpgrades(t *testing.T) {
	r, counter := newTestReporter(t)
	ctx := context.Background()
	id := Identity{UserID: "p1", Tier: domain.PlanPremium}
	t0 := time.Now()

	// Saturate every scope.
	p := NewPolicy()
	for _, scope := range Scopes() {
		rate := p.Rate(domain.PlanPremium, scope)
		for i := 0; i < rate.Limit; i++ {
			if err := counter.Record(ctx, id, scope, rate.Window, t0); err != nil {
				t.Fatalf("Record: %v", err)
			}
		}
	}

	st, err := r.Status(ctx, id, t0.Add(time.Second))
	if err != nil {
		t.Fatalf("Status: %v", err)
	}

	for scope, s := range st.Scopes {
		if s.Status != StatusCritical {
			t.Errorf("%s status = %q at 100%%, want critical", scope, s.Status)
		}
	}
	if st.Upgrade.ShouldUpgrade {
		t.Error("Premium at 100%% usage recommends upgrade, want false")
	}
}

func TestStatusIsPureRead(t *testing.T) {
	r, counter := newTestReporter(t)
	ctx := context.Background()
	id := Identity{UserID: "u1", Tier: domain.PlanFree}
	now := time.Now()

	first, err := r.Status(ctx, id, now)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	second, err := r.Status(ctx, id, now)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}

	for _, scope := range Scopes() {
		if first.Scopes[scope].Used != second.Scopes[scope].Used {
			t.Errorf("%s used changed between reads: %d then %d",
				scope, first.Scopes[scope].Used, second.Scopes[scope].Used)
		}
	}

	used, _, err := counter.Count(ctx, id, ScopeAIResponses, 24*time.Hour, now)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if used != 0 {
		t.Errorf("Status recorded %d events, want 0", used)
	}
}
