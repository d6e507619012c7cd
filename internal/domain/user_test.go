package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEffectivePlan(t *testing.T) {
	tests := []struct {
		name   string
		plan   PlanTier
		status SubscriptionStatus
		want   PlanTier
	}{
		{"free user", PlanFree, SubscriptionStatusInactive, PlanFree},
		{"active pro", PlanPro, SubscriptionStatusActive, PlanPro},
		{"trialing premium", PlanPremium, SubscriptionStatusTrialing, PlanPremium},
		{"past due pro falls back to free", PlanPro, SubscriptionStatusPastDue, PlanFree},
		{"canceled basic falls back to free", PlanBasic, SubscriptionStatusCanceled, PlanFree},
		{"unpaid premium falls back to free", PlanPremium, SubscriptionStatusUnpaid, PlanFree},
		{"unknown plan falls back to free", PlanTier("Enterprise"), SubscriptionStatusActive, PlanFree},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &User{Plan: tt.plan, SubscriptionStatus: tt.status}
			assert.Equal(t, tt.want, u.EffectivePlan())
		})
	}
}

func TestEffectivePlan_NilUser(t *testing.T) {
	var u *User
	assert.Equal(t, PlanFree, u.EffectivePlan())
}

func TestHasActiveSubscription(t *testing.T) {
	tests := []struct {
		name   string
		plan   PlanTier
		status SubscriptionStatus
		want   bool
	}{
		{"free user is always active", PlanFree, "", true},
		{"active paid", PlanPro, SubscriptionStatusActive, true},
		{"trialing paid", PlanBasic, SubscriptionStatusTrialing, true},
		{"past due paid", PlanPro, SubscriptionStatusPastDue, false},
		{"canceled paid", PlanPro, SubscriptionStatusCanceled, false},
		{"inactive paid", PlanPremium, SubscriptionStatusInactive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &User{Plan: tt.plan, SubscriptionStatus: tt.status}
			assert.Equal(t, tt.want, u.HasActiveSubscription())
		})
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ada", (&User{Name: "Ada", Email: "ada@example.com"}).DisplayName())
	assert.Equal(t, "ada@example.com", (&User{Email: "ada@example.com"}).DisplayName())
}

func TestSessionIsExpired(t *testing.T) {
	live := &Session{ExpiresAt: time.Now().Add(time.Hour)}
	assert.False(t, live.IsExpired())

	dead := &Session{ExpiresAt: time.Now().Add(-time.Minute)}
	assert.True(t, dead.IsExpired())
}
