package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/calloway-labs/cvforge/internal/domain"
)

// Usage-band labels for the status snapshot. Band boundaries are inclusive
// on the lower bound: exactly 90.0 is critical, exactly 70.0 is warning.
const (
	StatusHealthy  = "healthy"
	StatusModerate = "moderate"
	StatusWarning  = "warning"
	StatusCritical = "critical"
)

// upgradeThreshold is the usage percentage at which a scope counts as
// "high usage" for the upgrade recommendation.
const upgradeThreshold = 80.0

// ScopeStatus is the snapshot of one scope's usage for one identity.
type ScopeStatus struct {
	Limit          int       `json:"limit"`
	Used           int       `json:"used"`
	Remaining      int       `json:"remaining"`
	ResetAt        time.Time `json:"reset_at"`
	PercentageUsed float64   `json:"percentage_used"`
	Status         string    `json:"status"`
}

// UpgradeRecommendation summarizes whether the identity should move up a tier.
type UpgradeRecommendation struct {
	ShouldUpgrade   bool            `json:"should_upgrade"`
	RecommendedPlan domain.PlanTier `json:"recommended_plan,omitempty"`
	HighUsageScopes []Scope         `json:"high_usage_scopes,omitempty"`
	Message         string          `json:"message,omitempty"`
}

// QuotaStatus is the full read-only quota snapshot for one identity.
type QuotaStatus struct {
	Plan    domain.PlanTier       `json:"plan"`
	Scopes  map[Scope]ScopeStatus `json:"scopes"`
	Upgrade UpgradeRecommendation `json:"upgrade_recommendation"`
}

// StatusReporter produces quota snapshots. It is a pure read path: it never
// records usage, so repeated calls within the same instant return the same
// answer until a request elsewhere records or the window advances.
type StatusReporter struct {
	policy  *Policy
	counter *Counter
	logger  *slog.Logger
}

// NewStatusReporter creates a StatusReporter.
func NewStatusReporter(policy *Policy, counter *Counter, logger *slog.Logger) *StatusReporter {
	return &StatusReporter{
		policy:  policy,
		counter: counter,
		logger:  logger,
	}
}

// Status aggregates usage across all scopes for the identity at time now.
func (r *StatusReporter) Status(ctx context.Context, id Identity, now time.Time) (*QuotaStatus, error) {
	tier := id.EffectiveTier()

	out := &QuotaStatus{
		Plan:   tier,
		Scopes: make(map[Scope]ScopeStatus, len(Scopes())),
	}

	var high []Scope
	for _, scope := range Scopes() {
		rate := r.policy.Rate(tier, scope)

		used, newest, err := r.counter.Count(ctx, id, scope, rate.Window, now)
		if err != nil {
			return nil, fmt.Errorf("status %s: %w", scope, err)
		}

		st := ScopeStatus{
			Limit: rate.Limit,
			Used:  used,
		}

		if rate.Unlimited() {
			// Unlimited scopes report zero pressure and never drive
			// upgrade logic.
			st.Remaining = -1
			st.PercentageUsed = 0
			st.Status = StatusHealthy
			st.ResetAt = now
		} else {
			st.Remaining = max(0, rate.Limit-used)
			st.PercentageUsed = float64(used) / float64(rate.Limit) * 100
			st.Status = statusLabel(st.PercentageUsed)
			if newest.IsZero() {
				st.ResetAt = now.Add(rate.Window)
			} else {
				st.ResetAt = now.Add(rate.Window - now.Sub(newest))
			}
			if st.PercentageUsed >= upgradeThreshold {
				high = append(high, scope)
			}
		}

		out.Scopes[scope] = st
	}

	out.Upgrade = recommendation(tier, high)
	return out, nil
}

// statusLabel maps a usage percentage onto its band.
func statusLabel(pct float64) string {
	switch {
	case pct >= 90:
		return StatusCritical
	case pct >= 70:
		return StatusWarning
	case pct >= 50:
		return StatusModerate
	default:
		return StatusHealthy
	}
}

// recommendation builds the upgrade recommendation: upgrade when any scope
// is at or above the threshold, unless the tier is already the top one.
func recommendation(tier domain.PlanTier, high []Scope) UpgradeRecommendation {
	if len(high) == 0 || tier.IsTop() {
		return UpgradeRecommendation{ShouldUpgrade: false}
	}

	next, _ := tier.Next()
	return UpgradeRecommendation{
		ShouldUpgrade:   true,
		RecommendedPlan: next,
		HighUsageScopes: high,
		Message:         fmt.Sprintf("You are close to your %s plan limits. Upgrade to %s for higher limits.", tier, next),
	}
}
