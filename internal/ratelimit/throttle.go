package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/calloway-labs/cvforge/internal/domain"
)

// DefaultUpgradeURL is where denied callers are pointed for plan upgrades.
const DefaultUpgradeURL = "/core/plans/"

// Verdict is the ephemeral result of one throttle evaluation. It is never
// persisted and recomputed per request. Denial is a normal outcome, not an
// error: the engine resolves every decision into a Verdict and only returns
// an error when the cache itself fails.
type Verdict struct {
	Allowed   bool
	Scope     Scope
	Plan      domain.PlanTier
	Limit     int
	Used      int
	Remaining int
	ResetAt   time.Time

	// Set only on denial.
	Reason     string
	Suggestion *UpgradeSuggestion
}

// UpgradeSuggestion points a denied caller one tier up the plan order.
// Absent when the caller is already on the top tier.
type UpgradeSuggestion struct {
	RecommendedPlan domain.PlanTier
	NewLimit        int
	UpgradeURL      string
}

// Throttler combines the policy table and the usage counter into a
// per-request accept/reject decision.
type Throttler struct {
	policy     *Policy
	counter    *Counter
	logger     *slog.Logger
	upgradeURL string
}

// NewThrottler creates a Throttler. upgradeURL may be empty to use the default.
func NewThrottler(policy *Policy, counter *Counter, logger *slog.Logger, upgradeURL string) *Throttler {
	if upgradeURL == "" {
		upgradeURL = DefaultUpgradeURL
	}
	return &Throttler{
		policy:     policy,
		counter:    counter,
		logger:     logger,
		upgradeURL: upgradeURL,
	}
}

// Check evaluates one request and, when it is allowed, records it.
//
// The count-then-record sequence is not atomic: two simultaneous requests
// can both observe used = limit-1 and both pass, briefly exceeding the
// nominal limit by the caller's own concurrency. That imprecision is
// accepted.
func (t *Throttler) Check(ctx context.Context, id Identity, scope Scope, now time.Time) (*Verdict, error) {
	v, err := t.Peek(ctx, id, scope, now)
	if err != nil || !v.Allowed {
		return v, err
	}
	if err := t.Commit(ctx, id, scope, now); err != nil {
		return nil, err
	}
	return v, nil
}

// Peek evaluates one request without charging it. An allowed verdict is
// exactly what Check would return, so Used and Remaining already include
// the pending charge. Callers that accept the request follow up with
// Commit once the handler has taken it; requests rejected as malformed
// are never committed and never spend quota.
func (t *Throttler) Peek(ctx context.Context, id Identity, scope Scope, now time.Time) (*Verdict, error) {
	tier := id.EffectiveTier()
	rate := t.policy.Rate(tier, scope)

	if rate.Unlimited() {
		return &Verdict{
			Allowed:   true,
			Scope:     scope,
			Plan:      tier,
			Limit:     0,
			Remaining: -1,
			ResetAt:   now,
		}, nil
	}

	used, newest, err := t.counter.Count(ctx, id, scope, rate.Window, now)
	if err != nil {
		return nil, fmt.Errorf("throttle %s: %w", scope, err)
	}

	if used >= rate.Limit {
		v := &Verdict{
			Allowed: false,
			Scope:   scope,
			Plan:    tier,
			Limit:   rate.Limit,
			Used:    used,
			ResetAt: denialResetAt(now, rate.Window, newest),
			Reason:  denialReason(scope),
		}
		if next, ok := tier.Next(); ok {
			v.Suggestion = &UpgradeSuggestion{
				RecommendedPlan: next,
				NewLimit:        t.policy.Rate(next, scope).Limit,
				UpgradeURL:      t.upgradeURL,
			}
		}

		t.logger.Warn("rate limit exceeded",
			"scope", scope,
			"plan", tier,
			"used", used,
			"limit", rate.Limit,
			"reset_at", v.ResetAt,
		)
		return v, nil
	}

	return &Verdict{
		Allowed:   true,
		Scope:     scope,
		Plan:      tier,
		Limit:     rate.Limit,
		Used:      used + 1,
		Remaining: rate.Limit - used - 1,
		ResetAt:   now.Add(rate.Window),
	}, nil
}

// Commit charges one accepted request against the scope's window. No-op
// for unlimited rates.
func (t *Throttler) Commit(ctx context.Context, id Identity, scope Scope, now time.Time) error {
	rate := t.policy.Rate(id.EffectiveTier(), scope)
	if rate.Unlimited() {
		return nil
	}
	if err := t.counter.Record(ctx, id, scope, rate.Window, now); err != nil {
		return fmt.Errorf("throttle %s: %w", scope, err)
	}
	return nil
}

// denialResetAt computes when the caller may retry: the most recent event
// plus the window, or now when the window is somehow empty.
func denialResetAt(now time.Time, window time.Duration, newest time.Time) time.Time {
	if newest.IsZero() {
		return now
	}
	return now.Add(window - now.Sub(newest))
}

// denialReason renders a scope as a human-readable denial message,
// e.g. "Ai Responses limit exceeded".
func denialReason(scope Scope) string {
	words := strings.Split(string(scope), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ") + " limit exceeded"
}
