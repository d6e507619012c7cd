// Package ratelimit implements the plan-aware rate-limiting and
// quota-tracking engine.
//
// The engine is split into small pieces:
//   - Policy: static (tier, scope) -> (limit, window) table
//   - Counter: cache-backed sliding-window usage counter
//   - Throttler: per-request accept/deny decision with denial payload
//   - StatusReporter: read-only quota snapshot with upgrade recommendation
//   - IPGuard: identity-agnostic per-IP abuse protection
//
// All state lives in the injected cache store; the engine performs pure
// computation between cache calls and accepts (identity, scope, now) as
// plain values so it can be unit tested without an HTTP harness.
package ratelimit

import (
	"time"

	"github.com/calloway-labs/cvforge/internal/domain"
)

// Scope is a named category of rate-limited action.
type Scope string

const (
	ScopeAIResponses    Scope = "ai_responses"
	ScopeQuestionnaires Scope = "questionnaires"
	ScopeAPICalls       Scope = "api_calls"
	ScopeUploads        Scope = "uploads"
)

// Scopes returns every scope the policy knows about.
func Scopes() []Scope {
	return []Scope{ScopeAIResponses, ScopeQuestionnaires, ScopeAPICalls, ScopeUploads}
}

// Identity identifies the caller for counter partitioning: an authenticated
// principal by stable id, or an anonymous caller by IP address.
type Identity struct {
	UserID string          // stable principal id; empty for anonymous callers
	IP     string          // client IP, used as the partition key when anonymous
	Tier   domain.PlanTier // assigned plan tier; empty means none assigned
}

// Anonymous builds an identity for an unauthenticated caller.
func Anonymous(ip string) Identity {
	return Identity{IP: ip}
}

// Authenticated reports whether the identity is a signed-in principal.
func (id Identity) Authenticated() bool {
	return id.UserID != ""
}

// EffectiveTier resolves the tier used for policy lookups: anonymous
// callers and principals without an assigned tier get Free-tier limits.
func (id Identity) EffectiveTier() domain.PlanTier {
	if !id.Authenticated() || id.Tier == "" || !id.Tier.Valid() {
		return domain.PlanFree
	}
	return id.Tier
}

// partitionKey is the identity half of a counter key. User ids and IPs are
// prefixed differently so the two namespaces can never collide.
func (id Identity) partitionKey() string {
	if id.Authenticated() {
		return "user:" + id.UserID
	}
	return "ip:" + id.IP
}

// Rate is one cell of the policy table. Limit 0 means effectively
// unlimited: the scope is never throttled and never drives upgrade logic.
type Rate struct {
	Limit  int
	Window time.Duration
}

// Unlimited reports whether this rate never throttles.
func (r Rate) Unlimited() bool {
	return r.Limit <= 0
}

// Policy is the single source of truth mapping (tier, scope) to a rate.
// It is configured once at startup and read-only at request time; changing
// a limit never requires touching counter logic.
type Policy struct {
	rates map[domain.PlanTier]map[Scope]Rate
}

// defaultRate is the conservative fallback for unknown tiers or scopes.
var defaultRate = Rate{Limit: 3, Window: 24 * time.Hour}

// NewPolicy returns the production policy table.
//
// The upload limits were historically kept in a separate table that had
// drifted from the main one; they are unified here with deliberately
// chosen values.
func NewPolicy() *Policy {
	day := 24 * time.Hour
	hour := time.Hour

	return &Policy{
		rates: map[domain.PlanTier]map[Scope]Rate{
			domain.PlanFree: {
				ScopeAIResponses:    {Limit: 3, Window: day},
				ScopeQuestionnaires: {Limit: 5, Window: day},
				ScopeAPICalls:       {Limit: 100, Window: hour},
				ScopeUploads:        {Limit: 3, Window: day},
			},
			domain.PlanBasic: {
				ScopeAIResponses:    {Limit: 20, Window: day},
				ScopeQuestionnaires: {Limit: 50, Window: day},
				ScopeAPICalls:       {Limit: 300, Window: hour},
				ScopeUploads:        {Limit: 20, Window: day},
			},
			domain.PlanPro: {
				ScopeAIResponses:    {Limit: 100, Window: day},
				ScopeQuestionnaires: {Limit: 200, Window: day},
				ScopeAPICalls:       {Limit: 600, Window: hour},
				ScopeUploads:        {Limit: 100, Window: day},
			},
			domain.PlanPremium: {
				ScopeAIResponses:    {Limit: 1000, Window: day},
				ScopeQuestionnaires: {Limit: 1000, Window: day},
				ScopeAPICalls:       {Limit: 1200, Window: hour},
				ScopeUploads:        {Limit: 500, Window: day},
			},
		},
	}
}

// Rate resolves the limit for a tier and scope. Unknown tiers fall back to
// Free-tier limits; unknown scopes fall back to a conservative default.
// No error is ever raised.
func (p *Policy) Rate(tier domain.PlanTier, scope Scope) Rate {
	scoped, ok := p.rates[tier]
	if !ok {
		scoped, ok = p.rates[domain.PlanFree]
		if !ok {
			return defaultRate
		}
	}
	if rate, ok := scoped[scope]; ok {
		return rate
	}
	return defaultRate
}
