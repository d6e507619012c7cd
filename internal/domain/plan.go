// Package domain contains core business types and interfaces.
//
// This file defines subscription plan tiers and their ordering, which drives
// both billing and the "upgrade to the next tier" recommendation logic.
package domain

// PlanTier represents the pricing tier of a subscription.
type PlanTier string

const (
	PlanFree    PlanTier = "Free"
	PlanBasic   PlanTier = "Basic"
	PlanPro     PlanTier = "Pro"
	PlanPremium PlanTier = "Premium"
)

// planOrder is the fixed upgrade order used for next-tier recommendations.
// If tiers ever become dynamically configurable this must move into
// configuration as an explicit ordered list.
var planOrder = []PlanTier{PlanFree, PlanBasic, PlanPro, PlanPremium}

// PlanTiers returns all known tiers in upgrade order.
func PlanTiers() []PlanTier {
	out := make([]PlanTier, len(planOrder))
	copy(out, planOrder)
	return out
}

// ParsePlanTier looks a tier up by name, defaulting to Free when the name
// is empty or unrecognized.
func ParsePlanTier(name string) PlanTier {
	for _, t := range planOrder {
		if string(t) == name {
			return t
		}
	}
	return PlanFree
}

// Valid reports whether the tier is one of the known tiers.
func (t PlanTier) Valid() bool {
	for _, known := range planOrder {
		if t == known {
			return true
		}
	}
	return false
}

// Next returns the next tier up in the upgrade order and true, or the
// same tier and false when already at the top.
func (t PlanTier) Next() (PlanTier, bool) {
	for i, known := range planOrder {
		if t == known {
			if i+1 < len(planOrder) {
				return planOrder[i+1], true
			}
			return t, false
		}
	}
	// Unknown tiers are treated as Free everywhere else, so step up from Free.
	return planOrder[1], true
}

// IsTop reports whether the tier is the highest tier.
func (t PlanTier) IsTop() bool {
	return t == planOrder[len(planOrder)-1]
}
