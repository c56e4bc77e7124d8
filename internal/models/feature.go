package models

import (
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultFeatureCost is charged when a policy has no usable cost configured.
var DefaultFeatureCost = decimal.NewFromInt(1)

type FeaturePolicy struct {
	FlagName         string              `json:"flag_name"`
	IsEnabled        bool                `json:"is_enabled"`
	IsComingSoon     bool                `json:"is_coming_soon"`
	Cost             decimal.NullDecimal `json:"cost"`
	RequiredPlanKeys []string            `json:"required_plan_keys"`
	UserOverrides    map[uuid.UUID]bool  `json:"user_overrides"`
}

// EffectiveCost returns the configured cost, or DefaultFeatureCost when the
// cost is unset or negative. Zero is a valid cost.
func (p *FeaturePolicy) EffectiveCost() decimal.Decimal {
	if !p.Cost.Valid || p.Cost.Decimal.IsNegative() {
		return DefaultFeatureCost
	}
	return p.Cost.Decimal
}

// Override returns the per-user override for accountID, if one exists.
func (p *FeaturePolicy) Override(accountID uuid.UUID) (allowed bool, ok bool) {
	if p.UserOverrides == nil {
		return false, false
	}
	allowed, ok = p.UserOverrides[accountID]
	return allowed, ok
}

// AllowsPlan reports whether planKey satisfies the policy's plan restriction.
func (p *FeaturePolicy) AllowsPlan(planKey string) bool {
	return slices.Contains(p.RequiredPlanKeys, planKey)
}
