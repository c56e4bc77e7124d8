// Package gate decides whether an account may invoke a metered feature and at
// what cost. Evaluate is a pure function of its inputs.
package gate

import (
	"github.com/shopspring/decimal"

	"github.com/inaiurai/jobmeter/internal/models"
)

// DenyReason is the machine-readable code returned to callers on denial.
type DenyReason string

const (
	ReasonNone             DenyReason = ""
	ReasonFeatureDisabled  DenyReason = "FeatureDisabled"
	ReasonComingSoon       DenyReason = "ComingSoon"
	ReasonPlanRequired     DenyReason = "PlanRequired"
	ReasonInsufficientPlan DenyReason = "InsufficientPlan"
)

type Decision struct {
	Allowed bool
	Reason  DenyReason
	Cost    decimal.Decimal
	// Bypassed is set for superadmin decisions, which are never charged.
	Bypassed bool
}

func deny(reason DenyReason) Decision {
	return Decision{Reason: reason, Cost: decimal.Zero}
}

// Evaluate applies the policy layers in precedence order; the first match wins.
//
//  1. superadmin: allowed for free, unless the feature is coming soon
//  2. global kill-switch
//  3. per-user override (supersedes coming-soon and plan checks)
//  4. coming soon
//  5. plan entitlement
//  6. allowed at the policy cost
func Evaluate(acc *models.Account, pol *models.FeaturePolicy) Decision {
	if acc.IsSuperadmin {
		if pol.IsComingSoon {
			return deny(ReasonComingSoon)
		}
		return Decision{Allowed: true, Cost: decimal.Zero, Bypassed: true}
	}
	if !pol.IsEnabled {
		return deny(ReasonFeatureDisabled)
	}
	if allowed, ok := pol.Override(acc.ID); ok {
		if !allowed {
			return deny(ReasonFeatureDisabled)
		}
		return Decision{Allowed: true, Cost: pol.EffectiveCost()}
	}
	if pol.IsComingSoon {
		return deny(ReasonComingSoon)
	}
	if len(pol.RequiredPlanKeys) > 0 {
		if !acc.HasPlan() {
			return deny(ReasonPlanRequired)
		}
		if !pol.AllowsPlan(*acc.PlanKey) {
			return deny(ReasonInsufficientPlan)
		}
	}
	return Decision{Allowed: true, Cost: pol.EffectiveCost()}
}
