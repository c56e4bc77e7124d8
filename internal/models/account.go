package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Account struct {
	ID           uuid.UUID       `json:"id"`
	Balance      decimal.Decimal `json:"balance"`
	PlanKey      *string         `json:"plan_key,omitempty"`
	IsSuperadmin bool            `json:"is_superadmin"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// HasPlan reports whether the account is subscribed to any plan.
func (a *Account) HasPlan() bool {
	return a.PlanKey != nil && *a.PlanKey != ""
}
