package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inaiurai/jobmeter/internal/models"
)

type PolicyRepo struct {
	pool *pgxpool.Pool
}

func NewPolicyRepo(pool *pgxpool.Pool) *PolicyRepo {
	return &PolicyRepo{pool: pool}
}

// UpsertAll writes every policy in one transaction, replacing existing rows
// with the same flag name.
func (r *PolicyRepo) UpsertAll(ctx context.Context, policies []*models.FeaturePolicy) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, p := range policies {
		if err := upsertPolicyTx(ctx, tx, p); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func upsertPolicyTx(ctx context.Context, tx pgx.Tx, p *models.FeaturePolicy) error {
	overrides := make(map[string]bool, len(p.UserOverrides))
	for id, allowed := range p.UserOverrides {
		overrides[id.String()] = allowed
	}
	plans := p.RequiredPlanKeys
	if plans == nil {
		plans = []string{}
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO feature_policies (flag_name, is_enabled, is_coming_soon, cost, required_plan_keys, user_overrides)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (flag_name) DO UPDATE SET
			is_enabled = EXCLUDED.is_enabled,
			is_coming_soon = EXCLUDED.is_coming_soon,
			cost = EXCLUDED.cost,
			required_plan_keys = EXCLUDED.required_plan_keys,
			user_overrides = EXCLUDED.user_overrides,
			updated_at = now()
	`, p.FlagName, p.IsEnabled, p.IsComingSoon, p.Cost, plans, overrides)
	return err
}
