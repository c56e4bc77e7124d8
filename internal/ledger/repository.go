package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/inaiurai/jobmeter/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

func (r *Repository) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx, `
		SELECT id, balance, plan_key, is_superadmin, created_at, updated_at
		FROM accounts WHERE id = $1
	`, id).Scan(&a.ID, &a.Balance, &a.PlanKey, &a.IsSuperadmin, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) GetPolicy(ctx context.Context, featureKey string) (*models.FeaturePolicy, error) {
	var p models.FeaturePolicy
	var overrides map[string]bool
	err := r.pool.QueryRow(ctx, `
		SELECT flag_name, is_enabled, is_coming_soon, cost, required_plan_keys, user_overrides
		FROM feature_policies WHERE flag_name = $1
	`, featureKey).Scan(&p.FlagName, &p.IsEnabled, &p.IsComingSoon, &p.Cost, &p.RequiredPlanKeys, &overrides)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPolicyNotFound
	}
	if err != nil {
		return nil, err
	}
	p.UserOverrides, err = parseOverrides(overrides)
	if err != nil {
		return nil, fmt.Errorf("policy %q: %w", featureKey, err)
	}
	return &p, nil
}

func parseOverrides(raw map[string]bool) (map[uuid.UUID]bool, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[uuid.UUID]bool, len(raw))
	for k, v := range raw {
		id, err := uuid.Parse(k)
		if err != nil {
			return nil, fmt.Errorf("user override key %q: %w", k, err)
		}
		out[id] = v
	}
	return out, nil
}

// Debit atomically subtracts amount from the account balance when the balance
// covers it, and records the ledger entry in the same transaction. Returns
// ErrInsufficientBalance when the conditional update matches no row.
func (r *Repository) Debit(ctx context.Context, accountID uuid.UUID, featureKey string, amount decimal.Decimal) (*models.LedgerEntry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin debit tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var after decimal.Decimal
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET balance = balance - $1, updated_at = now()
		WHERE id = $2 AND balance >= $1
		RETURNING balance
	`, amount, accountID).Scan(&after)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInsufficientBalance
	}
	if err != nil {
		return nil, fmt.Errorf("debit account: %w", err)
	}

	entry := &models.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     accountID,
		FeatureKey:    featureKey,
		AmountDebited: amount,
		BalanceBefore: after.Add(amount),
		BalanceAfter:  after,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (id, account_id, feature_key, amount_debited, balance_before, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, entry.ID, entry.AccountID, entry.FeatureKey, entry.AmountDebited, entry.BalanceBefore, entry.BalanceAfter).Scan(&entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit debit tx: %w", err)
	}
	return entry, nil
}

func (r *Repository) ListEntries(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, feature_key, amount_debited, balance_before, balance_after, created_at
		FROM ledger_entries WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.FeatureKey, &e.AmountDebited, &e.BalanceBefore, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
