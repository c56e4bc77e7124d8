//go:build integration

package ledger

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inaiurai/jobmeter/internal/migrations"
)

// testPool connects to JOBMETER_TEST_DATABASE_URL and applies migrations.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("JOBMETER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("JOBMETER_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = migrations.Up(ctx, pool, nil)
	require.NoError(t, err)
	return pool
}

func seedAccount(t *testing.T, pool *pgxpool.Pool, balance string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO accounts (id, balance) VALUES ($1, $2)`, id, decimal.RequireFromString(balance))
	require.NoError(t, err)
	return id
}

func accountState(t *testing.T, pool *pgxpool.Pool, id uuid.UUID) (decimal.Decimal, int) {
	t.Helper()
	ctx := context.Background()
	var balance decimal.Decimal
	require.NoError(t, pool.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, id).Scan(&balance))
	var entries int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM ledger_entries WHERE account_id = $1`, id).Scan(&entries))
	return balance, entries
}

func TestDebit_ConcurrentChargesNeverOverdraw(t *testing.T) {
	pool := testPool(t)
	repo := NewRepository(pool)
	id := seedAccount(t, pool, "0.10")
	cost := decimal.RequireFromString("0.10")

	const n = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		refused   int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Debit(context.Background(), id, "image_gen", cost)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInsufficientBalance):
				refused++
			default:
				t.Errorf("unexpected debit error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, refused)

	balance, entries := accountState(t, pool, id)
	assert.True(t, balance.IsZero(), "balance = %s", balance)
	assert.Equal(t, 1, entries)

	var before, after decimal.Decimal
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT balance_before, balance_after FROM ledger_entries WHERE account_id = $1`, id).Scan(&before, &after))
	assert.True(t, before.Equal(cost), "balance_before = %s", before)
	assert.True(t, after.IsZero(), "balance_after = %s", after)
}

func TestDebit_FailedLedgerInsertRollsBackBalance(t *testing.T) {
	pool := testPool(t)
	repo := NewRepository(pool)
	ctx := context.Background()
	id := seedAccount(t, pool, "1.00")

	_, err := pool.Exec(ctx, `
		CREATE OR REPLACE FUNCTION reject_ledger_insert() RETURNS trigger AS $$
		BEGIN
			IF NEW.feature_key = 'rejected_feature' THEN
				RAISE EXCEPTION 'ledger insert rejected';
			END IF;
			RETURN NEW;
		END $$ LANGUAGE plpgsql`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		CREATE OR REPLACE TRIGGER reject_ledger_insert BEFORE INSERT ON ledger_entries
		FOR EACH ROW EXECUTE FUNCTION reject_ledger_insert()`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DROP TRIGGER IF EXISTS reject_ledger_insert ON ledger_entries`)
		_, _ = pool.Exec(ctx, `DROP FUNCTION IF EXISTS reject_ledger_insert()`)
	})

	_, err = repo.Debit(ctx, id, "rejected_feature", decimal.RequireFromString("0.25"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInsufficientBalance)

	balance, entries := accountState(t, pool, id)
	assert.True(t, balance.Equal(decimal.RequireFromString("1.00")), "balance = %s", balance)
	assert.Equal(t, 0, entries)

	entry, err := repo.Debit(ctx, id, "image_gen", decimal.RequireFromString("0.25"))
	require.NoError(t, err)
	assert.True(t, entry.BalanceAfter.Equal(decimal.RequireFromString("0.75")))
}
