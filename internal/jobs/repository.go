package jobs

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inaiurai/jobmeter/internal/models"
)

// Repository reads jobs through reader, which may be a replica that lags
// behind pool. Writes always go to pool.
type Repository struct {
	pool   *pgxpool.Pool
	reader *pgxpool.Pool
}

// NewRepository returns a Repository. A nil reader reads from the primary.
func NewRepository(pool, reader *pgxpool.Pool) *Repository {
	if reader == nil {
		reader = pool
	}
	return &Repository{pool: pool, reader: reader}
}

var (
	_ DispatchStore  = (*Repository)(nil)
	_ ReconcileStore = (*Repository)(nil)
)

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// CreateTx inserts a pending job. Returns ErrJobExists if job_id is taken.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, j *models.Job) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO jobs (job_id, owner_account_id, status, input_parameters)
		VALUES ($1, $2, 'pending', $3)
		ON CONFLICT (job_id) DO NOTHING
		RETURNING status, created_at, updated_at
	`, j.JobID, j.OwnerAccountID, j.InputParameters).Scan(&j.Status, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrJobExists
	}
	return err
}

func (r *Repository) GetByJobID(ctx context.Context, jobID string) (*models.Job, error) {
	var j models.Job
	err := r.reader.QueryRow(ctx, `
		SELECT job_id, owner_account_id, status, input_parameters, result_url, created_at, updated_at, completed_at
		FROM jobs WHERE job_id = $1
	`, jobID).Scan(&j.JobID, &j.OwnerAccountID, &j.Status, &j.InputParameters, &j.ResultURL, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// IsPending reports whether the job is still pending on the primary.
func (r *Repository) IsPending(ctx context.Context, jobID string) (bool, error) {
	var pending bool
	err := r.pool.QueryRow(ctx, `SELECT status = 'pending' FROM jobs WHERE job_id = $1`, jobID).Scan(&pending)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrJobNotFound
	}
	if err != nil {
		return false, err
	}
	return pending, nil
}

// Finalize moves a pending job to a terminal status. It reports false when
// the job was already terminal, so concurrent finalizers converge on the
// first writer.
func (r *Repository) Finalize(ctx context.Context, jobID, status string, resultURL *string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, result_url = $3, completed_at = now(), updated_at = now()
		WHERE job_id = $1 AND status = 'pending'
	`, jobID, status, resultURL)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
