package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inaiurai/jobmeter/internal/models"
)

type AssetRepo struct {
	pool *pgxpool.Pool
}

func NewAssetRepo(pool *pgxpool.Pool) *AssetRepo {
	return &AssetRepo{pool: pool}
}

// Register adds a completed job result to the owner's assets. A job has at
// most one asset; a repeat registration is a no-op.
func (r *AssetRepo) Register(ctx context.Context, owner uuid.UUID, jobID, url string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO assets (id, owner_account_id, job_id, url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id) DO NOTHING
	`, uuid.New(), owner, jobID, url)
	return err
}

func (r *AssetRepo) ListByOwner(ctx context.Context, owner uuid.UUID, limit int) ([]*models.Asset, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_account_id, job_id, url, created_at
		FROM assets WHERE owner_account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, owner, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Asset
	for rows.Next() {
		var a models.Asset
		if err := rows.Scan(&a.ID, &a.OwnerAccountID, &a.JobID, &a.URL, &a.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &a)
	}
	return list, rows.Err()
}
