package rehost

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrObjectNotFound = errors.New("object not found")

// Object is a stored artifact.
type Object struct {
	Key         string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

// PGStore keeps artifacts in the artifacts table.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Put writes an object. Keys are unique per upload, so an existing key is
// overwritten.
func (s *PGStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO artifacts (key, content_type, data, size_bytes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE
		SET content_type = EXCLUDED.content_type, data = EXCLUDED.data, size_bytes = EXCLUDED.size_bytes`,
		key, contentType, data, len(data))
	if err != nil {
		return fmt.Errorf("put artifact: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, key string) (*Object, error) {
	var o Object
	err := s.pool.QueryRow(ctx, `
		SELECT key, content_type, data, created_at
		FROM artifacts WHERE key = $1`, key).
		Scan(&o.Key, &o.ContentType, &o.Data, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return &o, nil
}
