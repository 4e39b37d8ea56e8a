package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"creative-ai-studio/internal/domain"
	"creative-ai-studio/internal/domain/model"
	"creative-ai-studio/internal/domain/ports/repository"
)

var _ repository.CacheRepository = (*cacheRepo)(nil)

type cacheRepo struct {
	pool *pgxpool.Pool
}

func NewCacheRepo(pool *pgxpool.Pool) *cacheRepo {
	return &cacheRepo{pool: pool}
}

const cacheColumns = `key, result_location, provider, content_type, size_bytes, cost_cents, hit_count, expires_at, last_access_at, created_at`

func (r *cacheRepo) Get(ctx context.Context, tx repository.Tx, key string) (*model.CacheEntry, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+cacheColumns+` FROM cache_entries WHERE key = $1;`, key)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	return scanCacheEntry(row)
}

// Put is idempotent by key: concurrent writers for the same key race
// harmlessly, last writer wins.
func (r *cacheRepo) Put(ctx context.Context, tx repository.Tx, e *model.CacheEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.LastAccessAt.IsZero() {
		e.LastAccessAt = e.CreatedAt
	}
	const q = `
INSERT INTO cache_entries (` + cacheColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (key) DO UPDATE SET
  result_location = EXCLUDED.result_location,
  provider = EXCLUDED.provider,
  content_type = EXCLUDED.content_type,
  size_bytes = EXCLUDED.size_bytes,
  cost_cents = EXCLUDED.cost_cents,
  expires_at = EXCLUDED.expires_at,
  last_access_at = EXCLUDED.last_access_at;`
	_, err := execSQL(ctx, r.pool, tx, q,
		e.Key, e.ResultLocation, e.Provider, e.ContentType, e.SizeBytes,
		e.CostCents, e.HitCount, e.ExpiresAt, e.LastAccessAt, e.CreatedAt)
	return err
}

func (r *cacheRepo) Delete(ctx context.Context, tx repository.Tx, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := execSQL(ctx, r.pool, tx, `DELETE FROM cache_entries WHERE key = ANY($1);`, keys)
	return err
}

func (r *cacheRepo) Touch(ctx context.Context, tx repository.Tx, key string, at time.Time) error {
	const q = `UPDATE cache_entries SET hit_count = hit_count + 1, last_access_at = $2 WHERE key = $1;`
	_, err := execSQL(ctx, r.pool, tx, q, key, at)
	return err
}

func (r *cacheRepo) DeleteExpired(ctx context.Context, tx repository.Tx, now time.Time) (int64, error) {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM cache_entries WHERE expires_at < $1;`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *cacheRepo) TotalSize(ctx context.Context, tx repository.Tx) (int64, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COALESCE(SUM(size_bytes), 0) FROM cache_entries;`)
	if err != nil {
		return 0, domain.ErrOperationFailed
	}
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *cacheRepo) ListOldestAccessed(ctx context.Context, tx repository.Tx, limit int) ([]*model.CacheEntry, error) {
	const q = `SELECT ` + cacheColumns + ` FROM cache_entries ORDER BY last_access_at ASC LIMIT $1;`
	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.CacheEntry
	for rows.Next() {
		e, err := scanCacheEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanCacheEntry(row pgx.Row) (*model.CacheEntry, error) {
	var e model.CacheEntry
	err := row.Scan(&e.Key, &e.ResultLocation, &e.Provider, &e.ContentType, &e.SizeBytes,
		&e.CostCents, &e.HitCount, &e.ExpiresAt, &e.LastAccessAt, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return &e, nil
}
