package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"creative-ai-studio/internal/domain/model"
	"creative-ai-studio/internal/domain/ports/repository"
	"creative-ai-studio/internal/infra/metrics"
	red "creative-ai-studio/internal/infra/redis"
)

var _ repository.CacheRepository = (*cacheRepoHotDecorator)(nil)

// cacheRepoHotDecorator keeps recently served cache entries in redis so a
// repeat hit skips the postgres read. Writes and deletes invalidate the
// hot copy; the row in postgres stays authoritative for hit counts.
type cacheRepoHotDecorator struct {
	inner repository.CacheRepository
	hot   red.RedisClient
	ttl   time.Duration
}

func NewCacheRepoHotDecorator(inner repository.CacheRepository, hot red.RedisClient, ttl time.Duration) repository.CacheRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &cacheRepoHotDecorator{inner: inner, hot: hot, ttl: ttl}
}

func hotKey(key string) string { return fmt.Sprintf("centry:%s", key) }

func (d *cacheRepoHotDecorator) Get(ctx context.Context, tx repository.Tx, key string) (*model.CacheEntry, error) {
	if val, err := d.hot.Get(ctx, hotKey(key)); err == nil {
		metrics.IncCacheRequest("result_hot", "hit")
		var e model.CacheEntry
		if json.Unmarshal([]byte(val), &e) == nil {
			return &e, nil
		}
	}

	metrics.IncCacheRequest("result_hot", "miss")
	e, err := d.inner.Get(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	if bytes, err := json.Marshal(e); err == nil {
		_ = d.hot.Set(ctx, hotKey(key), bytes, d.ttl)
	}
	return e, nil
}

func (d *cacheRepoHotDecorator) Put(ctx context.Context, tx repository.Tx, e *model.CacheEntry) error {
	_ = d.hot.Del(ctx, hotKey(e.Key))
	return d.inner.Put(ctx, tx, e)
}

func (d *cacheRepoHotDecorator) Delete(ctx context.Context, tx repository.Tx, keys ...string) error {
	for _, k := range keys {
		_ = d.hot.Del(ctx, hotKey(k))
	}
	return d.inner.Delete(ctx, tx, keys...)
}

func (d *cacheRepoHotDecorator) Touch(ctx context.Context, tx repository.Tx, key string, at time.Time) error {
	return d.inner.Touch(ctx, tx, key, at)
}

func (d *cacheRepoHotDecorator) DeleteExpired(ctx context.Context, tx repository.Tx, now time.Time) (int64, error) {
	return d.inner.DeleteExpired(ctx, tx, now)
}

func (d *cacheRepoHotDecorator) TotalSize(ctx context.Context, tx repository.Tx) (int64, error) {
	return d.inner.TotalSize(ctx, tx)
}

func (d *cacheRepoHotDecorator) ListOldestAccessed(ctx context.Context, tx repository.Tx, limit int) ([]*model.CacheEntry, error) {
	return d.inner.ListOldestAccessed(ctx, tx, limit)
}
