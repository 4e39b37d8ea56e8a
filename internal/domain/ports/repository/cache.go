package repository

import (
	"context"
	"time"

	"creative-ai-studio/internal/domain/model"
)

// CacheRepository is the dumb content-addressed store behind the result
// cache. Key derivation and expiry policy live in the cache use case.
type CacheRepository interface {
	Get(ctx context.Context, tx Tx, key string) (*model.CacheEntry, error)
	Put(ctx context.Context, tx Tx, entry *model.CacheEntry) error
	Delete(ctx context.Context, tx Tx, keys ...string) error

	// Touch bumps hit count and last-access time for a served entry.
	Touch(ctx context.Context, tx Tx, key string, at time.Time) error

	DeleteExpired(ctx context.Context, tx Tx, now time.Time) (int64, error)
	TotalSize(ctx context.Context, tx Tx) (int64, error)

	// ListOldestAccessed returns up to limit entries ordered by least
	// recent access, for eviction.
	ListOldestAccessed(ctx context.Context, tx Tx, limit int) ([]*model.CacheEntry, error)
}
