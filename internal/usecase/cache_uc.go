package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"creative-ai-studio/internal/domain"
	"creative-ai-studio/internal/domain/model"
	"creative-ai-studio/internal/domain/ports/adapter"
	"creative-ai-studio/internal/domain/ports/repository"
	"creative-ai-studio/internal/infra/logging"
	"creative-ai-studio/internal/infra/metrics"
)

// CacheUseCase owns expiry and eviction policy over the content-addressed
// result store.
type CacheUseCase interface {
	// Get returns the entry for key or domain.ErrNotFound. Expired
	// entries are misses and are dropped lazily on read.
	Get(ctx context.Context, key string) (*model.CacheEntry, error)

	// Put stores a fresh result under key. Concurrent writers for the
	// same key race benignly; last writer wins.
	Put(ctx context.Context, key string, res *model.GenerationResult) error

	Invalidate(ctx context.Context, keys ...string) error

	// CleanupExpired drops all expired rows. Run periodically.
	CleanupExpired(ctx context.Context) (int64, error)

	// Optimize evicts the least recently accessed entries when total
	// stored bytes exceed the configured ceiling.
	Optimize(ctx context.Context) error
}

var _ CacheUseCase = (*cacheUseCase)(nil)

// evictBatchSize bounds how many victim rows one repo query returns.
const evictBatchSize = 100

type CachePolicy struct {
	TTL           time.Duration
	MaxTotalBytes int64
	EvictFraction float64
}

type cacheUseCase struct {
	repo    repository.CacheRepository
	storage adapter.BlobStorage
	policy  CachePolicy
	log     *zerolog.Logger
	now     func() time.Time
}

func NewCacheUseCase(repo repository.CacheRepository, storage adapter.BlobStorage, policy CachePolicy, log *zerolog.Logger) *cacheUseCase {
	if policy.TTL <= 0 {
		policy.TTL = 24 * time.Hour
	}
	if policy.EvictFraction <= 0 || policy.EvictFraction > 1 {
		policy.EvictFraction = 0.1
	}
	return &cacheUseCase{repo: repo, storage: storage, policy: policy, log: log, now: time.Now}
}

func (c *cacheUseCase) Get(ctx context.Context, key string) (*model.CacheEntry, error) {
	entry, err := c.repo.Get(ctx, nil, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.IncCacheRequest("result", "miss")
		}
		return nil, err
	}
	now := c.now()
	if entry.Expired(now) {
		metrics.IncCacheRequest("result", "miss")
		if derr := c.repo.Delete(ctx, nil, key); derr != nil {
			logging.With(ctx, c.log).Warn().Err(derr).Str("key", key).Msg("lazy expiry delete failed")
		}
		return nil, domain.ErrNotFound
	}
	metrics.IncCacheRequest("result", "hit")
	if terr := c.repo.Touch(ctx, nil, key, now); terr != nil {
		logging.With(ctx, c.log).Warn().Err(terr).Str("key", key).Msg("cache touch failed")
	}
	return entry, nil
}

func (c *cacheUseCase) Put(ctx context.Context, key string, res *model.GenerationResult) error {
	now := c.now()
	return c.repo.Put(ctx, nil, &model.CacheEntry{
		Key:            key,
		ResultLocation: res.ResultLocation,
		Provider:       res.Provider,
		ContentType:    res.ContentType,
		SizeBytes:      res.SizeBytes,
		CostCents:      res.CostCents,
		ExpiresAt:      now.Add(c.policy.TTL),
		LastAccessAt:   now,
		CreatedAt:      now,
	})
}

func (c *cacheUseCase) Invalidate(ctx context.Context, keys ...string) error {
	return c.repo.Delete(ctx, nil, keys...)
}

func (c *cacheUseCase) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := c.repo.DeleteExpired(ctx, nil, c.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AddCacheEvictions("expired", n)
	}
	return n, nil
}

func (c *cacheUseCase) Optimize(ctx context.Context) error {
	if c.policy.MaxTotalBytes <= 0 {
		return nil
	}
	total, err := c.repo.TotalSize(ctx, nil)
	if err != nil {
		return err
	}
	metrics.SetCacheSize(total)
	if total <= c.policy.MaxTotalBytes {
		return nil
	}

	target := int64(float64(total) * c.policy.EvictFraction)
	var freed int64
	var evicted int
	var blobs []string
	// Victims come in LRU batches; deleting a batch exposes the next one,
	// so one pass frees the full target even on large caches.
	for freed < target {
		victims, err := c.repo.ListOldestAccessed(ctx, nil, evictBatchSize)
		if err != nil {
			return err
		}
		if len(victims) == 0 {
			break
		}
		var keys []string
		for _, v := range victims {
			if freed >= target {
				break
			}
			freed += v.SizeBytes
			keys = append(keys, v.Key)
			blobs = append(blobs, v.ResultLocation)
		}
		if err := c.repo.Delete(ctx, nil, keys...); err != nil {
			return err
		}
		evicted += len(keys)
		if len(keys) < len(victims) {
			break
		}
	}
	if evicted == 0 {
		return nil
	}
	metrics.AddCacheEvictions("size", int64(evicted))
	metrics.SetCacheSize(total - freed)

	// Blob removal is best-effort; orphaned artifacts cost storage, not
	// correctness.
	if err := c.storage.Delete(ctx, blobs...); err != nil {
		logging.With(ctx, c.log).Warn().Err(err).Int("count", len(blobs)).Msg("evicted blob delete failed")
	}
	logging.With(ctx, c.log).Info().Int("evicted", evicted).Int64("freed_bytes", freed).Msg("cache size eviction")
	return nil
}
