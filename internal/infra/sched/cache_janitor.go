package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"creative-ai-studio/internal/usecase"
)

// CacheJanitor periodically drops expired cache rows and enforces the
// total-size ceiling.
type CacheJanitor struct {
	interval time.Duration
	cache    usecase.CacheUseCase
	log      *zerolog.Logger
}

func NewCacheJanitor(interval time.Duration, cache usecase.CacheUseCase, logger *zerolog.Logger) *CacheJanitor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	janLog := logger.With().Str("component", "CacheJanitor").Logger()
	return &CacheJanitor{interval: interval, cache: cache, log: &janLog}
}

func (w *CacheJanitor) Run(ctx context.Context) error {
	w.log.Info().Msg("starting cache janitor")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping cache janitor")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.cache.CleanupExpired(ctx)
			if err != nil {
				w.log.Error().Err(err).Msg("expired cleanup failed")
			}
			if n > 0 {
				w.log.Info().Int64("count", n).Msg("expired cache entries dropped")
			}
			if err := w.cache.Optimize(ctx); err != nil {
				w.log.Error().Err(err).Msg("cache optimize failed")
			}
		}
	}
}
