package provider

import (
	"context"

	"creative-ai-studio/internal/domain"
	"creative-ai-studio/internal/domain/model"
	"creative-ai-studio/internal/domain/ports/adapter"
)

var _ adapter.GenerationProvider = (*limitedProvider)(nil)

// limitedProvider bounds concurrent Generate calls against one upstream
// with a semaphore. Cost estimation and availability probes pass through
// unthrottled.
type limitedProvider struct {
	inner adapter.GenerationProvider
	sem   chan struct{}
}

// WithConcurrencyLimit wraps p so at most n Generate calls run at once.
// n <= 0 returns p unchanged.
func WithConcurrencyLimit(p adapter.GenerationProvider, n int) adapter.GenerationProvider {
	if n <= 0 {
		return p
	}
	return &limitedProvider{inner: p, sem: make(chan struct{}, n)}
}

func (l *limitedProvider) Name() string           { return l.inner.Name() }
func (l *limitedProvider) Feature() model.Feature { return l.inner.Feature() }

func (l *limitedProvider) EstimateCost(req *model.GenerationRequest) (int64, error) {
	return l.inner.EstimateCost(req)
}

func (l *limitedProvider) IsAvailable(ctx context.Context) bool {
	return l.inner.IsAvailable(ctx)
}

func (l *limitedProvider) Generate(ctx context.Context, req *model.GenerationRequest) (*model.GenerationResult, error) {
	select {
	case l.sem <- struct{}{}:
		defer func() { <-l.sem }()
	case <-ctx.Done():
		return nil, &domain.ProviderError{Provider: l.inner.Name(), Retryable: true, Err: ctx.Err()}
	}
	return l.inner.Generate(ctx, req)
}
