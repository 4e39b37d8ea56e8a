package adapter

import (
	"context"

	"creative-ai-studio/internal/domain/model"
)

// GenerationProvider is the port for one external generation backend.
// Implementations are stateless wrappers around provider credentials and
// must fail fast with domain.ErrWrongPayload when handed a request from a
// different feature family.
type GenerationProvider interface {
	Name() string
	Feature() model.Feature

	// Generate issues one outbound call, uploads the result blob to
	// storage and returns its URI inside the result.
	Generate(ctx context.Context, req *model.GenerationRequest) (*model.GenerationResult, error)

	// EstimateCost returns the expected cost in cents before calling out.
	EstimateCost(req *model.GenerationRequest) (int64, error)

	// IsAvailable is a cheap liveness probe. It must not error;
	// unreachable means false.
	IsAvailable(ctx context.Context) bool
}
