package provider

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"creative-ai-studio/internal/domain/model"
	"creative-ai-studio/internal/domain/ports/adapter"
)

var _ adapter.GenerationProvider = (*Noop)(nil)

// Noop returns a canned result without calling anything. Used in dev mode
// when no API keys are configured.
type Noop struct {
	feature model.Feature
}

func NewNoop(feature model.Feature) *Noop { return &Noop{feature: feature} }

func (n *Noop) Name() string                     { return "noop-" + string(n.feature) }
func (n *Noop) Feature() model.Feature           { return n.feature }
func (n *Noop) IsAvailable(_ context.Context) bool { return true }

func (n *Noop) EstimateCost(_ *model.GenerationRequest) (int64, error) { return 0, nil }

func (n *Noop) Generate(_ context.Context, _ *model.GenerationRequest) (*model.GenerationResult, error) {
	return &model.GenerationResult{
		ResultLocation: fmt.Sprintf("noop://%s/%s", n.feature, uuid.NewString()),
		Provider:       n.Name(),
		ContentType:    "application/octet-stream",
	}, nil
}
