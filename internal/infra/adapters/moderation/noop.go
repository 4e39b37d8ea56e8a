package moderation

import (
	"context"

	"creative-ai-studio/internal/domain/ports/adapter"
)

var _ adapter.ModerationAdapter = (*Noop)(nil)

// Noop approves everything. Dev mode only.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (Noop) ModerateText(_ context.Context, _ string) adapter.Verdict  { return adapter.Verdict{} }
func (Noop) ModerateImage(_ context.Context, _ string) adapter.Verdict { return adapter.Verdict{} }
