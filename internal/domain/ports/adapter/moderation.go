package adapter

import "context"

// Verdict is the result of a moderation check.
type Verdict struct {
	Flagged    bool
	Categories []string
	Confidence float64
	Reason     string
}

// ModerationAdapter classifies free-text (and optionally image) input
// before any provider is invoked. Implementations fail closed: when the
// moderation backend is unreachable they return a flagged verdict with
// category "error" and confidence 1.0 instead of an error.
type ModerationAdapter interface {
	ModerateText(ctx context.Context, text string) Verdict
	ModerateImage(ctx context.Context, imageURL string) Verdict
}
