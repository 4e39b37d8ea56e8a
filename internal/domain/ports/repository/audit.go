package repository

import (
	"context"

	"creative-ai-studio/internal/domain/model"
)

// AuditRepository appends generation history rows. Writes are best-effort
// from the orchestrator's point of view.
type AuditRepository interface {
	Save(ctx context.Context, tx Tx, a *model.GenerationAudit) error
	ListByAccount(ctx context.Context, tx Tx, accountID string, limit int) ([]*model.GenerationAudit, error)
}
