package repository

import (
	"context"
	"time"

	"creative-ai-studio/internal/domain/model"
)

// UsageRepository owns per-period usage accumulation rows.
type UsageRepository interface {
	// Find returns the record for (account, feature, periodStart) or
	// domain.ErrNotFound when nothing has been recorded this period.
	Find(ctx context.Context, tx Tx, accountID string, feature model.Feature, periodStart time.Time) (*model.UsageRecord, error)

	// Accumulate upserts the period row and atomically adds one usage and
	// the given cost. Counts only ever grow within a period.
	Accumulate(ctx context.Context, tx Tx, accountID string, feature model.Feature, periodStart, periodEnd time.Time, costCents int64) error
}

// AccountRepository reads account entitlement data maintained by the
// back-office layer.
type AccountRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.Account, error)
	Save(ctx context.Context, tx Tx, a *model.Account) error
}
