package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"creative-ai-studio/internal/domain"
	"creative-ai-studio/internal/domain/model"
	"creative-ai-studio/internal/domain/ports/repository"
)

var _ repository.UsageRepository = (*usageRepo)(nil)

type usageRepo struct {
	pool *pgxpool.Pool
}

func NewUsageRepo(pool *pgxpool.Pool) *usageRepo {
	return &usageRepo{pool: pool}
}

func (r *usageRepo) Find(ctx context.Context, tx repository.Tx, accountID string, feature model.Feature, periodStart time.Time) (*model.UsageRecord, error) {
	const q = `
SELECT account_id, feature, period_start, period_end, usage_count, total_cost_cents, updated_at
  FROM usage_records
 WHERE account_id = $1 AND feature = $2 AND period_start = $3;`
	row, err := pickRow(ctx, r.pool, tx, q, accountID, string(feature), periodStart)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	var u model.UsageRecord
	var feat string
	if err := row.Scan(&u.AccountID, &feat, &u.PeriodStart, &u.PeriodEnd, &u.UsageCount, &u.TotalCostCents, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	u.Feature = model.Feature(feat)
	return &u, nil
}

// Accumulate is the per-period atomic upsert: the unique constraint on
// (account_id, feature, period_start) plus the additive DO UPDATE keeps
// counts monotonic even under concurrent writers.
func (r *usageRepo) Accumulate(ctx context.Context, tx repository.Tx, accountID string, feature model.Feature, periodStart, periodEnd time.Time, costCents int64) error {
	const q = `
INSERT INTO usage_records (account_id, feature, period_start, period_end, usage_count, total_cost_cents, updated_at)
VALUES ($1, $2, $3, $4, 1, $5, $6)
ON CONFLICT (account_id, feature, period_start) DO UPDATE SET
  usage_count = usage_records.usage_count + 1,
  total_cost_cents = usage_records.total_cost_cents + EXCLUDED.total_cost_cents,
  updated_at = EXCLUDED.updated_at;`
	_, err := execSQL(ctx, r.pool, tx, q, accountID, string(feature), periodStart, periodEnd, costCents, time.Now())
	return err
}
