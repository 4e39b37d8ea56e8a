package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"creative-ai-studio/internal/domain"
	"creative-ai-studio/internal/domain/model"
	"creative-ai-studio/internal/domain/ports/repository"
)

var _ repository.AuditRepository = (*auditRepo)(nil)

type auditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *auditRepo {
	return &auditRepo{pool: pool}
}

func (r *auditRepo) Save(ctx context.Context, tx repository.Tx, a *model.GenerationAudit) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	const q = `
INSERT INTO generation_audit (id, account_id, feature, provider, outcome, cost_cents, latency_ms, error, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`
	_, err := execSQL(ctx, r.pool, tx, q,
		a.ID, a.AccountID, string(a.Feature), a.Provider, a.Outcome, a.CostCents, a.LatencyMs, a.Error, a.CreatedAt)
	return err
}

func (r *auditRepo) ListByAccount(ctx context.Context, tx repository.Tx, accountID string, limit int) ([]*model.GenerationAudit, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, account_id, feature, provider, outcome, cost_cents, latency_ms, error, created_at
  FROM generation_audit
 WHERE account_id = $1
 ORDER BY created_at DESC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, accountID, limit)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.GenerationAudit
	for rows.Next() {
		var a model.GenerationAudit
		var feat string
		if err := rows.Scan(&a.ID, &a.AccountID, &feat, &a.Provider, &a.Outcome, &a.CostCents, &a.LatencyMs, &a.Error, &a.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		a.Feature = model.Feature(feat)
		out = append(out, &a)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
