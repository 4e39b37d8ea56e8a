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

var _ repository.AccountRepository = (*accountRepo)(nil)

type accountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *accountRepo {
	return &accountRepo{pool: pool}
}

func (r *accountRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Account, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT id, tier, created_at FROM accounts WHERE id = $1;`, id)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	var a model.Account
	var tier string
	if err := row.Scan(&a.ID, &tier, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	a.Tier = model.Tier(tier)
	return &a, nil
}

func (r *accountRepo) Save(ctx context.Context, tx repository.Tx, a *model.Account) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	const q = `
INSERT INTO accounts (id, tier, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET tier = EXCLUDED.tier;`
	_, err := execSQL(ctx, r.pool, tx, q, a.ID, string(a.Tier), a.CreatedAt)
	return err
}
