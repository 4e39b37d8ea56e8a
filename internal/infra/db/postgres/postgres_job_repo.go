package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"creative-ai-studio/internal/domain"
	"creative-ai-studio/internal/domain/model"
	"creative-ai-studio/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *jobRepo {
	return &jobRepo{pool: pool, tm: tm}
}

func (r *jobRepo) Save(ctx context.Context, tx repository.Tx, job *model.GenerationJob) error {
	reqJSON, err := json.Marshal(job.Request)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	var resJSON []byte
	if job.Result != nil {
		resJSON, err = json.Marshal(job.Result)
		if err != nil {
			return domain.ErrInvalidArgument
		}
	}

	const q = `
INSERT INTO generation_jobs
  (id, account_id, feature, request, status, priority, submitted_at, started_at, finished_at, result, last_error)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  started_at = EXCLUDED.started_at,
  finished_at = EXCLUDED.finished_at,
  result = EXCLUDED.result,
  last_error = EXCLUDED.last_error;`

	_, err = execSQL(ctx, r.pool, tx, q,
		job.ID, job.AccountID, string(job.Feature), reqJSON, string(job.Status),
		job.Priority, job.SubmittedAt, job.StartedAt, job.FinishedAt, resJSON, job.LastError)
	return err
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.GenerationJob, error) {
	const q = `
SELECT id, account_id, feature, request, status, priority, submitted_at, started_at, finished_at, result, last_error
  FROM generation_jobs WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	return scanJob(row)
}

// FetchAndMarkProcessing claims the highest-priority, oldest pending job.
// FOR UPDATE SKIP LOCKED guarantees a single claimant under concurrent polls.
func (r *jobRepo) FetchAndMarkProcessing(ctx context.Context) (*model.GenerationJob, error) {
	var job *model.GenerationJob

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const fetchQuery = `
SELECT id, account_id, feature, request, status, priority, submitted_at, started_at, finished_at, result, last_error
FROM generation_jobs
WHERE status = 'pending'
ORDER BY priority DESC, submitted_at ASC
LIMIT 1
FOR UPDATE SKIP LOCKED;`

		row, err := pickRow(ctx, r.pool, tx, fetchQuery)
		if err != nil {
			return err
		}
		fetched, err := scanJob(row)
		if err != nil {
			return err
		}

		now := time.Now()
		fetched.Status = model.JobStatusProcessing
		fetched.StartedAt = &now
		if err := r.Save(ctx, tx, fetched); err != nil {
			return err
		}
		job = fetched
		return nil
	})

	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	return job, err
}

func (r *jobRepo) CountByStatus(ctx context.Context, tx repository.Tx, status model.JobStatus) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM generation_jobs WHERE status = $1;`, string(status))
	if err != nil {
		return 0, domain.ErrOperationFailed
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func scanJob(row pgx.Row) (*model.GenerationJob, error) {
	var j model.GenerationJob
	var feature, status string
	var reqJSON, resJSON []byte
	err := row.Scan(&j.ID, &j.AccountID, &feature, &reqJSON, &status,
		&j.Priority, &j.SubmittedAt, &j.StartedAt, &j.FinishedAt, &resJSON, &j.LastError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	j.Feature = model.Feature(feature)
	j.Status = model.JobStatus(status)
	if len(reqJSON) > 0 {
		var req model.GenerationRequest
		if err := json.Unmarshal(reqJSON, &req); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		j.Request = &req
	}
	if len(resJSON) > 0 {
		var res model.GenerationResult
		if err := json.Unmarshal(resJSON, &res); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		j.Result = &res
	}
	return &j, nil
}
