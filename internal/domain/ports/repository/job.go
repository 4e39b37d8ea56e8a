package repository

import (
	"context"

	"creative-ai-studio/internal/domain/model"
)

// JobRepository owns GenerationJob rows.
type JobRepository interface {
	Save(ctx context.Context, tx Tx, job *model.GenerationJob) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.GenerationJob, error)

	// FetchAndMarkProcessing atomically claims the highest-priority,
	// oldest-submitted pending job (single claimant per job). Returns
	// domain.ErrNotFound when no pending job exists.
	FetchAndMarkProcessing(ctx context.Context) (*model.GenerationJob, error)

	CountByStatus(ctx context.Context, tx Tx, status model.JobStatus) (int, error)
}
