package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"creative-ai-studio/internal/domain"
	"creative-ai-studio/internal/domain/ports/repository"
	"creative-ai-studio/internal/infra/metrics"
	"creative-ai-studio/internal/usecase"
)

// JobProcessor polls for pending generation jobs and runs them through
// the orchestrator on the worker pool. Claiming is atomic at the database
// level, so any number of processor instances can share one queue.
type JobProcessor struct {
	jobs         repository.JobRepository
	orchestrator usecase.OrchestratorUseCase
	pollInterval time.Duration
	log          *zerolog.Logger
}

func NewJobProcessor(
	jobs repository.JobRepository,
	orchestrator usecase.OrchestratorUseCase,
	pollInterval time.Duration,
	logger *zerolog.Logger,
) *JobProcessor {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	procLog := logger.With().Str("component", "JobProcessor").Logger()
	return &JobProcessor{
		jobs:         jobs,
		orchestrator: orchestrator,
		pollInterval: pollInterval,
		log:          &procLog,
	}
}

// Start polls on a ticker and submits claim attempts to the pool. Run in
// a goroutine.
func (p *JobProcessor) Start(ctx context.Context, pool *Pool) {
	p.log.Info().Msg("job processor started")
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("job processor stopping")
			return
		case <-ticker.C:
			// A full pool means every worker is busy; skip this tick
			// rather than queueing claim attempts.
			_ = pool.Submit(func(ctx context.Context) error {
				p.processOne(ctx)
				return nil
			})
		}
	}
}

func (p *JobProcessor) processOne(ctx context.Context) {
	job, err := p.jobs.FetchAndMarkProcessing(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			p.log.Error().Err(err).Msg("failed to claim job")
		}
		return
	}

	p.log.Info().Str("job_id", job.ID).Str("feature", string(job.Feature)).Msg("processing job")
	metrics.JobStarted()
	defer metrics.JobFinished()

	start := time.Now()
	err = p.orchestrator.ProcessDeferred(ctx, job)
	p.log.Info().
		Str("job_id", job.ID).
		Str("status", string(job.Status)).
		Dur("duration", time.Since(start)).
		Err(err).
		Msg("job finished")
}
