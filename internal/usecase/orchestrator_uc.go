package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"creative-ai-studio/internal/domain"
	"creative-ai-studio/internal/domain/model"
	"creative-ai-studio/internal/domain/ports/adapter"
	"creative-ai-studio/internal/domain/ports/repository"
	"creative-ai-studio/internal/infra/logging"
	"creative-ai-studio/internal/infra/metrics"
	"creative-ai-studio/internal/infra/redis"
)

// ProviderRegistry maps each feature to its ordered provider chain. Order
// is priority: the first healthy provider that succeeds wins.
type ProviderRegistry map[model.Feature][]adapter.GenerationProvider

// DispatchPolicy holds the routing thresholds.
type DispatchPolicy struct {
	// Requests above these sizes are deferred to the background queue.
	VoiceDeferChars  int
	ImageDeferPixels int

	BurstLimitPerMinute int
	MaxPendingJobs      int

	// Per-feature provider call deadline.
	Timeouts map[model.Feature]time.Duration
}

// OrchestratorUseCase is the single entry point for generation requests.
// The pipeline is: moderation (fail closed), tier access, result cache,
// defer decision, quota, then the provider fallback chain.
type OrchestratorUseCase interface {
	// Dispatch runs the pipeline. Exactly one of result and job is
	// non-nil on success: a job means the request was deferred.
	Dispatch(ctx context.Context, req *model.GenerationRequest) (*model.GenerationResult, *model.GenerationJob, error)

	// ProcessDeferred executes one claimed job to a terminal state.
	ProcessDeferred(ctx context.Context, job *model.GenerationJob) error

	GetJob(ctx context.Context, id string) (*model.GenerationJob, error)

	// History returns the account's most recent generation audit rows.
	History(ctx context.Context, accountID string, limit int) ([]*model.GenerationAudit, error)
}

var _ OrchestratorUseCase = (*orchestratorUseCase)(nil)

type orchestratorUseCase struct {
	registry   ProviderRegistry
	moderation adapter.ModerationAdapter
	quota      QuotaUseCase
	cache      CacheUseCase
	jobs       repository.JobRepository
	audits     repository.AuditRepository
	burst      *redis.RateLimiter
	policy     DispatchPolicy
	log        *zerolog.Logger
	now        func() time.Time
}

func NewOrchestratorUseCase(
	registry ProviderRegistry,
	moderation adapter.ModerationAdapter,
	quota QuotaUseCase,
	cache CacheUseCase,
	jobs repository.JobRepository,
	audits repository.AuditRepository,
	burst *redis.RateLimiter,
	policy DispatchPolicy,
	log *zerolog.Logger,
) *orchestratorUseCase {
	if policy.MaxPendingJobs <= 0 {
		policy.MaxPendingJobs = 256
	}
	return &orchestratorUseCase{
		registry:   registry,
		moderation: moderation,
		quota:      quota,
		cache:      cache,
		jobs:       jobs,
		audits:     audits,
		burst:      burst,
		policy:     policy,
		log:        log,
		now:        time.Now,
	}
}

func (o *orchestratorUseCase) Dispatch(ctx context.Context, req *model.GenerationRequest) (*model.GenerationResult, *model.GenerationJob, error) {
	started := o.now()
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	ctx = logging.WithAccountID(ctx, req.RequesterID)
	log := logging.With(ctx, o.log)

	if o.burst != nil && o.policy.BurstLimitPerMinute > 0 {
		ok, err := o.burst.Allow(ctx, redis.BurstKey(req.RequesterID, string(req.Feature)), o.policy.BurstLimitPerMinute, time.Minute)
		if err != nil {
			// Rate limiting is protective, not load-bearing; an outage
			// there fails open.
			log.Warn().Err(err).Msg("burst limiter unavailable, failing open")
		} else if !ok {
			metrics.IncDispatchOutcome(string(req.Feature), "rate_limited")
			return nil, nil, domain.ErrRateLimited
		}
	}

	if err := o.moderate(ctx, req); err != nil {
		o.audit(ctx, req, "", "rejected", 0, started, err)
		return nil, nil, err
	}

	if err := o.quota.CanAccessFeature(ctx, req.RequesterID, req.Feature); err != nil {
		o.auditDenied(ctx, req, started, err)
		return nil, nil, err
	}
	o.clampBatch(ctx, req)

	key := CacheKey(req)
	if res := o.lookupCache(ctx, key); res != nil {
		o.audit(ctx, req, res.Provider, "cached", 0, started, nil)
		metrics.IncDispatchOutcome(string(req.Feature), "cached")
		return res, nil, nil
	}

	if o.shouldDefer(req) {
		job, err := o.enqueue(ctx, req)
		if err != nil {
			return nil, nil, err
		}
		metrics.IncDispatchOutcome(string(req.Feature), "deferred")
		log.Info().Str("job_id", job.ID).Msg("request deferred to background queue")
		return nil, job, nil
	}

	res, err := o.execute(ctx, req, key)
	if err != nil {
		o.auditDenied(ctx, req, started, err)
		return nil, nil, err
	}
	o.audit(ctx, req, res.Provider, "success", res.CostCents, started, nil)
	metrics.IncDispatchOutcome(string(req.Feature), "success")
	return res, nil, nil
}

// moderate runs the fail-closed content gate over the request's free text
// (and source image for edits).
func (o *orchestratorUseCase) moderate(ctx context.Context, req *model.GenerationRequest) error {
	v := o.moderation.ModerateText(ctx, req.Text())
	if !v.Flagged && req.Feature == model.FeatureAdvancedEdit && req.Image != nil {
		v = o.moderation.ModerateImage(ctx, req.Image.SourceURL)
	}
	if v.Flagged {
		metrics.IncModerationBlock(string(req.Feature))
		return &domain.ContentRejectedError{
			Categories: v.Categories,
			Confidence: v.Confidence,
			Reason:     v.Reason,
		}
	}
	return nil
}

// clampBatch caps image batch size to the tier's per-request allowance.
// Clamping happens before cache key derivation so the served result
// matches what the tier is entitled to.
func (o *orchestratorUseCase) clampBatch(ctx context.Context, req *model.GenerationRequest) {
	if req.Image == nil {
		return
	}
	max, err := o.quota.MaxPerRequest(ctx, req.RequesterID, req.Feature)
	if err != nil || max <= 0 {
		return
	}
	if req.Image.Quantity > max {
		logging.With(ctx, o.log).Debug().Int("requested", req.Image.Quantity).Int("allowed", max).Msg("batch size clamped to tier allowance")
		req.Image.Quantity = max
	}
}

func (o *orchestratorUseCase) lookupCache(ctx context.Context, key string) *model.GenerationResult {
	entry, err := o.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logging.With(ctx, o.log).Warn().Err(err).Msg("cache lookup failed, treating as miss")
		}
		return nil
	}
	res := &model.GenerationResult{
		ResultLocation: entry.ResultLocation,
		Provider:       entry.Provider,
		ContentType:    entry.ContentType,
		SizeBytes:      entry.SizeBytes,
	}
	res.MarkCached()
	return res
}

// shouldDefer routes slow work to the queue: video and advanced edits
// always, voice and image above the size thresholds.
func (o *orchestratorUseCase) shouldDefer(req *model.GenerationRequest) bool {
	switch req.Feature {
	case model.FeatureVideo, model.FeatureAdvancedEdit:
		return true
	case model.FeatureVoice:
		return o.policy.VoiceDeferChars > 0 && len(req.Voice.Text) > o.policy.VoiceDeferChars
	case model.FeatureImage:
		return o.policy.ImageDeferPixels > 0 && req.Image.Width*req.Image.Height > o.policy.ImageDeferPixels
	}
	return false
}

func (o *orchestratorUseCase) enqueue(ctx context.Context, req *model.GenerationRequest) (*model.GenerationJob, error) {
	pending, err := o.jobs.CountByStatus(ctx, nil, model.JobStatusPending)
	if err != nil {
		return nil, err
	}
	if pending >= o.policy.MaxPendingJobs {
		metrics.IncDispatchOutcome(string(req.Feature), "queue_busy")
		return nil, domain.ErrQueueBusy
	}
	job := &model.GenerationJob{
		ID:          newJobID(o.now()),
		AccountID:   req.RequesterID,
		Feature:     req.Feature,
		Request:     req,
		Status:      model.JobStatusPending,
		Priority:    req.Priority,
		SubmittedAt: o.now(),
	}
	if err := o.jobs.Save(ctx, nil, job); err != nil {
		return nil, err
	}
	metrics.IncJob("pending")
	return job, nil
}

// execute runs quota and the provider fallback chain for an admitted
// request and caches the produced result.
func (o *orchestratorUseCase) execute(ctx context.Context, req *model.GenerationRequest, key string) (*model.GenerationResult, error) {
	chain := o.registry[req.Feature]
	if len(chain) == 0 {
		return nil, domain.ErrFeatureDisabled
	}

	log := logging.With(ctx, o.log)
	var lastErr error
	for _, p := range chain {
		if !p.IsAvailable(ctx) {
			lastErr = &domain.ProviderError{Provider: p.Name(), Retryable: true, Err: errors.New("availability probe failed")}
			log.Warn().Str("provider", p.Name()).Msg("provider unavailable, trying next")
			continue
		}

		// Providers price the same work differently, so the budget is
		// re-checked against each provider's own estimate before calling
		// out: a fallback must not silently overshoot a ceiling its
		// predecessor fit under.
		est, err := p.EstimateCost(req)
		if err != nil {
			if errors.Is(err, domain.ErrWrongPayload) || errors.Is(err, domain.ErrInvalidArgument) {
				return nil, err
			}
			est = 0
		}
		if err := o.quota.CheckQuota(ctx, req.RequesterID, req.Feature, est); err != nil {
			return nil, err
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if d := o.policy.Timeouts[req.Feature]; d > 0 {
			callCtx, cancel = context.WithTimeout(ctx, d)
		}
		callStart := o.now()
		res, err := p.Generate(callCtx, req)
		if cancel != nil {
			cancel()
		}
		latency := o.now().Sub(callStart).Milliseconds()

		if err == nil {
			metrics.ObserveGeneration(string(req.Feature), p.Name(), latency, res.CostCents, true)
			if cerr := o.cache.Put(ctx, key, res); cerr != nil {
				log.Warn().Err(cerr).Msg("result cache write failed")
			}
			if terr := o.quota.TrackUsage(ctx, req.RequesterID, req.Feature, res.CostCents); terr != nil {
				log.Error().Err(terr).Msg("usage tracking failed after successful generation")
			}
			return res, nil
		}

		metrics.ObserveGeneration(string(req.Feature), p.Name(), latency, 0, false)
		// Malformed input fails everywhere; bail out instead of burning
		// through the rest of the chain.
		if errors.Is(err, domain.ErrWrongPayload) || errors.Is(err, domain.ErrInvalidArgument) {
			return nil, err
		}
		lastErr = err
		log.Warn().Err(err).Str("provider", p.Name()).Msg("provider failed, trying next")
	}
	return nil, &domain.AllProvidersFailedError{Feature: string(req.Feature), Last: lastErr}
}

func (o *orchestratorUseCase) ProcessDeferred(ctx context.Context, job *model.GenerationJob) error {
	if job.Terminal() {
		return nil
	}
	ctx = logging.WithAccountID(ctx, job.AccountID)
	ctx = logging.WithJobID(ctx, job.ID)
	started := o.now()

	key := CacheKey(job.Request)
	var res *model.GenerationResult
	var err error
	if res = o.lookupCache(ctx, key); res == nil {
		res, err = o.execute(ctx, job.Request, key)
	}

	finished := o.now()
	job.FinishedAt = &finished
	if err != nil {
		job.Status = model.JobStatusFailed
		job.LastError = err.Error()
		metrics.IncJob("failed")
		metrics.IncDispatchOutcome(string(job.Feature), "failed")
		o.audit(ctx, job.Request, "", "failed", 0, started, err)
	} else {
		job.Status = model.JobStatusCompleted
		job.Result = res
		metrics.IncJob("completed")
		outcome := "success"
		if res.Cached() {
			outcome = "cached"
		}
		metrics.IncDispatchOutcome(string(job.Feature), outcome)
		o.audit(ctx, job.Request, res.Provider, outcome, res.CostCents, started, nil)
	}

	if serr := o.jobs.Save(ctx, nil, job); serr != nil {
		logging.With(ctx, o.log).Error().Err(serr).Msg("failed to persist terminal job state")
		return serr
	}
	return err
}

func (o *orchestratorUseCase) GetJob(ctx context.Context, id string) (*model.GenerationJob, error) {
	return o.jobs.FindByID(ctx, nil, id)
}

func (o *orchestratorUseCase) History(ctx context.Context, accountID string, limit int) ([]*model.GenerationAudit, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return o.audits.ListByAccount(ctx, nil, accountID, limit)
}

func (o *orchestratorUseCase) audit(ctx context.Context, req *model.GenerationRequest, provider, outcome string, cost int64, started time.Time, cause error) {
	row := &model.GenerationAudit{
		ID:        uuid.NewString(),
		AccountID: req.RequesterID,
		Feature:   req.Feature,
		Provider:  provider,
		Outcome:   outcome,
		CostCents: cost,
		LatencyMs: o.now().Sub(started).Milliseconds(),
		CreatedAt: o.now(),
	}
	if cause != nil {
		row.Error = cause.Error()
	}
	if err := o.audits.Save(ctx, nil, row); err != nil {
		logging.With(ctx, o.log).Warn().Err(err).Msg("audit write failed")
	}
}

// auditDenied records quota and provider failures with the right outcome
// label.
func (o *orchestratorUseCase) auditDenied(ctx context.Context, req *model.GenerationRequest, started time.Time, cause error) {
	outcome := "failed"
	var qe *domain.QuotaExceededError
	if errors.As(cause, &qe) {
		outcome = "denied"
	}
	o.audit(ctx, req, "", outcome, 0, started, cause)
	metrics.IncDispatchOutcome(string(req.Feature), outcome)
}
