package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"creative-ai-studio/internal/domain"
	"creative-ai-studio/internal/domain/model"
	"creative-ai-studio/internal/domain/ports/adapter"
	red "creative-ai-studio/internal/infra/redis"
)

type orchestratorFixture struct {
	uc        *orchestratorUseCase
	jobs      *memJobRepo
	audits    *memAuditRepo
	usage     *memUsageRepo
	cacheRepo *memCacheRepo
	mod       *fakeModeration
	redis     *fakeRedis
}

func newOrchestratorFixture(t *testing.T, registry ProviderRegistry, policy DispatchPolicy) *orchestratorFixture {
	t.Helper()
	ctx := context.Background()

	accounts := newMemAccountRepo()
	_ = accounts.Save(ctx, nil, &model.Account{ID: "acct-pro", Tier: model.TierPro})
	_ = accounts.Save(ctx, nil, &model.Account{ID: "acct-free", Tier: model.TierFree})

	usage := newMemUsageRepo()
	fr := newFakeRedis()
	quota := NewQuotaUseCase(accounts, usage, red.NewDailyUsageCounter(fr), newTestLogger())

	cacheRepo := newMemCacheRepo()
	cache := NewCacheUseCase(cacheRepo, &fakeStorage{}, CachePolicy{TTL: time.Hour}, newTestLogger())

	jobs := newMemJobRepo()
	audits := newMemAuditRepo()
	mod := &fakeModeration{}

	uc := NewOrchestratorUseCase(registry, mod, quota, cache, jobs, audits, red.NewRateLimiter(fr), policy, newTestLogger())
	return &orchestratorFixture{
		uc:        uc,
		jobs:      jobs,
		audits:    audits,
		usage:     usage,
		cacheRepo: cacheRepo,
		mod:       mod,
		redis:     fr,
	}
}

func imageRequest(account string) *model.GenerationRequest {
	return &model.GenerationRequest{
		Feature:     model.FeatureImage,
		RequesterID: account,
		Image:       &model.ImageInput{Prompt: "a lighthouse at dusk", Width: 512, Height: 512, Quantity: 1},
	}
}

func TestOrchestratorDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path generates, caches, tracks usage and audits", func(t *testing.T) {
		p := newFakeProvider("p1", model.FeatureImage)
		f := newOrchestratorFixture(t, ProviderRegistry{model.FeatureImage: {p}}, DispatchPolicy{})

		res, job, err := f.uc.Dispatch(ctx, imageRequest("acct-pro"))
		if err != nil {
			t.Fatalf("dispatch: %v", err)
		}
		if job != nil {
			t.Fatal("small image request must run synchronously")
		}
		if res.Provider != "p1" || res.Cached() {
			t.Error("fresh result expected from p1")
		}

		start, _ := model.CurrentPeriod(time.Now())
		rec, err := f.usage.Find(ctx, nil, "acct-pro", model.FeatureImage, start)
		if err != nil || rec.UsageCount != 1 {
			t.Errorf("usage not tracked: rec=%+v err=%v", rec, err)
		}
		if _, err := f.cacheRepo.Get(ctx, nil, CacheKey(imageRequest("acct-pro"))); err != nil {
			t.Error("result not cached")
		}
		if got := f.audits.outcomes(); len(got) != 1 || got[0] != "success" {
			t.Errorf("audit outcomes = %v, want [success]", got)
		}
	})

	t.Run("second identical request is served from cache without quota", func(t *testing.T) {
		p := newFakeProvider("p1", model.FeatureImage)
		f := newOrchestratorFixture(t, ProviderRegistry{model.FeatureImage: {p}}, DispatchPolicy{})

		if _, _, err := f.uc.Dispatch(ctx, imageRequest("acct-pro")); err != nil {
			t.Fatalf("first dispatch: %v", err)
		}
		res, _, err := f.uc.Dispatch(ctx, imageRequest("acct-pro"))
		if err != nil {
			t.Fatalf("second dispatch: %v", err)
		}
		if !res.Cached() {
			t.Error("second dispatch should be a cache hit")
		}
		if res.CostCents != 0 {
			t.Error("cached results are free")
		}
		if p.callCount() != 1 {
			t.Errorf("provider called %d times, want 1", p.callCount())
		}
		start, _ := model.CurrentPeriod(time.Now())
		rec, _ := f.usage.Find(ctx, nil, "acct-pro", model.FeatureImage, start)
		if rec.UsageCount != 1 {
			t.Errorf("cache hit must not consume quota, usage=%d", rec.UsageCount)
		}
	})

	t.Run("image batch size is clamped to the tier allowance", func(t *testing.T) {
		p := newFakeProvider("p1", model.FeatureImage)
		var seen int
		p.generate = func(ctx context.Context, req *model.GenerationRequest) (*model.GenerationResult, error) {
			seen = req.Image.Quantity
			return &model.GenerationResult{ResultLocation: "mem://r", Provider: "p1"}, nil
		}
		f := newOrchestratorFixture(t, ProviderRegistry{model.FeatureImage: {p}}, DispatchPolicy{})

		req := imageRequest("acct-pro")
		req.Image.Quantity = 99
		if _, _, err := f.uc.Dispatch(ctx, req); err != nil {
			t.Fatalf("dispatch: %v", err)
		}
		// pro tier allows 4 images per request
		if seen != 4 {
			t.Errorf("provider saw quantity %d, want 4", seen)
		}
	})

	t.Run("moderation flag rejects before any provider call", func(t *testing.T) {
		p := newFakeProvider("p1", model.FeatureImage)
		f := newOrchestratorFixture(t, ProviderRegistry{model.FeatureImage: {p}}, DispatchPolicy{})
		f.mod.verdict = adapter.Verdict{Flagged: true, Categories: []string{"violence"}, Confidence: 0.97, Reason: "content policy violation"}

		_, _, err := f.uc.Dispatch(ctx, imageRequest("acct-pro"))
		var rejected *domain.ContentRejectedError
		if !errors.As(err, &rejected) {
			t.Fatalf("expected ContentRejectedError, got %v", err)
		}
		if p.callCount() != 0 {
			t.Error("no provider may run for rejected content")
		}
		start, _ := model.CurrentPeriod(time.Now())
		if _, err := f.usage.Find(ctx, nil, "acct-pro", model.FeatureImage, start); !errors.Is(err, domain.ErrNotFound) {
			t.Error("rejection must not consume quota")
		}
		if got := f.audits.outcomes(); len(got) != 1 || got[0] != "rejected" {
			t.Errorf("audit outcomes = %v, want [rejected]", got)
		}
	})

	t.Run("fallback tries the next provider on retryable failure", func(t *testing.T) {
		p1 := newFakeProvider("p1", model.FeatureImage)
		p1.generate = func(ctx context.Context, req *model.GenerationRequest) (*model.GenerationResult, error) {
			return nil, &domain.ProviderError{Provider: "p1", Status: 503, Retryable: true, Err: errors.New("overloaded")}
		}
		p2 := newFakeProvider("p2", model.FeatureImage)
		f := newOrchestratorFixture(t, ProviderRegistry{model.FeatureImage: {p1, p2}}, DispatchPolicy{})

		res, _, err := f.uc.Dispatch(ctx, imageRequest("acct-pro"))
		if err != nil {
			t.Fatalf("dispatch: %v", err)
		}
		if res.Provider != "p2" {
			t.Errorf("expected fallback to p2, got %s", res.Provider)
		}
	})

	t.Run("fallback whose estimate busts the cost ceiling is denied", func(t *testing.T) {
		p1 := newFakeProvider("p1", model.FeatureImage)
		p1.cost = 4
		p1.generate = func(ctx context.Context, req *model.GenerationRequest) (*model.GenerationResult, error) {
			return nil, &domain.ProviderError{Provider: "p1", Status: 503, Retryable: true, Err: errors.New("overloaded")}
		}
		p2 := newFakeProvider("p2", model.FeatureImage)
		p2.cost = 40
		f := newOrchestratorFixture(t, ProviderRegistry{model.FeatureImage: {p1, p2}}, DispatchPolicy{})

		// free tier image ceiling is 50 cents; 45 already spent this period
		start, end := model.CurrentPeriod(time.Now())
		if err := f.usage.Accumulate(ctx, nil, "acct-free", model.FeatureImage, start, end, 45); err != nil {
			t.Fatalf("seed usage: %v", err)
		}

		_, _, err := f.uc.Dispatch(ctx, imageRequest("acct-free"))
		var qe *domain.QuotaExceededError
		if !errors.As(err, &qe) {
			t.Fatalf("expected QuotaExceededError, got %v", err)
		}
		if p1.callCount() != 1 {
			t.Errorf("p1 fits the budget and must be tried, calls=%d", p1.callCount())
		}
		if p2.callCount() != 0 {
			t.Error("the budget must be re-checked against p2's estimate before it runs")
		}
		rec, _ := f.usage.Find(ctx, nil, "acct-free", model.FeatureImage, start)
		if rec.TotalCostCents != 45 {
			t.Errorf("denied fallback must not bill, cost=%d", rec.TotalCostCents)
		}
	})

	t.Run("provider-specific non-retryable failure still falls through", func(t *testing.T) {
		p1 := newFakeProvider("p1", model.FeatureImage)
		p1.generate = func(ctx context.Context, req *model.GenerationRequest) (*model.GenerationResult, error) {
			return nil, &domain.ProviderError{Provider: "p1", Status: 401, Retryable: false, Err: errors.New("bad key")}
		}
		p2 := newFakeProvider("p2", model.FeatureImage)
		f := newOrchestratorFixture(t, ProviderRegistry{model.FeatureImage: {p1, p2}}, DispatchPolicy{})

		res, _, err := f.uc.Dispatch(ctx, imageRequest("acct-pro"))
		if err != nil {
			t.Fatalf("dispatch: %v", err)
		}
		if res.Provider != "p2" {
			t.Errorf("a failure scoped to one provider must not kill the chain, got %v", err)
		}
	})

	t.Run("malformed payload aborts the chain immediately", func(t *testing.T) {
		p1 := newFakeProvider("p1", model.FeatureImage)
		p1.generate = func(ctx context.Context, req *model.GenerationRequest) (*model.GenerationResult, error) {
			return nil, domain.ErrWrongPayload
		}
		p2 := newFakeProvider("p2", model.FeatureImage)
		f := newOrchestratorFixture(t, ProviderRegistry{model.FeatureImage: {p1, p2}}, DispatchPolicy{})

		_, _, err := f.uc.Dispatch(ctx, imageRequest("acct-pro"))
		if !errors.Is(err, domain.ErrWrongPayload) {
			t.Fatalf("expected ErrWrongPayload, got %v", err)
		}
		if p2.callCount() != 0 {
			t.Error("request-level failures must not reach the next provider")
		}
	})

	t.Run("exhausted chain returns AllProvidersFailedError", func(t *testing.T) {
		p1 := newFakeProvider("p1", model.FeatureImage)
		p1.generate = func(ctx context.Context, req *model.GenerationRequest) (*model.GenerationResult, error) {
			return nil, &domain.ProviderError{Provider: "p1", Status: 500, Retryable: true, Err: errors.New("boom")}
		}
		p2 := newFakeProvider("p2", model.FeatureImage)
		p2.available = false
		f := newOrchestratorFixture(t, ProviderRegistry{model.FeatureImage: {p1, p2}}, DispatchPolicy{})

		_, _, err := f.uc.Dispatch(ctx, imageRequest("acct-pro"))
		var all *domain.AllProvidersFailedError
		if !errors.As(err, &all) {
			t.Fatalf("expected AllProvidersFailedError, got %v", err)
		}
	})

	t.Run("free tier voice is denied before providers", func(t *testing.T) {
		p := newFakeProvider("v1", model.FeatureVoice)
		f := newOrchestratorFixture(t, ProviderRegistry{model.FeatureVoice: {p}}, DispatchPolicy{})

		req := &model.GenerationRequest{
			Feature:     model.FeatureVoice,
			RequesterID: "acct-free",
			Voice:       &model.VoiceInput{Text: "hello"},
		}
		_, _, err := f.uc.Dispatch(ctx, req)
		var qe *domain.QuotaExceededError
		if !errors.As(err, &qe) {
			t.Fatalf("expected QuotaExceededError, got %v", err)
		}
		if p.callCount() != 0 {
			t.Error("denied requests must not reach providers")
		}
		if got := f.audits.outcomes(); len(got) != 1 || got[0] != "denied" {
			t.Errorf("audit outcomes = %v, want [denied]", got)
		}
	})

	t.Run("burst limit trips after the configured rate", func(t *testing.T) {
		p := newFakeProvider("p1", model.FeatureImage)
		f := newOrchestratorFixture(t, ProviderRegistry{model.FeatureImage: {p}}, DispatchPolicy{BurstLimitPerMinute: 2})

		for i := 0; i < 2; i++ {
			if _, _, err := f.uc.Dispatch(ctx, imageRequest("acct-pro")); err != nil {
				t.Fatalf("dispatch %d: %v", i, err)
			}
		}
		if _, _, err := f.uc.Dispatch(ctx, imageRequest("acct-pro")); !errors.Is(err, domain.ErrRateLimited) {
			t.Fatalf("expected ErrRateLimited, got %v", err)
		}
	})

	t.Run("burst limiter outage fails open", func(t *testing.T) {
		p := newFakeProvider("p1", model.FeatureImage)
		f := newOrchestratorFixture(t, ProviderRegistry{model.FeatureImage: {p}}, DispatchPolicy{BurstLimitPerMinute: 1})
		f.redis.failAll = true

		if _, _, err := f.uc.Dispatch(ctx, imageRequest("acct-pro")); err != nil {
			t.Fatalf("limiter outage must not block dispatch, got %v", err)
		}
	})
}

func TestOrchestratorDeferral(t *testing.T) {
	ctx := context.Background()

	t.Run("video always defers to the queue", func(t *testing.T) {
		p := newFakeProvider("veo", model.FeatureVideo)
		f := newOrchestratorFixture(t, ProviderRegistry{model.FeatureVideo: {p}}, DispatchPolicy{})

		req := &model.GenerationRequest{
			Feature:     model.FeatureVideo,
			RequesterID: "acct-pro",
			Video:       &model.VideoInput{Script: "welcome"},
		}
		res, job, err := f.uc.Dispatch(ctx, req)
		if err != nil {
			t.Fatalf("dispatch: %v", err)
		}
		if res != nil || job == nil {
			t.Fatal("video must return a queued job, not a result")
		}
		if job.Status != model.JobStatusPending {
			t.Errorf("job status = %s, want pending", job.Status)
		}
		if p.callCount() != 0 {
			t.Error("deferred requests run later, not at submit time")
		}
	})

	t.Run("long voice text defers, short runs inline", func(t *testing.T) {
		p := newFakeProvider("tts", model.FeatureVoice)
		f := newOrchestratorFixture(t, ProviderRegistry{model.FeatureVoice: {p}}, DispatchPolicy{VoiceDeferChars: 10})

		short := &model.GenerationRequest{
			Feature:     model.FeatureVoice,
			RequesterID: "acct-pro",
			Voice:       &model.VoiceInput{Text: "hi there"},
		}
		if _, job, err := f.uc.Dispatch(ctx, short); err != nil || job != nil {
			t.Fatalf("short text should run inline: job=%v err=%v", job, err)
		}

		long := &model.GenerationRequest{
			Feature:     model.FeatureVoice,
			RequesterID: "acct-pro",
			Voice:       &model.VoiceInput{Text: "this text is longer than the threshold"},
		}
		if _, job, err := f.uc.Dispatch(ctx, long); err != nil || job == nil {
			t.Fatalf("long text should defer: job=%v err=%v", job, err)
		}
	})

	t.Run("full queue rejects with queue busy", func(t *testing.T) {
		p := newFakeProvider("veo", model.FeatureVideo)
		f := newOrchestratorFixture(t, ProviderRegistry{model.FeatureVideo: {p}}, DispatchPolicy{MaxPendingJobs: 1})

		req := func(s string) *model.GenerationRequest {
			return &model.GenerationRequest{
				Feature:     model.FeatureVideo,
				RequesterID: "acct-pro",
				Video:       &model.VideoInput{Script: s},
			}
		}
		if _, _, err := f.uc.Dispatch(ctx, req("first")); err != nil {
			t.Fatalf("first: %v", err)
		}
		if _, _, err := f.uc.Dispatch(ctx, req("second")); !errors.Is(err, domain.ErrQueueBusy) {
			t.Fatalf("expected ErrQueueBusy, got %v", err)
		}
	})

	t.Run("deferred job completes exactly once", func(t *testing.T) {
		p := newFakeProvider("veo", model.FeatureVideo)
		f := newOrchestratorFixture(t, ProviderRegistry{model.FeatureVideo: {p}}, DispatchPolicy{})

		req := &model.GenerationRequest{
			Feature:     model.FeatureVideo,
			RequesterID: "acct-pro",
			Video:       &model.VideoInput{Script: "welcome"},
		}
		_, job, err := f.uc.Dispatch(ctx, req)
		if err != nil {
			t.Fatalf("dispatch: %v", err)
		}

		claimed, err := f.jobs.FetchAndMarkProcessing(ctx)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if claimed.ID != job.ID || claimed.Status != model.JobStatusProcessing {
			t.Fatal("claim must return the pending job marked processing")
		}
		// Second claim finds nothing: the job is owned.
		if _, err := f.jobs.FetchAndMarkProcessing(ctx); !errors.Is(err, domain.ErrNotFound) {
			t.Fatal("a processing job must not be claimable again")
		}

		if err := f.uc.ProcessDeferred(ctx, claimed); err != nil {
			t.Fatalf("process: %v", err)
		}
		stored, _ := f.jobs.FindByID(ctx, nil, job.ID)
		if stored.Status != model.JobStatusCompleted {
			t.Errorf("job status = %s, want completed", stored.Status)
		}
		if stored.Result == nil || stored.Result.Provider != "veo" {
			t.Error("completed job must carry its result")
		}
		if stored.FinishedAt == nil {
			t.Error("completed job must carry a finish time")
		}
		// Re-processing a terminal job is a no-op.
		if err := f.uc.ProcessDeferred(ctx, stored); err != nil {
			t.Fatalf("reprocess: %v", err)
		}
		if p.callCount() != 1 {
			t.Errorf("provider called %d times, want 1", p.callCount())
		}
	})

	t.Run("deferred job failure is terminal with the error recorded", func(t *testing.T) {
		p := newFakeProvider("veo", model.FeatureVideo)
		p.generate = func(ctx context.Context, req *model.GenerationRequest) (*model.GenerationResult, error) {
			return nil, &domain.ProviderError{Provider: "veo", Status: 500, Retryable: true, Err: errors.New("render farm down")}
		}
		f := newOrchestratorFixture(t, ProviderRegistry{model.FeatureVideo: {p}}, DispatchPolicy{})

		req := &model.GenerationRequest{
			Feature:     model.FeatureVideo,
			RequesterID: "acct-pro",
			Video:       &model.VideoInput{Script: "welcome"},
		}
		_, job, err := f.uc.Dispatch(ctx, req)
		if err != nil {
			t.Fatalf("dispatch: %v", err)
		}
		claimed, _ := f.jobs.FetchAndMarkProcessing(ctx)
		if err := f.uc.ProcessDeferred(ctx, claimed); err == nil {
			t.Fatal("expected processing error")
		}
		stored, _ := f.jobs.FindByID(ctx, nil, job.ID)
		if stored.Status != model.JobStatusFailed {
			t.Errorf("job status = %s, want failed", stored.Status)
		}
		if stored.LastError == "" {
			t.Error("failed job must record its error")
		}
	})
}
