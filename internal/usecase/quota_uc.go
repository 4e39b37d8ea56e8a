package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"creative-ai-studio/internal/domain"
	"creative-ai-studio/internal/domain/model"
	"creative-ai-studio/internal/domain/ports/repository"
	"creative-ai-studio/internal/infra/logging"
	"creative-ai-studio/internal/infra/metrics"
	"creative-ai-studio/internal/infra/redis"
)

// QuotaUseCase is the entitlement gate. Checks read current usage and
// compare against the static tier table; tracking records consumption
// after a successful generation. Check and track are deliberately not one
// atomic step: the counters themselves are atomic, and a request that
// slips through between check and track overshoots a ceiling by at most
// the in-flight window.
type QuotaUseCase interface {
	// CanAccessFeature answers whether the tier includes the feature at
	// all, independent of how much has been used.
	CanAccessFeature(ctx context.Context, accountID string, feature model.Feature) error

	// CheckQuota verifies every applicable ceiling in order: monthly
	// count, monthly cost (with the estimate added), then daily count.
	CheckQuota(ctx context.Context, accountID string, feature model.Feature, estCostCents int64) error

	// MaxPerRequest returns the tier's batch-size ceiling for one request.
	MaxPerRequest(ctx context.Context, accountID string, feature model.Feature) (int, error)

	// TrackUsage records one successful generation and its actual cost.
	TrackUsage(ctx context.Context, accountID string, feature model.Feature, costCents int64) error

	GetUsageStats(ctx context.Context, accountID string, feature model.Feature) (*model.UsageStats, error)
}

var _ QuotaUseCase = (*quotaUseCase)(nil)

type quotaUseCase struct {
	accounts repository.AccountRepository
	usage    repository.UsageRepository
	daily    *redis.DailyUsageCounter
	log      *zerolog.Logger
	now      func() time.Time
}

func NewQuotaUseCase(
	accounts repository.AccountRepository,
	usage repository.UsageRepository,
	daily *redis.DailyUsageCounter,
	log *zerolog.Logger,
) *quotaUseCase {
	return &quotaUseCase{
		accounts: accounts,
		usage:    usage,
		daily:    daily,
		log:      log,
		now:      time.Now,
	}
}

func (q *quotaUseCase) limitFor(ctx context.Context, accountID string, feature model.Feature) (model.FeatureLimit, error) {
	acc, err := q.accounts.FindByID(ctx, nil, accountID)
	if err != nil {
		return model.FeatureLimit{}, err
	}
	return model.LimitFor(acc.Tier, feature), nil
}

func (q *quotaUseCase) CanAccessFeature(ctx context.Context, accountID string, feature model.Feature) error {
	limit, err := q.limitFor(ctx, accountID, feature)
	if err != nil {
		return err
	}
	if limit.MonthlyCount == 0 {
		_, end := model.CurrentPeriod(q.now())
		metrics.IncQuotaDenial(string(feature), "tier")
		return &domain.QuotaExceededError{Reason: "feature not included in current tier", ResetAt: end}
	}
	return nil
}

func (q *quotaUseCase) CheckQuota(ctx context.Context, accountID string, feature model.Feature, estCostCents int64) error {
	limit, err := q.limitFor(ctx, accountID, feature)
	if err != nil {
		return err
	}
	now := q.now()
	start, end := model.CurrentPeriod(now)

	if limit.MonthlyCount == 0 {
		metrics.IncQuotaDenial(string(feature), "tier")
		return &domain.QuotaExceededError{Reason: "feature not included in current tier", ResetAt: end}
	}

	rec, err := q.usage.Find(ctx, nil, accountID, feature, start)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	var used, cost int64
	if rec != nil {
		used, cost = rec.UsageCount, rec.TotalCostCents
	}

	if used >= limit.MonthlyCount {
		metrics.IncQuotaDenial(string(feature), "monthly_count")
		return &domain.QuotaExceededError{Reason: "monthly generation limit reached", ResetAt: end}
	}
	if limit.MonthlyCostCeilingCents > 0 && cost+estCostCents > limit.MonthlyCostCeilingCents {
		metrics.IncQuotaDenial(string(feature), "monthly_cost")
		return &domain.QuotaExceededError{Reason: "monthly cost ceiling reached", ResetAt: end}
	}

	if limit.DailyCount > 0 {
		today, err := q.daily.Get(ctx, accountID, string(feature), now)
		if err != nil {
			// The durable monthly gate already passed; a counter outage
			// must not take generation down with it.
			logging.With(ctx, q.log).Warn().Err(err).Msg("daily counter unavailable, skipping daily ceiling")
		} else if today >= limit.DailyCount {
			metrics.IncQuotaDenial(string(feature), "daily_count")
			return &domain.QuotaExceededError{Reason: "daily generation limit reached", ResetAt: model.NextDayUTC(now)}
		}
	}
	return nil
}

func (q *quotaUseCase) MaxPerRequest(ctx context.Context, accountID string, feature model.Feature) (int, error) {
	limit, err := q.limitFor(ctx, accountID, feature)
	if err != nil {
		return 0, err
	}
	return limit.PerRequest, nil
}

func (q *quotaUseCase) TrackUsage(ctx context.Context, accountID string, feature model.Feature, costCents int64) error {
	now := q.now()
	start, end := model.CurrentPeriod(now)
	if err := q.usage.Accumulate(ctx, nil, accountID, feature, start, end, costCents); err != nil {
		return err
	}
	if err := q.daily.Incr(ctx, accountID, string(feature), now); err != nil {
		logging.With(ctx, q.log).Warn().Err(err).Msg("daily counter increment failed")
	}
	return nil
}

func (q *quotaUseCase) GetUsageStats(ctx context.Context, accountID string, feature model.Feature) (*model.UsageStats, error) {
	limit, err := q.limitFor(ctx, accountID, feature)
	if err != nil {
		return nil, err
	}
	now := q.now()
	start, end := model.CurrentPeriod(now)

	rec, err := q.usage.Find(ctx, nil, accountID, feature, start)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	stats := &model.UsageStats{
		AccountID:      accountID,
		Feature:        feature,
		Limit:          limit.MonthlyCount,
		CostLimitCents: limit.MonthlyCostCeilingCents,
		ResetAt:        end,
	}
	if rec != nil {
		stats.Used = rec.UsageCount
		stats.CostUsedCents = rec.TotalCostCents
	}

	stats.Remaining = limit.MonthlyCount - stats.Used
	if stats.Remaining < 0 {
		stats.Remaining = 0
	}
	if limit.DailyCount > 0 {
		stats.DailyLimit = limit.DailyCount
		today, derr := q.daily.Get(ctx, accountID, string(feature), now)
		if derr != nil {
			// Remaining falls back to the monthly figure alone.
			logging.With(ctx, q.log).Warn().Err(derr).Msg("daily counter unavailable for stats")
		} else {
			stats.DailyUsed = today
			if rem := limit.DailyCount - today; rem < stats.Remaining {
				if rem < 0 {
					rem = 0
				}
				stats.Remaining = rem
			}
		}
	}
	return stats, nil
}
