package usecase

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"creative-ai-studio/internal/domain"
	"creative-ai-studio/internal/domain/model"
	"creative-ai-studio/internal/domain/ports/adapter"
	"creative-ai-studio/internal/domain/ports/repository"
	red "creative-ai-studio/internal/infra/redis"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// memAccountRepo is a small in-memory implementation used by unit tests.
type memAccountRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Account
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{store: make(map[string]*model.Account)}
}

func (m *memAccountRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAccountRepo) Save(ctx context.Context, tx repository.Tx, a *model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.store[a.ID] = &cp
	return nil
}

type usageKey struct {
	account string
	feature model.Feature
	period  time.Time
}

type memUsageRepo struct {
	mu    sync.RWMutex
	store map[usageKey]*model.UsageRecord
}

func newMemUsageRepo() *memUsageRepo {
	return &memUsageRepo{store: make(map[usageKey]*model.UsageRecord)}
}

func (m *memUsageRepo) Find(ctx context.Context, tx repository.Tx, accountID string, feature model.Feature, periodStart time.Time) (*model.UsageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.store[usageKey{accountID, feature, periodStart}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memUsageRepo) Accumulate(ctx context.Context, tx repository.Tx, accountID string, feature model.Feature, periodStart, periodEnd time.Time, costCents int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := usageKey{accountID, feature, periodStart}
	r, ok := m.store[k]
	if !ok {
		r = &model.UsageRecord{AccountID: accountID, Feature: feature, PeriodStart: periodStart, PeriodEnd: periodEnd}
		m.store[k] = r
	}
	r.UsageCount++
	r.TotalCostCents += costCents
	r.UpdatedAt = time.Now()
	return nil
}

type memJobRepo struct {
	mu    sync.Mutex
	store map[string]*model.GenerationJob
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{store: make(map[string]*model.GenerationJob)}
}

func (m *memJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.GenerationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.store[job.ID] = &cp
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) FetchAndMarkProcessing(ctx context.Context) (*model.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []*model.GenerationJob
	for _, j := range m.store {
		if j.Status == model.JobStatusPending {
			pending = append(pending, j)
		}
	}
	if len(pending) == 0 {
		return nil, domain.ErrNotFound
	}
	sort.Slice(pending, func(a, b int) bool {
		if pending[a].Priority != pending[b].Priority {
			return pending[a].Priority > pending[b].Priority
		}
		return pending[a].SubmittedAt.Before(pending[b].SubmittedAt)
	})
	j := pending[0]
	j.Status = model.JobStatusProcessing
	now := time.Now()
	j.StartedAt = &now
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) CountByStatus(ctx context.Context, tx repository.Tx, status model.JobStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, j := range m.store {
		if j.Status == status {
			n++
		}
	}
	return n, nil
}

type memCacheRepo struct {
	mu    sync.Mutex
	store map[string]*model.CacheEntry
}

func newMemCacheRepo() *memCacheRepo {
	return &memCacheRepo{store: make(map[string]*model.CacheEntry)}
}

func (m *memCacheRepo) Get(ctx context.Context, tx repository.Tx, key string) (*model.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.store[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memCacheRepo) Put(ctx context.Context, tx repository.Tx, e *model.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.store[e.Key] = &cp
	return nil
}

func (m *memCacheRepo) Delete(ctx context.Context, tx repository.Tx, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.store, k)
	}
	return nil
}

func (m *memCacheRepo) Touch(ctx context.Context, tx repository.Tx, key string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.store[key]; ok {
		e.HitCount++
		e.LastAccessAt = at
	}
	return nil
}

func (m *memCacheRepo) DeleteExpired(ctx context.Context, tx repository.Tx, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, e := range m.store {
		if e.Expired(now) {
			delete(m.store, k)
			n++
		}
	}
	return n, nil
}

func (m *memCacheRepo) TotalSize(ctx context.Context, tx repository.Tx) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, e := range m.store {
		total += e.SizeBytes
	}
	return total, nil
}

func (m *memCacheRepo) ListOldestAccessed(ctx context.Context, tx repository.Tx, limit int) ([]*model.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.CacheEntry
	for _, e := range m.store {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].LastAccessAt.Before(out[b].LastAccessAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memAuditRepo struct {
	mu   sync.Mutex
	rows []*model.GenerationAudit
}

func newMemAuditRepo() *memAuditRepo { return &memAuditRepo{} }

func (m *memAuditRepo) Save(ctx context.Context, tx repository.Tx, a *model.GenerationAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *memAuditRepo) ListByAccount(ctx context.Context, tx repository.Tx, accountID string, limit int) ([]*model.GenerationAudit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.GenerationAudit
	for _, r := range m.rows {
		if r.AccountID == accountID {
			cp := *r
			out = append(out, &cp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memAuditRepo) outcomes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, r := range m.rows {
		out = append(out, r.Outcome)
	}
	return out
}

// fakeRedis backs the daily counter and rate limiter in tests.
type fakeRedis struct {
	mu      sync.Mutex
	kv      map[string]string
	counts  map[string]int64
	failAll bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{kv: map[string]string{}, counts: map[string]int64{}}
}

func (f *fakeRedis) Ping(ctx context.Context) error { return nil }

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errFakeRedisDown
	}
	if s, ok := value.(string); ok {
		f.kv[key] = s
	}
	return nil
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return "", errFakeRedisDown
	}
	if n, ok := f.counts[key]; ok {
		return strconv.FormatInt(n, 10), nil
	}
	v, ok := f.kv[key]
	if !ok {
		return "", red.Nil
	}
	return v, nil
}

func (f *fakeRedis) Incr(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return 0, errFakeRedisDown
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeRedis) Expire(ctx context.Context, key string, expiration time.Duration) error {
	if f.failAll {
		return errFakeRedisDown
	}
	return nil
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.kv, k)
		delete(f.counts, k)
	}
	return nil
}

func (f *fakeRedis) Close() error { return nil }

var errFakeRedisDown = domain.ErrOperationFailed

// fakeProvider lets each test script provider behavior per call.
type fakeProvider struct {
	name      string
	feature   model.Feature
	available bool
	cost      int64
	mu        sync.Mutex
	calls     int
	generate  func(ctx context.Context, req *model.GenerationRequest) (*model.GenerationResult, error)
}

func newFakeProvider(name string, feature model.Feature) *fakeProvider {
	return &fakeProvider{
		name:      name,
		feature:   feature,
		available: true,
		cost:      5,
		generate: func(ctx context.Context, req *model.GenerationRequest) (*model.GenerationResult, error) {
			return &model.GenerationResult{
				ResultLocation: "https://cdn.example/" + name + "/result",
				Provider:       name,
				CostCents:      5,
				ContentType:    "image/png",
				SizeBytes:      1024,
			}, nil
		},
	}
}

func (f *fakeProvider) Name() string                       { return f.name }
func (f *fakeProvider) Feature() model.Feature             { return f.feature }
func (f *fakeProvider) IsAvailable(_ context.Context) bool { return f.available }

func (f *fakeProvider) EstimateCost(req *model.GenerationRequest) (int64, error) {
	return f.cost, nil
}

func (f *fakeProvider) Generate(ctx context.Context, req *model.GenerationRequest) (*model.GenerationResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.generate(ctx, req)
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeModeration returns a scripted verdict.
type fakeModeration struct {
	verdict adapter.Verdict
}

func (f *fakeModeration) ModerateText(_ context.Context, _ string) adapter.Verdict {
	return f.verdict
}

func (f *fakeModeration) ModerateImage(_ context.Context, _ string) adapter.Verdict {
	return f.verdict
}

// fakeStorage records deletions so eviction tests can assert on them.
type fakeStorage struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeStorage) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	return "mem://" + path, nil
}

func (f *fakeStorage) Delete(ctx context.Context, paths ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, paths...)
	return nil
}
