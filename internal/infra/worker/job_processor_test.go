package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"creative-ai-studio/internal/domain"
	"creative-ai-studio/internal/domain/model"
	"creative-ai-studio/internal/domain/ports/repository"
)

type fakeJobRepo struct {
	mu      sync.Mutex
	pending []*model.GenerationJob
	saved   []*model.GenerationJob
}

func (f *fakeJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.GenerationJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *job
	f.saved = append(f.saved, &cp)
	return nil
}

func (f *fakeJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.GenerationJob, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeJobRepo) FetchAndMarkProcessing(ctx context.Context) (*model.GenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return nil, domain.ErrNotFound
	}
	job := f.pending[0]
	f.pending = f.pending[1:]
	job.Status = model.JobStatusProcessing
	return job, nil
}

func (f *fakeJobRepo) CountByStatus(ctx context.Context, tx repository.Tx, status model.JobStatus) (int, error) {
	return len(f.pending), nil
}

type fakeOrchestrator struct {
	mu        sync.Mutex
	processed []string
}

func (f *fakeOrchestrator) Dispatch(ctx context.Context, req *model.GenerationRequest) (*model.GenerationResult, *model.GenerationJob, error) {
	return nil, nil, nil
}

func (f *fakeOrchestrator) ProcessDeferred(ctx context.Context, job *model.GenerationJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, job.ID)
	job.Status = model.JobStatusCompleted
	return nil
}

func (f *fakeOrchestrator) GetJob(ctx context.Context, id string) (*model.GenerationJob, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeOrchestrator) History(ctx context.Context, accountID string, limit int) ([]*model.GenerationAudit, error) {
	return nil, nil
}

func TestJobProcessorDrainsQueue(t *testing.T) {
	logger := zerolog.Nop()
	repo := &fakeJobRepo{
		pending: []*model.GenerationJob{
			{ID: "job-1", Status: model.JobStatusPending},
			{ID: "job-2", Status: model.JobStatusPending},
		},
	}
	orch := &fakeOrchestrator{}
	proc := NewJobProcessor(repo, orch, 5*time.Millisecond, &logger)

	pool := NewPool(2, &logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	go proc.Start(ctx, pool)

	deadline := time.After(2 * time.Second)
	for {
		orch.mu.Lock()
		done := len(orch.processed)
		orch.mu.Unlock()
		if done == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("queue not drained, processed %d of 2", done)
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	pool.Stop()

	seen := map[string]int{}
	for _, id := range orch.processed {
		seen[id]++
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("job %s processed %d times, want exactly once", id, n)
		}
	}
}

func TestPoolDropsWhenSaturated(t *testing.T) {
	logger := zerolog.Nop()
	pool := NewPool(1, &logger)
	// Not started: nothing drains the buffer, so submits past the buffer
	// size must be rejected rather than block.
	var errs int
	for i := 0; i < 10; i++ {
		if err := pool.Submit(func(ctx context.Context) error { return nil }); err != nil {
			errs++
		}
	}
	if errs == 0 {
		t.Error("saturated pool must reject submissions")
	}
}

func TestPoolRejectsNilTask(t *testing.T) {
	logger := zerolog.Nop()
	pool := NewPool(1, &logger)
	if err := pool.Submit(nil); err == nil {
		t.Error("nil task must be rejected")
	}
}
