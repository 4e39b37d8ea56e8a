package usecase

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"creative-ai-studio/internal/domain"
	"creative-ai-studio/internal/domain/model"
)

func TestCacheUseCase(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip serves the stored result and bumps hit count", func(t *testing.T) {
		repo := newMemCacheRepo()
		uc := NewCacheUseCase(repo, &fakeStorage{}, CachePolicy{TTL: time.Hour}, newTestLogger())

		res := &model.GenerationResult{ResultLocation: "mem://r1", Provider: "p1", SizeBytes: 100, CostCents: 5}
		if err := uc.Put(ctx, "k1", res); err != nil {
			t.Fatalf("put: %v", err)
		}
		entry, err := uc.Get(ctx, "k1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if entry.ResultLocation != "mem://r1" || entry.Provider != "p1" {
			t.Error("entry does not match stored result")
		}
		stored, _ := repo.Get(ctx, nil, "k1")
		if stored.HitCount != 1 {
			t.Errorf("hit count not bumped, got %d", stored.HitCount)
		}
	})

	t.Run("expired entry is a miss and is dropped lazily", func(t *testing.T) {
		repo := newMemCacheRepo()
		uc := NewCacheUseCase(repo, &fakeStorage{}, CachePolicy{TTL: time.Hour}, newTestLogger())

		if err := uc.Put(ctx, "k1", &model.GenerationResult{ResultLocation: "mem://r1"}); err != nil {
			t.Fatalf("put: %v", err)
		}
		uc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

		if _, err := uc.Get(ctx, "k1"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected miss for expired entry, got %v", err)
		}
		if _, err := repo.Get(ctx, nil, "k1"); !errors.Is(err, domain.ErrNotFound) {
			t.Error("expired entry should be deleted on read")
		}
	})

	t.Run("cleanup drops only expired rows", func(t *testing.T) {
		repo := newMemCacheRepo()
		uc := NewCacheUseCase(repo, &fakeStorage{}, CachePolicy{TTL: time.Hour}, newTestLogger())

		_ = uc.Put(ctx, "old", &model.GenerationResult{ResultLocation: "mem://old"})
		uc.now = func() time.Time { return time.Now().Add(30 * time.Minute) }
		_ = uc.Put(ctx, "fresh", &model.GenerationResult{ResultLocation: "mem://fresh"})

		uc.now = func() time.Time { return time.Now().Add(90 * time.Minute) }
		n, err := uc.CleanupExpired(ctx)
		if err != nil {
			t.Fatalf("cleanup: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 expired row, got %d", n)
		}
		if _, err := repo.Get(ctx, nil, "fresh"); err != nil {
			t.Error("fresh entry must survive cleanup")
		}
	})

	t.Run("size eviction removes least recently accessed first", func(t *testing.T) {
		repo := newMemCacheRepo()
		store := &fakeStorage{}
		uc := NewCacheUseCase(repo, store, CachePolicy{TTL: 24 * time.Hour, MaxTotalBytes: 250, EvictFraction: 0.5}, newTestLogger())

		base := time.Now()
		for i, k := range []string{"a", "b", "c"} {
			at := base.Add(time.Duration(i) * time.Minute)
			uc.now = func() time.Time { return at }
			if err := uc.Put(ctx, k, &model.GenerationResult{ResultLocation: "mem://" + k, SizeBytes: 100}); err != nil {
				t.Fatalf("put %s: %v", k, err)
			}
		}

		uc.now = func() time.Time { return base.Add(time.Hour) }
		if err := uc.Optimize(ctx); err != nil {
			t.Fatalf("optimize: %v", err)
		}

		// total 300 > 250; evicting half the bytes drops the two oldest
		if _, err := repo.Get(ctx, nil, "a"); !errors.Is(err, domain.ErrNotFound) {
			t.Error("oldest entry should have been evicted")
		}
		if _, err := repo.Get(ctx, nil, "c"); err != nil {
			t.Error("newest entry should survive eviction")
		}
		if len(store.deleted) == 0 {
			t.Error("evicted blobs should be deleted from storage")
		}
	})

	t.Run("size eviction reaches the target across victim batches", func(t *testing.T) {
		repo := newMemCacheRepo()
		uc := NewCacheUseCase(repo, &fakeStorage{}, CachePolicy{TTL: 24 * time.Hour, MaxTotalBytes: 100, EvictFraction: 0.6}, newTestLogger())

		// 250 one-byte entries: the 150-byte target spans more than one
		// 100-row victim batch.
		base := time.Now()
		for i := 0; i < 250; i++ {
			at := base.Add(time.Duration(i) * time.Second)
			uc.now = func() time.Time { return at }
			if err := uc.Put(ctx, "k"+strconv.Itoa(i), &model.GenerationResult{ResultLocation: "mem://k", SizeBytes: 1}); err != nil {
				t.Fatalf("put %d: %v", i, err)
			}
		}

		uc.now = func() time.Time { return base.Add(time.Hour) }
		if err := uc.Optimize(ctx); err != nil {
			t.Fatalf("optimize: %v", err)
		}

		left, err := repo.TotalSize(ctx, nil)
		if err != nil {
			t.Fatalf("total size: %v", err)
		}
		if left != 100 {
			t.Errorf("one pass must free the full target, %d bytes left, want 100", left)
		}
		if _, err := repo.Get(ctx, nil, "k0"); !errors.Is(err, domain.ErrNotFound) {
			t.Error("oldest entry must be evicted first")
		}
		if _, err := repo.Get(ctx, nil, "k249"); err != nil {
			t.Error("newest entry must survive")
		}
	})

	t.Run("optimize is a no-op under the ceiling", func(t *testing.T) {
		repo := newMemCacheRepo()
		uc := NewCacheUseCase(repo, &fakeStorage{}, CachePolicy{TTL: time.Hour, MaxTotalBytes: 1 << 20}, newTestLogger())

		_ = uc.Put(ctx, "k", &model.GenerationResult{ResultLocation: "mem://k", SizeBytes: 10})
		if err := uc.Optimize(ctx); err != nil {
			t.Fatalf("optimize: %v", err)
		}
		if _, err := repo.Get(ctx, nil, "k"); err != nil {
			t.Error("entry must not be evicted under the ceiling")
		}
	})
}
