package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"creative-ai-studio/internal/config"
	"creative-ai-studio/internal/domain/model"
	"creative-ai-studio/internal/domain/ports/adapter"
	"creative-ai-studio/internal/infra/adapters/moderation"
	"creative-ai-studio/internal/infra/adapters/provider"
	"creative-ai-studio/internal/infra/adapters/storage"
	"creative-ai-studio/internal/infra/api"
	pg "creative-ai-studio/internal/infra/db/postgres"
	"creative-ai-studio/internal/infra/logging"
	"creative-ai-studio/internal/infra/metrics"
	red "creative-ai-studio/internal/infra/redis"
	"creative-ai-studio/internal/infra/sched"
	"creative-ai-studio/internal/infra/worker"
	"creative-ai-studio/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop adapters for missing keys)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	dailyCounter := red.NewDailyUsageCounter(redisClient)

	// ---- Storage ----
	var store adapter.BlobStorage
	switch cfg.Storage.Backend {
	case "supabase":
		store, err = storage.NewSupabaseStore(cfg.Storage.SupabaseURL, cfg.Storage.SupabaseKey, cfg.Storage.SupabaseBucket)
	default:
		store, err = storage.NewFileStore(cfg.Storage.BasePath, cfg.Storage.BaseURL)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("storage")
	}

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	jobRepo := pg.NewJobRepo(pool, tm)
	usageRepo := pg.NewUsageRepo(pool)
	accountRepo := pg.NewAccountRepo(pool)
	auditRepo := pg.NewAuditRepo(pool)
	cacheRepo := pg.NewCacheRepoHotDecorator(pg.NewCacheRepo(pool), redisClient, cfg.Cache.HotEntryTTL)

	// ---- Providers ----
	registry, err := buildRegistry(ctx, cfg, store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("providers")
	}

	// ---- Moderation ----
	var mod adapter.ModerationAdapter
	if cfg.Moderation.OpenAIKey != "" {
		mod, err = moderation.NewOpenAIModeration(cfg.Moderation.OpenAIKey, cfg.Moderation.Model, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("moderation")
		}
	} else if cfg.Runtime.Dev {
		logger.Warn().Msg("no moderation key, using noop moderation")
		mod = moderation.NewNoop()
	} else {
		logger.Fatal().Msg("moderation.openai_key is required outside dev mode")
	}

	// ---- Use cases ----
	quotaUC := usecase.NewQuotaUseCase(accountRepo, usageRepo, dailyCounter, logger)
	cacheUC := usecase.NewCacheUseCase(cacheRepo, store, usecase.CachePolicy{
		TTL:           cfg.Cache.TTL,
		MaxTotalBytes: cfg.Cache.MaxTotalBytes,
		EvictFraction: cfg.Cache.EvictFraction,
	}, logger)
	orchestrator := usecase.NewOrchestratorUseCase(registry, mod, quotaUC, cacheUC, jobRepo, auditRepo, rateLimiter, usecase.DispatchPolicy{
		VoiceDeferChars:     cfg.Dispatch.VoiceDeferChars,
		ImageDeferPixels:    cfg.Dispatch.ImageDeferPixels,
		BurstLimitPerMinute: cfg.Dispatch.BurstLimitPerMinute,
		MaxPendingJobs:      cfg.Queue.MaxPending,
		Timeouts: map[model.Feature]time.Duration{
			model.FeatureImage:        cfg.Providers.ImageTimeout,
			model.FeatureVoice:        cfg.Providers.VoiceTimeout,
			model.FeatureVideo:        cfg.Providers.VideoTimeout,
			model.FeatureAdvancedEdit: cfg.Providers.ImageTimeout,
		},
	}, logger)

	// ---- Background workers ----
	pool2 := worker.NewPool(cfg.Queue.Workers, logger)
	pool2.Start(ctx)
	defer pool2.Stop()

	processor := worker.NewJobProcessor(jobRepo, orchestrator, cfg.Queue.PollInterval, logger)
	go processor.Start(ctx, pool2)

	janitor := sched.NewCacheJanitor(cfg.Cache.JanitorInterval, cacheUC, logger)
	go func() { _ = janitor.Run(ctx) }()

	// ---- HTTP server ----
	srv := api.NewServer(orchestrator, quotaUC, cfg.Server.JWTSecret, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Handler(),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}

// buildRegistry assembles the per-feature provider chains from config.
// Each configured order lists provider names; names whose API key is
// missing are skipped. Dev mode substitutes a noop provider for any
// feature left with an empty chain.
func buildRegistry(ctx context.Context, cfg *config.Config, store adapter.BlobStorage, logger *zerolog.Logger) (usecase.ProviderRegistry, error) {
	available := map[string]adapter.GenerationProvider{}

	addProvider := func(name string, build func() (adapter.GenerationProvider, error)) {
		p, err := build()
		if err != nil {
			logger.Warn().Err(err).Str("provider", name).Msg("provider not configured")
			return
		}
		available[name] = provider.WithConcurrencyLimit(p, cfg.Providers.ConcurrentLimit)
	}

	if cfg.Providers.OpenAIKey != "" {
		addProvider("openai-image", func() (adapter.GenerationProvider, error) {
			return provider.NewOpenAIImage(cfg.Providers.OpenAIKey, store)
		})
		addProvider("openai-voice", func() (adapter.GenerationProvider, error) {
			return provider.NewOpenAIVoice(cfg.Providers.OpenAIKey, store)
		})
	}
	if cfg.Providers.StabilityKey != "" {
		addProvider("stability-image", func() (adapter.GenerationProvider, error) {
			return provider.NewStabilityImage(cfg.Providers.StabilityKey, model.FeatureImage, store)
		})
		addProvider("stability-edit", func() (adapter.GenerationProvider, error) {
			return provider.NewStabilityImage(cfg.Providers.StabilityKey, model.FeatureAdvancedEdit, store)
		})
	}
	if cfg.Providers.ElevenKey != "" {
		addProvider("elevenlabs", func() (adapter.GenerationProvider, error) {
			return provider.NewElevenLabsVoice(cfg.Providers.ElevenKey, store)
		})
	}
	if cfg.Providers.GeminiKey != "" {
		addProvider("veo", func() (adapter.GenerationProvider, error) {
			return provider.NewVeoVideo(ctx, cfg.Providers.GeminiKey, cfg.Providers.GeminiBaseURL, cfg.Providers.VeoModel, store)
		})
	}

	registry := usecase.ProviderRegistry{}
	orders := map[model.Feature][]string{
		model.FeatureImage:        cfg.Providers.ImageOrder,
		model.FeatureVoice:        cfg.Providers.VoiceOrder,
		model.FeatureVideo:        cfg.Providers.VideoOrder,
		model.FeatureAdvancedEdit: cfg.Providers.EditOrder,
	}
	for feature, names := range orders {
		for _, name := range names {
			p, ok := available[name]
			if !ok {
				logger.Warn().Str("provider", name).Str("feature", string(feature)).Msg("provider listed but unavailable, skipping")
				continue
			}
			if p.Feature() != feature {
				return nil, fmt.Errorf("provider %s serves %s, listed under %s", name, p.Feature(), feature)
			}
			registry[feature] = append(registry[feature], p)
		}
		if len(registry[feature]) == 0 {
			if !cfg.Runtime.Dev {
				logger.Warn().Str("feature", string(feature)).Msg("no providers configured, feature disabled")
				continue
			}
			registry[feature] = []adapter.GenerationProvider{provider.NewNoop(feature)}
		}
	}
	return registry, nil
}
