// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"interview-orchestrator/internal/config"
	"interview-orchestrator/internal/domain/ports/adapter"
	"interview-orchestrator/internal/domain/ports/repository"
	aiAdapters "interview-orchestrator/internal/infra/adapters/ai"
	"interview-orchestrator/internal/infra/api"
	pg "interview-orchestrator/internal/infra/db/postgres"
	"interview-orchestrator/internal/infra/logging"
	"interview-orchestrator/internal/infra/memory"
	"interview-orchestrator/internal/infra/metrics"
	red "interview-orchestrator/internal/infra/redis"
	"interview-orchestrator/internal/infra/sched"
	"interview-orchestrator/internal/infra/worker"
	"interview-orchestrator/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "run on the in-memory store with the noop AI adapter")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("dev mode enabled: in-memory store, noop AI")
	}

	metrics.MustRegister()

	// ---- Storage ----
	var (
		interviewRepo repository.InterviewRepository
		jobRepo       repository.JobRepository
		tm            repository.TransactionManager
		limiter       *red.RateLimiter
	)
	if cfg.Runtime.Dev {
		store := memory.NewStore()
		interviewRepo = store.Interviews()
		jobRepo = store.Jobs()
		tm = store
	} else {
		pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres")
		}
		defer pool.Close()
		if err := pg.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("schema")
		}
		txm := pg.NewTxManager(pool)

		var jobCache *red.JobCache
		if cfg.Redis.URL != "" {
			redisClient, err := red.NewClient(ctx, &cfg.Redis)
			if err != nil {
				logger.Fatal().Err(err).Msg("redis")
			}
			defer redisClient.Close()
			jobCache = red.NewJobCache(redisClient, cfg.Redis.TTL)
			limiter = red.NewRateLimiter(redisClient)
		}

		interviewRepo = pg.NewInterviewRepo(pool)
		jobRepo = pg.NewJobRepo(pool, txm, jobCache)
		tm = txm
	}

	// ---- AI adapter ----
	var ai adapter.AIServiceAdapter
	switch {
	case cfg.Runtime.Dev:
		ai = aiAdapters.NewNoopAIAdapter(100 * time.Millisecond)
	case cfg.AI.OpenAIKey != "":
		ai, err = aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.DefaultModel, cfg.AI.OpenAIBaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai adapter")
		}
		logger.Info().Str("model", cfg.AI.DefaultModel).Msg("AI adapter: OpenAI-compatible")
	case cfg.AI.GeminiKey != "":
		ai, err = aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.DefaultModel, cfg.AI.MaxOutTokens)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini adapter")
		}
		logger.Info().Str("model", cfg.AI.DefaultModel).Msg("AI adapter: Gemini")
	}
	ai = aiAdapters.NewLimitedAI(ai, cfg.AI.ConcurrentLimit)

	// ---- Facade ----
	uc := usecase.NewInterviewUseCase(interviewRepo, jobRepo, tm, cfg.AI.DefaultModel, cfg.Interview.OpeningQuestion)

	// ---- Workers ----
	pool := worker.NewPool(cfg.Worker.Count, logger)
	pool.Start(ctx)
	defer pool.Stop()

	processor := worker.NewJobProcessor(jobRepo, interviewRepo, tm, ai, cfg.Worker.PollInterval, logger)
	go processor.Start(ctx, pool)

	reaper := sched.NewJobReaper(cfg.Worker.ReapInterval, cfg.Worker.JobTimeout, jobRepo, interviewRepo, tm, logger)
	go func() {
		if err := reaper.Run(ctx); err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("reaper stopped")
		}
	}()

	// ---- HTTP API ----
	server := api.NewServer(uc, limiter, cfg.Server.APIKey, cfg.Server.RatePerMinute, logger)
	go func() {
		if err := server.Start(cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	// ---- Shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
