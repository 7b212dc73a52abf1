package main

import (
	"context"
	"net/http"
	"os"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/stridecoach/internal/ai"
	"github.com/briangreenhill/stridecoach/internal/config"
	"github.com/briangreenhill/stridecoach/internal/engine"
	"github.com/briangreenhill/stridecoach/internal/exec"
	"github.com/briangreenhill/stridecoach/internal/http/routes"
	"github.com/briangreenhill/stridecoach/internal/kb"
	"github.com/briangreenhill/stridecoach/internal/memory"
	"github.com/briangreenhill/stridecoach/internal/recorder"
	"github.com/briangreenhill/stridecoach/internal/scheduler"
	"github.com/briangreenhill/stridecoach/internal/telemetry"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database url")
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to database")
	}
	defer pool.Close()

	kbStore := kb.NewStore(pool)
	if err := kbStore.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("migrate knowledge base")
	}
	execStore := exec.NewStore(pool)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn().Err(err).Msg("close asynq client")
		}
	}()

	aiSvc := ai.NewOpenAIService(logger, cfg.OpenAI)
	if !cfg.HasOpenAI() {
		logger.Warn().Msg("no OpenAI key configured, running on fallback selection only")
	}

	var mem memory.Service
	if c := memory.NewClient(logger, cfg.Memory); c != nil {
		mem = c
	} else {
		logger.Info().Msg("memory service not configured, personalization disabled")
	}

	retriever := engine.NewRetriever(logger, kbStore, aiSvc, cfg.Coaching)
	matcher := engine.NewMatcher(logger, aiSvc)
	rec := recorder.New(logger, asynqClient, execStore, kbStore)
	eng := engine.New(logger, retriever, matcher, rec)

	loader := scheduler.NewLoader(logger, mem, kbStore)
	outcomes := scheduler.NewAsynqOutcomeQueue(asynqClient)
	sessions := scheduler.NewManager(logger, eng, outcomes, loader, scheduler.Config{
		FrequencyKm:     cfg.Scheduler.FeedbackFrequencyKm,
		DeliveryCeiling: cfg.Scheduler.DeliveryCeiling,
		Telemetry:       telemetry.Options{PaceTolerancePct: cfg.Coaching.PaceTolerancePct},
	})

	s := routes.New(routes.ServerOptions{Sessions: sessions, Outcomes: outcomes, Logger: logger})

	logger.Info().Str("port", cfg.Port).Msg("starting api")
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: s.Router}
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}
