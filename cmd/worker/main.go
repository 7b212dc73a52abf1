package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/stridecoach/internal/config"
	"github.com/briangreenhill/stridecoach/internal/evaluator"
	"github.com/briangreenhill/stridecoach/internal/exec"
	"github.com/briangreenhill/stridecoach/internal/jobs"
	"github.com/briangreenhill/stridecoach/internal/kb"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "worker").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database url")
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to database")
	}
	defer pool.Close()

	kbStore := kb.NewStore(pool)
	execStore := exec.NewStore(pool)
	eval := evaluator.New(logger, execStore, kbStore, cfg.Coaching.EffectivenessThreshold)

	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, asynq.Config{
		Concurrency: 8,
		Queues: map[string]int{
			"record":  10, // execution rows feed the learning loop, drain first
			"default": 5,
		},
	})
	mux := asynq.NewServeMux()

	mux.HandleFunc(jobs.TaskRecordExecution, func(ctx context.Context, t *asynq.Task) error {
		var p jobs.RecordExecutionPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			logger.Error().Err(err).Msg("bad record payload, dropping")
			return nil
		}

		e := &exec.Execution{
			ID:                  p.ID,
			UserID:              p.UserID,
			RunID:               p.RunID,
			StrategyID:          p.StrategyID,
			ExecutionContext:    p.ExecutionContext,
			StrategyDelivered:   p.StrategyDelivered,
			ConditionMatchScore: p.ConditionMatchScore,
		}
		start := time.Now()
		if err := execStore.Insert(ctx, e); err != nil {
			if isDuplicate(err) {
				// A prior attempt (or the direct-write fallback) already
				// landed this row.
				logger.Debug().Str("execution_id", p.ID.String()).Msg("execution already recorded")
				return nil
			}
			logger.Warn().Err(err).Str("execution_id", p.ID.String()).Msg("insert execution failed")
			return err
		}
		if p.StrategyID != nil {
			if err := kbStore.RecordUsage(ctx, *p.StrategyID); err != nil {
				logger.Warn().Err(err).Str("strategy_id", p.StrategyID.String()).Msg("usage counter update failed")
			}
		}
		logger.Info().
			Str("execution_id", p.ID.String()).
			Dur("duration", time.Since(start)).
			Msg("execution recorded")
		return nil
	})

	mux.HandleFunc(jobs.TaskEvaluateOutcome, func(ctx context.Context, t *asynq.Task) error {
		var p jobs.EvaluateOutcomePayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			logger.Error().Err(err).Msg("bad evaluation payload, dropping")
			return nil
		}

		_, err := eval.Evaluate(ctx, p.ExecutionID, p.Before, p.After)
		if err != nil {
			if strings.Contains(err.Error(), "already measured") {
				return nil
			}
			if strings.Contains(err.Error(), "not found") {
				// Execution row may still be in the record queue; retry.
				logger.Debug().Str("execution_id", p.ExecutionID.String()).Msg("execution not recorded yet, retrying")
				return err
			}
			logger.Warn().Err(err).Str("execution_id", p.ExecutionID.String()).Msg("evaluation failed")
			return err
		}
		return nil
	})

	logger.Info().Msg("worker running")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped")
	}
}

func isDuplicate(err error) bool {
	return strings.Contains(err.Error(), "duplicate key")
}
