// Command kbembed backfills embeddings for knowledge base strategies that
// have none. Run it once after seeding new strategies, or after changing the
// embedding model.
package main

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/stridecoach/internal/ai"
	"github.com/briangreenhill/stridecoach/internal/config"
	"github.com/briangreenhill/stridecoach/internal/kb"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "kbembed").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is required")
	}
	if !cfg.HasOpenAI() {
		logger.Fatal().Msg("OPENAI_API_KEY is required to generate embeddings")
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

	store := kb.NewStore(pool)
	if err := store.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("migrate knowledge base")
	}

	embedder := ai.NewOpenAIService(logger, cfg.OpenAI)

	done := 0
	failed := 0
	for {
		missing, err := store.StrategiesMissingEmbeddings(ctx, 50)
		if err != nil {
			logger.Fatal().Err(err).Msg("list strategies missing embeddings")
		}
		if len(missing) == 0 {
			break
		}

		progress := 0
		for _, st := range missing {
			vec, err := embedder.Embed(ctx, st.EmbeddingText())
			if err != nil {
				logger.Warn().Err(err).Str("strategy_id", st.ID.String()).Str("title", st.Title).Msg("embed failed, skipping")
				failed++
				continue
			}
			if err := store.SetEmbedding(ctx, st.ID, vec); err != nil {
				logger.Warn().Err(err).Str("strategy_id", st.ID.String()).Msg("store embedding failed")
				failed++
				continue
			}
			done++
			progress++
			// Stay well clear of embedding rate limits.
			time.Sleep(100 * time.Millisecond)
		}

		// Failed rows stay unembedded; without progress the next round
		// would fetch the same batch again.
		if progress == 0 {
			logger.Error().Int("failed", failed).Msg("no progress this round, stopping")
			break
		}
	}

	logger.Info().Int("embedded", done).Int("failed", failed).Msg("backfill complete")
}
