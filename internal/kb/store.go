package kb

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

//go:embed schema.sql
var schemaSQL string

// Store persists strategies in Postgres with pgvector similarity search
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps a pgx pool
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies the knowledge base schema
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("kb: migrate: %w", err)
	}
	return nil
}

const strategyColumns = `id, title, strategy_text, conditions_to_use, when_not_to_use,
	distance_category, strategy_type, runner_level,
	times_used, times_successful,
	CASE WHEN times_used > 0 THEN times_successful::double precision / times_used ELSE 0 END,
	avg_effectiveness_score, active, created_at, updated_at`

// Insert stores a new strategy row, generating an id when absent
func (s *Store) Insert(ctx context.Context, st *Strategy) error {
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}

	var emb any
	if len(st.Embedding) > 0 {
		emb = pgvector.NewVector(st.Embedding)
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO coaching_strategies
		 (id, title, strategy_text, conditions_to_use, when_not_to_use,
		  distance_category, strategy_type, runner_level, embedding, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE)`,
		st.ID, st.Title, st.StrategyText, st.ConditionsToUse, st.WhenNotToUse,
		st.Distance, st.Type, st.RunnerLevel, emb,
	)
	if err != nil {
		return fmt.Errorf("kb: insert strategy: %w", err)
	}
	return nil
}

// Get retrieves one strategy by id
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Strategy, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+strategyColumns+" FROM coaching_strategies WHERE id = $1", id)
	st, err := scanStrategy(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("kb: strategy not found: %s", id)
		}
		return nil, fmt.Errorf("kb: get strategy: %w", err)
	}
	return st, nil
}

// QueryByCategory returns active strategies for a distance category and
// runner level, best success rate first. Purely categorical, no vector math.
// A zero-value strategyType matches both core and micro.
func (s *Store) QueryByCategory(ctx context.Context, distance DistanceCategory, level RunnerLevel, strategyType StrategyType, limit int) ([]Strategy, error) {
	if limit <= 0 {
		limit = 15
	}

	where := "WHERE active AND distance_category = $1 AND runner_level = $2"
	args := []any{distance, level}
	if strategyType != "" {
		where += " AND strategy_type = $3"
		args = append(args, strategyType)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM coaching_strategies %s
		 ORDER BY CASE WHEN times_used > 0 THEN times_successful::double precision / times_used ELSE 0 END DESC,
		          times_used DESC
		 LIMIT %d`, strategyColumns, where, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("kb: query by category: %w", err)
	}
	defer rows.Close()

	return scanStrategies(rows)
}

// VectorSearch returns active strategies whose embedding cosine similarity
// against the query vector clears the threshold, most similar first, with
// the same categorical filters as QueryByCategory.
func (s *Store) VectorSearch(ctx context.Context, queryEmbedding []float32, threshold float64, limit int, distance DistanceCategory, level RunnerLevel, strategyType StrategyType) ([]Strategy, error) {
	if limit <= 0 {
		limit = 15
	}

	conds := []string{"active", "embedding IS NOT NULL", "distance_category = $2", "runner_level = $3"}
	args := []any{pgvector.NewVector(queryEmbedding), distance, level}
	if strategyType != "" {
		conds = append(conds, fmt.Sprintf("strategy_type = $%d", len(args)+1))
		args = append(args, strategyType)
	}
	conds = append(conds, fmt.Sprintf("1 - (embedding <=> $1) >= $%d", len(args)+1))
	args = append(args, threshold)

	query := fmt.Sprintf(
		`SELECT %s, 1 - (embedding <=> $1) AS similarity
		 FROM coaching_strategies
		 WHERE %s
		 ORDER BY similarity DESC
		 LIMIT %d`, strategyColumns, strings.Join(conds, " AND "), limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("kb: vector search: %w", err)
	}
	defer rows.Close()

	var out []Strategy
	for rows.Next() {
		st, err := scanStrategyWithSimilarity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

// RecordUsage atomically increments times_used for a strategy. The increment
// happens inside the UPDATE so concurrent executions never lose updates.
func (s *Store) RecordUsage(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE coaching_strategies
		 SET times_used = times_used + 1, updated_at = now()
		 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("kb: record usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("kb: record usage: strategy not found: %s", id)
	}
	return nil
}

// RecordSuccess atomically folds an outcome into the strategy's rolling
// statistics: times_successful counts effective outcomes only, and the
// effectiveness average is updated as an incremental mean over times_used.
// The whole read-modify-write runs inside a single UPDATE.
func (s *Store) RecordSuccess(ctx context.Context, id uuid.UUID, wasEffective bool, effectivenessScore float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE coaching_strategies
		 SET times_successful = times_successful + CASE WHEN $2 THEN 1 ELSE 0 END,
		     avg_effectiveness_score = CASE
		         WHEN times_used > 0 THEN (avg_effectiveness_score * (times_used - 1) + $3) / times_used
		         ELSE $3
		     END,
		     updated_at = now()
		 WHERE id = $1`, id, wasEffective, effectivenessScore)
	if err != nil {
		return fmt.Errorf("kb: record success: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("kb: record success: strategy not found: %s", id)
	}
	return nil
}

// Deactivate retires a strategy. Strategies are never deleted.
func (s *Store) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE coaching_strategies SET active = FALSE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("kb: deactivate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("kb: deactivate: strategy not found: %s", id)
	}
	return nil
}

// StrategiesMissingEmbeddings lists active strategies without a stored vector
func (s *Store) StrategiesMissingEmbeddings(ctx context.Context, limit int) ([]Strategy, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf("SELECT %s FROM coaching_strategies WHERE active AND embedding IS NULL LIMIT %d",
			strategyColumns, limit))
	if err != nil {
		return nil, fmt.Errorf("kb: list missing embeddings: %w", err)
	}
	defer rows.Close()

	return scanStrategies(rows)
}

// SetEmbedding stores a freshly generated embedding for a strategy
func (s *Store) SetEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE coaching_strategies SET embedding = $2, updated_at = now() WHERE id = $1`,
		id, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("kb: set embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("kb: set embedding: strategy not found: %s", id)
	}
	return nil
}

// UserTopStrategies aggregates which strategies worked best for one runner,
// from their measured execution history.
func (s *Store) UserTopStrategies(ctx context.Context, userID uuid.UUID, limit int) ([]UserTopStrategy, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT cs.id, cs.title, COUNT(*),
		        AVG(CASE WHEN se.was_effective THEN 1.0 ELSE 0.0 END)
		 FROM strategy_executions se
		 JOIN coaching_strategies cs ON cs.id = se.strategy_id
		 WHERE se.user_id = $1 AND se.outcome_measured
		 GROUP BY cs.id, cs.title
		 ORDER BY AVG(CASE WHEN se.was_effective THEN 1.0 ELSE 0.0 END) DESC, COUNT(*) DESC
		 LIMIT %d`, limit), userID)
	if err != nil {
		return nil, fmt.Errorf("kb: user top strategies: %w", err)
	}
	defer rows.Close()

	var out []UserTopStrategy
	for rows.Next() {
		var t UserTopStrategy
		if err := rows.Scan(&t.StrategyID, &t.Title, &t.TimesUsed, &t.UserSuccessRate); err != nil {
			return nil, fmt.Errorf("kb: scan user top strategy: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanStrategy(row pgx.Row) (*Strategy, error) {
	var st Strategy
	err := row.Scan(
		&st.ID, &st.Title, &st.StrategyText, &st.ConditionsToUse, &st.WhenNotToUse,
		&st.Distance, &st.Type, &st.RunnerLevel,
		&st.TimesUsed, &st.TimesSuccessful, &st.SuccessRate,
		&st.AvgEffectivenessScore, &st.Active, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func scanStrategyWithSimilarity(rows pgx.Rows) (*Strategy, error) {
	var st Strategy
	err := rows.Scan(
		&st.ID, &st.Title, &st.StrategyText, &st.ConditionsToUse, &st.WhenNotToUse,
		&st.Distance, &st.Type, &st.RunnerLevel,
		&st.TimesUsed, &st.TimesSuccessful, &st.SuccessRate,
		&st.AvgEffectivenessScore, &st.Active, &st.CreatedAt, &st.UpdatedAt,
		&st.Similarity,
	)
	if err != nil {
		return nil, fmt.Errorf("kb: scan search result: %w", err)
	}
	return &st, nil
}

func scanStrategies(rows pgx.Rows) ([]Strategy, error) {
	var out []Strategy
	for rows.Next() {
		st, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("kb: scan strategy: %w", err)
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}
