package exec

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists strategy executions in Postgres
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps a pgx pool
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const executionColumns = `id, user_id, run_id, strategy_id, execution_context,
	strategy_delivered, condition_match_score, outcome_measured, outcome_metrics,
	was_effective, effectiveness_score, effectiveness_reason,
	executed_at, outcome_measured_at`

// Insert creates an execution row at selection time
func (s *Store) Insert(ctx context.Context, e *Execution) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO strategy_executions
		 (id, user_id, run_id, strategy_id, execution_context, strategy_delivered, condition_match_score)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING executed_at`,
		e.ID, e.UserID, e.RunID, e.StrategyID, e.ExecutionContext, e.StrategyDelivered, e.ConditionMatchScore,
	).Scan(&e.ExecutedAt)
	if err != nil {
		return fmt.Errorf("exec: insert execution: %w", err)
	}
	return nil
}

// RecordOutcome marks the execution measured, exactly once. A second call
// for the same id reports an error rather than overwriting the first result.
func (s *Store) RecordOutcome(ctx context.Context, id uuid.UUID, metrics OutcomeMetrics, wasEffective bool, score float64, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE strategy_executions
		 SET outcome_measured = TRUE,
		     outcome_metrics = $2,
		     was_effective = $3,
		     effectiveness_score = $4,
		     effectiveness_reason = $5,
		     outcome_measured_at = now()
		 WHERE id = $1 AND NOT outcome_measured`,
		id, metrics, wasEffective, score, reason)
	if err != nil {
		return fmt.Errorf("exec: record outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("exec: record outcome: execution %s not found or already measured", id)
	}
	return nil
}

// Get retrieves one execution by id
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Execution, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+executionColumns+" FROM strategy_executions WHERE id = $1", id)
	e, err := scanExecution(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("exec: execution not found: %s", id)
		}
		return nil, fmt.Errorf("exec: get execution: %w", err)
	}
	return e, nil
}

// ListByUser returns a user's executions, newest first
func (s *Store) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf("SELECT %s FROM strategy_executions WHERE user_id = $1 ORDER BY executed_at DESC LIMIT %d",
			executionColumns, limit), userID)
	if err != nil {
		return nil, fmt.Errorf("exec: list by user: %w", err)
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("exec: scan execution: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanExecution(row pgx.Row) (*Execution, error) {
	var e Execution
	err := row.Scan(
		&e.ID, &e.UserID, &e.RunID, &e.StrategyID, &e.ExecutionContext,
		&e.StrategyDelivered, &e.ConditionMatchScore, &e.OutcomeMeasured, &e.OutcomeMetrics,
		&e.WasEffective, &e.EffectivenessScore, &e.EffectivenessReason,
		&e.ExecutedAt, &e.OutcomeMeasuredAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
