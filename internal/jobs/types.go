package jobs

import (
	"github.com/google/uuid"

	"github.com/briangreenhill/stridecoach/internal/evaluator"
	"github.com/briangreenhill/stridecoach/internal/exec"
)

const (
	TaskRecordExecution = "coach:record_execution"
	TaskEvaluateOutcome = "coach:evaluate_outcome"
)

// RecordExecutionPayload carries a full execution row. The id is generated
// at selection time so the caller holds it before the row is durable.
type RecordExecutionPayload struct {
	ID                  uuid.UUID    `json:"id"`
	UserID              uuid.UUID    `json:"user_id"`
	RunID               *uuid.UUID   `json:"run_id,omitempty"`
	StrategyID          *uuid.UUID   `json:"strategy_id,omitempty"`
	ExecutionContext    exec.Context `json:"execution_context"`
	StrategyDelivered   string       `json:"strategy_delivered"`
	ConditionMatchScore float64      `json:"condition_match_score"`
}

// EvaluateOutcomePayload asks the worker to score a completed interval
type EvaluateOutcomePayload struct {
	ExecutionID uuid.UUID         `json:"execution_id"`
	Before      evaluator.Metrics `json:"before"`
	After       evaluator.Metrics `json:"after"`
}
