package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/briangreenhill/stridecoach/internal/evaluator"
	"github.com/briangreenhill/stridecoach/internal/jobs"
)

// AsynqOutcomeQueue defers outcome evaluation through the job queue
type AsynqOutcomeQueue struct {
	client *asynq.Client
}

var _ OutcomeQueue = (*AsynqOutcomeQueue)(nil)

// NewAsynqOutcomeQueue wraps an asynq client
func NewAsynqOutcomeQueue(client *asynq.Client) *AsynqOutcomeQueue {
	return &AsynqOutcomeQueue{client: client}
}

// EnqueueEvaluation schedules scoring of a completed interval
func (q *AsynqOutcomeQueue) EnqueueEvaluation(ctx context.Context, executionID uuid.UUID, before, after evaluator.Metrics) error {
	payload, err := json.Marshal(jobs.EvaluateOutcomePayload{
		ExecutionID: executionID,
		Before:      before,
		After:       after,
	})
	if err != nil {
		return fmt.Errorf("marshal evaluation payload: %w", err)
	}

	_, err = q.client.EnqueueContext(ctx, asynq.NewTask(jobs.TaskEvaluateOutcome, payload),
		asynq.Queue("default"),
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
	)
	if err != nil {
		return fmt.Errorf("enqueue evaluation: %w", err)
	}
	return nil
}
