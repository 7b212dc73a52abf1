// Package recorder persists strategy executions without blocking delivery.
// The runner never waits on persistence, but writes are still durable: each
// execution goes through the job queue with retries, and a queue outage
// degrades to a direct write with one retry before logging and giving up.
package recorder

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/stridecoach/internal/exec"
	"github.com/briangreenhill/stridecoach/internal/jobs"
)

// ExecutionWriter inserts execution rows
type ExecutionWriter interface {
	Insert(ctx context.Context, e *exec.Execution) error
}

// UsageCounter increments a strategy's usage counter
type UsageCounter interface {
	RecordUsage(ctx context.Context, id uuid.UUID) error
}

// Enqueuer is the slice of the asynq client the recorder needs
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Recorder hands executions to the durable queue
type Recorder struct {
	queue      Enqueuer
	executions ExecutionWriter
	usage      UsageCounter
	logger     zerolog.Logger
}

// New wires the recorder. The execution writer and usage counter are the
// direct-write fallback for when the queue itself is down.
func New(logger zerolog.Logger, queue Enqueuer, executions ExecutionWriter, usage UsageCounter) *Recorder {
	return &Recorder{queue: queue, executions: executions, usage: usage, logger: logger}
}

// Record persists the execution asynchronously. It returns immediately; the
// write continues even if the trigger's context is cancelled mid-delivery.
func (r *Recorder) Record(ctx context.Context, e *exec.Execution) {
	ctx = context.WithoutCancel(ctx)
	go r.record(ctx, e)
}

func (r *Recorder) record(ctx context.Context, e *exec.Execution) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	payload, err := json.Marshal(jobs.RecordExecutionPayload{
		ID:                  e.ID,
		UserID:              e.UserID,
		RunID:               e.RunID,
		StrategyID:          e.StrategyID,
		ExecutionContext:    e.ExecutionContext,
		StrategyDelivered:   e.StrategyDelivered,
		ConditionMatchScore: e.ConditionMatchScore,
	})
	if err != nil {
		r.logger.Error().Err(err).Msg("marshal execution payload")
		return
	}

	task := asynq.NewTask(jobs.TaskRecordExecution, payload)
	_, err = r.queue.EnqueueContext(ctx, task,
		asynq.Queue("record"),
		asynq.MaxRetry(5),
		asynq.Timeout(time.Minute),
	)
	if err == nil {
		return
	}
	r.logger.Warn().Err(err).Str("execution_id", e.ID.String()).Msg("enqueue failed, writing directly")

	// Queue is down; write directly with one retry before giving up.
	if err := r.writeDirect(ctx, e); err != nil {
		time.Sleep(2 * time.Second)
		if err := r.writeDirect(ctx, e); err != nil {
			r.logger.Error().Err(err).Str("execution_id", e.ID.String()).Msg("dropping execution record")
		}
	}
}

func (r *Recorder) writeDirect(ctx context.Context, e *exec.Execution) error {
	if err := r.executions.Insert(ctx, e); err != nil {
		return err
	}
	if e.StrategyID != nil {
		if err := r.usage.RecordUsage(ctx, *e.StrategyID); err != nil {
			r.logger.Warn().Err(err).Str("strategy_id", e.StrategyID.String()).Msg("usage counter update failed")
		}
	}
	return nil
}
