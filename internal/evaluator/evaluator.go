// Package evaluator closes the self-learning loop: given before/after
// metrics for the interval a strategy was active in, it scores whether the
// strategy helped and feeds that back into the knowledge base statistics.
package evaluator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/stridecoach/internal/exec"
)

// Metrics is the pace/HR/zone state at an instant
type Metrics struct {
	Pace float64 `json:"pace"` // min/km
	HR   int     `json:"hr,omitempty"`
	Zone int     `json:"zone,omitempty"`
}

// ExecutionStore is the slice of the execution store the evaluator needs
type ExecutionStore interface {
	Get(ctx context.Context, id uuid.UUID) (*exec.Execution, error)
	RecordOutcome(ctx context.Context, id uuid.UUID, metrics exec.OutcomeMetrics, wasEffective bool, score float64, reason string) error
}

// StrategyStats receives the outcome for the strategy's rolling statistics
type StrategyStats interface {
	RecordSuccess(ctx context.Context, id uuid.UUID, wasEffective bool, effectivenessScore float64) error
}

// Evaluator scores completed intervals against the context the strategy was
// delivered in.
type Evaluator struct {
	executions ExecutionStore
	stats      StrategyStats
	threshold  float64
	logger     zerolog.Logger
}

// New wires the evaluator. A non-positive threshold falls back to 0.5.
func New(logger zerolog.Logger, executions ExecutionStore, stats StrategyStats, threshold float64) *Evaluator {
	if threshold <= 0 {
		threshold = 0.5
	}
	return &Evaluator{executions: executions, stats: stats, threshold: threshold, logger: logger}
}

// Assessment is the result of scoring one execution
type Assessment struct {
	WasEffective       bool
	EffectivenessScore float64
	Reason             string
}

// Score computes the effectiveness of a strategy from before/after metrics,
// judged against the execution context it was delivered in. The score is
// monotonic in "pace got closer to target" and "HR did not spike further",
// clamped to [0,1] around a neutral 0.5.
func Score(execCtx exec.Context, before, after Metrics) Assessment {
	score := 0.5
	var reasons []string

	behindTarget := execCtx.TargetStatus == "slightly_behind" || execCtx.TargetStatus == "way_behind"
	fatigued := execCtx.Fatigue == "high" || execCtx.Fatigue == "severe"
	hrStressed := execCtx.HRTrend == "rising" || execCtx.HRTrend == "spiking"

	if before.Pace > 0 && after.Pace > 0 {
		paceChange := after.Pace - before.Pace
		if behindTarget {
			if paceChange < -0.05 {
				score += 0.3
				reasons = append(reasons, "pace improved")
			} else if paceChange > 0.05 {
				score -= 0.2
				reasons = append(reasons, "pace kept slipping")
			}
		} else if fatigued {
			if paceChange > -0.1 && paceChange < 0.1 {
				score += 0.2
				reasons = append(reasons, "pace stabilized during recovery")
			}
		}
	}

	if before.HR > 0 && after.HR > 0 {
		hrChange := after.HR - before.HR
		if hrStressed {
			if hrChange < 3 {
				score += 0.2
				reasons = append(reasons, "HR stabilized")
			} else {
				score -= 0.1
				reasons = append(reasons, "HR kept climbing")
			}
		}
	}

	if execCtx.ZoneTooHigh && before.Zone > 0 && after.Zone > 0 && after.Zone < before.Zone {
		score += 0.2
		reasons = append(reasons, "moved to lower zone")
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}

	reason := strings.Join(reasons, "; ")
	if reason == "" {
		reason = "no significant improvement detected"
	}
	return Assessment{EffectivenessScore: score, Reason: reason}
}

// Evaluate scores an execution and writes the result both to the knowledge
// base's rolling statistics and to the execution row itself.
func (ev *Evaluator) Evaluate(ctx context.Context, executionID uuid.UUID, before, after Metrics) (Assessment, error) {
	execution, err := ev.executions.Get(ctx, executionID)
	if err != nil {
		return Assessment{}, fmt.Errorf("evaluate: %w", err)
	}
	if execution.OutcomeMeasured {
		return Assessment{}, fmt.Errorf("evaluate: execution %s already measured", executionID)
	}

	assessment := Score(execution.ExecutionContext, before, after)
	assessment.WasEffective = assessment.EffectivenessScore >= ev.threshold

	if execution.StrategyID != nil {
		if err := ev.stats.RecordSuccess(ctx, *execution.StrategyID, assessment.WasEffective, assessment.EffectivenessScore); err != nil {
			return Assessment{}, fmt.Errorf("evaluate: %w", err)
		}
	}

	metrics := outcomeMetrics(before, after)
	if err := ev.executions.RecordOutcome(ctx, executionID, metrics, assessment.WasEffective, assessment.EffectivenessScore, assessment.Reason); err != nil {
		return Assessment{}, fmt.Errorf("evaluate: %w", err)
	}

	ev.logger.Info().
		Str("execution_id", executionID.String()).
		Bool("effective", assessment.WasEffective).
		Float64("score", assessment.EffectivenessScore).
		Msg("outcome recorded")
	return assessment, nil
}

func outcomeMetrics(before, after Metrics) exec.OutcomeMetrics {
	var m exec.OutcomeMetrics
	if before.Pace > 0 && after.Pace > 0 {
		d := after.Pace - before.Pace
		m.PaceChange = &d
	}
	if before.HR > 0 && after.HR > 0 {
		d := after.HR - before.HR
		m.HRChange = &d
	}
	if before.Zone > 0 && after.Zone > 0 {
		d := after.Zone - before.Zone
		m.ZoneChange = &d
	}
	return m
}
