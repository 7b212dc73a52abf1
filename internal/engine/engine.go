package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/stridecoach/internal/exec"
	"github.com/briangreenhill/stridecoach/internal/kb"
	"github.com/briangreenhill/stridecoach/internal/memory"
	"github.com/briangreenhill/stridecoach/internal/telemetry"
)

// Recorder persists an execution without making the caller wait. The runner
// gets their strategy immediately; durability is the recorder's problem.
type Recorder interface {
	Record(ctx context.Context, e *exec.Execution)
}

// Output is the delivered strategy plus the metadata the caller needs for
// outcome tracking.
type Output struct {
	Selection
	ExecutionID  uuid.UUID `json:"execution_id"`
	PriorityTags []string  `json:"priority_tags"`
}

// Engine runs the full per-trigger pipeline: situation → retrieval →
// matching → recording. Steps are strictly sequential within one trigger.
type Engine struct {
	retriever *Retriever
	matcher   *Matcher
	recorder  Recorder
	logger    zerolog.Logger
}

// New wires the engine
func New(logger zerolog.Logger, retriever *Retriever, matcher *Matcher, recorder Recorder) *Engine {
	return &Engine{retriever: retriever, matcher: matcher, recorder: recorder, logger: logger}
}

// AdaptiveStrategy picks the single best strategy for the snapshot. Insights
// and top strategies are session-invariant inputs captured at run start.
func (e *Engine) AdaptiveStrategy(ctx context.Context, snap telemetry.Snapshot, personality Personality, energy Energy, insights []memory.Insight, topStrategies []kb.UserTopStrategy, userID uuid.UUID, runID *uuid.UUID) (*Output, error) {
	sit := BuildSituation(snap, personality, energy)
	description := sit.Description(snap)

	candidates, err := e.retriever.Retrieve(ctx, description, snap)
	if err != nil {
		if !errors.Is(err, ErrNoStrategy) {
			e.logger.Warn().Err(err).Msg("retrieval failed, using static fallback strategies")
		}
		candidates = StaticFallbackStrategies(sit)
	}

	sel, err := e.matcher.Select(ctx, sit, description, candidates, insights, topStrategies)
	if err != nil {
		return nil, err
	}

	execution := &exec.Execution{
		ID:         uuid.New(),
		UserID:     userID,
		RunID:      runID,
		StrategyID: sel.StrategyID,
		ExecutionContext: exec.Context{
			Pace:          snap.CurrentPace,
			HR:            snap.CurrentHR,
			Zone:          snap.HeartRateZone,
			Fatigue:       string(snap.FatigueLevel),
			TargetStatus:  string(snap.TargetStatus),
			PaceTrend:     string(snap.PaceTrend),
			HRTrend:       string(snap.HRTrend),
			ZoneTooHigh:   sit.ZoneTooHigh,
			SituationTags: sit.Tags,
		},
		StrategyDelivered:   sel.StrategyText,
		ConditionMatchScore: sel.ConfidenceScore,
	}
	e.recorder.Record(ctx, execution)

	tags := sit.Tags
	if len(tags) > 3 {
		tags = tags[:3]
	}

	e.logger.Info().
		Str("strategy", sel.StrategyName).
		Str("source", sel.Source).
		Float64("confidence", sel.ConfidenceScore).
		Str("execution_id", execution.ID.String()).
		Msg("strategy selected")

	return &Output{Selection: sel, ExecutionID: execution.ID, PriorityTags: tags}, nil
}
