package evaluator

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/stridecoach/internal/exec"
)

func TestScoreBehindTargetPaceImproved(t *testing.T) {
	execCtx := exec.Context{TargetStatus: "slightly_behind"}
	a := Score(execCtx, Metrics{Pace: 6.75}, Metrics{Pace: 6.5})

	if a.EffectivenessScore != 0.8 {
		t.Errorf("score = %v, want 0.8 for pace improvement while behind", a.EffectivenessScore)
	}
	if a.Reason != "pace improved" {
		t.Errorf("reason = %q", a.Reason)
	}
}

func TestScoreBehindTargetPaceSlipped(t *testing.T) {
	execCtx := exec.Context{TargetStatus: "way_behind"}
	a := Score(execCtx, Metrics{Pace: 6.75}, Metrics{Pace: 7.0})

	if a.EffectivenessScore != 0.3 {
		t.Errorf("score = %v, want 0.3 for continued slipping", a.EffectivenessScore)
	}
}

func TestScoreFatiguedPaceStabilized(t *testing.T) {
	execCtx := exec.Context{Fatigue: "high", TargetStatus: "on_track"}
	a := Score(execCtx, Metrics{Pace: 6.5}, Metrics{Pace: 6.52})

	if a.EffectivenessScore != 0.7 {
		t.Errorf("score = %v, want 0.7 for stabilization under fatigue", a.EffectivenessScore)
	}
}

func TestScoreHRStabilized(t *testing.T) {
	execCtx := exec.Context{HRTrend: "rising", TargetStatus: "on_track"}
	a := Score(execCtx, Metrics{Pace: 6.0, HR: 165}, Metrics{Pace: 6.0, HR: 166})

	if a.EffectivenessScore != 0.7 {
		t.Errorf("score = %v, want 0.7 when HR stops climbing", a.EffectivenessScore)
	}
}

func TestScoreHRKeptClimbing(t *testing.T) {
	execCtx := exec.Context{HRTrend: "spiking", TargetStatus: "on_track"}
	a := Score(execCtx, Metrics{Pace: 6.0, HR: 165}, Metrics{Pace: 6.0, HR: 172})

	if a.EffectivenessScore != 0.4 {
		t.Errorf("score = %v, want 0.4 when HR keeps climbing", a.EffectivenessScore)
	}
}

func TestScoreZoneDropped(t *testing.T) {
	execCtx := exec.Context{ZoneTooHigh: true, TargetStatus: "on_track"}
	a := Score(execCtx, Metrics{Pace: 6.0, Zone: 4}, Metrics{Pace: 6.0, Zone: 3})

	if a.EffectivenessScore != 0.7 {
		t.Errorf("score = %v, want 0.7 for zone drop", a.EffectivenessScore)
	}
}

func TestScoreCompound(t *testing.T) {
	// Behind target, HR stressed, zone too high; everything improved.
	execCtx := exec.Context{TargetStatus: "slightly_behind", HRTrend: "rising", ZoneTooHigh: true}
	a := Score(execCtx,
		Metrics{Pace: 6.75, HR: 168, Zone: 4},
		Metrics{Pace: 6.5, HR: 167, Zone: 3})

	if a.EffectivenessScore != 1 {
		t.Errorf("score = %v, want clamped to 1", a.EffectivenessScore)
	}
}

func TestScoreNeutralWithoutSignals(t *testing.T) {
	a := Score(exec.Context{TargetStatus: "on_track"}, Metrics{Pace: 6.0}, Metrics{Pace: 6.0})

	if a.EffectivenessScore != 0.5 {
		t.Errorf("score = %v, want neutral 0.5", a.EffectivenessScore)
	}
	if a.Reason != "no significant improvement detected" {
		t.Errorf("reason = %q", a.Reason)
	}
}

func TestScoreMissingMetricsIgnored(t *testing.T) {
	// No HR data at all; HR rules must not fire.
	execCtx := exec.Context{HRTrend: "rising", TargetStatus: "on_track"}
	a := Score(execCtx, Metrics{Pace: 6.0}, Metrics{Pace: 6.0})

	if a.EffectivenessScore != 0.5 {
		t.Errorf("score = %v, want 0.5 when HR readings are absent", a.EffectivenessScore)
	}
}

type fakeExecStore struct {
	execution *exec.Execution
	getErr    error

	outcomeID   uuid.UUID
	outcomeErr  error
	wasRecorded bool
	metrics     exec.OutcomeMetrics
	effective   bool
	score       float64
}

func (f *fakeExecStore) Get(ctx context.Context, id uuid.UUID) (*exec.Execution, error) {
	return f.execution, f.getErr
}

func (f *fakeExecStore) RecordOutcome(ctx context.Context, id uuid.UUID, metrics exec.OutcomeMetrics, wasEffective bool, score float64, reason string) error {
	f.wasRecorded = true
	f.outcomeID = id
	f.metrics = metrics
	f.effective = wasEffective
	f.score = score
	return f.outcomeErr
}

type fakeStats struct {
	calls     int
	id        uuid.UUID
	effective bool
	score     float64
	err       error
}

func (f *fakeStats) RecordSuccess(ctx context.Context, id uuid.UUID, wasEffective bool, effectivenessScore float64) error {
	f.calls++
	f.id = id
	f.effective = wasEffective
	f.score = effectivenessScore
	return f.err
}

func TestEvaluateFeedsStrategyStats(t *testing.T) {
	strategyID := uuid.New()
	executionID := uuid.New()
	store := &fakeExecStore{execution: &exec.Execution{
		ID:               executionID,
		StrategyID:       &strategyID,
		ExecutionContext: exec.Context{TargetStatus: "slightly_behind"},
	}}
	stats := &fakeStats{}
	ev := New(zerolog.Nop(), store, stats, 0.5)

	a, err := ev.Evaluate(context.Background(), executionID, Metrics{Pace: 6.75}, Metrics{Pace: 6.5})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if !a.WasEffective {
		t.Error("expected effective outcome at score 0.8 with threshold 0.5")
	}
	if stats.calls != 1 || stats.id != strategyID {
		t.Errorf("stats call = %d for %s, want 1 for %s", stats.calls, stats.id, strategyID)
	}
	if stats.score != 0.8 {
		t.Errorf("stats score = %v, want 0.8", stats.score)
	}
	if !store.wasRecorded || store.outcomeID != executionID {
		t.Error("outcome not written to the execution row")
	}
	if store.metrics.PaceChange == nil || *store.metrics.PaceChange >= 0 {
		t.Errorf("PaceChange = %v, want negative delta", store.metrics.PaceChange)
	}
}

func TestEvaluateSkipsStatsForStaticStrategy(t *testing.T) {
	executionID := uuid.New()
	store := &fakeExecStore{execution: &exec.Execution{
		ID:               executionID,
		ExecutionContext: exec.Context{TargetStatus: "on_track"},
	}}
	stats := &fakeStats{}
	ev := New(zerolog.Nop(), store, stats, 0.5)

	if _, err := ev.Evaluate(context.Background(), executionID, Metrics{Pace: 6.0}, Metrics{Pace: 6.0}); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if stats.calls != 0 {
		t.Errorf("stats calls = %d, want 0 for nil strategy id", stats.calls)
	}
	if !store.wasRecorded {
		t.Error("outcome must still be recorded on the execution row")
	}
}

func TestEvaluateRejectsAlreadyMeasured(t *testing.T) {
	executionID := uuid.New()
	store := &fakeExecStore{execution: &exec.Execution{ID: executionID, OutcomeMeasured: true}}
	stats := &fakeStats{}
	ev := New(zerolog.Nop(), store, stats, 0.5)

	_, err := ev.Evaluate(context.Background(), executionID, Metrics{}, Metrics{})
	if err == nil {
		t.Fatal("expected error for already measured execution")
	}
	if stats.calls != 0 || store.wasRecorded {
		t.Error("no writes allowed for already measured execution")
	}
}

func TestEvaluateGetFailure(t *testing.T) {
	store := &fakeExecStore{getErr: errors.New("not found")}
	ev := New(zerolog.Nop(), store, &fakeStats{}, 0.5)

	if _, err := ev.Evaluate(context.Background(), uuid.New(), Metrics{}, Metrics{}); err == nil {
		t.Fatal("expected error when execution lookup fails")
	}
}

func TestEvaluateThreshold(t *testing.T) {
	strategyID := uuid.New()
	executionID := uuid.New()
	store := &fakeExecStore{execution: &exec.Execution{
		ID:               executionID,
		StrategyID:       &strategyID,
		ExecutionContext: exec.Context{TargetStatus: "on_track"},
	}}
	stats := &fakeStats{}
	ev := New(zerolog.Nop(), store, stats, 0.6)

	a, err := ev.Evaluate(context.Background(), executionID, Metrics{Pace: 6.0}, Metrics{Pace: 6.0})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if a.WasEffective {
		t.Error("neutral 0.5 must not clear a 0.6 threshold")
	}
	if stats.effective {
		t.Error("stats must receive the ineffective verdict")
	}
}
