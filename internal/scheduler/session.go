// Package scheduler decides when the coaching pipeline runs. Each run gets
// its own session-scoped state machine (Idle → Armed → Delivering); there is
// no process-wide singleton.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/stridecoach/internal/engine"
	"github.com/briangreenhill/stridecoach/internal/evaluator"
	"github.com/briangreenhill/stridecoach/internal/kb"
	"github.com/briangreenhill/stridecoach/internal/memory"
	"github.com/briangreenhill/stridecoach/internal/telemetry"
)

// State is the session's lifecycle position
type State string

const (
	StateIdle       State = "idle"
	StateArmed      State = "armed"
	StateDelivering State = "delivering"
)

var (
	// ErrNotDue means the snapshot is not at a coaching milestone.
	ErrNotDue = errors.New("coaching not due")
	// ErrDelivering means a coaching session is already in flight; new
	// triggers are dropped, never queued.
	ErrDelivering = errors.New("coaching already delivering")
	// ErrSessionClosed means the run has ended or was never started.
	ErrSessionClosed = errors.New("coaching session closed")
)

// StrategyProvider runs the per-trigger pipeline
type StrategyProvider interface {
	AdaptiveStrategy(ctx context.Context, snap telemetry.Snapshot, personality engine.Personality, energy engine.Energy, insights []memory.Insight, topStrategies []kb.UserTopStrategy, userID uuid.UUID, runID *uuid.UUID) (*engine.Output, error)
}

// OutcomeQueue defers outcome evaluation to the worker
type OutcomeQueue interface {
	EnqueueEvaluation(ctx context.Context, executionID uuid.UUID, before, after evaluator.Metrics) error
}

// TriggerInput is the raw telemetry handed in with each trigger
type TriggerInput struct {
	Intervals []telemetry.IntervalSample
	Raw       telemetry.RawStats
}

type pendingOutcome struct {
	executionID uuid.UUID
	before      evaluator.Metrics
}

// Session owns the coaching lifecycle for one run. Created at run start,
// discarded at run end.
type Session struct {
	UserID uuid.UUID
	RunID  uuid.UUID

	provider StrategyProvider
	outcomes OutcomeQueue
	loader   PreferenceLoader
	settings Settings
	logger   zerolog.Logger

	frequencyKm int
	ceiling     time.Duration
	aggOpts     telemetry.Options

	mu             sync.Mutex
	state          State
	prefs          Preferences
	lastCoachingKm int
	pending        *pendingOutcome
	cancelInflight context.CancelFunc
}

// Config tunes a session's milestone gating and delivery ceiling
type Config struct {
	FrequencyKm     int
	DeliveryCeiling time.Duration
	Telemetry       telemetry.Options
}

// NewSession arms a session for a starting run, capturing the preference
// snapshot once for the run's duration.
func NewSession(ctx context.Context, logger zerolog.Logger, provider StrategyProvider, outcomes OutcomeQueue, loader PreferenceLoader, userID, runID uuid.UUID, settings Settings, cfg Config) (*Session, error) {
	prefs, err := loader.Load(ctx, userID, settings)
	if err != nil {
		return nil, err
	}

	if cfg.FrequencyKm <= 0 {
		cfg.FrequencyKm = 2
	}
	if cfg.DeliveryCeiling <= 0 {
		cfg.DeliveryCeiling = 45 * time.Second
	}

	return &Session{
		UserID:      userID,
		RunID:       runID,
		provider:    provider,
		outcomes:    outcomes,
		loader:      loader,
		settings:    settings,
		logger:      logger.With().Str("run_id", runID.String()).Logger(),
		frequencyKm: cfg.FrequencyKm,
		ceiling:     cfg.DeliveryCeiling,
		aggOpts:     cfg.Telemetry,
		state:       StateArmed,
		prefs:       prefs,
	}, nil
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Refresh re-captures the preference snapshot mid-run, for when the user
// changes a setting. Explicit invalidation, no TTL race.
func (s *Session) Refresh(ctx context.Context) error {
	prefs, err := s.loader.Load(ctx, s.UserID, s.settings)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.prefs = prefs
	s.mu.Unlock()
	return nil
}

// MilestoneDue reports whether a distance milestone should trigger coaching:
// the km mark must be new since the last coaching and land on the frequency.
func MilestoneDue(currentKm, lastCoachingKm, frequencyKm int) bool {
	return currentKm > lastCoachingKm && frequencyKm > 0 && currentKm%frequencyKm == 0
}

// OnDistanceMilestone runs the pipeline if a milestone is due. Returns
// ErrNotDue when the snapshot is between milestones and ErrDelivering when a
// coaching session is already in flight.
func (s *Session) OnDistanceMilestone(ctx context.Context, input TriggerInput) (*engine.Output, error) {
	currentKm := int(input.Raw.CurrentDistance / 1000)

	s.mu.Lock()
	switch s.state {
	case StateIdle:
		s.mu.Unlock()
		return nil, ErrSessionClosed
	case StateDelivering:
		s.mu.Unlock()
		return nil, ErrDelivering
	}
	if !MilestoneDue(currentKm, s.lastCoachingKm, s.frequencyKm) {
		s.mu.Unlock()
		return nil, ErrNotDue
	}
	out, err := s.deliverLocked(ctx, input)
	if err == nil {
		s.mu.Lock()
		s.lastCoachingKm = currentKm
		s.mu.Unlock()
	}
	return out, err
}

// OnRunEnd delivers closing coaching (no milestone gating) and settles the
// final pending outcome. The session returns to Idle either way.
func (s *Session) OnRunEnd(ctx context.Context, input TriggerInput) (*engine.Output, error) {
	s.mu.Lock()
	if s.state != StateArmed {
		state := s.state
		s.mu.Unlock()
		if state == StateDelivering {
			return nil, ErrDelivering
		}
		return nil, ErrSessionClosed
	}
	out, err := s.deliverLocked(ctx, input)

	// The closing strategy has no following interval, so its outcome is
	// never measured. Any earlier pending outcome was settled inside the
	// delivery against the final metrics.
	s.mu.Lock()
	s.pending = nil
	s.state = StateIdle
	s.mu.Unlock()
	return out, err
}

// Stop forcibly returns the session to Idle, cancelling any in-flight
// delivery. Used for run stop, logout, or app backgrounding.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelInflight != nil {
		s.cancelInflight()
		s.cancelInflight = nil
	}
	s.state = StateIdle
}

// deliverLocked runs one coaching trigger. Called with s.mu held; releases
// it while the pipeline runs so Stop can interrupt.
func (s *Session) deliverLocked(ctx context.Context, input TriggerInput) (*engine.Output, error) {
	s.state = StateDelivering
	ctx, cancel := context.WithTimeout(ctx, s.ceiling)
	s.cancelInflight = cancel

	prefs := s.prefs
	prev := s.pending
	s.pending = nil
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		if s.state == StateDelivering {
			s.state = StateArmed
		}
		s.cancelInflight = nil
		s.mu.Unlock()
	}()

	snap := telemetry.Aggregate(input.Intervals, input.Raw, prefs.Target, s.aggOpts)
	now := currentMetrics(input.Raw)

	// Settle the previous interval's outcome; it touches different rows
	// than this trigger's retrieval, so it can run alongside it.
	if prev != nil {
		if err := s.outcomes.EnqueueEvaluation(context.WithoutCancel(ctx), prev.executionID, prev.before, now); err != nil {
			s.logger.Warn().Err(err).Str("execution_id", prev.executionID.String()).Msg("outcome evaluation enqueue failed")
		}
	}

	runID := s.RunID
	out, err := s.provider.AdaptiveStrategy(ctx, snap, prefs.Personality, prefs.Energy, prefs.Insights, prefs.TopStrategies, s.UserID, &runID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.pending = &pendingOutcome{executionID: out.ExecutionID, before: now}
	s.mu.Unlock()
	return out, nil
}

func currentMetrics(raw telemetry.RawStats) evaluator.Metrics {
	return evaluator.Metrics{Pace: raw.CurrentPace, HR: raw.CurrentHR, Zone: raw.CurrentZone}
}
