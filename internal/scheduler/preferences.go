package scheduler

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/stridecoach/internal/engine"
	"github.com/briangreenhill/stridecoach/internal/kb"
	"github.com/briangreenhill/stridecoach/internal/memory"
	"github.com/briangreenhill/stridecoach/internal/telemetry"
)

// Preferences is the immutable snapshot of session-invariant inputs,
// captured once at run start and threaded through every trigger. A settings
// change mid-run reaches the session only through an explicit Refresh.
type Preferences struct {
	Personality engine.Personality
	Energy      engine.Energy
	Language    string

	Target telemetry.Target

	Insights      []memory.Insight
	TopStrategies []kb.UserTopStrategy
}

// Settings are the user-chosen values handed in at run start
type Settings struct {
	Personality    engine.Personality
	Energy         engine.Energy
	Language       string
	TargetPace     float64 // min/km
	TargetDistance float64 // meters
}

// UserStats exposes the per-user learning aggregates
type UserStats interface {
	UserTopStrategies(ctx context.Context, userID uuid.UUID, limit int) ([]kb.UserTopStrategy, error)
}

// PreferenceLoader captures a fresh preference snapshot for a user
type PreferenceLoader interface {
	Load(ctx context.Context, userID uuid.UUID, settings Settings) (Preferences, error)
}

// Loader fetches memory insights and user learning history. Both sources are
// advisory; failures produce an emptier snapshot, never an error.
type Loader struct {
	memory memory.Service
	stats  UserStats
	logger zerolog.Logger
}

// NewLoader wires the default preference loader. The memory service may be
// nil when personalization is not configured.
func NewLoader(logger zerolog.Logger, mem memory.Service, stats UserStats) *Loader {
	return &Loader{memory: mem, stats: stats, logger: logger}
}

// Load builds a preference snapshot for the run
func (l *Loader) Load(ctx context.Context, userID uuid.UUID, settings Settings) (Preferences, error) {
	prefs := Preferences{
		Personality: settings.Personality,
		Energy:      settings.Energy,
		Language:    settings.Language,
		Target: telemetry.Target{
			Pace:     settings.TargetPace,
			Distance: settings.TargetDistance,
		},
	}
	if prefs.Personality == "" {
		prefs.Personality = engine.PersonalityStrategist
	}
	if prefs.Energy == "" {
		prefs.Energy = engine.EnergyMedium
	}

	prefs.Insights = memory.CollectInsights(ctx, l.memory, l.logger, userID.String(), []string{
		"coaching strategies that worked well",
		"what motivates this runner",
		"running form cues that helped",
	})

	if l.stats != nil {
		top, err := l.stats.UserTopStrategies(ctx, userID, 5)
		if err != nil {
			l.logger.Warn().Err(err).Msg("user top strategies unavailable")
		} else {
			prefs.TopStrategies = top
		}
	}
	return prefs, nil
}
