// Package kb is the durable knowledge base of coaching strategies. It owns
// the strategy rows and their usage counters; all counter updates are atomic
// per row at the SQL level.
package kb

import (
	"time"

	"github.com/google/uuid"
)

// DistanceCategory buckets a run by target distance
type DistanceCategory string

const (
	DistanceCasual DistanceCategory = "casual"
	Distance5K     DistanceCategory = "5k"
	Distance10K    DistanceCategory = "10k"
	DistanceHalf   DistanceCategory = "half"
	DistanceFull   DistanceCategory = "full"
)

// CategoryForDistance maps a target distance in meters to its KB category
func CategoryForDistance(targetMeters float64) DistanceCategory {
	km := targetMeters / 1000
	switch {
	case km < 3:
		return DistanceCasual
	case km <= 5.5:
		return Distance5K
	case km <= 11:
		return Distance10K
	case km <= 22:
		return DistanceHalf
	default:
		return DistanceFull
	}
}

// StrategyType distinguishes full coaching strategies from micro cues
type StrategyType string

const (
	TypeCore  StrategyType = "core"
	TypeMicro StrategyType = "micro"
)

// RunnerLevel is the experience bucket a strategy is written for
type RunnerLevel string

const (
	LevelBeginner     RunnerLevel = "beginner"
	LevelIntermediate RunnerLevel = "intermediate"
	LevelAdvanced     RunnerLevel = "advanced"
)

// Strategy is a reusable coaching instruction with its applicability
// metadata, embedding, and rolling success statistics. SuccessRate is always
// derived from the counters, never stored independently.
type Strategy struct {
	ID              uuid.UUID
	Title           string
	StrategyText    string // actionable, at most ~40 words
	ConditionsToUse string
	WhenNotToUse    string

	Distance    DistanceCategory
	Type        StrategyType
	RunnerLevel RunnerLevel

	Embedding []float32 // nil until backfilled

	TimesUsed             int
	TimesSuccessful       int
	SuccessRate           float64 // successful/used, 0 when unused
	AvgEffectivenessScore float64 // rolling mean in [0,1]

	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time

	// Similarity is populated by vector search only; zero elsewhere.
	Similarity float64
}

// EmbeddingText builds the text embedded for a strategy row. The same shape
// is used at seed time and at backfill time so stored vectors stay
// comparable with situation queries.
func (s *Strategy) EmbeddingText() string {
	return "Strategy: " + s.Title + "\n" +
		"Use when: " + s.ConditionsToUse + "\n" +
		"Avoid when: " + s.WhenNotToUse + "\n" +
		"Strategy text: " + s.StrategyText + "\n" +
		"Distance: " + string(s.Distance) + "\n" +
		"Type: " + string(s.Type) + "\n" +
		"Runner level: " + string(s.RunnerLevel)
}

// UserTopStrategy is a per-user aggregate of how a strategy performed for
// one runner, fed back into selection prompts.
type UserTopStrategy struct {
	StrategyID      uuid.UUID
	Title           string
	TimesUsed       int
	UserSuccessRate float64
}
