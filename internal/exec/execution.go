// Package exec owns strategy execution records: one row per
// selection-and-delivery event, mutated exactly once when the outcome of the
// following interval is measured. Rows are never deleted; they are the audit
// trail for the learning loop.
package exec

import (
	"time"

	"github.com/google/uuid"
)

// Context captures the snapshot fields relevant to matching, persisted with
// every execution so outcomes can be judged against the state the strategy
// was chosen for.
type Context struct {
	Pace          float64  `json:"pace"`
	HR            int      `json:"hr,omitempty"`
	Zone          int      `json:"zone,omitempty"`
	Fatigue       string   `json:"fatigue"`
	TargetStatus  string   `json:"target_status"`
	PaceTrend     string   `json:"pace_trend"`
	HRTrend       string   `json:"hr_trend"`
	ZoneTooHigh   bool     `json:"zone_too_high,omitempty"`
	SituationTags []string `json:"situation_tags,omitempty"`
}

// OutcomeMetrics are the before/after deltas measured for the interval the
// strategy was active in.
type OutcomeMetrics struct {
	PaceChange *float64 `json:"pace_change,omitempty"`
	HRChange   *int     `json:"hr_change,omitempty"`
	ZoneChange *int     `json:"zone_change,omitempty"`
}

// Execution records one strategy delivery. StrategyID is nil for a freshly
// composed strategy with no knowledge base match. OutcomeMeasured is true
// iff OutcomeMetrics and WasEffective are set.
type Execution struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	RunID      *uuid.UUID
	StrategyID *uuid.UUID

	ExecutionContext    Context
	StrategyDelivered   string
	ConditionMatchScore float64

	OutcomeMeasured     bool
	OutcomeMetrics      *OutcomeMetrics
	WasEffective        *bool
	EffectivenessScore  *float64
	EffectivenessReason *string

	ExecutedAt        time.Time
	OutcomeMeasuredAt *time.Time
}
