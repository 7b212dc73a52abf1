// Package telemetry derives a structured performance snapshot from raw run
// telemetry. Pure computation, no external calls.
package telemetry

import "fmt"

// PaceTrend classifies recent interval paces
type PaceTrend string

const (
	PaceImproving PaceTrend = "improving"
	PaceStable    PaceTrend = "stable"
	PaceDeclining PaceTrend = "declining"
	PaceErratic   PaceTrend = "erratic"
)

// HRTrend classifies recent heart-rate movement
type HRTrend string

const (
	HRStable     HRTrend = "stable"
	HRRising     HRTrend = "rising"
	HRSpiking    HRTrend = "spiking"
	HRRecovering HRTrend = "recovering"
)

// FatigueLevel is a coarse ordinal estimate of runner exhaustion
type FatigueLevel string

const (
	FatigueNone     FatigueLevel = "none"
	FatigueLow      FatigueLevel = "low"
	FatigueModerate FatigueLevel = "moderate"
	FatigueHigh     FatigueLevel = "high"
	FatigueSevere   FatigueLevel = "severe"
)

// TargetStatus compares current pace against the goal pace
type TargetStatus string

const (
	TargetAhead          TargetStatus = "ahead"
	TargetOnTrack        TargetStatus = "on_track"
	TargetSlightlyBehind TargetStatus = "slightly_behind"
	TargetWayBehind      TargetStatus = "way_behind"
)

// IntervalSample is one completed interval's measurements
type IntervalSample struct {
	PaceMinPerKm float64 `json:"pace_min_per_km"`
	AvgHR        int     `json:"avg_hr,omitempty"` // 0 when no HR data
}

// RawStats is the current raw run state handed in by the run tracker
type RawStats struct {
	CurrentPace       float64         `json:"current_pace"`     // min/km
	CurrentDistance   float64         `json:"current_distance"` // meters
	ElapsedTime       float64         `json:"elapsed_time"`     // seconds
	CurrentHR         int             `json:"current_hr,omitempty"`
	MaxHR             int             `json:"max_hr,omitempty"`
	CurrentZone       int             `json:"current_zone,omitempty"` // 1-5, 0 when unknown
	ZonePercentages   map[int]float64 `json:"zone_percentages,omitempty"`
	InjuryRiskSignals []string        `json:"injury_risk_signals,omitempty"`
}

// Target is the runner's goal configuration for this run
type Target struct {
	Pace     float64 `json:"pace"`     // min/km
	Distance float64 `json:"distance"` // meters
}

// Snapshot is the structured performance state produced per coaching trigger.
// Constructed fresh each trigger and consumed immediately; never persisted
// verbatim.
type Snapshot struct {
	CurrentPace     float64
	TargetPace      float64
	CurrentDistance float64
	TargetDistance  float64
	ElapsedTime     float64

	CurrentHR       int
	MaxHR           int
	HeartRateZone   int
	ZonePercentages map[int]float64

	PaceTrend     PaceTrend
	HRTrend       HRTrend
	FatigueLevel  FatigueLevel
	TargetStatus  TargetStatus
	PaceDeviation float64 // percent

	CompletedIntervals int
	IntervalPaces      []float64
	InjuryRiskSignals  []string

	PerformanceSummary string
}

// HasHeartRate reports whether this snapshot carries usable HR data.
// Zone-based strategies are excluded downstream when it is false.
func (s *Snapshot) HasHeartRate() bool {
	return s.CurrentHR > 0
}

// Summary renders a one-line human-readable description of the snapshot
func (s *Snapshot) Summary() string {
	return fmt.Sprintf("%.1fkm of %.1fkm at %.2f min/km (target %.2f, %+.1f%%), pace %s, HR %s, fatigue %s, %s",
		s.CurrentDistance/1000, s.TargetDistance/1000,
		s.CurrentPace, s.TargetPace, s.PaceDeviation,
		s.PaceTrend, s.HRTrend, s.FatigueLevel, s.TargetStatus)
}
