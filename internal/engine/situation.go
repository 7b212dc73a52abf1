// Package engine selects the single best coaching strategy for the current
// moment: it derives a situation from the performance snapshot, retrieves
// candidates from the knowledge base, hybrid-ranks them, and asks the LLM to
// pick and adapt one, falling back deterministically when the LLM is
// unavailable.
package engine

import (
	"fmt"
	"strings"

	"github.com/briangreenhill/stridecoach/internal/telemetry"
)

// Personality is the runner's coaching-personality preference
type Personality string

const (
	PersonalityStrategist Personality = "strategist"
	PersonalityPacer      Personality = "pacer"
	PersonalityFinisher   Personality = "finisher"
)

// Energy is the coach's delivery energy preference
type Energy string

const (
	EnergyLow    Energy = "low"
	EnergyMedium Energy = "medium"
	EnergyHigh   Energy = "high"
)

// Situation is the derived matching context for one coaching trigger
type Situation struct {
	PaceTrend    telemetry.PaceTrend
	HRTrend      telemetry.HRTrend
	FatigueLevel telemetry.FatigueLevel
	TargetStatus telemetry.TargetStatus

	CardiacDrift   bool // pace declining + HR rising
	ZoneTooHigh    bool // >25% of time in zones 4-5
	InjuryRisk     bool
	FormBreakdown  bool // pace declining but HR flat, mechanical issue
	PushPossible   bool // HR headroom and low fatigue
	RecoveryNeeded bool

	Personality Personality
	Energy      Energy

	Tags []string
}

// BuildSituation derives the matching flags and tags from a snapshot
func BuildSituation(snap telemetry.Snapshot, personality Personality, energy Energy) Situation {
	s := Situation{
		PaceTrend:    snap.PaceTrend,
		HRTrend:      snap.HRTrend,
		FatigueLevel: snap.FatigueLevel,
		TargetStatus: snap.TargetStatus,
		Personality:  personality,
		Energy:       energy,
	}

	hrStressed := snap.HRTrend == telemetry.HRRising || snap.HRTrend == telemetry.HRSpiking

	s.CardiacDrift = snap.PaceTrend == telemetry.PaceDeclining && hrStressed

	zone45 := snap.ZonePercentages[4] + snap.ZonePercentages[5]
	s.ZoneTooHigh = zone45 > 25

	s.InjuryRisk = len(snap.InjuryRiskSignals) > 0

	s.FormBreakdown = snap.PaceTrend == telemetry.PaceDeclining && snap.HRTrend == telemetry.HRStable

	lowFatigue := snap.FatigueLevel == telemetry.FatigueNone || snap.FatigueLevel == telemetry.FatigueLow
	hrHeadroom := snap.CurrentHR == 0 || snap.MaxHR == 0 ||
		float64(snap.CurrentHR)/float64(snap.MaxHR) < 0.85
	s.PushPossible = lowFatigue && snap.HRTrend == telemetry.HRStable && hrHeadroom

	highFatigue := snap.FatigueLevel == telemetry.FatigueHigh || snap.FatigueLevel == telemetry.FatigueSevere
	s.RecoveryNeeded = highFatigue || s.ZoneTooHigh || s.CardiacDrift

	s.Tags = s.buildTags()
	return s
}

func (s *Situation) buildTags() []string {
	var tags []string

	switch s.PaceTrend {
	case telemetry.PaceDeclining:
		tags = append(tags, "pace_decline")
	case telemetry.PaceStable:
		tags = append(tags, "pace_stable")
	case telemetry.PaceImproving:
		tags = append(tags, "pace_improving")
	}

	switch s.HRTrend {
	case telemetry.HRRising:
		tags = append(tags, "hr_rising")
	case telemetry.HRStable:
		tags = append(tags, "hr_stable")
	case telemetry.HRSpiking:
		tags = append(tags, "hr_spiking")
	}

	switch s.TargetStatus {
	case telemetry.TargetAhead:
		tags = append(tags, "target_ahead")
	case telemetry.TargetOnTrack:
		tags = append(tags, "target_on_track")
	case telemetry.TargetSlightlyBehind, telemetry.TargetWayBehind:
		tags = append(tags, "target_behind")
	}

	switch s.FatigueLevel {
	case telemetry.FatigueLow:
		tags = append(tags, "fatigue_low")
	case telemetry.FatigueModerate:
		tags = append(tags, "fatigue_moderate")
	case telemetry.FatigueHigh, telemetry.FatigueSevere:
		tags = append(tags, "fatigue_high")
	}

	if s.CardiacDrift {
		tags = append(tags, "cardiac_drift")
	}
	if s.ZoneTooHigh {
		tags = append(tags, "zone_too_high")
	}
	if s.InjuryRisk {
		tags = append(tags, "injury_risk")
	}
	if s.FormBreakdown {
		tags = append(tags, "form_breakdown")
	}
	if s.PushPossible {
		tags = append(tags, "push_possible")
	}
	if s.RecoveryNeeded {
		tags = append(tags, "recovery_needed")
	}
	return tags
}

// Description builds the compact situation text used both for the embedding
// query and for LLM condition matching.
func (s *Situation) Description(snap telemetry.Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "At km %.1f of %.1fkm target.\n", snap.CurrentDistance/1000, snap.TargetDistance/1000)

	fmt.Fprintf(&b, "Current pace: %.2f min/km", snap.CurrentPace)
	if snap.TargetPace > 0 {
		diff := snap.CurrentPace - snap.TargetPace
		switch {
		case diff > 0.1:
			fmt.Fprintf(&b, " (slower by %.2f min/km)", diff)
		case diff < -0.1:
			fmt.Fprintf(&b, " (faster by %.2f min/km)", -diff)
		default:
			b.WriteString(" (on target)")
		}
	}
	b.WriteString("\n")

	if snap.HasHeartRate() {
		fmt.Fprintf(&b, "HR: %d BPM", snap.CurrentHR)
		if snap.HeartRateZone > 0 {
			fmt.Fprintf(&b, ", Zone %d", snap.HeartRateZone)
		}
		fmt.Fprintf(&b, " (%s)\n", snap.HRTrend)
	}

	fmt.Fprintf(&b, "Pace trend: %s\n", s.PaceTrend)
	fmt.Fprintf(&b, "HR trend: %s\n", s.HRTrend)
	fmt.Fprintf(&b, "Fatigue: %s\n", s.FatigueLevel)
	fmt.Fprintf(&b, "Target status: %s\n", s.TargetStatus)

	if s.CardiacDrift {
		b.WriteString("Cardiac drift detected (pace down, HR up).\n")
	}
	if s.ZoneTooHigh {
		b.WriteString("Zone too high (>25% Zone 4-5).\n")
	}
	if s.InjuryRisk {
		b.WriteString("Injury risk signals present.\n")
	}
	if s.FormBreakdown {
		b.WriteString("Form breakdown detected.\n")
	}
	if s.PushPossible {
		b.WriteString("Runner has capacity to push.\n")
	}
	if s.RecoveryNeeded {
		b.WriteString("Active recovery needed.\n")
	}

	fmt.Fprintf(&b, "Coach personality: %s, energy level: %s.", s.Personality, s.Energy)
	return b.String()
}
