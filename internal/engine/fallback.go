package engine

import (
	"github.com/briangreenhill/stridecoach/internal/kb"
	"github.com/briangreenhill/stridecoach/internal/telemetry"
)

// StaticFallbackStrategies returns curated strategies for when the knowledge
// base is empty or unreachable. They carry no KB id, so executions recorded
// against them never touch usage counters.
func StaticFallbackStrategies(sit Situation) []kb.Strategy {
	var out []kb.Strategy

	if sit.CardiacDrift {
		out = append(out, kb.Strategy{
			Title:        "Cardiac Drift Management",
			StrategyText: "Classic drift pattern. Ease 15 sec/km for next 500m. Focus on efficiency, not speed.",
		})
	}
	if sit.PaceTrend == telemetry.PaceDeclining {
		out = append(out, kb.Strategy{
			Title:        "Cadence Reset",
			StrategyText: "Quick feet, light steps. Count to 180. Shorten stride, find your rhythm.",
		})
	}
	if sit.FatigueLevel == telemetry.FatigueHigh || sit.FatigueLevel == telemetry.FatigueSevere {
		out = append(out, kb.Strategy{
			Title:        "Active Recovery",
			StrategyText: "Next 500m: easy pace, Zone 2. Shake out arms, breathe deep. Recharge.",
		})
	}
	if sit.InjuryRisk {
		out = append(out, kb.Strategy{
			Title:        "Injury Prevention",
			StrategyText: "Warning signs detected. Ease pace immediately. Shorter strides, land softly.",
		})
	}
	if len(out) == 0 {
		out = append(out, kb.Strategy{
			Title:        "Maintain Pace",
			StrategyText: "Hold current pace. Stay in Zone 3. Steady breathing. You're doing well.",
		})
	}
	return out
}
