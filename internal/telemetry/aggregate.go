package telemetry

// Tolerances for trend classification, expressed as fractional change
// between consecutive intervals.
const (
	paceTrendTolerance = 0.02
	hrRisingDelta      = 3 // bpm per interval
	hrSpikingDelta     = 8
)

// Options tunes the aggregation heuristics. Zero values fall back to the
// default policy.
type Options struct {
	PaceTolerancePct float64 // percent band treated as "stable", default 2
}

// Aggregate converts interval history plus current raw stats and target
// configuration into a Snapshot. It never fails on missing heart-rate data;
// HR-derived fields are simply left unknown.
func Aggregate(intervals []IntervalSample, raw RawStats, target Target, opts Options) Snapshot {
	tol := paceTrendTolerance
	if opts.PaceTolerancePct > 0 {
		tol = opts.PaceTolerancePct / 100
	}

	snap := Snapshot{
		CurrentPace:        raw.CurrentPace,
		TargetPace:         target.Pace,
		CurrentDistance:    raw.CurrentDistance,
		TargetDistance:     target.Distance,
		ElapsedTime:        raw.ElapsedTime,
		CurrentHR:          raw.CurrentHR,
		MaxHR:              raw.MaxHR,
		HeartRateZone:      raw.CurrentZone,
		ZonePercentages:    raw.ZonePercentages,
		CompletedIntervals: len(intervals),
		InjuryRiskSignals:  raw.InjuryRiskSignals,
	}

	for _, iv := range intervals {
		snap.IntervalPaces = append(snap.IntervalPaces, iv.PaceMinPerKm)
	}

	snap.PaceTrend = paceTrend(snap.IntervalPaces, tol)
	snap.HRTrend = hrTrend(intervals)
	snap.PaceDeviation = PaceDeviation(raw.CurrentPace, target.Pace)
	snap.TargetStatus = StatusForDeviation(snap.PaceDeviation)
	snap.FatigueLevel = fatigueLevel(snap)
	snap.PerformanceSummary = snap.Summary()
	return snap
}

// PaceDeviation returns (current-target)/target*100; zero when target is unset
func PaceDeviation(currentPace, targetPace float64) float64 {
	if targetPace <= 0 {
		return 0
	}
	return (currentPace - targetPace) / targetPace * 100
}

// StatusForDeviation is a pure, total function of pace deviation:
// within ±5% on track, faster ahead, 5-15% slower slightly behind,
// more than 15% slower way behind.
func StatusForDeviation(deviation float64) TargetStatus {
	switch {
	case deviation < -5:
		return TargetAhead
	case deviation <= 5:
		return TargetOnTrack
	case deviation <= 15:
		return TargetSlightlyBehind
	default:
		return TargetWayBehind
	}
}

// paceTrend compares the last three (or two) interval paces. Higher pace
// numbers are slower, so a monotonic increase beyond tolerance is declining.
func paceTrend(paces []float64, tol float64) PaceTrend {
	n := len(paces)
	if n < 2 {
		return PaceStable
	}
	window := paces
	if n > 3 {
		window = paces[n-3:]
	}

	up, down := 0, 0
	for i := 1; i < len(window); i++ {
		prev := window[i-1]
		if prev <= 0 {
			continue
		}
		change := (window[i] - prev) / prev
		switch {
		case change > tol:
			up++
		case change < -tol:
			down++
		}
	}

	switch {
	case up > 0 && down > 0:
		return PaceErratic
	case up > 0:
		return PaceDeclining
	case down > 0:
		return PaceImproving
	default:
		return PaceStable
	}
}

func hrTrend(intervals []IntervalSample) HRTrend {
	var hrs []int
	for _, iv := range intervals {
		if iv.AvgHR > 0 {
			hrs = append(hrs, iv.AvgHR)
		}
	}
	n := len(hrs)
	if n < 2 {
		return HRStable
	}
	window := hrs
	if n > 3 {
		window = hrs[n-3:]
	}

	total := window[len(window)-1] - window[0]
	perInterval := float64(total) / float64(len(window)-1)
	switch {
	case perInterval >= hrSpikingDelta:
		return HRSpiking
	case perInterval >= hrRisingDelta:
		return HRRising
	case perInterval <= -hrRisingDelta:
		return HRRecovering
	default:
		return HRStable
	}
}

// fatigueLevel combines elapsed distance fraction with pace and HR trends.
// Rising HR plus declining pace past the halfway mark escalates one level
// beyond rising HR alone.
func fatigueLevel(s Snapshot) FatigueLevel {
	progress := 0.0
	if s.TargetDistance > 0 {
		progress = s.CurrentDistance / s.TargetDistance
	}

	level := 0 // none
	if progress > 0.5 {
		level++
	}
	if progress > 0.85 {
		level++
	}

	hrStress := s.HRTrend == HRRising || s.HRTrend == HRSpiking
	paceFading := s.PaceTrend == PaceDeclining

	if hrStress {
		level++
	}
	if s.HRTrend == HRSpiking {
		level++
	}
	if hrStress && paceFading && progress > 0.5 {
		level++
	} else if paceFading {
		level++
	}

	levels := []FatigueLevel{FatigueNone, FatigueLow, FatigueModerate, FatigueHigh, FatigueSevere}
	if level >= len(levels) {
		level = len(levels) - 1
	}
	return levels[level]
}
