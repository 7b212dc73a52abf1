package telemetry

import (
	"math"
	"testing"
)

func TestPaceDeviation(t *testing.T) {
	tests := []struct {
		current  float64
		target   float64
		expected float64
	}{
		{6.0, 6.0, 0},
		{6.75, 6.0, 12.5},
		{5.7, 6.0, -5.0},
		{6.3, 6.0, 5.0},
		{7.2, 6.0, 20.0},
		{6.0, 0, 0},  // no target configured
		{6.0, -1, 0}, // nonsense target
	}

	for _, tt := range tests {
		got := PaceDeviation(tt.current, tt.target)
		if math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("PaceDeviation(%.2f, %.2f) = %.4f, want %.4f", tt.current, tt.target, got, tt.expected)
		}
	}
}

func TestStatusForDeviation(t *testing.T) {
	tests := []struct {
		deviation float64
		expected  TargetStatus
	}{
		{0, TargetOnTrack},
		{-5, TargetOnTrack}, // boundary: exactly -5 is still on track
		{5, TargetOnTrack},  // boundary: exactly +5 is still on track
		{-10, TargetAhead},
		{-5.01, TargetAhead},
		{8, TargetSlightlyBehind},
		{15, TargetSlightlyBehind},
		{15.01, TargetWayBehind},
		{20, TargetWayBehind},
	}

	for _, tt := range tests {
		got := StatusForDeviation(tt.deviation)
		if got != tt.expected {
			t.Errorf("StatusForDeviation(%.2f) = %s, want %s", tt.deviation, got, tt.expected)
		}
	}
}

func TestPaceTrend(t *testing.T) {
	tests := []struct {
		name     string
		paces    []float64
		expected PaceTrend
	}{
		{"no intervals", nil, PaceStable},
		{"one interval", []float64{6.0}, PaceStable},
		{"flat", []float64{6.0, 6.0, 6.0}, PaceStable},
		{"within tolerance", []float64{6.0, 6.05, 6.1}, PaceStable},
		{"slowing", []float64{6.0, 6.3, 6.6}, PaceDeclining},
		{"speeding up", []float64{6.6, 6.3, 6.0}, PaceImproving},
		{"up and down", []float64{6.0, 6.5, 6.0}, PaceErratic},
		{"only last three count", []float64{9.0, 6.0, 6.0, 6.0}, PaceStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := paceTrend(tt.paces, 0.02)
			if got != tt.expected {
				t.Errorf("paceTrend(%v) = %s, want %s", tt.paces, got, tt.expected)
			}
		})
	}
}

func TestHRTrend(t *testing.T) {
	mk := func(hrs ...int) []IntervalSample {
		out := make([]IntervalSample, len(hrs))
		for i, hr := range hrs {
			out[i] = IntervalSample{PaceMinPerKm: 6.0, AvgHR: hr}
		}
		return out
	}

	tests := []struct {
		name      string
		intervals []IntervalSample
		expected  HRTrend
	}{
		{"no data", nil, HRStable},
		{"single reading", mk(150), HRStable},
		{"flat", mk(150, 151, 150), HRStable},
		{"rising", mk(150, 154, 158), HRRising},
		{"spiking", mk(140, 150, 160), HRSpiking},
		{"recovering", mk(160, 155, 150), HRRecovering},
		{"missing readings skipped", []IntervalSample{{AvgHR: 0}, {AvgHR: 150}, {AvgHR: 154}, {AvgHR: 158}}, HRRising},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hrTrend(tt.intervals)
			if got != tt.expected {
				t.Errorf("hrTrend = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestAggregateMissingHeartRate(t *testing.T) {
	intervals := []IntervalSample{
		{PaceMinPerKm: 6.0},
		{PaceMinPerKm: 6.1},
	}
	raw := RawStats{CurrentPace: 6.1, CurrentDistance: 2000, ElapsedTime: 732}
	target := Target{Pace: 6.0, Distance: 10000}

	snap := Aggregate(intervals, raw, target, Options{})

	if snap.HasHeartRate() {
		t.Error("expected HasHeartRate to be false without HR data")
	}
	if snap.HRTrend != HRStable {
		t.Errorf("HRTrend = %s, want %s", snap.HRTrend, HRStable)
	}
	if snap.TargetStatus != TargetOnTrack {
		t.Errorf("TargetStatus = %s, want %s", snap.TargetStatus, TargetOnTrack)
	}
}

func TestAggregateSlightlyBehind(t *testing.T) {
	intervals := []IntervalSample{
		{PaceMinPerKm: 6.2, AvgHR: 155},
		{PaceMinPerKm: 6.5, AvgHR: 160},
		{PaceMinPerKm: 6.75, AvgHR: 166},
	}
	raw := RawStats{
		CurrentPace:     6.75,
		CurrentDistance: 3000,
		ElapsedTime:     1170,
		CurrentHR:       166,
		MaxHR:           190,
		CurrentZone:     4,
	}
	target := Target{Pace: 6.0, Distance: 5000}

	snap := Aggregate(intervals, raw, target, Options{})

	if math.Abs(snap.PaceDeviation-12.5) > 1e-9 {
		t.Errorf("PaceDeviation = %.4f, want 12.5", snap.PaceDeviation)
	}
	if snap.TargetStatus != TargetSlightlyBehind {
		t.Errorf("TargetStatus = %s, want %s", snap.TargetStatus, TargetSlightlyBehind)
	}
	if snap.PaceTrend != PaceDeclining {
		t.Errorf("PaceTrend = %s, want %s", snap.PaceTrend, PaceDeclining)
	}
	if snap.HRTrend != HRRising {
		t.Errorf("HRTrend = %s, want %s", snap.HRTrend, HRRising)
	}
	if snap.CompletedIntervals != 3 {
		t.Errorf("CompletedIntervals = %d, want 3", snap.CompletedIntervals)
	}
	if snap.PerformanceSummary == "" {
		t.Error("expected a performance summary")
	}
}

func TestFatigueLevel(t *testing.T) {
	tests := []struct {
		name     string
		snap     Snapshot
		expected FatigueLevel
	}{
		{
			"fresh start",
			Snapshot{CurrentDistance: 500, TargetDistance: 10000, PaceTrend: PaceStable, HRTrend: HRStable},
			FatigueNone,
		},
		{
			"past halfway",
			Snapshot{CurrentDistance: 6000, TargetDistance: 10000, PaceTrend: PaceStable, HRTrend: HRStable},
			FatigueLow,
		},
		{
			"late and fading",
			Snapshot{CurrentDistance: 9000, TargetDistance: 10000, PaceTrend: PaceDeclining, HRTrend: HRRising},
			FatigueSevere,
		},
		{
			"spiking early",
			Snapshot{CurrentDistance: 1000, TargetDistance: 10000, PaceTrend: PaceStable, HRTrend: HRSpiking},
			FatigueModerate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fatigueLevel(tt.snap)
			if got != tt.expected {
				t.Errorf("fatigueLevel = %s, want %s", got, tt.expected)
			}
		})
	}
}
