package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/stridecoach/internal/config"
	"github.com/briangreenhill/stridecoach/internal/kb"
	"github.com/briangreenhill/stridecoach/internal/telemetry"
)

func TestHybridScore(t *testing.T) {
	tests := []struct {
		name                                   string
		similarity, successRate, effectiveness float64
		expected                               float64
	}{
		{"all zero", 0, 0, 0, 0},
		{"all max", 1, 1, 1, 1},
		{"similarity only", 0.8, 0, 0, 0.4},
		{"history only", 0, 1, 1, 0.5},
		{"mixed", 0.9, 0.6, 0.5, 0.73},
	}

	for _, tt := range tests {
		got := HybridScore(tt.similarity, tt.successRate, tt.effectiveness)
		if diff := got - tt.expected; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("%s: HybridScore = %.4f, want %.4f", tt.name, got, tt.expected)
		}
	}
}

func TestHybridScoreSimilarityDominates(t *testing.T) {
	// A perfect history cannot outrank a much better situational match.
	lowSim := HybridScore(0.2, 1, 1)
	highSim := HybridScore(0.95, 0.5, 0.5)
	if lowSim >= highSim {
		t.Errorf("expected similarity-weighted score %.3f > history-weighted %.3f", highSim, lowSim)
	}
}

func TestRankByHybridScore(t *testing.T) {
	a := kb.Strategy{Title: "a", Similarity: 0.9, SuccessRate: 0.2, AvgEffectivenessScore: 0.2}
	b := kb.Strategy{Title: "b", Similarity: 0.7, SuccessRate: 0.9, AvgEffectivenessScore: 0.9}
	c := kb.Strategy{Title: "c", Similarity: 0.5, SuccessRate: 0.1, AvgEffectivenessScore: 0.1}

	candidates := []kb.Strategy{c, a, b}
	RankByHybridScore(candidates)

	// a: 0.45+0.06+0.04=0.55, b: 0.35+0.27+0.18=0.80, c: 0.25+0.03+0.02=0.30
	wantOrder := []string{"b", "a", "c"}
	for i, w := range wantOrder {
		if candidates[i].Title != w {
			t.Fatalf("rank %d = %s, want %s", i, candidates[i].Title, w)
		}
	}
}

func TestRankByHybridScoreTieBreak(t *testing.T) {
	veteran := kb.Strategy{Title: "veteran", Similarity: 0.8, TimesUsed: 40}
	rookie := kb.Strategy{Title: "rookie", Similarity: 0.8, TimesUsed: 2}

	candidates := []kb.Strategy{rookie, veteran}
	RankByHybridScore(candidates)

	if candidates[0].Title != "veteran" {
		t.Errorf("tie should go to the more used strategy, got %s first", candidates[0].Title)
	}
}

func TestRunnerLevelFor(t *testing.T) {
	cfg := config.CoachingConfig{AdvancedDeviationPct: 3, BeginnerDeviationPct: 15}

	tests := []struct {
		name     string
		snap     telemetry.Snapshot
		expected kb.RunnerLevel
	}{
		{
			"steady and close to target",
			telemetry.Snapshot{PaceTrend: telemetry.PaceStable, HRTrend: telemetry.HRStable, PaceDeviation: 1.5},
			kb.LevelAdvanced,
		},
		{
			"erratic pacing",
			telemetry.Snapshot{PaceTrend: telemetry.PaceErratic, HRTrend: telemetry.HRStable, PaceDeviation: 4},
			kb.LevelBeginner,
		},
		{
			"HR spiking",
			telemetry.Snapshot{PaceTrend: telemetry.PaceStable, HRTrend: telemetry.HRSpiking, PaceDeviation: 4},
			kb.LevelBeginner,
		},
		{
			"far off target",
			telemetry.Snapshot{PaceTrend: telemetry.PaceStable, HRTrend: telemetry.HRRising, PaceDeviation: 22},
			kb.LevelBeginner,
		},
		{
			"middle of the road",
			telemetry.Snapshot{PaceTrend: telemetry.PaceDeclining, HRTrend: telemetry.HRStable, PaceDeviation: 8},
			kb.LevelIntermediate,
		},
		{
			"ahead of target counts as deviation",
			telemetry.Snapshot{PaceTrend: telemetry.PaceStable, HRTrend: telemetry.HRStable, PaceDeviation: -2},
			kb.LevelAdvanced,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RunnerLevelFor(tt.snap, cfg)
			if got != tt.expected {
				t.Errorf("RunnerLevelFor = %s, want %s", got, tt.expected)
			}
		})
	}
}

type fakeKB struct {
	vector      []kb.Strategy
	vectorErr   error
	categorical []kb.Strategy
	catErr      error

	vectorCalls int
	catCalls    int
}

func (f *fakeKB) VectorSearch(ctx context.Context, queryEmbedding []float32, threshold float64, limit int, distance kb.DistanceCategory, level kb.RunnerLevel, strategyType kb.StrategyType) ([]kb.Strategy, error) {
	f.vectorCalls++
	return f.vector, f.vectorErr
}

func (f *fakeKB) QueryByCategory(ctx context.Context, distance kb.DistanceCategory, level kb.RunnerLevel, strategyType kb.StrategyType, limit int) ([]kb.Strategy, error) {
	f.catCalls++
	return f.categorical, f.catErr
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

func testSnapshot() telemetry.Snapshot {
	return telemetry.Snapshot{
		TargetDistance: 5000,
		PaceTrend:      telemetry.PaceStable,
		HRTrend:        telemetry.HRStable,
		PaceDeviation:  1,
	}
}

func TestRetrievePrefersVectorSearch(t *testing.T) {
	store := &fakeKB{
		vector: []kb.Strategy{{ID: uuid.New(), Title: "vector hit", Similarity: 0.9}},
	}
	r := NewRetriever(zerolog.Nop(), store, &fakeEmbedder{vec: []float32{0.1}}, config.CoachingConfig{})

	got, err := r.Retrieve(context.Background(), "situation", testSnapshot())
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 1 || got[0].Title != "vector hit" {
		t.Fatalf("got %v, want the vector hit", got)
	}
	if store.catCalls != 0 {
		t.Error("categorical query should not run when vector search has results")
	}
}

func TestRetrieveFallsBackOnEmbeddingFailure(t *testing.T) {
	store := &fakeKB{
		categorical: []kb.Strategy{{ID: uuid.New(), Title: "categorical hit"}},
	}
	r := NewRetriever(zerolog.Nop(), store, &fakeEmbedder{err: errors.New("embedding service down")}, config.CoachingConfig{})

	got, err := r.Retrieve(context.Background(), "situation", testSnapshot())
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 1 || got[0].Title != "categorical hit" {
		t.Fatalf("got %v, want the categorical hit", got)
	}
	if store.vectorCalls != 0 {
		t.Error("vector search should be skipped when embedding fails")
	}
}

func TestRetrieveFallsBackOnEmptyVectorResults(t *testing.T) {
	store := &fakeKB{
		categorical: []kb.Strategy{{ID: uuid.New(), Title: "categorical hit"}},
	}
	r := NewRetriever(zerolog.Nop(), store, &fakeEmbedder{vec: []float32{0.1}}, config.CoachingConfig{})

	got, err := r.Retrieve(context.Background(), "situation", testSnapshot())
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 1 || got[0].Title != "categorical hit" {
		t.Fatalf("got %v, want the categorical hit", got)
	}
}

func TestRetrieveNoCandidates(t *testing.T) {
	r := NewRetriever(zerolog.Nop(), &fakeKB{}, &fakeEmbedder{vec: []float32{0.1}}, config.CoachingConfig{})

	_, err := r.Retrieve(context.Background(), "situation", testSnapshot())
	if !errors.Is(err, ErrNoStrategy) {
		t.Fatalf("err = %v, want ErrNoStrategy", err)
	}
}

func TestRetrieveCapsRankedCandidates(t *testing.T) {
	var many []kb.Strategy
	for i := 0; i < 15; i++ {
		many = append(many, kb.Strategy{ID: uuid.New(), Similarity: float64(i) / 15})
	}
	store := &fakeKB{vector: many}
	r := NewRetriever(zerolog.Nop(), store, &fakeEmbedder{vec: []float32{0.1}}, config.CoachingConfig{RankedLimit: 10})

	got, err := r.Retrieve(context.Background(), "situation", testSnapshot())
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("got %d candidates, want 10", len(got))
	}
	// Best-first after ranking.
	for i := 1; i < len(got); i++ {
		if got[i].Similarity > got[i-1].Similarity {
			t.Fatalf("candidates not ranked best-first at %d", i)
		}
	}
}
