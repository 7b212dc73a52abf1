package engine

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/stridecoach/internal/ai"
	"github.com/briangreenhill/stridecoach/internal/config"
	"github.com/briangreenhill/stridecoach/internal/kb"
	"github.com/briangreenhill/stridecoach/internal/telemetry"
)

// ErrNoStrategy signals an empty knowledge base or zero candidates for the
// current situation. Callers skip delivery gracefully for this cycle.
var ErrNoStrategy = errors.New("no strategy available")

// KnowledgeBase is the slice of the kb store the retriever needs
type KnowledgeBase interface {
	QueryByCategory(ctx context.Context, distance kb.DistanceCategory, level kb.RunnerLevel, strategyType kb.StrategyType, limit int) ([]kb.Strategy, error)
	VectorSearch(ctx context.Context, queryEmbedding []float32, threshold float64, limit int, distance kb.DistanceCategory, level kb.RunnerLevel, strategyType kb.StrategyType) ([]kb.Strategy, error)
}

// Retriever embeds the situation and pulls hybrid-ranked candidates from the
// knowledge base.
type Retriever struct {
	kb       KnowledgeBase
	embedder ai.Embedder
	cfg      config.CoachingConfig
	logger   zerolog.Logger
}

// NewRetriever wires the retriever
func NewRetriever(logger zerolog.Logger, store KnowledgeBase, embedder ai.Embedder, cfg config.CoachingConfig) *Retriever {
	return &Retriever{kb: store, embedder: embedder, cfg: cfg, logger: logger}
}

// RunnerLevelFor infers the experience bucket from pacing and HR control.
// Thresholds are policy defaults, tunable through config.
func RunnerLevelFor(snap telemetry.Snapshot, cfg config.CoachingConfig) kb.RunnerLevel {
	advanced := cfg.AdvancedDeviationPct
	if advanced <= 0 {
		advanced = 3
	}
	beginner := cfg.BeginnerDeviationPct
	if beginner <= 0 {
		beginner = 15
	}

	dev := snap.PaceDeviation
	if dev < 0 {
		dev = -dev
	}

	if snap.PaceTrend == telemetry.PaceStable && snap.HRTrend == telemetry.HRStable && dev < advanced {
		return kb.LevelAdvanced
	}
	if snap.PaceTrend == telemetry.PaceErratic || snap.HRTrend == telemetry.HRSpiking || dev > beginner {
		return kb.LevelBeginner
	}
	return kb.LevelIntermediate
}

// HybridScore combines vector similarity with historical performance:
// 0.5·similarity + 0.3·success_rate + 0.2·avg_effectiveness. Rows without an
// embedding compete on the historical terms alone.
func HybridScore(similarity, successRate, avgEffectiveness float64) float64 {
	return 0.5*similarity + 0.3*successRate + 0.2*avgEffectiveness
}

// RankByHybridScore orders candidates best-first, breaking ties toward the
// strategy with more recorded uses.
func RankByHybridScore(candidates []kb.Strategy) {
	sort.SliceStable(candidates, func(i, j int) bool {
		si := HybridScore(candidates[i].Similarity, candidates[i].SuccessRate, candidates[i].AvgEffectivenessScore)
		sj := HybridScore(candidates[j].Similarity, candidates[j].SuccessRate, candidates[j].AvgEffectivenessScore)
		if si != sj {
			return si > sj
		}
		return candidates[i].TimesUsed > candidates[j].TimesUsed
	})
}

// Retrieve returns the top hybrid-ranked candidates for the situation.
// Vector search is preferred; embedding failure or zero vector matches fall
// back to the categorical query so a degraded embedding service never blocks
// coaching.
func (r *Retriever) Retrieve(ctx context.Context, situationDescription string, snap telemetry.Snapshot) ([]kb.Strategy, error) {
	distance := kb.CategoryForDistance(snap.TargetDistance)
	level := RunnerLevelFor(snap, r.cfg)

	limit := r.cfg.CandidateLimit
	if limit <= 0 {
		limit = 15
	}

	var candidates []kb.Strategy
	queryEmbedding, err := r.embedder.Embed(ctx, situationDescription)
	if err != nil {
		r.logger.Warn().Err(err).Msg("situation embedding failed, using categorical query")
	} else {
		candidates, err = r.kb.VectorSearch(ctx, queryEmbedding, r.cfg.MatchThreshold, limit, distance, level, "")
		if err != nil {
			r.logger.Warn().Err(err).Msg("vector search failed, using categorical query")
			candidates = nil
		}
	}

	if len(candidates) == 0 {
		candidates, err = r.kb.QueryByCategory(ctx, distance, level, "", limit)
		if err != nil {
			return nil, err
		}
	}

	if len(candidates) == 0 {
		return nil, ErrNoStrategy
	}

	RankByHybridScore(candidates)

	ranked := r.cfg.RankedLimit
	if ranked <= 0 {
		ranked = 10
	}
	if len(candidates) > ranked {
		candidates = candidates[:ranked]
	}

	r.logger.Debug().
		Str("distance", string(distance)).
		Str("level", string(level)).
		Int("candidates", len(candidates)).
		Msg("strategy candidates retrieved")
	return candidates, nil
}
