package exec

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewStore(pool)
}

func testExecution(userID uuid.UUID) *Execution {
	return &Execution{
		ID:     uuid.New(),
		UserID: userID,
		ExecutionContext: Context{
			Pace:         6.75,
			TargetStatus: "slightly_behind",
			PaceTrend:    "declining",
		},
		StrategyDelivered:   "Quick feet, light steps.",
		ConditionMatchScore: 0.85,
	}
}

func TestInsertAndGetExecution(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	e := testExecution(uuid.New())
	require.NoError(t, store.Insert(ctx, e))
	require.False(t, e.ExecutedAt.IsZero(), "executed_at comes back from the insert")

	got, err := store.Get(ctx, e.ID)
	require.NoError(t, err)
	require.Equal(t, e.UserID, got.UserID)
	require.Nil(t, got.StrategyID)
	require.Nil(t, got.RunID)
	require.False(t, got.OutcomeMeasured)
	require.Equal(t, "slightly_behind", got.ExecutionContext.TargetStatus)
	require.Equal(t, e.StrategyDelivered, got.StrategyDelivered)
}

func TestRecordOutcomeExactlyOnce(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	e := testExecution(uuid.New())
	require.NoError(t, store.Insert(ctx, e))

	paceChange := -0.25
	metrics := OutcomeMetrics{PaceChange: &paceChange}

	require.NoError(t, store.RecordOutcome(ctx, e.ID, metrics, true, 0.8, "pace improved"))

	// A second measurement must be rejected, not overwrite the first.
	err := store.RecordOutcome(ctx, e.ID, OutcomeMetrics{}, false, 0.1, "second opinion")
	require.Error(t, err)

	got, err := store.Get(ctx, e.ID)
	require.NoError(t, err)
	require.True(t, got.OutcomeMeasured)
	require.NotNil(t, got.WasEffective)
	require.True(t, *got.WasEffective)
	require.NotNil(t, got.EffectivenessScore)
	require.InDelta(t, 0.8, *got.EffectivenessScore, 1e-9)
	require.NotNil(t, got.EffectivenessReason)
	require.Equal(t, "pace improved", *got.EffectivenessReason)
	require.NotNil(t, got.OutcomeMetrics)
	require.NotNil(t, got.OutcomeMetrics.PaceChange)
	require.InDelta(t, -0.25, *got.OutcomeMetrics.PaceChange, 1e-9)
	require.NotNil(t, got.OutcomeMeasuredAt)
}

func TestRecordOutcomeConcurrent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	e := testExecution(uuid.New())
	require.NoError(t, store.Insert(ctx, e))

	// Many racing measurements: exactly one wins.
	const n = 10
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(score float64) {
			defer wg.Done()
			results <- store.RecordOutcome(ctx, e.ID, OutcomeMetrics{}, true, score, "racer")
		}(float64(i) / n)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		}
	}
	require.Equal(t, 1, wins, "exactly one measurement may land")
}

func TestRecordOutcomeUnknownExecution(t *testing.T) {
	store := testStore(t)
	err := store.RecordOutcome(context.Background(), uuid.New(), OutcomeMetrics{}, true, 0.8, "ghost")
	require.Error(t, err)
}

func TestListByUser(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	userID := uuid.New()
	first := testExecution(userID)
	second := testExecution(userID)
	require.NoError(t, store.Insert(ctx, first))
	require.NoError(t, store.Insert(ctx, second))

	got, err := store.ListByUser(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Newest first.
	require.Equal(t, second.ID, got[0].ID)
	require.Equal(t, first.ID, got[1].ID)
}
