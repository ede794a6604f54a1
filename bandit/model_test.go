package bandit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTotalTrialsAndRewardAccumulateAcrossUpdates(t *testing.T) {
	m := New(EpsilonGreedy, []string{"a", "b"})
	for i := 0; i < 50; i++ {
		require.NoError(t, m.Reward("a", 0.5, SelectionContext{}))
	}
	assert.Equal(t, int64(50), m.TotalTrials())
	assert.InDelta(t, 25.0, m.TotalReward(), 0.001)
}

func TestRewardRejectsOutOfRangeValues(t *testing.T) {
	m := New(EpsilonGreedy, []string{"a", "b"})
	assert.Error(t, m.Reward("a", -0.01, SelectionContext{}))
	assert.Error(t, m.Reward("a", 1.01, SelectionContext{}))
	assert.NoError(t, m.Reward("a", 0.0, SelectionContext{}))
	assert.NoError(t, m.Reward("a", 1.0, SelectionContext{}))
}

func TestRewardRejectsUnknownArm(t *testing.T) {
	m := New(EpsilonGreedy, []string{"a"})
	assert.Error(t, m.Reward("nonexistent", 0.5, SelectionContext{}))
}

func TestUCBTriesEveryArmBeforeExploiting(t *testing.T) {
	m := New(UCB, []string{"a", "b", "c"})
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		arm := m.Select(SelectionContext{})
		seen[arm] = true
		require.NoError(t, m.Reward(arm, 0.5, SelectionContext{}))
	}
	assert.Len(t, seen, 3)
}

func TestBanditConvergesTowardHigherRewardArm(t *testing.T) {
	m := New(EpsilonGreedy, []string{"a", "b"}, WithEpsilon(0.2, 0.995, 0.01))
	for i := 0; i < 500; i++ {
		require.NoError(t, m.Reward("a", 0.9, SelectionContext{}))
		require.NoError(t, m.Reward("b", 0.1, SelectionContext{}))
	}
	aCount := 0
	for i := 0; i < 100; i++ {
		if m.Select(SelectionContext{}) == "a" {
			aCount++
		}
	}
	assert.GreaterOrEqual(t, aCount, 70)
}

func TestResetZeroesAllCounters(t *testing.T) {
	m := New(EpsilonGreedy, []string{"a", "b"})
	require.NoError(t, m.Reward("a", 0.5, SelectionContext{}))
	m.Reset()
	assert.Equal(t, int64(0), m.TotalTrials())
	assert.Equal(t, 0.0, m.TotalReward())
}

func TestContextualBiasFavorsDominantArmAboveThreshold(t *testing.T) {
	m := New(EpsilonGreedy, []string{"a", "b"}, WithEpsilon(0, 1, 0))
	sctx := SelectionContext{ProjectID: "p1", AgentTypes: []string{"writer"}, WorkingHoursBucket: "morning"}
	for i := 0; i < 12; i++ {
		require.NoError(t, m.Reward("a", 0.8, sctx))
	}
	// b has a higher raw mean but lacks the contextual dominance, and the
	// gap is smaller than the contextual bonus applied to a.
	require.NoError(t, m.Reward("b", 0.83, SelectionContext{}))

	chosen := m.Select(sctx)
	assert.Equal(t, "a", chosen)
}

func TestExportImportRoundTripPreservesCountsAndRewardSums(t *testing.T) {
	m := New(UCB, []string{"a", "b"})
	require.NoError(t, m.Reward("a", 0.3, SelectionContext{}))
	require.NoError(t, m.Reward("a", 0.7, SelectionContext{}))
	require.NoError(t, m.Reward("b", 0.5, SelectionContext{}))

	snap := m.Export(1000)

	restored := New(UCB, []string{"a", "b"})
	require.NoError(t, restored.Import(snap))

	assert.Equal(t, m.TotalTrials(), restored.TotalTrials())
	assert.InDelta(t, m.TotalReward(), restored.TotalReward(), 0.0001)

	origStats := m.Stats()
	restoredStats := restored.Stats()
	require.Len(t, restoredStats, len(origStats))
	for i := range origStats {
		assert.Equal(t, origStats[i].Trials, restoredStats[i].Trials)
		assert.InDelta(t, origStats[i].TotalReward, restoredStats[i].TotalReward, 0.0001)
	}
}

func TestImportRejectsMismatchedAlgorithm(t *testing.T) {
	m := New(UCB, []string{"a"})
	snap := m.Export(0)
	other := New(EpsilonGreedy, []string{"a"})
	assert.Error(t, other.Import(snap))
}

func TestSaveAndLoadSnapshotThroughMemoryStorage(t *testing.T) {
	store := NewMemoryStorage()
	m := New(EpsilonGreedy, []string{"a"})
	require.NoError(t, m.Reward("a", 0.6, SelectionContext{}))
	snap := m.Export(123)

	ctx := context.Background()
	require.NoError(t, SaveSnapshot(ctx, store, "model-key", snap, 0))

	loaded, ok, err := LoadSnapshot(ctx, store, "model-key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap.Trials, loaded.Trials)
}

func TestLoadSnapshotMissingKeyReturnsNotFoundFlag(t *testing.T) {
	store := NewMemoryStorage()
	_, ok, err := LoadSnapshot(context.Background(), store, "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}
