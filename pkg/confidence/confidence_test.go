package confidence

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandsops/strands/pkg/policy"
)

func newTestService() (*Service, *MemoryStore) {
	store := NewMemoryStore()
	return NewService(store, policy.DefaultConfidencePolicy{}, nil), store
}

func TestLastConfidenceDefaultsToOne(t *testing.T) {
	s, _ := newTestService()

	assert.Equal(t, 1.0, s.LastConfidence(context.Background(), "loganalysis"))
}

func TestApplyTimeDecay(t *testing.T) {
	ctx := context.Background()
	s, store := newTestService()

	require.NoError(t, s.ApplyTimeDecay(ctx, "loganalysis", 0.001))

	assert.InDelta(t, 0.999, s.LastConfidence(ctx, "loganalysis"), 0.0001)
	history := store.History("loganalysis")
	require.Len(t, history, 1)
	assert.Equal(t, EventTimeDecay, history[0].SourceEvent)
	assert.Equal(t, int64(1), history[0].SequenceID)
}

func TestPenalizeForOverrideClampsAtZero(t *testing.T) {
	ctx := context.Background()
	s, store := newTestService()

	for i := 0; i < 12; i++ {
		require.NoError(t, s.PenalizeForOverride(ctx, "networkscanner", "d1"))
	}

	assert.Equal(t, 0.0, s.LastConfidence(ctx, "networkscanner"))
	history := store.History("networkscanner")
	assert.Equal(t, "d1", history[0].CauseRef)
	assert.Equal(t, EventHumanOverride, history[0].SourceEvent)
}

func TestReinforceForSuccessClampsAtOne(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService()

	require.NoError(t, s.ReinforceForSuccess(ctx, "loganalysis", "d2"))

	assert.Equal(t, 1.0, s.LastConfidence(ctx, "loganalysis"))
}

func TestSequenceIDsMonotonic(t *testing.T) {
	ctx := context.Background()
	s, store := newTestService()

	require.NoError(t, s.ApplyTimeDecay(ctx, "a1", 0.001))
	require.NoError(t, s.PenalizeForOverride(ctx, "a1", "d1"))
	require.NoError(t, s.ReinforceForSuccess(ctx, "a1", "d2"))

	history := store.History("a1")
	require.Len(t, history, 3)
	for i, snap := range history {
		assert.Equal(t, int64(i+1), snap.SequenceID)
		assert.GreaterOrEqual(t, snap.Value, 0.0)
		assert.LessOrEqual(t, snap.Value, 1.0)
	}
}

func TestConcurrentMutationsKeepSequenceDense(t *testing.T) {
	ctx := context.Background()
	s, store := newTestService()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, s.ApplyTimeDecay(ctx, "busy", 0.001))
		}()
	}
	wg.Wait()

	history := store.History("busy")
	require.Len(t, history, n)
	seen := make(map[int64]bool)
	for _, snap := range history {
		assert.False(t, seen[snap.SequenceID], "duplicate sequence id %d", snap.SequenceID)
		seen[snap.SequenceID] = true
	}
	for i := int64(1); i <= n; i++ {
		assert.True(t, seen[i], "missing sequence id %d", i)
	}
}

func TestCacheFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.AppendSnapshot(ctx, Snapshot{
		SnapshotID: "s1", AgentID: "warm", Value: 0.42, SourceEvent: EventInitial, SequenceID: 7,
	}))

	s := NewService(store, policy.DefaultConfidencePolicy{}, nil)

	assert.InDelta(t, 0.42, s.LastConfidence(ctx, "warm"), 0.0001)

	// Mutations continue the persisted sequence, not restart it.
	require.NoError(t, s.ApplyTimeDecay(ctx, "warm", 0.001))
	history := store.History("warm")
	assert.Equal(t, int64(8), history[len(history)-1].SequenceID)
}
