package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandsops/strands/pkg/alert"
	"github.com/strandsops/strands/pkg/confidence"
	"github.com/strandsops/strands/pkg/decision"
	"github.com/strandsops/strands/pkg/swarm"
)

func sampleAlert() *alert.NormalizedAlert {
	return &alert.NormalizedAlert{
		Timestamp:        time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
		Fingerprint:      "fp-1",
		Service:          "payment-api",
		Severity:         "critical",
		Source:           "alertmanager",
		ValidationStatus: alert.ValidationValid,
	}
}

func sampleRun(id string) *swarm.SwarmRun {
	return &swarm.SwarmRun{
		RunID:  id,
		Domain: "sre",
		State:  swarm.RunFinished,
		Plan:   swarm.SwarmPlan{PlanID: "p-1"},
		FinalDecision: &swarm.RunDecision{
			DecisionID:           "d-" + id,
			ActionProposed:       swarm.ActionAutoRemediate,
			Confidence:           0.9,
			RecommendedProcedure: "restart the pool",
		},
	}
}

func TestMemorySaveAndFetch(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SaveSwarmRun(ctx, sampleRun("r-1"), sampleAlert()))

	rc, err := m.FetchFullRunContext(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, "r-1", rc.Run.RunID)
	assert.Equal(t, "payment-api", rc.Alert.Service)
	assert.Equal(t, 1, m.RunCount())
}

func TestMemoryRejectsDuplicateRun(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SaveSwarmRun(ctx, sampleRun("r-1"), sampleAlert()))
	err := m.SaveSwarmRun(ctx, sampleRun("r-1"), sampleAlert())
	assert.ErrorIs(t, err, ErrDuplicateRun)
}

func TestMemoryFetchUnknownRun(t *testing.T) {
	m := NewMemory()

	_, err := m.FetchFullRunContext(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestMemoryFreezesSnapshotsAtSave(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.AppendSnapshot(ctx, confidence.Snapshot{
		SnapshotID: "s-1", AgentID: "loganalysis", Value: 0.9, SequenceID: 1,
	}))
	require.NoError(t, m.SaveSwarmRun(ctx, sampleRun("r-1"), sampleAlert()))

	// Snapshots appended after the save must not leak into the frozen view.
	require.NoError(t, m.AppendSnapshot(ctx, confidence.Snapshot{
		SnapshotID: "s-2", AgentID: "loganalysis", Value: 0.5, SequenceID: 2,
	}))

	rc, err := m.FetchFullRunContext(ctx, "r-1")
	require.NoError(t, err)
	require.Len(t, rc.Snapshots, 1)
	assert.Equal(t, "s-1", rc.Snapshots[0].SnapshotID)

	latest, err := m.LatestSnapshot(ctx, "loganalysis")
	require.NoError(t, err)
	assert.EqualValues(t, 2, latest.SequenceID)
}

func TestMemorySaveHumanOverride(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	run := sampleRun("r-1")
	require.NoError(t, m.SaveSwarmRun(ctx, run, sampleAlert()))

	h := &decision.HumanDecision{
		Action: decision.HumanOverride,
		Author: "oncall",
	}
	require.NoError(t, m.SaveHumanOverride(ctx, run.FinalDecision, h, "overridden"))

	rc, err := m.FetchFullRunContext(ctx, "r-1")
	require.NoError(t, err)
	require.NotNil(t, rc.HumanDecision)
	assert.Equal(t, decision.HumanOverride, rc.HumanDecision.Action)
}

func TestMemoryProcedureLookup(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	a := sampleAlert()
	require.NoError(t, m.SaveSwarmRun(ctx, sampleRun("r-1"), a))

	procedure, err := m.FindProcedureBySignature(ctx, AlertSignature(a))
	require.NoError(t, err)
	assert.Equal(t, "restart the pool", procedure)

	none, err := m.FindProcedureBySignature(ctx, "other|fp")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryLinkSnapshotToCause(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.AppendSnapshot(ctx, confidence.Snapshot{
		SnapshotID: "s-1", AgentID: "loganalysis", Value: 0.9, SequenceID: 1,
	}))

	assert.NoError(t, m.LinkSnapshotToCause(ctx, "s-1", "d-1", CauseOverride))
	assert.Error(t, m.LinkSnapshotToCause(ctx, "missing", "d-1", CauseOverride))
}

func TestAlertSignature(t *testing.T) {
	assert.Equal(t, "payment-api|fp-1", AlertSignature(sampleAlert()))
	assert.Empty(t, AlertSignature(nil))
}
