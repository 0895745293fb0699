package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/strandsops/strands/pkg/alert"
	"github.com/strandsops/strands/pkg/confidence"
	"github.com/strandsops/strands/pkg/decision"
	"github.com/strandsops/strands/pkg/swarm"
)

type snapshotLink struct {
	CauseID   string
	CauseType string
}

// Memory is an in-process Ledger. It backs tests and replay fixtures and
// mirrors the database implementation's append-only semantics.
type Memory struct {
	mu         sync.RWMutex
	runs       map[string]*RunContext
	snapshots  map[string][]confidence.Snapshot
	links      map[string]snapshotLink
	procedures map[string]string
}

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		runs:       make(map[string]*RunContext),
		snapshots:  make(map[string][]confidence.Snapshot),
		links:      make(map[string]snapshotLink),
		procedures: make(map[string]string),
	}
}

func (m *Memory) SaveSwarmRun(_ context.Context, run *swarm.SwarmRun, a *alert.NormalizedAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runs[run.RunID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRun, run.RunID)
	}

	// Freeze the confidence series as of this write so replay sees the
	// values the run actually used.
	var frozen []confidence.Snapshot
	for _, history := range m.snapshots {
		frozen = append(frozen, history...)
	}

	rc := &RunContext{Run: *run, Snapshots: frozen}
	if a != nil {
		rc.Alert = *a
		if run.FinalDecision != nil && run.FinalDecision.RecommendedProcedure != "" {
			m.procedures[AlertSignature(a)] = run.FinalDecision.RecommendedProcedure
		}
	}
	m.runs[run.RunID] = rc
	return nil
}

func (m *Memory) SaveHumanOverride(_ context.Context, d *swarm.RunDecision, h *decision.HumanDecision, outcome string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rc := range m.runs {
		if rc.Run.FinalDecision != nil && rc.Run.FinalDecision.DecisionID == d.DecisionID {
			rc.HumanDecision = h
			rc.Run.FinalDecision.HumanDecision = h
			if rc.Run.FinalDecision.Metadata == nil {
				rc.Run.FinalDecision.Metadata = make(map[string]any)
			}
			rc.Run.FinalDecision.Metadata["outcome"] = outcome
			return nil
		}
	}
	return fmt.Errorf("%w: decision %s", ErrRunNotFound, d.DecisionID)
}

func (m *Memory) AppendSnapshot(_ context.Context, s confidence.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[s.AgentID] = append(m.snapshots[s.AgentID], s)
	return nil
}

func (m *Memory) LatestSnapshot(_ context.Context, agentID string) (*confidence.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := m.snapshots[agentID]
	if len(history) == 0 {
		return nil, nil
	}
	snap := history[len(history)-1]
	return &snap, nil
}

func (m *Memory) LinkSnapshotToCause(_ context.Context, snapshotID, causeID, causeType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, history := range m.snapshots {
		for _, s := range history {
			if s.SnapshotID == snapshotID {
				m.links[snapshotID] = snapshotLink{CauseID: causeID, CauseType: causeType}
				return nil
			}
		}
	}
	return fmt.Errorf("linking snapshot %s: not found", snapshotID)
}

func (m *Memory) FetchFullRunContext(_ context.Context, runID string) (*RunContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rc, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	out := *rc
	return &out, nil
}

func (m *Memory) FindProcedureBySignature(_ context.Context, alertSignature string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.procedures[alertSignature], nil
}

// RunCount reports how many runs are persisted. Test helper.
func (m *Memory) RunCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runs)
}
