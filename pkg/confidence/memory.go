package confidence

import (
	"context"
	"sync"
)

// MemoryStore keeps snapshot history in process. Used by tests and by
// replay, which freezes confidence at a recorded point.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string][]Snapshot
}

// NewMemoryStore returns an empty in-memory snapshot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string][]Snapshot)}
}

func (m *MemoryStore) AppendSnapshot(_ context.Context, s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[s.AgentID] = append(m.snapshots[s.AgentID], s)
	return nil
}

func (m *MemoryStore) LatestSnapshot(_ context.Context, agentID string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := m.snapshots[agentID]
	if len(history) == 0 {
		return nil, nil
	}
	snap := history[len(history)-1]
	return &snap, nil
}

// History returns the agent's full snapshot series in append order.
func (m *MemoryStore) History(agentID string) []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, len(m.snapshots[agentID]))
	copy(out, m.snapshots[agentID])
	return out
}
