// Package confidence tracks per-agent credibility as an append-only series
// of snapshots. Values decay with time, drop on human overrides, and climb
// on confirmed successes.
package confidence

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strandsops/strands/pkg/policy"
)

// SourceEvent names what caused a snapshot.
type SourceEvent string

const (
	EventInitial           SourceEvent = "initial"
	EventTimeDecay         SourceEvent = "time_decay"
	EventHumanOverride     SourceEvent = "human_override"
	EventSuccessfulOutcome SourceEvent = "successful_outcome"
)

// Snapshot is one immutable point in an agent's confidence history.
// SequenceID is strictly increasing per agent.
type Snapshot struct {
	SnapshotID  string      `json:"snapshot_id"`
	AgentID     string      `json:"agent_id"`
	Value       float64     `json:"value"`
	SourceEvent SourceEvent `json:"source_event"`
	SequenceID  int64       `json:"sequence_id"`
	CauseRef    string      `json:"cause_ref,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Store is the ledger slice the service persists snapshots through.
type Store interface {
	AppendSnapshot(ctx context.Context, s Snapshot) error
	LatestSnapshot(ctx context.Context, agentID string) (*Snapshot, error)
}

type agentState struct {
	mu   sync.Mutex
	last *Snapshot
}

// Service owns confidence mutation. Reads may hit the in-memory cache; the
// store stays authoritative and every write lands there before the agent's
// lock is released.
type Service struct {
	store  Store
	policy policy.ConfidencePolicy
	mu     sync.Mutex
	agents map[string]*agentState
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a confidence service over a snapshot store.
func NewService(store Store, pol policy.ConfidencePolicy, logger *slog.Logger) *Service {
	if pol == nil {
		pol = policy.DefaultConfidencePolicy{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		policy: pol,
		agents: make(map[string]*agentState),
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) agent(agentID string) *agentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.agents[agentID]
	if !ok {
		st = &agentState{}
		s.agents[agentID] = st
	}
	return st
}

// LastConfidence returns the agent's current value, defaulting to 1.0 for
// agents with no history.
func (s *Service) LastConfidence(ctx context.Context, agentID string) float64 {
	st := s.agent(agentID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return s.lastLocked(ctx, agentID, st)
}

func (s *Service) lastLocked(ctx context.Context, agentID string, st *agentState) float64 {
	if st.last != nil {
		return st.last.Value
	}
	snap, err := s.store.LatestSnapshot(ctx, agentID)
	if err != nil {
		s.logger.Warn("latest snapshot lookup failed", "agent_id", agentID, "error", err)
		return 1.0
	}
	if snap == nil {
		return 1.0
	}
	st.last = snap
	return snap.Value
}

// ApplyTimeDecay multiplies the agent's confidence by (1 - rate).
func (s *Service) ApplyTimeDecay(ctx context.Context, agentID string, rate float64) error {
	return s.mutate(ctx, agentID, EventTimeDecay, "", func(last float64) float64 {
		return last * (1 - rate)
	})
}

// PenalizeForOverride subtracts the policy's override penalty, linked to
// the overridden decision.
func (s *Service) PenalizeForOverride(ctx context.Context, agentID, decisionID string) error {
	return s.mutate(ctx, agentID, EventHumanOverride, decisionID, func(last float64) float64 {
		return last - s.policy.PenaltyForOverride()
	})
}

// ReinforceForSuccess adds the policy's success reinforcement, linked to
// the confirming decision.
func (s *Service) ReinforceForSuccess(ctx context.Context, agentID, decisionID string) error {
	return s.mutate(ctx, agentID, EventSuccessfulOutcome, decisionID, func(last float64) float64 {
		return last + s.policy.ReinforcementForSuccess()
	})
}

func (s *Service) mutate(ctx context.Context, agentID string, event SourceEvent, causeRef string, f func(last float64) float64) error {
	st := s.agent(agentID)
	st.mu.Lock()
	defer st.mu.Unlock()

	last := s.lastLocked(ctx, agentID, st)
	var seq int64 = 1
	if st.last != nil {
		seq = st.last.SequenceID + 1
	}
	snap := Snapshot{
		SnapshotID:  uuid.NewString(),
		AgentID:     agentID,
		Value:       math.Max(0, math.Min(1, f(last))),
		SourceEvent: event,
		SequenceID:  seq,
		CauseRef:    causeRef,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.AppendSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("appending confidence snapshot for %s: %w", agentID, err)
	}
	st.last = &snap
	s.logger.Debug("confidence updated",
		"agent_id", agentID, "value", snap.Value, "event", event, "sequence_id", seq)
	return nil
}
