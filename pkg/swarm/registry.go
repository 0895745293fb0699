package swarm

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Agent is the port every swarm participant implements. LogicHash is a
// stable digest of the agent's logic description, used to detect drift
// between a recorded plan and the live implementation during replay.
type Agent interface {
	ID() string
	Version() string
	LogicHash() string
	Execute(ctx context.Context, parameters map[string]any, stepID string) AgentExecution
}

// Registry holds the agents available to the orchestrator.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry returns an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register adds an agent. Registering an existing id replaces it.
func (r *Registry) Register(a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.ID()] = a
}

// Get resolves an agent id.
func (r *Registry) Get(id string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %q not registered", id)
	}
	return a, nil
}

// IDs lists registered agent ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
