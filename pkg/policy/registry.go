package policy

import (
	"fmt"
	"sync"
)

// Registry resolves audited policy identities back to live implementations.
// Replay reconstructs policies through here instead of deserializing logic.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]RetryPolicy
}

// NewRegistry returns an empty policy registry.
func NewRegistry() *Registry {
	return &Registry{policies: make(map[string]RetryPolicy)}
}

func key(name, version string) string { return name + "@" + version }

// Register stores a policy under its name and version. Re-registering the
// same identity replaces the prior entry.
func (r *Registry) Register(p RetryPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[key(p.Name(), p.Version())] = p
}

// Resolve returns the policy registered under name and version.
func (r *Registry) Resolve(name, version string) (RetryPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[key(name, version)]
	if !ok {
		return nil, fmt.Errorf("retry policy %s@%s not registered", name, version)
	}
	return p, nil
}
