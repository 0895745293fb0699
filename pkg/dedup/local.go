package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Local is an in-process deduplicator for single-instance deployments that
// run without Redis. Keys and locks live in memory and expire lazily, so it
// provides no cross-instance arbitration. Locks carry the same per-holder
// token fencing as the Redis implementation: a release after the lease
// lapsed and changed hands is a no-op.
type Local struct {
	cfg Config
	mu  sync.Mutex
	// key -> run id holding it
	entries map[string]localEntry
	locks   map[string]localLock
	held    map[string]*heldLock
	now     func() time.Time
}

type localEntry struct {
	runID   string
	expires time.Time
}

type localLock struct {
	token   string
	expires time.Time
}

// NewLocal creates an in-memory deduplicator with the same TTL and lease
// semantics as the Redis-backed one.
func NewLocal(cfg Config) *Local {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.LockLease <= 0 {
		cfg.LockLease = 60 * time.Second
	}
	return &Local{
		cfg:     cfg,
		entries: make(map[string]localEntry),
		locks:   make(map[string]localLock),
		held:    make(map[string]*heldLock),
		now:     time.Now,
	}
}

func (l *Local) CheckDuplicate(_ context.Context, sourceID, eventData, severity, source string) (Result, error) {
	key := Key(source, sourceID, severity, eventData)
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok || l.now().After(e.expires) {
		delete(l.entries, key)
		return Result{Action: ActionNew}, nil
	}
	return Result{Action: ActionUpdateExisting, ExistingRunID: e.runID}, nil
}

func (l *Local) RegisterExecution(_ context.Context, sourceID, executionID, eventData, severity, source string) error {
	key := Key(source, sourceID, severity, eventData)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = localEntry{runID: executionID, expires: l.now().Add(l.cfg.TTL)}
	return nil
}

// AcquireLock takes the named lock and keeps renewing its lease until
// ReleaseLock. Returns the holder token, or "" when another holder has it.
func (l *Local) AcquireLock(_ context.Context, name string) (string, error) {
	l.mu.Lock()
	if lock, taken := l.locks[name]; taken && l.now().Before(lock.expires) {
		l.mu.Unlock()
		return "", nil
	}
	token := uuid.NewString()
	l.locks[name] = localLock{token: token, expires: l.now().Add(l.cfg.LockLease)}

	renewCtx, cancel := context.WithCancel(context.Background())
	h := &heldLock{token: token, stop: cancel, done: make(chan struct{})}
	l.held[token] = h
	l.mu.Unlock()

	go l.renewLoop(renewCtx, name, h)
	return token, nil
}

// ReleaseLock drops the named lock if the token still owns it.
func (l *Local) ReleaseLock(_ context.Context, name, token string) error {
	l.mu.Lock()
	h, ok := l.held[token]
	delete(l.held, token)
	l.mu.Unlock()
	if ok {
		h.stop()
		<-h.done
	}

	l.mu.Lock()
	if lock, taken := l.locks[name]; taken && lock.token == token {
		delete(l.locks, name)
	}
	l.mu.Unlock()
	return nil
}

func (l *Local) renewLoop(ctx context.Context, name string, h *heldLock) {
	defer close(h.done)
	ticker := time.NewTicker(l.cfg.LockLease / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !l.extendLock(name, h.token) {
				return
			}
		}
	}
}

func (l *Local) extendLock(name, token string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, taken := l.locks[name]
	if !taken || lock.token != token {
		return false
	}
	lock.expires = l.now().Add(l.cfg.LockLease)
	l.locks[name] = lock
	return true
}
