// Package dedup arbitrates duplicate alert deliveries across instances
// using Redis keys with a TTL plus named locks. Locks are fenced with a
// per-holder token and renewed in the background, so a holder outliving
// one lease cannot release a lock that has since passed to someone else.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Action is the verdict for an incoming source event.
type Action string

const (
	ActionNew            Action = "NEW"
	ActionUpdateExisting Action = "UPDATE_EXISTING"
	ActionSkip           Action = "SKIP"
)

// Result pairs the action with the run already holding the dedup key, if any.
type Result struct {
	Action        Action
	ExistingRunID string
}

// Config tunes key TTL and lock leases.
type Config struct {
	TTL       time.Duration
	LockLease time.Duration
}

// DefaultConfig returns the standard 5 minute TTL and 60 second lease.
func DefaultConfig() Config {
	return Config{TTL: 5 * time.Minute, LockLease: 60 * time.Second}
}

// releaseScript deletes the lock only while this holder's token is still in
// place. A plain DEL would remove a lock that expired and was re-acquired
// by another holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// extendScript refreshes the lease, again only for the current token.
var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)

// Deduplicator is the single arbiter of "am I the winner for this alert".
type Deduplicator struct {
	rdb    redis.UniversalClient
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex
	held map[string]*heldLock
}

type heldLock struct {
	token string
	stop  context.CancelFunc
	done  chan struct{}
}

// New creates a Redis-backed deduplicator.
func New(rdb redis.UniversalClient, cfg Config, logger *slog.Logger) *Deduplicator {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.LockLease <= 0 {
		cfg.LockLease = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Deduplicator{rdb: rdb, cfg: cfg, logger: logger, held: make(map[string]*heldLock)}
}

// Key derives the dedup key for a source event. The service key folds the
// event data down so equivalent alerts from the same service collide.
func Key(source, sourceID, severity, serviceKey string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{source, sourceID, severity, serviceKey}, "|")))
	return "dedup:" + hex.EncodeToString(sum[:])
}

// CheckDuplicate reports whether an equivalent event was processed within
// the TTL window and, if so, which run owns it.
func (d *Deduplicator) CheckDuplicate(ctx context.Context, sourceID, eventData, severity, source string) (Result, error) {
	key := Key(source, sourceID, severity, eventData)
	runID, err := d.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return Result{Action: ActionNew}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("dedup lookup: %w", err)
	}
	d.logger.Info("duplicate event detected", "source_id", sourceID, "existing_run_id", runID)
	return Result{Action: ActionUpdateExisting, ExistingRunID: runID}, nil
}

// RegisterExecution records the winning run under the dedup key for the TTL
// window so future identical alerts dedupe against it.
func (d *Deduplicator) RegisterExecution(ctx context.Context, sourceID, executionID, eventData, severity, source string) error {
	key := Key(source, sourceID, severity, eventData)
	if err := d.rdb.Set(ctx, key, executionID, d.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("dedup register: %w", err)
	}
	return nil
}

// AcquireLock takes the named lock for the lease duration and keeps renewing
// it until ReleaseLock. Returns the holder token, or "" when another holder
// has the lock.
func (d *Deduplicator) AcquireLock(ctx context.Context, name string) (string, error) {
	token := uuid.NewString()
	ok, err := d.rdb.SetNX(ctx, lockKey(name), token, d.cfg.LockLease).Result()
	if err != nil {
		return "", fmt.Errorf("acquire lock %q: %w", name, err)
	}
	if !ok {
		return "", nil
	}

	renewCtx, cancel := context.WithCancel(context.Background())
	h := &heldLock{token: token, stop: cancel, done: make(chan struct{})}
	d.mu.Lock()
	d.held[token] = h
	d.mu.Unlock()
	go d.renewLoop(renewCtx, name, h)
	return token, nil
}

// ReleaseLock stops renewal and drops the named lock if the token still
// owns it. Releasing a lease that lapsed and changed hands is a no-op, not
// an error.
func (d *Deduplicator) ReleaseLock(ctx context.Context, name, token string) error {
	d.mu.Lock()
	h, ok := d.held[token]
	delete(d.held, token)
	d.mu.Unlock()
	if ok {
		h.stop()
		<-h.done
	}

	res, err := releaseScript.Run(ctx, d.rdb, []string{lockKey(name)}, token).Int()
	if err != nil {
		return fmt.Errorf("release lock %q: %w", name, err)
	}
	if res == 0 {
		d.logger.Warn("lock lease lapsed before release", "lock", name)
	}
	return nil
}

func (d *Deduplicator) renewLoop(ctx context.Context, name string, h *heldLock) {
	defer close(h.done)
	ticker := time.NewTicker(d.cfg.LockLease / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := d.extendLock(ctx, name, h.token)
			if err != nil {
				d.logger.Warn("lock renewal failed", "lock", name, "error", err)
				continue
			}
			if !ok {
				d.logger.Warn("lock lost before renewal", "lock", name)
				return
			}
		}
	}
}

// extendLock refreshes the lease while the token still matches.
func (d *Deduplicator) extendLock(ctx context.Context, name, token string) (bool, error) {
	res, err := extendScript.Run(ctx, d.rdb,
		[]string{lockKey(name)}, token, d.cfg.LockLease.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func lockKey(name string) string { return "lock:" + name }
