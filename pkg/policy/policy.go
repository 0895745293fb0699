// Package policy defines the retry and confidence policy ports and their
// canonical implementations. Policies are identified by name, version, and a
// logic hash so that audited decisions can be matched to the exact logic
// that produced them during replay.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"time"
)

// RetryContext carries everything a retry policy may consult. Seed is
// derived from the run's master seed plus the attempt number, which makes
// delay jitter reproducible during replay.
type RetryContext struct {
	AttemptNumber  int
	Err            string
	Seed           int64
	LastConfidence float64
	DomainHints    map[string]string
}

// RetryPolicy decides whether and when a failed step runs again.
type RetryPolicy interface {
	ShouldRetry(ctx RetryContext) bool
	NextDelay(ctx RetryContext) time.Duration
	Name() string
	Version() string
	LogicHash() string
}

// ConfidencePolicy sets the magnitude of confidence adjustments.
type ConfidencePolicy interface {
	PenaltyForOverride() float64
	ReinforcementForSuccess() float64
}

// DefaultConfidencePolicy applies the standard 0.10 penalty and 0.05
// reinforcement.
type DefaultConfidencePolicy struct{}

func (DefaultConfidencePolicy) PenaltyForOverride() float64      { return 0.10 }
func (DefaultConfidencePolicy) ReinforcementForSuccess() float64 { return 0.05 }

// FixedConfidencePolicy applies operator-tuned adjustment magnitudes.
type FixedConfidencePolicy struct {
	Penalty       float64
	Reinforcement float64
}

func (p FixedConfidencePolicy) PenaltyForOverride() float64      { return p.Penalty }
func (p FixedConfidencePolicy) ReinforcementForSuccess() float64 { return p.Reinforcement }

// ExponentialBackoff retries up to MaxAttempts with delays of
// min(Base * 2^(attempt-1), MaxDelay) and ±20% seeded jitter.
type ExponentialBackoff struct {
	Base        time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// NewExponentialBackoff returns the canonical retry policy.
func NewExponentialBackoff(base, maxDelay time.Duration, maxAttempts int) *ExponentialBackoff {
	return &ExponentialBackoff{Base: base, MaxDelay: maxDelay, MaxAttempts: maxAttempts}
}

// ShouldRetry allows retries while the attempt number is below MaxAttempts.
// Attempt numbers count retries, so MaxAttempts=3 yields at most three
// executions of the step.
func (p *ExponentialBackoff) ShouldRetry(ctx RetryContext) bool {
	return ctx.AttemptNumber < p.MaxAttempts
}

// NextDelay doubles the base per attempt, caps at MaxDelay, then applies
// ±20% jitter drawn from the context seed.
func (p *ExponentialBackoff) NextDelay(ctx RetryContext) time.Duration {
	attempt := ctx.AttemptNumber
	if attempt < 1 {
		attempt = 1
	}
	delay := p.Base << uint(attempt-1)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	rng := rand.New(rand.NewSource(ctx.Seed))
	jitter := 1 + 0.2*(2*rng.Float64()-1)
	return time.Duration(float64(delay) * jitter)
}

func (p *ExponentialBackoff) Name() string    { return "exponential_backoff" }
func (p *ExponentialBackoff) Version() string { return "1" }

// LogicHash digests the policy's behavior description and parameters.
func (p *ExponentialBackoff) LogicHash() string {
	return HashLogic(fmt.Sprintf("exponential_backoff:base=%s,max_delay=%s,max_attempts=%d",
		p.Base, p.MaxDelay, p.MaxAttempts))
}

// HashLogic produces the stable digest used for policy and agent logic
// identification.
func HashLogic(description string) string {
	sum := sha256.Sum256([]byte(description))
	return hex.EncodeToString(sum[:])
}
