// Package ledger defines the append-only causal audit port. Everything a
// swarm run produces lands here exactly once; replay reads it back.
package ledger

import (
	"context"
	"errors"

	"github.com/strandsops/strands/pkg/alert"
	"github.com/strandsops/strands/pkg/confidence"
	"github.com/strandsops/strands/pkg/decision"
	"github.com/strandsops/strands/pkg/swarm"
)

var (
	// ErrRunNotFound indicates no persisted run has the requested id.
	ErrRunNotFound = errors.New("ledger: run not found")
	// ErrDuplicateRun indicates an append-only violation: the run id exists.
	ErrDuplicateRun = errors.New("ledger: run already persisted")
)

// Cause types for snapshot links.
const (
	CauseDecision = "DECISION"
	CauseOverride = "HUMAN_OVERRIDE"
)

// RunContext is the complete persisted view of one run, sufficient for
// deterministic replay.
type RunContext struct {
	Run           swarm.SwarmRun
	Alert         alert.NormalizedAlert
	HumanDecision *decision.HumanDecision
	// Snapshots holds the confidence series frozen at the run's persistence.
	Snapshots []confidence.Snapshot
}

// Ledger is the causal audit port. All writes are atomic and append-only.
type Ledger interface {
	confidence.Store

	// SaveSwarmRun persists the run with its alert, executions, retries,
	// and final decision in one atomic write.
	SaveSwarmRun(ctx context.Context, run *swarm.SwarmRun, a *alert.NormalizedAlert) error
	// SaveHumanOverride links an override to the decision it invalidated.
	SaveHumanOverride(ctx context.Context, d *swarm.RunDecision, h *decision.HumanDecision, outcome string) error
	// LinkSnapshotToCause records why a confidence snapshot happened.
	LinkSnapshotToCause(ctx context.Context, snapshotID, causeID, causeType string) error
	// FetchFullRunContext loads everything replay needs for one run.
	FetchFullRunContext(ctx context.Context, runID string) (*RunContext, error)
	// FindProcedureBySignature suggests a known remediation for an alert
	// signature, or "" when none is recorded.
	FindProcedureBySignature(ctx context.Context, alertSignature string) (string, error)
}

// AlertSignature derives the intake lookup key for procedure suggestions.
func AlertSignature(a *alert.NormalizedAlert) string {
	if a == nil {
		return ""
	}
	return a.Service + "|" + a.Fingerprint
}
