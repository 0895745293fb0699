package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/strandsops/strands/pkg/alert"
	"github.com/strandsops/strands/pkg/confidence"
	"github.com/strandsops/strands/pkg/decision"
	"github.com/strandsops/strands/pkg/swarm"
)

// Postgres persists the ledger in PostgreSQL. Runs and alerts are stored as
// JSONB documents next to the columns queries filter on.
type Postgres struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPostgres(db *sql.DB, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, logger: logger}
}

var _ Ledger = (*Postgres)(nil)

// SaveSwarmRun persists the run atomically, freezing the confidence series
// as of this write so replay sees the values the run actually used. A second
// save of the same run id violates append-only semantics and fails with
// ErrDuplicateRun.
func (p *Postgres) SaveSwarmRun(ctx context.Context, run *swarm.SwarmRun, a *alert.NormalizedAlert) error {
	runJSON, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encoding run %s: %w", run.RunID, err)
	}
	alertJSON, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding alert for run %s: %w", run.RunID, err)
	}

	procedure := ""
	decisionID := ""
	if run.FinalDecision != nil {
		procedure = run.FinalDecision.RecommendedProcedure
		decisionID = run.FinalDecision.DecisionID
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persisting run %s: %w", run.RunID, err)
	}
	defer tx.Rollback()

	frozen, err := scanSnapshots(ctx, tx)
	if err != nil {
		return fmt.Errorf("freezing snapshots for run %s: %w", run.RunID, err)
	}
	if frozen == nil {
		frozen = []confidence.Snapshot{}
	}
	snapshotsJSON, err := json.Marshal(frozen)
	if err != nil {
		return fmt.Errorf("encoding snapshots for run %s: %w", run.RunID, err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO swarm_runs (run_id, domain, state, alert_signature, recommended_procedure, decision_id, run, alert, snapshots)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id) DO NOTHING`,
		run.RunID, run.Domain, string(run.State), AlertSignature(a), procedure, decisionID, runJSON, alertJSON, snapshotsJSON)
	if err != nil {
		return fmt.Errorf("persisting run %s: %w", run.RunID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("persisting run %s: %w", run.RunID, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateRun, run.RunID)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persisting run %s: %w", run.RunID, err)
	}
	p.logger.Debug("run persisted", "run_id", run.RunID, "state", run.State, "snapshots", len(frozen))
	return nil
}

// SaveHumanOverride attaches the override to the run that produced the
// overridden decision.
func (p *Postgres) SaveHumanOverride(ctx context.Context, d *swarm.RunDecision, h *decision.HumanDecision, outcome string) error {
	humanJSON, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encoding override for decision %s: %w", d.DecisionID, err)
	}

	res, err := p.db.ExecContext(ctx, `
		UPDATE swarm_runs SET human_decision = $1, outcome = $2 WHERE decision_id = $3`,
		humanJSON, outcome, d.DecisionID)
	if err != nil {
		return fmt.Errorf("persisting override for decision %s: %w", d.DecisionID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("persisting override for decision %s: %w", d.DecisionID, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: decision %s", ErrRunNotFound, d.DecisionID)
	}
	return nil
}

// AppendSnapshot inserts one confidence snapshot. The (agent_id, sequence_id)
// unique constraint enforces the monotonic sequence.
func (p *Postgres) AppendSnapshot(ctx context.Context, s confidence.Snapshot) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO confidence_snapshots (snapshot_id, agent_id, sequence_id, value, source_event, cause_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.SnapshotID, s.AgentID, s.SequenceID, s.Value, string(s.SourceEvent), s.CauseRef, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending snapshot for %s: %w", s.AgentID, err)
	}
	return nil
}

// LatestSnapshot returns the newest snapshot for the agent, or nil when the
// agent has no history.
func (p *Postgres) LatestSnapshot(ctx context.Context, agentID string) (*confidence.Snapshot, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT snapshot_id, agent_id, sequence_id, value, source_event, cause_ref, created_at
		FROM confidence_snapshots WHERE agent_id = $1
		ORDER BY sequence_id DESC LIMIT 1`, agentID)

	var s confidence.Snapshot
	var sourceEvent string
	err := row.Scan(&s.SnapshotID, &s.AgentID, &s.SequenceID, &s.Value, &sourceEvent, &s.CauseRef, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest snapshot for %s: %w", agentID, err)
	}
	s.SourceEvent = confidence.SourceEvent(sourceEvent)
	return &s, nil
}

// LinkSnapshotToCause records the decision or override that caused a
// snapshot.
func (p *Postgres) LinkSnapshotToCause(ctx context.Context, snapshotID, causeID, causeType string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE confidence_snapshots SET cause_ref = $1, cause_type = $2 WHERE snapshot_id = $3`,
		causeID, causeType, snapshotID)
	if err != nil {
		return fmt.Errorf("linking snapshot %s: %w", snapshotID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("linking snapshot %s: %w", snapshotID, err)
	}
	if rows == 0 {
		return fmt.Errorf("linking snapshot %s: not found", snapshotID)
	}
	return nil
}

// FetchFullRunContext loads the run document, its alert, the attached
// override if any, and the confidence history frozen when the run was saved.
func (p *Postgres) FetchFullRunContext(ctx context.Context, runID string) (*RunContext, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT run, alert, human_decision, snapshots FROM swarm_runs WHERE run_id = $1`, runID)

	var runJSON, alertJSON, snapshotsJSON []byte
	var humanJSON sql.Null[[]byte]
	err := row.Scan(&runJSON, &alertJSON, &humanJSON, &snapshotsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}

	var rc RunContext
	if err := json.Unmarshal(runJSON, &rc.Run); err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", runID, err)
	}
	if err := json.Unmarshal(alertJSON, &rc.Alert); err != nil {
		return nil, fmt.Errorf("decoding alert for run %s: %w", runID, err)
	}
	if humanJSON.Valid && len(humanJSON.V) > 0 {
		var h decision.HumanDecision
		if err := json.Unmarshal(humanJSON.V, &h); err != nil {
			return nil, fmt.Errorf("decoding override for run %s: %w", runID, err)
		}
		rc.HumanDecision = &h
	}
	if len(snapshotsJSON) > 0 {
		if err := json.Unmarshal(snapshotsJSON, &rc.Snapshots); err != nil {
			return nil, fmt.Errorf("decoding snapshots for run %s: %w", runID, err)
		}
	}
	return &rc, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// scanSnapshots reads the full confidence history in (agent, sequence) order.
func scanSnapshots(ctx context.Context, q querier) ([]confidence.Snapshot, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT snapshot_id, agent_id, sequence_id, value, source_event, cause_ref, created_at
		FROM confidence_snapshots ORDER BY agent_id, sequence_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []confidence.Snapshot
	for rows.Next() {
		var s confidence.Snapshot
		var sourceEvent string
		if err := rows.Scan(&s.SnapshotID, &s.AgentID, &s.SequenceID, &s.Value, &sourceEvent, &s.CauseRef, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.SourceEvent = confidence.SourceEvent(sourceEvent)
		out = append(out, s)
	}
	return out, rows.Err()
}

// FindProcedureBySignature returns the most recent recorded procedure for
// the signature, or "" when none exists.
func (p *Postgres) FindProcedureBySignature(ctx context.Context, alertSignature string) (string, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT recommended_procedure FROM swarm_runs
		WHERE alert_signature = $1 AND recommended_procedure <> ''
		ORDER BY created_at DESC LIMIT 1`, alertSignature)

	var procedure string
	err := row.Scan(&procedure)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("looking up procedure for %q: %w", alertSignature, err)
	}
	return procedure, nil
}
