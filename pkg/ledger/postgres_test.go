package ledger

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandsops/strands/pkg/confidence"
	"github.com/strandsops/strands/pkg/swarm"
)

// snapshotsArg matches the frozen snapshot JSON bound to the insert.
type snapshotsArg struct {
	want []confidence.Snapshot
}

func (a snapshotsArg) Match(v driver.Value) bool {
	raw, ok := v.([]byte)
	if !ok {
		return false
	}
	var got []confidence.Snapshot
	if err := json.Unmarshal(raw, &got); err != nil {
		return false
	}
	if len(got) != len(a.want) {
		return false
	}
	for i := range got {
		if got[i].AgentID != a.want[i].AgentID || got[i].SequenceID != a.want[i].SequenceID || got[i].Value != a.want[i].Value {
			return false
		}
	}
	return true
}

func snapshotColumns() []string {
	return []string{"snapshot_id", "agent_id", "sequence_id", "value", "source_event", "cause_ref", "created_at"}
}

func TestPostgresSaveSwarmRunFreezesSnapshots(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	frozen := []confidence.Snapshot{
		{SnapshotID: "s-1", AgentID: "loganalysis", SequenceID: 1, Value: 0.95, SourceEvent: confidence.EventTimeDecay, CreatedAt: created},
		{SnapshotID: "s-2", AgentID: "loganalysis", SequenceID: 2, Value: 0.8, SourceEvent: confidence.EventHumanOverride, CreatedAt: created},
	}

	mock.ExpectBegin()
	rows := sqlmock.NewRows(snapshotColumns())
	for _, s := range frozen {
		rows.AddRow(s.SnapshotID, s.AgentID, s.SequenceID, s.Value, string(s.SourceEvent), s.CauseRef, s.CreatedAt)
	}
	mock.ExpectQuery("SELECT snapshot_id, agent_id, sequence_id, value, source_event, cause_ref, created_at").WillReturnRows(rows)
	mock.ExpectExec("INSERT INTO swarm_runs").WithArgs(
		"r-1", "sre", string(swarm.RunFinished), sqlmock.AnyArg(), "restart the pool", "d-r-1",
		sqlmock.AnyArg(), sqlmock.AnyArg(), snapshotsArg{want: frozen},
	).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p := NewPostgres(db, nil)
	require.NoError(t, p.SaveSwarmRun(context.Background(), sampleRun("r-1"), sampleAlert()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveSwarmRunRejectsDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT snapshot_id").WillReturnRows(sqlmock.NewRows(snapshotColumns()))
	mock.ExpectExec("INSERT INTO swarm_runs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	p := NewPostgres(db, nil)
	err = p.SaveSwarmRun(context.Background(), sampleRun("r-1"), sampleAlert())
	assert.ErrorIs(t, err, ErrDuplicateRun)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFetchFullRunContextReadsFrozenSnapshots(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	run := sampleRun("r-1")
	runJSON, err := json.Marshal(run)
	require.NoError(t, err)
	alertJSON, err := json.Marshal(sampleAlert())
	require.NoError(t, err)
	frozen := []confidence.Snapshot{
		{SnapshotID: "s-1", AgentID: "loganalysis", SequenceID: 1, Value: 0.95, SourceEvent: confidence.EventTimeDecay},
	}
	snapshotsJSON, err := json.Marshal(frozen)
	require.NoError(t, err)

	// A single row carries the frozen series; the live snapshot table is
	// never consulted.
	mock.ExpectQuery("SELECT run, alert, human_decision, snapshots FROM swarm_runs").
		WithArgs("r-1").
		WillReturnRows(sqlmock.NewRows([]string{"run", "alert", "human_decision", "snapshots"}).
			AddRow(runJSON, alertJSON, nil, snapshotsJSON))

	p := NewPostgres(db, nil)
	rc, err := p.FetchFullRunContext(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, "r-1", rc.Run.RunID)
	require.Len(t, rc.Snapshots, 1)
	assert.Equal(t, "loganalysis", rc.Snapshots[0].AgentID)
	assert.Equal(t, 0.95, rc.Snapshots[0].Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFetchFullRunContextNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT run, alert, human_decision, snapshots FROM swarm_runs").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"run", "alert", "human_decision", "snapshots"}))

	p := NewPostgres(db, nil)
	_, err = p.FetchFullRunContext(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
