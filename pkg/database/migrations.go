package database

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateGINIndexes creates JSONB GIN indexes for PostgreSQL. These enable
// efficient containment queries over persisted runs and their evidence.
func CreateGINIndexes(ctx context.Context, db *sql.DB) error {
	// GIN index for run document queries (evidence, executions, decision)
	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_swarm_runs_run_gin
		ON swarm_runs USING gin(run jsonb_path_ops)`)
	if err != nil {
		return fmt.Errorf("failed to create run GIN index: %w", err)
	}

	// GIN index for alert payload queries
	_, err = db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_swarm_runs_alert_gin
		ON swarm_runs USING gin(alert jsonb_path_ops)`)
	if err != nil {
		return fmt.Errorf("failed to create alert GIN index: %w", err)
	}

	return nil
}
