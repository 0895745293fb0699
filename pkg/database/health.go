package database

import (
	"context"
	"database/sql"
	"time"
)

// PoolStats is a snapshot of the connection pool.
type PoolStats struct {
	Open      int   `json:"open"`
	InUse     int   `json:"in_use"`
	Idle      int   `json:"idle"`
	WaitCount int64 `json:"wait_count"`
	MaxOpen   int   `json:"max_open"`
}

// HealthStatus reports ledger database reachability plus pool pressure, for
// the health endpoint and for operators chasing slow run persistence.
type HealthStatus struct {
	Status    string     `json:"status"`
	LatencyMS int64      `json:"latency_ms"`
	Pool      *PoolStats `json:"pool,omitempty"`
}

// Health pings the ledger database and snapshots the pool.
func Health(ctx context.Context, db *sql.DB) (*HealthStatus, error) {
	start := time.Now()
	if err := db.PingContext(ctx); err != nil {
		return &HealthStatus{
			Status:    "unhealthy",
			LatencyMS: time.Since(start).Milliseconds(),
		}, err
	}

	stats := db.Stats()
	return &HealthStatus{
		Status:    "healthy",
		LatencyMS: time.Since(start).Milliseconds(),
		Pool: &PoolStats{
			Open:      stats.OpenConnections,
			InUse:     stats.InUse,
			Idle:      stats.Idle,
			WaitCount: stats.WaitCount,
			MaxOpen:   stats.MaxOpenConnections,
		},
	}, nil
}
