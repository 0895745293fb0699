package correlation

import (
	"log/slog"
	"sort"
	"time"

	"github.com/strandsops/strands/pkg/alert"
)

// Config controls the correlation engine.
type Config struct {
	// TimeWindow bounds the gap between consecutive alerts of a service
	// group. A larger gap opens a new group.
	TimeWindow time.Duration

	// GroupByFingerprint enables the fingerprint pass.
	GroupByFingerprint bool

	// GroupByService enables the service+time-window pass over alerts the
	// fingerprint pass did not claim.
	GroupByService bool
}

// DefaultConfig returns the built-in correlation defaults.
func DefaultConfig() Config {
	return Config{
		TimeWindow:         5 * time.Minute,
		GroupByFingerprint: true,
		GroupByService:     true,
	}
}

// Engine groups alerts into clusters. Two passes over alerts sorted by
// timestamp: repeated fingerprints first (highest confidence), then service
// proximity within the time window for everything left over.
type Engine struct {
	cfg Config
}

// NewEngine creates a correlation engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Correlate partitions the alerts into clusters. Every input alert lands in
// exactly one cluster; the result is deterministic for a given input.
func (e *Engine) Correlate(alerts []alert.NormalizedAlert) []AlertCluster {
	if len(alerts) == 0 {
		return nil
	}

	sorted := make([]alert.NormalizedAlert, len(alerts))
	copy(sorted, alerts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var clusters []AlertCluster
	var remaining []alert.NormalizedAlert

	if e.cfg.GroupByFingerprint {
		groups, order := groupByFingerprint(sorted)
		for _, fp := range order {
			group := groups[fp]
			// Singleton fingerprints only cluster here when the service
			// pass is disabled; otherwise they fall through so temporally
			// close alerts of one service still correlate.
			if len(group) > 1 || !e.cfg.GroupByService {
				clusters = append(clusters, NewCluster(group, fingerprintScore(group)))
			} else {
				remaining = append(remaining, group...)
			}
		}
	} else {
		remaining = sorted
	}

	if e.cfg.GroupByService {
		for _, group := range groupByServiceTime(remaining, e.cfg.TimeWindow) {
			clusters = append(clusters, NewCluster(group, serviceScore(group)))
		}
	}

	slog.Info("Correlated alerts",
		"alerts", len(alerts),
		"clusters", len(clusters))
	return clusters
}

// groupByFingerprint buckets alerts by fingerprint, preserving first-seen
// order of fingerprints for determinism.
func groupByFingerprint(alerts []alert.NormalizedAlert) (map[string][]alert.NormalizedAlert, []string) {
	groups := make(map[string][]alert.NormalizedAlert)
	var order []string
	for _, a := range alerts {
		if _, seen := groups[a.Fingerprint]; !seen {
			order = append(order, a.Fingerprint)
		}
		groups[a.Fingerprint] = append(groups[a.Fingerprint], a)
	}
	return groups, order
}

// groupByServiceTime walks alerts in timestamp order keeping one open group
// per service. A gap beyond the window closes the group and opens a new one.
func groupByServiceTime(alerts []alert.NormalizedAlert, window time.Duration) [][]alert.NormalizedAlert {
	var groups [][]alert.NormalizedAlert
	open := make(map[string]int) // service -> index into groups

	for _, a := range alerts {
		idx, ok := open[a.Service]
		if ok {
			last := groups[idx][len(groups[idx])-1]
			if a.Timestamp.Sub(last.Timestamp) <= window {
				groups[idx] = append(groups[idx], a)
				continue
			}
		}
		groups = append(groups, []alert.NormalizedAlert{a})
		open[a.Service] = len(groups) - 1
	}
	return groups
}

// fingerprintScore: identical fingerprints are near-certain correlation.
func fingerprintScore(alerts []alert.NormalizedAlert) float64 {
	if len(alerts) <= 1 {
		return 1.0
	}
	score := 0.9
	if timeSpan(alerts) <= 300*time.Second {
		score += 0.1
	} else {
		score += 0.05
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// serviceScore: same service within the window is moderate correlation,
// boosted by uniform severity and temporal tightness, capped at 0.85.
func serviceScore(alerts []alert.NormalizedAlert) float64 {
	if len(alerts) <= 1 {
		return 0.7
	}
	score := 0.6
	uniform := true
	for _, a := range alerts[1:] {
		if a.Severity != alerts[0].Severity {
			uniform = false
			break
		}
	}
	if uniform {
		score += 0.1
	}
	if timeSpan(alerts) <= 180*time.Second {
		score += 0.1
	}
	if score > 0.85 {
		score = 0.85
	}
	return score
}
