// Package correlation groups normalized alerts into clusters that describe
// a single underlying incident. Clustering is deterministic: fingerprint
// identity first, then service proximity within a time window.
package correlation

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/strandsops/strands/pkg/alert"
)

// AlertCluster is a group of alerts deemed to describe one incident.
// It is the unit the decision pipeline operates on.
type AlertCluster struct {
	ClusterID        string                  `json:"cluster_id"`
	Alerts           []alert.NormalizedAlert `json:"alerts"`
	CorrelationScore float64                 `json:"correlation_score"`
	CreatedAt        time.Time               `json:"created_at"`
	PrimaryService   string                  `json:"primary_service"`
	PrimarySeverity  string                  `json:"primary_severity"`
	AlertCount       int                     `json:"alert_count"`
	Metadata         map[string]any          `json:"metadata,omitempty"`
}

// NewCluster builds a cluster from a non-empty alert group, computing the
// derived fields. Panics on an empty group: callers own that invariant.
func NewCluster(alerts []alert.NormalizedAlert, score float64) AlertCluster {
	if len(alerts) == 0 {
		panic("correlation: cannot create cluster from empty alert group")
	}
	return AlertCluster{
		ClusterID:        uuid.New().String(),
		Alerts:           alerts,
		CorrelationScore: score,
		CreatedAt:        time.Now().UTC(),
		PrimaryService:   primaryService(alerts),
		PrimarySeverity:  primarySeverity(alerts),
		AlertCount:       len(alerts),
		Metadata:         map[string]any{},
	}
}

// primaryService is the most frequent service; ties resolve to the
// lexicographically smallest name so clustering stays deterministic.
func primaryService(alerts []alert.NormalizedAlert) string {
	counts := make(map[string]int)
	for _, a := range alerts {
		counts[a.Service]++
	}
	best := ""
	bestCount := -1
	services := make([]string, 0, len(counts))
	for s := range counts {
		services = append(services, s)
	}
	sort.Strings(services)
	for _, s := range services {
		if counts[s] > bestCount {
			best = s
			bestCount = counts[s]
		}
	}
	return best
}

// primarySeverity is the highest-ranked severity present in the cluster.
func primarySeverity(alerts []alert.NormalizedAlert) string {
	best := alerts[0].Severity
	for _, a := range alerts[1:] {
		if alert.SeverityRank(a.Severity) > alert.SeverityRank(best) {
			best = a.Severity
		}
	}
	return best
}

// timeSpan is the distance between the earliest and latest alert timestamps.
func timeSpan(alerts []alert.NormalizedAlert) time.Duration {
	if len(alerts) == 0 {
		return 0
	}
	min, max := alerts[0].Timestamp, alerts[0].Timestamp
	for _, a := range alerts[1:] {
		if a.Timestamp.Before(min) {
			min = a.Timestamp
		}
		if a.Timestamp.After(max) {
			max = a.Timestamp
		}
	}
	return max.Sub(min)
}
