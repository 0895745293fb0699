// Package trend classifies metric time series into trend states and fuses
// per-metric trends into a single cluster-level state. All analysis is
// deterministic: same input yields byte-identical reasoning.
package trend

import "time"

// State classifies a metric's direction over the lookback window.
// The integer value doubles as fusion priority.
type State int

const (
	StateUnknown    State = 0
	StateStable     State = 1
	StateRecovering State = 2
	StateDegrading  State = 3
)

// String returns the canonical state name.
func (s State) String() string {
	switch s {
	case StateDegrading:
		return "DEGRADING"
	case StateRecovering:
		return "RECOVERING"
	case StateStable:
		return "STABLE"
	default:
		return "UNKNOWN"
	}
}

// DataPoint is a single sample in a metric time series.
type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	IsOutlier bool      `json:"is_outlier,omitempty"`
}

// MetricTrend is the analysis of one metric over the lookback window.
type MetricTrend struct {
	MetricName      string      `json:"metric_name"`
	State           State       `json:"state"`
	Confidence      float64     `json:"confidence"`
	DataPoints      []DataPoint `json:"data_points,omitempty"`
	LookbackSeconds int         `json:"lookback_seconds"`
	ThresholdValue  *float64    `json:"threshold_value,omitempty"`
	CurrentValue    *float64    `json:"current_value,omitempty"`
	DataPointsTotal int         `json:"data_points_total"`
	DataPointsUsed  int         `json:"data_points_used"`
	OutliersRemoved int         `json:"outliers_removed"`
	Reasoning       string      `json:"reasoning"`
	FusionMethod    string      `json:"fusion_method,omitempty"`
}

// IsActionable reports whether the trend carries usable signal.
func (t MetricTrend) IsActionable() bool {
	return t.State != StateUnknown && t.Confidence >= 0.6
}
