package trend

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/strandsops/strands/pkg/stats"
)

// AnalyzerConfig tunes trend classification thresholds.
type AnalyzerConfig struct {
	// DegradingThreshold is the minimum relative increase (first to last)
	// classified as DEGRADING.
	DegradingThreshold float64
	// RecoveringThreshold is the minimum relative decrease classified as
	// RECOVERING.
	RecoveringThreshold float64
	// LookbackSeconds is recorded on every produced trend.
	LookbackSeconds int
}

// DefaultAnalyzerConfig returns the standard thresholds.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		DegradingThreshold:  0.15,
		RecoveringThreshold: 0.10,
		LookbackSeconds:     3600,
	}
}

// Analyzer classifies a metric series into a trend state with a confidence
// derived from regression fit quality and sample size.
type Analyzer struct {
	cfg    AnalyzerConfig
	logger *slog.Logger
}

// NewAnalyzer creates a trend analyzer.
func NewAnalyzer(cfg AnalyzerConfig, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{cfg: cfg, logger: logger}
}

// Analyze classifies the series for one metric. The input order is preserved
// through filtering; regression runs over sample index, not wall clock.
func (a *Analyzer) Analyze(metricName string, points []DataPoint) MetricTrend {
	total := len(points)

	valid := make([]DataPoint, 0, total)
	for _, p := range points {
		if !math.IsNaN(p.Value) && !math.IsInf(p.Value, 0) {
			valid = append(valid, p)
		}
	}

	if len(valid) < 5 {
		a.logger.Debug("insufficient data for trend analysis",
			"metric", metricName, "valid", len(valid), "total", total)
		return MetricTrend{
			MetricName:      metricName,
			State:           StateUnknown,
			Confidence:      0,
			LookbackSeconds: a.cfg.LookbackSeconds,
			DataPointsTotal: total,
			DataPointsUsed:  len(valid),
			Reasoning:       "insufficient data (<5 valid)",
		}
	}

	// Percentile outlier rejection only pays off above the minimum sample
	// size; at exactly 5 points every sample is kept.
	used := valid
	removed := 0
	if len(valid) > 5 {
		vals := make([]float64, len(valid))
		for i, p := range valid {
			vals[i] = p.Value
		}
		threshold := stats.Percentile(vals, 95)
		kept := make([]DataPoint, 0, len(valid))
		for _, p := range valid {
			if p.Value <= threshold {
				kept = append(kept, p)
			} else {
				p.IsOutlier = true
				removed++
			}
		}
		used = kept
	}

	usedVals := make([]float64, len(used))
	for i, p := range used {
		usedVals[i] = p.Value
	}

	first := usedVals[0]
	last := usedVals[len(usedVals)-1]

	var state State
	var deltaDesc string
	if first == 0 {
		// Relative change is undefined at a zero baseline; fall back to
		// the sign of the latest sample.
		deltaDesc = "delta=n/a (zero baseline)"
		switch {
		case last > 0:
			state = StateDegrading
		case last < 0:
			state = StateRecovering
		default:
			state = StateStable
		}
	} else {
		delta := (last - first) / math.Abs(first)
		deltaDesc = fmt.Sprintf("delta=%+.2f%%", delta*100)
		switch {
		case delta > a.cfg.DegradingThreshold:
			state = StateDegrading
		case delta < -a.cfg.RecoveringThreshold:
			state = StateRecovering
		default:
			state = StateStable
		}
	}

	slope, r2 := stats.LinearTrend(usedVals)
	cv := stats.CoefVariation(usedVals)

	// Sample-size tier is judged on valid points, before outlier rejection,
	// so that removing a single spike does not demote a dense series.
	var tier string
	var confidence float64
	if len(valid) >= 10 {
		tier = "high"
		confidence = math.Min(r2+0.15, 0.95)
	} else {
		tier = "medium"
		confidence = math.Min(r2, 0.70)
	}

	varianceNote := ""
	if cv > 0.5 {
		confidence *= 0.85
		varianceNote = " (high variance penalty)"
	}

	// A flat series has r2 near zero by construction, which would punish
	// the one state where a poor fit is expected. Floor STABLE confidence
	// on dispersion instead.
	if state == StateStable {
		cvc := math.Min(cv, 1)
		var floor float64
		if len(valid) >= 10 {
			floor = math.Min(0.95, 0.6+(1-cvc)*0.3)
		} else {
			floor = math.Min(0.75, 0.5+(1-cvc)*0.2)
		}
		confidence = math.Max(confidence, floor)
	}

	confidence = math.Max(0, math.Min(1, confidence))

	reasoning := fmt.Sprintf(
		"%s: %s, slope=%.4f, r2=%.3f, tier=%s, cv=%.3f%s, thresholds=+%.0f%%/-%.0f%%, points=%d/%d used, outliers_removed=%d",
		state, deltaDesc, slope, r2, tier, cv, varianceNote,
		a.cfg.DegradingThreshold*100, a.cfg.RecoveringThreshold*100,
		len(used), total, removed)

	current := last
	return MetricTrend{
		MetricName:      metricName,
		State:           state,
		Confidence:      confidence,
		DataPoints:      used,
		LookbackSeconds: a.cfg.LookbackSeconds,
		CurrentValue:    &current,
		DataPointsTotal: total,
		DataPointsUsed:  len(used),
		OutliersRemoved: removed,
		Reasoning:       reasoning,
	}
}
