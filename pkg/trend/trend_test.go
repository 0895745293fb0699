package trend

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func points(values ...float64) []DataPoint {
	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	pts := make([]DataPoint, len(values))
	for i, v := range values {
		pts[i] = DataPoint{Timestamp: base.Add(time.Duration(i) * time.Minute), Value: v}
	}
	return pts
}

func newTestAnalyzer() *Analyzer {
	return NewAnalyzer(DefaultAnalyzerConfig(), nil)
}

func TestAnalyzeInsufficientData(t *testing.T) {
	a := newTestAnalyzer()

	tr := a.Analyze("cpu_usage", points(1, 2, math.NaN(), 3, math.Inf(1)))

	assert.Equal(t, StateUnknown, tr.State)
	assert.Zero(t, tr.Confidence)
	assert.Equal(t, "insufficient data (<5 valid)", tr.Reasoning)
	assert.Equal(t, 5, tr.DataPointsTotal)
	assert.Equal(t, 3, tr.DataPointsUsed)
}

func TestAnalyzeDegradingDenseSeries(t *testing.T) {
	a := newTestAnalyzer()

	tr := a.Analyze("cpu_usage", points(80, 82, 85, 88, 92, 95, 97, 98, 98, 99))

	assert.Equal(t, StateDegrading, tr.State)
	// r2 just over 0.95 caps the high tier bonus.
	assert.InDelta(t, 0.95, tr.Confidence, 0.001)
	assert.Equal(t, 10, tr.DataPointsTotal)
	assert.Equal(t, 9, tr.DataPointsUsed)
	assert.Equal(t, 1, tr.OutliersRemoved)
	assert.Contains(t, tr.Reasoning, "DEGRADING")
	assert.Contains(t, tr.Reasoning, "points=9/10 used")
	if assert.NotNil(t, tr.CurrentValue) {
		assert.Equal(t, 98.0, *tr.CurrentValue)
	}
}

func TestAnalyzeRecoveringSeries(t *testing.T) {
	a := newTestAnalyzer()

	tr := a.Analyze("error_rate", points(100, 95, 90, 85, 80, 75, 70, 65, 60, 55))

	assert.Equal(t, StateRecovering, tr.State)
	assert.InDelta(t, 0.95, tr.Confidence, 0.001)
	assert.GreaterOrEqual(t, tr.Confidence, 0.85)
}

func TestAnalyzeStableFloor(t *testing.T) {
	a := newTestAnalyzer()

	tr := a.Analyze("latency_p50", points(10, 11, 9, 12, 10))

	assert.Equal(t, StateStable, tr.State)
	// The dispersion floor dominates the near-zero regression fit.
	assert.InDelta(t, 0.68, tr.Confidence, 0.01)
	assert.Equal(t, 5, tr.DataPointsUsed)
	assert.Zero(t, tr.OutliersRemoved)
}

func TestAnalyzeZeroBaseline(t *testing.T) {
	a := newTestAnalyzer()

	tr := a.Analyze("restarts", points(0, 0, 1, 2, 3))

	assert.Equal(t, StateDegrading, tr.State)
	assert.Contains(t, tr.Reasoning, "zero baseline")
}

func TestAnalyzeHighVariancePenalty(t *testing.T) {
	a := newTestAnalyzer()

	tr := a.Analyze("queue_depth", points(1, 1, 1, 1, 10))

	assert.Equal(t, StateDegrading, tr.State)
	assert.InDelta(t, 0.425, tr.Confidence, 0.001)
	assert.Contains(t, tr.Reasoning, "high variance penalty")
}

func TestAnalyzeInvariants(t *testing.T) {
	a := newTestAnalyzer()
	series := [][]float64{
		{},
		{1},
		{1, 2, 3, 4, 5},
		{5, 4, 3, 2, 1, 0.5},
		{1, math.NaN(), 2, 3, 4, 5, 100},
		{0, 0, 0, 0, 0, 0},
	}

	for _, vals := range series {
		tr := a.Analyze("m", points(vals...))
		if tr.State == StateUnknown {
			assert.Zero(t, tr.Confidence)
		}
		assert.LessOrEqual(t, tr.DataPointsUsed+tr.OutliersRemoved, tr.DataPointsTotal)
		assert.GreaterOrEqual(t, tr.Confidence, 0.0)
		assert.LessOrEqual(t, tr.Confidence, 1.0)
	}
}

func TestFuseEmpty(t *testing.T) {
	fused := Fuse(nil)

	assert.Equal(t, StateUnknown, fused.State)
	assert.Zero(t, fused.Confidence)
}

func TestFuseSingleTrend(t *testing.T) {
	fused := Fuse([]MetricTrend{{MetricName: "cpu", State: StateDegrading, Confidence: 0.9}})

	assert.Equal(t, StateDegrading, fused.State)
	assert.InDelta(t, 0.9, fused.Confidence, 0.0001)
	assert.Equal(t, FusionMethodPriorityWeighted, fused.FusionMethod)
}

func TestFusePriorityAndWeights(t *testing.T) {
	fused := Fuse([]MetricTrend{
		{MetricName: "cpu", State: StateDegrading, Confidence: 0.9},
		{MetricName: "mem", State: StateStable, Confidence: 0.5},
	})

	assert.Equal(t, StateDegrading, fused.State)
	assert.InDelta(t, 0.7*0.9+0.3*0.5, fused.Confidence, 0.0001)
}

func TestFuseAllMatchingRenormalizes(t *testing.T) {
	fused := Fuse([]MetricTrend{
		{State: StateStable, Confidence: 0.6},
		{State: StateStable, Confidence: 0.8},
	})

	assert.Equal(t, StateStable, fused.State)
	assert.InDelta(t, 0.7, fused.Confidence, 0.0001)
}

func TestFuseAllUnknown(t *testing.T) {
	fused := Fuse([]MetricTrend{
		{State: StateUnknown, Confidence: 0},
		{State: StateUnknown, Confidence: 0},
	})

	assert.Equal(t, StateUnknown, fused.State)
	assert.Zero(t, fused.Confidence)
}

func TestFuseRecoveringBeatsStable(t *testing.T) {
	fused := Fuse([]MetricTrend{
		{State: StateStable, Confidence: 0.9},
		{State: StateRecovering, Confidence: 0.8},
	})

	assert.Equal(t, StateRecovering, fused.State)
}
