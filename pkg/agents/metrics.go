package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/strandsops/strands/pkg/policy"
	"github.com/strandsops/strands/pkg/swarm"
	"github.com/strandsops/strands/pkg/trend"
)

// MetricsAgent runs trend analysis over the metric series handed to it and
// emits one METRIC evidence per series plus a fused summary.
type MetricsAgent struct {
	analyzer *trend.Analyzer
}

func NewMetricsAgent(analyzer *trend.Analyzer) *MetricsAgent {
	if analyzer == nil {
		analyzer = trend.NewAnalyzer(trend.DefaultAnalyzerConfig(), nil)
	}
	return &MetricsAgent{analyzer: analyzer}
}

func (m *MetricsAgent) ID() string      { return "metricsanalysis" }
func (m *MetricsAgent) Version() string { return "1" }
func (m *MetricsAgent) LogicHash() string {
	return policy.HashLogic("metricsanalysis:trend-fusion:v1")
}

func (m *MetricsAgent) Execute(_ context.Context, params map[string]any, stepID string) swarm.AgentExecution {
	exec := newExecution(m, stepID, params)

	series, err := metricSeries(params)
	exec.FinishedAt = time.Now().UTC()
	if err != nil {
		exec.Error = swarm.NewExecError(swarm.ErrValidation, "metric series: %v", err)
		return exec
	}

	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)

	trends := make([]trend.MetricTrend, 0, len(names))
	for _, name := range names {
		t := m.analyzer.Analyze(name, series[name])
		trends = append(trends, t)
		exec.OutputEvidence = append(exec.OutputEvidence, swarm.Evidence{
			EvidenceID:        uuid.NewString(),
			SourceExecutionID: exec.ExecutionID,
			AgentID:           m.ID(),
			Content:           t.Reasoning,
			Confidence:        t.Confidence,
			Type:              swarm.EvidenceMetric,
		})
	}

	fused := trend.Fuse(trends)
	exec.OutputEvidence = append(exec.OutputEvidence, swarm.Evidence{
		EvidenceID:        uuid.NewString(),
		SourceExecutionID: exec.ExecutionID,
		AgentID:           m.ID(),
		Content:           fmt.Sprintf("fused: state=%s over %d metrics", fused.State, len(trends)),
		Confidence:        fused.Confidence,
		Type:              swarm.EvidenceMetric,
	})
	exec.FinishedAt = time.Now().UTC()
	return exec
}

// metricSeries accepts the series either as an in-process map or as a JSON
// document under the "series" parameter.
func metricSeries(params map[string]any) (map[string][]trend.DataPoint, error) {
	raw, ok := params["series"]
	if !ok {
		return nil, fmt.Errorf("missing required parameter %q", "series")
	}
	switch v := raw.(type) {
	case map[string][]trend.DataPoint:
		return v, nil
	case string:
		var series map[string][]trend.DataPoint
		if err := json.Unmarshal([]byte(v), &series); err != nil {
			return nil, fmt.Errorf("decoding series: %w", err)
		}
		return series, nil
	default:
		return nil, fmt.Errorf("unsupported series type %T", raw)
	}
}
