package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandsops/strands/pkg/alert"
	"github.com/strandsops/strands/pkg/correlation"
	"github.com/strandsops/strands/pkg/decision"
	"github.com/strandsops/strands/pkg/swarm"
	"github.com/strandsops/strands/pkg/trend"
	"github.com/strandsops/strands/pkg/vector"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []swarm.SwarmPlan
	delay time.Duration
	state swarm.RunState
	err   error
}

func (f *fakeRunner) Execute(_ context.Context, _ string, plan swarm.SwarmPlan, _ *alert.NormalizedAlert, opts swarm.ExecuteOptions) (*swarm.SwarmRun, error) {
	f.mu.Lock()
	f.calls = append(f.calls, plan)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	state := f.state
	if state == "" {
		state = swarm.RunFinished
	}
	return &swarm.SwarmRun{RunID: opts.RunID, State: state}, nil
}

func (f *fakeRunner) planCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSource struct {
	series map[string][]trend.DataPoint
}

func (f *fakeSource) FetchSeries(context.Context, string) (map[string][]trend.DataPoint, error) {
	return f.series, nil
}

func degradingSeries() map[string][]trend.DataPoint {
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	points := make([]trend.DataPoint, 0, 12)
	for i := 0; i < 12; i++ {
		points = append(points, trend.DataPoint{
			Timestamp: base.Add(time.Duration(i) * 30 * time.Second),
			Value:     100 + float64(i)*25,
		})
	}
	return map[string][]trend.DataPoint{"error_rate": points}
}

func rawAlert(fp, service, severity string) alert.RawAlert {
	return alert.RawAlert{
		Timestamp:   time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
		Fingerprint: fp,
		Service:     service,
		Severity:    severity,
		Description: "elevated error rate",
		Source:      "alertmanager",
	}
}

func newTestService(runner Runner, source MetricSource) *Service {
	correlator := correlation.NewEngine(correlation.Config{
		TimeWindow:         5 * time.Minute,
		GroupByFingerprint: true,
	})
	decider := decision.NewEngine(decision.NewRuleEngine(), nil, nil)
	cfg := DefaultConfig()
	cfg.DispatchWait = 200 * time.Millisecond
	return NewService(correlator, trend.NewAnalyzer(trend.DefaultAnalyzerConfig(), nil),
		decider, runner, source, vector.NewMemoryStore(), cfg, nil)
}

func TestIngestEmptyBatch(t *testing.T) {
	svc := newTestService(nil, nil)
	_, err := svc.Ingest(context.Background(), nil)
	assert.Error(t, err)
}

func TestIngestCountsMalformed(t *testing.T) {
	svc := newTestService(nil, nil)

	bad := rawAlert("", "payment-api", "critical")
	res, err := svc.Ingest(context.Background(), []alert.RawAlert{bad})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Accepted)
	assert.Equal(t, 1, res.Malformed)
	assert.Empty(t, res.Clusters)
}

func TestIngestEscalatesCriticalDegrading(t *testing.T) {
	runner := &fakeRunner{}
	svc := newTestService(runner, &fakeSource{series: degradingSeries()})

	res, err := svc.Ingest(context.Background(), []alert.RawAlert{
		rawAlert("fp-1", "payment-api", "critical"),
	})
	require.NoError(t, err)
	require.Len(t, res.Clusters, 1)

	cluster := res.Clusters[0]
	require.NotNil(t, cluster.Decision)
	assert.Equal(t, decision.StateEscalate, cluster.Decision.State)
	assert.Contains(t, cluster.Decision.RulesApplied, decision.RuleCriticalDegrading)
	assert.NotEmpty(t, cluster.RunID)
	assert.Equal(t, 1, runner.planCount())

	// The dispatched plan includes trend analysis because series exist.
	stepIDs := make([]string, 0, 3)
	for _, step := range runner.calls[0].Steps {
		stepIDs = append(stepIDs, step.StepID)
	}
	assert.ElementsMatch(t, []string{"logs", "network", "metrics"}, stepIDs)
}

func TestIngestNoTrendDataGoesToManualReview(t *testing.T) {
	runner := &fakeRunner{}
	svc := newTestService(runner, nil)

	res, err := svc.Ingest(context.Background(), []alert.RawAlert{
		rawAlert("fp-1", "payment-api", "warning"),
	})
	require.NoError(t, err)
	require.Len(t, res.Clusters, 1)
	assert.Equal(t, decision.StateManualReview, res.Clusters[0].Decision.State)
	assert.Equal(t, 1, runner.planCount())

	// Without series the metrics step is omitted.
	for _, step := range runner.calls[0].Steps {
		assert.NotEqual(t, "metrics", step.StepID)
	}
}

func TestIngestRecoveringClusterNotDispatched(t *testing.T) {
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	points := make([]trend.DataPoint, 0, 12)
	for i := 0; i < 12; i++ {
		points = append(points, trend.DataPoint{
			Timestamp: base.Add(time.Duration(i) * 30 * time.Second),
			Value:     400 - float64(i)*25,
		})
	}
	runner := &fakeRunner{}
	svc := newTestService(runner, &fakeSource{
		series: map[string][]trend.DataPoint{"error_rate": points},
	})

	res, err := svc.Ingest(context.Background(), []alert.RawAlert{
		rawAlert("fp-1", "payment-api", "warning"),
	})
	require.NoError(t, err)
	require.Len(t, res.Clusters, 1)
	assert.Equal(t, decision.StateClose, res.Clusters[0].Decision.State)
	assert.Equal(t, StatusTriaged, res.Clusters[0].Status)
	assert.Empty(t, res.Clusters[0].RunID)
	assert.Zero(t, runner.planCount())
}

func TestIngestReportsBusySource(t *testing.T) {
	runner := &fakeRunner{err: swarm.ErrSourceBusy}
	svc := newTestService(runner, &fakeSource{series: degradingSeries()})

	res, err := svc.Ingest(context.Background(), []alert.RawAlert{
		rawAlert("fp-1", "payment-api", "critical"),
	})
	require.NoError(t, err)
	require.Len(t, res.Clusters, 1)
	assert.Equal(t, StatusBusy, res.Clusters[0].Status)
	assert.Empty(t, res.Clusters[0].RunID)
}

func TestIngestReportsDuplicate(t *testing.T) {
	runner := &fakeRunner{state: swarm.RunDuplicateSkipped}
	svc := newTestService(runner, &fakeSource{series: degradingSeries()})

	res, err := svc.Ingest(context.Background(), []alert.RawAlert{
		rawAlert("fp-1", "payment-api", "critical"),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, res.Clusters[0].Status)
}

func TestIngestSlowRunStaysProcessing(t *testing.T) {
	runner := &fakeRunner{delay: 500 * time.Millisecond}
	svc := newTestService(runner, &fakeSource{series: degradingSeries()})
	svc.cfg.DispatchWait = 50 * time.Millisecond

	res, err := svc.Ingest(context.Background(), []alert.RawAlert{
		rawAlert("fp-1", "payment-api", "critical"),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, res.Clusters[0].Status)
	assert.NotEmpty(t, res.Clusters[0].RunID)
}

func TestIngestOneRunPerCluster(t *testing.T) {
	runner := &fakeRunner{}
	svc := newTestService(runner, &fakeSource{series: degradingSeries()})

	res, err := svc.Ingest(context.Background(), []alert.RawAlert{
		rawAlert("fp-1", "payment-api", "critical"),
		rawAlert("fp-1", "payment-api", "critical"),
		rawAlert("fp-9", "search-api", "critical"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Accepted)
	assert.Len(t, res.Clusters, 2)
	assert.Equal(t, 2, runner.planCount())
}
