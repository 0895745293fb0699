// Package pipeline wires alert intake end to end: normalization,
// correlation, trend-informed triage, and swarm dispatch for clusters that
// need investigation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/strandsops/strands/pkg/alert"
	"github.com/strandsops/strands/pkg/correlation"
	"github.com/strandsops/strands/pkg/decision"
	"github.com/strandsops/strands/pkg/metrics"
	"github.com/strandsops/strands/pkg/swarm"
	"github.com/strandsops/strands/pkg/trend"
	"github.com/strandsops/strands/pkg/vector"
)

// MetricSource provides recent metric series for a service. A nil source
// disables trend analysis; triage then runs on correlation evidence alone.
type MetricSource interface {
	FetchSeries(ctx context.Context, service string) (map[string][]trend.DataPoint, error)
}

// Runner is the coordinator slice the pipeline dispatches runs through.
type Runner interface {
	Execute(ctx context.Context, domain string, plan swarm.SwarmPlan, a *alert.NormalizedAlert, opts swarm.ExecuteOptions) (*swarm.SwarmRun, error)
}

// Cluster statuses reported to the webhook caller.
const (
	StatusProcessing = "processing"
	StatusTriaged    = "triaged"
	StatusDuplicate  = "duplicate"
	StatusBusy       = "busy"
	StatusMalformed  = "malformed"
)

// ClusterResult is the intake outcome for one correlated cluster.
type ClusterResult struct {
	ClusterID  string             `json:"cluster_id"`
	RunID      string             `json:"run_id,omitempty"`
	Status     string             `json:"status"`
	AlertCount int                `json:"alert_count"`
	Decision   *decision.Decision `json:"decision,omitempty"`
}

// IngestResult summarizes one webhook batch.
type IngestResult struct {
	Accepted  int             `json:"accepted"`
	Malformed int             `json:"malformed"`
	Clusters  []ClusterResult `json:"clusters"`
}

// Config tunes intake behaviour.
type Config struct {
	// Domain tags every run dispatched by this pipeline.
	Domain string
	// DispatchWait is how long Ingest waits for a dispatched run before
	// reporting it as still processing. Immediate lock conflicts surface
	// as busy within this window.
	DispatchWait time.Duration
	// PlanTemplate builds the investigation plan for a cluster. When nil,
	// DefaultPlan is used.
	PlanTemplate func(cluster correlation.AlertCluster, series map[string][]trend.DataPoint) swarm.SwarmPlan
}

// DefaultConfig returns intake defaults.
func DefaultConfig() Config {
	return Config{
		Domain:       "sre",
		DispatchWait: 150 * time.Millisecond,
	}
}

// Service is the intake pipeline.
type Service struct {
	normalizer *alert.Normalizer
	correlator *correlation.Engine
	analyzer   *trend.Analyzer
	decider    *decision.Engine
	runner     Runner
	source     MetricSource
	index      vector.Store
	cfg        Config
	logger     *slog.Logger
}

func NewService(correlator *correlation.Engine, analyzer *trend.Analyzer, decider *decision.Engine,
	runner Runner, source MetricSource, index vector.Store, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Domain == "" {
		cfg.Domain = "sre"
	}
	if cfg.DispatchWait <= 0 {
		cfg.DispatchWait = 150 * time.Millisecond
	}
	return &Service{
		normalizer: alert.NewNormalizer(),
		correlator: correlator,
		analyzer:   analyzer,
		decider:    decider,
		runner:     runner,
		source:     source,
		index:      index,
		cfg:        cfg,
		logger:     logger,
	}
}

// Ingest processes one webhook batch. Malformed alerts are counted and kept
// out of correlation; each resulting cluster is triaged and, when the triage
// decision asks for investigation, dispatched as a swarm run.
func (s *Service) Ingest(ctx context.Context, raws []alert.RawAlert) (*IngestResult, error) {
	if len(raws) == 0 {
		return nil, errors.New("empty alert batch")
	}

	normalized := s.normalizer.NormalizeBatch(raws)
	result := &IngestResult{}
	valid := make([]alert.NormalizedAlert, 0, len(normalized))
	for _, na := range normalized {
		if na.IsValid() {
			metrics.AlertsIngested.WithLabelValues("valid").Inc()
			valid = append(valid, na)
			continue
		}
		metrics.AlertsIngested.WithLabelValues("malformed").Inc()
		result.Malformed++
	}
	result.Accepted = len(valid)
	if len(valid) == 0 {
		return result, nil
	}

	clusters := s.correlator.Correlate(valid)
	for _, cluster := range clusters {
		metrics.ClustersCreated.Inc()
		result.Clusters = append(result.Clusters, s.triage(ctx, cluster))
	}
	return result, nil
}

// triage decides what to do with one cluster and dispatches a swarm run when
// the decision calls for escalation or human review.
func (s *Service) triage(ctx context.Context, cluster correlation.AlertCluster) ClusterResult {
	res := ClusterResult{
		ClusterID:  cluster.ClusterID,
		Status:     StatusTriaged,
		AlertCount: len(cluster.Alerts),
	}

	series := s.fetchSeries(ctx, cluster.PrimaryService)
	trends := s.analyzeTrends(series)

	d := s.decider.Decide(ctx, &cluster, trends, nil)
	metrics.DecisionConfidence.Observe(d.Confidence)
	metrics.DecisionsTotal.WithLabelValues(string(d.State), fmt.Sprintf("%t", d.LLMContribution)).Inc()
	res.Decision = &d
	s.indexDecision(ctx, cluster, d)

	s.logger.Info("cluster triaged",
		"cluster_id", cluster.ClusterID,
		"service", cluster.PrimaryService,
		"state", d.State,
		"confidence", d.Confidence,
		"alerts", len(cluster.Alerts))

	if d.State != decision.StateEscalate && d.State != decision.StateManualReview {
		return res
	}
	return s.dispatch(ctx, cluster, series, res)
}

// dispatch starts the swarm run in the background and waits briefly so an
// immediate dedup or lock outcome reaches the caller.
func (s *Service) dispatch(ctx context.Context, cluster correlation.AlertCluster,
	series map[string][]trend.DataPoint, res ClusterResult) ClusterResult {
	if s.runner == nil {
		return res
	}

	plan := s.buildPlan(cluster, series)
	primary := cluster.Alerts[0]
	runID := uuid.NewString()
	res.RunID = runID
	res.Status = StatusProcessing

	type outcome struct {
		run *swarm.SwarmRun
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		run, err := s.runner.Execute(context.WithoutCancel(ctx), s.cfg.Domain, plan, &primary,
			swarm.ExecuteOptions{RunID: runID})
		if err != nil && !errors.Is(err, swarm.ErrSourceBusy) {
			s.logger.Error("swarm run failed", "run_id", runID, "error", err)
		}
		done <- outcome{run: run, err: err}
	}()

	select {
	case out := <-done:
		switch {
		case errors.Is(out.err, swarm.ErrSourceBusy):
			res.Status = StatusBusy
			res.RunID = ""
		case out.err != nil:
			res.Status = StatusTriaged
			res.RunID = ""
		case out.run.State == swarm.RunDuplicateSkipped:
			res.Status = StatusDuplicate
		}
	case <-time.After(s.cfg.DispatchWait):
		// Still running; the caller polls GET /runs/:id.
	}
	return res
}

func (s *Service) fetchSeries(ctx context.Context, service string) map[string][]trend.DataPoint {
	if s.source == nil {
		return nil
	}
	series, err := s.source.FetchSeries(ctx, service)
	if err != nil {
		s.logger.Warn("metric source unavailable", "service", service, "error", err)
		return nil
	}
	return series
}

func (s *Service) analyzeTrends(series map[string][]trend.DataPoint) []trend.MetricTrend {
	if s.analyzer == nil || len(series) == 0 {
		return nil
	}
	trends := make([]trend.MetricTrend, 0, len(series))
	for name, points := range series {
		trends = append(trends, s.analyzer.Analyze(name, points))
	}
	return trends
}

// indexDecision stores the triage outcome for future semantic recovery.
func (s *Service) indexDecision(ctx context.Context, cluster correlation.AlertCluster, d decision.Decision) {
	if s.index == nil {
		return
	}
	summary := fmt.Sprintf("%s %s: %s (%s)", cluster.PrimaryService, cluster.PrimarySeverity, d.Justification, d.State)
	err := s.index.Add(ctx, vector.Document{
		DecisionID: d.DecisionID,
		Summary:    summary,
		Metadata:   map[string]string{"service": cluster.PrimaryService},
	})
	if err != nil {
		s.logger.Warn("decision indexing failed", "decision_id", d.DecisionID, "error", err)
	}
}

func (s *Service) buildPlan(cluster correlation.AlertCluster, series map[string][]trend.DataPoint) swarm.SwarmPlan {
	if s.cfg.PlanTemplate != nil {
		return s.cfg.PlanTemplate(cluster, series)
	}
	return DefaultPlan(cluster, series)
}

// DefaultPlan is the stock investigation plan: mandatory log analysis, a
// network probe, metric trend analysis when series are available, all
// retried under exponential backoff.
func DefaultPlan(cluster correlation.AlertCluster, series map[string][]trend.DataPoint) swarm.SwarmPlan {
	endpoints := make([]string, 0, 1)
	if cluster.PrimaryService != "" {
		endpoints = append(endpoints, cluster.PrimaryService+":443")
	}

	steps := []swarm.SwarmStep{
		{
			StepID:      "logs",
			AgentID:     "loganalysis",
			Mandatory:   true,
			RetryPolicy: "exponential_backoff",
			Parameters:  map[string]any{"logs": describeAlerts(cluster.Alerts)},
		},
		{
			StepID:      "network",
			AgentID:     "networkscanner",
			RetryPolicy: "exponential_backoff",
			Parameters:  map[string]any{"endpoints": endpoints},
		},
	}
	if len(series) > 0 {
		steps = append(steps, swarm.SwarmStep{
			StepID:      "metrics",
			AgentID:     "metricsanalysis",
			Mandatory:   true,
			RetryPolicy: "exponential_backoff",
			Parameters:  map[string]any{"series": series},
		})
	}
	return swarm.SwarmPlan{
		PlanID:    "triage-" + cluster.ClusterID,
		Objective: fmt.Sprintf("investigate %s (%s)", cluster.PrimaryService, cluster.PrimarySeverity),
		Steps:     steps,
	}
}

func describeAlerts(alerts []alert.NormalizedAlert) []string {
	lines := make([]string, 0, len(alerts))
	for _, a := range alerts {
		lines = append(lines, fmt.Sprintf("%s [%s] %s: %s",
			a.Timestamp.UTC().Format(time.RFC3339), a.Severity, a.Service, a.Description))
	}
	return lines
}
