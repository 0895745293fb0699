// Package metrics exposes the service's Prometheus series.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AlertsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strands_alerts_ingested_total",
		Help: "Alerts accepted by the webhook, by validation status.",
	}, []string{"status"})

	ClustersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strands_clusters_created_total",
		Help: "Alert clusters produced by correlation.",
	})

	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strands_decisions_total",
		Help: "Decisions by state and whether an LLM contributed.",
	}, []string{"state", "llm"})

	SwarmRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strands_swarm_runs_total",
		Help: "Swarm runs by terminal state.",
	}, []string{"state"})

	SwarmRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "strands_swarm_run_duration_seconds",
		Help:    "Wall-clock duration of swarm runs.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	})

	AgentExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strands_agent_executions_total",
		Help: "Agent executions by agent id and outcome.",
	}, []string{"agent_id", "outcome"})

	RetryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strands_retry_attempts_total",
		Help: "Granted retry attempts by step id.",
	}, []string{"step_id"})

	DedupSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strands_dedup_skipped_total",
		Help: "Runs skipped because an equivalent alert was already handled.",
	})

	LLMFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strands_llm_fallbacks_total",
		Help: "LLM fallback invocations by trigger reason.",
	}, []string{"reason"})

	LedgerWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strands_ledger_writes_total",
		Help: "Audit ledger writes by entity and result.",
	}, []string{"entity", "result"})

	DecisionConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "strands_decision_confidence_score",
		Help:    "Confidence of triage decisions.",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})

	HumanOverrides = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strands_human_override_total",
		Help: "Decisions overridden by a human reviewer.",
	})

	RAGSimilarity = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "strands_rag_similarity_score",
		Help:    "Best similarity score per semantic recovery lookup.",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})
)
