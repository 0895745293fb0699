package decision

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/strandsops/strands/pkg/correlation"
	"github.com/strandsops/strands/pkg/trend"
)

// Engine composes the rule engine with the fallback into final decisions.
type Engine struct {
	rules    *RuleEngine
	fallback *Fallback
	// LLMThreshold gates the fallback: rule verdicts at or above it stand.
	LLMThreshold float64
	logger       *slog.Logger
	now          func() time.Time
}

// NewEngine creates a decision engine. fallback may be nil, in which case
// Decide behaves like DecideSync.
func NewEngine(rules *RuleEngine, fallback *Fallback, logger *slog.Logger) *Engine {
	if rules == nil {
		rules = NewRuleEngine()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		rules:        rules,
		fallback:     fallback,
		LLMThreshold: 0.60,
		logger:       logger,
		now:          time.Now,
	}
}

// Decide evaluates the rules and, when the verdict is weak and not already a
// manual review, lets the fallback replace it.
func (e *Engine) Decide(ctx context.Context, cluster *correlation.AlertCluster, trends []trend.MetricTrend, evidence []SemanticEvidence) Decision {
	winner, fired := e.rules.Evaluate(cluster, trends, evidence)
	d := e.fromRuleResult(winner, fired, evidence)

	if e.fallback == nil || winner.Confidence >= e.LLMThreshold || winner.State == StateManualReview {
		return d
	}

	res := e.fallback.Recover(ctx, cluster, trends, winner)
	d.State = res.State
	d.Confidence = res.Confidence
	d.Justification = res.Justification
	d.LLMReason = res.Reason
	// Semantic recovery mirrors a past decision; only a real model call
	// counts as an LLM contribution.
	d.LLMContribution = res.Reason != ReasonSemanticRecovery
	if len(res.Evidence) > 0 {
		d.SemanticEvidence = res.Evidence
	}
	e.logger.Info("fallback replaced rule verdict",
		"decision_id", d.DecisionID, "state", d.State,
		"confidence", d.Confidence, "reason", res.Reason)
	return d
}

// DecideSync evaluates rules only. Used by tests and offline pipelines that
// must never touch the network.
func (e *Engine) DecideSync(cluster *correlation.AlertCluster, trends []trend.MetricTrend, evidence []SemanticEvidence) Decision {
	winner, fired := e.rules.Evaluate(cluster, trends, evidence)
	return e.fromRuleResult(winner, fired, evidence)
}

func (e *Engine) fromRuleResult(winner RuleResult, fired []RuleResult, evidence []SemanticEvidence) Decision {
	applied := make([]string, len(fired))
	for i, r := range fired {
		applied[i] = r.RuleID
	}
	return Decision{
		DecisionID:       uuid.NewString(),
		State:            winner.State,
		Confidence:       winner.Confidence,
		Justification:    winner.Justification,
		RulesApplied:     applied,
		SemanticEvidence: evidence,
		CreatedAt:        e.now().UTC(),
	}
}
