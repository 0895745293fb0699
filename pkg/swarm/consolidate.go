package swarm

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/strandsops/strands/pkg/decision"
	"github.com/strandsops/strands/pkg/metrics"
)

// ConfidenceAdjuster is the confidence-service slice used when a human
// reviews a proposal: overrides penalize the contributing agents, accepts
// reinforce them.
type ConfidenceAdjuster interface {
	PenalizeForOverride(ctx context.Context, agentID, decisionID string) error
	ReinforceForSuccess(ctx context.Context, agentID, decisionID string) error
}

// HumanReviewHook inspects a provisional decision. Returning nil means the
// review is still pending and the proposal stands as-is.
type HumanReviewHook func(ctx context.Context, d RunDecision) (*decision.HumanDecision, error)

// DecisionController consolidates a run's evidence into one proposal.
type DecisionController struct {
	confidence ConfidenceAdjuster
	hook       HumanReviewHook
	logger     *slog.Logger
	now        func() time.Time
}

// NewDecisionController wires the controller. Both collaborators may be nil.
func NewDecisionController(confidence ConfidenceAdjuster, hook HumanReviewHook, logger *slog.Logger) *DecisionController {
	if logger == nil {
		logger = slog.Default()
	}
	return &DecisionController{confidence: confidence, hook: hook, logger: logger, now: time.Now}
}

// Consolidate aggregates the evidence of all successful executions and
// proposes an action. An LLM hypothesis, when present, takes precedence and
// always routes to a human.
func (c *DecisionController) Consolidate(ctx context.Context, executions []AgentExecution) RunDecision {
	evidence := CollectEvidence(executions)

	d := RunDecision{
		DecisionID: uuid.NewString(),
		Metadata:   map[string]any{"evidence_count": len(evidence)},
		CreatedAt:  c.now().UTC(),
	}

	if len(evidence) == 0 {
		d.ActionProposed = ActionManualReview
		d.Confidence = 0
		return c.review(ctx, evidence, d)
	}

	sum := 0.0
	for _, ev := range evidence {
		sum += ev.Confidence
		d.SupportingEvidence = append(d.SupportingEvidence, ev.EvidenceID)
	}
	d.Confidence = sum / float64(len(evidence))

	if hyp := lastHypothesis(evidence); hyp != nil {
		d.RootCause, d.RecommendedProcedure = extractHypothesis(hyp.Content)
		d.ActionProposed = ActionHumanReviewRequired
		d.Metadata["llm_enriched"] = true
		return c.review(ctx, evidence, d)
	}

	if d.Confidence > 0.8 {
		d.ActionProposed = ActionAutoRemediate
	} else {
		d.ActionProposed = ActionHumanReviewRequired
	}
	return c.review(ctx, evidence, d)
}

func (c *DecisionController) review(ctx context.Context, evidence []Evidence, d RunDecision) RunDecision {
	if c.hook == nil {
		return d
	}
	human, err := c.hook(ctx, d)
	if err != nil {
		c.logger.Warn("human review hook failed", "decision_id", d.DecisionID, "error", err)
		return d
	}
	if human == nil {
		return d
	}
	d.HumanDecision = human
	switch human.Action {
	case decision.HumanOverride:
		metrics.HumanOverrides.Inc()
		c.penalizeAgents(ctx, evidence, d.DecisionID)
	case decision.HumanAccept:
		c.reinforceAgents(ctx, evidence, d.DecisionID)
	}
	return d
}

func (c *DecisionController) penalizeAgents(ctx context.Context, evidence []Evidence, decisionID string) {
	if c.confidence == nil {
		return
	}
	for _, agentID := range contributingAgents(evidence) {
		if err := c.confidence.PenalizeForOverride(ctx, agentID, decisionID); err != nil {
			c.logger.Error("confidence penalty failed", "agent_id", agentID, "error", err)
		}
	}
}

func (c *DecisionController) reinforceAgents(ctx context.Context, evidence []Evidence, decisionID string) {
	if c.confidence == nil {
		return
	}
	for _, agentID := range contributingAgents(evidence) {
		if err := c.confidence.ReinforceForSuccess(ctx, agentID, decisionID); err != nil {
			c.logger.Error("confidence reinforcement failed", "agent_id", agentID, "error", err)
		}
	}
}

// contributingAgents returns the distinct agents behind the evidence, in
// stable order.
func contributingAgents(evidence []Evidence) []string {
	seen := make(map[string]bool)
	var agents []string
	for _, ev := range evidence {
		if !seen[ev.AgentID] {
			seen[ev.AgentID] = true
			agents = append(agents, ev.AgentID)
		}
	}
	sort.Strings(agents)
	return agents
}

func lastHypothesis(evidence []Evidence) *Evidence {
	for i := len(evidence) - 1; i >= 0; i-- {
		if evidence[i].Type == EvidenceHypothesis {
			return &evidence[i]
		}
	}
	return nil
}

// extractHypothesis pulls root cause and recommended procedure out of an
// LLM hypothesis. JSON content is preferred; plain text falls back to
// prefixed lines.
func extractHypothesis(content string) (rootCause, procedure string) {
	var parsed struct {
		RootCause            string `json:"root_cause"`
		RecommendedProcedure string `json:"recommended_procedure"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err == nil {
		if parsed.RootCause != "" || parsed.RecommendedProcedure != "" {
			return parsed.RootCause, parsed.RecommendedProcedure
		}
	}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, "root_cause:"); ok {
			rootCause = strings.TrimSpace(v)
		} else if v, ok := strings.CutPrefix(line, "recommended_procedure:"); ok {
			procedure = strings.TrimSpace(v)
		}
	}
	return rootCause, procedure
}
