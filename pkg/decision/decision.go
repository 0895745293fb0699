// Package decision turns a correlated cluster and its trends into an
// actionable verdict through ordered rules with a bounded semantic and
// LLM fallback.
package decision

import "time"

// State is the action a decision proposes.
type State string

const (
	StateClose        State = "CLOSE"
	StateObserve      State = "OBSERVE"
	StateEscalate     State = "ESCALATE"
	StateManualReview State = "MANUAL_REVIEW"
)

// ValidState reports whether s is a member of the decision state set.
func ValidState(s State) bool {
	switch s {
	case StateClose, StateObserve, StateEscalate, StateManualReview:
		return true
	}
	return false
}

// SemanticEvidence is a similar past decision retrieved for context.
type SemanticEvidence struct {
	SourceDecisionID string  `json:"source_decision_id"`
	SimilarityScore  float64 `json:"similarity_score"`
	Summary          string  `json:"summary"`
}

// HumanAction is the disposition a reviewer applied to a decision.
type HumanAction string

const (
	HumanAccept   HumanAction = "ACCEPT"
	HumanReject   HumanAction = "REJECT"
	HumanOverride HumanAction = "OVERRIDE"
)

// HumanDecision records a reviewer's disposition.
type HumanDecision struct {
	Action                   HumanAction `json:"action"`
	Author                   string      `json:"author"`
	OverrideReason           string      `json:"override_reason,omitempty"`
	OverriddenActionProposed string      `json:"overridden_action_proposed,omitempty"`
	Timestamp                time.Time   `json:"timestamp"`
}

// LLM involvement markers recorded on a decision.
const (
	ReasonSemanticRecovery     = "semantic_recovery"
	ReasonLLMFallback          = "llm_fallback"
	ReasonLLMFallbackSimulated = "llm_fallback_simulated"
)

// Decision is the final verdict for a cluster, with full audit rationale.
type Decision struct {
	DecisionID         string             `json:"decision_id"`
	State              State              `json:"state"`
	Confidence         float64            `json:"confidence"`
	Justification      string             `json:"justification"`
	RulesApplied       []string           `json:"rules_applied"`
	SemanticEvidence   []SemanticEvidence `json:"semantic_evidence,omitempty"`
	LLMContribution    bool               `json:"llm_contribution"`
	LLMReason          string             `json:"llm_reason,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	HumanDecision      *HumanDecision     `json:"human_decision,omitempty"`
	SupportingEvidence []string           `json:"supporting_evidence,omitempty"`
}
