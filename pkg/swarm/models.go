// Package swarm runs plans of investigative agents in parallel with
// audited retries, consolidates their evidence into a proposal, and tracks
// every run for replay.
package swarm

import (
	"time"

	"github.com/strandsops/strands/pkg/decision"
)

// EvidenceType classifies what an agent produced.
type EvidenceType string

const (
	EvidenceMetric     EvidenceType = "METRIC"
	EvidenceLog        EvidenceType = "LOG"
	EvidenceTrace      EvidenceType = "TRACE"
	EvidenceHypothesis EvidenceType = "HYPOTHESIS"
	EvidenceDocument   EvidenceType = "DOCUMENT"
	EvidenceRawData    EvidenceType = "RAW_DATA"
)

// Evidence is a single finding emitted by an agent execution.
type Evidence struct {
	EvidenceID        string       `json:"evidence_id"`
	SourceExecutionID string       `json:"source_execution_id"`
	AgentID           string       `json:"agent_id"`
	Content           string       `json:"content"`
	Confidence        float64      `json:"confidence"`
	Type              EvidenceType `json:"type"`
}

// AgentExecution is one attempt of one step. IsSuccessful is defined by the
// absence of an error.
type AgentExecution struct {
	ExecutionID     string         `json:"execution_id"`
	AgentID         string         `json:"agent_id"`
	AgentVersion    string         `json:"agent_version"`
	LogicHash       string         `json:"logic_hash"`
	StepID          string         `json:"step_id"`
	InputParameters map[string]any `json:"input_parameters,omitempty"`
	OutputEvidence  []Evidence     `json:"output_evidence,omitempty"`
	Error           *ExecError     `json:"error,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
}

// IsSuccessful reports whether the execution completed without error.
func (e AgentExecution) IsSuccessful() bool { return e.Error == nil }

// SwarmStep is one planned agent invocation.
type SwarmStep struct {
	StepID        string         `json:"step_id"`
	AgentID       string         `json:"agent_id"`
	Mandatory     bool           `json:"mandatory"`
	MinConfidence float64        `json:"min_confidence"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	RetryPolicy   string         `json:"retry_policy,omitempty"`
}

// SwarmPlan is an ordered set of steps pursuing one objective.
type SwarmPlan struct {
	PlanID    string      `json:"plan_id"`
	Objective string      `json:"objective"`
	Steps     []SwarmStep `json:"steps"`
}

// RetryAttempt records one scheduled re-execution of a failed step.
// AttemptNumber counts retries per step, starting at 1, without gaps.
type RetryAttempt struct {
	AttemptID         string  `json:"attempt_id"`
	StepID            string  `json:"step_id"`
	AttemptNumber     int     `json:"attempt_number"`
	DelaySeconds      float64 `json:"delay_seconds"`
	Reason            string  `json:"reason"`
	FailedExecutionID string  `json:"failed_execution_id"`
}

// RetryDecision is the audited record of why a retry was granted.
type RetryDecision struct {
	DecisionID      string `json:"decision_id"`
	StepID          string `json:"step_id"`
	AttemptID       string `json:"attempt_id"`
	Reason          string `json:"reason"`
	PolicyName      string `json:"policy_name"`
	PolicyVersion   string `json:"policy_version"`
	PolicyLogicHash string `json:"policy_logic_hash"`
}

// Proposed actions on a consolidated run decision.
const (
	ActionAutoRemediate       = "auto_remediate"
	ActionHumanReviewRequired = "human_review_required"
	ActionManualReview        = "manual_review"
)

// RunDecision is the consolidated outcome of a swarm run.
type RunDecision struct {
	DecisionID           string                  `json:"decision_id"`
	ActionProposed       string                  `json:"action_proposed"`
	Confidence           float64                 `json:"confidence"`
	RootCause            string                  `json:"root_cause,omitempty"`
	RecommendedProcedure string                  `json:"recommended_procedure,omitempty"`
	SupportingEvidence   []string                `json:"supporting_evidence,omitempty"`
	Metadata             map[string]any          `json:"metadata,omitempty"`
	HumanDecision        *decision.HumanDecision `json:"human_decision,omitempty"`
	CreatedAt            time.Time               `json:"created_at"`
}

// RunState is the lifecycle state of a swarm run. Terminal states are
// immutable.
type RunState string

const (
	RunCreated          RunState = "CREATED"
	RunRunning          RunState = "RUNNING"
	RunFinished         RunState = "FINISHED"
	RunAbortedByLimit   RunState = "ABORTED_BY_LIMIT"
	RunDuplicateSkipped RunState = "DUPLICATE_SKIPPED"
)

// SwarmRun owns everything produced while executing one plan for one alert.
type SwarmRun struct {
	RunID          string           `json:"run_id"`
	Domain         string           `json:"domain"`
	State          RunState         `json:"state"`
	Plan           SwarmPlan        `json:"plan"`
	MasterSeed     int64            `json:"master_seed"`
	Executions     []AgentExecution `json:"executions"`
	RetryAttempts  []RetryAttempt   `json:"retry_attempts,omitempty"`
	RetryDecisions []RetryDecision  `json:"retry_decisions,omitempty"`
	FinalDecision  *RunDecision     `json:"final_decision,omitempty"`
	Limits         RunLimits        `json:"limits"`
	Metadata       RunMetadata      `json:"metadata"`
	StartedAt      time.Time        `json:"started_at"`
	FinishedAt     time.Time        `json:"finished_at"`
}

// RunLimits records the coordinator bounds the run executed under, so a
// replay enforces the same budget the original run did.
type RunLimits struct {
	MaxRetryRounds    int `json:"max_retry_rounds"`
	MaxTotalAttempts  int `json:"max_total_attempts"`
	MaxRuntimeSeconds int `json:"max_runtime_seconds"`
}

// RunMetadata captures the loop accounting needed by audits and replay.
type RunMetadata struct {
	TotalRounds    int  `json:"total_rounds"`
	TotalAttempts  int  `json:"total_attempts"`
	AbortedByLimit bool `json:"aborted_by_limit"`
	Fatal          bool `json:"fatal,omitempty"`
	Deduplicated   bool `json:"deduplicated,omitempty"`
	LLMFallback    bool `json:"llm_fallback,omitempty"`
}

// Evidence of all successful executions, in execution order.
func CollectEvidence(executions []AgentExecution) []Evidence {
	var out []Evidence
	for _, exec := range executions {
		if exec.IsSuccessful() {
			out = append(out, exec.OutputEvidence...)
		}
	}
	return out
}

// LatestExecutionByStep maps each step id to its most recent execution.
// Input order is authoritative: later entries win.
func LatestExecutionByStep(executions []AgentExecution) map[string]AgentExecution {
	latest := make(map[string]AgentExecution)
	for _, exec := range executions {
		latest[exec.StepID] = exec
	}
	return latest
}
