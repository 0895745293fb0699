package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/strandsops/strands/pkg/llm"
	"github.com/strandsops/strands/pkg/policy"
	"github.com/strandsops/strands/pkg/swarm"
)

// HypothesisAgentID is the agent identifier the coordinator uses for
// LLM-based enrichment.
const HypothesisAgentID = "hypothesis"

// HypothesisAgent asks an LLM for a root cause and a recommended procedure
// given the alert and the evidence collected so far. Its output is a single
// HYPOTHESIS evidence item carrying the model's JSON verdict.
type HypothesisAgent struct {
	client llm.Client
}

func NewHypothesisAgent(client llm.Client) *HypothesisAgent {
	if client == nil {
		client = llm.NewSimulated()
	}
	return &HypothesisAgent{client: client}
}

func (h *HypothesisAgent) ID() string      { return HypothesisAgentID }
func (h *HypothesisAgent) Version() string { return "1" }
func (h *HypothesisAgent) LogicHash() string {
	return policy.HashLogic("hypothesis:root-cause-json:v1")
}

func (h *HypothesisAgent) Execute(ctx context.Context, params map[string]any, stepID string) swarm.AgentExecution {
	exec := newExecution(h, stepID, params)

	prompt := buildHypothesisPrompt(params)
	completion, err := h.client.Complete(ctx, prompt, llm.DefaultOptions())
	exec.FinishedAt = time.Now().UTC()
	if err != nil {
		exec.Error = swarm.NewExecError(swarm.ErrNetwork, "llm completion: %v", err)
		return exec
	}

	content, conf := normalizeHypothesis(completion)
	exec.OutputEvidence = []swarm.Evidence{{
		EvidenceID:        uuid.NewString(),
		SourceExecutionID: exec.ExecutionID,
		AgentID:           h.ID(),
		Content:           content,
		Confidence:        conf,
		Type:              swarm.EvidenceHypothesis,
	}}
	return exec
}

func buildHypothesisPrompt(params map[string]any) string {
	var b strings.Builder
	b.WriteString("You are an SRE incident analyst. Given the alert and the evidence below, ")
	b.WriteString("return a JSON object with keys root_cause, recommended_procedure and confidence (0..1).\n\n")
	if v, ok := params["alert"].(string); ok {
		fmt.Fprintf(&b, "Alert:\n%s\n\n", v)
	}
	if v, ok := params["evidence"].(string); ok {
		fmt.Fprintf(&b, "Evidence:\n%s\n\n", v)
	}
	if v, ok := params["all_mandatory_succeeded"].(bool); ok && !v {
		b.WriteString("Note: one or more mandatory investigation steps failed; reason about the gaps.\n")
	}
	return b.String()
}

// normalizeHypothesis extracts the JSON object from a possibly chatty
// completion. The returned content is always valid JSON so downstream
// consolidation can parse root_cause and recommended_procedure from it.
func normalizeHypothesis(completion string) (string, float64) {
	start := strings.Index(completion, "{")
	end := strings.LastIndex(completion, "}")
	if start < 0 || end <= start {
		wrapped, _ := json.Marshal(map[string]any{"root_cause": strings.TrimSpace(completion)})
		return string(wrapped), 0.5
	}

	raw := completion[start : end+1]
	var parsed struct {
		Confidence float64 `json:"confidence"`
	}
	conf := 0.7
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		wrapped, _ := json.Marshal(map[string]any{"root_cause": strings.TrimSpace(completion)})
		return string(wrapped), 0.5
	}
	if parsed.Confidence > 0 && parsed.Confidence <= 1 {
		conf = parsed.Confidence
	}
	return raw, conf
}
