package swarm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/strandsops/strands/pkg/policy"
)

func successfulExecution(agentID string, evidence ...Evidence) AgentExecution {
	for i := range evidence {
		evidence[i].AgentID = agentID
		if evidence[i].EvidenceID == "" {
			evidence[i].EvidenceID = "ev-" + agentID
		}
	}
	return AgentExecution{
		ExecutionID:    "exec-" + agentID,
		AgentID:        agentID,
		StepID:         "s-" + agentID,
		OutputEvidence: evidence,
	}
}

func TestConsolidateNoEvidence(t *testing.T) {
	c := NewDecisionController(nil, nil, nil)

	failed := AgentExecution{ExecutionID: "e1", AgentID: "a1", StepID: "s1",
		Error: NewExecError(ErrNetwork, "down")}
	d := c.Consolidate(context.Background(), []AgentExecution{failed})

	assert.Equal(t, ActionManualReview, d.ActionProposed)
	assert.Zero(t, d.Confidence)
	assert.Equal(t, 0, d.Metadata["evidence_count"])
}

func TestConsolidateHighConfidenceAutoRemediates(t *testing.T) {
	c := NewDecisionController(nil, nil, nil)
	execs := []AgentExecution{
		successfulExecution("a1", Evidence{Confidence: 0.9, Type: EvidenceLog}),
		successfulExecution("a2", Evidence{Confidence: 0.85, Type: EvidenceMetric}),
	}

	d := c.Consolidate(context.Background(), execs)

	assert.Equal(t, ActionAutoRemediate, d.ActionProposed)
	assert.InDelta(t, 0.875, d.Confidence, 0.0001)
	assert.Len(t, d.SupportingEvidence, 2)
}

func TestConsolidateModestConfidenceRequiresHuman(t *testing.T) {
	c := NewDecisionController(nil, nil, nil)
	execs := []AgentExecution{
		successfulExecution("a1", Evidence{Confidence: 0.6, Type: EvidenceLog}),
	}

	d := c.Consolidate(context.Background(), execs)

	assert.Equal(t, ActionHumanReviewRequired, d.ActionProposed)
}

func TestConsolidateHypothesisWins(t *testing.T) {
	c := NewDecisionController(nil, nil, nil)
	execs := []AgentExecution{
		successfulExecution("a1", Evidence{Confidence: 0.95, Type: EvidenceMetric}),
		successfulExecution("llm", Evidence{
			Confidence: 0.6,
			Type:       EvidenceHypothesis,
			Content:    "root_cause: disk pressure\nrecommended_procedure: expand the volume",
		}),
	}

	d := c.Consolidate(context.Background(), execs)

	assert.Equal(t, ActionHumanReviewRequired, d.ActionProposed)
	assert.Equal(t, true, d.Metadata["llm_enriched"])
	assert.Equal(t, "disk pressure", d.RootCause)
	assert.Equal(t, "expand the volume", d.RecommendedProcedure)
}

func TestRetryControllerSkipsNonRetryableKinds(t *testing.T) {
	reg := policy.NewRegistry()
	reg.Register(policy.NewExponentialBackoff(1, 10, 5))
	c := NewRetryController(reg, nil)
	conf := newFakeConfidence()

	plan := SwarmPlan{Steps: []SwarmStep{
		{StepID: "s1", AgentID: "a1", Mandatory: true, RetryPolicy: "exponential_backoff"},
	}}
	execs := []AgentExecution{{
		ExecutionID: "e1", AgentID: "a1", StepID: "s1",
		Error: NewExecError(ErrValidation, "bad input"),
	}}

	out := c.Reevaluate(context.Background(), plan, execs, nil, map[string]bool{}, 1, conf)

	assert.Empty(t, out.StepsToRetry)
	assert.Empty(t, out.Attempts)
}

func TestRetryControllerSkipsOptionalSteps(t *testing.T) {
	reg := policy.NewRegistry()
	reg.Register(policy.NewExponentialBackoff(1, 10, 5))
	c := NewRetryController(reg, nil)
	conf := newFakeConfidence()

	plan := SwarmPlan{Steps: []SwarmStep{
		{StepID: "s1", AgentID: "a1", Mandatory: false, RetryPolicy: "exponential_backoff"},
	}}
	execs := []AgentExecution{{
		ExecutionID: "e1", AgentID: "a1", StepID: "s1",
		Error: NewExecError(ErrNetwork, "down"),
	}}

	out := c.Reevaluate(context.Background(), plan, execs, nil, map[string]bool{}, 1, conf)

	assert.Empty(t, out.StepsToRetry)
}

func TestRetryControllerReportsNewlySuccessful(t *testing.T) {
	c := NewRetryController(policy.NewRegistry(), nil)
	conf := newFakeConfidence()

	plan := SwarmPlan{Steps: []SwarmStep{
		{StepID: "s1", AgentID: "a1"},
		{StepID: "s2", AgentID: "a2"},
	}}
	execs := []AgentExecution{
		{ExecutionID: "e1", AgentID: "a1", StepID: "s1"},
		{ExecutionID: "e2", AgentID: "a2", StepID: "s2"},
	}

	out := c.Reevaluate(context.Background(), plan, execs, nil, map[string]bool{"s2": true}, 1, conf)

	assert.Equal(t, []string{"s1"}, out.NewlySuccessful)
}
