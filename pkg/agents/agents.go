// Package agents provides the built-in investigative agents that swarm
// plans can reference by ID.
package agents

import (
	"time"

	"github.com/google/uuid"

	"github.com/strandsops/strands/pkg/llm"
	"github.com/strandsops/strands/pkg/swarm"
	"github.com/strandsops/strands/pkg/trend"
)

// RegisterBuiltins registers every built-in agent on the registry. The LLM
// client backs the hypothesis agent; pass nil to use the simulated client.
func RegisterBuiltins(registry *swarm.Registry, client llm.Client, analyzer *trend.Analyzer) {
	registry.Register(NewMetricsAgent(analyzer))
	registry.Register(NewLogAnalysisAgent())
	registry.Register(NewNetworkScannerAgent(nil))
	registry.Register(NewHypothesisAgent(client))
}

// newExecution seeds an AgentExecution with identity and provenance fields
// common to every built-in agent.
func newExecution(a swarm.Agent, stepID string, params map[string]any) swarm.AgentExecution {
	return swarm.AgentExecution{
		ExecutionID:     uuid.NewString(),
		AgentID:         a.ID(),
		AgentVersion:    a.Version(),
		LogicHash:       a.LogicHash(),
		StepID:          stepID,
		InputParameters: params,
		StartedAt:       time.Now().UTC(),
		FinishedAt:      time.Now().UTC(),
	}
}
