package swarm

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AgentResolver resolves agent ids to implementations. The live registry
// implements it; replay substitutes a resolver that serves historical
// executions.
type AgentResolver interface {
	Get(id string) (Agent, error)
}

// Orchestrator fans a round of steps out to their agents concurrently.
// Retry scheduling between rounds belongs to the RetryController; the
// orchestrator only executes and enforces the per-step deadline.
type Orchestrator struct {
	resolver     AgentResolver
	stepDeadline time.Duration
	logger       *slog.Logger
}

// NewOrchestrator creates an orchestrator with the given per-step deadline.
func NewOrchestrator(resolver AgentResolver, stepDeadline time.Duration, logger *slog.Logger) *Orchestrator {
	if stepDeadline <= 0 {
		stepDeadline = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{resolver: resolver, stepDeadline: stepDeadline, logger: logger}
}

// ExecuteRound runs every step once, in parallel. It returns one execution
// per step, in plan order. A step whose agent is missing or whose deadline
// expires yields a failed execution rather than an error; the retry layer
// decides what happens next.
func (o *Orchestrator) ExecuteRound(ctx context.Context, steps []SwarmStep) []AgentExecution {
	results := make([]AgentExecution, len(steps))
	var wg sync.WaitGroup
	for i, step := range steps {
		wg.Add(1)
		go func(i int, step SwarmStep) {
			defer wg.Done()
			results[i] = o.executeStep(ctx, step)
		}(i, step)
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) executeStep(ctx context.Context, step SwarmStep) AgentExecution {
	started := time.Now().UTC()
	agent, err := o.resolver.Get(step.AgentID)
	if err != nil {
		o.logger.Error("step references unknown agent", "step_id", step.StepID, "agent_id", step.AgentID)
		return AgentExecution{
			ExecutionID: uuid.NewString(),
			AgentID:     step.AgentID,
			StepID:      step.StepID,
			Error:       NewExecError(ErrValidation, "agent %q not registered", step.AgentID),
			StartedAt:   started,
			FinishedAt:  time.Now().UTC(),
		}
	}

	stepCtx, cancel := context.WithTimeout(ctx, o.stepDeadline)
	defer cancel()

	// Agents have no shared mutable state between steps; parameters are
	// copied so an agent mutating its input cannot leak into the plan.
	params := copyParameters(step.Parameters)

	done := make(chan AgentExecution, 1)
	go func() {
		done <- agent.Execute(stepCtx, params, step.StepID)
	}()

	select {
	case exec := <-done:
		if exec.ExecutionID == "" {
			exec.ExecutionID = uuid.NewString()
		}
		return exec
	case <-stepCtx.Done():
		o.logger.Warn("step deadline exceeded", "step_id", step.StepID, "agent_id", step.AgentID)
		return AgentExecution{
			ExecutionID:     uuid.NewString(),
			AgentID:         agent.ID(),
			AgentVersion:    agent.Version(),
			LogicHash:       agent.LogicHash(),
			StepID:          step.StepID,
			InputParameters: params,
			Error:           NewExecError(ErrTimeout, "deadline %s exceeded", o.stepDeadline),
			StartedAt:       started,
			FinishedAt:      time.Now().UTC(),
		}
	}
}

func copyParameters(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyParameters(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
