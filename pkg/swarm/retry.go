package swarm

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/strandsops/strands/pkg/policy"
)

// ConfidenceReader exposes the slice of the confidence service retry
// decisions consult.
type ConfidenceReader interface {
	LastConfidence(ctx context.Context, agentID string) float64
}

// RetryPlan is the controller's verdict for one round boundary.
type RetryPlan struct {
	StepsToRetry    []SwarmStep
	Attempts        []RetryAttempt
	Decisions       []RetryDecision
	MaxDelay        time.Duration
	NewlySuccessful []string
}

// RetryController reevaluates the run between rounds: which failed
// mandatory steps get another attempt, and with what delay. Given the same
// history and master seed it always produces the same plan.
type RetryController struct {
	policies *policy.Registry
	logger   *slog.Logger
}

// NewRetryController creates the controller over a policy registry.
func NewRetryController(policies *policy.Registry, logger *slog.Logger) *RetryController {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryController{policies: policies, logger: logger}
}

// Reevaluate inspects the full execution history and prior attempts and
// emits the next round. Every granted retry is recorded as an attempt plus
// an audited decision naming the policy that granted it.
func (c *RetryController) Reevaluate(ctx context.Context, plan SwarmPlan, executions []AgentExecution,
	priorAttempts []RetryAttempt, successful map[string]bool, masterSeed int64, conf ConfidenceReader) RetryPlan {

	latest := LatestExecutionByStep(executions)

	var out RetryPlan
	for stepID, exec := range latest {
		if exec.IsSuccessful() && !successful[stepID] {
			out.NewlySuccessful = append(out.NewlySuccessful, stepID)
		}
	}
	sort.Strings(out.NewlySuccessful)

	priorCount := make(map[string]int)
	for _, a := range priorAttempts {
		priorCount[a.StepID]++
	}

	for _, step := range plan.Steps {
		if successful[step.StepID] {
			continue
		}
		exec, ok := latest[step.StepID]
		if !ok || exec.IsSuccessful() {
			continue
		}
		if !step.Mandatory || step.RetryPolicy == "" {
			continue
		}
		if exec.Error != nil && !exec.Error.IsRetryable() {
			c.logger.Info("failure is not retryable", "step_id", step.StepID, "kind", exec.Error.Kind)
			continue
		}
		pol, err := c.resolvePolicy(step.RetryPolicy)
		if err != nil {
			c.logger.Error("cannot resolve retry policy", "step_id", step.StepID, "policy", step.RetryPolicy, "error", err)
			continue
		}

		attempt := priorCount[step.StepID] + 1
		rctx := policy.RetryContext{
			AttemptNumber:  attempt,
			Err:            exec.Error.Error(),
			Seed:           masterSeed + int64(attempt),
			LastConfidence: conf.LastConfidence(ctx, step.AgentID),
		}
		if !pol.ShouldRetry(rctx) {
			c.logger.Info("retry budget exhausted", "step_id", step.StepID, "attempt", attempt)
			continue
		}

		delay := pol.NextDelay(rctx)
		attemptID := uuid.NewString()
		out.Attempts = append(out.Attempts, RetryAttempt{
			AttemptID:         attemptID,
			StepID:            step.StepID,
			AttemptNumber:     attempt,
			DelaySeconds:      delay.Seconds(),
			Reason:            exec.Error.Error(),
			FailedExecutionID: exec.ExecutionID,
		})
		out.Decisions = append(out.Decisions, RetryDecision{
			DecisionID:      uuid.NewString(),
			StepID:          step.StepID,
			AttemptID:       attemptID,
			Reason:          exec.Error.Error(),
			PolicyName:      pol.Name(),
			PolicyVersion:   pol.Version(),
			PolicyLogicHash: pol.LogicHash(),
		})
		out.StepsToRetry = append(out.StepsToRetry, step)
		if delay > out.MaxDelay {
			out.MaxDelay = delay
		}
	}
	return out
}

// resolvePolicy parses "name" or "name@version"; the version defaults to 1.
func (c *RetryController) resolvePolicy(ref string) (policy.RetryPolicy, error) {
	name, version := ref, "1"
	if i := strings.IndexByte(ref, '@'); i >= 0 {
		name, version = ref[:i], ref[i+1:]
	}
	return c.policies.Resolve(name, version)
}
