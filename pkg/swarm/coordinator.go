package swarm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/strandsops/strands/pkg/alert"
	"github.com/strandsops/strands/pkg/decision"
	"github.com/strandsops/strands/pkg/dedup"
	"github.com/strandsops/strands/pkg/metrics"
)

// ErrSourceBusy is returned when another run already holds the lock for the
// same alert source.
var ErrSourceBusy = errors.New("swarm: a run for this source is already in flight")

// ConfidenceService is the slice of the confidence service the coordinator
// and retry controller depend on.
type ConfidenceService interface {
	ConfidenceReader
	ApplyTimeDecay(ctx context.Context, agentID string, rate float64) error
}

// Deduper arbitrates duplicate alerts across instances. AcquireLock returns
// a holder token, or "" when another holder has the lock; ReleaseLock only
// drops the lock while the token still owns it.
type Deduper interface {
	CheckDuplicate(ctx context.Context, sourceID, eventData, severity, source string) (dedup.Result, error)
	AcquireLock(ctx context.Context, name string) (string, error)
	ReleaseLock(ctx context.Context, name, token string) error
	RegisterExecution(ctx context.Context, sourceID, executionID, eventData, severity, source string) error
}

// RunStore is the ledger slice runs are persisted through.
type RunStore interface {
	SaveSwarmRun(ctx context.Context, run *SwarmRun, a *alert.NormalizedAlert) error
	SaveHumanOverride(ctx context.Context, d *RunDecision, h *decision.HumanDecision, outcome string) error
}

// CoordinatorConfig bounds a run.
type CoordinatorConfig struct {
	MaxRetryRounds       int
	MaxTotalAttempts     int
	MaxRuntime           time.Duration
	UseLLMFallback       bool
	LLMFallbackThreshold float64
	LLMAgentID           string
	ConfidenceDecayRate  float64
}

// DefaultCoordinatorConfig returns the standard limits.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		MaxRetryRounds:       10,
		MaxTotalAttempts:     50,
		MaxRuntime:           3000 * time.Second,
		UseLLMFallback:       true,
		LLMFallbackThreshold: 0.5,
		ConfidenceDecayRate:  0.001,
	}
}

// ExecuteOptions carry per-call overrides.
type ExecuteOptions struct {
	// RunID, when empty, is generated.
	RunID string
	// MasterSeed, when nil, is drawn randomly. Replay supplies the
	// recorded seed.
	MasterSeed *int64
}

// Coordinator owns one run at a time from dedup check to persistence.
type Coordinator struct {
	orchestrator *Orchestrator
	retries      *RetryController
	decisions    *DecisionController
	confidence   ConfidenceService
	deduper      Deduper
	store        RunStore
	cfg          CoordinatorConfig
	logger       *slog.Logger
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewCoordinator wires a coordinator.
func NewCoordinator(orchestrator *Orchestrator, retries *RetryController, decisions *DecisionController,
	confidence ConfidenceService, deduper Deduper, store RunStore, cfg CoordinatorConfig, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		orchestrator: orchestrator,
		retries:      retries,
		decisions:    decisions,
		confidence:   confidence,
		deduper:      deduper,
		store:        store,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Execute runs the plan for one alert and persists the result. The returned
// run is terminal: FINISHED, ABORTED_BY_LIMIT, or DUPLICATE_SKIPPED.
func (c *Coordinator) Execute(ctx context.Context, domain string, plan SwarmPlan, a *alert.NormalizedAlert, opts ExecuteOptions) (*SwarmRun, error) {
	sourceID := a.Fingerprint
	lockName := "swarm_run:" + sourceID
	lockToken, err := c.deduper.AcquireLock(ctx, lockName)
	if err != nil {
		return nil, fmt.Errorf("acquiring run lock: %w", err)
	}
	if lockToken == "" {
		return nil, ErrSourceBusy
	}
	defer func() {
		if err := c.deduper.ReleaseLock(context.WithoutCancel(ctx), lockName, lockToken); err != nil {
			c.logger.Warn("releasing run lock failed", "lock", lockName, "error", err)
		}
	}()

	res, err := c.deduper.CheckDuplicate(ctx, sourceID, a.Service, a.Severity, a.Source)
	if err != nil {
		return nil, fmt.Errorf("dedup check: %w", err)
	}
	if res.Action != dedup.ActionNew {
		metrics.DedupSkipped.Inc()
		c.logger.Info("duplicate alert, skipping run",
			"source_id", sourceID, "existing_run_id", res.ExistingRunID)
		return &SwarmRun{
			RunID:    res.ExistingRunID,
			Domain:   domain,
			State:    RunDuplicateSkipped,
			Plan:     plan,
			Metadata: RunMetadata{Deduplicated: true},
		}, nil
	}

	masterSeed := int64(0)
	if opts.MasterSeed != nil {
		masterSeed = *opts.MasterSeed
	} else {
		masterSeed = rand.Int63()
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	run := &SwarmRun{
		RunID:      runID,
		Domain:     domain,
		State:      RunRunning,
		Plan:       plan,
		MasterSeed: masterSeed,
		Limits: RunLimits{
			MaxRetryRounds:    c.cfg.MaxRetryRounds,
			MaxTotalAttempts:  c.cfg.MaxTotalAttempts,
			MaxRuntimeSeconds: int(c.cfg.MaxRuntime / time.Second),
		},
		StartedAt: c.now().UTC(),
	}
	c.logger.Info("swarm run started",
		"run_id", runID, "domain", domain, "steps", len(plan.Steps), "master_seed", masterSeed)

	c.decayAgents(ctx, plan)
	successful := c.runRounds(ctx, run)
	c.llmFallback(ctx, run, a, successful)

	final := c.decisions.Consolidate(ctx, run.Executions)
	run.FinalDecision = &final

	if run.Metadata.AbortedByLimit {
		run.State = RunAbortedByLimit
	} else {
		run.State = RunFinished
	}
	run.FinishedAt = c.now().UTC()

	if err := c.persist(ctx, run, a); err != nil {
		return run, err
	}

	if err := c.deduper.RegisterExecution(ctx, sourceID, runID, a.Service, a.Severity, a.Source); err != nil {
		c.logger.Warn("registering run for dedup failed", "run_id", runID, "error", err)
	}

	metrics.SwarmRunsTotal.WithLabelValues(string(run.State)).Inc()
	metrics.SwarmRunDuration.Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
	c.logger.Info("swarm run finished",
		"run_id", runID, "state", run.State,
		"rounds", run.Metadata.TotalRounds, "attempts", run.Metadata.TotalAttempts,
		"action", final.ActionProposed, "confidence", final.Confidence)
	return run, nil
}

// decayAgents applies time decay once per distinct agent in the plan so
// stale credibility does not carry full weight into this run.
func (c *Coordinator) decayAgents(ctx context.Context, plan SwarmPlan) {
	seen := make(map[string]bool)
	for _, step := range plan.Steps {
		if seen[step.AgentID] {
			continue
		}
		seen[step.AgentID] = true
		if err := c.confidence.ApplyTimeDecay(ctx, step.AgentID, c.cfg.ConfidenceDecayRate); err != nil {
			c.logger.Warn("time decay failed", "agent_id", step.AgentID, "error", err)
		}
	}
}

func (c *Coordinator) runRounds(ctx context.Context, run *SwarmRun) map[string]bool {
	runCtx, cancel := context.WithTimeout(ctx, c.cfg.MaxRuntime)
	defer cancel()
	rng := rand.New(rand.NewSource(run.MasterSeed))

	successful := make(map[string]bool)
	stepsToProcess := run.Plan.Steps
	rounds, attempts := 0, 0

	for len(stepsToProcess) > 0 {
		rounds++
		execs := c.orchestrator.ExecuteRound(runCtx, stepsToProcess)
		run.Executions = append(run.Executions, execs...)
		attempts += len(execs)
		for _, exec := range execs {
			outcome := "success"
			if !exec.IsSuccessful() {
				outcome = "failure"
			}
			metrics.AgentExecutions.WithLabelValues(exec.AgentID, outcome).Inc()
		}

		plan := c.retries.Reevaluate(runCtx, run.Plan, run.Executions, run.RetryAttempts, successful, run.MasterSeed, c.confidence)
		run.RetryAttempts = append(run.RetryAttempts, plan.Attempts...)
		run.RetryDecisions = append(run.RetryDecisions, plan.Decisions...)
		for _, a := range plan.Attempts {
			metrics.RetryAttempts.WithLabelValues(a.StepID).Inc()
		}
		for _, id := range plan.NewlySuccessful {
			successful[id] = true
		}

		stepsToProcess = plan.StepsToRetry
		if len(stepsToProcess) == 0 {
			break
		}
		if rounds >= c.cfg.MaxRetryRounds || attempts >= c.cfg.MaxTotalAttempts {
			run.Metadata.AbortedByLimit = true
			c.logger.Warn("run hit retry bounds", "run_id", run.RunID, "rounds", rounds, "attempts", attempts)
			break
		}

		delay := time.Duration(float64(plan.MaxDelay) * (1 + 0.1*(2*rng.Float64()-1)))
		if err := c.sleep(runCtx, delay); err != nil {
			run.Metadata.AbortedByLimit = true
			c.logger.Warn("run exceeded runtime budget", "run_id", run.RunID)
			break
		}
	}

	run.Metadata.TotalRounds = rounds
	run.Metadata.TotalAttempts = attempts
	return successful
}

// llmFallback invokes the configured LLM agent when mandatory coverage or
// evidence confidence is lacking. It runs on the parent context with the
// step deadline only, so an exhausted run budget cannot starve it.
func (c *Coordinator) llmFallback(ctx context.Context, run *SwarmRun, a *alert.NormalizedAlert, successful map[string]bool) {
	if !c.cfg.UseLLMFallback || c.cfg.LLMAgentID == "" {
		return
	}

	allMandatoryOK := true
	for _, step := range run.Plan.Steps {
		if step.Mandatory && !successful[step.StepID] {
			allMandatoryOK = false
			break
		}
	}
	evidence := CollectEvidence(run.Executions)
	mean := 0.0
	for _, ev := range evidence {
		mean += ev.Confidence
	}
	if len(evidence) > 0 {
		mean /= float64(len(evidence))
	}
	if allMandatoryOK && mean > c.cfg.LLMFallbackThreshold {
		return
	}

	reason := "low_confidence"
	if !allMandatoryOK {
		reason = "mandatory_failed"
	}
	metrics.LLMFallbacks.WithLabelValues(reason).Inc()
	c.logger.Info("llm fallback triggered",
		"run_id", run.RunID, "reason", reason, "mean_confidence", mean)

	alertJSON, _ := json.Marshal(a)
	evidenceJSON, _ := json.Marshal(evidence)
	step := SwarmStep{
		StepID:  "llm-fallback",
		AgentID: c.cfg.LLMAgentID,
		Parameters: map[string]any{
			"run_id":                   run.RunID,
			"alert":                    string(alertJSON),
			"evidence":                 string(evidenceJSON),
			"all_mandatory_succeeded":  allMandatoryOK,
			"mean_evidence_confidence": mean,
		},
	}
	execs := c.orchestrator.ExecuteRound(ctx, []SwarmStep{step})
	run.Executions = append(run.Executions, execs...)
	run.Metadata.LLMFallback = true
}

func (c *Coordinator) persist(ctx context.Context, run *SwarmRun, a *alert.NormalizedAlert) error {
	if err := c.store.SaveSwarmRun(ctx, run, a); err != nil {
		metrics.LedgerWrites.WithLabelValues("swarm_run", "error").Inc()
		return fmt.Errorf("persisting run %s: %w", run.RunID, err)
	}
	metrics.LedgerWrites.WithLabelValues("swarm_run", "ok").Inc()

	final := run.FinalDecision
	if final != nil && final.HumanDecision != nil && final.HumanDecision.Action == decision.HumanOverride {
		if err := c.store.SaveHumanOverride(ctx, final, final.HumanDecision, "overridden"); err != nil {
			metrics.LedgerWrites.WithLabelValues("human_override", "error").Inc()
			return fmt.Errorf("persisting override for %s: %w", final.DecisionID, err)
		}
		metrics.LedgerWrites.WithLabelValues("human_override", "ok").Inc()
	}
	return nil
}
