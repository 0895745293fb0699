// Package replay re-executes persisted swarm runs against their recorded
// history and reports causal divergences.
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/strandsops/strands/pkg/alert"
	"github.com/strandsops/strands/pkg/confidence"
	"github.com/strandsops/strands/pkg/decision"
	"github.com/strandsops/strands/pkg/dedup"
	"github.com/strandsops/strands/pkg/ledger"
	"github.com/strandsops/strands/pkg/policy"
	"github.com/strandsops/strands/pkg/swarm"
)

// Report is the outcome of replaying one run.
type Report struct {
	RunID             string          `json:"run_id"`
	CausalDivergences []string        `json:"causal_divergences,omitempty"`
	ConfidenceDelta   float64         `json:"confidence_delta"`
	Replayed          *swarm.SwarmRun `json:"replayed,omitempty"`
}

// Engine replays persisted runs. Agents are never called: a historical
// resolver serves each step's recorded executions in order, while retry
// policies re-evaluate against the recorded seed and errors.
type Engine struct {
	ledger   ledger.Ledger
	policies *policy.Registry
	logger   *slog.Logger
}

// NewEngine creates a replay engine over the audit ledger.
func NewEngine(l ledger.Ledger, policies *policy.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{ledger: l, policies: policies, logger: logger}
}

// Replay loads the run, re-executes it in replay mode, and compares the
// outcome with the recorded one. newPlan, when non-nil, substitutes the
// recorded plan; divergences then describe the what-if difference.
func (e *Engine) Replay(ctx context.Context, runID string, newPlan *swarm.SwarmPlan) (*Report, error) {
	rc, err := e.ledger.FetchFullRunContext(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}

	plan := rc.Run.Plan
	if newPlan != nil {
		plan = *newPlan
	}

	resolver := newHistoricalResolver(rc.Run.Executions)
	frozen := frozenConfidence{values: lastValues(rc.Snapshots)}
	store := &captureStore{}

	cfg := swarm.DefaultCoordinatorConfig()
	// Runs recorded before limits were persisted carry a zero RunLimits;
	// those fall back to the defaults.
	if l := rc.Run.Limits; l.MaxTotalAttempts > 0 {
		cfg.MaxRetryRounds = l.MaxRetryRounds
		cfg.MaxTotalAttempts = l.MaxTotalAttempts
		cfg.MaxRuntime = time.Duration(l.MaxRuntimeSeconds) * time.Second
	}
	cfg.ConfidenceDecayRate = 0 // history is frozen
	cfg.UseLLMFallback = false
	if rc.Run.Metadata.LLMFallback {
		cfg.UseLLMFallback = true
		cfg.LLMAgentID = llmAgentID(rc.Run.Executions)
	}

	coord := swarm.NewCoordinator(
		swarm.NewOrchestrator(resolver, 30*time.Second, e.logger),
		swarm.NewRetryController(e.policies, e.logger),
		swarm.NewDecisionController(nil, nil, e.logger),
		frozen,
		noopDeduper{},
		store,
		cfg,
		e.logger,
	)

	seed := rc.Run.MasterSeed
	replayed, err := coord.Execute(ctx, rc.Run.Domain, plan, &rc.Alert, swarm.ExecuteOptions{
		RunID:      rc.Run.RunID + ":replay",
		MasterSeed: &seed,
	})
	if err != nil {
		return nil, fmt.Errorf("replaying run %s: %w", runID, err)
	}

	report := &Report{RunID: runID, Replayed: replayed}
	report.CausalDivergences = diverge(&rc.Run, replayed)
	if rc.Run.FinalDecision != nil && replayed.FinalDecision != nil {
		report.ConfidenceDelta = replayed.FinalDecision.Confidence - rc.Run.FinalDecision.Confidence
	}
	e.logger.Info("replay finished",
		"run_id", runID, "divergences", len(report.CausalDivergences),
		"confidence_delta", report.ConfidenceDelta)
	return report, nil
}

func diverge(original, replayed *swarm.SwarmRun) []string {
	var out []string
	if len(original.Executions) != len(replayed.Executions) {
		out = append(out, fmt.Sprintf("execution count mismatch: %d recorded, %d replayed",
			len(original.Executions), len(replayed.Executions)))
	}
	if !equalStringSets(evidenceIDs(original.Executions), evidenceIDs(replayed.Executions)) {
		out = append(out, "evidence set mismatch")
	}
	if len(original.RetryAttempts) != len(replayed.RetryAttempts) {
		out = append(out, fmt.Sprintf("retry attempt count mismatch: %d recorded, %d replayed",
			len(original.RetryAttempts), len(replayed.RetryAttempts)))
	}
	origAction, replAction := "", ""
	if original.FinalDecision != nil {
		origAction = original.FinalDecision.ActionProposed
	}
	if replayed.FinalDecision != nil {
		replAction = replayed.FinalDecision.ActionProposed
	}
	if origAction != replAction {
		out = append(out, fmt.Sprintf("final action mismatch: %q recorded, %q replayed", origAction, replAction))
	}
	return out
}

func evidenceIDs(execs []swarm.AgentExecution) []string {
	var ids []string
	for _, ev := range swarm.CollectEvidence(execs) {
		ids = append(ids, ev.EvidenceID)
	}
	sort.Strings(ids)
	return ids
}

func equalStringSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func lastValues(snapshots []confidence.Snapshot) map[string]float64 {
	bySeq := make(map[string]int64)
	values := make(map[string]float64)
	for _, s := range snapshots {
		if s.SequenceID >= bySeq[s.AgentID] {
			bySeq[s.AgentID] = s.SequenceID
			values[s.AgentID] = s.Value
		}
	}
	return values
}

func llmAgentID(execs []swarm.AgentExecution) string {
	for _, exec := range execs {
		if exec.StepID == "llm-fallback" {
			return exec.AgentID
		}
	}
	return ""
}

// historicalResolver serves recorded executions instead of calling agents.
type historicalResolver struct {
	mu     sync.Mutex
	byStep map[string][]swarm.AgentExecution
	served map[string]int
}

func newHistoricalResolver(executions []swarm.AgentExecution) *historicalResolver {
	byStep := make(map[string][]swarm.AgentExecution)
	for _, exec := range executions {
		byStep[exec.StepID] = append(byStep[exec.StepID], exec)
	}
	return &historicalResolver{byStep: byStep, served: make(map[string]int)}
}

func (r *historicalResolver) Get(id string) (swarm.Agent, error) {
	return &historicalAgent{resolver: r, agentID: id}, nil
}

func (r *historicalResolver) next(agentID, stepID string) swarm.AgentExecution {
	r.mu.Lock()
	defer r.mu.Unlock()
	history := r.byStep[stepID]
	i := r.served[stepID]
	if i >= len(history) {
		return swarm.AgentExecution{
			AgentID: agentID,
			StepID:  stepID,
			Error:   swarm.NewExecError(swarm.ErrValidation, "no recorded execution for step %q attempt %d", stepID, i+1),
		}
	}
	r.served[stepID] = i + 1
	return history[i]
}

type historicalAgent struct {
	resolver *historicalResolver
	agentID  string
}

func (a *historicalAgent) ID() string        { return a.agentID }
func (a *historicalAgent) Version() string   { return "replay" }
func (a *historicalAgent) LogicHash() string { return "replay" }

func (a *historicalAgent) Execute(_ context.Context, _ map[string]any, stepID string) swarm.AgentExecution {
	return a.resolver.next(a.agentID, stepID)
}

// frozenConfidence reads the values recorded at persistence time and
// refuses all mutation.
type frozenConfidence struct {
	values map[string]float64
}

func (f frozenConfidence) LastConfidence(_ context.Context, agentID string) float64 {
	if v, ok := f.values[agentID]; ok {
		return v
	}
	return 1.0
}

func (f frozenConfidence) ApplyTimeDecay(context.Context, string, float64) error { return nil }

// noopDeduper lets every replay through; replays never race live runs.
type noopDeduper struct{}

func (noopDeduper) CheckDuplicate(context.Context, string, string, string, string) (dedup.Result, error) {
	return dedup.Result{Action: dedup.ActionNew}, nil
}
func (noopDeduper) AcquireLock(context.Context, string) (string, error) { return "replay", nil }
func (noopDeduper) ReleaseLock(context.Context, string, string) error   { return nil }
func (noopDeduper) RegisterExecution(context.Context, string, string, string, string, string) error {
	return nil
}

// captureStore keeps the replayed run out of the real ledger.
type captureStore struct {
	mu   sync.Mutex
	runs []*swarm.SwarmRun
}

func (s *captureStore) SaveSwarmRun(_ context.Context, run *swarm.SwarmRun, _ *alert.NormalizedAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *captureStore) SaveHumanOverride(context.Context, *swarm.RunDecision, *decision.HumanDecision, string) error {
	return nil
}
