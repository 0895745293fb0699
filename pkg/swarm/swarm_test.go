package swarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strandsops/strands/pkg/alert"
	"github.com/strandsops/strands/pkg/decision"
	"github.com/strandsops/strands/pkg/dedup"
	"github.com/strandsops/strands/pkg/policy"
)

// fakeAgent fails its first failures calls, then succeeds with the
// configured evidence.
type fakeAgent struct {
	id         string
	version    string
	evidence   []Evidence
	failures   int
	failKind   ErrorKind
	delay      time.Duration
	mu         sync.Mutex
	calls      int
	seenParams []map[string]any
}

func newFakeAgent(id string, failures int, evidenceConfidence float64) *fakeAgent {
	return &fakeAgent{
		id:       id,
		version:  "1",
		failures: failures,
		failKind: ErrNetwork,
		evidence: []Evidence{{
			AgentID:    id,
			Content:    id + " findings",
			Confidence: evidenceConfidence,
			Type:       EvidenceLog,
		}},
	}
}

func (f *fakeAgent) ID() string        { return f.id }
func (f *fakeAgent) Version() string   { return f.version }
func (f *fakeAgent) LogicHash() string { return policy.HashLogic("fake:" + f.id) }

func (f *fakeAgent) Execute(ctx context.Context, params map[string]any, stepID string) AgentExecution {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.seenParams = append(f.seenParams, params)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(f.delay):
		}
	}

	exec := AgentExecution{
		ExecutionID:     uuid.NewString(),
		AgentID:         f.id,
		AgentVersion:    f.version,
		LogicHash:       f.LogicHash(),
		StepID:          stepID,
		InputParameters: params,
		StartedAt:       time.Now().UTC(),
		FinishedAt:      time.Now().UTC(),
	}
	if call <= f.failures {
		exec.Error = NewExecError(f.failKind, "simulated failure %d", call)
		return exec
	}
	out := make([]Evidence, len(f.evidence))
	copy(out, f.evidence)
	for i := range out {
		out[i].EvidenceID = uuid.NewString()
		out[i].SourceExecutionID = exec.ExecutionID
	}
	exec.OutputEvidence = out
	return exec
}

func (f *fakeAgent) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// hypothesisAgent emulates the LLM fallback agent.
type hypothesisAgent struct{ fakeAgent }

func newHypothesisAgent(id string) *hypothesisAgent {
	a := &hypothesisAgent{fakeAgent: *newFakeAgent(id, 0, 0.6)}
	a.evidence = []Evidence{{
		AgentID:    id,
		Content:    `{"root_cause": "connection pool exhaustion", "recommended_procedure": "scale the pool and recycle workers"}`,
		Confidence: 0.6,
		Type:       EvidenceHypothesis,
	}}
	return a
}

// fakeConfidence is a minimal stand-in for the confidence service.
type fakeConfidence struct {
	mu         sync.Mutex
	decayed    []string
	penalized  []string
	reinforced []string
	values     map[string]float64
}

func newFakeConfidence() *fakeConfidence {
	return &fakeConfidence{values: make(map[string]float64)}
}

func (f *fakeConfidence) LastConfidence(_ context.Context, agentID string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.values[agentID]; ok {
		return v
	}
	return 1.0
}

func (f *fakeConfidence) ApplyTimeDecay(_ context.Context, agentID string, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decayed = append(f.decayed, agentID)
	return nil
}

func (f *fakeConfidence) PenalizeForOverride(_ context.Context, agentID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.penalized = append(f.penalized, agentID)
	return nil
}

func (f *fakeConfidence) ReinforceForSuccess(_ context.Context, agentID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reinforced = append(f.reinforced, agentID)
	return nil
}

// fakeDeduper keeps dedup state in process.
type fakeDeduper struct {
	mu     sync.Mutex
	keys   map[string]string
	locks  map[string]string
	nextID int
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{keys: make(map[string]string), locks: make(map[string]string)}
}

func (f *fakeDeduper) CheckDuplicate(_ context.Context, sourceID, eventData, severity, source string) (dedup.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if runID, ok := f.keys[dedup.Key(source, sourceID, severity, eventData)]; ok {
		return dedup.Result{Action: dedup.ActionUpdateExisting, ExistingRunID: runID}, nil
	}
	return dedup.Result{Action: dedup.ActionNew}, nil
}

func (f *fakeDeduper) AcquireLock(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locks[name] != "" {
		return "", nil
	}
	f.nextID++
	token := fmt.Sprintf("tok-%d", f.nextID)
	f.locks[name] = token
	return token, nil
}

func (f *fakeDeduper) ReleaseLock(_ context.Context, name, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locks[name] == token {
		delete(f.locks, name)
	}
	return nil
}

func (f *fakeDeduper) RegisterExecution(_ context.Context, sourceID, executionID, eventData, severity, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[dedup.Key(source, sourceID, severity, eventData)] = executionID
	return nil
}

// fakeStore records persisted runs and overrides.
type fakeStore struct {
	mu        sync.Mutex
	runs      []*SwarmRun
	overrides []*RunDecision
}

func (f *fakeStore) SaveSwarmRun(_ context.Context, run *SwarmRun, _ *alert.NormalizedAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeStore) SaveHumanOverride(_ context.Context, d *RunDecision, _ *decision.HumanDecision, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides = append(f.overrides, d)
	return nil
}

func testAlert() *alert.NormalizedAlert {
	return &alert.NormalizedAlert{
		Timestamp:        time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
		Fingerprint:      "fp-X",
		Service:          "payment-api",
		Severity:         "critical",
		Description:      "high error rate",
		Source:           "alertmanager",
		ValidationStatus: alert.ValidationValid,
	}
}

func testPolicies() *policy.Registry {
	reg := policy.NewRegistry()
	reg.Register(policy.NewExponentialBackoff(time.Millisecond, 10*time.Millisecond, 3))
	return reg
}
