package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/strandsops/strands/pkg/policy"
	"github.com/strandsops/strands/pkg/swarm"
)

// errorSignatures are matched case-insensitively against log lines. Each hit
// raises the evidence confidence; the signature names are surfaced in the
// evidence content to give the consolidation step something to reason about.
var errorSignatures = []string{
	"panic",
	"out of memory",
	"oom",
	"connection refused",
	"connection reset",
	"timeout",
	"deadline exceeded",
	"too many open files",
	"5xx",
	"error",
}

// LogAnalysisAgent scans the log lines handed to it for known failure
// signatures and reports error density as a LOG evidence item.
type LogAnalysisAgent struct{}

func NewLogAnalysisAgent() *LogAnalysisAgent { return &LogAnalysisAgent{} }

func (l *LogAnalysisAgent) ID() string      { return "loganalysis" }
func (l *LogAnalysisAgent) Version() string { return "1" }
func (l *LogAnalysisAgent) LogicHash() string {
	return policy.HashLogic("loganalysis:signature-density:v1")
}

func (l *LogAnalysisAgent) Execute(_ context.Context, params map[string]any, stepID string) swarm.AgentExecution {
	exec := newExecution(l, stepID, params)

	lines, err := stringSlice(params, "logs")
	exec.FinishedAt = time.Now().UTC()
	if err != nil {
		exec.Error = swarm.NewExecError(swarm.ErrValidation, "log lines: %v", err)
		return exec
	}

	hits := make(map[string]int)
	matched := 0
	for _, line := range lines {
		lower := strings.ToLower(line)
		lineMatched := false
		for _, sig := range errorSignatures {
			if strings.Contains(lower, sig) {
				hits[sig]++
				lineMatched = true
			}
		}
		if lineMatched {
			matched++
		}
	}

	density := 0.0
	if len(lines) > 0 {
		density = float64(matched) / float64(len(lines))
	}
	// Confidence grows with error density but an all-clean log is still a
	// confident finding.
	conf := 0.6 + 0.35*density
	if len(lines) == 0 {
		conf = 0.3
	}

	exec.OutputEvidence = []swarm.Evidence{{
		EvidenceID:        uuid.NewString(),
		SourceExecutionID: exec.ExecutionID,
		AgentID:           l.ID(),
		Content:           describeLogFindings(len(lines), matched, hits),
		Confidence:        conf,
		Type:              swarm.EvidenceLog,
	}}
	return exec
}

func describeLogFindings(total, matched int, hits map[string]int) string {
	if matched == 0 {
		return fmt.Sprintf("scanned %d lines, no failure signatures", total)
	}
	sigs := make([]string, 0, len(hits))
	for sig := range hits {
		sigs = append(sigs, sig)
	}
	sort.Strings(sigs)
	parts := make([]string, 0, len(sigs))
	for _, sig := range sigs {
		parts = append(parts, fmt.Sprintf("%s=%d", sig, hits[sig]))
	}
	return fmt.Sprintf("scanned %d lines, %d matched failure signatures (%s)",
		total, matched, strings.Join(parts, ", "))
}

func stringSlice(params map[string]any, key string) ([]string, error) {
	raw, ok := params[key]
	if !ok {
		return nil, fmt.Errorf("missing required parameter %q", key)
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d]: expected string, got %T", key, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported %s type %T", key, raw)
	}
}
