package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/strandsops/strands/pkg/correlation"
	"github.com/strandsops/strands/pkg/llm"
	"github.com/strandsops/strands/pkg/metrics"
	"github.com/strandsops/strands/pkg/trend"
	"github.com/strandsops/strands/pkg/vector"
)

// SimilaritySearcher is the slice of the vector store the fallback needs.
type SimilaritySearcher interface {
	Search(ctx context.Context, query string, limit int) ([]vector.Match, error)
}

// FallbackConfig tunes the semantic and LLM stages.
type FallbackConfig struct {
	// SemanticThreshold is the minimum similarity for semantic recovery.
	SemanticThreshold float64
	// Deadline bounds the whole fallback, LLM call included.
	Deadline time.Duration
}

// DefaultFallbackConfig returns the standard fallback settings.
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{SemanticThreshold: 0.60, Deadline: 30 * time.Second}
}

// FallbackResult is what the fallback proposes in place of a weak rule verdict.
type FallbackResult struct {
	State         State
	Confidence    float64
	Justification string
	Reason        string
	Evidence      []SemanticEvidence
}

// Fallback enriches low-confidence rule results. It first tries to mirror a
// sufficiently similar past decision; only when that yields nothing does it
// make a single bounded LLM call.
type Fallback struct {
	search SimilaritySearcher
	client llm.Client
	cfg    FallbackConfig
	logger *slog.Logger
}

// NewFallback wires the fallback. Either collaborator may be nil; a nil
// searcher skips semantic recovery and a nil client always simulates.
func NewFallback(search SimilaritySearcher, client llm.Client, cfg FallbackConfig, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SemanticThreshold <= 0 {
		cfg.SemanticThreshold = DefaultFallbackConfig().SemanticThreshold
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultFallbackConfig().Deadline
	}
	return &Fallback{search: search, client: client, cfg: cfg, logger: logger}
}

// Recover produces a replacement verdict. It never fails: LLM errors degrade
// to a simulated MANUAL_REVIEW result.
func (f *Fallback) Recover(ctx context.Context, cluster *correlation.AlertCluster, trends []trend.MetricTrend, winner RuleResult) FallbackResult {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Deadline)
	defer cancel()

	query := describeCluster(cluster, trends)
	evidence := f.searchEvidence(ctx, query)
	if len(evidence) > 0 {
		metrics.RAGSimilarity.Observe(evidence[0].SimilarityScore)
	}

	if len(evidence) > 0 && evidence[0].SimilarityScore > f.cfg.SemanticThreshold {
		best := evidence[0]
		state, _ := classifySummary(best.Summary)
		f.logger.Info("semantic recovery matched past decision",
			"decision_id", best.SourceDecisionID, "similarity", best.SimilarityScore)
		return FallbackResult{
			State:         state,
			Confidence:    best.SimilarityScore,
			Justification: fmt.Sprintf("mirrors past decision %s (similarity %.2f): %s", best.SourceDecisionID, best.SimilarityScore, best.Summary),
			Reason:        ReasonSemanticRecovery,
			Evidence:      evidence,
		}
	}

	return f.completeLLM(ctx, query, evidence, winner)
}

func (f *Fallback) searchEvidence(ctx context.Context, query string) []SemanticEvidence {
	if f.search == nil {
		return nil
	}
	matches, err := f.search.Search(ctx, query, 3)
	if err != nil {
		f.logger.Warn("vector store search failed", "error", err)
		return nil
	}
	evidence := make([]SemanticEvidence, len(matches))
	for i, m := range matches {
		evidence[i] = SemanticEvidence{SourceDecisionID: m.DecisionID, SimilarityScore: m.Score, Summary: m.Summary}
	}
	return evidence
}

func (f *Fallback) completeLLM(ctx context.Context, query string, evidence []SemanticEvidence, winner RuleResult) FallbackResult {
	simulated := func(cause string) FallbackResult {
		return FallbackResult{
			State:         StateManualReview,
			Confidence:    0.70,
			Justification: "Simulated LLM analysis: " + cause,
			Reason:        ReasonLLMFallbackSimulated,
			Evidence:      evidence,
		}
	}

	if f.client == nil {
		return simulated("no model configured, deferring to a human")
	}

	raw, err := f.client.Complete(ctx, buildPrompt(query, evidence, winner), llm.DefaultOptions())
	if err != nil {
		f.logger.Warn("llm completion failed, simulating verdict", "error", err)
		return simulated("model unavailable, deferring to a human")
	}

	var verdict struct {
		State         string  `json:"state"`
		Confidence    float64 `json:"confidence"`
		Justification string  `json:"justification"`
	}
	if err := json.Unmarshal(extractJSON(raw), &verdict); err != nil {
		f.logger.Warn("llm output was not valid JSON", "error", err)
		return simulated("unparseable model output, deferring to a human")
	}
	state := State(strings.ToUpper(strings.TrimSpace(verdict.State)))
	if !ValidState(state) {
		f.logger.Warn("llm proposed unknown state", "state", verdict.State)
		return simulated("model proposed an unknown state, deferring to a human")
	}
	return FallbackResult{
		State:         state,
		Confidence:    math.Max(0, math.Min(1, verdict.Confidence)),
		Justification: verdict.Justification,
		Reason:        ReasonLLMFallback,
		Evidence:      evidence,
	}
}

// extractJSON trims chatty model output down to the outermost JSON object.
func extractJSON(raw string) []byte {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return []byte(raw)
	}
	return []byte(raw[start : end+1])
}

func buildPrompt(query string, evidence []SemanticEvidence, winner RuleResult) string {
	var b strings.Builder
	b.WriteString("You triage alert clusters for an SRE team.\n\n")
	b.WriteString("Cluster:\n")
	b.WriteString(query)
	b.WriteString("\n\nRule engine verdict: ")
	fmt.Fprintf(&b, "%s %s (confidence %.2f): %s\n", winner.RuleID, winner.State, winner.Confidence, winner.Justification)
	if len(evidence) > 0 {
		b.WriteString("\nSimilar past decisions:\n")
		for _, ev := range evidence {
			fmt.Fprintf(&b, "- [%.2f] %s\n", ev.SimilarityScore, ev.Summary)
		}
	}
	b.WriteString("\nAnswer with a single JSON object {\"state\": one of CLOSE|OBSERVE|ESCALATE|MANUAL_REVIEW, \"confidence\": number in [0,1], \"justification\": string}.")
	return b.String()
}

func describeCluster(cluster *correlation.AlertCluster, trends []trend.MetricTrend) string {
	var b strings.Builder
	if cluster != nil {
		fmt.Fprintf(&b, "service=%s severity=%s alerts=%d score=%.2f",
			cluster.PrimaryService, cluster.PrimarySeverity, cluster.AlertCount, cluster.CorrelationScore)
		for _, a := range cluster.Alerts {
			fmt.Fprintf(&b, "\n- %s: %s", a.Severity, a.Description)
		}
	}
	for _, t := range trends {
		fmt.Fprintf(&b, "\nmetric %s: %s (confidence %.2f)", t.MetricName, t.State, t.Confidence)
	}
	return b.String()
}
