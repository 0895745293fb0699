package decision

import (
	"fmt"
	"math"
	"strings"

	"github.com/strandsops/strands/pkg/correlation"
	"github.com/strandsops/strands/pkg/trend"
)

// Rule ids in evaluation order.
const (
	RuleCriticalDegrading = "CRITICAL_DEGRADING"
	RuleRecoveryDetected  = "RECOVERY_DETECTED"
	RuleInsufficientData  = "INSUFFICIENT_DATA"
	RuleHistoricalPattern = "HISTORICAL_PATTERN"
	RuleStableMetrics     = "STABLE_METRICS"
	RuleDefault           = "DEFAULT"
)

// RuleResult is one rule's verdict. Fires=false means the precondition did
// not match and the remaining fields are zero.
type RuleResult struct {
	RuleID        string
	Fires         bool
	State         State
	Confidence    float64
	Justification string
}

// RuleEngine evaluates the fixed rule order over a cluster, its trends, and
// any semantic evidence. Evaluation is pure: no clock, no I/O.
type RuleEngine struct {
	// AcceptThreshold short-circuits evaluation once a firing rule reaches
	// this confidence.
	AcceptThreshold float64
}

// NewRuleEngine returns an engine with the standard accept threshold.
func NewRuleEngine() *RuleEngine {
	return &RuleEngine{AcceptThreshold: 0.60}
}

type ruleFn func(cluster *correlation.AlertCluster, trends []trend.MetricTrend, evidence []SemanticEvidence) RuleResult

func orderedRules() []ruleFn {
	return []ruleFn{
		ruleCriticalDegrading,
		ruleRecoveryDetected,
		ruleInsufficientData,
		ruleHistoricalPattern,
		ruleStableMetrics,
		ruleDefault,
	}
}

// Evaluate runs the rules in order. It returns the winning result and every
// rule that fired, in evaluation order. The default rule always fires, so
// the fired list is never empty and a winner always exists.
func (e *RuleEngine) Evaluate(cluster *correlation.AlertCluster, trends []trend.MetricTrend, evidence []SemanticEvidence) (RuleResult, []RuleResult) {
	var fired []RuleResult
	for _, rule := range orderedRules() {
		res := rule(cluster, trends, evidence)
		if !res.Fires {
			continue
		}
		fired = append(fired, res)
		if res.Confidence >= e.AcceptThreshold {
			return res, fired
		}
	}
	winner := fired[0]
	for _, r := range fired[1:] {
		if r.Confidence > winner.Confidence {
			winner = r
		}
	}
	return winner, fired
}

func ruleCriticalDegrading(cluster *correlation.AlertCluster, trends []trend.MetricTrend, _ []SemanticEvidence) RuleResult {
	if cluster == nil || cluster.PrimarySeverity != "critical" {
		return RuleResult{RuleID: RuleCriticalDegrading}
	}
	for _, t := range trends {
		if t.State == trend.StateDegrading && t.Confidence >= 0.7 {
			return RuleResult{
				RuleID:     RuleCriticalDegrading,
				Fires:      true,
				State:      StateEscalate,
				Confidence: 0.85,
				Justification: fmt.Sprintf("critical severity on %s with %s degrading (confidence %.2f)",
					cluster.PrimaryService, t.MetricName, t.Confidence),
			}
		}
	}
	return RuleResult{RuleID: RuleCriticalDegrading}
}

func ruleRecoveryDetected(_ *correlation.AlertCluster, trends []trend.MetricTrend, _ []SemanticEvidence) RuleResult {
	if len(trends) == 0 {
		return RuleResult{RuleID: RuleRecoveryDetected}
	}
	sum := 0.0
	for _, t := range trends {
		if t.State != trend.StateRecovering || t.Confidence < 0.6 {
			return RuleResult{RuleID: RuleRecoveryDetected}
		}
		sum += t.Confidence
	}
	avg := sum / float64(len(trends))
	return RuleResult{
		RuleID:        RuleRecoveryDetected,
		Fires:         true,
		State:         StateClose,
		Confidence:    math.Min(0.85, avg+0.10),
		Justification: fmt.Sprintf("all %d metrics recovering (mean confidence %.2f)", len(trends), avg),
	}
}

func ruleInsufficientData(_ *correlation.AlertCluster, trends []trend.MetricTrend, _ []SemanticEvidence) RuleResult {
	unknown := 0
	for _, t := range trends {
		if t.State == trend.StateUnknown {
			unknown++
		}
	}
	if len(trends) != 0 && unknown*2 < len(trends) {
		return RuleResult{RuleID: RuleInsufficientData}
	}
	return RuleResult{
		RuleID:        RuleInsufficientData,
		Fires:         true,
		State:         StateManualReview,
		Confidence:    0.70,
		Justification: fmt.Sprintf("insufficient trend data (%d unknown of %d)", unknown, len(trends)),
	}
}

func ruleHistoricalPattern(_ *correlation.AlertCluster, _ []trend.MetricTrend, evidence []SemanticEvidence) RuleResult {
	var best *SemanticEvidence
	for i := range evidence {
		if best == nil || evidence[i].SimilarityScore > best.SimilarityScore {
			best = &evidence[i]
		}
	}
	if best == nil || best.SimilarityScore < 0.85 {
		return RuleResult{RuleID: RuleHistoricalPattern}
	}
	state, clear := classifySummary(best.Summary)
	conf := best.SimilarityScore
	if !clear {
		conf *= 0.8
	}
	return RuleResult{
		RuleID:        RuleHistoricalPattern,
		Fires:         true,
		State:         state,
		Confidence:    conf,
		Justification: fmt.Sprintf("matches past decision %s (similarity %.2f): %s", best.SourceDecisionID, best.SimilarityScore, best.Summary),
	}
}

func ruleStableMetrics(_ *correlation.AlertCluster, trends []trend.MetricTrend, _ []SemanticEvidence) RuleResult {
	stable := 0
	for _, t := range trends {
		switch t.State {
		case trend.StateDegrading:
			return RuleResult{RuleID: RuleStableMetrics}
		case trend.StateStable:
			stable++
		}
	}
	if stable < 2 {
		return RuleResult{RuleID: RuleStableMetrics}
	}
	return RuleResult{
		RuleID:        RuleStableMetrics,
		Fires:         true,
		State:         StateObserve,
		Confidence:    0.70,
		Justification: fmt.Sprintf("%d stable metrics, none degrading", stable),
	}
}

func ruleDefault(_ *correlation.AlertCluster, _ []trend.MetricTrend, _ []SemanticEvidence) RuleResult {
	return RuleResult{
		RuleID:        RuleDefault,
		Fires:         true,
		State:         StateObserve,
		Confidence:    0.50,
		Justification: "no rule matched with sufficient signal",
	}
}

// classifySummary maps a historical decision summary to its action class.
// The second return is false when no action keyword was found.
func classifySummary(summary string) (State, bool) {
	s := strings.ToLower(summary)
	switch {
	case strings.Contains(s, "clos") || strings.Contains(s, "resolv"):
		return StateClose, true
	case strings.Contains(s, "escalat") || strings.Contains(s, "critical"):
		return StateEscalate, true
	case strings.Contains(s, "observ") || strings.Contains(s, "monitor"):
		return StateObserve, true
	}
	return StateObserve, false
}
