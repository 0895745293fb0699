package trend

import "math"

// FusionMethodPriorityWeighted identifies the built-in fusion strategy.
const FusionMethodPriorityWeighted = "priority_weighted"

// Fuse collapses per-metric trends into a single cluster-level trend.
//
// The fused state is the highest-priority state present (DEGRADING before
// RECOVERING before STABLE before UNKNOWN). Fused confidence weighs metrics
// agreeing with the fused state at 0.7 and the rest at 0.3; when one side is
// empty the weights renormalize to the other.
func Fuse(trends []MetricTrend) MetricTrend {
	fused := MetricTrend{
		MetricName:   "fused",
		State:        StateUnknown,
		FusionMethod: FusionMethodPriorityWeighted,
	}
	if len(trends) == 0 {
		fused.Reasoning = "no metric trends to fuse"
		return fused
	}

	for _, t := range trends {
		if t.State > fused.State {
			fused.State = t.State
		}
	}

	var matchSum, otherSum float64
	var matchN, otherN int
	for _, t := range trends {
		if t.State == fused.State {
			matchSum += t.Confidence
			matchN++
		} else {
			otherSum += t.Confidence
			otherN++
		}
	}

	var confidence float64
	switch {
	case matchN > 0 && otherN > 0:
		confidence = 0.7*(matchSum/float64(matchN)) + 0.3*(otherSum/float64(otherN))
	case matchN > 0:
		confidence = matchSum / float64(matchN)
	default:
		confidence = otherSum / float64(otherN)
	}
	confidence = math.Max(0, math.Min(1, confidence))

	if fused.State == StateUnknown {
		confidence = 0
	}
	fused.Confidence = confidence
	fused.Reasoning = fused.State.String() + " after priority-weighted fusion"
	return fused
}
