package alert

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// allowedSeverities is the closed set a source may deliver.
var allowedSeverities = map[string]bool{
	SeverityCritical: true,
	SeverityWarning:  true,
	SeverityInfo:     true,
}

// Normalizer validates and canonicalizes raw alerts. It has no side effects
// beyond logging; malformed entries are marked, never discarded.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer creates a normalizer using the wall clock.
func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// NewNormalizerWithClock creates a normalizer with an injected clock.
func NewNormalizerWithClock(now func() time.Time) *Normalizer {
	return &Normalizer{now: now}
}

// NormalizeBatch normalizes every alert in the batch. The output has the
// same cardinality as the input.
func (n *Normalizer) NormalizeBatch(alerts []RawAlert) []NormalizedAlert {
	normalized := make([]NormalizedAlert, 0, len(alerts))
	malformed := 0
	for _, raw := range alerts {
		na := n.Normalize(raw)
		if na.ValidationStatus == ValidationMalformed {
			malformed++
			slog.Warn("Alert failed validation",
				"fingerprint", raw.Fingerprint,
				"errors", na.ValidationErrors)
		}
		normalized = append(normalized, na)
	}
	slog.Info("Normalized alert batch",
		"total", len(alerts),
		"malformed", malformed)
	return normalized
}

// Normalize validates and canonicalizes a single alert.
func (n *Normalizer) Normalize(raw RawAlert) NormalizedAlert {
	var errs []string

	if raw.Fingerprint == "" {
		errs = append(errs, "missing fingerprint")
	}
	if raw.Service == "" {
		errs = append(errs, "missing service")
	}
	if raw.Description == "" {
		errs = append(errs, "missing description")
	}

	severity := strings.ToLower(strings.TrimSpace(raw.Severity))
	if !allowedSeverities[severity] {
		errs = append(errs, fmt.Sprintf("invalid severity: %q", raw.Severity))
		severity = SeverityInfo
	}

	now := n.now()
	if raw.Timestamp.After(now) {
		errs = append(errs, fmt.Sprintf("future timestamp: %s", raw.Timestamp.Format(time.RFC3339)))
	}

	status := ValidationValid
	if len(errs) > 0 {
		status = ValidationMalformed
	}

	return NormalizedAlert{
		Timestamp:              raw.Timestamp,
		Fingerprint:            raw.Fingerprint,
		Service:                canonicalService(raw.Service),
		Severity:               severity,
		Description:            raw.Description,
		Labels:                 raw.Labels,
		Source:                 raw.Source,
		ValidationStatus:       status,
		ValidationErrors:       errs,
		NormalizationTimestamp: now,
	}
}

// canonicalService lowercases the service name and collapses whitespace and
// underscores into hyphens, so "Checkout Service" and "checkout_service"
// correlate to the same key.
func canonicalService(service string) string {
	s := strings.ToLower(strings.TrimSpace(service))
	s = strings.ReplaceAll(s, "_", "-")
	return strings.Join(strings.Fields(s), "-")
}
