// Package alert defines the alert entities flowing through the triage
// pipeline and the normalizer that validates raw alerts into their
// canonical form.
package alert

import "time"

// Severity levels accepted from monitoring sources, ordered by rank.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// SeverityRank returns the ordering weight of a severity
// (critical > warning > info). Unknown severities rank below info.
func SeverityRank(severity string) int {
	switch severity {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// ValidationStatus marks whether a normalized alert passed validation.
type ValidationStatus string

const (
	ValidationValid     ValidationStatus = "VALID"
	ValidationMalformed ValidationStatus = "MALFORMED"
)

// RawAlert is an immutable event as delivered by a monitoring source.
type RawAlert struct {
	Timestamp   time.Time         `json:"timestamp"`
	Fingerprint string            `json:"fingerprint"`
	Service     string            `json:"service"`
	Severity    string            `json:"severity"`
	Description string            `json:"description"`
	Labels      map[string]string `json:"labels,omitempty"`
	Source      string            `json:"source,omitempty"`
}

// NormalizedAlert is the canonical representation used by the pipeline.
// Malformed alerts are retained (never dropped) so they stay auditable.
type NormalizedAlert struct {
	Timestamp   time.Time         `json:"timestamp"`
	Fingerprint string            `json:"fingerprint"`
	Service     string            `json:"service"`
	Severity    string            `json:"severity"`
	Description string            `json:"description"`
	Labels      map[string]string `json:"labels,omitempty"`
	Source      string            `json:"source,omitempty"`

	ValidationStatus       ValidationStatus `json:"validation_status"`
	ValidationErrors       []string         `json:"validation_errors,omitempty"`
	NormalizationTimestamp time.Time        `json:"normalization_timestamp"`
}

// IsValid reports whether the alert passed validation.
func (a *NormalizedAlert) IsValid() bool {
	return a.ValidationStatus == ValidationValid
}
