package api

import (
	"time"

	"github.com/strandsops/strands/pkg/alert"
)

// WebhookPayload is the Alertmanager-shaped batch accepted by POST
// /api/v1/alerts.
type WebhookPayload struct {
	Alerts []WebhookAlert `json:"alerts" binding:"required"`
}

// WebhookAlert is one alert in a webhook batch.
type WebhookAlert struct {
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"startsAt"`
	Fingerprint string            `json:"fingerprint"`
}

// ToRawAlert maps the webhook fields onto the canonical intake model.
// Description prefers annotations over labels; service and severity come
// from labels.
func (w WebhookAlert) ToRawAlert() alert.RawAlert {
	description := w.Annotations["description"]
	if description == "" {
		description = w.Annotations["summary"]
	}
	if description == "" {
		description = w.Labels["description"]
	}
	return alert.RawAlert{
		Timestamp:   w.StartsAt,
		Fingerprint: w.Fingerprint,
		Service:     w.Labels["service"],
		Severity:    w.Labels["severity"],
		Description: description,
		Labels:      w.Labels,
		Source:      "alertmanager",
	}
}
