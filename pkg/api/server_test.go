package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandsops/strands/pkg/alert"
	"github.com/strandsops/strands/pkg/ledger"
	"github.com/strandsops/strands/pkg/pipeline"
	"github.com/strandsops/strands/pkg/swarm"
)

type stubIngester struct {
	res  *pipeline.IngestResult
	err  error
	seen []alert.RawAlert
}

func (s *stubIngester) Ingest(_ context.Context, raws []alert.RawAlert) (*pipeline.IngestResult, error) {
	s.seen = raws
	if s.err != nil {
		return nil, s.err
	}
	return s.res, nil
}

func webhookBody(t *testing.T, alerts ...WebhookAlert) string {
	t.Helper()
	b, err := json.Marshal(WebhookPayload{Alerts: alerts})
	require.NoError(t, err)
	return string(b)
}

func sampleWebhookAlert() WebhookAlert {
	return WebhookAlert{
		Labels: map[string]string{
			"service":  "payment-api",
			"severity": "critical",
		},
		Annotations: map[string]string{"description": "error rate above SLO"},
		StartsAt:    time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
		Fingerprint: "fp-1",
	}
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestIngestAlertsRejectsBadJSON(t *testing.T) {
	srv := NewServer(&stubIngester{}, ledger.NewMemory(), nil, nil)

	w := doRequest(srv, http.MethodPost, "/api/v1/alerts", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestAlertsRejectsEmptyBatch(t *testing.T) {
	srv := NewServer(&stubIngester{}, ledger.NewMemory(), nil, nil)

	w := doRequest(srv, http.MethodPost, "/api/v1/alerts", `{"alerts":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestAlertsLaunchesRuns(t *testing.T) {
	intake := &stubIngester{res: &pipeline.IngestResult{
		Accepted: 1,
		Clusters: []pipeline.ClusterResult{
			{ClusterID: "c-1", RunID: "r-1", Status: pipeline.StatusProcessing, AlertCount: 1},
		},
	}}
	srv := NewServer(intake, ledger.NewMemory(), nil, nil)

	w := doRequest(srv, http.MethodPost, "/api/v1/alerts", webhookBody(t, sampleWebhookAlert()))
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp IngestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "processing", resp.Status)
	assert.Equal(t, []string{"r-1"}, resp.RunIDs)

	// The handler maps webhook fields onto the intake model.
	require.Len(t, intake.seen, 1)
	assert.Equal(t, "payment-api", intake.seen[0].Service)
	assert.Equal(t, "error rate above SLO", intake.seen[0].Description)
}

func TestIngestAlertsAllBusyReturns429(t *testing.T) {
	intake := &stubIngester{res: &pipeline.IngestResult{
		Accepted: 1,
		Clusters: []pipeline.ClusterResult{
			{ClusterID: "c-1", Status: pipeline.StatusBusy, AlertCount: 1},
		},
	}}
	srv := NewServer(intake, ledger.NewMemory(), nil, nil)

	w := doRequest(srv, http.MethodPost, "/api/v1/alerts", webhookBody(t, sampleWebhookAlert()))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestGetRun(t *testing.T) {
	store := ledger.NewMemory()
	run := &swarm.SwarmRun{
		RunID: "r-1",
		State: swarm.RunFinished,
		FinalDecision: &swarm.RunDecision{
			DecisionID:     "d-1",
			ActionProposed: swarm.ActionAutoRemediate,
			Confidence:     0.9,
		},
	}
	require.NoError(t, store.SaveSwarmRun(context.Background(), run, &alert.NormalizedAlert{
		Fingerprint: "fp-1", Service: "payment-api",
	}))
	srv := NewServer(&stubIngester{}, store, nil, nil)

	w := doRequest(srv, http.MethodGet, "/api/v1/runs/r-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "r-1", body["run_id"])
	assert.Equal(t, string(swarm.RunFinished), body["state"])
	assert.NotNil(t, body["final_decision"])
}

func TestGetRunNotFound(t *testing.T) {
	srv := NewServer(&stubIngester{}, ledger.NewMemory(), nil, nil)

	w := doRequest(srv, http.MethodGet, "/api/v1/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	srv := NewServer(&stubIngester{}, ledger.NewMemory(), nil, nil)

	w := doRequest(srv, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["ledger_ok"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := NewServer(&stubIngester{}, ledger.NewMemory(), nil, nil)

	w := doRequest(srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestToRawAlertDescriptionPrecedence(t *testing.T) {
	wa := WebhookAlert{
		Labels:      map[string]string{"service": "s", "severity": "info", "description": "from-labels"},
		Annotations: map[string]string{"summary": "from-summary"},
		Fingerprint: "fp",
	}
	assert.Equal(t, "from-summary", wa.ToRawAlert().Description)

	wa.Annotations["description"] = "from-annotations"
	assert.Equal(t, "from-annotations", wa.ToRawAlert().Description)

	wa.Annotations = nil
	assert.Equal(t, "from-labels", wa.ToRawAlert().Description)
}
