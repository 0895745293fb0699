package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/strandsops/strands/pkg/alert"
	"github.com/strandsops/strands/pkg/database"
	"github.com/strandsops/strands/pkg/ledger"
	"github.com/strandsops/strands/pkg/pipeline"
	"github.com/strandsops/strands/pkg/version"
)

// IngestResponse is the webhook reply. RunIDs lists the swarm runs launched
// for this batch, one per investigated cluster.
type IngestResponse struct {
	Status   string                   `json:"status"`
	Accepted int                      `json:"accepted"`
	Clusters []pipeline.ClusterResult `json:"clusters"`
	RunIDs   []string                 `json:"run_ids,omitempty"`
}

// ingestAlerts handles POST /api/v1/alerts.
func (s *Server) ingestAlerts(c *gin.Context) {
	var payload WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(payload.Alerts) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "alerts must not be empty"})
		return
	}

	raws := make([]alert.RawAlert, len(payload.Alerts))
	for i, wa := range payload.Alerts {
		raws[i] = wa.ToRawAlert()
	}

	res, err := s.intake.Ingest(c.Request.Context(), raws)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := IngestResponse{Status: "triaged", Accepted: res.Accepted, Clusters: res.Clusters}
	busy := 0
	for _, cluster := range res.Clusters {
		if cluster.RunID != "" {
			resp.RunIDs = append(resp.RunIDs, cluster.RunID)
		}
		if cluster.Status == pipeline.StatusBusy {
			busy++
		}
	}
	if len(resp.RunIDs) > 0 {
		resp.Status = "processing"
	}

	// Every investigable cluster hit a held source lock: tell the sender
	// to back off.
	if busy > 0 && busy == len(res.Clusters) {
		c.JSON(http.StatusTooManyRequests, resp)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

// getRun handles GET /api/v1/runs/:id.
func (s *Server) getRun(c *gin.Context) {
	rc, err := s.store.FetchFullRunContext(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ledger.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":         rc.Run.RunID,
		"state":          rc.Run.State,
		"alert":          rc.Alert,
		"metadata":       rc.Run.Metadata,
		"final_decision": rc.Run.FinalDecision,
	})
}

// health handles GET /api/v1/health.
func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	ledgerOK := true
	if _, err := s.store.FindProcedureBySignature(ctx, "health|probe"); err != nil {
		ledgerOK = false
	}

	body := gin.H{"status": "healthy", "version": version.Full(), "ledger_ok": ledgerOK}
	status := http.StatusOK
	if !ledgerOK {
		body["status"] = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	if s.db != nil {
		dbHealth, err := database.Health(ctx, s.db.DB())
		body["database"] = dbHealth
		if err != nil {
			body["status"] = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, body)
}
