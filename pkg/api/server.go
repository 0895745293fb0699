// Package api exposes the webhook and operational HTTP surface.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/strandsops/strands/pkg/alert"
	"github.com/strandsops/strands/pkg/database"
	"github.com/strandsops/strands/pkg/ledger"
	"github.com/strandsops/strands/pkg/pipeline"
)

// Ingester is the pipeline slice the webhook handler calls.
type Ingester interface {
	Ingest(ctx context.Context, raws []alert.RawAlert) (*pipeline.IngestResult, error)
}

// Server wires the HTTP handlers to the pipeline and the ledger.
type Server struct {
	intake Ingester
	store  ledger.Ledger
	db     *database.Client
	logger *slog.Logger
}

// NewServer creates the API server. db may be nil when the service runs on
// the in-memory ledger.
func NewServer(intake Ingester, store ledger.Ledger, db *database.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{intake: intake, store: store, db: db, logger: logger}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	v1 := r.Group("/api/v1")
	{
		v1.POST("/alerts", s.ingestAlerts)
		v1.GET("/health", s.health)
		v1.GET("/runs/:id", s.getRun)
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// ListenAndServe runs the server until ctx is canceled, then shuts down
// gracefully within the given timeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
