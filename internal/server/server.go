// Package server provides the headless HTTP + WebSocket API that the
// dashboard and monitoring consume. All state-changing work stays with the
// operator bot; the API is read-mostly with a small set of trigger endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/awestray/backlay/internal/domain"
	"github.com/awestray/backlay/internal/server/handler"
	"github.com/awestray/backlay/internal/server/middleware"
	"github.com/awestray/backlay/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit is requests per client per RateLimitWindow; zero disables
	// the limiter even when one is wired.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health        *handler.HealthHandler
	Status        *handler.StatusHandler
	Feed          *handler.FeedHandler
	Opportunities *handler.OpportunityHandler
	Executions    *handler.ExecutionHandler
	Report        *handler.ReportHandler
	Snapshots     *handler.SnapshotHandler
	Audit         *handler.AuditHandler
	Archives      *handler.ArchiveHandler
	Alerts        *handler.AlertHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain applied. wsHub, limiter, and registry are optional;
// their routes and middleware are skipped when nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, registry *prometheus.Registry, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Feed endpoints. Outcome keys contain "::", so the item route takes the
	// rest of the path.
	mux.HandleFunc("GET /api/feed", handlers.Feed.ListFeed)
	mux.HandleFunc("POST /api/feed/refresh", handlers.Feed.RefreshFeed)
	mux.HandleFunc("GET /api/feed/{key...}", handlers.Feed.GetOutcome)

	// Opportunity and execution history.
	mux.HandleFunc("GET /api/opportunities", handlers.Opportunities.ListRecent)
	mux.HandleFunc("GET /api/executions", handlers.Executions.ListRecent)
	mux.HandleFunc("GET /api/executions/churn", handlers.Executions.MonthlyChurn)
	mux.HandleFunc("GET /api/executions/{id}", handlers.Executions.GetExecution)

	// Daily report: GET reads a stored day, POST builds one now.
	mux.HandleFunc("GET /api/report/daily", handlers.Report.GetDaily)
	mux.HandleFunc("POST /api/report/daily", handlers.Report.TriggerReport)

	mux.HandleFunc("GET /api/snapshots", handlers.Snapshots.ListSnapshots)
	mux.HandleFunc("GET /api/audit", handlers.Audit.ListAudit)

	// Cold-storage archives.
	mux.HandleFunc("GET /api/archives", handlers.Archives.ListArchives)
	mux.HandleFunc("GET /api/archives/{path...}", handlers.Archives.DownloadArchive)

	mux.HandleFunc("GET /api/alerts", handlers.Alerts.ListAlerts)

	if registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Middleware chain, innermost first: rate limiting applies to
	// authenticated traffic only, CORS answers preflights before anything
	// else runs.
	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow)(h)
	}
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
