package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/surf-ingest-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// A full run sleeps between spots and retries slow upstreams, so /scrape
// responses can take minutes.
const writeTimeout = 15 * time.Minute

// Runner executes one ingestion run on demand and remembers the last one.
type Runner interface {
	Run(ctx context.Context) (domain.RunResult, error)
	LastRun() (domain.RunResult, bool)
}

// ScrapeResponse is the body returned by GET /scrape.
type ScrapeResponse struct {
	Message    string               `json:"message"`
	Success    bool                 `json:"success"`
	Results    []domain.TaskOutcome `json:"results"`
	DurationMs int64                `json:"durationMs"`
	RunID      string               `json:"runId,omitempty"`
	StartedAt  time.Time            `json:"startedAt"`
}

// Server exposes the scrape trigger plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	runner     Runner
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /scrape, /runs/last, /healthz, /readyz,
// and /metrics routes.
func NewServer(addr string, runner Runner, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       60 * time.Second,
		},
		runner: runner,
		logger: logger,
	}

	r.Get("/scrape", s.handleScrape)
	r.Get("/runs/last", s.handleLastRun)
	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(ready))
	r.Handle("/metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	// A client hanging up does not abort a run that is already writing to
	// the stores.
	ctx := context.WithoutCancel(r.Context())
	reqID := middleware.GetReqID(r.Context())
	s.logger.Info("scrape requested", "request_id", reqID)

	result, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error("scrape failed", "request_id", reqID, "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	resp := ScrapeResponse{
		Success:    result.Success,
		Results:    result.Results,
		DurationMs: result.DurationMs,
		RunID:      result.RunID,
		StartedAt:  result.StartedAt,
	}
	if result.Success {
		resp.Message = "Scraping completed successfully!"
		sharedobs.WriteJSON(w, http.StatusOK, resp)
		return
	}
	resp.Message = "Scraping completed with some failures"
	sharedobs.WriteJSON(w, http.StatusMultiStatus, resp)
}

func (s *Server) handleLastRun(w http.ResponseWriter, _ *http.Request) {
	result, ok := s.runner.LastRun()
	if !ok {
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "no run has completed yet"})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, result)
}

// IsClosed reports whether err is the expected result of Shutdown.
func IsClosed(err error) bool {
	return errors.Is(err, http.ErrServerClosed)
}
