// Package api provides the HTTP API server: manual sync triggers plus
// read-only views of the scheduler, queue, sync logs, conflicts and performance.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/ads-sync/internal/circuitbreaker"
	"github.com/ads-sync/internal/models"
	"github.com/ads-sync/internal/service"
	"github.com/ads-sync/internal/worker"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsPath = "/metrics"

// SyncQueue accepts manual sync requests and reports queue state
type SyncQueue interface {
	Enqueue(req service.Request) (*worker.Item, bool, error)
	Status() worker.QueueStatus
}

// SchedulerStatusProvider reports tier timer state
type SchedulerStatusProvider interface {
	Status() worker.SchedulerStatus
}

// AccountReader loads ad accounts
type AccountReader interface {
	GetByID(ctx context.Context, id string) (*models.AdAccount, error)
}

// SyncLogReader lists an account's sync jobs
type SyncLogReader interface {
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.SyncLog, error)
}

// ConflictReader lists an account's conflict records
type ConflictReader interface {
	ListConflicts(ctx context.Context, accountID string, unresolvedOnly bool, limit int) ([]*models.ConflictRecord, error)
}

// PerformanceReader reads stored daily performance
type PerformanceReader interface {
	Daily(ctx context.Context, accountID string, from, to time.Time) ([]models.PerformanceDaily, error)
	CampaignTotals(ctx context.Context, accountID string, from, to time.Time) (map[string]models.CampaignTotals, error)
}

// BreakerStatsProvider exposes per-profile circuit breaker state
type BreakerStatsProvider interface {
	BreakerStats() map[string]*circuitbreaker.Stats
}

// Dependencies are the collaborators the handlers read from.
// Scheduler and Breakers may be nil.
type Dependencies struct {
	Queue       SyncQueue
	Scheduler   SchedulerStatusProvider
	Accounts    AccountReader
	SyncLogs    SyncLogReader
	Conflicts   ConflictReader
	Performance PerformanceReader
	Breakers    BreakerStatsProvider
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	ManualSyncRPS   float64 // Manual sync triggers per second per client
	ManualSyncBurst int
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	deps       Dependencies
	config     *ServerConfig
	now        func() time.Time
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, deps Dependencies) *Server {
	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
		config: config,
		now:    time.Now,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle(metricsPath, promhttp.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Status endpoints
	api.HandleFunc("/scheduler/status", s.handleSchedulerStatus).Methods("GET")
	api.HandleFunc("/queue/status", s.handleQueueStatus).Methods("GET")
	api.HandleFunc("/breakers", s.handleBreakers).Methods("GET")

	// Account endpoints; only the trigger is rate limited
	rateLimiter := NewRateLimiter(s.config.ManualSyncRPS, s.config.ManualSyncBurst)
	api.Handle("/accounts/{accountId}/sync", RateLimitMiddleware(rateLimiter)(http.HandlerFunc(s.handleTriggerSync))).Methods("POST")
	api.HandleFunc("/accounts/{accountId}/sync-logs", s.handleListSyncLogs).Methods("GET")
	api.HandleFunc("/accounts/{accountId}/conflicts", s.handleListConflicts).Methods("GET")
	api.HandleFunc("/accounts/{accountId}/performance", s.handleGetPerformance).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "healthy",
		"service": "ads-sync",
	}
	if s.deps.Queue != nil {
		status["queueClosed"] = s.deps.Queue.Status().Closed
	}
	respondJSON(w, http.StatusOK, status)
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("[API] Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("[API] Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
