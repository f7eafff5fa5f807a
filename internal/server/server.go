// Package server exposes the anonymizer and the assistant over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/raaihank/llm-veil/internal/assistant"
	"github.com/raaihank/llm-veil/internal/audit"
	"github.com/raaihank/llm-veil/internal/config"
	"github.com/raaihank/llm-veil/internal/logger"
	"github.com/raaihank/llm-veil/internal/metrics"
	"github.com/raaihank/llm-veil/internal/security"
	"github.com/raaihank/llm-veil/internal/tools"
	"github.com/raaihank/llm-veil/internal/web"
	"github.com/raaihank/llm-veil/internal/websocket"
	"go.uber.org/zap"
)

const statusInterval = 30 * time.Second

// ToolRegistry is the cached tool catalog served by /v1/tools.
type ToolRegistry interface {
	Callbacks(ctx context.Context) ([]tools.Tool, error)
	Invalidate()
}

// Limiter decides whether a client may make another request.
type Limiter interface {
	Allow(clientIP string) bool
	StartCleanupRoutine(ctx context.Context)
}

// ServerLister names the connected tool servers.
type ServerLister interface {
	Names() []string
}

// Server represents the HTTP server
type Server struct {
	config  *config.Config
	logger  *logger.Logger
	service *assistant.Service
	tools   ToolRegistry
	servers ServerLister
	limiter Limiter
	metrics *metrics.Metrics
	wsHub   *websocket.Hub
	audit   audit.Log
	router  *mux.Router
	server  *http.Server
	version string

	startTime     time.Time
	totalRequests atomic.Int64
	totalEntities atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithTools serves the tool catalog and reports the connected servers.
func WithTools(registry ToolRegistry, servers ServerLister) Option {
	return func(s *Server) {
		s.tools = registry
		s.servers = servers
	}
}

// WithLimiter replaces the in-memory per-client rate limiter.
func WithLimiter(l Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// WithAudit records a summary of every request in log and serves /v1/audit.
func WithAudit(log audit.Log) Option {
	return func(s *Server) { s.audit = log }
}

// WithMetrics records HTTP metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger, service *assistant.Service, opts ...Option) *Server {
	s := &Server{
		config:    cfg,
		logger:    log.WithComponent("server"),
		service:   service,
		limiter:   security.NewRateLimiter(cfg.Security.RateLimit),
		router:    mux.NewRouter(),
		version:   "dev",
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.WebSocket.Enabled {
		s.wsHub = websocket.NewHub(cfg.WebSocket, log)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if s.wsHub != nil {
		s.router.HandleFunc(s.config.WebSocket.Path, s.wsHub.HandleWebSocket).Methods(http.MethodGet)

		dashboard, err := web.Dashboard(s.config.WebSocket.Path, s.version)
		if err != nil {
			s.logger.Error("Failed to render dashboard", zap.Error(err))
		} else {
			s.router.Handle("/dashboard", s.wsHub.RequireAuth(dashboard)).Methods(http.MethodGet)
		}
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.Use(s.bodyLimitMiddleware)

	api.HandleFunc("/anonymize", s.handleAnonymize).Methods(http.MethodPost)
	api.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	api.HandleFunc("/tools", s.handleListTools).Methods(http.MethodGet)
	api.HandleFunc("/tools/refresh", s.handleRefreshTools).Methods(http.MethodPost)
	api.HandleFunc("/audit", s.handleAudit).Methods(http.MethodGet)
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs background workers and serves HTTP until Stop is called or ctx
// ends.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting llm-veil server",
		zap.Int("port", s.config.Server.Port),
		zap.Bool("privacy_enabled", s.config.Privacy.Enabled),
		zap.Bool("generator", s.service.HasGenerator()),
	)

	if s.wsHub != nil {
		go s.wsHub.Run(ctx)
		go s.statusLoop(ctx)
	}
	s.limiter.StartCleanupRoutine(ctx)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping llm-veil server")
	return s.server.Shutdown(ctx)
}

// GetWebSocketHub returns the WebSocket hub for broadcasting events, or nil
// when websockets are disabled.
func (s *Server) GetWebSocketHub() *websocket.Hub {
	return s.wsHub
}

func (s *Server) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.wsHub.PublishSystemStatus(s.systemStatus())
		}
	}
}

func (s *Server) systemStatus() websocket.SystemStatusEvent {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	status := websocket.SystemStatusEvent{
		Status:        "healthy",
		Uptime:        time.Since(s.startTime).Round(time.Second).String(),
		TotalRequests: s.totalRequests.Load(),
		TotalEntities: s.totalEntities.Load(),
		ToolServers:   s.serverNames(),
		MemoryUsage:   fmt.Sprintf("%.1f MB", float64(mem.Alloc)/(1<<20)),
	}
	if a := s.service.Anonymizer(); a != nil {
		status.ActivePatterns = a.PatternCount()
	}
	if s.wsHub != nil {
		status.ConnectedClients = s.wsHub.ClientCount()
	}
	return status
}

func (s *Server) serverNames() []string {
	if s.servers == nil {
		return []string{}
	}
	return s.servers.Names()
}
