package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/arrowlimo/alms/internal/auth"
	"github.com/arrowlimo/alms/internal/model"
	"github.com/arrowlimo/alms/internal/ratelimit"
)

// Server is the ALMS HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Limiter, Broker, MCPServer, OpenAPISpec.
type ServerConfig struct {
	// Required dependencies.
	Store   Store
	Users   Authenticator
	Auditor Auditor
	Reports Reporter
	JWTMgr  *auth.JWTManager
	Logger  *slog.Logger

	// Optional dependencies (nil = disabled).
	Limiter   ratelimit.Limiter
	Broker    *Broker
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	OpenAPISpec []byte
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Store:               cfg.Store,
		Users:               cfg.Users,
		Auditor:             cfg.Auditor,
		Reports:             cfg.Reports,
		Broker:              cfg.Broker,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	denied := func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusTooManyRequests, model.ErrCodeRateLimited, "too many requests")
	}
	authRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, cfg.Logger, denied)

	mux := http.NewServeMux()

	// Public.
	mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)

	// Viewer+.
	viewer := requireRole(model.RoleViewer)
	mux.Handle("GET /v1/charters/{reserve}", viewer(http.HandlerFunc(h.HandleGetCharter)))
	mux.Handle("GET /v1/reports/{name}", viewer(http.HandlerFunc(h.HandleReport)))
	mux.Handle("GET /v1/audits/{run_id}/findings", viewer(http.HandlerFunc(h.HandleAuditFindings)))
	mux.Handle("GET /v1/audits/events", viewer(http.HandlerFunc(h.HandleAuditEvents)))
	mux.Handle("GET /v1/banking/unmatched", viewer(http.HandlerFunc(h.HandleUnmatchedBanking)))

	// Bookkeeper+ (apply additionally requires admin, checked in the handler).
	bookkeeper := requireRole(model.RoleBookkeeper)
	mux.Handle("POST /v1/audits", bookkeeper(http.HandlerFunc(h.HandleCreateAudit)))

	if cfg.MCPServer != nil {
		mux.Handle("/mcp", viewer(mcpserver.NewStreamableHTTPServer(cfg.MCPServer)))
	}

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
