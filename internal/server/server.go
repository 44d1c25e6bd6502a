package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/rolecraft/turneval/internal/auth"
	"github.com/rolecraft/turneval/internal/ctxutil"
	"github.com/rolecraft/turneval/internal/model"
	"github.com/rolecraft/turneval/internal/ratelimit"
	"github.com/rolecraft/turneval/internal/service/evaluations"
)

// Server is the turneval HTTP server.
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
// Optional fields (nil-safe): Limiter, Broker, MCPServer, MetricsHandler,
// OpenAPISpec, Middlewares.
type ServerConfig struct {
	// Required dependencies.
	EvalSvc *evaluations.Service
	JWTMgr  *auth.JWTManager
	Keyring *auth.Keyring
	Logger  *slog.Logger

	// Optional dependencies (nil = disabled).
	Limiter        ratelimit.Limiter
	Broker         *Broker
	MCPServer      *mcpserver.MCPServer
	MetricsHandler http.Handler

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	OpenAPISpec []byte // Embedded OpenAPI YAML.

	// Middlewares wrap the whole chain. The first entry is outermost.
	Middlewares []func(http.Handler) http.Handler
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		EvalSvc:             cfg.EvalSvc,
		JWTMgr:              cfg.JWTMgr,
		Keyring:             cfg.Keyring,
		Broker:              cfg.Broker,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	reqIDFunc := func(r *http.Request) string {
		return ctxutil.RequestIDFromContext(r.Context())
	}
	clientRL := ratelimit.Middleware(cfg.Limiter, clientKeyFunc, reqIDFunc, cfg.Logger)
	authRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, reqIDFunc, cfg.Logger)

	mux := http.NewServeMux()

	// Auth endpoint (no auth required, rate limited by IP).
	mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))

	// Evaluation (evaluator+, rate limited per client).
	writeRole := requireRole(model.ClientEvaluator)
	mux.Handle("POST /v1/evaluations", clientRL(writeRole(http.HandlerFunc(h.HandleEvaluate))))

	// Report reads (reader+, rate limited per client).
	readRole := requireRole(model.ClientReader)
	mux.Handle("GET /v1/evaluations", clientRL(readRole(http.HandlerFunc(h.HandleListEvaluations))))
	mux.Handle("GET /v1/evaluations/{message_id}", clientRL(readRole(http.HandlerFunc(h.HandleGetEvaluation))))
	mux.Handle("GET /v1/config", clientRL(readRole(http.HandlerFunc(h.HandleConfig))))

	// Report stream (reader+, no rate limit: long-lived connection).
	mux.Handle("GET /v1/evaluations/stream", readRole(http.HandlerFunc(h.HandleStream)))

	// MCP StreamableHTTP transport (auth required, reader+; tools check evaluator themselves).
	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", readRole(mcpHTTP))
	}

	// Public endpoints (no auth, no rate limit).
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)
	mux.HandleFunc("GET /health", h.HandleHealth)
	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", cfg.MetricsHandler)
	}

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, cfg.Keyring, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		handler = cfg.Middlewares[i](handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// clientKeyFunc keys rate limits by authenticated client. Admins are exempt.
func clientKeyFunc(r *http.Request) string {
	claims := ctxutil.ClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	if model.RoleAtLeast(claims.Role, model.ClientAdmin) {
		return ""
	}
	return "client:" + claims.ClientID
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
