// Package turneval is the public API for embedding the turneval evaluation server.
//
// Plugin consumers import this package to construct and extend the server
// without forking it:
//
//	app, err := turneval.New(
//	    turneval.WithVersion(version),
//	    turneval.WithLogger(logger),
//	    turneval.WithReportHook(myAlertingHook{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: turneval (root) imports
// internal/*, but internal/* never imports turneval (root). Public types
// (Report, Issue) are standalone structs with no internal imports; the
// conversion helper toPublicReport lives here because this is the only file
// that sees both sides of the boundary.
package turneval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/rolecraft/turneval/api"
	"github.com/rolecraft/turneval/internal/auth"
	"github.com/rolecraft/turneval/internal/config"
	"github.com/rolecraft/turneval/internal/evaluation"
	"github.com/rolecraft/turneval/internal/mcp"
	"github.com/rolecraft/turneval/internal/model"
	"github.com/rolecraft/turneval/internal/ratelimit"
	"github.com/rolecraft/turneval/internal/reportcache"
	"github.com/rolecraft/turneval/internal/server"
	"github.com/rolecraft/turneval/internal/service/evaluations"
	"github.com/rolecraft/turneval/internal/telemetry"
)

// AdminClientID is the client id bound to TURNEVAL_ADMIN_API_KEY.
const AdminClientID = "admin"

// shutdownPhaseTimeout bounds each shutdown phase when the caller's context
// has no deadline of its own.
const shutdownPhaseTimeout = 10 * time.Second

// App is the turneval server lifecycle. Construct with New(), run with Run().
// App has no public fields; use New() options to configure it.
type App struct {
	cfg          config.Config
	srv          *server.Server
	evalSvc      *evaluations.Service
	cache        *reportcache.Cache
	limiter      ratelimit.Limiter
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the turneval server. It loads configuration, builds the
// evaluator from the configured profile, and wires auth, rate limiting,
// the report cache, hooks, MCP and HTTP. It does NOT accept HTTP
// connections; call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.profilePath != "" {
		cfg.EvaluationProfile = o.profilePath
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("turneval starting", "version", version, "port", cfg.Port)

	evalCfg := evaluation.DefaultConfig()
	if cfg.EvaluationProfile != "" {
		evalCfg, err = evaluation.LoadProfile(cfg.EvaluationProfile)
		if err != nil {
			return nil, fmt.Errorf("evaluation profile: %w", err)
		}
		logger.Info("evaluation profile loaded", "path", cfg.EvaluationProfile, "verbosity", evalCfg.Verbosity)
	}

	providers, err := telemetry.Init(context.Background(), telemetry.Options{
		Endpoint:    cfg.OTELEndpoint,
		Insecure:    cfg.OTELInsecure,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Prometheus:  cfg.MetricsEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// The evaluator registers its instruments at construction, so it is
	// built after telemetry.Init swaps in the real meter provider.
	evaluator, err := evaluation.New(evalCfg, evaluation.WithLogger(logger))
	if err != nil {
		_ = providers.Shutdown(context.Background())
		return nil, fmt.Errorf("evaluator: %w", err)
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		_ = providers.Shutdown(context.Background())
		return nil, fmt.Errorf("auth: %w", err)
	}
	keyring, err := newKeyring(cfg)
	if err != nil {
		_ = providers.Shutdown(context.Background())
		return nil, fmt.Errorf("auth: %w", err)
	}
	if keyring.Len() == 0 {
		logger.Warn("no API clients configured; set TURNEVAL_ADMIN_API_KEY or TURNEVAL_API_KEYS")
	}

	cache := reportcache.New(cfg.ReportCacheTTL, cfg.ReportCacheMaxEntries)
	broker := server.NewBroker(logger)

	// The broker is always a hook; public hooks are adapted to the internal interface.
	hooks := []evaluations.Hook{broker}
	for _, h := range o.reportHooks {
		hooks = append(hooks, &reportHookAdapter{hook: h})
	}
	evalSvc := evaluations.New(evaluator, cache, hooks, cfg.HookTimeout, logger)

	mcpSrv := mcp.New(evalSvc, logger, version)

	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	srv := server.New(server.ServerConfig{
		EvalSvc:             evalSvc,
		JWTMgr:              jwtMgr,
		Keyring:             keyring,
		Logger:              logger,
		Limiter:             limiter,
		Broker:              broker,
		MCPServer:           mcpSrv.MCPServer(),
		MetricsHandler:      providers.MetricsHandler,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         api.OpenAPISpec,
		Middlewares:         o.middlewares,
	})

	return &App{
		cfg:          cfg,
		srv:          srv,
		evalSvc:      evalSvc,
		cache:        cache,
		limiter:      limiter,
		otelShutdown: providers.Shutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// newKeyring builds the client keyring from the admin key and TURNEVAL_API_KEYS.
func newKeyring(cfg config.Config) (*auth.Keyring, error) {
	keys, err := auth.ParseClientKeys(cfg.APIKeys)
	if err != nil {
		return nil, err
	}
	if cfg.AdminAPIKey != "" {
		keys = append(keys, auth.ClientKey{
			Client: auth.Client{ID: AdminClientID, Role: model.ClientAdmin},
			APIKey: cfg.AdminAPIKey,
		})
	}
	return auth.NewKeyring(keys)
}

// Handler returns the root HTTP handler, for serving the App on a custom
// listener or in tests.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run starts the HTTP server, then blocks until ctx is cancelled or a fatal
// server error occurs. On return, Shutdown is called automatically, so callers
// should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		_ = a.Shutdown(context.Background())
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown performs a two-phase graceful shutdown:
// (1) stop accepting HTTP requests and drain in-flight,
// (2) wait for pending report hooks.
// It then stops the cache, the rate limiter and the OTEL providers.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("turneval shutting down")

	// Phase 1: HTTP drain.
	httpCtx, httpCancel := contextWithOptionalTimeout(ctx, shutdownPhaseTimeout)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	httpCancel()

	// Phase 2: hook drain.
	hookCtx, hookCancel := contextWithOptionalTimeout(ctx, shutdownPhaseTimeout)
	drainErr := a.evalSvc.Drain(hookCtx)
	hookCancel()
	if drainErr != nil {
		a.logger.Error("report hooks still running at shutdown", "error", drainErr)
	}

	a.cache.Close()
	if err := a.limiter.Close(); err != nil {
		a.logger.Warn("rate limiter close", "error", err)
	}
	if err := a.otelShutdown(context.Background()); err != nil {
		a.logger.Warn("telemetry shutdown", "error", err)
	}

	a.logger.Info("turneval stopped")
	if drainErr != nil {
		return fmt.Errorf("hook drain: %w", drainErr)
	}
	return nil
}

// contextWithOptionalTimeout keeps the parent's deadline when it has one.
func contextWithOptionalTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := parent.Deadline(); ok {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}

// reportHookAdapter wraps a turneval.ReportHook to satisfy evaluations.Hook.
// It converts the internal report to the public type at the boundary.
type reportHookAdapter struct {
	hook ReportHook
}

func (a *reportHookAdapter) OnReport(ctx context.Context, r model.EvaluationReport) error {
	return a.hook.OnReport(ctx, toPublicReport(r))
}

func toPublicReport(r model.EvaluationReport) Report {
	issues := make([]Issue, 0, len(r.Issues))
	for _, iss := range r.Issues {
		issues = append(issues, Issue{
			Category:    string(iss.Category),
			Kind:        string(iss.Kind),
			Severity:    Severity(iss.Severity),
			Title:       iss.Title,
			Description: iss.Description,
			Evidence:    iss.Evidence,
			Suggestion:  iss.Suggestion,
		})
	}
	return Report{
		EvaluationID:     r.EvaluationID,
		MessageID:        r.MessageID,
		AgentName:        r.AgentName,
		ModelName:        r.ModelName,
		Timestamp:        r.Timestamp,
		GenerationTimeMs: r.GenerationTimeMs,
		OverallScore:     r.OverallScore,
		Issues:           issues,
		Recommendations:  append([]string(nil), r.Recommendations...),
	}
}
