package turneval

import "log/slog"

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	port        int
	profilePath string
	logger      *slog.Logger
	version     string
	reportHooks []ReportHook
	middlewares []Middleware
}

// WithPort overrides the TCP port from config (TURNEVAL_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithProfile overrides the evaluation profile path from config
// (TURNEVAL_EVALUATION_PROFILE env var).
func WithProfile(path string) Option {
	return func(o *resolvedOptions) { o.profilePath = path }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithReportHook registers a hook that receives every new report.
func WithReportHook(hook ReportHook) Option {
	return func(o *resolvedOptions) { o.reportHooks = append(o.reportHooks, hook) }
}

// WithMiddleware registers an outermost HTTP middleware.
// Applied in registration order: the first-registered middleware is outermost.
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}
