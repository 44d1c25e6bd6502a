package turneval

import (
	"context"
	"net/http"
)

// ReportHook receives async notifications for every new evaluation report.
// Multiple hooks may be registered via multiple WithReportHook calls.
// Hook methods run in goroutines with a timeout (TURNEVAL_HOOK_TIMEOUT).
// Failures are logged but do not fail the originating request.
type ReportHook interface {
	OnReport(ctx context.Context, report Report) error
}

// Middleware wraps the root HTTP handler.
// Applied outermost (before routing), so it sees all requests including /health.
// Multiple middlewares are applied in registration order (first-registered = outermost).
type Middleware = func(http.Handler) http.Handler
