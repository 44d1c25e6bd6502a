// Package evaluations provides the evaluation operations shared by the HTTP
// API and the MCP server: validation, deduplicated evaluation, report
// caching, and hook fan-out.
package evaluations

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/rolecraft/turneval/internal/evaluation"
	"github.com/rolecraft/turneval/internal/model"
	"github.com/rolecraft/turneval/internal/reportcache"
	"github.com/rolecraft/turneval/internal/telemetry"
)

// Hook receives every new report. Hooks are called asynchronously in
// goroutines with their own timeout; failures are logged and never fail
// the evaluation.
type Hook interface {
	OnReport(ctx context.Context, report model.EvaluationReport) error
}

// Service encapsulates evaluation logic shared by HTTP and MCP handlers.
type Service struct {
	evaluator   *evaluation.Evaluator
	cache       *reportcache.Cache
	hooks       []Hook
	hookTimeout time.Duration
	logger      *slog.Logger

	group singleflight.Group

	// hooksMu orders hooksWG.Add against Drain: once draining is set no new
	// hook goroutines start.
	hooksMu  sync.Mutex
	draining bool
	hooksWG  sync.WaitGroup

	dedupHits    metric.Int64Counter
	hookFailures metric.Int64Counter
}

// New creates a Service. cache may be nil, in which case reports are not
// retained and Get always misses.
func New(ev *evaluation.Evaluator, cache *reportcache.Cache, hooks []Hook, hookTimeout time.Duration, logger *slog.Logger) *Service {
	meter := telemetry.Meter("turneval/evaluations")
	dedup, _ := meter.Int64Counter("turneval.evaluations.deduplicated",
		metric.WithDescription("Evaluations served from a concurrent identical request"),
	)
	hookFail, _ := meter.Int64Counter("turneval.hooks.failures",
		metric.WithDescription("Report hooks that returned an error"),
	)
	if hookTimeout <= 0 {
		hookTimeout = 10 * time.Second
	}
	return &Service{
		evaluator:    ev,
		cache:        cache,
		hooks:        hooks,
		hookTimeout:  hookTimeout,
		logger:       logger,
		dedupHits:    dedup,
		hookFailures: hookFail,
	}
}

// Evaluate validates the context, evaluates it, stores the report and
// notifies hooks. Concurrent calls with an identical context share one
// evaluation.
func (s *Service) Evaluate(ctx context.Context, ec model.EvaluationContext) (model.EvaluationReport, error) {
	if err := model.ValidateContext(ec); err != nil {
		return model.EvaluationReport{}, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("turneval.message_id", ec.Message.ID))

	key, err := fingerprint(ec)
	if err != nil {
		return model.EvaluationReport{}, err
	}

	// Detach from the caller's cancellation: singleflight hands the first
	// caller's result to every waiter.
	detached := context.WithoutCancel(ctx)
	v, err, shared := s.group.Do(key, func() (any, error) {
		report, err := s.evaluator.Evaluate(detached, ec)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.Put(report)
		}
		s.fireHooks(report)
		return report, nil
	})
	if shared {
		s.dedupHits.Add(ctx, 1)
	}
	if err != nil {
		return model.EvaluationReport{}, fmt.Errorf("evaluations: evaluate: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return model.EvaluationReport{}, err
	}
	return v.(model.EvaluationReport), nil
}

// Get returns the cached report for a message.
func (s *Service) Get(messageID string) (model.EvaluationReport, error) {
	if s.cache == nil {
		return model.EvaluationReport{}, reportcache.ErrNotFound
	}
	return s.cache.Get(messageID)
}

// Recent returns up to limit cached reports, newest first.
func (s *Service) Recent(limit int) []model.EvaluationReport {
	if s.cache == nil {
		return []model.EvaluationReport{}
	}
	return s.cache.Recent(limit)
}

// CachedReports returns how many reports the cache currently holds.
func (s *Service) CachedReports() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.Len()
}

// Config returns the evaluator configuration in effect.
func (s *Service) Config() evaluation.Config {
	return s.evaluator.Config()
}

// Drain blocks until in-flight hook calls finish or ctx is done. Reports
// produced after Drain is called are still returned and cached, but hooks
// are no longer notified of them.
func (s *Service) Drain(ctx context.Context) error {
	s.hooksMu.Lock()
	s.draining = true
	s.hooksMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.hooksWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("evaluations: drain hooks: %w", ctx.Err())
	}
}

func (s *Service) fireHooks(report model.EvaluationReport) {
	if len(s.hooks) == 0 {
		return
	}
	s.hooksMu.Lock()
	if s.draining {
		s.hooksMu.Unlock()
		s.logger.Debug("hooks draining, report not delivered", "message_id", report.MessageID)
		return
	}
	s.hooksWG.Add(1)
	s.hooksMu.Unlock()
	go func() {
		defer s.hooksWG.Done()
		hookCtx, cancel := context.WithTimeout(context.Background(), s.hookTimeout)
		defer cancel()
		for _, h := range s.hooks {
			if err := h.OnReport(hookCtx, report); err != nil {
				s.hookFailures.Add(hookCtx, 1)
				s.logger.Warn("report hook failed", "message_id", report.MessageID, "error", err)
			}
		}
	}()
}

// fingerprint keys singleflight on the full context so that only truly
// identical requests are merged.
func fingerprint(ec model.EvaluationContext) (string, error) {
	data, err := json.Marshal(ec)
	if err != nil {
		return "", fmt.Errorf("evaluations: fingerprint: %w", err)
	}
	h := fnv.New64a()
	_, _ = h.Write(data)
	return ec.Message.ID + ":" + strconv.FormatUint(h.Sum64(), 16), nil
}
