// Package evaluation implements the turn evaluation engine: four independent
// analyzers (behavior, context, state, prompt) whose results are combined
// into issues, an overall score and recommendations.
//
// Every analyzer is a pure function of the EvaluationContext and the
// configured thresholds. The Evaluator runs the enabled ones concurrently
// and joins them before aggregating, so a report depends only on its input
// plus the timestamp and evaluation ID taken at call time.
package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/rolecraft/turneval/internal/model"
	"github.com/rolecraft/turneval/internal/telemetry"
)

// UnknownModel is reported when the agent does not name its model.
const UnknownModel = "unknown"

// Evaluator produces EvaluationReports. It is safe for concurrent use.
type Evaluator struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
	tracer trace.Tracer

	duration metric.Float64Histogram
	score    metric.Float64Histogram
	issues   metric.Int64Counter
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the wall clock used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator overrides how evaluation IDs are minted.
func WithIDGenerator(gen func() string) Option {
	return func(e *Evaluator) {
		if gen != nil {
			e.newID = gen
		}
	}
}

// New creates an Evaluator. The config is validated once here.
func New(cfg Config, opts ...Option) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	meter := telemetry.Meter("turneval/evaluation")
	dur, _ := meter.Float64Histogram("turneval.evaluation.duration",
		metric.WithDescription("Time to evaluate one turn (ms)"),
		metric.WithUnit("ms"),
	)
	score, _ := meter.Float64Histogram("turneval.evaluation.score",
		metric.WithDescription("Overall evaluation score (0-100)"),
	)
	issues, _ := meter.Int64Counter("turneval.evaluation.issues",
		metric.WithDescription("Issues raised by evaluations"),
	)

	e := &Evaluator{
		cfg:      cfg,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		tracer:   otel.Tracer("turneval/evaluation"),
		duration: dur,
		score:    score,
		issues:   issues,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the evaluator's configuration.
func (e *Evaluator) Config() Config {
	return e.cfg
}

// Evaluate analyzes one turn. It only fails when ctx is done before the
// analyzers finish.
func (e *Evaluator) Evaluate(ctx context.Context, ec model.EvaluationContext) (model.EvaluationReport, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "evaluation.evaluate", trace.WithAttributes(
		attribute.String("turneval.message_id", ec.Message.ID),
		attribute.String("turneval.agent", ec.Agent.Name),
	))
	defer span.End()

	var (
		behavior = emptyBehavior(model.ReasonBehaviorSkipped)
		contextA = emptyContext()
		state    = emptyState()
		prompt   = emptyPrompt()
	)
	th := e.cfg.Thresholds

	g, gctx := errgroup.WithContext(ctx)
	if e.cfg.Checks.Behavior {
		g.Go(e.run(gctx, model.DimensionBehavior, func() {
			behavior = AnalyzeBehavior(ec, th)
		}, func() {
			behavior = emptyBehavior(model.ReasonBehaviorFailed)
		}))
	}
	if e.cfg.Checks.Context {
		g.Go(e.run(gctx, model.DimensionContext, func() {
			contextA = AnalyzeContext(ec, th)
		}, func() {
			contextA = emptyContext()
		}))
	}
	if e.cfg.Checks.State {
		g.Go(e.run(gctx, model.DimensionState, func() {
			state = AnalyzeState(ec, th)
		}, func() {
			state = emptyState()
		}))
	}
	if e.cfg.Checks.Prompt {
		g.Go(e.run(gctx, model.DimensionPrompt, func() {
			prompt = AnalyzePrompt(ec)
		}, func() {
			prompt = emptyPrompt()
		}))
	}
	if err := g.Wait(); err != nil {
		return model.EvaluationReport{}, fmt.Errorf("evaluation: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return model.EvaluationReport{}, fmt.Errorf("evaluation: %w", err)
	}

	issues := CollectIssues(behavior, contextA, state, prompt, ec.Message.Content)
	overall, breakdown := Score(behavior, contextA, state, prompt, issues)

	modelName := ec.Agent.Model
	if modelName == "" {
		modelName = UnknownModel
	}
	report := model.EvaluationReport{
		EvaluationID:     e.newID(),
		MessageID:        ec.Message.ID,
		AgentName:        ec.Agent.Name,
		ModelName:        modelName,
		Timestamp:        e.now(),
		GenerationTimeMs: ec.GenerationTimeMs,
		Behavior:         behavior,
		Context:          contextA,
		State:            state,
		Prompt:           prompt,
		OverallScore:     overall,
		Issues:           issues,
		Recommendations:  Recommend(issues),
	}
	if e.cfg.Verbosity == VerbosityDetailed {
		report.ScoreBreakdown = &breakdown
	}

	e.record(ctx, report, time.Since(start))
	span.SetAttributes(
		attribute.Float64("turneval.overall_score", overall),
		attribute.Int("turneval.issue_count", len(issues)),
	)
	return report, nil
}

// run wraps one analyzer for the errgroup. A panicking analyzer degrades to
// its fallback instead of failing the whole evaluation.
func (e *Evaluator) run(ctx context.Context, dim model.Dimension, analyze, fallback func()) func() error {
	return func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, span := e.tracer.Start(ctx, "evaluation."+string(dim))
		defer span.End()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("evaluation: analyzer panicked", "dimension", dim, "panic", r)
				span.SetAttributes(attribute.Bool("turneval.analyzer_failed", true))
				fallback()
			}
		}()
		analyze()
		if e.cfg.Verbosity != VerbosityMinimal {
			e.logger.Debug("evaluation: analyzer finished", "dimension", dim)
		}
		return nil
	}
}

func (e *Evaluator) record(ctx context.Context, r model.EvaluationReport, elapsed time.Duration) {
	e.duration.Record(ctx, float64(elapsed.Microseconds())/1000)
	e.score.Record(ctx, r.OverallScore)
	for _, iss := range r.Issues {
		e.issues.Add(ctx, 1, metric.WithAttributes(
			attribute.String("category", string(iss.Category)),
			attribute.String("severity", string(iss.Severity)),
		))
	}
	e.logger.Debug("evaluation: report ready",
		"message_id", r.MessageID,
		"score", r.OverallScore,
		"issues", len(r.Issues),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}
