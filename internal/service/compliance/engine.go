// Package compliance runs the registered compliance checkers against phone
// numbers and reduces their verdicts into reports.
package compliance

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/davidleathers/compliance-gateway/internal/domain/compliance"
	"github.com/davidleathers/compliance-gateway/internal/domain/values"
	"github.com/davidleathers/compliance-gateway/internal/infrastructure/telemetry"
	"github.com/davidleathers/compliance-gateway/internal/metrics"
)

const (
	tracerName = "compliance-engine"

	defaultMaxConcurrentNumbers = 10

	// degradedThreshold is the number of errored checkers in one report at
	// which the engine warns about a possible shared outage.
	degradedThreshold = 2
)

// EngineConfig configures the engine.
type EngineConfig struct {
	// MaxConcurrentNumbers bounds how many numbers CheckPhoneNumbers checks at once.
	MaxConcurrentNumbers int
}

// Engine fans a phone number out to every registered checker and joins all
// of them. A checker never cancels, delays or hides another checker's result.
type Engine struct {
	checkers []compliance.Checker
	config   EngineConfig
	logger   *zap.Logger
	metrics  *metrics.Registry
	tracer   trace.Tracer
	now      func() time.Time
}

// NewEngine creates an engine. Reports list results in the order of checkers.
func NewEngine(checkers []compliance.Checker, cfg EngineConfig, logger *zap.Logger, m *metrics.Registry) *Engine {
	if cfg.MaxConcurrentNumbers <= 0 {
		cfg.MaxConcurrentNumbers = defaultMaxConcurrentNumbers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		checkers: append([]compliance.Checker(nil), checkers...),
		config:   cfg,
		logger:   logger,
		metrics:  m,
		tracer:   telemetry.Tracer(tracerName),
		now:      time.Now,
	}
}

// Checkers returns the registered checker names in registration order.
func (e *Engine) Checkers() []string {
	names := make([]string, len(e.checkers))
	for i, c := range e.checkers {
		names[i] = c.Name()
	}
	return names
}

// CheckPhoneNumber runs every checker against phone and returns the report.
// It always returns one result per checker. Cancelling ctx does not stop
// checks already in flight.
func (e *Engine) CheckPhoneNumber(ctx context.Context, phone string, lead *compliance.LeadContext) *compliance.Report {
	ctx = context.WithoutCancel(ctx)
	normalized := values.NormalizePhone(phone)
	start := e.now()

	ctx, span := e.tracer.Start(ctx, "compliance.check_phone_number",
		trace.WithAttributes(
			attribute.String("phone_number", normalized),
			attribute.Int("checkers", len(e.checkers)),
		),
	)
	defer span.End()

	results := make([]compliance.Result, len(e.checkers))

	var g errgroup.Group
	for i, checker := range e.checkers {
		g.Go(func() error {
			results[i] = e.runChecker(ctx, checker, phone, normalized, lead)
			return nil
		})
	}
	_ = g.Wait()

	report := &compliance.Report{
		PhoneNumber: normalized,
		IsCompliant: compliance.Aggregate(results),
		Results:     results,
		Timestamp:   e.now().UTC(),
	}

	errored := report.Errored()
	degraded := errored >= degradedThreshold
	e.metrics.ObserveReport(report.IsCompliant, degraded)
	span.SetAttributes(
		attribute.Bool("is_compliant", report.IsCompliant),
		attribute.Int("errored_checkers", errored),
	)

	logger := telemetry.WithTrace(ctx, e.logger)
	if degraded {
		logger.Warn("Multiple compliance checkers failed for one number",
			zap.String("phone_number", normalized),
			zap.Int("errored", errored),
			zap.Int("checkers", len(e.checkers)),
			zap.Bool("is_compliant", report.IsCompliant),
		)
	}
	logger.Info("Compliance check completed",
		zap.String("phone_number", normalized),
		zap.Bool("is_compliant", report.IsCompliant),
		zap.Int("errored", errored),
		zap.Duration("duration", e.now().Sub(start)),
	)

	return report
}

// runChecker calls one checker and always produces a decided result.
func (e *Engine) runChecker(ctx context.Context, checker compliance.Checker, phone, normalized string, lead *compliance.LeadContext) (result compliance.Result) {
	name := checker.Name()
	policy := checker.FailurePolicy()

	ctx, span := e.tracer.Start(ctx, "compliance.checker",
		trace.WithAttributes(
			attribute.String("checker", name),
			attribute.String("failure_policy", policy.String()),
		),
	)
	defer span.End()

	start := e.now()
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("%s panicked: %v", name, r)
			e.metrics.IncCheckPanic(name)
			e.logger.Error("Compliance checker panicked",
				zap.String("checker", name),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			telemetry.RecordError(span, fmt.Errorf("%s", msg))

			result = *compliance.NewResult(name, normalized, true)
			result.Reasons = append(result.Reasons, msg)
			result.Error = msg
		}
	}()

	res, err := checker.CheckNumber(ctx, phone, lead)
	result = compliance.Settle(name, policy, normalized, res, err)
	elapsed := e.now().Sub(start)

	e.metrics.ObserveCheck(name, elapsed, result.IsCompliant)
	span.SetAttributes(attribute.Bool("is_compliant", result.IsCompliant))
	if err != nil {
		e.metrics.IncCheckError(name, policy.String())
		telemetry.RecordError(span, err)
		telemetry.WithTrace(ctx, e.logger).Warn("Compliance checker failed",
			zap.String("checker", name),
			zap.String("failure_policy", policy.String()),
			zap.Bool("is_compliant", result.IsCompliant),
			zap.Error(err),
		)
	}
	return result
}

// CheckPhoneNumbers checks every number independently, at most
// MaxConcurrentNumbers at a time. Reports are returned in input order.
func (e *Engine) CheckPhoneNumbers(ctx context.Context, phones []string) []*compliance.Report {
	reports := make([]*compliance.Report, len(phones))

	var g errgroup.Group
	g.SetLimit(e.config.MaxConcurrentNumbers)
	for i, phone := range phones {
		g.Go(func() error {
			reports[i] = e.CheckPhoneNumber(ctx, phone, nil)
			return nil
		})
	}
	_ = g.Wait()

	return reports
}

// InitializeAll runs Initialize on every checker that has one. It stops at
// the first failure.
func (e *Engine) InitializeAll(ctx context.Context) error {
	for _, c := range e.checkers {
		initializer, ok := c.(interface{ Initialize(context.Context) error })
		if !ok {
			continue
		}
		if err := initializer.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize %s: %w", c.Name(), err)
		}
	}
	return nil
}
