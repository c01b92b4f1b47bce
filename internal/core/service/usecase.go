package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/order-pipeline/internal/core/domain"
)

const spanPrefix = "UC."

// useCase carries the span, timer and logger of one service call.
type useCase struct {
	name   string
	opts   *options
	span   trace.Span
	start  time.Time
	log    *zap.Logger
	fields []zap.Field
}

func (o *options) begin(ctx context.Context, name, spanName string, attrs ...attribute.KeyValue) (context.Context, *useCase) {
	ctx, span := o.tracer.Start(ctx, spanPrefix+spanName,
		trace.WithAttributes(append(attrs, attribute.String("use_case", name))...))

	logger := o.log.With(zap.String("use_case", name))
	if sc := span.SpanContext(); sc.IsValid() {
		logger = logger.With(
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	return ctx, &useCase{name: name, opts: o, span: span, start: time.Now(), log: logger}
}

// with adds fields to the closing use_case_done line.
func (u *useCase) with(fields ...zap.Field) {
	u.fields = append(u.fields, fields...)
}

func (u *useCase) done(err error) {
	lat := time.Since(u.start).Seconds()
	outcome, status := classify(err)

	u.opts.metrics.ObserveUseCase(u.name, outcome, lat)

	if err != nil {
		u.span.RecordError(err)
		u.span.SetStatus(codes.Error, status)
	} else {
		u.span.SetStatus(codes.Ok, status)
	}
	u.span.End()

	fields := append(u.fields,
		zap.String("outcome", outcome),
		zap.String("status", status),
		zap.Float64("latency_seconds", lat),
	)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	u.log.Info("use_case_done", fields...)
}

// classify maps an error to a metric outcome and a short status text.
func classify(err error) (outcome, status string) {
	switch {
	case err == nil:
		return "success", "OK"
	case errors.Is(err, domain.ErrValidation):
		return "rejected", "VALIDATION"
	case errors.Is(err, domain.ErrNotFound):
		return "rejected", "NOT_FOUND"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "rejected", "INSUFFICIENT_STOCK"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return "rejected", "DUPLICATE_REQUEST"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "rejected", "INVALID_TRANSITION"
	case errors.Is(err, domain.ErrAlreadyExists):
		return "rejected", "ALREADY_EXISTS"
	default:
		return "error", "INTERNAL"
	}
}
