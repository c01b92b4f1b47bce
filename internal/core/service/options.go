package service

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/order-pipeline/internal/core/domain"
	"github.com/rl1809/order-pipeline/internal/observability"
	"github.com/rl1809/order-pipeline/internal/port"
)

const tracerName = "github.com/rl1809/order-pipeline/internal/core/service"

const defaultParallelism = 8

type options struct {
	log               *zap.Logger
	metrics           *observability.Metrics
	tracer            trace.Tracer
	idempotency       port.IdempotencyGuard
	lowStockThreshold int
	parallelism       int
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithIdempotency rejects placements whose request id was already seen.
func WithIdempotency(g port.IdempotencyGuard) Option {
	return func(o *options) { o.idempotency = g }
}

func WithLowStockThreshold(n int) Option {
	return func(o *options) { o.lowStockThreshold = n }
}

// WithParallelism bounds how many messages of a batch are processed at once.
func WithParallelism(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		log:               zap.NewNop(),
		lowStockThreshold: domain.DefaultLowStockThreshold,
		parallelism:       defaultParallelism,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	return o
}
