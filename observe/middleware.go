package observe

import (
	"context"
	"time"
)

// Op is an instrumented unit of work.
type Op func(ctx context.Context) error

// Middleware instruments operations with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Context: the span context is passed to the operation.
//   - Errors: errors from the operation are recorded and returned unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger

	// Classify, when set, labels failures in the log record as error_kind.
	Classify func(error) string

	// clientKinds are error_kind labels for failures the caller caused.
	// They are logged at info rather than error.
	clientKinds map[string]bool
}

// NewMiddleware creates a Middleware. Nil components are replaced by no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = NopTracer()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{tracer: tracer, metrics: metrics, logger: logger}
}

// WithClassifier returns a copy of m that labels failures with fn.
func (m *Middleware) WithClassifier(fn func(error) string) *Middleware {
	c := *m
	c.Classify = fn
	return &c
}

// WithClientKinds returns a copy of m that logs failures classified as one
// of kinds at info level. It has no effect without a classifier.
func (m *Middleware) WithClientKinds(kinds ...string) *Middleware {
	c := *m
	c.clientKinds = make(map[string]bool, len(kinds))
	for _, k := range kinds {
		c.clientKinds[k] = true
	}
	return &c
}

// NopMiddleware returns a Middleware that only runs the operation.
func NopMiddleware() *Middleware {
	return NewMiddleware(nil, nil, nil)
}

// Run executes op inside a span and records its outcome.
func (m *Middleware) Run(ctx context.Context, meta OpMeta, op Op) error {
	ctx, span := m.tracer.StartSpan(ctx, meta)
	start := time.Now()

	err := op(ctx)

	duration := time.Since(start)
	m.tracer.EndSpan(span, err)
	m.metrics.RecordOperation(ctx, meta, duration, err)

	log := m.logger.WithOperation(meta)
	fields := []Field{{Key: "duration_ms", Value: float64(duration.Microseconds()) / 1000}}
	if err != nil {
		fields = append(fields, Err(err))
		kind := ""
		if m.Classify != nil {
			kind = m.Classify(err)
			fields = append(fields, Field{Key: "error_kind", Value: kind})
		}
		if m.clientKinds[kind] {
			log.Info(ctx, "operation failed", fields...)
		} else {
			log.Error(ctx, "operation failed", fields...)
		}
		return err
	}
	log.Debug(ctx, "operation completed", fields...)
	return nil
}

// Logger returns the middleware's logger.
func (m *Middleware) Logger() Logger {
	return m.logger
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}
