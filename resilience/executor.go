package resilience

import (
	"context"
	"time"
)

// Executor composes the guards around a call. From the outside in:
// rate limiter, bulkhead, circuit breaker, retry, timeout. The breaker
// therefore sees one outcome per Execute regardless of how many attempts
// the retry made.
type Executor struct {
	rateLimiter    *RateLimiter
	bulkhead       *Bulkhead
	circuitBreaker *CircuitBreaker
	retry          *Retry
	timeout        *Timeout
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates an Executor. With no options it calls op directly.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) { e.rateLimiter = rl }
}

func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) { e.bulkhead = b }
}

func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) { e.circuitBreaker = cb }
}

func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) { e.retry = r }
}

// WithTimeout bounds every attempt by d.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = NewTimeout(d) }
}

// Execute runs op through every configured guard.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	call := op
	wrap := func(g interface {
		Execute(context.Context, func(context.Context) error) error
	}) {
		inner := call
		call = func(ctx context.Context) error { return g.Execute(ctx, inner) }
	}

	if e.timeout != nil {
		wrap(e.timeout)
	}
	if e.retry != nil {
		wrap(e.retry)
	}
	if e.circuitBreaker != nil {
		wrap(e.circuitBreaker)
	}
	if e.bulkhead != nil {
		wrap(e.bulkhead)
	}
	if e.rateLimiter != nil {
		wrap(e.rateLimiter)
	}
	return call(ctx)
}

// RateLimiter returns the configured limiter, or nil.
func (e *Executor) RateLimiter() *RateLimiter {
	return e.rateLimiter
}

// CircuitBreaker returns the configured breaker, or nil.
func (e *Executor) CircuitBreaker() *CircuitBreaker {
	return e.circuitBreaker
}
