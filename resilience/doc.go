// Package resilience guards calls to upstream dependencies: the identity
// provider's key set endpoint and the task stores.
//
// Each guard is usable on its own or composed through an Executor:
//
//   - RateLimiter caps how often an upstream may be called. A flood of
//     tokens carrying unknown key ids must not turn into a flood of key set
//     requests.
//   - Bulkhead caps how many calls may be in flight at once.
//   - CircuitBreaker fails fast once an upstream keeps failing.
//   - Retry re-runs transient failures with backoff.
//   - Timeout bounds a single attempt.
//
// Example:
//
//	exec := resilience.NewExecutor(
//	    resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{Rate: 5, Burst: 10})),
//	    resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})),
//	    resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{MaxAttempts: 2})),
//	    resilience.WithTimeout(10*time.Second),
//	)
//	err := exec.Execute(ctx, fetchKeySet)
package resilience
