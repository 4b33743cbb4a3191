package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonwraymond/todos/health"
	"github.com/jonwraymond/todos/observe"
	"github.com/jonwraymond/todos/resilience"
)

// maxKeySetBytes bounds the key set response body.
const maxKeySetBytes = 1 << 20

// JWKSConfig configures a JWKSFetcher.
type JWKSConfig struct {
	// URL of the published key set. Required.
	URL string

	// Timeout bounds each fetch attempt. Default: 10s.
	Timeout time.Duration

	// Retries is the number of extra attempts after a failed fetch. Only an
	// unavailable key source is retried. Default: 0.
	Retries int

	// RateLimit caps key set requests per second across all kids; zero
	// disables the limit. Tokens naming random kids would otherwise turn
	// into one request each.
	RateLimit float64
	RateBurst int

	// BreakerThreshold opens a circuit after that many consecutive
	// unavailable fetches; zero disables the breaker.
	BreakerThreshold int
	BreakerReset     time.Duration

	// HTTPClient defaults to a client with no timeout of its own; attempts
	// are bounded by Timeout.
	HTTPClient *http.Client

	// Middleware instruments fetches. Default: no-op.
	Middleware *observe.Middleware
}

// JWKSFetcher reads the published key set and selects signing keys.
type JWKSFetcher struct {
	config JWKSConfig
	exec   *resilience.Executor
	now    func() time.Time
}

// NewJWKSFetcher creates a fetcher.
func NewJWKSFetcher(config JWKSConfig) *JWKSFetcher {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if config.Middleware == nil {
		config.Middleware = observe.NopMiddleware()
	}
	config.Middleware = config.Middleware.WithClassifier(Kind).WithClientKinds(Kind(ErrKeyNotFound))

	opts := []resilience.ExecutorOption{resilience.WithTimeout(config.Timeout)}
	if config.Retries > 0 {
		opts = append(opts, resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{
			MaxAttempts:  config.Retries + 1,
			InitialDelay: 200 * time.Millisecond,
			Jitter:       true,
			RetryIf:      isTransient,
		})))
	}
	if config.BreakerThreshold > 0 {
		opts = append(opts, resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			MaxFailures:  config.BreakerThreshold,
			ResetTimeout: config.BreakerReset,
			IsFailure:    isTransient,
		})))
	}
	if config.RateLimit > 0 {
		opts = append(opts, resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})))
	}

	return &JWKSFetcher{
		config: config,
		exec:   resilience.NewExecutor(opts...),
		now:    time.Now,
	}
}

func isTransient(err error) bool {
	return IsRetryable(err) || errors.Is(err, resilience.ErrTimeout)
}

// jwk is one published key. Only the fields used for selection are decoded.
type jwk struct {
	Use string   `json:"use"`
	Kty string   `json:"kty"`
	Kid string   `json:"kid"`
	Alg string   `json:"alg"`
	X5c []string `json:"x5c"`
}

type keySet struct {
	Keys []jwk `json:"keys"`
}

// FetchSigningKey returns the first published entry with use "sig", kty
// "RSA", the requested kid and a certificate chain.
//
// It fails with ErrKeyNotFound when no entry qualifies and with
// ErrKeySourceUnavailable when the key set cannot be fetched or decoded.
func (f *JWKSFetcher) FetchSigningKey(ctx context.Context, kid string) (*KeyEntry, error) {
	var entry *KeyEntry
	meta := observe.OpMeta{Component: "jwks", Operation: "fetch"}
	err := f.config.Middleware.Run(ctx, meta, func(ctx context.Context) error {
		var set *keySet
		err := f.exec.Execute(ctx, func(ctx context.Context) error {
			s, err := f.fetch(ctx)
			if err == nil {
				set = s
			}
			return err
		})
		if err != nil {
			if Kind(err) == KindInternal {
				err = fmt.Errorf("%w: %w", ErrKeySourceUnavailable, err)
			}
			return err
		}
		entry, err = f.selectKey(set, kid)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (f *JWKSFetcher) selectKey(set *keySet, kid string) (*KeyEntry, error) {
	for _, k := range set.Keys {
		if k.Use != "sig" || k.Kty != "RSA" || k.Kid != kid || len(k.X5c) == 0 {
			continue
		}
		e, err := NewKeyEntry(kid, k.X5c[0], f.now())
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrKeySourceUnavailable, err)
		}
		return e, nil
	}
	return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
}

func (f *JWKSFetcher) fetch(ctx context.Context) (*keySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeySourceUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.config.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeySourceUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrKeySourceUnavailable, resp.StatusCode)
	}

	var set keySet
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxKeySetBytes)).Decode(&set); err != nil {
		return nil, fmt.Errorf("%w: decode key set: %w", ErrKeySourceUnavailable, err)
	}
	if set.Keys == nil {
		return nil, fmt.Errorf("%w: key set has no keys field", ErrKeySourceUnavailable)
	}
	return &set, nil
}

// Name implements health.Checker.
func (f *JWKSFetcher) Name() string { return "jwks" }

// Check implements health.Checker. It fetches the key set directly,
// bypassing the rate limiter and breaker.
func (f *JWKSFetcher) Check(ctx context.Context) health.Result {
	var set *keySet
	err := resilience.ExecuteWithTimeout(ctx, f.config.Timeout, func(ctx context.Context) error {
		var err error
		set, err = f.fetch(ctx)
		return err
	})
	if err != nil {
		return health.Unhealthy("key set unavailable", err)
	}

	signing := 0
	for _, k := range set.Keys {
		if k.Use == "sig" && k.Kty == "RSA" && len(k.X5c) > 0 {
			signing++
		}
	}
	details := map[string]any{
		"keys":         len(set.Keys),
		"signing_keys": signing,
	}
	if rl := f.exec.RateLimiter(); rl != nil {
		details["fetch_tokens"] = rl.Tokens()
	}
	res := health.Healthy("key set reachable").WithDetails(details)
	if signing == 0 {
		res.Status = health.StatusDegraded
		res.Message = "key set has no usable signing keys"
	}
	return res
}

var _ health.Checker = (*JWKSFetcher)(nil)
