package auth

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/todos/health"
	"github.com/jonwraymond/todos/internal/testutil/jwkstest"
	"github.com/jonwraymond/todos/resilience"
)

func TestFetchSigningKey(t *testing.T) {
	k := jwkstest.NewKey(t, "abc123")
	srv := jwkstest.NewServer(t, jwkstest.NewKey(t, "other"), k)
	f := NewJWKSFetcher(JWKSConfig{URL: srv.JWKSURL()})

	e, err := f.FetchSigningKey(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("FetchSigningKey() error = %v", err)
	}
	if e.KeyID != "abc123" || e.PublicKey.N.Cmp(k.Private.N) != 0 {
		t.Errorf("selected wrong key %+v", e)
	}
}

func TestFetchSigningKey_Selection(t *testing.T) {
	k := jwkstest.NewKey(t, "abc123")
	entry := func(mutate func(map[string]any)) map[string]any {
		e := k.JWK()
		mutate(e)
		return e
	}

	tests := []struct {
		name    string
		entries []map[string]any
		wantErr error
	}{
		{"match", []map[string]any{k.JWK()}, nil},
		{"wrong use", []map[string]any{entry(func(e map[string]any) { e["use"] = "enc" })}, ErrKeyNotFound},
		{"wrong kty", []map[string]any{entry(func(e map[string]any) { e["kty"] = "EC" })}, ErrKeyNotFound},
		{"no x5c", []map[string]any{entry(func(e map[string]any) { delete(e, "x5c") })}, ErrKeyNotFound},
		{"empty x5c", []map[string]any{entry(func(e map[string]any) { e["x5c"] = []string{} })}, ErrKeyNotFound},
		{"other kid", []map[string]any{jwkstest.NewKey(t, "other").JWK()}, ErrKeyNotFound},
		{"empty set", []map[string]any{}, ErrKeyNotFound},
		{"first qualifying entry wins", []map[string]any{
			entry(func(e map[string]any) { e["use"] = "enc" }),
			k.JWK(),
		}, nil},
		{"bad certificate", []map[string]any{entry(func(e map[string]any) { e["x5c"] = []string{"bm9wZQ=="} })}, ErrKeySourceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := jwkstest.NewServer(t)
			srv.SetEntries(tt.entries...)
			f := NewJWKSFetcher(JWKSConfig{URL: srv.JWKSURL()})

			_, err := f.FetchSigningKey(context.Background(), "abc123")
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("FetchSigningKey() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("FetchSigningKey() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFetchSigningKey_Unavailable(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*jwkstest.Server)
	}{
		{"server error", func(s *jwkstest.Server) { s.SetStatus(http.StatusInternalServerError) }},
		{"not found", func(s *jwkstest.Server) { s.SetStatus(http.StatusNotFound) }},
		{"not json", func(s *jwkstest.Server) { s.SetBody("<html>") }},
		{"no keys field", func(s *jwkstest.Server) { s.SetBody(`{"other":[]}`) }},
		{"slow", func(s *jwkstest.Server) { s.SetDelay(time.Second) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := jwkstest.NewServer(t, jwkstest.NewKey(t, "abc123"))
			tt.setup(srv)
			f := NewJWKSFetcher(JWKSConfig{URL: srv.JWKSURL(), Timeout: 50 * time.Millisecond})

			_, err := f.FetchSigningKey(context.Background(), "abc123")
			if !errors.Is(err, ErrKeySourceUnavailable) {
				t.Fatalf("FetchSigningKey() error = %v, want ErrKeySourceUnavailable", err)
			}
			if !IsRetryable(err) {
				t.Error("unavailable key source should be retryable")
			}
		})
	}
}

func TestFetchSigningKey_Unreachable(t *testing.T) {
	srv := jwkstest.NewServer(t)
	url := srv.JWKSURL()
	srv.Close()

	f := NewJWKSFetcher(JWKSConfig{URL: url, Timeout: time.Second})
	if _, err := f.FetchSigningKey(context.Background(), "abc123"); !errors.Is(err, ErrKeySourceUnavailable) {
		t.Fatalf("FetchSigningKey() error = %v, want ErrKeySourceUnavailable", err)
	}
}

// stallingTransport blocks its first round trip past the caller's deadline,
// ignoring the request context, then fails.
type stallingTransport struct {
	calls    atomic.Int32
	finished atomic.Bool
}

func (s *stallingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if s.calls.Add(1) == 1 {
		time.Sleep(200 * time.Millisecond)
		s.finished.Store(true)
		return nil, errors.New("connection reset by peer")
	}
	return http.DefaultTransport.RoundTrip(req)
}

func TestFetchSigningKey_TimedOutAttemptFinishesBeforeRetry(t *testing.T) {
	srv := jwkstest.NewServer(t, jwkstest.NewKey(t, "abc123"))
	rt := &stallingTransport{}
	f := NewJWKSFetcher(JWKSConfig{
		URL:        srv.JWKSURL(),
		Timeout:    50 * time.Millisecond,
		Retries:    1,
		HTTPClient: &http.Client{Transport: rt},
	})

	e, err := f.FetchSigningKey(context.Background(), "abc123")
	if !rt.finished.Load() {
		t.Fatal("FetchSigningKey returned while the timed-out attempt was still running")
	}
	if err != nil {
		t.Fatalf("FetchSigningKey() error = %v", err)
	}
	if e.KeyID != "abc123" {
		t.Errorf("KeyID = %q", e.KeyID)
	}
	if got := rt.calls.Load(); got != 2 {
		t.Errorf("round trips = %d, want 2", got)
	}
}

func TestFetchSigningKey_Retries(t *testing.T) {
	srv := jwkstest.NewServer(t, jwkstest.NewKey(t, "abc123"))
	srv.SetStatus(http.StatusServiceUnavailable)
	f := NewJWKSFetcher(JWKSConfig{URL: srv.JWKSURL(), Retries: 2})

	if _, err := f.FetchSigningKey(context.Background(), "abc123"); !errors.Is(err, ErrKeySourceUnavailable) {
		t.Fatalf("FetchSigningKey() error = %v", err)
	}
	if got := srv.Fetches(); got != 3 {
		t.Errorf("fetches = %d, want 3", got)
	}
}

func TestFetchSigningKey_NotFoundIsNotRetried(t *testing.T) {
	srv := jwkstest.NewServer(t, jwkstest.NewKey(t, "abc123"))
	f := NewJWKSFetcher(JWKSConfig{URL: srv.JWKSURL(), Retries: 2})

	if _, err := f.FetchSigningKey(context.Background(), "missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("FetchSigningKey() error = %v", err)
	}
	if got := srv.Fetches(); got != 1 {
		t.Errorf("fetches = %d, want 1", got)
	}
}

func TestFetchSigningKey_CircuitBreaker(t *testing.T) {
	srv := jwkstest.NewServer(t, jwkstest.NewKey(t, "abc123"))
	srv.SetStatus(http.StatusBadGateway)
	f := NewJWKSFetcher(JWKSConfig{URL: srv.JWKSURL(), BreakerThreshold: 2, BreakerReset: time.Hour})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = f.FetchSigningKey(ctx, "abc123")
	}
	_, err := f.FetchSigningKey(ctx, "abc123")
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("FetchSigningKey() error = %v, want ErrCircuitOpen", err)
	}
	if !errors.Is(err, ErrKeySourceUnavailable) {
		t.Error("open circuit should surface as an unavailable key source")
	}
	if got := srv.Fetches(); got != 2 {
		t.Errorf("fetches = %d, want 2", got)
	}
}

func TestFetchSigningKey_RateLimit(t *testing.T) {
	srv := jwkstest.NewServer(t, jwkstest.NewKey(t, "abc123"))
	f := NewJWKSFetcher(JWKSConfig{URL: srv.JWKSURL(), RateLimit: 0.001, RateBurst: 1})
	ctx := context.Background()

	if _, err := f.FetchSigningKey(ctx, "abc123"); err != nil {
		t.Fatalf("first fetch error = %v", err)
	}
	_, err := f.FetchSigningKey(ctx, "abc123")
	if !errors.Is(err, resilience.ErrRateLimitExceeded) || !errors.Is(err, ErrKeySourceUnavailable) {
		t.Fatalf("second fetch error = %v, want rate limited", err)
	}
	if got := srv.Fetches(); got != 1 {
		t.Errorf("fetches = %d, want 1", got)
	}
}

func TestJWKSFetcher_Check(t *testing.T) {
	srv := jwkstest.NewServer(t, jwkstest.NewKey(t, "abc123"))
	f := NewJWKSFetcher(JWKSConfig{URL: srv.JWKSURL()})

	if f.Name() != "jwks" {
		t.Errorf("Name() = %q", f.Name())
	}

	res := f.Check(context.Background())
	if res.Status != health.StatusHealthy {
		t.Fatalf("Check() status = %v, want healthy: %s", res.Status, res.Message)
	}
	if res.Details["signing_keys"] != 1 {
		t.Errorf("signing_keys = %v, want 1", res.Details["signing_keys"])
	}

	srv.SetEntries(map[string]any{"kty": "EC", "use": "sig", "kid": "ec"})
	if res := f.Check(context.Background()); res.Status != health.StatusDegraded {
		t.Errorf("Check() status = %v, want degraded", res.Status)
	}

	srv.SetStatus(http.StatusInternalServerError)
	if res := f.Check(context.Background()); res.Status != health.StatusUnhealthy {
		t.Errorf("Check() status = %v, want unhealthy", res.Status)
	}
}

func TestJWKSFetcher_CheckReportsFetchTokens(t *testing.T) {
	srv := jwkstest.NewServer(t, jwkstest.NewKey(t, "abc123"))

	limited := NewJWKSFetcher(JWKSConfig{URL: srv.JWKSURL(), RateLimit: 0.001, RateBurst: 2})
	if _, err := limited.FetchSigningKey(context.Background(), "abc123"); err != nil {
		t.Fatal(err)
	}
	res := limited.Check(context.Background())
	tokens, ok := res.Details["fetch_tokens"].(float64)
	if !ok {
		t.Fatalf("fetch_tokens missing from details %v", res.Details)
	}
	if tokens < 0.9 || tokens > 1.1 {
		t.Errorf("fetch_tokens = %v, want about 1 after one of two tokens is spent", tokens)
	}

	unlimited := NewJWKSFetcher(JWKSConfig{URL: srv.JWKSURL()})
	if _, ok := unlimited.Check(context.Background()).Details["fetch_tokens"]; ok {
		t.Error("fetch_tokens should be absent without a rate limit")
	}
}
