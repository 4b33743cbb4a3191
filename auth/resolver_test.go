package auth

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/todos/cache"
	"github.com/jonwraymond/todos/internal/testutil/jwkstest"
	"github.com/jonwraymond/todos/observe"
)

type stubFetcher struct {
	calls   atomic.Int64
	release chan struct{}
	fn      func(ctx context.Context, kid string) (*KeyEntry, error)
}

func (s *stubFetcher) FetchSigningKey(ctx context.Context, kid string) (*KeyEntry, error) {
	s.calls.Add(1)
	if s.release != nil {
		<-s.release
	}
	return s.fn(ctx, kid)
}

func entryFetcher(t *testing.T) *stubFetcher {
	return &stubFetcher{fn: func(_ context.Context, kid string) (*KeyEntry, error) {
		return newEntry(t, kid), nil
	}}
}

func memoryKeyCache() *KeyCache {
	return NewKeyCache(cache.NewMemoryCache(cache.DefaultPolicy()), 0)
}

func TestKeyResolver_CachesFetchedKey(t *testing.T) {
	f := entryFetcher(t)
	r := NewKeyResolver(memoryKeyCache(), f)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		e, err := r.Resolve(ctx, "abc123")
		if err != nil || e.KeyID != "abc123" {
			t.Fatalf("Resolve() = %v, %v", e, err)
		}
	}
	if got := f.calls.Load(); got != 1 {
		t.Errorf("fetches = %d, want 1", got)
	}
}

func TestKeyResolver_FailuresAreNotCached(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	f := &stubFetcher{fn: func(_ context.Context, kid string) (*KeyEntry, error) {
		if fail.Load() {
			return nil, ErrKeySourceUnavailable
		}
		return newEntry(t, kid), nil
	}}
	r := NewKeyResolver(memoryKeyCache(), f)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, "abc123"); !errors.Is(err, ErrKeySourceUnavailable) {
		t.Fatalf("Resolve() error = %v", err)
	}
	fail.Store(false)
	if _, err := r.Resolve(ctx, "abc123"); err != nil {
		t.Fatalf("Resolve() after recovery error = %v", err)
	}
	if got := f.calls.Load(); got != 2 {
		t.Errorf("fetches = %d, want 2", got)
	}
}

func TestKeyResolver_ConcurrentMissesShareOneFetch(t *testing.T) {
	f := entryFetcher(t)
	f.release = make(chan struct{})
	r := NewKeyResolver(NewKeyCache(nil, 0), f)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Resolve(context.Background(), "abc123")
			errs <- err
		}()
	}

	// Let the callers pile up on the in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	close(f.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
	}
	if got := f.calls.Load(); got != 1 {
		t.Errorf("fetches = %d, want 1", got)
	}
}

func TestKeyResolver_CallerCancellation(t *testing.T) {
	f := entryFetcher(t)
	f.release = make(chan struct{})
	kc := memoryKeyCache()
	r := NewKeyResolver(kc, f)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Resolve(ctx, "abc123")
	if !errors.Is(err, ErrKeySourceUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Resolve() error = %v, want unavailable wrapping deadline", err)
	}

	// The detached fetch still completes and populates the cache.
	close(f.release)
	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := kc.Lookup(context.Background(), "abc123"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("fetch started by a cancelled caller should still be cached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestKeyResolver_AgainstKeySet(t *testing.T) {
	srv := jwkstest.NewServer(t, jwkstest.NewKey(t, "abc123"))
	srv.SetDelay(50 * time.Millisecond)
	r := NewKeyResolver(memoryKeyCache(), NewJWKSFetcher(JWKSConfig{URL: srv.JWKSURL()}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Resolve(context.Background(), "abc123"); err != nil {
				t.Errorf("Resolve() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if _, err := r.Resolve(context.Background(), "abc123"); err != nil {
		t.Fatal(err)
	}
	if got := srv.Fetches(); got != 1 {
		t.Errorf("fetches = %d, want 1", got)
	}
}

func TestKeyResolver_LogsCacheWriteFailure(t *testing.T) {
	var buf bytes.Buffer
	f := entryFetcher(t)
	r := NewKeyResolver(NewKeyCache(failingCache{}, 0), f,
		WithResolverLogger(observe.NewLoggerWithWriter("info", &buf)))

	e, err := r.Resolve(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if e == nil || e.KeyID != "abc123" {
		t.Fatalf("Resolve() = %+v, want the fetched entry", e)
	}

	out := buf.String()
	for _, want := range []string{`"level":"warn"`, `"error_kind":"key_cache_write"`, `"kid":"abc123"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
}
