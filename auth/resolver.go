package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/todos/observe"
)

// KeyFetcher fetches a signing key from its source.
type KeyFetcher interface {
	FetchSigningKey(ctx context.Context, kid string) (*KeyEntry, error)
}

// DefaultResolveTimeout bounds a shared fetch once it is detached from the
// request that started it.
const DefaultResolveTimeout = 30 * time.Second

// KeyResolver finds the verification key for a kid: from the cache when
// present, otherwise by a fetch that concurrent callers for the same kid
// share.
type KeyResolver struct {
	cache   *KeyCache
	fetcher KeyFetcher
	timeout time.Duration
	log     observe.Logger
	group   singleflight.Group
}

// ResolverOption configures a KeyResolver.
type ResolverOption func(*KeyResolver)

// WithResolverLogger sets the logger for cache write failures.
func WithResolverLogger(l observe.Logger) ResolverOption {
	return func(r *KeyResolver) {
		if l != nil {
			r.log = l
		}
	}
}

// NewKeyResolver creates a resolver. A nil cache disables caching.
func NewKeyResolver(cache *KeyCache, fetcher KeyFetcher, opts ...ResolverOption) *KeyResolver {
	if cache == nil {
		cache = NewKeyCache(nil, 0)
	}
	r := &KeyResolver{
		cache:   cache,
		fetcher: fetcher,
		timeout: DefaultResolveTimeout,
		log:     observe.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the key entry for kid.
//
// The fetch runs detached from ctx so that one caller giving up does not
// fail the others waiting on it; only a fully validated entry is inserted.
// Resolve itself returns as soon as ctx is done.
func (r *KeyResolver) Resolve(ctx context.Context, kid string) (*KeyEntry, error) {
	if e, ok := r.cache.Lookup(ctx, kid); ok {
		return e, nil
	}

	ch := r.group.DoChan(kid, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		if e, ok := r.cache.Lookup(fctx, kid); ok {
			return e, nil
		}
		e, err := r.fetcher.FetchSigningKey(fctx, kid)
		if err != nil {
			return nil, err
		}
		// A failed insert still yields a usable key.
		e, err = r.cache.Insert(fctx, kid, e)
		if err != nil {
			r.log.Warn(fctx, "key cache write failed",
				observe.Field{Key: "kid", Value: kid},
				observe.Field{Key: "error_kind", Value: "key_cache_write"},
				observe.Err(err))
		}
		return e, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*KeyEntry), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrKeySourceUnavailable, ctx.Err())
	}
}
