package cache

import (
	"context"
	"time"
)

// NopCache never stores anything. Selecting it disables key caching, so
// every verification fetches the key set.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]byte, bool) { return nil, false }

func (NopCache) Add(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, nil
}

func (NopCache) Delete(context.Context, string) error { return nil }

var _ Cache = NopCache{}
