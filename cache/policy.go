package cache

import "time"

// Policy configures entry lifetimes.
type Policy struct {
	// TTL is applied when Add is called without one.
	// Zero keeps entries for the lifetime of the backend.
	TTL time.Duration

	// MaxTTL clamps any TTL. Zero means no maximum.
	MaxTTL time.Duration

	// CleanupInterval is how often the memory backend sweeps expired
	// entries. Default: 1 minute.
	CleanupInterval time.Duration
}

// DefaultPolicy keeps entries forever.
func DefaultPolicy() Policy {
	return Policy{CleanupInterval: time.Minute}
}

// ExpiringPolicy expires entries after ttl.
func ExpiringPolicy(ttl time.Duration) Policy {
	return Policy{TTL: ttl, CleanupInterval: time.Minute}
}

// Expires reports whether entries written under this policy ever expire.
func (p Policy) Expires() bool {
	return p.TTL > 0
}

// EffectiveTTL returns the TTL to use, applying the default and clamping.
func (p Policy) EffectiveTTL(override time.Duration) time.Duration {
	ttl := override
	if ttl <= 0 {
		ttl = p.TTL
	}
	if p.MaxTTL > 0 && (ttl <= 0 || ttl > p.MaxTTL) {
		ttl = p.MaxTTL
	}
	return ttl
}

func (p Policy) withDefaults() Policy {
	if p.CleanupInterval <= 0 {
		p.CleanupInterval = time.Minute
	}
	return p
}
