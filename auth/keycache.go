package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gocache "github.com/patrickmn/go-cache"

	"github.com/jonwraymond/todos/cache"
)

// KeyEntry is a verification key selected from the published key set.
// Entries are immutable once built.
type KeyEntry struct {
	KeyID string `json:"kid"`

	// Certificate is x5c[0] wrapped in a PEM CERTIFICATE envelope.
	Certificate string `json:"certificate"`

	Use       string    `json:"use"`
	KeyType   string    `json:"kty"`
	Algorithm string    `json:"alg"`
	FetchedAt time.Time `json:"fetchedAt"`

	// PublicKey is parsed from Certificate.
	PublicKey *rsa.PublicKey `json:"-"`
}

// WrapCertificate places a base64 DER certificate in a PEM envelope.
func WrapCertificate(x5c string) string {
	return "-----BEGIN CERTIFICATE-----\n" + x5c + "\n-----END CERTIFICATE-----\n"
}

// NewKeyEntry builds an entry from a certificate chain value, parsing the
// RSA public key it carries.
func NewKeyEntry(kid, x5c string, fetchedAt time.Time) (*KeyEntry, error) {
	e := &KeyEntry{
		KeyID:       kid,
		Certificate: WrapCertificate(x5c),
		Use:         "sig",
		KeyType:     "RSA",
		Algorithm:   "RS256",
		FetchedAt:   fetchedAt,
	}
	if err := e.parse(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *KeyEntry) parse() error {
	pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(e.Certificate))
	if err != nil {
		return fmt.Errorf("parse certificate for kid %q: %w", e.KeyID, err)
	}
	e.PublicKey = pub
	return nil
}

// KeyCache maps kid to KeyEntry over a cache.Cache backend. An entry is
// written once and never replaced; a miss is always safe, since the
// resolver then fetches.
//
// Entries read from or written to the backend are also kept, already
// parsed, in a per-process layer with the same lifetime, so a hit costs
// neither a backend round trip nor a certificate parse.
type KeyCache struct {
	backend cache.Cache
	keyer   cache.Keyer
	ttl     time.Duration
	parsed  *gocache.Cache
}

// NewKeyCache creates a KeyCache. A ttl of zero keeps entries for the life
// of the backend.
func NewKeyCache(backend cache.Cache, ttl time.Duration) *KeyCache {
	if backend == nil {
		backend = cache.NopCache{}
	}
	c := &KeyCache{backend: backend, keyer: cache.NewKeyer("jwks"), ttl: ttl}
	if _, nop := backend.(cache.NopCache); !nop {
		policy := cache.ExpiringPolicy(ttl)
		exp := gocache.NoExpiration
		if policy.Expires() {
			exp = policy.TTL
		}
		c.parsed = gocache.New(exp, policy.CleanupInterval)
	}
	return c
}

// Lookup returns the cached entry for kid. Entries that fail to decode or
// whose certificate no longer parses are treated as a miss.
func (c *KeyCache) Lookup(ctx context.Context, kid string) (*KeyEntry, bool) {
	if c.parsed != nil {
		if v, ok := c.parsed.Get(kid); ok {
			return v.(*KeyEntry), true
		}
	}
	data, ok := c.backend.Get(ctx, c.keyer.Key("kid", kid))
	if !ok {
		return nil, false
	}
	var e KeyEntry
	if err := json.Unmarshal(data, &e); err != nil || e.KeyID != kid {
		return nil, false
	}
	if err := e.parse(); err != nil {
		return nil, false
	}
	c.remember(kid, &e)
	return &e, true
}

func (c *KeyCache) remember(kid string, e *KeyEntry) {
	if c.parsed != nil {
		c.parsed.SetDefault(kid, e)
	}
}

// Insert stores entry under kid unless an entry is already present, and
// returns the entry the cache holds afterwards. A backend failure leaves the
// cache unchanged and returns entry.
func (c *KeyCache) Insert(ctx context.Context, kid string, entry *KeyEntry) (*KeyEntry, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return entry, err
	}
	stored, err := c.backend.Add(ctx, c.keyer.Key("kid", kid), data, c.ttl)
	if err != nil {
		return entry, err
	}
	if stored {
		c.remember(kid, entry)
		return entry, nil
	}
	if existing, ok := c.Lookup(ctx, kid); ok {
		return existing, nil
	}
	return entry, nil
}
