package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// maxPartLength bounds a single key component before it is hashed.
const maxPartLength = 128

// Keyer builds namespaced cache keys from untrusted components.
//
// Components come from request data (a token's kid header), so any part
// that is too long or contains separators or whitespace is replaced by
// "h-" and the first 16 hex characters of its SHA-256. Keys produced by a
// Keyer always pass ValidateKey.
type Keyer struct {
	Namespace string
}

// NewKeyer returns a Keyer for namespace.
func NewKeyer(namespace string) Keyer {
	return Keyer{Namespace: namespace}
}

// Key joins the namespace and parts with ':'.
func (k Keyer) Key(parts ...string) string {
	var b strings.Builder
	b.WriteString(k.Namespace)
	for _, p := range parts {
		b.WriteByte(':')
		b.WriteString(safePart(p))
	}
	return b.String()
}

func safePart(p string) string {
	if p != "" && len(p) <= maxPartLength && !strings.ContainsAny(p, ": \t\r\n") {
		return p
	}
	sum := sha256.Sum256([]byte(p))
	return "h-" + hex.EncodeToString(sum[:8])
}
