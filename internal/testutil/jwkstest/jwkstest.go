// Package jwkstest serves a JWKS document from generated RSA keys and mints
// tokens signed by them.
package jwkstest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Key is a signing key with a self-signed certificate.
type Key struct {
	KID     string
	Private *rsa.PrivateKey
	CertDER []byte
}

var (
	keyMu    sync.Mutex
	keyCache = map[string]*Key{}
)

// NewKey returns an RSA-2048 key for kid. Keys are memoized per kid within
// the test binary since generation is slow.
func NewKey(t testing.TB, kid string) *Key {
	t.Helper()
	keyMu.Lock()
	defer keyMu.Unlock()
	if k, ok := keyCache[kid]; ok {
		return k
	}

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: "todos-test-" + kid},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}

	k := &Key{KID: kid, Private: priv, CertDER: der}
	keyCache[kid] = k
	return k
}

// X5C returns the base64 DER certificate as published in x5c.
func (k *Key) X5C() string {
	return base64.StdEncoding.EncodeToString(k.CertDER)
}

// JWK returns the key's published JWKS entry.
func (k *Key) JWK() map[string]any {
	return map[string]any{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": k.KID,
		"n":   base64.RawURLEncoding.EncodeToString(k.Private.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(k.Private.E)).Bytes()),
		"x5c": []string{k.X5C()},
	}
}

// Mint signs claims with RS256 under the key's kid.
func (k *Key) Mint(t testing.TB, claims jwtv5.MapClaims) string {
	t.Helper()
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, claims)
	tok.Header["kid"] = k.KID
	signed, err := tok.SignedString(k.Private)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// Claims returns {sub, iat, exp} with exp ttl from now.
func Claims(sub string, ttl time.Duration) jwtv5.MapClaims {
	now := time.Now()
	return jwtv5.MapClaims{
		"sub": sub,
		"iat": now.Add(-time.Minute).Unix(),
		"exp": now.Add(ttl).Unix(),
	}
}

// Server is a JWKS endpoint.
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	entries []map[string]any
	status  int
	body    []byte
	delay   time.Duration
	fetches atomic.Int64
}

// NewServer starts a JWKS server publishing the given keys. It is closed
// with t.Cleanup.
func NewServer(t testing.TB, keys ...*Key) *Server {
	t.Helper()
	s := &Server{status: http.StatusOK}
	for _, k := range keys {
		s.entries = append(s.entries, k.JWK())
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.fetches.Add(1)

	s.mu.Lock()
	status, body, delay := s.status, s.body, s.delay
	doc := map[string]any{"keys": s.entries}
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_, _ = w.Write(body)
		return
	}
	_ = json.NewEncoder(w).Encode(doc)
}

// JWKSURL is the URL to configure in the fetcher.
func (s *Server) JWKSURL() string {
	return s.URL + "/.well-known/jwks.json"
}

// Fetches returns how many requests the server has received.
func (s *Server) Fetches() int {
	return int(s.fetches.Load())
}

// SetEntries replaces the published entries verbatim.
func (s *Server) SetEntries(entries ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
}

// SetStatus makes the server answer with code.
func (s *Server) SetStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = code
}

// SetBody makes the server answer with a raw body instead of the key set.
func (s *Server) SetBody(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.body = []byte(body)
}

// SetDelay delays every response by d.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}
