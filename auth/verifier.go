package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RS256 is the only accepted signing algorithm.
const RS256 = "RS256"

// KeySource resolves a kid to a verification key.
type KeySource interface {
	Resolve(ctx context.Context, kid string) (*KeyEntry, error)
}

// VerifierConfig holds optional claim checks.
type VerifierConfig struct {
	// Issuer, when set, must equal the iss claim.
	Issuer string

	// Audience, when set, must appear in the aud claim.
	Audience string

	// Leeway tolerates clock skew on exp, nbf and iat.
	Leeway time.Duration

	// Now overrides the clock.
	Now func() time.Time
}

// Verifier checks bearer tokens.
type Verifier struct {
	keys   KeySource
	parser *jwt.Parser
}

// NewVerifier creates a Verifier.
func NewVerifier(keys KeySource, cfg VerifierConfig) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{RS256}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(cfg.Now))
	}
	return &Verifier{keys: keys, parser: jwt.NewParser(opts...)}
}

// ExtractBearer returns the token from an Authorization header value of the
// form "Bearer <token>". The scheme is case-insensitive and must be followed
// by exactly one space.
func ExtractBearer(header string) (string, error) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", ErrMalformedHeader
	}
	if token == "" || strings.ContainsAny(token, " \t\r\n") {
		return "", ErrMalformedHeader
	}
	return token, nil
}

// Verify authenticates an Authorization header value. Every error it
// returns satisfies errors.Is(err, ErrUnauthorized).
func (v *Verifier) Verify(ctx context.Context, header string) (*Identity, error) {
	raw, err := ExtractBearer(header)
	if err != nil {
		return nil, err
	}

	unverified, _, err := v.parser.ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		if unverified != nil && errors.Is(err, jwt.ErrTokenUnverifiable) {
			// Well-formed, but names an algorithm nobody registered.
			return nil, fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}

	if alg, _ := unverified.Header["alg"].(string); alg != RS256 {
		return nil, fmt.Errorf("%w: algorithm %q not accepted", ErrSignatureInvalid, alg)
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, ErrMissingKeyID
	}

	entry, err := v.keys.Resolve(ctx, kid)
	if err != nil {
		if Kind(err) == KindInternal {
			err = fmt.Errorf("%w: %w", ErrKeySourceUnavailable, err)
		}
		return nil, err
	}

	claims := jwt.MapClaims{}
	_, err = v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return entry.PublicKey, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrClaimsInvalid)
	}

	id := &Identity{Principal: sub, KeyID: kid, Claims: claims}
	if exp, _ := claims.GetExpirationTime(); exp != nil {
		id.ExpiresAt = exp.Time
	}
	if iat, _ := claims.GetIssuedAt(); iat != nil {
		id.IssuedAt = iat.Time
	}
	return id, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenInvalidClaims):
		return fmt.Errorf("%w: %w", ErrClaimsInvalid, err)
	default:
		return fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	}
}
