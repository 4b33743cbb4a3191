package auth

import "errors"

// ErrUnauthorized matches every verification failure. Callers past the Gate
// only ever see this, never the specific kind.
var ErrUnauthorized = errors.New("auth: unauthorized")

// kindError is a verification failure with a stable kind label for logs and
// metrics.
type kindError struct {
	kind string
	msg  string
}

func (e *kindError) Error() string { return "auth: " + e.msg }

func (e *kindError) Is(target error) bool { return target == ErrUnauthorized }

// Verification failures.
var (
	ErrMalformedHeader      error = &kindError{"malformed_header", "malformed authorization header"}
	ErrMalformedToken       error = &kindError{"malformed_token", "malformed token"}
	ErrMissingKeyID         error = &kindError{"missing_kid", "token header has no kid"}
	ErrKeyNotFound          error = &kindError{"key_not_found", "signing key not found"}
	ErrKeySourceUnavailable error = &kindError{"key_source_unavailable", "key source unavailable"}
	ErrSignatureInvalid     error = &kindError{"signature_invalid", "signature invalid"}
	ErrTokenExpired         error = &kindError{"token_expired", "token expired"}
	ErrClaimsInvalid        error = &kindError{"claims_invalid", "token claims invalid"}
)

var kinds = []error{
	ErrMalformedHeader,
	ErrMalformedToken,
	ErrMissingKeyID,
	ErrKeyNotFound,
	ErrKeySourceUnavailable,
	ErrSignatureInvalid,
	ErrTokenExpired,
	ErrClaimsInvalid,
}

// KindInternal labels failures outside the verification taxonomy.
const KindInternal = "internal"

// Kind returns the label of err's failure kind, KindInternal for an
// unclassified error, or "" for nil.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k.(*kindError).kind
		}
	}
	return KindInternal
}

// IsRetryable reports whether retrying could change the outcome. Only an
// unreachable key source qualifies; every other failure is a deterministic
// property of the token.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrKeySourceUnavailable)
}
