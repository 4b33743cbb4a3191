package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrMalformedHeader, "malformed_header"},
		{ErrMalformedToken, "malformed_token"},
		{ErrMissingKeyID, "missing_kid"},
		{fmt.Errorf("%w: kid %q", ErrKeyNotFound, "x"), "key_not_found"},
		{fmt.Errorf("%w: %w", ErrKeySourceUnavailable, context.DeadlineExceeded), "key_source_unavailable"},
		{ErrSignatureInvalid, "signature_invalid"},
		{ErrTokenExpired, "token_expired"},
		{ErrClaimsInvalid, "claims_invalid"},
		{errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestKindErrorsMatchUnauthorized(t *testing.T) {
	for _, err := range kinds {
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("%v should match ErrUnauthorized", err)
		}
		wrapped := fmt.Errorf("context: %w", err)
		if !errors.Is(wrapped, ErrUnauthorized) {
			t.Errorf("wrapped %v should match ErrUnauthorized", err)
		}
	}
	if errors.Is(ErrTokenExpired, ErrSignatureInvalid) {
		t.Error("distinct kinds should not match each other")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(fmt.Errorf("%w: status 503", ErrKeySourceUnavailable)) {
		t.Error("unavailable key source should be retryable")
	}
	for _, err := range []error{ErrKeyNotFound, ErrTokenExpired, ErrSignatureInvalid, errors.New("x"), nil} {
		if IsRetryable(err) {
			t.Errorf("IsRetryable(%v) = true", err)
		}
	}
}
