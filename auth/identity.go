package auth

import "time"

// Identity is the subject of a verified token.
type Identity struct {
	// Principal is the token's sub claim. Tasks are partitioned by it.
	Principal string

	// KeyID is the kid that verified the token.
	KeyID string

	Claims    map[string]any
	IssuedAt  time.Time
	ExpiresAt time.Time
}
