package session

import (
	"context"
	"time"
)

// Store persists refresh tokens.
//
// Revoke and Rotate must be atomic with respect to each other: of two
// concurrent calls on the same active token exactly one observes it active.
// The other gets false (Revoke) or ErrTokenNotActive (Rotate).
type Store interface {
	// Create inserts a new token. Tokens are unique.
	Create(ctx context.Context, t RefreshToken) error

	// Get returns the token or ErrTokenNotFound.
	Get(ctx context.Context, token string) (RefreshToken, error)

	// Revoke marks an active token revoked. It reports false, without error,
	// when the token is absent or already inactive at rev.At.
	Revoke(ctx context.Context, token string, rev Revocation) (bool, error)

	// Rotate revokes oldToken with rev and inserts next for the same user,
	// linking the two. next.UserID is filled from the stored token.
	// Returns ErrTokenNotFound or ErrTokenNotActive when oldToken cannot rotate.
	Rotate(ctx context.Context, oldToken string, next RefreshToken, rev Revocation) (RefreshToken, error)

	// DeleteInactive removes every token that is revoked or expired at now.
	DeleteInactive(ctx context.Context, now time.Time) (int64, error)
}
