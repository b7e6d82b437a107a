package session

import "time"

// Revocation reasons written by the service.
const (
	ReasonRotation = "token rotation"
	ReasonLogout   = "user logout"
)

// RefreshToken is a persisted, opaque, long-lived credential.
type RefreshToken struct {
	Token       string
	UserID      string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	CreatedByIP string

	IsRevoked     bool
	RevokedAt     *time.Time
	RevokedReason string
	RevokedByIP   string

	// ReplacedByToken links a rotated token to its successor.
	ReplacedByToken string
}

// IsExpired reports whether now is past ExpiresAt.
func (t RefreshToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IsActive reports whether the token can still be used.
func (t RefreshToken) IsActive(now time.Time) bool {
	return !t.IsExpired(now) && !t.IsRevoked
}

// Revocation describes who revoked a token, when and why.
type Revocation struct {
	At     time.Time
	ByIP   string
	Reason string
}

func (t *RefreshToken) revoke(rev Revocation) {
	at := rev.At
	t.IsRevoked = true
	t.RevokedAt = &at
	t.RevokedByIP = rev.ByIP
	t.RevokedReason = rev.Reason
}
