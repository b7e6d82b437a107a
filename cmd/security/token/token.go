package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	// MinBytes is the minimum entropy accepted for opaque tokens.
	MinBytes = 32

	// MaxBytes keeps encoded values well below the 500-char storage limit.
	MaxBytes = 256
)

// NewOpaque returns nBytes of crypto/rand output encoded as standard base64.
func NewOpaque(nBytes int) (string, error) {
	if nBytes < MinBytes {
		return "", ErrTooShort
	}
	if nBytes > MaxBytes {
		return "", fmt.Errorf("%w: %d > %d bytes", ErrTooLong, nBytes, MaxBytes)
	}

	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Fingerprint returns a short, non-reversible identifier for s suitable for logs.
func Fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:6])
}
