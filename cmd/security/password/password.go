package password

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Key derivation cost. Changing any of these invalidates every stored hash.
const (
	SaltSize   = 16
	HashSize   = 64
	Iterations = 100_000
)

// Hash derives a PBKDF2-HMAC-SHA512 key for password under a fresh random salt.
// Both values are returned as standard (padded) base64.
func (c Config) Hash(password string) (hash string, salt string, err error) {
	saltBytes := make([]byte, SaltSize)
	if _, err := rand.Read(saltBytes); err != nil {
		return "", "", fmt.Errorf("salt: %w", err)
	}

	key := derive(password, saltBytes)

	b64 := base64.StdEncoding
	return b64.EncodeToString(key), b64.EncodeToString(saltBytes), nil
}

// Verify reports whether password matches the stored hash/salt pair.
// Malformed stored values (bad base64, wrong lengths) are reported as a mismatch.
func (c Config) Verify(password, hash, salt string) bool {
	expected, saltBytes, err := decode(hash, salt)
	if err != nil {
		return false
	}

	key := derive(password, saltBytes)
	return subtle.ConstantTimeCompare(key, expected) == 1
}

func derive(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, Iterations, HashSize, sha512.New)
}

// decode parses the stored pair and enforces the fixed sizes.
func decode(hash, salt string) ([]byte, []byte, error) {
	b64 := base64.StdEncoding

	expected, err := b64.DecodeString(hash)
	if err != nil || len(expected) != HashSize {
		return nil, nil, ErrInvalidHash
	}
	saltBytes, err := b64.DecodeString(salt)
	if err != nil || len(saltBytes) < SaltSize {
		return nil, nil, ErrInvalidHash
	}

	return expected, saltBytes, nil
}
