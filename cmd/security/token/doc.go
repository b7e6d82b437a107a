// Package token provides opaque token primitives for sauat.
//
// It is the single source of truth for refresh-token generation:
// values are drawn from crypto/rand and encoded as standard base64.
//
// Refresh tokens are bearer credentials and must never be logged. Use Fingerprint
// when a log line needs to correlate events for the same token.
package token
