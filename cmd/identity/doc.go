// Package identity owns sauat's user directory.
//
// It defines the User principal (email, PBKDF2 hash/salt, profile fields, roles)
// and the Store boundary used by the session orchestrator and admin tooling.
// Two implementations are provided: PostgresStore (production) and MemoryStore
// (dev runs without a database, and tests).
//
// Password hashing lives in cmd/security/password; this package only stores
// the derived values and never logs them.
package identity
