// Package password provides password hashing and verification for sauat.
//
// Hashes are derived with PBKDF2-HMAC-SHA512 using a per-password random salt.
// The salt and the derived key are returned separately as standard base64 strings,
// matching the users.password_hash / users.password_salt columns.
//
// Security notes:
//   - Cost parameters are package constants and cannot be chosen per call.
//   - Stored hash/salt values are treated as untrusted input during Verify:
//     anything malformed is a mismatch, never a panic.
//   - Policy checks apply to new passwords only (registration, admin seeding).
package password
