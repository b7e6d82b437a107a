package password

import "errors"

// Policy errors are safe to show to the user who chose the password.
var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrWeakPassword     = errors.New("password is too easy to guess")
)

// ErrInvalidHash means a stored hash or salt is not valid base64 of the expected size.
var ErrInvalidHash = errors.New("password: malformed stored hash")
