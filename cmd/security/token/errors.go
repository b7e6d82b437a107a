package token

import "errors"

// Size errors returned by NewOpaque.
var (
	ErrTooShort = errors.New("token: entropy below minimum")
	ErrTooLong  = errors.New("token: size above maximum")
)
