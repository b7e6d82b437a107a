package session

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAuthentication is the uniform rejection for login and refresh.
	// It never says whether the email, password or token was at fault.
	ErrAuthentication = errors.New("authentication failed")

	// ErrEmailTaken is returned by Register when the email is already in use.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidInput is returned for malformed registration input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidToken is returned when an access token is malformed or its
	// issuer or audience does not match.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidSignature is returned when an access token signature does not
	// verify or it was signed with an unexpected algorithm.
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrTokenExpired is returned for expired access tokens when lifetime is enforced.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenNotFound is returned when a refresh token does not exist.
	ErrTokenNotFound = errors.New("refresh token not found")

	// ErrTokenNotActive is returned when a refresh token is revoked or expired.
	// It is also what the loser of a concurrent rotation sees.
	ErrTokenNotActive = errors.New("refresh token not active")

	// ErrStorageUnavailable marks transient persistence failures.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// StorageError wraps a persistence failure. It matches both
// ErrStorageUnavailable and the underlying cause.
type StorageError struct {
	Op  string
	Err error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStorageUnavailable, e.Err)
}

func (e StorageError) Unwrap() []error { return []error{ErrStorageUnavailable, e.Err} }

// InputError reports which registration field was rejected.
type InputError struct {
	Field string
	Err   error
}

func (e InputError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", ErrInvalidInput, e.Field)
	}
	return fmt.Sprintf("%v: %s: %v", ErrInvalidInput, e.Field, e.Err)
}

func (e InputError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidInput}
	}
	return []error{ErrInvalidInput, e.Err}
}

// wrapStorage leaves refresh-token sentinels and context errors untouched
// and wraps everything else as a StorageError.
func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrTokenNotFound),
		errors.Is(err, ErrTokenNotActive),
		errors.Is(err, ErrStorageUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return StorageError{Op: op, Err: err}
}
