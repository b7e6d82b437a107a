package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sauat/cmd/security/token"
)

// maxTokenLen matches the refresh_tokens.token column.
const maxTokenLen = 500

// Rotator owns refresh token policy (entropy, TTL, reasons) on top of a Store.
type Rotator struct {
	store  Store
	ttl    time.Duration
	nBytes int

	now      func() time.Time
	newToken func(nBytes int) (string, error)
}

// RotatorOption configures a Rotator.
type RotatorOption func(*Rotator)

// WithRotatorClock overrides the clock used for expiry and revocation stamps.
func WithRotatorClock(now func() time.Time) RotatorOption {
	return func(r *Rotator) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRotator builds a Rotator using cfg.RefreshTokenTTL and cfg.RefreshTokenBytes.
func NewRotator(store Store, cfg Config, opts ...RotatorOption) (*Rotator, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil refresh store", ErrConfig)
	}
	if cfg.RefreshTokenTTL <= 0 {
		return nil, fmt.Errorf("%w: refresh token ttl must be positive", ErrConfig)
	}
	if cfg.RefreshTokenBytes < token.MinBytes || cfg.RefreshTokenBytes > token.MaxBytes {
		return nil, fmt.Errorf("%w: refresh token bytes must be in [%d,%d]", ErrConfig, token.MinBytes, token.MaxBytes)
	}
	r := &Rotator{
		store:    store,
		ttl:      cfg.RefreshTokenTTL,
		nBytes:   cfg.RefreshTokenBytes,
		now:      func() time.Time { return time.Now().UTC() },
		newToken: token.NewOpaque,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

func (r *Rotator) mint(userID, ip string, now time.Time) (RefreshToken, error) {
	v, err := r.newToken(r.nBytes)
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{
		Token:       v,
		UserID:      userID,
		ExpiresAt:   now.Add(r.ttl),
		CreatedAt:   now,
		CreatedByIP: ip,
	}, nil
}

// Generate creates and persists a fresh refresh token for userID.
func (r *Rotator) Generate(ctx context.Context, userID, ip string) (RefreshToken, error) {
	if strings.TrimSpace(userID) == "" {
		return RefreshToken{}, fmt.Errorf("session: generate refresh token: empty user id")
	}
	t, err := r.mint(userID, ip, r.now())
	if err != nil {
		return RefreshToken{}, err
	}
	if err := r.store.Create(ctx, t); err != nil {
		return RefreshToken{}, wrapStorage("refresh.generate", err)
	}
	return t, nil
}

// Get returns the stored token or ErrTokenNotFound.
func (r *Rotator) Get(ctx context.Context, tok string) (RefreshToken, error) {
	if !plausibleToken(tok) {
		return RefreshToken{}, ErrTokenNotFound
	}
	t, err := r.store.Get(ctx, tok)
	if err != nil {
		return RefreshToken{}, wrapStorage("refresh.get", err)
	}
	return t, nil
}

// Revoke revokes tok if it is active. Absent and inactive tokens are a no-op
// reported as false.
func (r *Rotator) Revoke(ctx context.Context, tok, ip, reason string) (bool, error) {
	if !plausibleToken(tok) {
		return false, nil
	}
	ok, err := r.store.Revoke(ctx, tok, Revocation{At: r.now(), ByIP: ip, Reason: reason})
	if err != nil {
		return false, wrapStorage("refresh.revoke", err)
	}
	return ok, nil
}

// Rotate exchanges an active token for a new one owned by the same user.
// The old token is revoked with ReasonRotation and linked to the successor.
func (r *Rotator) Rotate(ctx context.Context, oldToken, ip string) (RefreshToken, error) {
	if !plausibleToken(oldToken) {
		return RefreshToken{}, ErrTokenNotFound
	}
	now := r.now()
	next, err := r.mint("", ip, now)
	if err != nil {
		return RefreshToken{}, err
	}
	out, err := r.store.Rotate(ctx, oldToken, next, Revocation{At: now, ByIP: ip, Reason: ReasonRotation})
	if err != nil {
		return RefreshToken{}, wrapStorage("refresh.rotate", err)
	}
	return out, nil
}

// Cleanup deletes every token that is no longer active.
func (r *Rotator) Cleanup(ctx context.Context) (int64, error) {
	n, err := r.store.DeleteInactive(ctx, r.now())
	if err != nil {
		return n, wrapStorage("refresh.cleanup", err)
	}
	return n, nil
}

func plausibleToken(tok string) bool {
	return tok != "" && len(tok) <= maxTokenLen
}
