package session

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRotator(t *testing.T, store Store, now *time.Time) *Rotator {
	t.Helper()
	r, err := NewRotator(store, testJWTConfig(), WithRotatorClock(func() time.Time { return *now }))
	require.NoError(t, err)
	return r
}

func TestRotator_Generate(t *testing.T) {
	now := contractNow
	store := NewMemoryStore()
	r := newTestRotator(t, store, &now)

	tok, err := r.Generate(context.Background(), contractUserID, "192.0.2.1")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(tok.Token)
	require.NoError(t, err)
	assert.Len(t, raw, 64)

	assert.True(t, tok.ExpiresAt.After(now))
	assert.Equal(t, now.Add(24*time.Hour), tok.ExpiresAt)
	assert.True(t, tok.IsActive(now))
	assert.Equal(t, "192.0.2.1", tok.CreatedByIP)

	stored, err := r.Get(context.Background(), tok.Token)
	require.NoError(t, err)
	assert.Equal(t, contractUserID, stored.UserID)
}

func TestRotator_GenerateRequiresUser(t *testing.T) {
	now := contractNow
	r := newTestRotator(t, NewMemoryStore(), &now)
	_, err := r.Generate(context.Background(), " ", "ip")
	require.Error(t, err)
}

func TestRotator_RotateIsSingleUse(t *testing.T) {
	now := contractNow
	r := newTestRotator(t, NewMemoryStore(), &now)
	ctx := context.Background()

	first, err := r.Generate(ctx, contractUserID, "ip")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	second, err := r.Rotate(ctx, first.Token, "ip2")
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)
	assert.Equal(t, contractUserID, second.UserID)
	assert.Equal(t, now.Add(24*time.Hour), second.ExpiresAt)

	_, err = r.Rotate(ctx, first.Token, "ip2")
	require.ErrorIs(t, err, ErrTokenNotActive)

	old, err := r.Get(ctx, first.Token)
	require.NoError(t, err)
	assert.Equal(t, ReasonRotation, old.RevokedReason)
	assert.Equal(t, second.Token, old.ReplacedByToken)
}

func TestRotator_RejectsImplausibleTokens(t *testing.T) {
	now := contractNow
	r := newTestRotator(t, NewMemoryStore(), &now)
	ctx := context.Background()

	long := strings.Repeat("x", maxTokenLen+1)

	_, err := r.Get(ctx, "")
	require.ErrorIs(t, err, ErrTokenNotFound)
	_, err = r.Get(ctx, long)
	require.ErrorIs(t, err, ErrTokenNotFound)
	_, err = r.Rotate(ctx, long, "ip")
	require.ErrorIs(t, err, ErrTokenNotFound)

	ok, err := r.Revoke(ctx, "", "ip", ReasonLogout)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRotator_Cleanup(t *testing.T) {
	now := contractNow
	store := NewMemoryStore()
	r := newTestRotator(t, store, &now)
	ctx := context.Background()

	a, err := r.Generate(ctx, contractUserID, "ip")
	require.NoError(t, err)
	_, err = r.Generate(ctx, contractUserID, "ip")
	require.NoError(t, err)

	ok, err := r.Revoke(ctx, a.Token, "ip", ReasonLogout)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := r.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, store.Len())

	now = now.Add(25 * time.Hour)
	n, err = r.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Zero(t, store.Len())
}

type brokenStore struct{ err error }

func (b brokenStore) Create(context.Context, RefreshToken) error { return b.err }
func (b brokenStore) Get(context.Context, string) (RefreshToken, error) {
	return RefreshToken{}, b.err
}
func (b brokenStore) Revoke(context.Context, string, Revocation) (bool, error) { return false, b.err }
func (b brokenStore) Rotate(context.Context, string, RefreshToken, Revocation) (RefreshToken, error) {
	return RefreshToken{}, b.err
}
func (b brokenStore) DeleteInactive(context.Context, time.Time) (int64, error) { return 0, b.err }

func TestRotator_WrapsStorageErrors(t *testing.T) {
	now := contractNow
	cause := errors.New("connection reset")
	r := newTestRotator(t, brokenStore{err: cause}, &now)
	ctx := context.Background()

	_, err := r.Get(ctx, "tok")
	require.ErrorIs(t, err, ErrStorageUnavailable)
	require.ErrorIs(t, err, cause)

	var se StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "refresh.get", se.Op)

	_, err = r.Generate(ctx, contractUserID, "ip")
	require.ErrorIs(t, err, ErrStorageUnavailable)

	_, err = r.Cleanup(ctx)
	require.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestRotator_PassesSentinelsThrough(t *testing.T) {
	now := contractNow
	r := newTestRotator(t, brokenStore{err: ErrTokenNotActive}, &now)

	_, err := r.Rotate(context.Background(), "tok", "ip")
	require.ErrorIs(t, err, ErrTokenNotActive)
	require.NotErrorIs(t, err, ErrStorageUnavailable)
}

func TestNewRotator_Validates(t *testing.T) {
	cfg := testJWTConfig()
	cfg.RefreshTokenBytes = 16
	_, err := NewRotator(NewMemoryStore(), cfg)
	require.ErrorIs(t, err, ErrConfig)

	_, err = NewRotator(nil, testJWTConfig())
	require.ErrorIs(t, err, ErrConfig)
}
