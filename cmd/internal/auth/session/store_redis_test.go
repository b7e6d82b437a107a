package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestRedisStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) (Store, string) {
		_, rdb := newTestRedis(t)
		return NewRedisStore(rdb, ""), contractUserID
	})
}

func TestRedisStore_KeyLayout(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisStore(rdb, "test:")
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newTestToken("abc", contractUserID, contractNow, time.Hour)))

	require.True(t, mr.Exists("test:token:abc"))
	require.Equal(t, contractUserID, mr.HGet("test:token:abc", "user_id"))
	require.Equal(t, "0", mr.HGet("test:token:abc", "is_revoked"))

	members, err := mr.Members("test:index")
	require.NoError(t, err)
	require.Equal(t, []string{"abc"}, members)
}

func TestRedisStore_CleanupDropsDanglingIndexEntries(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisStore(rdb, "")
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newTestToken("gone", contractUserID, contractNow, time.Hour)))
	mr.Del(DefaultRedisPrefix + "token:gone")

	n, err := s.DeleteInactive(ctx, contractNow)
	require.NoError(t, err)
	require.Zero(t, n)

	members, _ := mr.Members(DefaultRedisPrefix + "index")
	require.Empty(t, members)
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisStore(rdb, "")
	mr.Close()

	_, err := s.Get(context.Background(), "x")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrTokenNotFound)
}
