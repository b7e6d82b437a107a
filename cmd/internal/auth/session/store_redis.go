package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces refresh token keys.
const DefaultRedisPrefix = "sauat:refresh:"

const (
	rotateStatusRotated  int64 = 1
	rotateStatusNotFound int64 = 0
	rotateStatusInactive int64 = -1
	rotateStatusConflict int64 = -2
)

// Tokens are hashes; "is_revoked" is "0" or "1", times are unix milliseconds.
// An active token has is_revoked == "0" and expires_at >= now.

const createTokenScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1],
  "user_id", ARGV[2],
  "expires_at", ARGV[3],
  "created_at", ARGV[4],
  "created_by_ip", ARGV[5],
  "is_revoked", "0")
redis.call("SADD", KEYS[2], ARGV[1])
return 1
`

var createTokenLua = redis.NewScript(createTokenScript)

const revokeTokenScript = `
local f = redis.call("HMGET", KEYS[1], "expires_at", "is_revoked")
if not f[1] then
  return 0
end
if f[2] == "1" or tonumber(f[1]) < tonumber(ARGV[1]) then
  return 0
end
redis.call("HSET", KEYS[1],
  "is_revoked", "1",
  "revoked_at", ARGV[1],
  "revoked_by_ip", ARGV[2],
  "revoked_reason", ARGV[3])
return 1
`

var revokeTokenLua = redis.NewScript(revokeTokenScript)

const rotateTokenScript = `
local f = redis.call("HMGET", KEYS[1], "user_id", "expires_at", "is_revoked")
if not f[1] then
  return {0}
end
if f[3] == "1" or tonumber(f[2]) < tonumber(ARGV[1]) then
  return {-1}
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return {-2}
end
redis.call("HSET", KEYS[2],
  "user_id", f[1],
  "expires_at", ARGV[5],
  "created_at", ARGV[6],
  "created_by_ip", ARGV[7],
  "is_revoked", "0")
redis.call("SADD", KEYS[3], ARGV[4])
redis.call("HSET", KEYS[1],
  "is_revoked", "1",
  "revoked_at", ARGV[1],
  "revoked_by_ip", ARGV[2],
  "revoked_reason", ARGV[3],
  "replaced_by", ARGV[4])
return {1, f[1]}
`

var rotateTokenLua = redis.NewScript(rotateTokenScript)

const cleanupTokenScript = `
local f = redis.call("HMGET", KEYS[1], "expires_at", "is_revoked")
if not f[1] then
  redis.call("SREM", KEYS[2], ARGV[1])
  return 0
end
if f[2] == "1" or tonumber(f[1]) < tonumber(ARGV[2]) then
  redis.call("DEL", KEYS[1])
  redis.call("SREM", KEYS[2], ARGV[1])
  return 1
end
return 0
`

var cleanupTokenLua = redis.NewScript(cleanupTokenScript)

// RedisStore implements Store on Redis. Every mutation is a single Lua
// script, so concurrent rotations of one token serialize inside Redis.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed store. An empty prefix uses DefaultRedisPrefix.
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) tokenKey(token string) string { return s.prefix + "token:" + token }
func (s *RedisStore) indexKey() string { return s.prefix + "index" }

func (s *RedisStore) Create(ctx context.Context, t RefreshToken) error {
	n, err := createTokenLua.Run(ctx, s.rdb,
		[]string{s.tokenKey(t.Token), s.indexKey()},
		t.Token, t.UserID, t.ExpiresAt.UnixMilli(), t.CreatedAt.UnixMilli(), t.CreatedByIP,
	).Int64()
	if err != nil {
		return fmt.Errorf("session: redis create: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session: duplicate refresh token")
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (RefreshToken, error) {
	m, err := s.rdb.HGetAll(ctx, s.tokenKey(token)).Result()
	if err != nil {
		return RefreshToken{}, fmt.Errorf("session: redis get: %w", err)
	}
	if len(m) == 0 {
		return RefreshToken{}, ErrTokenNotFound
	}
	return decodeRedisToken(token, m)
}

func (s *RedisStore) Revoke(ctx context.Context, token string, rev Revocation) (bool, error) {
	n, err := revokeTokenLua.Run(ctx, s.rdb,
		[]string{s.tokenKey(token)},
		rev.At.UnixMilli(), rev.ByIP, rev.Reason,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("session: redis revoke: %w", err)
	}
	return n == 1, nil
}

func (s *RedisStore) Rotate(ctx context.Context, oldToken string, next RefreshToken, rev Revocation) (RefreshToken, error) {
	res, err := rotateTokenLua.Run(ctx, s.rdb,
		[]string{s.tokenKey(oldToken), s.tokenKey(next.Token), s.indexKey()},
		rev.At.UnixMilli(), rev.ByIP, rev.Reason,
		next.Token, next.ExpiresAt.UnixMilli(), next.CreatedAt.UnixMilli(), next.CreatedByIP,
	).Slice()
	if err != nil {
		return RefreshToken{}, fmt.Errorf("session: redis rotate: %w", err)
	}
	if len(res) == 0 {
		return RefreshToken{}, fmt.Errorf("session: redis rotate: empty reply")
	}
	status, _ := res[0].(int64)

	switch status {
	case rotateStatusRotated:
		userID, _ := res[1].(string)
		next.UserID = userID
		return next, nil
	case rotateStatusNotFound:
		return RefreshToken{}, ErrTokenNotFound
	case rotateStatusInactive:
		return RefreshToken{}, ErrTokenNotActive
	case rotateStatusConflict:
		return RefreshToken{}, fmt.Errorf("session: duplicate refresh token")
	default:
		return RefreshToken{}, fmt.Errorf("session: redis rotate: unexpected status %d", status)
	}
}

// DeleteInactive walks the index set and removes inactive tokens one script
// call at a time, so it never blocks Redis for the whole sweep.
func (s *RedisStore) DeleteInactive(ctx context.Context, now time.Time) (int64, error) {
	var (
		cursor  uint64
		deleted int64
		nowMS   = now.UnixMilli()
	)
	for {
		members, next, err := s.rdb.SScan(ctx, s.indexKey(), cursor, "", 500).Result()
		if err != nil {
			return deleted, fmt.Errorf("session: redis scan: %w", err)
		}
		for _, tok := range members {
			n, err := cleanupTokenLua.Run(ctx, s.rdb,
				[]string{s.tokenKey(tok), s.indexKey()},
				tok, nowMS,
			).Int64()
			if err != nil {
				return deleted, fmt.Errorf("session: redis cleanup: %w", err)
			}
			deleted += n
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

func decodeRedisToken(token string, m map[string]string) (RefreshToken, error) {
	t := RefreshToken{
		Token:           token,
		UserID:          m["user_id"],
		CreatedByIP:     m["created_by_ip"],
		IsRevoked:       m["is_revoked"] == "1",
		RevokedReason:   m["revoked_reason"],
		RevokedByIP:     m["revoked_by_ip"],
		ReplacedByToken: m["replaced_by"],
	}

	var err error
	if t.ExpiresAt, err = parseMillis(m["expires_at"]); err != nil {
		return RefreshToken{}, fmt.Errorf("session: redis token expires_at: %w", err)
	}
	if t.CreatedAt, err = parseMillis(m["created_at"]); err != nil {
		return RefreshToken{}, fmt.Errorf("session: redis token created_at: %w", err)
	}
	if v, ok := m["revoked_at"]; ok && v != "" {
		at, err := parseMillis(v)
		if err != nil {
			return RefreshToken{}, fmt.Errorf("session: redis token revoked_at: %w", err)
		}
		t.RevokedAt = &at
	}
	return t, nil
}

func parseMillis(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("missing")
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
