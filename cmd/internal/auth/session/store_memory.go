package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]RefreshToken
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]RefreshToken)}
}

func (s *MemoryStore) Create(ctx context.Context, t RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[t.Token]; exists {
		return fmt.Errorf("session: duplicate refresh token")
	}
	s.tokens[t.Token] = cloneToken(t)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, token string) (RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return RefreshToken{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok {
		return RefreshToken{}, ErrTokenNotFound
	}
	return cloneToken(t), nil
}

func (s *MemoryStore) Revoke(ctx context.Context, token string, rev Revocation) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok || !t.IsActive(rev.At) {
		return false, nil
	}
	t.revoke(rev)
	s.tokens[token] = t
	return true, nil
}

func (s *MemoryStore) Rotate(ctx context.Context, oldToken string, next RefreshToken, rev Revocation) (RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return RefreshToken{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.tokens[oldToken]
	if !ok {
		return RefreshToken{}, ErrTokenNotFound
	}
	if !old.IsActive(rev.At) {
		return RefreshToken{}, ErrTokenNotActive
	}
	if _, exists := s.tokens[next.Token]; exists {
		return RefreshToken{}, fmt.Errorf("session: duplicate refresh token")
	}

	next.UserID = old.UserID
	s.tokens[next.Token] = cloneToken(next)

	old.revoke(rev)
	old.ReplacedByToken = next.Token
	s.tokens[oldToken] = old

	return cloneToken(next), nil
}

func (s *MemoryStore) DeleteInactive(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, t := range s.tokens {
		if !t.IsActive(now) {
			delete(s.tokens, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored tokens.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

func cloneToken(t RefreshToken) RefreshToken {
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		t.RevokedAt = &at
	}
	return t
}
