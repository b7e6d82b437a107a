package identity

import (
	"context"
	"slices"
	"sync"
	"time"

	"sauat/cmd/identity/ids"
)

// MemoryStore is an in-process Store used when no database is configured.
// Returned users are copies; callers cannot mutate stored state.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	in, err := validateCreate(op, in)
	if err != nil {
		return User{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return User{}, err
	}

	u := User{
		ID:            id,
		Email:         in.Email,
		PasswordHash:  in.PasswordHash,
		PasswordSalt:  in.PasswordSalt,
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		PhoneNumber:   in.PhoneNumber,
		Status:        StatusActive,
		EmailVerified: in.EmailVerified,
		CreatedAt:     now,
		Roles:         in.Roles,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[u.Email]; exists {
		return User{}, ConflictError{Op: op, Field: "email"}
	}
	s.byID[u.ID] = u
	s.byEmail[u.Email] = u.ID

	return cloneUser(u), nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.GetUserByEmail"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return cloneUser(s.byID[id]), nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return cloneUser(u), nil
}

func (s *MemoryStore) TouchLastLogin(ctx context.Context, id string, now time.Time) error {
	const op = "identity.TouchLastLogin"

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	t := now
	u.LastLoginAt = &t
	s.byID[id] = u
	return nil
}

func cloneUser(u User) User {
	u.Roles = slices.Clone(u.Roles)
	if u.PhoneNumber != nil {
		p := *u.PhoneNumber
		u.PhoneNumber = &p
	}
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		u.LastLoginAt = &t
	}
	return u
}
