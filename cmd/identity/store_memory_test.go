package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	phone := " +7 700 000 0000 "

	u, err := s.CreateUser(ctx, CreateUserInput{
		Email:        " Student@Example.COM ",
		PasswordHash: "h",
		PasswordSalt: "s",
		FirstName:    " Aruzhan ",
		LastName:     "Sadykova",
		PhoneNumber:  &phone,
		Roles:        []string{RoleUser, " ", RoleUser},
		Now:          now,
	})
	require.NoError(t, err)
	require.Len(t, u.ID, 26)

	want := User{
		ID:           u.ID,
		Email:        "student@example.com",
		PasswordHash: "h",
		PasswordSalt: "s",
		FirstName:    "Aruzhan",
		LastName:     "Sadykova",
		PhoneNumber:  ptr("+7 700 000 0000"),
		Status:       StatusActive,
		CreatedAt:    now,
		Roles:        []string{RoleUser},
	}
	if diff := cmp.Diff(want, u); diff != "" {
		t.Fatalf("created user mismatch (-want +got):\n%s", diff)
	}

	byEmail, err := s.GetUserByEmail(ctx, "STUDENT@example.com")
	require.NoError(t, err)
	if diff := cmp.Diff(want, byEmail); diff != "" {
		t.Fatalf("by email mismatch (-want +got):\n%s", diff)
	}

	byID, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "Aruzhan Sadykova", byID.DisplayName())
}

func TestMemoryStore_DuplicateEmail(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.CreateUser(ctx, CreateUserInput{Email: "a@b.kz", PasswordHash: "h", PasswordSalt: "s"})
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, CreateUserInput{Email: "A@B.KZ", PasswordHash: "h", PasswordSalt: "s"})
	require.Error(t, err)
	require.True(t, IsConflict(err))
	require.ErrorIs(t, err, ErrConflict)

	var ce ConflictError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, "email", ce.Field)
}

func TestMemoryStore_InvalidInput(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	cases := []CreateUserInput{
		{Email: "", PasswordHash: "h", PasswordSalt: "s"},
		{Email: "no-at-sign", PasswordHash: "h", PasswordSalt: "s"},
		{Email: "a@b.kz", PasswordHash: "", PasswordSalt: "s"},
		{Email: "a@b.kz", PasswordHash: "h", PasswordSalt: ""},
	}
	for _, in := range cases {
		_, err := s.CreateUser(ctx, in)
		if !IsInvalidInput(err) {
			t.Fatalf("input %+v: expected invalid input, got %v", in, err)
		}
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	u, err := s.CreateUser(ctx, CreateUserInput{
		Email: "c@d.kz", PasswordHash: "h", PasswordSalt: "s", Roles: []string{RoleAdmin},
	})
	require.NoError(t, err)

	u.Roles[0] = "Hacked"

	got, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []string{RoleAdmin}, got.Roles)
}

func TestMemoryStore_TouchLastLogin(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	u, err := s.CreateUser(ctx, CreateUserInput{Email: "e@f.kz", PasswordHash: "h", PasswordSalt: "s"})
	require.NoError(t, err)

	at := time.Now().UTC()
	require.NoError(t, s.TouchLastLogin(ctx, u.ID, at))

	got, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)
	require.True(t, got.LastLoginAt.Equal(at))

	require.True(t, IsNotFound(s.TouchLastLogin(ctx, "missing", at)))
}

func TestMemoryStore_NotFound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.GetUserByEmail(ctx, "x@y.kz")
	require.True(t, IsNotFound(err))

	_, err = s.GetUserByID(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV")
	require.True(t, IsNotFound(err))
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.CreateUser(ctx, CreateUserInput{Email: "a@b.kz", PasswordHash: "h", PasswordSalt: "s"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_ConcurrentCreateSameEmail(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateUser(ctx, CreateUserInput{Email: "race@b.kz", PasswordHash: "h", PasswordSalt: "s"})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, successes)
}

func ptr[T any](v T) *T { return &v }
