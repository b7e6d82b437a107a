package session

import (
	"context"
	"testing"

	"sauat/cmd/identity"
	"sauat/cmd/internal/pgtest"
)

// Integration tests are opt-in and require SAUAT_DATABASE_URL.

func TestPostgresStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) (Store, string) {
		pool := pgtest.Open(t)
		schema := pgtest.NewSchema(t, pool)

		users, err := identity.NewPostgresStore(pool, identity.WithSchema(schema))
		if err != nil {
			t.Fatalf("identity store: %v", err)
		}
		u, err := users.CreateUser(context.Background(), identity.CreateUserInput{
			Email:        "refresh-owner@example.com",
			PasswordHash: "h",
			PasswordSalt: "s",
		})
		if err != nil {
			t.Fatalf("seed user: %v", err)
		}

		s, err := NewPostgresStore(pool, WithSchema(schema))
		if err != nil {
			t.Fatalf("new store: %v", err)
		}
		return s, u.ID
	})
}
