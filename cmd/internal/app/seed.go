package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"sauat/cmd/identity"
	"sauat/cmd/internal/auth/session"
)

// AdminSeed describes the administrator account created on first start.
type AdminSeed struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// SeedAdmin creates the admin user with roles Admin and Instructor unless the
// email is already registered. It reports whether a user was created.
func SeedAdmin(ctx context.Context, log *slog.Logger, users identity.Store, hasher session.PasswordHasher, seed AdminSeed) (identity.User, bool, error) {
	email := identity.NormalizeEmail(seed.Email)
	if email == "" {
		return identity.User{}, false, errors.New("seed: admin email is required")
	}

	existing, err := users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		log.Info("seed.admin.exists", "user_id", existing.ID)
		return existing, false, nil
	case !identity.IsNotFound(err):
		return identity.User{}, false, err
	}

	if err := hasher.Validate(seed.Password); err != nil {
		return identity.User{}, false, err
	}
	hash, salt, err := hasher.Hash(seed.Password)
	if err != nil {
		return identity.User{}, false, err
	}

	first := strings.TrimSpace(seed.FirstName)
	if first == "" {
		first = "Sauat"
	}
	last := strings.TrimSpace(seed.LastName)
	if last == "" {
		last = "Admin"
	}

	u, err := users.CreateUser(ctx, identity.CreateUserInput{
		Email:         email,
		PasswordHash:  hash,
		PasswordSalt:  salt,
		FirstName:     first,
		LastName:      last,
		EmailVerified: true,
		Roles:         []string{identity.RoleAdmin, identity.RoleInstructor},
		Now:           time.Now().UTC(),
	})
	if identity.IsConflict(err) {
		// Another instance seeded concurrently.
		u, err = users.GetUserByEmail(ctx, email)
		return u, false, err
	}
	if err != nil {
		return identity.User{}, false, err
	}

	log.Info("seed.admin.created", "user_id", u.ID)
	return u, true, nil
}
