package identity

import (
	"context"
	"strings"
	"time"
)

// Well-known role names.
const (
	RoleUser       = "User"
	RoleAdmin      = "Admin"
	RoleInstructor = "Instructor"
)

// StatusActive is the default account status.
const StatusActive = "active"

// User is sauat's security principal.
// PasswordHash/PasswordSalt are PBKDF2 outputs (base64) and must never leave the server.
type User struct {
	ID            string
	Email         string
	PasswordHash  string
	PasswordSalt  string
	FirstName     string
	LastName      string
	PhoneNumber   *string
	Status        string
	EmailVerified bool
	LastLoginAt   *time.Time
	CreatedAt     time.Time

	// Roles is ordered by assignment.
	Roles []string
}

// DisplayName is "First Last", trimmed.
func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// CreateUserInput describes a new user. Roles that do not exist yet are created.
type CreateUserInput struct {
	Email         string
	PasswordHash  string
	PasswordSalt  string
	FirstName     string
	LastName      string
	PhoneNumber   *string
	EmailVerified bool
	Roles         []string
	Now           time.Time
}

// Store is the identity persistence boundary.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	TouchLastLogin(ctx context.Context, id string, now time.Time) error
}
