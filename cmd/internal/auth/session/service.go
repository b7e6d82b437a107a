package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"sauat/cmd/identity"
	"sauat/cmd/security/token"
)

// UserDirectory is the subset of identity.Store the service needs.
type UserDirectory interface {
	GetUserByEmail(ctx context.Context, email string) (identity.User, error)
	GetUserByID(ctx context.Context, id string) (identity.User, error)
	CreateUser(ctx context.Context, in identity.CreateUserInput) (identity.User, error)
	TouchLastLogin(ctx context.Context, id string, now time.Time) error
}

// PasswordHasher hashes and verifies passwords and checks new ones against policy.
type PasswordHasher interface {
	Hash(password string) (hash string, salt string, err error)
	Verify(password, hash, salt string) bool
	Validate(password string) error
}

// Observer receives one call per completed auth operation.
// outcome is "success", "failure" or "error".
type Observer interface {
	AuthOutcome(op, outcome string)
}

// Profile is the user view returned to clients. It never carries credentials.
type Profile struct {
	ID          string
	Email       string
	FirstName   string
	LastName    string
	PhoneNumber *string
	Roles       []string
	LastLoginAt *time.Time
}

// Issued is the result of Login, Register and Refresh.
type Issued struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             Profile
}

// RegisterInput describes a self-service registration.
type RegisterInput struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	PhoneNumber *string
}

// Service implements the login, register, refresh and logout flows.
type Service struct {
	log      *slog.Logger
	users    UserDirectory
	hasher   PasswordHasher
	tokens   AccessTokenManager
	refresh  *Rotator
	observer Observer
	now      func() time.Time

	// dummyHash/dummySalt are verified against for unknown emails so that
	// both rejection paths cost one key derivation.
	dummyHash string
	dummySalt string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithObserver reports auth outcomes to o.
func WithObserver(o Observer) ServiceOption {
	return func(s *Service) { s.observer = o }
}

// WithClock overrides the service clock.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the orchestrator. All collaborators are required.
func NewService(log *slog.Logger, users UserDirectory, hasher PasswordHasher, tokens AccessTokenManager, refresh *Rotator, opts ...ServiceOption) (*Service, error) {
	if users == nil || hasher == nil || tokens == nil || refresh == nil {
		return nil, fmt.Errorf("%w: session service requires users, hasher, tokens and refresh", ErrConfig)
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		log:     log,
		users:   users,
		hasher:  hasher,
		tokens:  tokens,
		refresh: refresh,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	pad, err := token.NewOpaque(token.MinBytes)
	if err != nil {
		return nil, err
	}
	s.dummyHash, s.dummySalt, err = hasher.Hash(pad)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Login verifies credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password, ip string) (Issued, error) {
	const op = "login"

	email = identity.NormalizeEmail(email)

	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !identity.IsNotFound(err) {
			s.observe(op, "error")
			return Issued{}, StorageError{Op: "users.get_by_email", Err: err}
		}
		_ = s.hasher.Verify(password, s.dummyHash, s.dummySalt)
		s.observe(op, "failure")
		s.log.InfoContext(ctx, "auth.login.fail", "reason", "unknown_email", "ip", ip)
		return Issued{}, ErrAuthentication
	}

	if !s.hasher.Verify(password, u.PasswordHash, u.PasswordSalt) {
		s.observe(op, "failure")
		s.log.InfoContext(ctx, "auth.login.fail", "reason", "bad_password", "user_id", u.ID, "ip", ip)
		return Issued{}, ErrAuthentication
	}

	out, err := s.issue(ctx, u, ip)
	if err != nil {
		s.observe(op, "error")
		return Issued{}, err
	}

	now := s.now()
	if err := s.users.TouchLastLogin(ctx, u.ID, now); err != nil {
		s.log.WarnContext(ctx, "auth.login.touch.fail", "user_id", u.ID, "err", err)
	} else {
		out.User.LastLoginAt = &now
	}

	s.observe(op, "success")
	s.log.InfoContext(ctx, "auth.login.ok", "user_id", u.ID, "ip", ip)
	return out, nil
}

// Register creates a user with the default role and issues a token pair.
func (s *Service) Register(ctx context.Context, in RegisterInput, ip string) (Issued, error) {
	const op = "register"

	email := identity.NormalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		s.observe(op, "failure")
		return Issued{}, InputError{Field: "email"}
	}
	if err := s.hasher.Validate(in.Password); err != nil {
		s.observe(op, "failure")
		return Issued{}, InputError{Field: "password", Err: err}
	}

	hash, salt, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.observe(op, "error")
		return Issued{}, err
	}

	u, err := s.users.CreateUser(ctx, identity.CreateUserInput{
		Email:        email,
		PasswordHash: hash,
		PasswordSalt: salt,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PhoneNumber:  in.PhoneNumber,
		Roles:        []string{identity.RoleUser},
		Now:          s.now(),
	})
	if err != nil {
		switch {
		case identity.IsConflict(err):
			s.observe(op, "failure")
			return Issued{}, ErrEmailTaken
		case identity.IsInvalidInput(err):
			s.observe(op, "failure")
			return Issued{}, InputError{Field: "user", Err: err}
		default:
			s.observe(op, "error")
			return Issued{}, StorageError{Op: "users.create", Err: err}
		}
	}

	out, err := s.issue(ctx, u, ip)
	if err != nil {
		s.observe(op, "error")
		return Issued{}, err
	}

	s.observe(op, "success")
	s.log.InfoContext(ctx, "auth.register.ok", "user_id", u.ID, "ip", ip)
	return out, nil
}

// Refresh rotates a refresh token and issues a new access token.
// Every client-caused failure is ErrAuthentication; storage failures are not masked.
func (s *Service) Refresh(ctx context.Context, refreshToken, ip string) (Issued, error) {
	const op = "refresh"

	old, err := s.refresh.Get(ctx, refreshToken)
	if err != nil {
		return Issued{}, s.refreshFailure(ctx, op, err, "lookup")
	}
	if !old.IsActive(s.now()) {
		s.observe(op, "failure")
		s.log.InfoContext(ctx, "auth.refresh.fail", "reason", "inactive", "token", token.Fingerprint(refreshToken), "ip", ip)
		return Issued{}, ErrAuthentication
	}

	next, err := s.refresh.Rotate(ctx, refreshToken, ip)
	if err != nil {
		return Issued{}, s.refreshFailure(ctx, op, err, "rotate")
	}

	u, err := s.users.GetUserByID(ctx, next.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			s.observe(op, "failure")
			s.log.WarnContext(ctx, "auth.refresh.fail", "reason", "user_missing", "user_id", next.UserID)
			return Issued{}, ErrAuthentication
		}
		s.observe(op, "error")
		return Issued{}, StorageError{Op: "users.get_by_id", Err: err}
	}

	access, exp, err := s.tokens.Issue(principalOf(u), s.now())
	if err != nil {
		s.observe(op, "error")
		return Issued{}, err
	}

	s.observe(op, "success")
	return Issued{
		AccessToken:      access,
		AccessExpiresAt:  exp,
		RefreshToken:     next.Token,
		RefreshExpiresAt: next.ExpiresAt,
		User:             profileOf(u),
	}, nil
}

func (s *Service) refreshFailure(ctx context.Context, op string, err error, stage string) error {
	if errors.Is(err, ErrTokenNotFound) || errors.Is(err, ErrTokenNotActive) {
		s.observe(op, "failure")
		s.log.InfoContext(ctx, "auth.refresh.fail", "reason", stage, "err", err)
		return ErrAuthentication
	}
	s.observe(op, "error")
	s.log.ErrorContext(ctx, "auth.refresh.error", "stage", stage, "err", err)
	return err
}

// Logout revokes the refresh token. Unknown and inactive tokens succeed.
func (s *Service) Logout(ctx context.Context, refreshToken, ip string) error {
	const op = "logout"

	revoked, err := s.refresh.Revoke(ctx, refreshToken, ip, ReasonLogout)
	if err != nil {
		s.observe(op, "error")
		return err
	}
	s.observe(op, "success")
	if revoked {
		s.log.InfoContext(ctx, "auth.logout.ok", "token", token.Fingerprint(refreshToken), "ip", ip)
	}
	return nil
}

// Authenticate verifies an access token.
func (s *Service) Authenticate(accessToken string) (AccessClaims, error) {
	return s.tokens.Verify(accessToken, s.now())
}

// CurrentUser resolves the profile behind an access token.
// Token errors are returned as-is; a deleted user is ErrAuthentication.
func (s *Service) CurrentUser(ctx context.Context, accessToken string) (Profile, error) {
	claims, err := s.Authenticate(accessToken)
	if err != nil {
		return Profile{}, err
	}

	u, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			return Profile{}, ErrAuthentication
		}
		return Profile{}, StorageError{Op: "users.get_by_id", Err: err}
	}
	return profileOf(u), nil
}

// Cleanup deletes inactive refresh tokens.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	return s.refresh.Cleanup(ctx)
}

func (s *Service) issue(ctx context.Context, u identity.User, ip string) (Issued, error) {
	access, exp, err := s.tokens.Issue(principalOf(u), s.now())
	if err != nil {
		return Issued{}, err
	}
	rt, err := s.refresh.Generate(ctx, u.ID, ip)
	if err != nil {
		return Issued{}, err
	}
	return Issued{
		AccessToken:      access,
		AccessExpiresAt:  exp,
		RefreshToken:     rt.Token,
		RefreshExpiresAt: rt.ExpiresAt,
		User:             profileOf(u),
	}, nil
}

func (s *Service) observe(op, outcome string) {
	if s.observer != nil {
		s.observer.AuthOutcome(op, outcome)
	}
}

func principalOf(u identity.User) Principal {
	return Principal{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.DisplayName(),
		Roles:  slices.Clone(u.Roles),
	}
}

func profileOf(u identity.User) Profile {
	return Profile{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		PhoneNumber: u.PhoneNumber,
		Roles:       slices.Clone(u.Roles),
		LastLoginAt: u.LastLoginAt,
	}
}
