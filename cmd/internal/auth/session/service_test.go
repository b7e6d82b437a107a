package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"sauat/cmd/identity"
	"sauat/cmd/security/password"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeHasher avoids 100k PBKDF2 rounds per test.
type fakeHasher struct {
	mu       sync.Mutex
	verifies int
}

func (f *fakeHasher) Hash(pw string) (string, string, error) { return "h:" + pw, "salt", nil }

func (f *fakeHasher) Verify(pw, hash, salt string) bool {
	f.mu.Lock()
	f.verifies++
	f.mu.Unlock()
	return hash == "h:"+pw && salt == "salt"
}

func (f *fakeHasher) Validate(pw string) error {
	if len(pw) < 8 {
		return password.ErrPasswordTooShort
	}
	return nil
}

type recordingObserver struct {
	mu  sync.Mutex
	got []string
}

func (o *recordingObserver) AuthOutcome(op, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.got = append(o.got, op+":"+outcome)
}

type mockUsers struct{ mock.Mock }

func (m *mockUsers) GetUserByEmail(ctx context.Context, email string) (identity.User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(identity.User), args.Error(1)
}

func (m *mockUsers) GetUserByID(ctx context.Context, id string) (identity.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(identity.User), args.Error(1)
}

func (m *mockUsers) CreateUser(ctx context.Context, in identity.CreateUserInput) (identity.User, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(identity.User), args.Error(1)
}

func (m *mockUsers) TouchLastLogin(ctx context.Context, id string, now time.Time) error {
	return m.Called(ctx, id, now).Error(0)
}

type serviceFixture struct {
	svc      *Service
	users    UserDirectory
	store    *MemoryStore
	hasher   *fakeHasher
	tokens   *JWTManager
	observer *recordingObserver
	now      time.Time
}

func newServiceFixture(t *testing.T, users UserDirectory) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		users:    users,
		store:    NewMemoryStore(),
		hasher:   &fakeHasher{},
		observer: &recordingObserver{},
		now:      time.Now().UTC().Truncate(time.Second),
	}
	if f.users == nil {
		f.users = identity.NewMemoryStore()
	}
	clock := func() time.Time { return f.now }

	cfg := testJWTConfig()
	var err error
	f.tokens, err = NewJWTManager(cfg)
	require.NoError(t, err)

	rot, err := NewRotator(f.store, cfg, WithRotatorClock(clock))
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc, err = NewService(log, f.users, f.hasher, f.tokens, rot, WithClock(clock), WithObserver(f.observer))
	require.NoError(t, err)
	return f
}

func (f *serviceFixture) seedUser(t *testing.T, email, pw string, roles ...string) identity.User {
	t.Helper()
	hash, salt, _ := f.hasher.Hash(pw)
	u, err := f.users.CreateUser(context.Background(), identity.CreateUserInput{
		Email:        email,
		PasswordHash: hash,
		PasswordSalt: salt,
		FirstName:    "Test",
		LastName:     "User",
		Roles:        roles,
	})
	require.NoError(t, err)
	return u
}

func TestService_Login_Success(t *testing.T) {
	f := newServiceFixture(t, nil)
	u := f.seedUser(t, "student@example.kz", "correct-horse", identity.RoleAdmin, identity.RoleInstructor)

	out, err := f.svc.Login(context.Background(), "  STUDENT@example.kz", "correct-horse", "203.0.113.5")
	require.NoError(t, err)

	assert.NotEmpty(t, out.AccessToken)
	assert.NotEmpty(t, out.RefreshToken)
	assert.Equal(t, f.now.Add(24*time.Hour), out.RefreshExpiresAt)
	assert.Equal(t, f.now.Add(30*time.Minute), out.AccessExpiresAt)
	assert.Equal(t, u.ID, out.User.ID)
	require.NotNil(t, out.User.LastLoginAt)

	claims, err := f.tokens.Verify(out.AccessToken, f.now)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, []string{identity.RoleAdmin, identity.RoleInstructor}, claims.Roles)
	assert.Equal(t, "Test User", claims.Name)

	stored, err := f.users.GetUserByID(context.Background(), u.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)

	rt, err := f.store.Get(context.Background(), out.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.5", rt.CreatedByIP)

	assert.Equal(t, []string{"login:success"}, f.observer.got)
}

func TestService_Login_WrongPasswordIssuesNothing(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.seedUser(t, "student@example.kz", "correct-horse")

	out, err := f.svc.Login(context.Background(), "student@example.kz", "wrong-horse", "ip")
	require.ErrorIs(t, err, ErrAuthentication)
	assert.Empty(t, out.AccessToken)
	assert.Zero(t, f.store.Len())
}

func TestService_Login_UnknownEmailStillVerifies(t *testing.T) {
	f := newServiceFixture(t, nil)

	_, err := f.svc.Login(context.Background(), "ghost@example.kz", "whatever", "ip")
	require.ErrorIs(t, err, ErrAuthentication)
	assert.Equal(t, 1, f.hasher.verifies)
	assert.Zero(t, f.store.Len())
	assert.Equal(t, []string{"login:failure"}, f.observer.got)
}

func TestService_Login_StorageErrorIsNotAuthFailure(t *testing.T) {
	users := &mockUsers{}
	users.On("GetUserByEmail", mock.Anything, "a@b.kz").Return(identity.User{}, errors.New("db down"))

	f := newServiceFixture(t, users)

	_, err := f.svc.Login(context.Background(), "a@b.kz", "pw", "ip")
	require.ErrorIs(t, err, ErrStorageUnavailable)
	require.NotErrorIs(t, err, ErrAuthentication)
	users.AssertExpectations(t)
}

func TestService_Login_TouchFailureIsBestEffort(t *testing.T) {
	users := &mockUsers{}
	user := identity.User{ID: contractUserID, Email: "a@b.kz", PasswordHash: "h:pw-123456", PasswordSalt: "salt", Roles: []string{identity.RoleUser}}
	users.On("GetUserByEmail", mock.Anything, "a@b.kz").Return(user, nil)
	users.On("TouchLastLogin", mock.Anything, contractUserID, mock.AnythingOfType("time.Time")).Return(errors.New("timeout"))

	f := newServiceFixture(t, users)

	out, err := f.svc.Login(context.Background(), "a@b.kz", "pw-123456", "ip")
	require.NoError(t, err)
	assert.Nil(t, out.User.LastLoginAt)
	users.AssertExpectations(t)
}

func TestService_Register(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	out, err := f.svc.Register(ctx, RegisterInput{
		Email:     "New@Example.kz",
		Password:  "long-enough",
		FirstName: "Dana",
		LastName:  "Abenova",
	}, "ip")
	require.NoError(t, err)
	assert.Equal(t, "new@example.kz", out.User.Email)
	assert.Equal(t, []string{identity.RoleUser}, out.User.Roles)
	assert.NotEmpty(t, out.RefreshToken)

	_, err = f.svc.Login(ctx, "new@example.kz", "long-enough", "ip")
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, RegisterInput{Email: "NEW@example.kz", Password: "long-enough"}, "ip")
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestService_Register_InvalidInput(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Email: "x@y.kz", Password: "short"}, "ip")
	require.ErrorIs(t, err, ErrInvalidInput)
	require.ErrorIs(t, err, password.ErrPasswordTooShort)

	var ie InputError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "password", ie.Field)

	_, err = f.svc.Register(ctx, RegisterInput{Email: "not-an-email", Password: "long-enough"}, "ip")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestService_Refresh_RotatesAndRejectsReuse(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.seedUser(t, "a@b.kz", "pw-123456", identity.RoleUser)
	ctx := context.Background()

	login, err := f.svc.Login(ctx, "a@b.kz", "pw-123456", "ip")
	require.NoError(t, err)

	f.now = f.now.Add(10 * time.Minute)
	refreshed, err := f.svc.Refresh(ctx, login.RefreshToken, "ip")
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.Equal(t, f.now.Add(24*time.Hour), refreshed.RefreshExpiresAt)

	_, err = f.svc.Refresh(ctx, login.RefreshToken, "ip")
	require.ErrorIs(t, err, ErrAuthentication)

	_, err = f.svc.Refresh(ctx, refreshed.RefreshToken, "ip")
	require.NoError(t, err)
}

func TestService_Refresh_ExpiredOrUnknown(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.seedUser(t, "a@b.kz", "pw-123456")
	ctx := context.Background()

	login, err := f.svc.Login(ctx, "a@b.kz", "pw-123456", "ip")
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, "never-issued", "ip")
	require.ErrorIs(t, err, ErrAuthentication)

	f.now = f.now.Add(25 * time.Hour)
	_, err = f.svc.Refresh(ctx, login.RefreshToken, "ip")
	require.ErrorIs(t, err, ErrAuthentication)
}

func TestService_Refresh_MissingUser(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	orphan := newTestToken("orphan-token", contractUserID, f.now, time.Hour)
	require.NoError(t, f.store.Create(ctx, orphan))

	_, err := f.svc.Refresh(ctx, "orphan-token", "ip")
	require.ErrorIs(t, err, ErrAuthentication)
}

func TestService_Refresh_ConcurrentSingleWinner(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.seedUser(t, "a@b.kz", "pw-123456")
	ctx := context.Background()

	login, err := f.svc.Login(ctx, "a@b.kz", "pw-123456", "ip")
	require.NoError(t, err)

	const n = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, auth int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Refresh(ctx, login.RefreshToken, "ip")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrAuthentication):
				auth++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, auth)
}

func TestService_Logout_Idempotent(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.seedUser(t, "a@b.kz", "pw-123456")
	ctx := context.Background()

	login, err := f.svc.Login(ctx, "a@b.kz", "pw-123456", "ip")
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, login.RefreshToken, "ip"))
	require.NoError(t, f.svc.Logout(ctx, login.RefreshToken, "ip"))
	require.NoError(t, f.svc.Logout(ctx, "unknown", "ip"))

	rt, err := f.store.Get(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, ReasonLogout, rt.RevokedReason)

	_, err = f.svc.Refresh(ctx, login.RefreshToken, "ip")
	require.ErrorIs(t, err, ErrAuthentication)
}

func TestService_Authenticate(t *testing.T) {
	f := newServiceFixture(t, nil)
	u := f.seedUser(t, "a@b.kz", "pw-123456", identity.RoleUser)

	login, err := f.svc.Login(context.Background(), "a@b.kz", "pw-123456", "ip")
	require.NoError(t, err)

	claims, err := f.svc.Authenticate(login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)

	_, err = f.svc.Authenticate("garbage")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_CurrentUser(t *testing.T) {
	f := newServiceFixture(t, nil)
	u := f.seedUser(t, "me@b.kz", "pw-123456", identity.RoleUser)

	login, err := f.svc.Login(context.Background(), "me@b.kz", "pw-123456", "ip")
	require.NoError(t, err)

	p, err := f.svc.CurrentUser(context.Background(), login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, p.ID)
	assert.Equal(t, []string{identity.RoleUser}, p.Roles)

	_, err = f.svc.CurrentUser(context.Background(), "garbage")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_CurrentUser_UserGone(t *testing.T) {
	users := &mockUsers{}
	f := newServiceFixture(t, users)

	access, _, err := f.tokens.Issue(Principal{UserID: "01ARZ3NDEKTSV4RRFFQ69G5FAV", Email: "x@y.kz"}, f.now)
	require.NoError(t, err)

	users.On("GetUserByID", mock.Anything, "01ARZ3NDEKTSV4RRFFQ69G5FAV").
		Return(identity.User{}, identity.NotFoundError{Op: "identity.GetUserByID", Resource: "user"}).Once()
	_, err = f.svc.CurrentUser(context.Background(), access)
	require.ErrorIs(t, err, ErrAuthentication)

	users.On("GetUserByID", mock.Anything, "01ARZ3NDEKTSV4RRFFQ69G5FAV").
		Return(identity.User{}, errors.New("conn reset")).Once()
	_, err = f.svc.CurrentUser(context.Background(), access)
	require.ErrorIs(t, err, ErrStorageUnavailable)

	users.AssertExpectations(t)
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := NewService(nil, nil, &fakeHasher{}, nil, nil)
	require.ErrorIs(t, err, ErrConfig)
}
