package service_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tomlord1122/todo-app/internal/database/dbtest"
	"github.com/Tomlord1122/todo-app/internal/domain"
	"github.com/Tomlord1122/todo-app/internal/notify"
	"github.com/Tomlord1122/todo-app/internal/repository"
	"github.com/Tomlord1122/todo-app/internal/service"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.VerificationMessage
	err  error
}

func (n *recordingNotifier) SendVerification(_ context.Context, msg notify.VerificationMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) last(t *testing.T) notify.VerificationMessage {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent, "no verification message sent")
	return n.sent[len(n.sent)-1]
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type authFixture struct {
	svc      service.AuthService
	notifier *recordingNotifier
	clock    *fakeClock
	users    repository.UserRepository
}

func newAuthFixture(t *testing.T) authFixture {
	t.Helper()
	db := dbtest.Open(t).GetDB()

	f := authFixture{
		notifier: &recordingNotifier{},
		clock:    &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
		users:    repository.NewGormUserRepository(db, time.Second),
	}
	f.svc = service.NewAuthService(
		f.users,
		repository.NewGormSessionRepository(db, time.Second),
		repository.NewGormVerificationRepository(db, time.Second),
		f.notifier,
		zerolog.Nop(),
		service.AuthOptions{
			SessionTTL:      time.Hour,
			VerificationTTL: 30 * time.Minute,
			BaseURL:         "https://todo.test",
			BcryptCost:      bcrypt.MinCost,
			Clock:           f.clock.Now,
		},
	)
	return f
}

func (f authFixture) signUp(t *testing.T, email string) *service.AuthResult {
	t.Helper()
	res, err := f.svc.SignUp(context.Background(), service.SignUpRequest{
		Name:     "Alice",
		Email:    email,
		Password: "correct horse",
	}, service.ClientInfo{IPAddress: "10.0.0.1", UserAgent: "test"})
	require.NoError(t, err)
	return res
}

func tokenFromURL(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Query().Get("token")
}

func TestAuthService_SignUpCreatesSession(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	res := f.signUp(t, " Alice@Example.com ")
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.False(t, res.User.EmailVerified)
	assert.Equal(t, f.clock.now.Add(time.Hour), res.ExpiresAt)

	session, err := f.svc.ResolveSession(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, session.UserID)
	require.NotNil(t, session.User)
	assert.Equal(t, "alice@example.com", session.User.Email)
	assert.Equal(t, "10.0.0.1", session.IPAddress)

	stored, err := f.users.FindByID(ctx, res.User.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", stored.PasswordHash)
}

func TestAuthService_SignUpDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	f.signUp(t, "alice@example.com")

	_, err := f.svc.SignUp(context.Background(), service.SignUpRequest{
		Name:     "Other",
		Email:    "ALICE@example.com",
		Password: "another password",
	}, service.ClientInfo{})
	assert.True(t, domain.IsKind(err, domain.KindConflict), "got %v", err)
}

func TestAuthService_SignUpSurvivesNotifierFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.notifier.err = errors.New("broker down")

	res := f.signUp(t, "alice@example.com")
	assert.NotEmpty(t, res.Token)
}

func TestAuthService_SignIn(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.signUp(t, "alice@example.com")

	res, err := f.svc.SignIn(ctx, service.SignInRequest{Email: "alice@example.com", Password: "correct horse"}, service.ClientInfo{})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)

	_, wrongPassword := f.svc.SignIn(ctx, service.SignInRequest{Email: "alice@example.com", Password: "wrong"}, service.ClientInfo{})
	_, unknownEmail := f.svc.SignIn(ctx, service.SignInRequest{Email: "nobody@example.com", Password: "wrong"}, service.ClientInfo{})

	assert.True(t, domain.IsKind(wrongPassword, domain.KindUnauthorized))
	assert.True(t, domain.IsKind(unknownEmail, domain.KindUnauthorized))
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestAuthService_ResolveSessionRejectsExpiredAndUnknown(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	res := f.signUp(t, "alice@example.com")

	_, err := f.svc.ResolveSession(ctx, "")
	assert.True(t, domain.IsKind(err, domain.KindUnauthorized))

	_, err = f.svc.ResolveSession(ctx, "not-a-token")
	assert.True(t, domain.IsKind(err, domain.KindUnauthorized))

	f.clock.Advance(time.Hour)
	_, err = f.svc.ResolveSession(ctx, res.Token)
	assert.True(t, domain.IsKind(err, domain.KindUnauthorized), "session at expiry instant must be invalid")
}

func TestAuthService_SignOutInvalidatesSession(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	res := f.signUp(t, "alice@example.com")

	require.NoError(t, f.svc.SignOut(ctx, res.Token))

	_, err := f.svc.ResolveSession(ctx, res.Token)
	assert.True(t, domain.IsKind(err, domain.KindUnauthorized))
}

func TestAuthService_RevokeSessionsEndsAll(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	first := f.signUp(t, "alice@example.com")
	second, err := f.svc.SignIn(ctx, service.SignInRequest{Email: "alice@example.com", Password: "correct horse"}, service.ClientInfo{})
	require.NoError(t, err)

	require.NoError(t, f.svc.RevokeSessions(ctx, first.User.ID))

	for _, token := range []string{first.Token, second.Token} {
		_, err := f.svc.ResolveSession(ctx, token)
		assert.True(t, domain.IsKind(err, domain.KindUnauthorized))
	}
}

func TestAuthService_VerifyEmailOnce(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	res := f.signUp(t, "alice@example.com")

	msg := f.notifier.last(t)
	assert.Equal(t, res.User.ID, msg.UserID)
	assert.Contains(t, msg.URL, "https://todo.test/api/auth/verify-email?token=")

	verified, err := f.svc.VerifyEmail(ctx, tokenFromURL(t, msg.URL))
	require.NoError(t, err)
	assert.True(t, verified.Status)
	assert.True(t, verified.User.EmailVerified)

	_, err = f.svc.VerifyEmail(ctx, tokenFromURL(t, msg.URL))
	assert.True(t, domain.IsKind(err, domain.KindBadRequest))

	err = f.svc.SendVerificationEmail(ctx, res.User.ID)
	assert.True(t, domain.IsKind(err, domain.KindBadRequest))
}

func TestAuthService_ResendReplacesToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	res := f.signUp(t, "alice@example.com")
	first := tokenFromURL(t, f.notifier.last(t).URL)

	require.NoError(t, f.svc.SendVerificationEmail(ctx, res.User.ID))
	second := tokenFromURL(t, f.notifier.last(t).URL)
	assert.NotEqual(t, first, second)

	_, err := f.svc.VerifyEmail(ctx, first)
	assert.True(t, domain.IsKind(err, domain.KindBadRequest))

	_, err = f.svc.VerifyEmail(ctx, second)
	assert.NoError(t, err)
}

func TestAuthService_VerifyEmailExpired(t *testing.T) {
	f := newAuthFixture(t)
	f.signUp(t, "alice@example.com")
	token := tokenFromURL(t, f.notifier.last(t).URL)

	f.clock.Advance(31 * time.Minute)
	_, err := f.svc.VerifyEmail(context.Background(), token)
	assert.True(t, domain.IsKind(err, domain.KindBadRequest))
}
