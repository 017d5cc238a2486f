package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Tomlord1122/todo-app/internal/domain"
	"github.com/Tomlord1122/todo-app/internal/notify"
	"github.com/Tomlord1122/todo-app/internal/repository"
)

// bcrypt ignores everything past 72 bytes, so longer passwords are rejected.
const maxPasswordBytes = 72

type SignUpRequest struct {
	Name     string  `json:"name" validate:"required,min=1,max=100"`
	Email    string  `json:"email" validate:"required,email,max=254"`
	Password string  `json:"password" validate:"required,min=8,max=72"`
	Image    *string `json:"image,omitempty" validate:"omitempty,url,max=2048"`
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required,max=256"`
}

// ClientInfo describes where a sign-in came from. It is stored on the session.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

type UserResponse struct {
	ID            string  `json:"id" validate:"required"`
	Name          string  `json:"name" validate:"required"`
	Email         string  `json:"email" validate:"required,email"`
	EmailVerified bool    `json:"email_verified"`
	Image         *string `json:"image"`
	CreatedAt     string  `json:"created_at" validate:"required"`
	UpdatedAt     string  `json:"updated_at" validate:"required"`
}

type SessionResponse struct {
	ID        string `json:"id" validate:"required"`
	UserID    string `json:"user_id" validate:"required"`
	ExpiresAt string `json:"expires_at" validate:"required"`
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	CreatedAt string `json:"created_at" validate:"required"`
}

// AuthResult is returned by sign-up and sign-in. ExpiresAt is used to set the
// session cookie and is not part of the response body.
type AuthResult struct {
	Token     string       `json:"token" validate:"required"`
	User      UserResponse `json:"user"`
	ExpiresAt time.Time    `json:"-"`
}

type SessionInfo struct {
	Session SessionResponse `json:"session"`
	User    UserResponse    `json:"user"`
}

type VerifyEmailResponse struct {
	Status bool         `json:"status"`
	User   UserResponse `json:"user"`
}

// AuthService manages accounts, sessions and email verification.
type AuthService interface {
	SignUp(ctx context.Context, req SignUpRequest, client ClientInfo) (*AuthResult, error)
	SignIn(ctx context.Context, req SignInRequest, client ClientInfo) (*AuthResult, error)
	SignOut(ctx context.Context, token string) error
	// RevokeSessions ends every session of the user, on all devices.
	RevokeSessions(ctx context.Context, userID string) error

	// ResolveSession returns the live session for token with its user loaded.
	// Missing, unknown and expired tokens all fail with UNAUTHORIZED.
	ResolveSession(ctx context.Context, token string) (*domain.Session, error)

	SendVerificationEmail(ctx context.Context, userID string) error
	VerifyEmail(ctx context.Context, token string) (*VerifyEmailResponse, error)
}

type AuthOptions struct {
	SessionTTL      time.Duration
	VerificationTTL time.Duration
	// BaseURL is prepended to the verification link, e.g. https://todo.example.com
	BaseURL    string
	BcryptCost int
	Clock      func() time.Time
}

type authService struct {
	users         repository.UserRepository
	sessions      repository.SessionRepository
	verifications repository.VerificationRepository
	notifier      notify.Notifier
	log           zerolog.Logger
	opts          AuthOptions

	// dummyHash is compared against when the email is unknown so both
	// failure paths do the same amount of work.
	dummyHash []byte
}

func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	verifications repository.VerificationRepository,
	notifier notify.Notifier,
	log zerolog.Logger,
	opts AuthOptions,
) AuthService {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 7 * 24 * time.Hour
	}
	if opts.VerificationTTL <= 0 {
		opts.VerificationTTL = time.Hour
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), opts.BcryptCost)

	return &authService{
		users:         users,
		sessions:      sessions,
		verifications: verifications,
		notifier:      notifier,
		log:           log.With().Str("component", "auth").Logger(),
		opts:          opts,
		dummyHash:     dummy,
	}
}

func (s *authService) now() time.Time {
	return s.opts.Clock().UTC()
}

func (s *authService) SignUp(ctx context.Context, req SignUpRequest, client ClientInfo) (*AuthResult, error) {
	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidField("name", "required")
	}
	if len(req.Password) > maxPasswordBytes {
		return nil, domain.ErrInvalidField("password", "max")
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, domain.ErrEmailExists()
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInternal(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.opts.BcryptCost)
	if err != nil {
		return nil, domain.ErrInternal(err)
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		Image:        req.Image,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(ctx, user); err != nil {
		// Lost a race with a concurrent sign-up for the same address.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrEmailExists()
		}
		return nil, domain.ErrInternal(err)
	}
	s.log.Info().Str("user_id", user.ID).Msg("user signed up")

	// Sign-up succeeds even if the link cannot be delivered; the user can
	// ask for another one.
	if err := s.sendVerification(ctx, user); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("send verification after sign-up")
	}

	return s.startSession(ctx, user, client)
}

func (s *authService) SignIn(ctx context.Context, req SignInRequest, client ClientInfo) (*AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(req.Password))
			return nil, domain.ErrInvalidCredentials()
		}
		return nil, domain.ErrInternal(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, domain.ErrInvalidCredentials()
	}

	return s.startSession(ctx, user, client)
}

func (s *authService) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return domain.ErrUnauthorized()
	}
	if err := s.sessions.DeleteByToken(ctx, token); err != nil {
		return domain.ErrInternal(err)
	}
	return nil
}

func (s *authService) RevokeSessions(ctx context.Context, userID string) error {
	if userID == "" {
		return domain.ErrUnauthorized()
	}
	if err := s.sessions.DeleteByUser(ctx, userID); err != nil {
		return domain.ErrInternal(err)
	}
	s.log.Info().Str("user_id", userID).Msg("all sessions revoked")
	return nil
}

func (s *authService) ResolveSession(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, domain.ErrUnauthorized()
	}

	now := s.now()
	session, err := s.sessions.FindValidByToken(ctx, token, now)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUnauthorized()
		}
		return nil, domain.ErrInternal(err)
	}
	if session.IsExpired(now) {
		return nil, domain.ErrUnauthorized()
	}
	return session, nil
}

func (s *authService) SendVerificationEmail(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrUnauthorized()
		}
		return domain.ErrInternal(err)
	}
	if user.EmailVerified {
		return domain.ErrEmailAlreadyVerified()
	}
	if err := s.sendVerification(ctx, user); err != nil {
		return domain.ErrInternal(err)
	}
	return nil
}

func (s *authService) VerifyEmail(ctx context.Context, token string) (*VerifyEmailResponse, error) {
	v, err := s.verifications.Consume(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrVerificationNotFound()
		}
		return nil, domain.ErrInternal(err)
	}

	user, err := s.users.FindByEmail(ctx, v.Identifier)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrVerificationNotFound()
		}
		return nil, domain.ErrInternal(err)
	}

	changed, err := s.users.MarkEmailVerified(ctx, user.ID)
	if err != nil {
		return nil, domain.ErrInternal(err)
	}
	if !changed {
		return nil, domain.ErrEmailAlreadyVerified()
	}
	user.EmailVerified = true
	s.log.Info().Str("user_id", user.ID).Msg("email verified")

	return &VerifyEmailResponse{Status: true, User: toUserResponse(user)}, nil
}

// sendVerification replaces any outstanding token for the user's address
// and hands a fresh link to the notifier.
func (s *authService) sendVerification(ctx context.Context, user *domain.User) error {
	token, err := newToken()
	if err != nil {
		return err
	}
	if err := s.verifications.DeleteByIdentifier(ctx, user.Email); err != nil {
		return err
	}

	v := &domain.Verification{
		Identifier: user.Email,
		Value:      token,
		ExpiresAt:  s.now().Add(s.opts.VerificationTTL),
	}
	if err := s.verifications.Create(ctx, v); err != nil {
		return err
	}

	return s.notifier.SendVerification(ctx, notify.VerificationMessage{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		URL:       s.opts.BaseURL + "/api/auth/verify-email?token=" + url.QueryEscape(token),
		ExpiresAt: v.ExpiresAt,
	})
}

func (s *authService) startSession(ctx context.Context, user *domain.User, client ClientInfo) (*AuthResult, error) {
	token, err := newToken()
	if err != nil {
		return nil, domain.ErrInternal(err)
	}

	session := &domain.Session{
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: s.now().Add(s.opts.SessionTTL),
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, domain.ErrInternal(err)
	}

	return &AuthResult{
		Token:     token,
		User:      toUserResponse(user),
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// NewSessionInfo builds the public view of a resolved session.
func NewSessionInfo(session *domain.Session) *SessionInfo {
	info := &SessionInfo{
		Session: SessionResponse{
			ID:        session.ID,
			UserID:    session.UserID,
			ExpiresAt: session.ExpiresAt.UTC().Format(time.RFC3339),
			IPAddress: session.IPAddress,
			UserAgent: session.UserAgent,
			CreatedAt: session.CreatedAt.UTC().Format(time.RFC3339),
		},
	}
	if session.User != nil {
		info.User = toUserResponse(session.User)
	}
	return info
}

func toUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:            user.ID,
		Name:          user.Name,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		Image:         user.Image,
		CreatedAt:     user.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     user.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// newToken returns 32 random bytes encoded for use in URLs and cookies.
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
