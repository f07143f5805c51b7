package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/geocoder89/taskhub/internal/apperr"
	"github.com/geocoder89/taskhub/internal/auth"
	"github.com/geocoder89/taskhub/internal/domain/user"
)

const (
	CodeEmailTaken         = "email_taken"
	CodeInvalidCredentials = "invalid_credentials"
	CodeInvalidRefresh     = "invalid_refresh"
)

// One message for every login failure so callers cannot tell which emails
// are registered.
const invalidCredentialsMessage = "Invalid email or password"

type UserStore interface {
	FindByEmail(ctx context.Context, email string) (user.User, error)
	Create(ctx context.Context, email, passwordHash, name string) (user.User, error)
}

type PasswordHasher interface {
	Hash(ctx context.Context, plain string) (string, error)
	Verify(ctx context.Context, plain, hash string) (bool, error)
	VerifyDummy(ctx context.Context, plain string)
}

type TokenIssuer interface {
	IssuePair(userID int64, email string) (auth.TokenPair, error)
	VerifyRefreshToken(token string) (*auth.Claims, error)
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResult struct {
	User   user.User
	Tokens auth.TokenPair
}

type AuthService struct {
	users  UserStore
	hasher PasswordHasher
	tokens TokenIssuer
	log    *slog.Logger
}

func NewAuthService(users UserStore, hasher PasswordHasher, tokens TokenIssuer, log *slog.Logger) *AuthService {
	if log == nil {
		log = slog.Default()
	}
	return &AuthService{users: users, hasher: hasher, tokens: tokens, log: log}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	email := user.NormalizeEmail(in.Email)
	password := strings.TrimSpace(in.Password)

	_, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return AuthResult{}, emailTaken()
	case !errors.Is(err, user.ErrNotFound):
		return AuthResult{}, apperr.Unavailable("User store unavailable", err)
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return AuthResult{}, hasherErr(err)
	}

	u, err := s.users.Create(ctx, email, hash, strings.TrimSpace(in.Name))
	if err != nil {
		// lost a race with a concurrent registration
		if errors.Is(err, user.ErrEmailTaken) {
			return AuthResult{}, emailTaken()
		}
		return AuthResult{}, apperr.Unavailable("User store unavailable", err)
	}

	tokens, err := s.tokens.IssuePair(u.ID, u.Email)
	if err != nil {
		return AuthResult{}, apperr.Internal("Could not issue tokens", err)
	}

	s.log.InfoContext(ctx, "user registered", "user_id", u.ID)

	return AuthResult{User: u, Tokens: tokens}, nil
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (AuthResult, error) {
	email := user.NormalizeEmail(in.Email)
	password := strings.TrimSpace(in.Password)

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.hasher.VerifyDummy(ctx, password)
			s.log.InfoContext(ctx, "login failed", "reason", "unknown_email")
			return AuthResult{}, invalidCredentials()
		}
		return AuthResult{}, apperr.Unavailable("User store unavailable", err)
	}

	ok, err := s.hasher.Verify(ctx, password, u.PasswordHash)
	if err != nil {
		return AuthResult{}, hasherErr(err)
	}
	if !ok {
		s.log.InfoContext(ctx, "login failed", "reason", "password_mismatch", "user_id", u.ID)
		return AuthResult{}, invalidCredentials()
	}

	tokens, err := s.tokens.IssuePair(u.ID, u.Email)
	if err != nil {
		return AuthResult{}, apperr.Internal("Could not issue tokens", err)
	}

	return AuthResult{User: u, Tokens: tokens}, nil
}

// Profile returns the stored user behind p.
func (s *AuthService) Profile(ctx context.Context, p auth.Principal) (user.User, error) {
	u, err := s.users.FindByEmail(ctx, p.Email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.User{}, apperr.NotFound("User not found")
		}
		return user.User{}, apperr.Unavailable("User store unavailable", err)
	}

	return u, nil
}

// Refresh exchanges a valid refresh token for a new pair. The presented token
// stays valid until it expires.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return AuthResult{}, auth.Unauthenticated(err)
	}

	id, err := claims.UserID()
	if err != nil {
		return AuthResult{}, auth.Unauthenticated(auth.ErrTokenInvalid)
	}

	u, err := s.users.FindByEmail(ctx, claims.Email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return AuthResult{}, invalidRefresh()
		}
		return AuthResult{}, apperr.Unavailable("User store unavailable", err)
	}

	if u.ID != id {
		return AuthResult{}, invalidRefresh()
	}

	tokens, err := s.tokens.IssuePair(u.ID, u.Email)
	if err != nil {
		return AuthResult{}, apperr.Internal("Could not issue tokens", err)
	}

	return AuthResult{User: u, Tokens: tokens}, nil
}

// EnsureUser creates the account if the email is free. It reports whether a
// user was created.
func (s *AuthService) EnsureUser(ctx context.Context, in RegisterInput) (bool, error) {
	_, err := s.Register(ctx, in)
	if err == nil {
		return true, nil
	}

	if apperr.As(err).Code == CodeEmailTaken {
		return false, nil
	}
	return false, err
}

func emailTaken() *apperr.Error {
	return apperr.New(apperr.KindAlreadyExists, CodeEmailTaken, "A user with this email already exists")
}

func invalidCredentials() *apperr.Error {
	return apperr.New(apperr.KindInvalidCredentials, CodeInvalidCredentials, invalidCredentialsMessage)
}

func invalidRefresh() *apperr.Error {
	return apperr.New(apperr.KindUnauthenticated, CodeInvalidRefresh, "Refresh token no longer matches an active user")
}

// hasherErr separates a saturated worker pool (request gave up waiting) from
// a genuine hashing failure.
func hasherErr(err error) *apperr.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.Unavailable("Password service busy", err)
	}
	return apperr.Internal("Could not process credentials", err)
}
