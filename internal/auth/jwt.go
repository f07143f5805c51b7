package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenInvalid     = errors.New("token malformed or signature invalid")
	ErrTokenNotYetValid = errors.New("token not yet valid")
	ErrTokenUnknown     = errors.New("token could not be verified")
)

type Claims struct {
	Email     string `json:"email"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// UserID decodes the subject claim.
func (c *Claims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// Principal is the authenticated identity for one request.
type Principal struct {
	UserID int64  `json:"id"`
	Email  string `json:"email"`
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type Manager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewManager(secret string, accessTTL time.Duration, refreshTTL time.Duration) *Manager {
	return &Manager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock returns a copy of m reading time from now.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	cp := *m
	cp.now = now
	return &cp
}

func (m *Manager) IssueAccessToken(userID int64, email string) (string, error) {
	return m.sign(userID, email, TokenTypeAccess, m.accessTTL)
}

func (m *Manager) IssueRefreshToken(userID int64, email string) (string, error) {
	return m.sign(userID, email, TokenTypeRefresh, m.refreshTTL)
}

func (m *Manager) IssuePair(userID int64, email string) (TokenPair, error) {
	access, err := m.IssueAccessToken(userID, email)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := m.IssueRefreshToken(userID, email)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (m *Manager) sign(userID int64, email, typ string, ttl time.Duration) (string, error) {
	now := m.now()

	claims := Claims{
		Email:     email,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify checks signature, expiry and not-before. The returned error wraps
// exactly one of the ErrToken* sentinels.
func (m *Manager) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, classify(err)
	}

	if !token.Valid {
		return nil, ErrTokenUnknown
	}

	if _, err := claims.UserID(); err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrTokenInvalid)
	}

	return claims, nil
}

func (m *Manager) VerifyAccessToken(tokenStr string) (*Claims, error) {
	return m.verifyType(tokenStr, TokenTypeAccess)
}

func (m *Manager) VerifyRefreshToken(tokenStr string) (*Claims, error) {
	return m.verifyType(tokenStr, TokenTypeRefresh)
}

func (m *Manager) verifyType(tokenStr, typ string) (*Claims, error) {
	claims, err := m.Verify(tokenStr)
	if err != nil {
		return nil, err
	}

	if claims.TokenType != typ {
		return nil, fmt.Errorf("%w: expected %s token", ErrTokenInvalid, typ)
	}

	return claims, nil
}

// classify maps jwt errors onto the token taxonomy. Expiry is checked before
// the generic claim errors since jwt wraps it in ErrTokenInvalidClaims.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return fmt.Errorf("%w: %v", ErrTokenNotYetValid, err)
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrSignatureInvalid),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenUnknown, err)
	}
}

// PrincipalFromClaims builds the request identity from verified claims.
func PrincipalFromClaims(c *Claims) (Principal, error) {
	id, err := c.UserID()
	if err != nil {
		return Principal{}, fmt.Errorf("%w: bad subject", ErrTokenInvalid)
	}
	return Principal{UserID: id, Email: c.Email}, nil
}
