package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/geocoder89/taskhub/internal/apperr"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-with-enough-bytes!!"

func newTestManager() *Manager {
	return NewManager(testSecret, time.Hour, 7*24*time.Hour)
}

func TestManager_IssueAndVerify(t *testing.T) {
	m := newTestManager()

	access, err := m.IssueAccessToken(42, "a@x.com")
	require.NoError(t, err)

	claims, err := m.VerifyAccessToken(access)
	require.NoError(t, err)

	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, claims.IssuedAt.Add(time.Hour), claims.ExpiresAt.Time, time.Second)
}

func TestManager_RefreshTTL(t *testing.T) {
	m := newTestManager()

	refresh, err := m.IssueRefreshToken(1, "a@x.com")
	require.NoError(t, err)

	claims, err := m.VerifyRefreshToken(refresh)
	require.NoError(t, err)
	assert.WithinDuration(t, claims.IssuedAt.Add(7*24*time.Hour), claims.ExpiresAt.Time, time.Second)
}

func TestManager_Verify_Expired(t *testing.T) {
	past := time.Now().Add(-3 * time.Hour)
	issuer := newTestManager().WithClock(func() time.Time { return past })

	token, err := issuer.IssueAccessToken(1, "a@x.com")
	require.NoError(t, err)

	_, err = newTestManager().Verify(token)

	require.ErrorIs(t, err, ErrTokenExpired)
	assert.NotErrorIs(t, err, ErrTokenInvalid)
}

func TestManager_Verify_ForeignSecret(t *testing.T) {
	other := NewManager("another-secret-key-with-enough-bytes", time.Hour, time.Hour)

	token, err := other.IssueAccessToken(1, "a@x.com")
	require.NoError(t, err)

	_, err = newTestManager().Verify(token)

	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestManager_Verify_Malformed(t *testing.T) {
	for _, raw := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := newTestManager().Verify(raw)
		require.ErrorIs(t, err, ErrTokenInvalid, "token %q", raw)
	}
}

func TestManager_Verify_NotYetValid(t *testing.T) {
	now := time.Now()
	claims := Claims{
		Email:     "a@x.com",
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(2 * time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = newTestManager().Verify(token)

	require.ErrorIs(t, err, ErrTokenNotYetValid)
}

func TestManager_Verify_RejectsOtherAlgorithms(t *testing.T) {
	claims := Claims{
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = newTestManager().Verify(token)

	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestManager_Verify_MissingExpiry(t *testing.T) {
	claims := Claims{TokenType: TokenTypeAccess, RegisteredClaims: jwt.RegisteredClaims{Subject: "1"}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = newTestManager().Verify(token)

	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestManager_TokenTypeIsEnforced(t *testing.T) {
	m := newTestManager()

	pair, err := m.IssuePair(5, "b@x.com")
	require.NoError(t, err)

	_, err = m.VerifyAccessToken(pair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, err = m.VerifyRefreshToken(pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestManager_IssuePair_TokensAreDistinct(t *testing.T) {
	m := newTestManager()

	first, err := m.IssuePair(5, "b@x.com")
	require.NoError(t, err)
	second, err := m.IssuePair(5, "b@x.com")
	require.NoError(t, err)

	assert.NotEqual(t, first.AccessToken, first.RefreshToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
}

func TestPrincipalFromClaims(t *testing.T) {
	p, err := PrincipalFromClaims(&Claims{Email: "c@x.com", RegisteredClaims: jwt.RegisteredClaims{Subject: "9"}})
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: 9, Email: "c@x.com"}, p)

	_, err = PrincipalFromClaims(&Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "abc"}})
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestUnauthenticated_ReasonsAreDistinct(t *testing.T) {
	errs := []error{ErrTokenExpired, ErrTokenInvalid, ErrTokenNotYetValid, ErrTokenUnknown}

	codes := map[string]bool{}
	messages := map[string]bool{}

	for _, e := range errs {
		got := Unauthenticated(e)
		assert.Equal(t, apperr.KindUnauthenticated, got.Kind)
		codes[got.Code] = true
		messages[got.Message] = true
	}

	assert.Len(t, codes, len(errs))
	assert.Len(t, messages, len(errs))
	assert.False(t, strings.Contains(MissingToken().Code, "token_"))
}
