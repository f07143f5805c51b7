package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/taskhub/internal/apperr"
	"github.com/geocoder89/taskhub/internal/auth"
	"github.com/geocoder89/taskhub/internal/domain/user"
	"github.com/geocoder89/taskhub/internal/repo/memory"
	"github.com/geocoder89/taskhub/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "service-test-secret-0123456789abcdef"

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	svc    *AuthService
	users  *memory.UsersRepo
	tokens *auth.Manager
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	hasher, err := security.NewHasher(bcrypt.MinCost, 2)
	require.NoError(t, err)

	users := memory.NewUsersRepo()
	tokens := auth.NewManager(testSecret, time.Hour, 24*time.Hour)

	return fixture{
		svc:    NewAuthService(users, hasher, tokens, discard),
		users:  users,
		tokens: tokens,
	}
}

// fakeUserStore lets a test fail individual calls.
type fakeUserStore struct {
	findFn   func(ctx context.Context, email string) (user.User, error)
	createFn func(ctx context.Context, email, hash, name string) (user.User, error)
}

func (f *fakeUserStore) FindByEmail(ctx context.Context, email string) (user.User, error) {
	return f.findFn(ctx, email)
}

func (f *fakeUserStore) Create(ctx context.Context, email, hash, name string) (user.User, error) {
	return f.createFn(ctx, email, hash, name)
}

func TestAuthService_RegisterThenLogin(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	reg, err := fx.svc.Register(ctx, RegisterInput{Email: " A@X.com", Password: "Sup3r!23", Name: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", reg.User.Email)
	assert.NotEqual(t, "Sup3r!23", reg.User.PasswordHash)
	assert.NotEmpty(t, reg.Tokens.AccessToken)
	assert.NotEmpty(t, reg.Tokens.RefreshToken)

	res, err := fx.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "Sup3r!23"})
	require.NoError(t, err)

	claims, err := fx.tokens.VerifyAccessToken(res.Tokens.AccessToken)
	require.NoError(t, err)

	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, id)
	assert.Equal(t, "a@x.com", claims.Email)
}

func TestAuthService_Scenario(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "Sup3r!23", Name: "Ann"})
	require.NoError(t, err)

	_, err = fx.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "wrong"})
	assert.Equal(t, apperr.KindInvalidCredentials, apperr.KindOf(err))

	res, err := fx.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "Sup3r!23"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Tokens.AccessToken)
	assert.NotEmpty(t, res.Tokens.RefreshToken)
}

func TestAuthService_LoginFailuresAreIndistinguishable(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "Sup3r!23", Name: "Ann"})
	require.NoError(t, err)

	_, wrongPw := fx.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "Wr0ng!pw"})
	_, unknown := fx.svc.Login(ctx, LoginInput{Email: "nobody@x.com", Password: "Wr0ng!pw"})

	a, b := apperr.As(wrongPw), apperr.As(unknown)
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, a.Kind, b.Kind)
	assert.Equal(t, a.Code, b.Code)
	assert.Equal(t, a.Message, b.Message)
}

func TestAuthService_RegisterDuplicate(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "Sup3r!23", Name: "Ann"})
	require.NoError(t, err)

	_, err = fx.svc.Register(ctx, RegisterInput{Email: "A@x.COM", Password: "Sup3r!23", Name: "Ann"})
	assert.Equal(t, apperr.KindAlreadyExists, apperr.KindOf(err))
}

func TestAuthService_RegisterRaceMapsToAlreadyExists(t *testing.T) {
	hasher, err := security.NewHasher(bcrypt.MinCost, 1)
	require.NoError(t, err)

	store := &fakeUserStore{
		findFn: func(context.Context, string) (user.User, error) { return user.User{}, user.ErrNotFound },
		createFn: func(context.Context, string, string, string) (user.User, error) {
			return user.User{}, user.ErrEmailTaken
		},
	}
	svc := NewAuthService(store, hasher, auth.NewManager(testSecret, time.Hour, 2*time.Hour), discard)

	_, err = svc.Register(context.Background(), RegisterInput{Email: "a@x.com", Password: "Sup3r!23", Name: "Ann"})
	assert.Equal(t, apperr.KindAlreadyExists, apperr.KindOf(err))
}

func TestAuthService_StoreFailureIsUnavailable(t *testing.T) {
	hasher, err := security.NewHasher(bcrypt.MinCost, 1)
	require.NoError(t, err)

	down := errors.New("connection refused")
	store := &fakeUserStore{
		findFn: func(context.Context, string) (user.User, error) { return user.User{}, down },
	}
	tokens := auth.NewManager(testSecret, time.Hour, 2*time.Hour)
	svc := NewAuthService(store, hasher, tokens, discard)
	ctx := context.Background()

	_, err = svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "x"})
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))
	assert.ErrorIs(t, err, down)

	_, err = svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "x", Name: "Ann"})
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))

	_, err = svc.Profile(ctx, auth.Principal{UserID: 1, Email: "a@x.com"})
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))

	pair, err := tokens.IssuePair(1, "a@x.com")
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))
}

func TestAuthService_Profile(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	reg, err := fx.svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "Sup3r!23", Name: "Ann"})
	require.NoError(t, err)

	u, err := fx.svc.Profile(ctx, auth.Principal{UserID: reg.User.ID, Email: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "Ann", u.Name)

	require.NoError(t, fx.users.SoftDelete(ctx, "a@x.com"))

	_, err = fx.svc.Profile(ctx, auth.Principal{UserID: reg.User.ID, Email: "a@x.com"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestAuthService_Refresh(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	reg, err := fx.svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "Sup3r!23", Name: "Ann"})
	require.NoError(t, err)

	res, err := fx.svc.Refresh(ctx, reg.Tokens.RefreshToken)
	require.NoError(t, err)

	claims, err := fx.tokens.VerifyAccessToken(res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.User.Email, claims.Email)

	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, id)
}

// Refresh tokens are not rotated out: reuse, sequential or concurrent, keeps
// working until expiry.
func TestAuthService_RefreshTokenReuse(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	reg, err := fx.svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "Sup3r!23", Name: "Ann"})
	require.NoError(t, err)

	subjectOf := func(res AuthResult) int64 {
		claims, err := fx.tokens.VerifyAccessToken(res.Tokens.AccessToken)
		require.NoError(t, err)
		id, err := claims.UserID()
		require.NoError(t, err)
		return id
	}

	first, err := fx.svc.Refresh(ctx, reg.Tokens.RefreshToken)
	require.NoError(t, err)
	second, err := fx.svc.Refresh(ctx, reg.Tokens.RefreshToken)
	require.NoError(t, err)

	assert.Equal(t, reg.User.ID, subjectOf(first))
	assert.Equal(t, reg.User.ID, subjectOf(second))

	const n = 2
	var (
		wg      sync.WaitGroup
		results [n]AuthResult
		errs    [n]error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = fx.svc.Refresh(ctx, reg.Tokens.RefreshToken)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, reg.User.ID, subjectOf(results[i]))
		assert.Equal(t, "a@x.com", results[i].User.Email)
	}
}

func TestAuthService_RefreshRejections(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	reg, err := fx.svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "Sup3r!23", Name: "Ann"})
	require.NoError(t, err)

	expiredIssuer := fx.tokens.WithClock(func() time.Time { return time.Now().Add(-48 * time.Hour) })
	expired, err := expiredIssuer.IssueRefreshToken(reg.User.ID, "a@x.com")
	require.NoError(t, err)

	tests := []struct {
		name     string
		token    string
		wantCode string
	}{
		{name: "malformed", token: "garbage", wantCode: auth.CodeTokenInvalid},
		{name: "expired", token: expired, wantCode: auth.CodeTokenExpired},
		{name: "access token presented", token: reg.Tokens.AccessToken, wantCode: auth.CodeTokenInvalid},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.svc.Refresh(ctx, tt.token)

			e := apperr.As(err)
			require.NotNil(t, e)
			assert.Equal(t, apperr.KindUnauthenticated, e.Kind)
			assert.Equal(t, tt.wantCode, e.Code)
		})
	}

	require.NoError(t, fx.users.SoftDelete(ctx, "a@x.com"))

	_, err = fx.svc.Refresh(ctx, reg.Tokens.RefreshToken)
	e := apperr.As(err)
	require.NotNil(t, e)
	assert.Equal(t, apperr.KindUnauthenticated, e.Kind)
	assert.Equal(t, CodeInvalidRefresh, e.Code)
}

func TestAuthService_EnsureUser(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	in := RegisterInput{Email: "admin@x.com", Password: "Adm1n!pw", Name: "Admin"}

	created, err := fx.svc.EnsureUser(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = fx.svc.EnsureUser(ctx, in)
	require.NoError(t, err)
	assert.False(t, created)
}
