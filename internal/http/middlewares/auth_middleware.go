package middlewares

import (
	"net/http"
	"strings"

	"github.com/geocoder89/taskhub/internal/actorctx"
	"github.com/geocoder89/taskhub/internal/auth"
	"github.com/gin-gonic/gin"
)

// Keep this small interface so tests can fake it easily.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*auth.Claims, error)
}

type AuthMiddleware struct {
	jwt       TokenVerifier
	onFailure func(reason string)
}

func NewAuthMiddleware(jwt TokenVerifier, onFailure func(reason string)) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt, onFailure: onFailure}
}

// RequireAuth verifies the bearer access token and attaches the principal to
// the request context. It never touches a store.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			e := auth.MissingToken()
			m.fail(e.Code)
			abortWithError(c, http.StatusUnauthorized, e.Code, e.Message)
			return
		}

		claims, err := m.jwt.VerifyAccessToken(raw)
		if err != nil {
			e := auth.Unauthenticated(err)
			m.fail(e.Code)
			abortWithError(c, http.StatusUnauthorized, e.Code, e.Message)
			return
		}

		p, err := auth.PrincipalFromClaims(claims)
		if err != nil {
			e := auth.Unauthenticated(err)
			m.fail(e.Code)
			abortWithError(c, http.StatusUnauthorized, e.Code, e.Message)
			return
		}

		c.Request = c.Request.WithContext(actorctx.WithPrincipal(c.Request.Context(), p))
		c.Set(CtxUserID, p.UserID)

		c.Next()
	}
}

func (m *AuthMiddleware) fail(reason string) {
	if m.onFailure != nil {
		m.onFailure(reason)
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}

// PrincipalFromContext returns the identity set by RequireAuth.
func PrincipalFromContext(c *gin.Context) (auth.Principal, bool) {
	return actorctx.PrincipalFrom(c.Request.Context())
}
