// Package actorctx carries request-scoped identity on a context: the
// authenticated principal and the request id.
package actorctx

import (
	"context"

	"github.com/geocoder89/taskhub/internal/auth"
)

type (
	principalKey struct{}
	requestIDKey struct{}
)

func WithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(auth.Principal)

	return p, ok && p.UserID != 0
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
