package httpx

import (
	"context"

	"github.com/aussiebroadwan/tollgate/pkg/jwtx"
)

type ctxKey string

const ctxKeyClaims ctxKey = "claims"

// WithClaims stores verified access token claims on ctx.
func WithClaims(ctx context.Context, c jwtx.Claims) context.Context {
	return context.WithValue(ctx, ctxKeyClaims, c)
}

// ClaimsFrom returns the claims placed by Authn.
func ClaimsFrom(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(ctxKeyClaims).(jwtx.Claims)
	return c, ok
}

// SubjectFrom returns the authenticated subject or "".
func SubjectFrom(ctx context.Context) string {
	c, _ := ClaimsFrom(ctx)
	return c.Subject
}
