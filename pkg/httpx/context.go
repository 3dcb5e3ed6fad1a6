package httpx

import (
	"context"

	"github.com/aussiebroadwan/aisconsent/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeyTppID  ctxKey = "tpp_id"
	CtxKeyScopes ctxKey = "scopes"
	CtxKeyClaims ctxKey = "claims"
)

// TppIDFromContext returns the authenticated TPP id, or "" outside an
// authenticated request.
func TppIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyTppID).(string); ok {
		return v
	}
	return ""
}

// ClaimsFromContext returns the verified token claims.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(CtxKeyClaims).(jwtx.Claims)
	return c, ok
}

func scopesFromCtx(ctx context.Context) []string {
	if v, ok := ctx.Value(CtxKeyScopes).([]string); ok {
		return v
	}
	return nil
}
