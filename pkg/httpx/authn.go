package httpx

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/tollgate/pkg/jwtx"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
)

// Authn requires a valid bearer access token.
func Authn(v jwtx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, http.StatusUnauthorized, "invalid_token", "missing bearer token")
				return
			}

			claims, err := v.Verify(raw)
			if err != nil {
				slogx.FromContext(r.Context()).Warn("jwt verify failed", "err", err)
				writeBearerError(w, http.StatusUnauthorized, "invalid_token", "token verification failed")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireScope rejects callers whose token lacks any of scopes.
func RequireScope(scopes ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, _ := ClaimsFrom(r.Context())
			for _, s := range scopes {
				if !c.HasScope(s) {
					w.Header().Set("WWW-Authenticate",
						`Bearer error="insufficient_scope", scope="`+strings.Join(scopes, " ")+`"`)
					WriteJSON(w, http.StatusForbidden, map[string]string{"error": "insufficient_scope"})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the token from an Authorization: Bearer header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(authz, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RFC 6750 error response.
func writeBearerError(w http.ResponseWriter, code int, errCode, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="`+errCode+`", error_description="`+desc+`"`)
	WriteJSON(w, code, map[string]string{"error": errCode, "error_description": desc})
}
