// Package middleware holds chi HTTP middleware shared across the admin
// surface: bearer-token authentication and scope enforcement.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/dmriding/talos/internal/auth"
	"github.com/dmriding/talos/internal/httpx"
)

type contextKey string

const (
	subjectKey contextKey = "subject"
	scopesKey  contextKey = "scopes"
)

// RequireAuth returns middleware that validates the Authorization header
// against authenticator (either admin scheme — API token or bearer JWT) and,
// when enabled is false, rejects every request with AuthDisabled (spec
// §4.H: "When configuration does not enable auth, admin endpoints must be
// rejected with AuthDisabled rather than silently allowed").
func RequireAuth(authenticator *auth.Authenticator, enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				httpx.WriteError(w, httpx.CodeAuthDisabled, "authentication is disabled")
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				httpx.WriteError(w, httpx.CodeMissingToken, "missing authorization header")
				return
			}
			if !strings.HasPrefix(header, "Bearer ") {
				httpx.WriteError(w, httpx.CodeInvalidHeader, "authorization header must use the Bearer scheme")
				return
			}

			result, err := authenticator.Authenticate(r.Context(), strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				switch err {
				case auth.ErrTokenExpired:
					httpx.WriteError(w, httpx.CodeTokenExpired, "token expired")
				default:
					httpx.WriteError(w, httpx.CodeInvalidToken, "invalid token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey, result.Subject)
			ctx = context.WithValue(ctx, scopesKey, result.Scopes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope returns middleware that enforces the caller's token carries
// required, per the matching rules in internal/auth.HasScope.
func RequireScope(required string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scopes := Scopes(r.Context())
			if !auth.HasScope(scopes, required) {
				httpx.WriteError(w, httpx.CodeInsufficientScope, "insufficient scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Subject returns the authenticated token subject from the request context.
func Subject(ctx context.Context) string {
	v, _ := ctx.Value(subjectKey).(string)
	return v
}

// Scopes returns the authenticated token's scopes from the request context.
func Scopes(ctx context.Context) []string {
	v, _ := ctx.Value(scopesKey).([]string)
	return v
}
