// Package middleware holds the HTTP middleware shared by every API route: authentication,
// role checks, request telemetry, and JSON responses.
package middleware

import (
	"net/http"
	"strings"

	fleetdomain "fleet-tracker/internal/fleet/domain"
	"fleet-tracker/internal/security"
)

const bearerPrefix = "bearer "

// accessTokenParam carries the token on websocket upgrades, where browsers cannot set headers.
const accessTokenParam = "access_token"

// TokenValidator validates access tokens. *security.TokenProvider implements it.
type TokenValidator interface {
	ValidateAccess(token string) (security.Identity, error)
}

// RequireAuth validates the bearer token (or the access_token query parameter) and stores
// the caller in the request context. Requests without a valid token get 401.
func RequireAuth(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				token = strings.TrimSpace(r.URL.Query().Get(accessTokenParam))
			}
			if token == "" {
				WriteError(w, http.StatusUnauthorized, "missing or invalid authorization")
				return
			}
			id, err := tokens.ValidateAccess(token)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "missing or invalid authorization")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole lets the request through only when the caller has one of roles (403 otherwise).
// It must run after RequireAuth.
func RequireRole(roles ...fleetdomain.Role) func(http.Handler) http.Handler {
	allowed := make(map[fleetdomain.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				WriteError(w, http.StatusUnauthorized, "missing or invalid authorization")
				return
			}
			if !allowed[id.Role] {
				WriteError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Chain wraps h with mws; the first middleware is the outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// extractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
