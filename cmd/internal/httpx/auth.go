package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"userhub/cmd/identity"
)

// Authenticator resolves a bearer access token to an active user.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (identity.User, error)
}

// Guard wraps handlers with bearer authentication and role checks.
type Guard struct {
	Auth Authenticator
	Log  *slog.Logger
}

// Authenticated requires a valid bearer token and stores the caller on the request context.
func (g Guard) Authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := BearerToken(r)
		if raw == "" {
			WriteError(w, r, g.Log, ErrMissingToken)
			return
		}
		u, err := g.Auth.Authenticate(r.Context(), raw)
		if err != nil {
			WriteError(w, r, g.Log, err)
			return
		}
		next(w, r.WithContext(WithUser(r.Context(), u)))
	}
}

// Roles requires authentication and one of roles.
func (g Guard) Roles(next http.HandlerFunc, roles ...identity.Role) http.HandlerFunc {
	return g.Authenticated(func(w http.ResponseWriter, r *http.Request) {
		u, _ := UserFrom(r.Context())
		if !slices.Contains(roles, u.Role) {
			WriteError(w, r, g.Log, ErrForbidden)
			return
		}
		next(w, r)
	})
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
