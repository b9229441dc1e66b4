package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/adminsuite/authkit"
	"github.com/adminsuite/authkit/token"
)

// AccessCookie is the cookie fallback consulted when no Authorization
// header is present.
const AccessCookie = "accessToken"

type identityContextKey struct{}

// Identity is what the guard injects into the request context.
type Identity struct {
	User   *authkit.UserRecord
	Claims *token.Claims
}

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*Identity)
	return id, ok
}

// UserFromContext is a shorthand for the common case.
func UserFromContext(ctx context.Context) (*authkit.UserRecord, bool) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, false
	}
	return id.User, true
}

// Authenticate returns middleware that requires a valid access token,
// taken from the Authorization header first and the access cookie second.
// Expired tokens get their own error code so clients know to refresh
// rather than re-login.
func Authenticate(svc *authkit.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if svc == nil {
				writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "authentication required")
				return
			}

			raw, ok := accessToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "authentication required")
				return
			}

			user, claims, err := svc.Authenticate(r.Context(), raw)
			if err != nil {
				switch {
				case errors.Is(err, authkit.ErrTokenExpired):
					writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "access token expired")
				case errors.Is(err, authkit.ErrAccountDeactivated):
					writeError(w, http.StatusForbidden, "USER_DEACTIVATED", "account is deactivated")
				default:
					writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "invalid access token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, &Identity{User: user, Claims: claims})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func accessToken(r *http.Request) (string, bool) {
	if tok, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return tok, true
	}
	if c, err := r.Cookie(AccessCookie); err == nil && c.Value != "" {
		return c.Value, true
	}
	return "", false
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	tok := value[len(bearer):]
	if tok == "" {
		return "", false
	}
	return tok, true
}

// writeError emits the same envelope the API handlers use so clients see
// one error shape regardless of which layer rejected them.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
