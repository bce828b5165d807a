package middleware

import (
	"context"
	"net/http"

	"github.com/campusfair/gatekeeper/internal/models"
	"github.com/campusfair/gatekeeper/internal/session"
	pkghttp "github.com/campusfair/gatekeeper/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// SessionContextKey is the key for storing the validated session in context
	SessionContextKey contextKey = "session"
)

// SessionAuth validates the session token on every request and injects the
// resulting session into context. Tokens close to expiry are rotated
// transparently; the replacement is written back as a cookie.
func SessionAuth(manager *session.Manager, cookies session.CookieConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := session.TokenFromRequest(r)
			if token == "" {
				pkghttp.WriteUnauthorized(w, "authentication required")
				return
			}

			sess, err := manager.Validate(token)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "invalid or expired session")
				return
			}

			if rotated, expiresAt, ok, err := manager.RefreshIfNeeded(token); err == nil && ok {
				session.SetSessionCookie(w, rotated, expiresAt, cookies)
			}

			ctx := context.WithValue(r.Context(), SessionContextKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext returns the session injected by SessionAuth, or nil.
func SessionFromContext(ctx context.Context) *models.Session {
	sess, _ := ctx.Value(SessionContextKey).(*models.Session)
	return sess
}

// RequireStaff rejects requests whose session does not belong to a staff
// member holding one of the given roles. With no roles listed, any staff
// session passes.
func RequireStaff(roles ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := SessionFromContext(r.Context())
			if sess == nil {
				pkghttp.WriteUnauthorized(w, "authentication required")
				return
			}
			if sess.Kind != models.SubjectStaff {
				pkghttp.WriteForbidden(w, "staff access required")
				return
			}
			if len(roles) > 0 {
				allowed := false
				for _, role := range roles {
					if sess.Role == role {
						allowed = true
						break
					}
				}
				if !allowed {
					pkghttp.WriteForbidden(w, "insufficient permissions")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
