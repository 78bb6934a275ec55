package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/darmiel/warrant/internal/api/presenter"
)

const AdminRole = "admin"

// AdminClaims are carried by operator tokens minted with `warrant admin-token`.
type AdminClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// AdminAuth only lets requests through which carry an unexpired operator token
// signed with the admin key and holding the admin role.
func AdminAuth(signingKey []byte) func(handler http.Handler) http.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(signingKey) == 0 {
				presenter.Error(w, r, "admin api is disabled", http.StatusNotFound)
				return
			}

			auth := r.Header.Get("Authorization")
			tokenStr := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if tokenStr == "" {
				presenter.Error(w, r, "login required", http.StatusUnauthorized)
				return
			}

			var claims AdminClaims
			if _, err := parser.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
				return signingKey, nil
			}); err != nil {
				log.Ctx(r.Context()).Warn().Err(err).Msg("rejected admin token")
				presenter.Error(w, r, "invalid session token", http.StatusUnauthorized)
				return
			}

			if !slices.Contains(claims.Roles, AdminRole) {
				presenter.Error(w, r, "insufficient privileges", http.StatusForbidden)
				return
			}

			log.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("admin", claims.Subject)
			})
			next.ServeHTTP(w, r)
		})
	}
}
