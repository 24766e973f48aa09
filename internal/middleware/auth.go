package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	apperrors "github.com/tabremote/relay-server/internal/errors"
	"github.com/tabremote/relay-server/internal/httputil"
	"github.com/tabremote/relay-server/internal/util"
)

// AdminAuthMiddleware guards operator endpoints with a static bearer token.
// An empty token disables the guarded routes entirely.
type AdminAuthMiddleware struct {
	token string
}

func NewAdminAuthMiddleware(token string) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{token: token}
}

func (m *AdminAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.token == "" {
			httputil.WriteError(w, apperrors.NotFound("Route"))
			return
		}

		token := extractToken(r)
		if token == "" {
			httputil.WriteError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		if !util.ConstantTimeEqual(token, m.token) {
			log.Warn().Str("remoteAddr", r.RemoteAddr).Msg("admin auth: invalid token attempt")
			httputil.WriteError(w, apperrors.Unauthorized("Invalid token"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	// EventSource cannot set headers.
	return r.URL.Query().Get("token")
}
