package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"go.uber.org/zap"
)

// BearerToken returns middleware that requires "Authorization: Bearer <token>".
//
// It guards machine endpoints such as /metrics. An empty token disables
// the check so local scrapes work without configuration.
func BearerToken(token string, logger *zap.Logger) func(http.Handler) http.Handler {
	if token == "" {
		logger.Warn("bearer token not configured; endpoint is unauthenticated")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			scheme, provided, found := strings.Cut(r.Header.Get("Authorization"), " ")
			if !found || !strings.EqualFold(scheme, "Bearer") {
				jsonutil.Unauthorized(w, "missing bearer token")
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				logger.Warn("request rejected: invalid bearer token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr))
				jsonutil.Unauthorized(w, "invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
