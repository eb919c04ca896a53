package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/luisorozco/mercaflow-backend/api/responses"
	pkgerrors "github.com/luisorozco/mercaflow-backend/pkg/errors"
	"github.com/luisorozco/mercaflow-backend/pkg/logger"
)

// AdminToken guards operator routes with a static bearer token. An empty
// configured token keeps the admin surface closed.
func AdminToken(token string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			supplied := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			supplied = strings.TrimSpace(supplied)
			if token == "" || supplied == "" ||
				subtle.ConstantTimeCompare([]byte(token), []byte(supplied)) != 1 {
				if logg != nil {
					logg.Warn(r.Context(), "admin token rejected")
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid admin credentials"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
