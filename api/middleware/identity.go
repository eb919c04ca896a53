package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/luisorozco/mercaflow-backend/api/responses"
	pkgerrors "github.com/luisorozco/mercaflow-backend/pkg/errors"
	"github.com/luisorozco/mercaflow-backend/pkg/logger"
)

// userIDHeader is set by the edge proxy after it verifies the caller's
// session. The API trusts it only on routes wrapped in RequireUser.
const userIDHeader = "X-User-Id"

// RequireUser rejects requests that carry no verified user identity and
// makes the user id available to handlers through the request context.
func RequireUser(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(userIDHeader))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
				return
			}
			uid, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user identity"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), uid.String())))
		})
	}
}
