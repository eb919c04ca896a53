package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/luisorozco/mercaflow-backend/pkg/logger"
)

const requestIDHeader = "X-Request-Id"

// RequestID reuses an inbound request id when the edge proxy supplies
// one, otherwise mints a fresh uuid. The id is echoed on the response
// and attached to every log line for the request.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(requestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}

			w.Header().Set(requestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
