package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
)

// RequestID echoes the caller's X-Request-Id, or mints one, and tags the
// request's log entries with it.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(chimw.RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(chimw.RequestIDHeader, id)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
