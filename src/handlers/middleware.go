package handlers

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/bherila/k1flow/src/logger"
)

// ContextualLoggerMiddleware attaches a per-request logger carrying a
// request ID to the request context and echoes the ID back in the
// X-Request-ID response header so client reports can be matched to logs.
func ContextualLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()

		ctxLogger := logger.L.With(slog.String("requestID", requestID))
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(logger.ToContext(r.Context(), ctxLogger)))
	})
}
