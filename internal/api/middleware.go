package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// requestID returns the ID attached to ctx by withRequestID, or "" if none.
func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// withRequestID assigns each inbound request a fresh UUID, stored on its
// context and echoed back as X-Request-Id, and logs the request once it
// completes — every handler's slog calls that include the request's context
// pick up the same ID, so a single admin API call is traceable end to end.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-Id", id)

		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))

		slog.Info("request handled",
			"component", "admin_api",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
		)
	})
}
