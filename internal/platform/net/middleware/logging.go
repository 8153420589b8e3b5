package middleware

import (
	"net/http"

	"shillwatch/internal/platform/logger"
	pnet "shillwatch/internal/platform/net"
)

// LogContext copies the request id onto the logger context so
// logger.C emits request_id on every line for this request
func LogContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rid := pnet.RequestID(r.Context()); rid != "" {
			r = r.WithContext(logger.WithRequest(r.Context(), rid))
		}
		next.ServeHTTP(w, r)
	})
}
