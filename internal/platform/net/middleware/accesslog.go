// Package middleware holds adapters and in house middlewares
package middleware

import (
	"net/http"
	"time"

	"shillwatch/internal/platform/logger"
)

// AccessLogOptions configures the structured access log
type AccessLogOptions struct {
	// requests taking >= Slow log at warn, 0 disables the slow mark
	Slow time.Duration
}

// statusWriter records the status code and byte count on the way through
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	n, err := sw.ResponseWriter.Write(b)
	if n > 0 {
		sw.bytes += n
	}
	return n, err
}

// AccessLogZerolog emits one line per request through the request
// scoped logger, so request_id rides along when LogContext ran first
func AccessLogZerolog(opt AccessLogOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(sw, r)

			elapsed := time.Since(start)
			log := logger.C(r.Context())
			evt := log.Info()
			if opt.Slow > 0 && elapsed >= opt.Slow {
				evt = log.Warn()
			}
			evt.Int("status", sw.status).
				Dur("elapsed", elapsed).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("bytes", sw.bytes).
				Msg("request done")
		})
	}
}
