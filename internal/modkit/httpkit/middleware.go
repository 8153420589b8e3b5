package httpkit

import (
	"compress/flate"
	"net/http"
	"time"

	"shillwatch/internal/platform/net/middleware"
)

// CommonStack returns a baseline per module middleware slice
// corsOrigins empty means the cors lib default (allow none)
func CommonStack(corsOrigins ...string) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		// tracing / correlation
		middleware.RequestID(),
		middleware.LogContext,
		middleware.RealIP(),

		// safety
		middleware.RecoverJSON,

		// cache / freshness
		middleware.NoCache(),

		// observability
		middleware.AccessLogZerolog(middleware.AccessLogOptions{Slow: 500 * time.Millisecond}),

		// cross-origin
		middleware.CORS(middleware.CORSOptions{AllowedOrigins: corsOrigins}),
		middleware.Compress(flate.BestSpeed),
		middleware.Heartbeat("/health"),
		middleware.RedirectSlashes(),
		middleware.StripSlashes(),
		middleware.Timeout(30 * time.Second),
	}
}
