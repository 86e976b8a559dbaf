package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// Logger logs one line per request: method, path, remote address, and
// elapsed time. Status is not captured; streaming responses commit their
// status before the handler returns.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"duration_ms", time.Since(start).Milliseconds())
	})
}
