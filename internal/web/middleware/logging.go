// Package middleware provides HTTP middleware for the import API.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/JonMunkholm/csvimport/internal/logging"
)

// Logger logs one line per request with its status, size and duration.
// Server errors log at error, client errors at warn, and health checks at
// debug so load balancer probes stay out of the default log.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		level := slog.LevelInfo
		switch {
		case rw.status >= http.StatusInternalServerError:
			level = slog.LevelError
		case rw.status >= http.StatusBadRequest:
			level = slog.LevelWarn
		case r.URL.Path == "/health":
			level = slog.LevelDebug
		}

		logging.FromContext(r.Context()).Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"bytes", rw.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", r.RemoteAddr,
		)
	})
}

// responseWriter records the status code and body size.
type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
