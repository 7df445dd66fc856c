package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// quietPaths are logged at debug level on success so probes and scrapes do
// not drown out API traffic.
var quietPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// Logger returns an HTTP middleware that logs every request using structured
// logging. Authenticated requests also carry the key ID; the token itself is
// never logged.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			// Authenticate runs further down the chain and attaches the
			// identity to a derived request, so it reports back through ww.
			next.ServeHTTP(ww, r.WithContext(withKeyIDSlot(r.Context(), &ww.keyID)))

			duration := time.Since(start)
			level := slog.LevelInfo
			switch {
			case ww.status >= 500:
				level = slog.LevelError
			case ww.status >= 400:
				level = slog.LevelWarn
			case quietPaths[r.URL.Path]:
				level = slog.LevelDebug
			}

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.status,
				"duration_ms", float64(duration.Microseconds()) / 1000.0,
				"bytes", ww.bytes,
				"request_id", GetRequestID(r.Context()),
				"remote_addr", r.RemoteAddr,
			}
			if ww.keyID != 0 {
				attrs = append(attrs, "key_id", ww.keyID)
			}
			logger.Log(r.Context(), level, "request", attrs...)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code and
// bytes written for logging purposes.
type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
	keyID       int64
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap returns the underlying ResponseWriter, required for http.Flusher
// and other interface assertions through middleware chains.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
