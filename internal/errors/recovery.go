package errors

import (
	"net/http"
	"runtime/debug"

	"github.com/copyleftdev/optplay/internal/logging"
)

// RecoveryMiddleware returns a middleware that recovers from panics and
// answers 500.
func RecoveryMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("Recovered from panic", map[string]interface{}{
						"error":  FromPanic(rec).Error(),
						"stack":  string(debug.Stack()),
						"method": r.Method,
						"path":   r.URL.Path,
						"query":  r.URL.RawQuery,
					})
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// ErrorHandler logs every request that finishes with a 4xx or 5xx status.
func ErrorHandler(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			if rw.status >= http.StatusBadRequest {
				fields := map[string]interface{}{
					"status": rw.status,
					"method": r.Method,
					"path":   r.URL.Path,
					"query":  r.URL.RawQuery,
					"ip":     r.RemoteAddr,
				}
				if rw.status >= http.StatusInternalServerError {
					logger.Error("Request failed", fields)
				} else {
					logger.Warn("Request rejected", fields)
				}
			}
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

// WriteHeader captures the status code before writing the header.
func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}
