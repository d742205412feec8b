package middleware

import (
	"net/http"
	"time"

	"github.com/julienstroheker/RelayGate/internal/logging"
)

// statusRecorder captures the status code and body size of a response
type statusRecorder struct {
	http.ResponseWriter

	status  int
	bytes   int
	written bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if rw.written {
		return
	}
	rw.status = code
	rw.written = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// Logger logs each status API request and its response. The request-scoped
// logger, carrying the telemetry ids, is stored in the request context.
func Logger(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			fields := []logging.Field{
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
			}
			if id := GetRequestID(r.Context()); id != "" {
				fields = append(fields, logging.String("request_id", id))
			}
			if id := GetClientRequestID(r.Context()); id != "" {
				fields = append(fields, logging.String("client_request_id", id))
			}

			base := logger
			if base == nil {
				base = logging.FromContext(r.Context())
			}
			reqLogger := base.With(fields...)
			r = r.WithContext(logging.WithContext(r.Context(), reqLogger))

			reqLogger.Info("Request received", logging.String("remote_addr", r.RemoteAddr))

			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			done := []logging.Field{
				logging.Int("status", rw.status),
				logging.Int("bytes", rw.bytes),
				logging.Duration("duration", time.Since(start)),
			}
			if rw.status >= http.StatusInternalServerError {
				reqLogger.Error("Response sent", done...)
				return
			}
			reqLogger.Info("Response sent", done...)
		})
	}
}
