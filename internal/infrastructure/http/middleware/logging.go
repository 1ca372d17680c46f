package middleware

import (
	"log/slog"
	"net/http"
	"time"

	ctxutil "github.com/3tcapital/facturador/internal/infrastructure/context"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// responseWriter wraps http.ResponseWriter to capture status code and bytes written.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.statusCode == 0 {
		rw.statusCode = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// CorrelationHeader carries the correlation ID in requests and responses.
const CorrelationHeader = "X-Correlation-ID"

// RequestLogger returns a middleware that logs HTTP requests and responses.
// The correlation ID is taken from the X-Correlation-ID header, then the
// chi request ID, and generated when neither is present. It is stored in
// the request context and echoed in the response. Log levels follow the
// status code: Info below 400, Warn for 4xx, Error for 5xx.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chimw.GetReqID(r.Context())
			correlationID := r.Header.Get(CorrelationHeader)
			if correlationID == "" {
				correlationID = requestID
			}
			ctx := r.Context()
			if correlationID != "" {
				ctx = ctxutil.WithCorrelationID(ctx, correlationID)
			} else {
				ctx, correlationID = ctxutil.EnsureCorrelationID(ctx)
			}
			w.Header().Set(CorrelationHeader, correlationID)

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r.WithContext(ctx))

			durationMs := float64(time.Since(start).Nanoseconds()) / 1e6
			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"status", rw.statusCode,
				"duration_ms", durationMs,
				"bytes", rw.bytesWritten,
				"correlation_id", correlationID,
			}
			if requestID != "" {
				attrs = append(attrs, "request_id", requestID)
			}
			if userAgent := r.Header.Get("User-Agent"); userAgent != "" {
				attrs = append(attrs, "user_agent", userAgent)
			}

			switch {
			case rw.statusCode >= 500:
				log.Error("HTTP request", attrs...)
			case rw.statusCode >= 400:
				log.Warn("HTTP request", attrs...)
			default:
				log.Info("HTTP request", attrs...)
			}
		})
	}
}
