package middleware

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"linknote-server/internal/logging"
)

const RequestIDKey contextKey = "requestID"

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// LoggerMiddleware tags each request with an id and logs it once finished.
// An incoming X-Request-ID is reused.
func LoggerMiddleware(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			// The admin middleware runs inside this one, so it reports the
			// identity back through this holder.
			holder := &identityHolder{}
			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			ctx = context.WithValue(ctx, identityHolderKey, holder)

			next.ServeHTTP(rw, r.WithContext(ctx))

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.statusCode,
				"duration", time.Since(start).String(),
				"request_id", requestID,
			}
			if holder.identity != "" {
				args = append(args, "admin", holder.identity)
			}

			switch {
			case rw.statusCode >= 500:
				logger.Error("request", args...)
			case rw.statusCode >= 400:
				logger.Warn("request", args...)
			default:
				logger.Info("request", args...)
			}
		})
	}
}

const identityHolderKey contextKey = "identityHolder"

type identityHolder struct {
	identity string
}

func GetRequestID(r *http.Request) string {
	id, _ := r.Context().Value(RequestIDKey).(string)
	return id
}
