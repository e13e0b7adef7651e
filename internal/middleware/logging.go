// Package middleware provides HTTP middleware for the API server: request
// logging, Prometheus instrumentation and basic auth for the metrics
// endpoint.
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// sensitive query parameters redacted from request logs
var sensitiveParams = map[string]bool{
	"token":        true,
	"code":         true,
	"key":          true,
	"secret":       true,
	"api_key":      true,
	"access_token": true,
}

// RequestLogging logs each request with method, path, status and latency.
// Health and metrics probes are skipped.
func RequestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			attrs := []any{
				"method", r.Method,
				"path", redactQuery(r.URL),
				"status", wrapped.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"ip", clientIP(r),
			}
			if wrapped.status >= 500 {
				logger.Warn("request", attrs...)
			} else {
				logger.Info("request", attrs...)
			}
		})
	}
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// redactQuery replaces sensitive query parameter values before logging.
func redactQuery(u *url.URL) string {
	if u.RawQuery == "" {
		return u.Path
	}

	q := u.Query()
	for key := range q {
		if sensitiveParams[strings.ToLower(key)] {
			q.Set(key, "[REDACTED]")
		}
	}
	return u.Path + "?" + q.Encode()
}

// clientIP prefers X-Forwarded-For when the server sits behind a proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
