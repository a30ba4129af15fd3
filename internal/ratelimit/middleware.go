package ratelimit

import (
	"log"
	"net"
	"net/http"
	"strconv"

	"github.com/openclaw/agenthub/internal/metrics"
)

// Middleware wraps an HTTP handler with per-caller rate limiting.
type Middleware struct {
	limiter *Limiter
	enabled bool
	logger  *log.Logger
	metrics *metrics.Collector
}

// NewMiddleware creates a rate limiting middleware. When disabled it is a
// pass-through.
func NewMiddleware(limiter *Limiter, enabled bool, logger *log.Logger, collector *metrics.Collector) *Middleware {
	return &Middleware{limiter: limiter, enabled: enabled, logger: logger, metrics: collector}
}

// Handler applies the rate limit before invoking next.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled || m.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		caller := callerKey(r)
		allowed, remaining := m.limiter.Allow(caller)
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(remaining)))
		if !allowed {
			if m.logger != nil {
				m.logger.Printf("rate limit exceeded caller=%s path=%s", caller, r.URL.Path)
			}
			if m.metrics != nil {
				m.metrics.RecordRateLimitHit(caller)
			}
			w.Header().Set("Retry-After", "1")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"Rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// callerKey identifies the caller by remote IP.
func callerKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
