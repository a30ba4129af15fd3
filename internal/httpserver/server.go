// Package httpserver exposes the marketplace REST surface: the service
// catalogue, the x402 payment gate, the call proxy, and developer stats.
package httpserver

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/openclaw/agenthub/internal/ledger"
	"github.com/openclaw/agenthub/internal/metrics"
	"github.com/openclaw/agenthub/internal/payment"
	"github.com/openclaw/agenthub/internal/proxy"
	"github.com/openclaw/agenthub/internal/ratelimit"
	"github.com/openclaw/agenthub/internal/registry"
)

// Config carries the server-level knobs that do not belong to any one
// subsystem.
type Config struct {
	AdminToken string
	SeedFile   string
}

// Server wires the registry, ledger, payment gate, and call proxy into an
// HTTP API.
type Server struct {
	registry  registry.Store
	ledger    ledger.Store
	proxy     *proxy.Proxy
	gate      *payment.Builder
	metrics   *metrics.Collector
	rateLimit *ratelimit.Middleware
	logger    *log.Logger
	cfg       Config
	startedAt time.Time
}

// New constructs a Server. logger and rateLimit may be nil.
func New(reg registry.Store, led ledger.Store, px *proxy.Proxy, gate *payment.Builder, collector *metrics.Collector, rl *ratelimit.Middleware, logger *log.Logger, cfg Config) *Server {
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &Server{
		registry:  reg,
		ledger:    led,
		proxy:     px,
		gate:      gate,
		metrics:   collector,
		rateLimit: rl,
		logger:    logger,
		cfg:       cfg,
		startedAt: time.Now(),
	}
}

// Router returns a configured chi router for embedding in HTTP servers.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", payment.Header},
		MaxAge:         300,
	}))
	r.Use(s.instrument)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/services", func(sr chi.Router) {
		sr.Get("/", s.handleListServices)
		sr.Post("/", s.handleCreateService)
		sr.Get("/{id}", s.handleGetService)
		sr.Get("/{id}/pay", s.handlePaymentInfo)
		if s.rateLimit != nil {
			sr.With(s.rateLimit.Handler).Post("/{id}/call", s.handleCallService)
		} else {
			sr.Post("/{id}/call", s.handleCallService)
		}
	})

	r.Get("/developer/stats", s.handleDeveloperStats)
	r.Post("/admin/reseed", s.handleReseed)

	return r
}

// instrument records per-endpoint request counts and latency. The endpoint
// label is the chi route pattern so path parameters do not explode the
// metric cardinality.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rawPath := r.URL.Path
		s.metrics.RecordRequestStart(rawPath)
		next.ServeHTTP(w, r)
		s.metrics.RecordRequestEnd(rawPath)
		endpoint := rawPath
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}
		s.metrics.RecordRequest(endpoint, time.Since(start))
	})
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
