package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/openclaw/agenthub/internal/metrics"
	"github.com/openclaw/agenthub/internal/seeds"
	"github.com/openclaw/agenthub/internal/version"
)

type healthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Endpoints map[string]string `json:"endpoints"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Service: "agenthub",
		Version: version.Info(),
		Uptime:  time.Since(s.startedAt).Truncate(time.Second).String(),
		Endpoints: map[string]string{
			"list":     "GET /services",
			"register": "POST /services",
			"detail":   "GET /services/{id}",
			"payment":  "GET /services/{id}/pay",
			"call":     "POST /services/{id}/call",
			"stats":    "GET /developer/stats?developer={id}",
			"metrics":  "GET /metrics",
		},
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(metrics.FormatPrometheus(s.metrics.GetSnapshot())))
}

// handleReseed wipes the registry and reloads the demo catalogue. Guarded by
// a bearer token when one is configured; open otherwise, which is fine for
// local demos and wrong for anything else.
func (s *Server) handleReseed(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AdminToken != "" {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token != s.cfg.AdminToken {
			writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
	}

	catalogue, err := seeds.Load(s.cfg.SeedFile)
	if err != nil {
		s.logf("reseed load: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to load seed catalogue")
		return
	}

	if err := s.registry.Reset(r.Context()); err != nil {
		s.logf("reseed reset: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to reset registry")
		return
	}
	if err := seeds.Apply(r.Context(), s.registry, catalogue); err != nil {
		s.logf("reseed apply: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to apply seed catalogue")
		return
	}

	s.logf("registry reseeded with %d services", len(catalogue))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "reseeded",
		"services": len(catalogue),
	})
}
