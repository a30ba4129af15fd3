package httpserver

import (
	"net/http"

	"github.com/openclaw/agenthub/internal/ledger"
	"github.com/openclaw/agenthub/internal/registry"
)

const recentCallLimit = 50

type statsSummary struct {
	TotalServices int    `json:"totalServices"`
	TotalCalls    int64  `json:"totalCalls"`
	TotalRevenue  string `json:"totalRevenue"`
	Currency      string `json:"currency"`
}

type statsBreakdown struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Calls   int64  `json:"calls"`
	Revenue string `json:"revenue"`
	Price   string `json:"price"`
}

type statsResponse struct {
	Developer   string           `json:"developer"`
	Summary     statsSummary     `json:"summary"`
	Services    []statsBreakdown `json:"services"`
	RecentCalls []ledger.Entry   `json:"recentCalls"`
}

// handleDeveloperStats aggregates registry counters and recent ledger
// entries for every service owned by one developer. Without a developer
// query parameter the report covers the whole catalogue; a developer with
// no services gets an empty report, not a 404.
func (s *Server) handleDeveloperStats(w http.ResponseWriter, r *http.Request) {
	developer := r.URL.Query().Get("developer")

	all, err := s.registry.List(r.Context(), registry.Filter{})
	if err != nil {
		s.logf("developer stats list: %v", err)
		s.metrics.RecordError("/developer/stats")
		writeJSONError(w, http.StatusInternalServerError, "Failed to load stats")
		return
	}

	var (
		owned        []registry.Service
		ids          []string
		totalCalls   int64
		revenueUnits int64
	)
	for _, svc := range all {
		if developer != "" && svc.Developer != developer {
			continue
		}
		owned = append(owned, svc)
		ids = append(ids, svc.ID)
		totalCalls += svc.Stats.TotalCalls
		revenueUnits += svc.Stats.RevenueUnits
	}

	breakdown := make([]statsBreakdown, 0, len(owned))
	for _, svc := range owned {
		breakdown = append(breakdown, statsBreakdown{
			ID:      svc.ID,
			Name:    svc.Name,
			Calls:   svc.Stats.TotalCalls,
			Revenue: registry.FormatUnits(svc.Stats.RevenueUnits),
			Price:   svc.Pricing.HumanPrice,
		})
	}

	recent := []ledger.Entry{}
	if len(ids) > 0 {
		entries, err := s.ledger.Query(r.Context(), ids)
		if err != nil {
			s.logf("developer stats ledger: %v", err)
			s.metrics.RecordError("/developer/stats")
			writeJSONError(w, http.StatusInternalServerError, "Failed to load stats")
			return
		}
		// Query returns insertion order; the report wants the newest
		// entries first.
		for i := len(entries) - 1; i >= 0 && len(recent) < recentCallLimit; i-- {
			recent = append(recent, entries[i])
		}
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Developer: developer,
		Summary: statsSummary{
			TotalServices: len(owned),
			TotalCalls:    totalCalls,
			TotalRevenue:  registry.FormatUnits(revenueUnits),
			Currency:      s.gate.Currency,
		},
		Services:    breakdown,
		RecentCalls: recent,
	})
}
