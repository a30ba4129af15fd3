package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openclaw/agenthub/internal/payment"
	"github.com/openclaw/agenthub/internal/registry"
)

type listResponse struct {
	Services   []registry.Service  `json:"services"`
	Pagination registry.Pagination `json:"pagination"`
}

type serviceResponse struct {
	Service registry.Service `json:"service"`
}

// handleListServices returns the catalogue window selected by the filter and
// pagination query parameters.
func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := registry.Filter{
		Category: q.Get("category"),
		Tag:      q.Get("tag"),
		Status:   q.Get("status"),
		Search:   q.Get("search"),
	}

	services, err := s.registry.List(r.Context(), filter)
	if err != nil {
		s.logf("list services: %v", err)
		s.metrics.RecordError("/services")
		writeJSONError(w, http.StatusInternalServerError, "Failed to list services")
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)
	paged, pagination := registry.Paginate(services, page, limit)

	writeJSON(w, http.StatusOK, listResponse{Services: paged, Pagination: pagination})
}

// handleCreateService registers a new service. Registration is open: no
// authentication, no uniqueness constraint on anything but the generated id.
func (s *Server) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var reg registry.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	svc, err := registry.NewService(reg)
	if err != nil {
		var verr registry.ValidationError
		if errors.As(err, &verr) {
			writeJSONError(w, http.StatusBadRequest, verr.Error())
			return
		}
		s.logf("create service: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to register service")
		return
	}

	if err := s.registry.Create(r.Context(), svc); err != nil {
		s.logf("create service %s: %v", svc.ID, err)
		s.metrics.RecordError("/services")
		writeJSONError(w, http.StatusInternalServerError, "Failed to register service")
		return
	}

	s.logf("registered service %s (%s) by %s", svc.ID, svc.Name, svc.Developer)
	writeJSON(w, http.StatusCreated, serviceResponse{Service: svc})
}

func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	svc, err := s.registry.Find(r.Context(), id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "Service not found")
			return
		}
		s.logf("find service %s: %v", id, err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to load service")
		return
	}
	writeJSON(w, http.StatusOK, serviceResponse{Service: *svc})
}

// handlePaymentInfo returns the x402 payment descriptor for a service with a
// 402 status. Agents hit this endpoint to learn how to pay before calling.
func (s *Server) handlePaymentInfo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	svc, err := s.registry.Find(r.Context(), id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "Service not found")
			return
		}
		s.logf("find service %s: %v", id, err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to load service")
		return
	}
	writeJSON(w, http.StatusPaymentRequired, s.gate.BuildRequired(svc))
}

// handleCallService decodes the request body, then hands the call to the
// proxy. An absent body forwards as an empty object; malformed JSON is
// rejected before the payment gate runs, so it never produces a ledger
// entry.
func (s *Server) handleCallService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}

	evidence := r.Header.Get(payment.Header)
	result, err := s.proxy.Call(r.Context(), id, evidence, payload)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "Service not found")
			return
		}
		s.logf("call service %s: %v", id, err)
		s.metrics.RecordError("/services/{id}/call")
		writeJSONError(w, http.StatusInternalServerError, "Call failed")
		return
	}
	writeJSON(w, result.Status, result.Body)
}
