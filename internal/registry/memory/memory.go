// Package memory provides an in-process registry.Store used for tests and
// demo deployments without a database.
package memory

import (
	"context"
	"sync"

	"github.com/openclaw/agenthub/internal/registry"
)

// Store implements registry.Store with a mutex-guarded map. Insertion order
// is preserved for listings.
type Store struct {
	mu       sync.Mutex
	services map[string]registry.Service
	order    []string
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{services: make(map[string]registry.Service)}
}

// Create adds a service to the catalogue.
func (s *Store) Create(ctx context.Context, svc registry.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.services[svc.ID]; !exists {
		s.order = append(s.order, svc.ID)
	}
	s.services[svc.ID] = svc
	return nil
}

// Find returns the service with the given id, or registry.ErrNotFound.
func (s *Store) Find(ctx context.Context, id string) (*registry.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, registry.ErrNotFound
	}
	out := svc
	return &out, nil
}

// List returns services matching the filter in insertion order.
func (s *Store) List(ctx context.Context, filter registry.Filter) ([]registry.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]registry.Service, 0, len(s.order))
	for _, id := range s.order {
		svc := s.services[id]
		if registry.Match(svc, filter) {
			out = append(out, svc)
		}
	}
	return out, nil
}

// RecordCall increments totalCalls and revenue under the store lock, so
// concurrent completions cannot lose an update.
func (s *Store) RecordCall(ctx context.Context, id string, amountUnits int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return registry.ErrNotFound
	}
	svc.Stats.TotalCalls++
	svc.Stats.RevenueUnits += amountUnits
	s.services[id] = svc
	return nil
}

// Reset drops the whole catalogue. Used by the admin reseed flow only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services = make(map[string]registry.Service)
	s.order = nil
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }
