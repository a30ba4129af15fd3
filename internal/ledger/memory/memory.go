// Package memory provides an in-process ledger.Store used for tests and
// demo deployments without a database.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/openclaw/agenthub/internal/ledger"
)

// Store implements ledger.Store with a mutex-guarded append-only slice.
type Store struct {
	mu      sync.Mutex
	entries []ledger.Entry
	nextID  int64
}

// New returns an empty in-memory ledger.
func New() *Store {
	return &Store{nextID: 1}
}

// Append records a call attempt.
func (s *Store) Append(ctx context.Context, entry ledger.Entry) error {
	if entry.ServiceID == "" {
		return errors.New("ledger entry requires service id")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = s.nextID
	s.nextID++
	s.entries = append(s.entries, entry)
	return nil
}

// Query returns entries for the given service ids in insertion order.
func (s *Store) Query(ctx context.Context, serviceIDs []string) ([]ledger.Entry, error) {
	set := make(map[string]struct{}, len(serviceIDs))
	for _, id := range serviceIDs {
		set[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Entry
	for _, e := range s.entries {
		if _, ok := set[e.ServiceID]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// Recent returns up to n entries, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.entries) {
		n = len(s.entries)
	}
	if n <= 0 {
		return []ledger.Entry{}, nil
	}
	out := make([]ledger.Entry, 0, n)
	for i := len(s.entries) - 1; i >= len(s.entries)-n; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

// Size returns the number of entries recorded so far.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close is a no-op for the in-memory ledger.
func (s *Store) Close() error { return nil }
