package ledger

import (
	"context"
	"time"

	"github.com/openclaw/agenthub/internal/registry"
)

// Entry is a single call attempt written to the ledger. One entry is
// appended for every attempt that carried payment evidence, whatever the
// upstream outcome; attempts rejected before the gate leave no trace here.
type Entry struct {
	ID        int64           `json:"-"`
	ServiceID string          `json:"serviceId"`
	Timestamp time.Time       `json:"timestamp"`
	Paid      bool            `json:"paid"`
	Amount    registry.Amount `json:"amount"`
	Status    int             `json:"status"`
}

// Store defines persistence behaviour for the call ledger. The ledger is
// append-only: no update or delete operation exists.
type Store interface {
	// Append records a call attempt. No deduplication.
	Append(ctx context.Context, entry Entry) error
	// Query returns entries whose service id is in the given set, in
	// insertion order.
	Query(ctx context.Context, serviceIDs []string) ([]Entry, error)
	// Recent returns up to n entries, newest first. An empty ledger
	// yields an empty slice, not an error.
	Recent(ctx context.Context, n int) ([]Entry, error)
	Close() error
}
