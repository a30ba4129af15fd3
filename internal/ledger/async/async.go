package async

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/openclaw/agenthub/internal/ledger"
)

// Store wraps a ledger.Store with asynchronous batch writes. Call entries
// are queued in memory and flushed in batches to reduce database load on the
// hot call path.
// WARNING: entries may be lost if the process crashes before flushing.
type Store struct {
	underlying    ledger.Store
	entryChan     chan ledger.Entry
	batchSize     int
	flushInterval time.Duration
	wg            sync.WaitGroup
	stopChan      chan struct{}
	logger        *log.Logger
}

// Config configures the async ledger behaviour.
type Config struct {
	BatchSize     int           // maximum entries per batch (default: 100)
	FlushInterval time.Duration // maximum time between flushes (default: 1s)
	ChannelBuffer int           // queue capacity (default: 10000)
	Logger        *log.Logger   // optional logger for diagnostics
}

// New wraps an existing ledger store with async batch writing.
func New(underlying ledger.Store, cfg Config) *Store {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = 10000
	}

	s := &Store{
		underlying:    underlying,
		entryChan:     make(chan ledger.Entry, cfg.ChannelBuffer),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		stopChan:      make(chan struct{}),
		logger:        cfg.Logger,
	}

	s.wg.Add(1)
	go s.batchWriter()

	if s.logger != nil {
		s.logger.Printf("[async-ledger] started batch_size=%d flush_interval=%v buffer=%d",
			cfg.BatchSize, cfg.FlushInterval, cfg.ChannelBuffer)
	}
	return s
}

func (s *Store) batchWriter() {
	defer s.wg.Done()

	batch := make([]ledger.Entry, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx := context.Background()
		for _, entry := range batch {
			if err := s.underlying.Append(ctx, entry); err != nil {
				if s.logger != nil {
					s.logger.Printf("[async-ledger] ERROR writing entry: %v", err)
				}
				// keep writing the rest of the batch
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-s.entryChan:
			batch = append(batch, entry)
			if len(batch) >= s.batchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-s.stopChan:
			// Drain whatever is queued before shutting down. The channel
			// is never closed: a concurrent Append must not panic, it is
			// turned away by the stop check instead.
			for {
				select {
				case entry := <-s.entryChan:
					batch = append(batch, entry)
					if len(batch) >= s.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Append queues an entry for asynchronous writing without blocking.
// Entries appended after Close are dropped.
func (s *Store) Append(ctx context.Context, entry ledger.Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	select {
	case <-s.stopChan:
		if s.logger != nil {
			s.logger.Printf("[async-ledger] WARNING: store closed, dropping entry for %s", entry.ServiceID)
		}
		return nil
	case s.entryChan <- entry:
		return nil
	default:
		if s.logger != nil {
			s.logger.Printf("[async-ledger] WARNING: channel full, dropping entry for %s", entry.ServiceID)
		}
		return nil
	}
}

// Query delegates to the underlying store (blocking operation).
func (s *Store) Query(ctx context.Context, serviceIDs []string) ([]ledger.Entry, error) {
	return s.underlying.Query(ctx, serviceIDs)
}

// Recent delegates to the underlying store (blocking operation).
func (s *Store) Recent(ctx context.Context, n int) ([]ledger.Entry, error) {
	return s.underlying.Recent(ctx, n)
}

// Close flushes remaining entries and closes the underlying store.
func (s *Store) Close() error {
	close(s.stopChan)
	s.wg.Wait()
	return s.underlying.Close()
}
