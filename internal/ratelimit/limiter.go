// Package ratelimit provides a best-effort in-memory rate limiter for the
// call endpoint, keyed by caller address. There is deliberately no
// distributed backend: single-instance protection is all this marketplace
// promises.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter tracks a token bucket per caller key.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*TokenBucket

	capacity   float64
	refillRate float64

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once
}

// Config holds limiter settings.
type Config struct {
	RequestsPerSecond float64 // sustained rate per caller
	BurstSize         float64 // burst capacity per caller
	CleanupInterval   time.Duration
}

// NewLimiter creates a rate limiter with the given configuration. Zero
// values fall back to 10 req/sec sustained with a burst of 20.
func NewLimiter(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 20
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	l := &Limiter{
		buckets:         make(map[string]*TokenBucket),
		capacity:        cfg.BurstSize,
		refillRate:      cfg.RequestsPerSecond,
		cleanupInterval: cfg.CleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether a request from the given caller should proceed, and
// how many tokens remain.
func (l *Limiter) Allow(key string) (bool, float64) {
	bucket := l.bucket(key)
	return bucket.Allow(), bucket.Remaining()
}

// Close stops background cleanup.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() { close(l.stopCleanup) })
}

func (l *Limiter) bucket(key string) *TokenBucket {
	l.mu.RLock()
	bucket, exists := l.buckets[key]
	l.mu.RUnlock()
	if exists {
		return bucket
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if bucket, exists = l.buckets[key]; exists {
		return bucket
	}
	bucket = NewTokenBucket(l.capacity, l.refillRate)
	l.buckets[key] = bucket
	return bucket
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

// cleanup drops buckets that have refilled close to capacity, i.e. callers
// that have been quiet for a while.
func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, bucket := range l.buckets {
		if bucket.Remaining() >= l.capacity*0.95 {
			delete(l.buckets, key)
		}
	}
}
