package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Collector tracks marketplace counters for the /metrics endpoint.
// This implementation uses manual metric tracking without external
// dependencies.
type Collector struct {
	mu sync.RWMutex

	// Request metrics
	totalRequests      map[string]int64 // by endpoint
	totalRequestsDur   map[string]int64 // total duration in ms
	requestErrors      map[string]int64 // by endpoint
	requestsInProgress map[string]int64 // current in-flight requests

	// Payment gate metrics
	paymentRequired int64 // calls rejected for missing/invalid evidence

	// Upstream metrics
	upstreamStatuses map[string]int64 // forwards by upstream status class
	upstreamErrors   int64            // transport failures / timeouts

	// Billing metrics
	billedCalls       int64            // completed billable calls
	revenueUnits      int64            // accumulated revenue in micro-units
	callsByService    map[string]int64 // billed calls per service id
	rateLimitHits     int64
	rateLimitByCaller map[string]int64

	startTime time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		totalRequests:      make(map[string]int64),
		totalRequestsDur:   make(map[string]int64),
		requestErrors:      make(map[string]int64),
		requestsInProgress: make(map[string]int64),
		upstreamStatuses:   make(map[string]int64),
		callsByService:     make(map[string]int64),
		rateLimitByCaller:  make(map[string]int64),
		startTime:          time.Now(),
	}
}

// RecordRequest records a completed request to an endpoint.
func (c *Collector) RecordRequest(endpoint string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests[endpoint]++
	c.totalRequestsDur[endpoint] += duration.Milliseconds()
}

// RecordError records an error response for an endpoint.
func (c *Collector) RecordError(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestErrors[endpoint]++
}

// RecordRequestStart increments in-progress requests.
func (c *Collector) RecordRequestStart(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestsInProgress[endpoint]++
}

// RecordRequestEnd decrements in-progress requests.
func (c *Collector) RecordRequestEnd(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestsInProgress[endpoint]--
}

// RecordPaymentRequired records a call rejected at the payment gate.
func (c *Collector) RecordPaymentRequired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paymentRequired++
}

// RecordUpstreamStatus records a forwarded call by upstream status code.
func (c *Collector) RecordUpstreamStatus(status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upstreamStatuses[strconv.Itoa(status)]++
}

// RecordUpstreamError records a transport failure or timeout.
func (c *Collector) RecordUpstreamError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upstreamErrors++
}

// RecordBilledCall records a completed billable call and its revenue.
func (c *Collector) RecordBilledCall(serviceID string, amountUnits int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.billedCalls++
	c.revenueUnits += amountUnits
	c.callsByService[serviceID]++
}

// RecordRateLimitHit records a rate limit rejection.
func (c *Collector) RecordRateLimitHit(caller string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rateLimitHits++
	c.rateLimitByCaller[caller]++
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	Uptime             int64
	TotalRequests      map[string]int64
	TotalRequestsDur   map[string]int64
	RequestErrors      map[string]int64
	RequestsInProgress map[string]int64
	PaymentRequired    int64
	UpstreamStatuses   map[string]int64
	UpstreamErrors     int64
	BilledCalls        int64
	RevenueUnits       int64
	CallsByService     map[string]int64
	RateLimitHits      int64
	RateLimitByCaller  map[string]int64
}

// GetSnapshot returns a snapshot of current metrics.
func (c *Collector) GetSnapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Uptime:             int64(time.Since(c.startTime).Seconds()),
		TotalRequests:      copyMap(c.totalRequests),
		TotalRequestsDur:   copyMap(c.totalRequestsDur),
		RequestErrors:      copyMap(c.requestErrors),
		RequestsInProgress: copyMap(c.requestsInProgress),
		PaymentRequired:    c.paymentRequired,
		UpstreamStatuses:   copyMap(c.upstreamStatuses),
		UpstreamErrors:     c.upstreamErrors,
		BilledCalls:        c.billedCalls,
		RevenueUnits:       c.revenueUnits,
		CallsByService:     copyMap(c.callsByService),
		RateLimitHits:      c.rateLimitHits,
		RateLimitByCaller:  copyMap(c.rateLimitByCaller),
	}
}

func copyMap(m map[string]int64) map[string]int64 {
	result := make(map[string]int64, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}
