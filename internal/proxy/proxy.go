// Package proxy orchestrates the inbound call lifecycle: registry lookup,
// payment gate check, upstream dispatch, outcome mapping, and accounting.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/openclaw/agenthub/internal/ledger"
	"github.com/openclaw/agenthub/internal/metrics"
	"github.com/openclaw/agenthub/internal/payment"
	"github.com/openclaw/agenthub/internal/registry"
)

// Result is the client-facing outcome of a call attempt: the HTTP status to
// return and the JSON body to serialise.
type Result struct {
	Status int
	Body   interface{}
}

// ServiceRef identifies the called service in a wrapped response.
type ServiceRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CallResponse wraps a successful upstream result.
type CallResponse struct {
	Service ServiceRef  `json:"service"`
	Result  interface{} `json:"result"`
}

type upstreamFailure struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Options tunes the proxy. Zero values fall back to defaults.
type Options struct {
	// CallTimeout bounds a single upstream forward. It is further capped
	// by payment.MaxTimeoutSeconds.
	CallTimeout time.Duration
	Client      *http.Client
	Logger      *log.Logger
	Metrics     *metrics.Collector
}

// Proxy forwards paid calls to registered upstream endpoints and keeps the
// ledger and registry counters in sync with outcomes.
type Proxy struct {
	registry registry.Store
	ledger   ledger.Store
	gate     *payment.Builder
	client   *http.Client
	timeout  time.Duration
	logger   *log.Logger
	metrics  *metrics.Collector
}

// New builds a Proxy on top of the given stores and payment gate.
func New(reg registry.Store, led ledger.Store, gate *payment.Builder, opts Options) *Proxy {
	timeout := opts.CallTimeout
	max := payment.MaxTimeoutSeconds * time.Second
	if timeout <= 0 || timeout > max {
		timeout = max
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Proxy{
		registry: reg,
		ledger:   led,
		gate:     gate,
		client:   client,
		timeout:  timeout,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Call runs the per-call state machine. The payload is forwarded verbatim
// (nil becomes an empty object). It returns registry.ErrNotFound for an
// unknown service id; every other outcome is expressed as a Result.
//
// Ledger and registry counters are deliberately independent: an entry is
// appended for every attempt that carried evidence, but totalCalls/revenue
// accrue only on a definitive non-402 upstream outcome. A 402 from upstream
// means the call was not actually serviced, so the marketplace claims no
// revenue for it.
func (p *Proxy) Call(ctx context.Context, serviceID, evidence string, payload map[string]interface{}) (Result, error) {
	svc, err := p.registry.Find(ctx, serviceID)
	if err != nil {
		return Result{}, err
	}

	if evidence == "" {
		p.countGateReject()
		return Result{Status: http.StatusPaymentRequired, Body: p.gate.BuildRequired(svc)}, nil
	}
	if !p.gate.Verify(evidence) {
		p.countGateReject()
		return Result{Status: http.StatusPaymentRequired, Body: p.gate.BuildInvalid(svc)}, nil
	}

	if payload == nil {
		payload = map[string]interface{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, svc.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(payment.Header, evidence)

	resp, err := p.client.Do(req)
	if err != nil {
		// Transport failure or timeout: the attempt is still recorded,
		// but no revenue accrues.
		p.appendEntry(svc, http.StatusInternalServerError)
		if p.metrics != nil {
			p.metrics.RecordUpstreamError()
		}
		p.logf("upstream call failed service=%s endpoint=%s err=%v", svc.ID, svc.Endpoint, err)
		return Result{
			Status: http.StatusBadGateway,
			Body:   upstreamFailure{Error: "Upstream service error", Details: err.Error()},
		}, nil
	}
	defer resp.Body.Close()

	var data interface{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		// Never propagate a parse failure to the caller.
		data = map[string]interface{}{}
	}

	p.appendEntry(svc, resp.StatusCode)
	if p.metrics != nil {
		p.metrics.RecordUpstreamStatus(resp.StatusCode)
	}

	if resp.StatusCode == http.StatusPaymentRequired {
		// Upstream also wants payment: pass its descriptor through
		// verbatim and claim no revenue.
		return Result{Status: http.StatusPaymentRequired, Body: data}, nil
	}

	if err := p.registry.RecordCall(ctx, svc.ID, int64(svc.Pricing.Amount)); err != nil {
		p.logf("record call stats failed service=%s err=%v", svc.ID, err)
	}
	if p.metrics != nil {
		p.metrics.RecordBilledCall(svc.ID, int64(svc.Pricing.Amount))
	}

	return Result{
		Status: resp.StatusCode,
		Body:   CallResponse{Service: ServiceRef{ID: svc.ID, Name: svc.Name}, Result: data},
	}, nil
}

func (p *Proxy) appendEntry(svc *registry.Service, status int) {
	entry := ledger.Entry{
		ServiceID: svc.ID,
		Timestamp: time.Now().UTC(),
		Paid:      true,
		Amount:    svc.Pricing.Amount,
		Status:    status,
	}
	if err := p.ledger.Append(context.Background(), entry); err != nil {
		p.logf("ledger append failed service=%s err=%v", svc.ID, err)
	}
}

func (p *Proxy) countGateReject() {
	if p.metrics != nil {
		p.metrics.RecordPaymentRequired()
	}
}

func (p *Proxy) logf(format string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}
