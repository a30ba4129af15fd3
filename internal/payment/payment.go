// Package payment builds x402 payment-required descriptors and evaluates
// payment evidence supplied by callers.
package payment

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/openclaw/agenthub/internal/registry"
)

// Header is the request header carrying payment evidence.
const Header = "X-Payment"

// MaxTimeoutSeconds is the settlement window advertised in every
// requirement; the call proxy also uses it as the outer bound on upstream
// forwards.
const MaxTimeoutSeconds = 300

// Requirement is a single x402 "accepts" descriptor: what evidence and
// amount are needed to call a service.
type Requirement struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	MaxAmountRequired string `json:"maxAmountRequired"`
	Resource          string `json:"resource"`
	Description       string `json:"description"`
	MimeType          string `json:"mimeType"`
	PayTo             string `json:"payTo"`
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds"`
	Asset             string `json:"asset"`
	Extra             Extra  `json:"extra"`
}

// Extra carries descriptive fields of a requirement.
type Extra struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
}

// Required is the full 402 response envelope.
type Required struct {
	X402Version int           `json:"x402Version"`
	Error       string        `json:"error"`
	Accepts     []Requirement `json:"accepts"`
}

// Builder derives payment requirements from a service record and
// process-wide configuration. It is a pure function of its inputs; nothing
// is persisted.
type Builder struct {
	PayTo    string
	Network  string
	Asset    string
	Currency string
	BaseURL  string
}

// RequirementFor returns the x402 descriptor for one service.
func (b *Builder) RequirementFor(svc *registry.Service) Requirement {
	network := svc.Pricing.Network
	if network == "" {
		network = b.Network
	}
	asset := svc.Pricing.Asset
	if asset == "" {
		asset = b.Asset
	}
	currency := svc.Pricing.Currency
	if currency == "" {
		currency = b.Currency
	}
	return Requirement{
		Scheme:            "exact",
		Network:           network,
		MaxAmountRequired: strconv.FormatInt(int64(svc.Pricing.Amount), 10),
		Resource:          fmt.Sprintf("%s/services/%s/call", strings.TrimRight(b.BaseURL, "/"), svc.ID),
		Description:       "Pay to call: " + svc.Name,
		MimeType:          "application/json",
		PayTo:             b.PayTo,
		MaxTimeoutSeconds: MaxTimeoutSeconds,
		Asset:             asset,
		Extra:             Extra{Name: currency, Version: 2},
	}
}

// BuildRequired returns the 402 envelope for a service.
func (b *Builder) BuildRequired(svc *registry.Service) Required {
	return Required{
		X402Version: 1,
		Error:       "Payment required. Include X-Payment header.",
		Accepts:     []Requirement{b.RequirementFor(svc)},
	}
}

// BuildInvalid returns the 402 envelope flagged with an invalid-payment
// error marker, echoed back so a well-behaved caller can self-serve the
// next step.
func (b *Builder) BuildInvalid(svc *registry.Service) Required {
	req := b.BuildRequired(svc)
	req.Error = "Invalid payment"
	return req
}

// Verify reports whether the supplied evidence is acceptable. This is a
// deliberate placeholder policy: any non-empty value passes. No signature
// check, on-chain lookup, or replay protection is performed; a real
// verifier can be substituted here without changing the proxy's state
// machine.
func (b *Builder) Verify(evidence string) bool {
	return evidence != ""
}
