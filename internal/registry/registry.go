package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Platform defaults applied when a registration omits pricing details.
const (
	DefaultAsset    = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	DefaultNetwork  = "base"
	DefaultCurrency = "USDC"
	DefaultCategory = "other"

	// amounts and revenue are tracked in micro-units (1e6 per whole unit)
	unitsPerWhole = 1_000_000
)

// ErrNotFound indicates the requested service id is not registered.
var ErrNotFound = errors.New("service not found")

// ValidationError reports a registration that is missing required fields.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

// Status captures whether a service accepts calls.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Amount is a price in micro-units of the settlement asset. It marshals as a
// decimal string ("10000") for wire compatibility and accepts either a JSON
// string or number on input.
type Amount int64

// MarshalJSON renders the amount as a quoted integer string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatInt(int64(a), 10))
}

// UnmarshalJSON accepts both "10000" and 10000.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*a = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", s, err)
	}
	*a = Amount(v)
	return nil
}

// Pricing describes the per-call price of a service.
type Pricing struct {
	Amount     Amount `json:"amount"`
	Asset      string `json:"asset"`
	Network    string `json:"network"`
	Currency   string `json:"currency"`
	HumanPrice string `json:"humanPrice"`
}

// Stats holds the cumulative billing counters for a service. Revenue is kept
// in integer micro-units internally and exposed as a fixed 4-decimal string.
type Stats struct {
	TotalCalls   int64
	RevenueUnits int64
}

type statsWire struct {
	TotalCalls int64  `json:"totalCalls"`
	Revenue    string `json:"revenue"`
}

// MarshalJSON renders {totalCalls, revenue} with revenue as a decimal string.
func (s Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(statsWire{TotalCalls: s.TotalCalls, Revenue: FormatUnits(s.RevenueUnits)})
}

// UnmarshalJSON parses the wire form back into counters.
func (s *Stats) UnmarshalJSON(data []byte) error {
	var w statsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	units, err := ParseUnits(w.Revenue)
	if err != nil {
		return err
	}
	s.TotalCalls = w.TotalCalls
	s.RevenueUnits = units
	return nil
}

// Service is a registered, externally hosted HTTP endpoint listed in the
// marketplace with per-call pricing.
type Service struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	Category     string                 `json:"category"`
	Tags         []string               `json:"tags"`
	Developer    string                 `json:"developer"`
	Endpoint     string                 `json:"endpoint"`
	Pricing      Pricing                `json:"pricing"`
	InputSchema  map[string]interface{} `json:"inputSchema,omitempty"`
	OutputSchema map[string]interface{} `json:"outputSchema,omitempty"`
	Status       Status                 `json:"status"`
	CreatedAt    time.Time              `json:"createdAt"`
	Stats        Stats                  `json:"stats"`
}

// Registration is the consumer-supplied payload for creating a service.
type Registration struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	Category     string                 `json:"category"`
	Tags         []string               `json:"tags"`
	Developer    string                 `json:"developer"`
	Endpoint     string                 `json:"endpoint"`
	Pricing      Pricing                `json:"pricing"`
	InputSchema  map[string]interface{} `json:"inputSchema"`
	OutputSchema map[string]interface{} `json:"outputSchema"`
}

// NewService validates a registration and materialises a Service with a fresh
// id and platform defaults. Two identical registrations yield two distinct
// records.
func NewService(reg Registration) (Service, error) {
	if strings.TrimSpace(reg.Name) == "" || strings.TrimSpace(reg.Endpoint) == "" || reg.Pricing.Amount <= 0 {
		return Service{}, ValidationError("name, endpoint, and pricing.amount are required")
	}

	tags := reg.Tags
	if tags == nil {
		tags = []string{}
	}

	svc := Service{
		ID:          NewID(),
		Name:        reg.Name,
		Description: reg.Description,
		Category:    firstNonEmpty(reg.Category, DefaultCategory),
		Tags:        tags,
		Developer:   firstNonEmpty(reg.Developer, "anonymous"),
		Endpoint:    reg.Endpoint,
		Pricing: Pricing{
			Amount:     reg.Pricing.Amount,
			Asset:      firstNonEmpty(reg.Pricing.Asset, DefaultAsset),
			Network:    firstNonEmpty(reg.Pricing.Network, DefaultNetwork),
			Currency:   firstNonEmpty(reg.Pricing.Currency, DefaultCurrency),
			HumanPrice: firstNonEmpty(reg.Pricing.HumanPrice, HumanPrice(reg.Pricing.Amount)),
		},
		InputSchema:  reg.InputSchema,
		OutputSchema: reg.OutputSchema,
		Status:       StatusActive,
		CreatedAt:    time.Now().UTC(),
	}
	return svc, nil
}

// NewID returns a fresh service identifier of the form svc_xxxxxxxx.
func NewID() string {
	return "svc_" + uuid.NewString()[:8]
}

// HumanPrice derives the display price string from a micro-unit amount.
func HumanPrice(amount Amount) string {
	return "$" + strconv.FormatFloat(float64(amount)/unitsPerWhole, 'f', 4, 64)
}

// FormatUnits renders micro-units as a fixed 4-decimal string, e.g. 1420000
// becomes "1.4200".
func FormatUnits(units int64) string {
	return strconv.FormatFloat(float64(units)/unitsPerWhole, 'f', 4, 64)
}

// ParseUnits converts a decimal revenue string ("1.42") into micro-units.
func ParseUnits(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 6 {
		frac = frac[:6]
	}
	frac += strings.Repeat("0", 6-len(frac))
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid revenue %q: %w", s, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid revenue %q: %w", s, err)
	}
	units := w*unitsPerWhole + f
	if neg {
		units = -units
	}
	return units, nil
}

// Filter selects a subset of the catalogue. Empty fields match everything.
type Filter struct {
	Category string
	Tag      string
	Status   string
	Search   string
}

// Match reports whether a service satisfies the filter.
func Match(s Service, f Filter) bool {
	if f.Category != "" && s.Category != f.Category {
		return false
	}
	if f.Status != "" && string(s.Status) != f.Status {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, t := range s.Tags {
			if t == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(s.Name), q) &&
			!strings.Contains(strings.ToLower(s.Description), q) {
			hit := false
			for _, t := range s.Tags {
				if strings.Contains(strings.ToLower(t), q) {
					hit = true
					break
				}
			}
			if !hit {
				return false
			}
		}
	}
	return true
}

// Pagination describes the slice of the catalogue a list response covers.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Paginate clamps page/limit silently (page >= 1, limit 1..100, default 20)
// and returns the requested window plus pagination metadata.
func Paginate(list []Service, page, limit int) ([]Service, Pagination) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	total := len(list)
	totalPages := (total + limit - 1) / limit

	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return list[start:end], Pagination{Page: page, Limit: limit, Total: total, TotalPages: totalPages}
}

// Store persists the service catalogue across memory/SQLite/Postgres
// backends. RecordCall must be atomic at the storage layer: two concurrent
// completions both land in the counters.
type Store interface {
	Create(ctx context.Context, svc Service) error
	Find(ctx context.Context, id string) (*Service, error)
	List(ctx context.Context, filter Filter) ([]Service, error)
	RecordCall(ctx context.Context, id string, amountUnits int64) error
	Reset(ctx context.Context) error
	Close() error
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
