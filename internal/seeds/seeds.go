// Package seeds loads the demo service catalogue used to populate an empty
// registry and to serve the admin reseed flow.
package seeds

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openclaw/agenthub/internal/registry"
)

type seedFile struct {
	Services []Seed `yaml:"services"`
}

// Seed is one catalogue entry as written in the seed YAML file.
type Seed struct {
	ID           string                 `yaml:"id"`
	Name         string                 `yaml:"name"`
	Description  string                 `yaml:"description"`
	Category     string                 `yaml:"category"`
	Tags         []string               `yaml:"tags"`
	Developer    string                 `yaml:"developer"`
	Endpoint     string                 `yaml:"endpoint"`
	Pricing      seedPricing            `yaml:"pricing"`
	InputSchema  map[string]interface{} `yaml:"inputSchema"`
	OutputSchema map[string]interface{} `yaml:"outputSchema"`
	CreatedAt    time.Time              `yaml:"createdAt"`
	Stats        seedStats              `yaml:"stats"`
}

type seedPricing struct {
	Amount     int64  `yaml:"amount"`
	Asset      string `yaml:"asset"`
	Network    string `yaml:"network"`
	Currency   string `yaml:"currency"`
	HumanPrice string `yaml:"humanPrice"`
}

type seedStats struct {
	TotalCalls int64  `yaml:"totalCalls"`
	Revenue    string `yaml:"revenue"`
}

// Load reads the seed catalogue from path. A missing file is not an error:
// it yields an empty catalogue.
func Load(path string) ([]registry.Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	out := make([]registry.Service, 0, len(f.Services))
	for i, s := range f.Services {
		svc, err := s.toService()
		if err != nil {
			return nil, fmt.Errorf("seed %d (%s): %w", i, s.Name, err)
		}
		out = append(out, svc)
	}
	return out, nil
}

// Apply inserts the given services into the registry.
func Apply(ctx context.Context, store registry.Store, services []registry.Service) error {
	for _, svc := range services {
		if err := store.Create(ctx, svc); err != nil {
			return fmt.Errorf("seed %s: %w", svc.ID, err)
		}
	}
	return nil
}

func (s Seed) toService() (registry.Service, error) {
	if s.Name == "" || s.Endpoint == "" || s.Pricing.Amount <= 0 {
		return registry.Service{}, fmt.Errorf("name, endpoint, and pricing.amount are required")
	}
	revenueUnits, err := registry.ParseUnits(s.Stats.Revenue)
	if err != nil {
		return registry.Service{}, err
	}
	id := s.ID
	if id == "" {
		id = registry.NewID()
	}
	tags := s.Tags
	if tags == nil {
		tags = []string{}
	}
	created := s.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	amount := registry.Amount(s.Pricing.Amount)
	svc := registry.Service{
		ID:          id,
		Name:        s.Name,
		Description: s.Description,
		Category:    defaultString(s.Category, registry.DefaultCategory),
		Tags:        tags,
		Developer:   defaultString(s.Developer, "anonymous"),
		Endpoint:    s.Endpoint,
		Pricing: registry.Pricing{
			Amount:     amount,
			Asset:      defaultString(s.Pricing.Asset, registry.DefaultAsset),
			Network:    defaultString(s.Pricing.Network, registry.DefaultNetwork),
			Currency:   defaultString(s.Pricing.Currency, registry.DefaultCurrency),
			HumanPrice: defaultString(s.Pricing.HumanPrice, registry.HumanPrice(amount)),
		},
		InputSchema:  s.InputSchema,
		OutputSchema: s.OutputSchema,
		Status:       registry.StatusActive,
		CreatedAt:    created,
		Stats:        registry.Stats{TotalCalls: s.Stats.TotalCalls, RevenueUnits: revenueUnits},
	}
	return svc, nil
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
