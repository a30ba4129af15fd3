package registry

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewServiceDefaults(t *testing.T) {
	svc, err := NewService(Registration{
		Name:     "Echo",
		Endpoint: "https://example.com/api/echo",
		Pricing:  Pricing{Amount: 1000},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if !strings.HasPrefix(svc.ID, "svc_") || len(svc.ID) != len("svc_")+8 {
		t.Fatalf("unexpected id %q", svc.ID)
	}
	if svc.Category != DefaultCategory {
		t.Fatalf("expected default category, got %q", svc.Category)
	}
	if svc.Developer != "anonymous" {
		t.Fatalf("expected anonymous developer, got %q", svc.Developer)
	}
	if svc.Pricing.Asset != DefaultAsset || svc.Pricing.Network != DefaultNetwork || svc.Pricing.Currency != DefaultCurrency {
		t.Fatalf("platform pricing defaults not applied: %+v", svc.Pricing)
	}
	if svc.Pricing.HumanPrice != "$0.0010" {
		t.Fatalf("unexpected human price %q", svc.Pricing.HumanPrice)
	}
	if svc.Status != StatusActive {
		t.Fatalf("expected active status, got %q", svc.Status)
	}
	if svc.Tags == nil {
		t.Fatal("tags should be an empty slice, not nil")
	}
	if svc.Stats.TotalCalls != 0 || svc.Stats.RevenueUnits != 0 {
		t.Fatalf("fresh service should have zero stats: %+v", svc.Stats)
	}
}

func TestNewServiceValidation(t *testing.T) {
	cases := []Registration{
		{Endpoint: "https://example.com", Pricing: Pricing{Amount: 100}},
		{Name: "x", Pricing: Pricing{Amount: 100}},
		{Name: "x", Endpoint: "https://example.com"},
		{Name: "x", Endpoint: "https://example.com", Pricing: Pricing{Amount: -5}},
	}
	for i, reg := range cases {
		if _, err := NewService(reg); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestNewServiceDistinctIDs(t *testing.T) {
	reg := Registration{Name: "Echo", Endpoint: "https://example.com", Pricing: Pricing{Amount: 100}}
	a, _ := NewService(reg)
	b, _ := NewService(reg)
	if a.ID == b.ID {
		t.Fatalf("identical registrations must yield distinct ids, both got %q", a.ID)
	}
}

func TestAmountJSON(t *testing.T) {
	data, err := json.Marshal(Amount(10000))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"10000"` {
		t.Fatalf("expected quoted string, got %s", data)
	}

	var fromString, fromNumber Amount
	if err := json.Unmarshal([]byte(`"5000"`), &fromString); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if err := json.Unmarshal([]byte(`5000`), &fromNumber); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if fromString != 5000 || fromNumber != 5000 {
		t.Fatalf("expected 5000/5000, got %d/%d", fromString, fromNumber)
	}
}

func TestStatsJSON(t *testing.T) {
	data, err := json.Marshal(Stats{TotalCalls: 142, RevenueUnits: 1_420_000})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"totalCalls":142,"revenue":"1.4200"}` {
		t.Fatalf("unexpected wire form %s", data)
	}

	var back Stats
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.TotalCalls != 142 || back.RevenueUnits != 1_420_000 {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}

func TestParseUnits(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"0", 0},
		{"1.42", 1_420_000},
		{"0.445", 445_000},
		{"0.0050", 5_000},
		{"10", 10_000_000},
	}
	for _, tc := range cases {
		got, err := ParseUnits(tc.in)
		if err != nil {
			t.Fatalf("ParseUnits(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseUnits(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
	if _, err := ParseUnits("abc"); err == nil {
		t.Fatal("expected error for non-numeric revenue")
	}
}

func TestFormatUnits(t *testing.T) {
	if got := FormatUnits(1_420_000); got != "1.4200" {
		t.Fatalf("FormatUnits = %q", got)
	}
	if got := FormatUnits(0); got != "0.0000" {
		t.Fatalf("FormatUnits(0) = %q", got)
	}
}

func TestMatch(t *testing.T) {
	svc := Service{
		Name:        "Text Summarizer",
		Description: "Summarize any text",
		Category:    "nlp",
		Tags:        []string{"summarization", "ai"},
		Status:      StatusActive,
	}

	cases := []struct {
		filter Filter
		want   bool
	}{
		{Filter{}, true},
		{Filter{Category: "nlp"}, true},
		{Filter{Category: "data"}, false},
		{Filter{Tag: "ai"}, true},
		{Filter{Tag: "scraping"}, false},
		{Filter{Status: "active"}, true},
		{Filter{Status: "inactive"}, false},
		{Filter{Search: "SUMMAR"}, true},
		{Filter{Search: "any text"}, true},
		{Filter{Search: "ai"}, true}, // tag hit
		{Filter{Search: "nothing-here"}, false},
		{Filter{Category: "nlp", Tag: "ai", Search: "text"}, true},
	}
	for i, tc := range cases {
		if got := Match(svc, tc.filter); got != tc.want {
			t.Fatalf("case %d: Match = %v, want %v (filter %+v)", i, got, tc.want, tc.filter)
		}
	}
}

func TestPaginate(t *testing.T) {
	list := make([]Service, 45)
	for i := range list {
		list[i].ID = NewID()
	}

	paged, p := Paginate(list, 1, 20)
	if len(paged) != 20 || p.Total != 45 || p.TotalPages != 3 {
		t.Fatalf("page 1: got %d items, meta %+v", len(paged), p)
	}
	paged, p = Paginate(list, 3, 20)
	if len(paged) != 5 || p.Page != 3 {
		t.Fatalf("page 3: got %d items, meta %+v", len(paged), p)
	}
	paged, _ = Paginate(list, 99, 20)
	if len(paged) != 0 {
		t.Fatalf("out-of-range page should be empty, got %d items", len(paged))
	}
	_, p = Paginate(list, -1, 0)
	if p.Page != 1 || p.Limit != 20 {
		t.Fatalf("invalid params should clamp to defaults, got %+v", p)
	}
	_, p = Paginate(list, 1, 5000)
	if p.Limit != 100 {
		t.Fatalf("limit should clamp to 100, got %d", p.Limit)
	}
}
