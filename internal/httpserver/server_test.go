package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ledgermem "github.com/openclaw/agenthub/internal/ledger/memory"
	"github.com/openclaw/agenthub/internal/metrics"
	"github.com/openclaw/agenthub/internal/payment"
	"github.com/openclaw/agenthub/internal/proxy"
	"github.com/openclaw/agenthub/internal/registry"
	registrymem "github.com/openclaw/agenthub/internal/registry/memory"
)

type testEnv struct {
	srv *httptest.Server
	reg *registrymem.Store
	led *ledgermem.Store
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	reg := registrymem.New()
	led := ledgermem.New()
	gate := &payment.Builder{
		PayTo:    "0x66356d55a891321048e53Fa6A29ed21a15fc3A6A",
		Network:  "base",
		Asset:    registry.DefaultAsset,
		Currency: "USDC",
		BaseURL:  "http://localhost:8080",
	}
	collector := metrics.NewCollector()
	px := proxy.New(reg, led, gate, proxy.Options{CallTimeout: 5 * time.Second, Metrics: collector})
	server := New(reg, led, px, gate, collector, nil, nil, Config{})

	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, reg: reg, led: led}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func (e *testEnv) register(t *testing.T, name string, extra map[string]interface{}) registry.Service {
	t.Helper()
	payload := map[string]interface{}{
		"name":     name,
		"endpoint": "https://example.com/api",
		"pricing":  map[string]interface{}{"amount": 1000},
	}
	for k, v := range extra {
		payload[k] = v
	}
	resp, data := e.do(t, http.MethodPost, "/services", payload, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", name, resp.StatusCode, data)
	}
	var body struct {
		Service registry.Service `json:"service"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("decode service: %v", err)
	}
	if body.Service.ID == "" {
		t.Fatalf("registration response not wrapped in service key: %s", data)
	}
	return body.Service
}

func TestRegisterService(t *testing.T) {
	env := newEnv(t)

	svc := env.register(t, "Echo", nil)
	if !strings.HasPrefix(svc.ID, "svc_") {
		t.Fatalf("unexpected id %q", svc.ID)
	}
	if svc.Developer != "anonymous" || svc.Category != "other" {
		t.Fatalf("defaults not applied: %+v", svc)
	}
	if svc.Pricing.HumanPrice != "$0.0010" {
		t.Fatalf("human price %q", svc.Pricing.HumanPrice)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newEnv(t)

	resp, data := env.do(t, http.MethodPost, "/services", map[string]interface{}{"name": "x"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "name, endpoint, and pricing.amount are required" {
		t.Fatalf("error %q", body["error"])
	}

	// Malformed JSON is also a 400.
	req, _ := http.NewRequest(http.MethodPost, env.srv.URL+"/services", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body: status %d", resp2.StatusCode)
	}
}

func TestGetService(t *testing.T) {
	env := newEnv(t)
	svc := env.register(t, "Echo", nil)

	resp, data := env.do(t, http.MethodGet, "/services/"+svc.ID, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var got struct {
		Service registry.Service `json:"service"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Service.ID != svc.ID || got.Service.Name != "Echo" {
		t.Fatalf("mismatch: %+v", got.Service)
	}

	resp, data = env.do(t, http.MethodGet, "/services/svc_missing", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var body map[string]string
	_ = json.Unmarshal(data, &body)
	if body["error"] != "Service not found" {
		t.Fatalf("error %q", body["error"])
	}
}

func TestListServices(t *testing.T) {
	env := newEnv(t)
	env.register(t, "Text Summarizer", map[string]interface{}{"category": "nlp", "tags": []string{"ai"}})
	env.register(t, "Web Scraper", map[string]interface{}{"category": "data", "tags": []string{"scraping"}})
	for i := 0; i < 23; i++ {
		env.register(t, fmt.Sprintf("Filler %d", i), nil)
	}

	var body struct {
		Services   []registry.Service  `json:"services"`
		Pagination registry.Pagination `json:"pagination"`
	}

	resp, data := env.do(t, http.MethodGet, "/services", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Services) != 20 || body.Pagination.Total != 25 || body.Pagination.TotalPages != 2 {
		t.Fatalf("default page: %d services, meta %+v", len(body.Services), body.Pagination)
	}
	if body.Services[0].Name != "Text Summarizer" {
		t.Fatalf("expected insertion order, first was %q", body.Services[0].Name)
	}

	_, data = env.do(t, http.MethodGet, "/services?page=2&limit=20", nil, nil)
	_ = json.Unmarshal(data, &body)
	if len(body.Services) != 5 || body.Pagination.Page != 2 {
		t.Fatalf("page 2: %d services, meta %+v", len(body.Services), body.Pagination)
	}

	_, data = env.do(t, http.MethodGet, "/services?category=nlp", nil, nil)
	_ = json.Unmarshal(data, &body)
	if len(body.Services) != 1 || body.Services[0].Name != "Text Summarizer" {
		t.Fatalf("category filter: %+v", body.Services)
	}

	_, data = env.do(t, http.MethodGet, "/services?search=scraper", nil, nil)
	_ = json.Unmarshal(data, &body)
	if len(body.Services) != 1 || body.Services[0].Name != "Web Scraper" {
		t.Fatalf("search filter: %+v", body.Services)
	}
}

func TestPaymentInfo(t *testing.T) {
	env := newEnv(t)
	svc := env.register(t, "Echo", nil)

	resp, data := env.do(t, http.MethodGet, "/services/"+svc.ID+"/pay", nil, nil)
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var required payment.Required
	if err := json.Unmarshal(data, &required); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if required.X402Version != 1 || len(required.Accepts) != 1 {
		t.Fatalf("envelope: %+v", required)
	}
	if required.Accepts[0].MaxAmountRequired != "1000" {
		t.Fatalf("maxAmountRequired %q", required.Accepts[0].MaxAmountRequired)
	}
}

func TestCallFlow(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"echo":true}`))
	}))
	t.Cleanup(upstream.Close)

	env := newEnv(t)
	svc := env.register(t, "Echo", map[string]interface{}{"endpoint": upstream.URL})

	// No payment header: 402 with descriptor, no ledger entry.
	resp, data := env.do(t, http.MethodPost, "/services/"+svc.ID+"/call", map[string]interface{}{}, nil)
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("unpaid call: status %d body %s", resp.StatusCode, data)
	}
	if env.led.Size() != 0 {
		t.Fatalf("unpaid call produced ledger entries")
	}

	// Paid call: wrapped 200 plus one ledger entry and billed stats.
	resp, data = env.do(t, http.MethodPost, "/services/"+svc.ID+"/call",
		map[string]interface{}{"text": "hi"}, map[string]string{payment.Header: "proof"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("paid call: status %d body %s", resp.StatusCode, data)
	}
	var wrapped struct {
		Service struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"service"`
		Result map[string]interface{} `json:"result"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if wrapped.Service.ID != svc.ID || wrapped.Result["echo"] != true {
		t.Fatalf("wrapped response mismatch: %s", data)
	}
	if env.led.Size() != 1 {
		t.Fatalf("expected one ledger entry, got %d", env.led.Size())
	}

	// Malformed body: 400 before the gate, still only one entry.
	req, _ := http.NewRequest(http.MethodPost, env.srv.URL+"/services/"+svc.ID+"/call", strings.NewReader("{broken"))
	req.Header.Set(payment.Header, "proof")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed call body: status %d", resp2.StatusCode)
	}
	if env.led.Size() != 1 {
		t.Fatalf("malformed body must not reach the ledger, got %d entries", env.led.Size())
	}

	// Unknown service id.
	resp, _ = env.do(t, http.MethodPost, "/services/svc_missing/call", map[string]interface{}{}, map[string]string{payment.Header: "proof"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown service call: status %d", resp.StatusCode)
	}
}

func TestCallWithoutBody(t *testing.T) {
	var forwarded []byte
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		forwarded, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(upstream.Close)

	env := newEnv(t)
	svc := env.register(t, "Echo", map[string]interface{}{"endpoint": upstream.URL})

	// An absent body is treated as an empty object, so the call still
	// reaches the payment gate instead of failing validation.
	resp, data := env.do(t, http.MethodPost, "/services/"+svc.ID+"/call", nil, nil)
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("bodyless unpaid call: status %d body %s", resp.StatusCode, data)
	}
	if env.led.Size() != 0 {
		t.Fatalf("bodyless unpaid call produced ledger entries")
	}

	resp, data = env.do(t, http.MethodPost, "/services/"+svc.ID+"/call", nil,
		map[string]string{payment.Header: "proof"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bodyless paid call: status %d body %s", resp.StatusCode, data)
	}
	if strings.TrimSpace(string(forwarded)) != "{}" {
		t.Fatalf("upstream payload %q, want empty object", forwarded)
	}
	if env.led.Size() != 1 {
		t.Fatalf("expected one ledger entry, got %d", env.led.Size())
	}
}

func TestDeveloperStats(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(upstream.Close)

	env := newEnv(t)
	svc := env.register(t, "Echo", map[string]interface{}{
		"developer": "dev_alice",
		"endpoint":  upstream.URL,
	})
	env.register(t, "Other", map[string]interface{}{"developer": "dev_bob"})

	for i := 0; i < 2; i++ {
		resp, _ := env.do(t, http.MethodPost, "/services/"+svc.ID+"/call",
			map[string]interface{}{}, map[string]string{payment.Header: "proof"})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("call %d: status %d", i, resp.StatusCode)
		}
	}

	resp, data := env.do(t, http.MethodGet, "/developer/stats?developer=dev_alice", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var stats struct {
		Developer string `json:"developer"`
		Summary   struct {
			TotalServices int    `json:"totalServices"`
			TotalCalls    int64  `json:"totalCalls"`
			TotalRevenue  string `json:"totalRevenue"`
			Currency      string `json:"currency"`
		} `json:"summary"`
		Services []struct {
			ID      string `json:"id"`
			Calls   int64  `json:"calls"`
			Revenue string `json:"revenue"`
		} `json:"services"`
		RecentCalls []map[string]interface{} `json:"recentCalls"`
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Summary.TotalServices != 1 || stats.Summary.TotalCalls != 2 {
		t.Fatalf("summary: %+v", stats.Summary)
	}
	if stats.Summary.TotalRevenue != "0.0020" || stats.Summary.Currency != "USDC" {
		t.Fatalf("revenue: %+v", stats.Summary)
	}
	if len(stats.Services) != 1 || stats.Services[0].ID != svc.ID || stats.Services[0].Calls != 2 {
		t.Fatalf("per-service stats: %+v", stats.Services)
	}
	if len(stats.RecentCalls) != 2 {
		t.Fatalf("recentCalls: %+v", stats.RecentCalls)
	}

	// Without a developer param the report spans the whole catalogue.
	resp, data = env.do(t, http.MethodGet, "/developer/stats", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("missing param: status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Summary.TotalServices != 2 || stats.Summary.TotalCalls != 2 {
		t.Fatalf("catalogue-wide summary: %+v", stats.Summary)
	}

	// Unknown developer gets an empty report, not a 404.
	resp, data = env.do(t, http.MethodGet, "/developer/stats?developer=dev_nobody", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unknown developer: status %d", resp.StatusCode)
	}
	_ = json.Unmarshal(data, &stats)
	if stats.Summary.TotalServices != 0 || len(stats.RecentCalls) != 0 {
		t.Fatalf("unknown developer should be empty: %s", data)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newEnv(t)

	resp, data := env.do(t, http.MethodGet, "/health", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: status %d", resp.StatusCode)
	}
	var health map[string]interface{}
	if err := json.Unmarshal(data, &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health["status"] != "ok" || health["service"] != "agenthub" {
		t.Fatalf("health body: %s", data)
	}

	resp, data = env.do(t, http.MethodGet, "/metrics", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: status %d", resp.StatusCode)
	}
	if !strings.Contains(string(data), "agenthub_requests_total") {
		t.Fatalf("metrics output missing counters: %s", data)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newEnv(t)
	resp, data := env.do(t, http.MethodDelete, "/services", nil, nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var body map[string]string
	_ = json.Unmarshal(data, &body)
	if body["error"] != "Method not allowed" {
		t.Fatalf("error %q", body["error"])
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newEnv(t)
	req, _ := http.NewRequest(http.MethodOptions, env.srv.URL+"/services", nil)
	req.Header.Set("Origin", "https://agent.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		t.Fatalf("preflight status %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Fatal("missing Access-Control-Allow-Origin")
	}
}
