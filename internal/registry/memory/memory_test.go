package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/openclaw/agenthub/internal/registry"
)

func newService(t *testing.T, name, category string, tags ...string) registry.Service {
	t.Helper()
	svc, err := registry.NewService(registry.Registration{
		Name:     name,
		Category: category,
		Tags:     tags,
		Endpoint: "https://example.com/api",
		Pricing:  registry.Pricing{Amount: 1000},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestCreateFindList(t *testing.T) {
	store := New()
	ctx := context.Background()

	a := newService(t, "Alpha", "nlp", "ai")
	b := newService(t, "Beta", "data")
	for _, svc := range []registry.Service{a, b} {
		if err := store.Create(ctx, svc); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	found, err := store.Find(ctx, a.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if found.Name != "Alpha" {
		t.Fatalf("found wrong service %q", found.Name)
	}

	if _, err := store.Find(ctx, "svc_missing"); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	list, err := store.List(ctx, registry.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Fatalf("expected insertion order [%s %s], got %+v", a.ID, b.ID, list)
	}

	nlp, err := store.List(ctx, registry.Filter{Category: "nlp"})
	if err != nil {
		t.Fatalf("List filtered: %v", err)
	}
	if len(nlp) != 1 || nlp[0].ID != a.ID {
		t.Fatalf("category filter failed: %+v", nlp)
	}
}

func TestRecordCall(t *testing.T) {
	store := New()
	ctx := context.Background()
	svc := newService(t, "Alpha", "nlp")
	if err := store.Create(ctx, svc); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.RecordCall(ctx, svc.ID, 1000); err != nil {
		t.Fatalf("RecordCall: %v", err)
	}
	if err := store.RecordCall(ctx, svc.ID, 1000); err != nil {
		t.Fatalf("RecordCall: %v", err)
	}

	found, _ := store.Find(ctx, svc.ID)
	if found.Stats.TotalCalls != 2 || found.Stats.RevenueUnits != 2000 {
		t.Fatalf("unexpected stats %+v", found.Stats)
	}

	if err := store.RecordCall(ctx, "svc_missing", 1000); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordCallConcurrent(t *testing.T) {
	store := New()
	ctx := context.Background()
	svc := newService(t, "Alpha", "nlp")
	if err := store.Create(ctx, svc); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_ = store.RecordCall(ctx, svc.ID, 10)
		}()
	}
	wg.Wait()

	found, _ := store.Find(ctx, svc.ID)
	if found.Stats.TotalCalls != n || found.Stats.RevenueUnits != n*10 {
		t.Fatalf("lost updates: %+v", found.Stats)
	}
}

func TestReset(t *testing.T) {
	store := New()
	ctx := context.Background()
	if err := store.Create(ctx, newService(t, "Alpha", "nlp")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	list, _ := store.List(ctx, registry.Filter{})
	if len(list) != 0 {
		t.Fatalf("expected empty catalogue after reset, got %d", len(list))
	}
}
