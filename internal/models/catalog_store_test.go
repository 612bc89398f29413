package models

import (
	"errors"
	"sync"
	"testing"
)

func TestInMemoryCatalogStore_ReloadAndLookup(t *testing.T) {
	store := NewInMemoryCatalogStore()
	if store.Version() != 0 {
		t.Fatalf("expected version 0, got %d", store.Version())
	}

	plans := []Plan{
		TestPlan("fr-1", "airalo", "france", 1024, 7, 5),
		TestPlan("es-1", "holafly", "spain", 2048, 15, 9),
		TestRegionalPlan("eu-1", "nomad", []string{"france", "spain", "italy"}, 5120, 30, 20),
	}
	if err := store.ReloadAll(plans); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if store.Version() != 1 {
		t.Errorf("expected version 1 after reload, got %d", store.Version())
	}

	p, err := store.GetPlan("es-1")
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	if p.ProviderID != "holafly" {
		t.Errorf("unexpected provider %s", p.ProviderID)
	}

	if _, err := store.GetPlan("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	fr := store.PlansForTerritories([]string{"France"})
	if len(fr) != 2 || fr[0].PlanID != "fr-1" || fr[1].PlanID != "eu-1" {
		t.Errorf("unexpected france plans: %+v", fr)
	}

	both := store.PlansForTerritories([]string{"france", "spain"})
	if len(both) != 3 {
		t.Errorf("expected 3 plans without duplicates, got %d", len(both))
	}

	providers := store.Providers()
	if len(providers) != 3 || providers[0] != "airalo" {
		t.Errorf("unexpected providers %v", providers)
	}
}

func TestInMemoryCatalogStore_ReturnsCopies(t *testing.T) {
	store := NewTestCatalogStore(TestPlan("fr-1", "airalo", "france", 1024, 7, 5))

	all := store.GetAllPlans()
	all[0].RegularPrice = 100

	p, _ := store.GetPlan("fr-1")
	if p.RegularPrice != 5 {
		t.Errorf("store was mutated through returned slice")
	}
	p.RegularPrice = 200
	again, _ := store.GetPlan("fr-1")
	if again.RegularPrice != 5 {
		t.Errorf("store was mutated through returned pointer")
	}
}

func TestInMemoryCatalogStore_UpsertAndDelete(t *testing.T) {
	store := NewInMemoryCatalogStore()
	_ = store.ReloadAll([]Plan{TestPlan("fr-1", "airalo", "france", 1024, 7, 5)})

	updated := TestPlan("fr-1", "airalo", "france", 1024, 7, 4)
	if err := store.UpsertPlan(updated); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.UpsertPlan(TestPlan("fr-2", "airalo", "france", 3072, 30, 11)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if got := len(store.GetAllPlans()); got != 2 {
		t.Fatalf("expected 2 plans, got %d", got)
	}
	p, _ := store.GetPlan("fr-1")
	if p.RegularPrice != 4 {
		t.Errorf("expected updated price 4, got %v", p.RegularPrice)
	}

	if err := store.UpsertPlan(Plan{}); err == nil {
		t.Error("expected error for plan without id")
	}

	if err := store.DeletePlan("fr-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeletePlan("fr-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	if got := store.PlansForTerritories([]string{"france"}); len(got) != 1 || got[0].PlanID != "fr-2" {
		t.Errorf("territory index not rebuilt: %+v", got)
	}
	if store.Version() != 4 {
		t.Errorf("expected version 4, got %d", store.Version())
	}
}

func TestInMemoryCatalogStore_ConcurrentReadsDuringReload(t *testing.T) {
	store := NewInMemoryCatalogStore()
	small := []Plan{TestPlan("a", "p", "x", 100, 1, 1)}
	large := []Plan{
		TestPlan("a", "p", "x", 100, 1, 1),
		TestPlan("b", "p", "x", 200, 2, 2),
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				n := len(store.PlansForTerritories([]string{"x"}))
				if n != 0 && n != 1 && n != 2 {
					t.Errorf("torn snapshot with %d plans", n)
					return
				}
			}
		}()
	}
	for j := 0; j < 200; j++ {
		if j%2 == 0 {
			_ = store.ReloadAll(small)
		} else {
			_ = store.ReloadAll(large)
		}
	}
	wg.Wait()
}
