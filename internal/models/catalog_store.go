package models

import (
	"errors"
	"sort"
	"strings"
	"sync/atomic"
)

// ErrNotFound is returned when a plan is not present in the catalog store.
var ErrNotFound = errors.New("entity not found")

// CatalogStore provides thread-safe access to the normalized plan catalog.
// Readers always observe a complete snapshot; reloads swap snapshots atomically.
type CatalogStore interface {
	// Read operations (hot path)
	GetPlan(planID string) (*Plan, error)
	GetAllPlans() []Plan
	PlansForTerritories(territories []string) []Plan
	Providers() []string

	// Reload path
	ReloadAll(plans []Plan) error
	UpsertPlan(plan Plan) error
	DeletePlan(planID string) error

	// Version increments on every successful write. Caches key on it.
	Version() uint64
}

// catalogSnapshot is an immutable view of the catalog.
type catalogSnapshot struct {
	plans          []Plan
	planIndex      map[string]int      // Plan ID -> position in plans
	territoryIndex map[string][]int    // Territory slug -> positions in plans
	providers      map[string]struct{} // Provider IDs present
	version        uint64
}

// InMemoryCatalogStore implements CatalogStore with atomic snapshot updates.
type InMemoryCatalogStore struct {
	data atomic.Pointer[catalogSnapshot]
}

// NewInMemoryCatalogStore creates an empty catalog store.
func NewInMemoryCatalogStore() *InMemoryCatalogStore {
	store := &InMemoryCatalogStore{}
	store.data.Store(buildCatalogSnapshot(nil, 0))
	return store
}

func buildCatalogSnapshot(plans []Plan, version uint64) *catalogSnapshot {
	snap := &catalogSnapshot{
		plans:          plans,
		planIndex:      make(map[string]int, len(plans)),
		territoryIndex: make(map[string][]int),
		providers:      make(map[string]struct{}),
		version:        version,
	}
	for i, p := range plans {
		snap.planIndex[p.PlanID] = i
		snap.providers[p.ProviderID] = struct{}{}
		for _, t := range p.Coverage {
			t = strings.ToLower(t)
			snap.territoryIndex[t] = append(snap.territoryIndex[t], i)
		}
	}
	return snap
}

// GetPlan retrieves a plan by ID. The returned value is a copy.
func (s *InMemoryCatalogStore) GetPlan(planID string) (*Plan, error) {
	data := s.data.Load()
	i, ok := data.planIndex[planID]
	if !ok {
		return nil, ErrNotFound
	}
	p := data.plans[i]
	return &p, nil
}

// GetAllPlans returns every plan in catalog order.
func (s *InMemoryCatalogStore) GetAllPlans() []Plan {
	data := s.data.Load()
	// Return a copy to prevent external modification
	result := make([]Plan, len(data.plans))
	copy(result, data.plans)
	return result
}

// PlansForTerritories returns the plans covering at least one of the given
// territories, in catalog order and without duplicates.
func (s *InMemoryCatalogStore) PlansForTerritories(territories []string) []Plan {
	data := s.data.Load()
	seen := make(map[int]struct{})
	var positions []int
	for _, t := range territories {
		for _, i := range data.territoryIndex[strings.ToLower(strings.TrimSpace(t))] {
			if _, ok := seen[i]; ok {
				continue
			}
			seen[i] = struct{}{}
			positions = append(positions, i)
		}
	}
	sort.Ints(positions)
	result := make([]Plan, 0, len(positions))
	for _, i := range positions {
		result = append(result, data.plans[i])
	}
	return result
}

// Providers returns the sorted provider IDs present in the catalog.
func (s *InMemoryCatalogStore) Providers() []string {
	data := s.data.Load()
	ids := make([]string, 0, len(data.providers))
	for id := range data.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ReloadAll atomically replaces the whole catalog.
func (s *InMemoryCatalogStore) ReloadAll(plans []Plan) error {
	current := s.data.Load()
	cp := make([]Plan, len(plans))
	copy(cp, plans)
	s.data.Store(buildCatalogSnapshot(cp, current.version+1))
	return nil
}

// UpsertPlan inserts or replaces a single plan.
func (s *InMemoryCatalogStore) UpsertPlan(plan Plan) error {
	if plan.PlanID == "" {
		return errors.New("plan id is required")
	}
	current := s.data.Load()
	plans := make([]Plan, len(current.plans), len(current.plans)+1)
	copy(plans, current.plans)
	if i, ok := current.planIndex[plan.PlanID]; ok {
		plans[i] = plan
	} else {
		plans = append(plans, plan)
	}
	s.data.Store(buildCatalogSnapshot(plans, current.version+1))
	return nil
}

// DeletePlan removes a plan from the catalog.
func (s *InMemoryCatalogStore) DeletePlan(planID string) error {
	current := s.data.Load()
	i, ok := current.planIndex[planID]
	if !ok {
		return ErrNotFound
	}
	plans := make([]Plan, 0, len(current.plans)-1)
	plans = append(plans, current.plans[:i]...)
	plans = append(plans, current.plans[i+1:]...)
	s.data.Store(buildCatalogSnapshot(plans, current.version+1))
	return nil
}

// Version returns the snapshot version.
func (s *InMemoryCatalogStore) Version() uint64 {
	return s.data.Load().version
}
