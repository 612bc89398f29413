package models

// NewTestCatalogStore creates an in-memory catalog store preloaded with plans.
func NewTestCatalogStore(plans ...Plan) CatalogStore {
	store := NewInMemoryCatalogStore()
	_ = store.ReloadAll(plans)
	return store
}

// TestPlan returns a valid local total-cap plan for territory with sensible
// defaults. Tests override the fields they care about.
func TestPlan(id, provider, territory string, dataMB, validityDays, price float64) Plan {
	return Plan{
		ProviderID:      provider,
		ProviderName:    provider,
		PlanID:          id,
		Title:           id,
		Scope:           ScopeLocal,
		Coverage:        []string{territory},
		DataMB:          dataMB,
		CapMode:         CapModeTotal,
		ValidityDays:    validityDays,
		RegularPrice:    price,
		PromoRecurrence: PromoUnlimited,
	}
}

// TestRegionalPlan returns a valid regional total-cap plan.
func TestRegionalPlan(id, provider string, coverage []string, dataMB, validityDays, price float64) Plan {
	p := TestPlan(id, provider, "", dataMB, validityDays, price)
	p.Scope = ScopeRegional
	p.Coverage = coverage
	return p
}
