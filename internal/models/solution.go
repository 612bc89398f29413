package models

// Purchase is one catalog plan bought Quantity times within a solution.
type Purchase struct {
	Plan     Plan `json:"plan"`
	Quantity int  `json:"quantity"`

	// ActivationDays holds the trip day each unit was first used on, or -1 for
	// units the allocator never needed to open.
	ActivationDays []int `json:"activation_days"`
	// AllocatedMB is the data actually drawn from all units across all legs.
	AllocatedMB float64 `json:"allocated_mb"`

	UnitPrice      float64  `json:"unit_price"`  // Price of the first unit as actually paid.
	TotalPrice     float64  `json:"total_price"` // Cash paid for every unit of this purchase.
	UsedPromo      bool     `json:"used_promo"`
	PromoForfeited bool     `json:"promo_forfeited,omitempty"` // Promo existed but was already consumed by the provider.
	Accounts       int      `json:"accounts"`
	Activations    int      `json:"activations"`
	TopUps         int      `json:"top_ups"`
	Warnings       []string `json:"warnings,omitempty"`
}

// Contribution records data supplied by one plan unit to one leg.
type Contribution struct {
	Purchase int     `json:"purchase"` // Index into Solution.Purchases.
	Unit     int     `json:"unit"`     // Unit within the purchase.
	FromDay  float64 `json:"from_day"`
	ToDay    float64 `json:"to_day"`
	DataMB   float64 `json:"data_mb"`
}

// LegFulfilment proves how a leg's requirement was met.
type LegFulfilment struct {
	Leg           Leg            `json:"leg"`
	SuppliedMB    float64        `json:"supplied_mb"`
	Contributions []Contribution `json:"contributions"`
}

// Solution is a feasible, costed set of purchases.
//
// CashCost is the price shown to the traveler. RankingCost adds the hassle
// penalty for extra accounts and is only used for ordering; it must never be
// displayed as a price.
type Solution struct {
	Purchases        []Purchase      `json:"purchases"`
	CashCost         float64         `json:"cash_cost"`
	RankingCost      float64         `json:"ranking_cost"`
	TotalAccounts    int             `json:"total_accounts"`
	TotalActivations int             `json:"total_activations"`
	TotalTopUps      int             `json:"total_top_ups"`
	FreeCount        int             `json:"free_count"`
	ProviderCount    int             `json:"provider_count"`
	PurchasedDataMB  float64         `json:"purchased_data_mb"`
	Legs             []LegFulfilment `json:"legs"`
}

// UnitCount returns the number of plan units bought.
func (s Solution) UnitCount() int {
	n := 0
	for _, p := range s.Purchases {
		n += p.Quantity
	}
	return n
}
