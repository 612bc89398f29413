package models

import (
	"math"
	"strings"
)

// Unlimited is the sentinel stored in Plan.DataMB or Plan.ValidityDays when the
// offer has no data cap or no expiry.
const Unlimited = -1.0

// Plan scopes. A local plan covers exactly one territory, a regional plan covers
// every territory listed in its Coverage.
const (
	ScopeLocal    = "local"
	ScopeRegional = "regional"
)

// Data cap modes describe how DataMB is granted over the validity window.
const (
	CapModeTotal  = "total"   // DataMB is a single bucket for the whole validity window.
	CapModePerDay = "per_day" // DataMB is a daily allowance that resets every day of validity.
)

// Promo recurrence classes. They are sourced from a provider classification
// table at ingestion time and govern how often PromoPrice may be charged.
const (
	PromoOneTime   = "one-time"  // Promo price usable on a single purchase per provider.
	PromoUnlimited = "unlimited" // Promo price usable on every purchase from the provider.
)

// Plan is one normalized catalog offering. Plans are read-only for the
// duration of an optimization run; all per-candidate bookkeeping lives in
// separate allocation state owned by the solver.
type Plan struct {
	ProviderID   string `json:"provider_id"`   // Identity used to track promo consumption.
	ProviderName string `json:"provider_name"` // Display name of the issuing provider.
	PlanID       string `json:"plan_id"`       // Catalog identity of the offer.
	Title        string `json:"plan_title"`    // Human readable plan name, also the override match target.

	Scope    string   `json:"scope"`    // ScopeLocal or ScopeRegional.
	Coverage []string `json:"coverage"` // Territory slugs the plan is valid in.

	DataMB       float64 `json:"data_mb"`       // Capacity in MB, Unlimited for no cap.
	CapMode      string  `json:"cap_mode"`      // CapModeTotal or CapModePerDay.
	ValidityDays float64 `json:"validity_days"` // Validity window in days, Unlimited for no expiry.

	RegularPrice    float64  `json:"regular_price"`              // Cash price in the catalog currency.
	PromoPrice      *float64 `json:"promo_price,omitempty"`      // Discounted price, nil when no promo exists.
	PromoRecurrence string   `json:"promo_recurrence,omitempty"` // PromoOneTime or PromoUnlimited.

	NewUserOnly bool `json:"new_user_only"` // Offer restricted to new accounts; every unit needs its own account.
	CanTopUp    bool `json:"can_top_up"`    // Further units can be added to an existing eSIM.

	// HasslePenaltyPerAccount overrides the configured ranking penalty for
	// every account beyond the first. It never contributes to cash cost.
	HasslePenaltyPerAccount *float64 `json:"hassle_penalty_per_account,omitempty"`

	// Informational attributes surfaced as purchase warnings.
	SpeedLimitKbps          float64 `json:"speed_limit_kbps,omitempty"`
	ReducedSpeedKbps        float64 `json:"reduced_speed_kbps,omitempty"`
	PossibleThrottling      bool    `json:"possible_throttling,omitempty"`
	Tethering               *bool   `json:"tethering,omitempty"`
	EKYC                    bool    `json:"ekyc,omitempty"`
	Subscription            bool    `json:"subscription,omitempty"`
	PayAsYouGo              bool    `json:"pay_as_you_go,omitempty"`
	HasAds                  bool    `json:"has_ads,omitempty"`
	RequiresPhoneForAccount bool    `json:"requires_phone_for_account,omitempty"`
	OverrideNote            string  `json:"override_note,omitempty"`
}

// Requirement is the whole-trip aggregate used to derive the daily rate.
type Requirement struct {
	TotalDays   float64 `json:"total_days"`
	TotalDataMB float64 `json:"total_data_mb"`
}

// DailyRate returns the assumed consumption rate in MB per day.
func (r Requirement) DailyRate() float64 {
	if r.TotalDays <= 0 {
		return 0
	}
	return r.TotalDataMB / r.TotalDays
}

// UnlimitedData reports whether the plan has no data cap.
func (p Plan) UnlimitedData() bool {
	return p.DataMB == Unlimited
}

// NoExpiry reports whether the plan never expires.
func (p Plan) NoExpiry() bool {
	return p.ValidityDays == Unlimited
}

// IsPerDay reports whether DataMB is a daily allowance.
func (p Plan) IsPerDay() bool {
	return p.CapMode == CapModePerDay
}

// HasPromo reports whether a non-negative promo price exists and undercuts the
// regular price.
func (p Plan) HasPromo() bool {
	return p.PromoPrice != nil && *p.PromoPrice >= 0 && *p.PromoPrice < p.RegularPrice
}

// IsFree reports whether the plan costs nothing at its regular price.
func (p Plan) IsFree() bool {
	return p.RegularPrice == 0 && (p.PromoPrice == nil || *p.PromoPrice == 0)
}

// BestPrice returns the promo price when one applies, otherwise the regular price.
func (p Plan) BestPrice() float64 {
	if p.HasPromo() {
		return *p.PromoPrice
	}
	return p.RegularPrice
}

// Valid reports whether the plan carries every field the optimizer needs:
// a non-negative price, positive (or unlimited) data and validity.
func (p Plan) Valid() bool {
	if p.RegularPrice < 0 || math.IsNaN(p.RegularPrice) {
		return false
	}
	return positiveOrUnlimited(p.DataMB) && positiveOrUnlimited(p.ValidityDays)
}

// positiveOrUnlimited rejects zero, NaN and negative values other than the
// Unlimited sentinel.
func positiveOrUnlimited(v float64) bool {
	return v == Unlimited || (v > 0 && !math.IsInf(v, 1))
}

// Covers reports whether territory is listed in the plan coverage.
func (p Plan) Covers(territory string) bool {
	territory = strings.ToLower(strings.TrimSpace(territory))
	for _, c := range p.Coverage {
		if strings.ToLower(c) == territory {
			return true
		}
	}
	return false
}

// RawCapacityMB returns the total data the plan can ever deliver: the bucket
// for total-cap plans, or daily allowance times validity for per-day plans.
// Unlimited values are reported as +Inf.
func (p Plan) RawCapacityMB() float64 {
	if p.UnlimitedData() {
		return math.Inf(1)
	}
	if p.IsPerDay() {
		if p.NoExpiry() {
			return math.Inf(1)
		}
		return p.DataMB * p.ValidityDays
	}
	return p.DataMB
}

// validity returns the validity window with Unlimited mapped to +Inf.
func (p Plan) validity() float64 {
	if p.NoExpiry() {
		return math.Inf(1)
	}
	return p.ValidityDays
}

// EffectiveCapacityMB caps the raw capacity by what the plan can deliver over
// its own validity at the trip daily rate. A zero rate leaves the raw capacity.
func (p Plan) EffectiveCapacityMB(rate float64) float64 {
	if !p.Valid() {
		return 0
	}
	raw := p.RawCapacityMB()
	if rate <= 0 {
		return raw
	}
	return math.Min(raw, p.validity()*rate)
}

// EffectiveValidityDays caps the validity by how long the capacity lasts at the
// trip daily rate. When both are unlimited the result is clipped to tripDays.
func (p Plan) EffectiveValidityDays(rate, tripDays float64) float64 {
	if !p.Valid() {
		return 0
	}
	days := p.validity()
	if rate > 0 {
		days = math.Min(days, p.RawCapacityMB()/rate)
	}
	if math.IsInf(days, 1) {
		return tripDays
	}
	return days
}

// DedupKey identifies catalog duplicates that differ only in listing metadata.
type DedupKey struct {
	ProviderID string
	Title      string
	DataMB     float64
}

// Key returns the plan's deduplication key.
func (p Plan) Key() DedupKey {
	return DedupKey{ProviderID: p.ProviderID, Title: p.Title, DataMB: p.DataMB}
}

// HasslePenalty returns the plan's per-account penalty or def when unset.
func (p Plan) HasslePenalty(def float64) float64 {
	if p.HasslePenaltyPerAccount != nil {
		return *p.HasslePenaltyPerAccount
	}
	return def
}

// Float returns a pointer to v. It is a convenience for optional price fields.
func Float(v float64) *float64 {
	return &v
}

// Bool returns a pointer to v.
func Bool(v bool) *bool {
	return &v
}
