// Package catalog turns raw plan records into the normalized catalog the
// optimizer consumes: manual overrides, promo classification and validation.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/patrickwarner/esimplanner/internal/models"
)

// OverrideMatch selects the plans an override applies to.
type OverrideMatch struct {
	NameContains string `yaml:"name_contains"`
}

// OverrideFields lists the plan attributes an override may replace. Unset
// fields leave the plan untouched.
type OverrideFields struct {
	NewUserOnly             *bool    `yaml:"new_user_only"`
	CanTopUp                *bool    `yaml:"can_top_up"`
	HasslePenaltyPerAccount *float64 `yaml:"hassle_penalty_per_account"`
	PromoRecurrence         *string  `yaml:"promo_recurrence"`
	RegularPrice            *float64 `yaml:"regular_price"`
	PromoPrice              *float64 `yaml:"promo_price"`
	RequiresPhoneForAccount *bool    `yaml:"requires_phone_for_account"`
	Tethering               *bool    `yaml:"tethering"`
	EKYC                    *bool    `yaml:"ekyc"`
}

// PlanOverride is one manual correction keyed on the plan title.
type PlanOverride struct {
	Match    OverrideMatch  `yaml:"match"`
	Override OverrideFields `yaml:"override"`
	Note     string         `yaml:"note"`
}

// ProviderPromo classifies how often a provider's promo price may be used.
type ProviderPromo struct {
	PromoType string `yaml:"promo_type"`
	Name      string `yaml:"name"`
}

// Overrides is the manual configuration merged into the catalog at ingestion.
// The file format is YAML; JSON documents load unchanged.
type Overrides struct {
	PlanOverrides          []PlanOverride           `yaml:"plan_overrides"`
	ProviderPromoOverrides map[string]ProviderPromo `yaml:"provider_promo_overrides"`
	DefaultPromoType       string                   `yaml:"default_promo_type"`
	DefaultHasslePenalty   *float64                 `yaml:"default_hassle_penalty"`
}

// DefaultOverrides returns an empty override set with the stock defaults.
func DefaultOverrides() *Overrides {
	return &Overrides{
		ProviderPromoOverrides: make(map[string]ProviderPromo),
		DefaultPromoType:       models.PromoUnlimited,
	}
}

// ParseOverrides decodes an overrides document.
func ParseOverrides(data []byte) (*Overrides, error) {
	o := DefaultOverrides()
	if err := yaml.Unmarshal(data, o); err != nil {
		return nil, fmt.Errorf("parse overrides: %w", err)
	}
	if o.ProviderPromoOverrides == nil {
		o.ProviderPromoOverrides = make(map[string]ProviderPromo)
	}
	if !knownPromoType(o.DefaultPromoType) {
		o.DefaultPromoType = models.PromoUnlimited
	}
	for i, po := range o.PlanOverrides {
		if strings.TrimSpace(po.Match.NameContains) == "" {
			return nil, fmt.Errorf("parse overrides: entry %d has no name_contains match", i)
		}
	}
	return o, nil
}

// LoadOverrides reads an overrides file. A missing file yields the defaults.
func LoadOverrides(path string) (*Overrides, error) {
	if path == "" {
		return DefaultOverrides(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultOverrides(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read overrides %s: %w", path, err)
	}
	return ParseOverrides(data)
}

// LoadPromoCache reads a scraped provider classification file keyed by
// provider ID. A missing file yields an empty cache.
func LoadPromoCache(path string) (map[string]ProviderPromo, error) {
	cache := make(map[string]ProviderPromo)
	if path == "" {
		return cache, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cache, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read promo cache %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("parse promo cache: %w", err)
	}
	return cache, nil
}

// Clone returns a copy whose provider table can be merged into without
// touching o.
func (o *Overrides) Clone() *Overrides {
	c := *o
	c.PlanOverrides = append([]PlanOverride(nil), o.PlanOverrides...)
	c.ProviderPromoOverrides = make(map[string]ProviderPromo, len(o.ProviderPromoOverrides))
	for k, v := range o.ProviderPromoOverrides {
		c.ProviderPromoOverrides[k] = v
	}
	return &c
}

// MergePromoClassifications adds classifications for providers without a
// manual entry. Unknown promo types are ignored. It returns how many were added.
func (o *Overrides) MergePromoClassifications(scraped map[string]ProviderPromo) int {
	added := 0
	for pid, info := range scraped {
		if _, manual := o.ProviderPromoOverrides[pid]; manual {
			continue
		}
		if !knownPromoType(info.PromoType) {
			continue
		}
		o.ProviderPromoOverrides[pid] = info
		added++
	}
	return added
}

// PromoTypeFor returns the promo recurrence for a provider.
func (o *Overrides) PromoTypeFor(providerID string) string {
	if pp, ok := o.ProviderPromoOverrides[providerID]; ok && knownPromoType(pp.PromoType) {
		return pp.PromoType
	}
	return o.DefaultPromoType
}

// OneTimeProviders returns the IDs of providers with a one-time promo.
func (o *Overrides) OneTimeProviders() []string {
	var ids []string
	for pid, pp := range o.ProviderPromoOverrides {
		if pp.PromoType == models.PromoOneTime {
			ids = append(ids, pid)
		}
	}
	return ids
}

// Apply returns p with every matching plan override applied in file order.
// Later entries win on conflicting fields.
func (o *Overrides) Apply(p models.Plan) models.Plan {
	title := strings.ToLower(p.Title)
	for _, po := range o.PlanOverrides {
		if !strings.Contains(title, strings.ToLower(po.Match.NameContains)) {
			continue
		}
		f := po.Override
		if f.NewUserOnly != nil {
			p.NewUserOnly = *f.NewUserOnly
		}
		if f.CanTopUp != nil {
			p.CanTopUp = *f.CanTopUp
		}
		if f.HasslePenaltyPerAccount != nil {
			p.HasslePenaltyPerAccount = models.Float(*f.HasslePenaltyPerAccount)
		}
		if f.PromoRecurrence != nil && knownPromoType(*f.PromoRecurrence) {
			p.PromoRecurrence = *f.PromoRecurrence
		}
		if f.RegularPrice != nil {
			p.RegularPrice = *f.RegularPrice
		}
		if f.PromoPrice != nil {
			p.PromoPrice = models.Float(*f.PromoPrice)
		}
		if f.RequiresPhoneForAccount != nil {
			p.RequiresPhoneForAccount = *f.RequiresPhoneForAccount
		}
		if f.Tethering != nil {
			p.Tethering = models.Bool(*f.Tethering)
		}
		if f.EKYC != nil {
			p.EKYC = *f.EKYC
		}
		if po.Note != "" {
			p.OverrideNote = po.Note
		}
	}
	return p
}

// HasslePenalty returns the file's default penalty, or def when unset.
func (o *Overrides) HasslePenalty(def float64) float64 {
	if o.DefaultHasslePenalty != nil {
		return *o.DefaultHasslePenalty
	}
	return def
}

func knownPromoType(t string) bool {
	return t == models.PromoOneTime || t == models.PromoUnlimited
}
