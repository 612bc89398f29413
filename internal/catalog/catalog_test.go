package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/esimplanner/internal/models"
)

const overridesYAML = `
default_promo_type: unlimited
default_hassle_penalty: 0.75
provider_promo_overrides:
  saily:
    promo_type: one-time
    name: Saily
plan_overrides:
  - match:
      name_contains: FirstFill
    override:
      new_user_only: true
      requires_phone_for_account: true
    note: New accounts only
  - match:
      name_contains: refill
    override:
      can_top_up: true
      hassle_penalty_per_account: 0
`

// The same document as JSON.
const overridesJSON = `{
  "default_promo_type": "one-time",
  "plan_overrides": [
    {"match": {"name_contains": "firstfill"}, "override": {"new_user_only": true, "promo_price": 0}}
  ],
  "provider_promo_overrides": {"airalo": {"promo_type": "unlimited"}}
}`

func TestParseOverrides_YAML(t *testing.T) {
	o, err := ParseOverrides([]byte(overridesYAML))
	require.NoError(t, err)
	assert.Equal(t, models.PromoUnlimited, o.DefaultPromoType)
	assert.InDelta(t, 0.75, o.HasslePenalty(0.5), 1e-9)
	assert.Equal(t, models.PromoOneTime, o.PromoTypeFor("saily"))
	assert.Equal(t, models.PromoUnlimited, o.PromoTypeFor("other"))
	assert.Equal(t, []string{"saily"}, o.OneTimeProviders())
	require.Len(t, o.PlanOverrides, 2)
}

func TestParseOverrides_JSON(t *testing.T) {
	o, err := ParseOverrides([]byte(overridesJSON))
	require.NoError(t, err)
	assert.Equal(t, models.PromoOneTime, o.DefaultPromoType)
	assert.Equal(t, models.PromoUnlimited, o.PromoTypeFor("airalo"))
	assert.Equal(t, models.PromoOneTime, o.PromoTypeFor("other"))
	assert.InDelta(t, 0.5, o.HasslePenalty(0.5), 1e-9)

	p := o.Apply(models.Plan{Title: "FairPlay FirstFill 1GB", RegularPrice: 3})
	assert.True(t, p.NewUserOnly)
	require.NotNil(t, p.PromoPrice)
	assert.Equal(t, 0.0, *p.PromoPrice)
}

func TestParseOverrides_Invalid(t *testing.T) {
	_, err := ParseOverrides([]byte("plan_overrides: [{override: {can_top_up: true}}]"))
	assert.Error(t, err)

	_, err = ParseOverrides([]byte("plan_overrides: {"))
	assert.Error(t, err)

	o, err := ParseOverrides([]byte("default_promo_type: sometimes"))
	require.NoError(t, err)
	assert.Equal(t, models.PromoUnlimited, o.DefaultPromoType)
}

func TestLoadOverrides_Files(t *testing.T) {
	dir := t.TempDir()

	o, err := LoadOverrides(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, o.PlanOverrides)

	path := filepath.Join(dir, "plan_overrides.json")
	require.NoError(t, os.WriteFile(path, []byte(overridesJSON), 0o600))
	o, err = LoadOverrides(path)
	require.NoError(t, err)
	assert.Len(t, o.PlanOverrides, 1)

	cachePath := filepath.Join(dir, "promo_cache.json")
	require.NoError(t, os.WriteFile(cachePath, []byte(`{"holafly": {"promo_type": "one-time", "name": "Holafly"}, "airalo": {"promo_type": "one-time"}, "nomad": {"promo_type": "unknown"}}`), 0o600))
	cache, err := LoadPromoCache(cachePath)
	require.NoError(t, err)
	require.Len(t, cache, 3)

	added := o.MergePromoClassifications(cache)
	assert.Equal(t, 1, added)
	assert.Equal(t, models.PromoOneTime, o.PromoTypeFor("holafly"))
	// Manual entries win over the scraped cache.
	assert.Equal(t, models.PromoUnlimited, o.PromoTypeFor("airalo"))
	// Unknown classifications fall back to the default.
	assert.Equal(t, models.PromoOneTime, o.PromoTypeFor("nomad"))
}

func TestApply_LaterEntriesWin(t *testing.T) {
	o, err := ParseOverrides([]byte(overridesYAML))
	require.NoError(t, err)

	p := o.Apply(models.Plan{Title: "FirstFill Refill 3GB"})
	assert.True(t, p.NewUserOnly)
	assert.True(t, p.CanTopUp)
	assert.True(t, p.RequiresPhoneForAccount)
	require.NotNil(t, p.HasslePenaltyPerAccount)
	assert.Equal(t, 0.0, *p.HasslePenaltyPerAccount)
	assert.Equal(t, "New accounts only", p.OverrideNote)

	untouched := o.Apply(models.Plan{Title: "Standard 1GB"})
	assert.False(t, untouched.NewUserOnly)
	assert.Empty(t, untouched.OverrideNote)
}

func TestNormalize(t *testing.T) {
	o, err := ParseOverrides([]byte(overridesYAML))
	require.NoError(t, err)

	raw := []models.Plan{
		{ProviderID: "saily", PlanID: "s1", Title: "Europe 5GB", Coverage: []string{" France", "spain", "FRANCE"}, DataMB: 5120, ValidityDays: 30, RegularPrice: 10, PromoPrice: models.Float(6)},
		{ProviderID: "airalo", PlanID: "a1", Title: "France 1GB", Coverage: []string{"france"}, DataMB: models.Unlimited, ValidityDays: 7, RegularPrice: 4, PromoPrice: models.Float(4)},
		{ProviderID: "airalo", PlanID: "a1", Title: "France 1GB dup", Coverage: []string{"france"}, DataMB: 1024, ValidityDays: 7, RegularPrice: 4},
		{ProviderID: "airalo", PlanID: "a2", Coverage: []string{"france"}, DataMB: 0, ValidityDays: 7, RegularPrice: 4},
		{ProviderID: "airalo", PlanID: "a3", Coverage: []string{"france"}, DataMB: 100, ValidityDays: 0, RegularPrice: 4},
		{ProviderID: "airalo", PlanID: "a4", Coverage: []string{"france"}, DataMB: 100, ValidityDays: 1, RegularPrice: -1},
		{ProviderID: "airalo", PlanID: "a5", Coverage: nil, DataMB: 100, ValidityDays: 1, RegularPrice: 1},
		{ProviderID: "", PlanID: "a6", Coverage: []string{"france"}, DataMB: 100, ValidityDays: 1, RegularPrice: 1},
		{ProviderID: "airalo", PlanID: "a7", Coverage: []string{"france"}, DataMB: 100, ValidityDays: 1, RegularPrice: 1, CapMode: "hourly"},
		{ProviderID: "airalo", PlanID: "a8", Coverage: []string{"france"}, DataMB: -500, ValidityDays: 7, RegularPrice: 1},
		{ProviderID: "airalo", PlanID: "a9", Coverage: []string{"france"}, DataMB: 100, ValidityDays: -3, RegularPrice: 1},
	}
	rawCopy := append([]models.Plan(nil), raw...)

	plans, rep := Normalize(raw, o)
	require.Len(t, plans, 2)
	assert.Equal(t, 2, rep.Accepted)
	assert.Equal(t, 9, rep.RejectedTotal())
	assert.Equal(t, 1, rep.Rejected[ReasonDuplicateID])
	assert.Equal(t, 2, rep.Rejected[ReasonNoData], "zero and negative non-sentinel data")
	assert.Equal(t, 2, rep.Rejected[ReasonNoValidity], "zero and negative non-sentinel validity")
	assert.Equal(t, 1, rep.Rejected[ReasonMissingPrice])
	assert.Equal(t, 1, rep.Rejected[ReasonNoCoverage])
	assert.Equal(t, 1, rep.Rejected[ReasonMissingID])
	assert.Equal(t, 1, rep.Rejected[ReasonUnknownCapMode])

	s1 := plans[0]
	assert.Equal(t, []string{"france", "spain"}, s1.Coverage)
	assert.Equal(t, models.ScopeRegional, s1.Scope)
	assert.Equal(t, models.CapModeTotal, s1.CapMode)
	assert.Equal(t, models.PromoOneTime, s1.PromoRecurrence)
	assert.Equal(t, "saily", s1.ProviderName)

	a1 := plans[1]
	assert.Equal(t, models.Unlimited, a1.DataMB)
	assert.Equal(t, models.ScopeLocal, a1.Scope)
	assert.Nil(t, a1.PromoPrice, "promo not below regular is dropped")
	assert.Equal(t, models.PromoUnlimited, a1.PromoRecurrence)

	assert.Equal(t, rawCopy, raw, "input must not be modified")
	assert.Equal(t, []string{" France", "spain", "FRANCE"}, raw[0].Coverage)
}

func TestExclude(t *testing.T) {
	plans := []models.Plan{
		{ProviderID: "airalo", Title: "France 1GB"},
		{ProviderID: "Holafly", Title: "France Unlimited"},
		{ProviderID: "saily", Title: "France 3GB Subscription"},
	}
	got := Exclude(plans, []string{"holafly"}, []string{"subscription"})
	require.Len(t, got, 1)
	assert.Equal(t, "airalo", got[0].ProviderID)

	assert.Len(t, Exclude(plans, nil, nil), 3)
}

func TestLoadPlansFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"provider_id":"p","plan_id":"x","plan_title":"X","coverage":["fr"],"data_mb":1024,"validity_days":7,"regular_price":5,"promo_price":3}]`), 0o600))

	plans, err := LoadPlansFile(path)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "X", plans[0].Title)
	require.NotNil(t, plans[0].PromoPrice)
	assert.Equal(t, 3.0, *plans[0].PromoPrice)

	_, err = LoadPlansFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
