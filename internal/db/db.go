package db

import (
	"context"
	"fmt"

	"github.com/patrickwarner/esimplanner/internal/catalog"
	"github.com/patrickwarner/esimplanner/internal/models"
)

// PlanSource is where raw catalog records and provider promo
// classifications are read from.
type PlanSource interface {
	LoadPlans(ctx context.Context) ([]models.Plan, error)
	LoadPromoClassifications(ctx context.Context) (map[string]catalog.ProviderPromo, error)
}

var (
	_ PlanSource = (*Postgres)(nil)
	_ PlanSource = (*FileSource)(nil)
)

// FileSource reads the catalog from a JSON plans file and an optional scraped
// promo classification cache.
type FileSource struct {
	PlansFile      string
	PromoCacheFile string
}

func (f *FileSource) LoadPlans(ctx context.Context) ([]models.Plan, error) {
	return catalog.LoadPlansFile(f.PlansFile)
}

func (f *FileSource) LoadPromoClassifications(ctx context.Context) (map[string]catalog.ProviderPromo, error) {
	return catalog.LoadPromoCache(f.PromoCacheFile)
}

// StaticSource serves a fixed set of raw plans. It backs tests and tools
// that already hold the records in memory.
type StaticSource struct {
	Plans  []models.Plan
	Promos map[string]catalog.ProviderPromo
}

func (s *StaticSource) LoadPlans(ctx context.Context) ([]models.Plan, error) {
	return append([]models.Plan(nil), s.Plans...), nil
}

func (s *StaticSource) LoadPromoClassifications(ctx context.Context) (map[string]catalog.ProviderPromo, error) {
	return s.Promos, nil
}

// LoadCatalog reads raw records from src, merges the source's promo
// classifications under the manual overrides and normalizes the result.
// o is not modified.
func LoadCatalog(ctx context.Context, src PlanSource, o *catalog.Overrides) ([]models.Plan, catalog.Report, error) {
	if o == nil {
		o = catalog.DefaultOverrides()
	}
	raw, err := src.LoadPlans(ctx)
	if err != nil {
		return nil, catalog.Report{}, fmt.Errorf("load plans: %w", err)
	}
	promos, err := src.LoadPromoClassifications(ctx)
	if err != nil {
		return nil, catalog.Report{}, fmt.Errorf("load promo classifications: %w", err)
	}
	merged := o.Clone()
	merged.MergePromoClassifications(promos)
	plans, report := catalog.Normalize(raw, merged)
	return plans, report, nil
}

// Reload loads the catalog from src into store and returns the
// normalization report. The store is left untouched on error.
func Reload(ctx context.Context, src PlanSource, o *catalog.Overrides, store models.CatalogStore) (catalog.Report, error) {
	plans, report, err := LoadCatalog(ctx, src, o)
	if err != nil {
		return report, err
	}
	if err := store.ReloadAll(plans); err != nil {
		return report, fmt.Errorf("reload catalog store: %w", err)
	}
	return report, nil
}
