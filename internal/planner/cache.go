package planner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/esimplanner/internal/catalog"
	"github.com/patrickwarner/esimplanner/internal/db"
	"github.com/patrickwarner/esimplanner/internal/logic/search"
	"github.com/patrickwarner/esimplanner/internal/models"
)

// ResultCache stores serialized responses shared between instances.
// *db.RedisStore implements it.
type ResultCache interface {
	GetCachedResult(ctx context.Context, key string) ([]byte, bool, error)
	CacheResult(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	CatalogGeneration(ctx context.Context) (int64, error)
	BumpCatalogGeneration(ctx context.Context) (int64, error)
}

var _ ResultCache = (*db.RedisStore)(nil)

// fingerprint is everything that determines a response.
type fingerprint struct {
	Legs           models.Itinerary `json:"legs"`
	Limits         search.Limits    `json:"limits"`
	Providers      []string         `json:"providers,omitempty"`
	Keywords       []string         `json:"keywords,omitempty"`
	Trace          bool             `json:"trace"`
	CatalogVersion uint64           `json:"catalog_version"`
}

// cacheKey returns "" when caching is off or the generation is unreadable.
func (s *Service) cacheKey(ctx context.Context, req Request, legs models.Itinerary, limits search.Limits, version uint64) string {
	if s.cache == nil || s.opts.CacheTTL <= 0 {
		return ""
	}
	gen, err := s.cache.CatalogGeneration(ctx)
	if err != nil {
		s.logger.Warn("result cache unavailable", zap.Error(err))
		return ""
	}
	fp := fingerprint{
		Legs:           legs,
		Limits:         limits,
		Providers:      normalizedList(req.ExcludeProviders),
		Keywords:       normalizedList(req.ExcludeTitleKeywords),
		Trace:          req.Trace,
		CatalogVersion: version,
	}
	sort.Strings(fp.Providers)
	sort.Strings(fp.Keywords)
	raw, err := json.Marshal(fp)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return db.ResultKey(gen, hex.EncodeToString(sum[:16]))
}

func (s *Service) lookup(ctx context.Context, key string) *Response {
	if key == "" {
		return nil
	}
	payload, ok, err := s.cache.GetCachedResult(ctx, key)
	if err != nil {
		s.logger.Warn("result cache lookup failed", zap.Error(err))
		return nil
	}
	if !ok {
		s.metrics.IncrementResultCache("miss")
		return nil
	}
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		s.logger.Warn("discarding unreadable cached result", zap.String("key", key), zap.Error(err))
		s.metrics.IncrementResultCache("miss")
		return nil
	}
	s.metrics.IncrementResultCache("hit")
	return &resp
}

func (s *Service) save(ctx context.Context, key string, resp *Response) {
	if key == "" {
		return
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		s.logger.Warn("encode result for cache", zap.Error(err))
		return
	}
	if err := s.cache.CacheResult(ctx, key, payload, s.opts.CacheTTL); err != nil {
		s.logger.Warn("result cache write failed", zap.Error(err))
	}
}

// ReloadCatalog loads src into the service's store, publishes catalog
// metrics and advances the shared cache generation.
func (s *Service) ReloadCatalog(ctx context.Context, src db.PlanSource, o *catalog.Overrides) (catalog.Report, error) {
	report, err := db.Reload(ctx, src, o, s.store)
	if err != nil {
		return report, err
	}
	s.metrics.SetCatalogPlans(report.Accepted)
	for reason, n := range report.Rejected {
		s.metrics.IncrementCatalogRejected(reason, n)
	}
	if s.cache != nil {
		if _, err := s.cache.BumpCatalogGeneration(ctx); err != nil {
			s.logger.Warn("bump catalog generation", zap.Error(err))
		}
	}
	s.logger.Info("catalog reloaded",
		zap.Int("accepted", report.Accepted),
		zap.Int("rejected", report.RejectedTotal()),
		zap.Uint64("version", s.store.Version()))
	return report, nil
}
