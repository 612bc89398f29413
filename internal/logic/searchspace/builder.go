// Package searchspace reduces a plan catalog to a bounded, diversified list
// of candidates for combinatorial search.
package searchspace

import (
	"math"
	"sort"

	"github.com/patrickwarner/esimplanner/internal/models"
)

// Config bounds the candidate windows.
type Config struct {
	CheapestPerScope int     // Cheapest price-per-MB plans kept per scope.
	LargePerScope    int     // Cheapest large-capacity plans kept per scope.
	LargeCapacityMB  float64 // Raw capacity at or above which a plan counts as large.
	IncludeAllFree   bool    // Keep every free plan regardless of windows.
	MaxSize          int     // Bound on the paid candidates, 0 for none. Large-window plans always survive it.
}

// DefaultConfig mirrors the service defaults.
func DefaultConfig() Config {
	return Config{
		CheapestPerScope: 20,
		LargePerScope:    5,
		LargeCapacityMB:  10240,
		IncludeAllFree:   true,
		MaxSize:          50,
	}
}

// Builder selects the search space for one requirement.
type Builder struct {
	cfg Config
}

// NewBuilder returns a Builder using cfg.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg}
}

type scored struct {
	plan        models.Plan
	pricePerMB  float64
	price       float64
	catalogRank int
}

// Build returns the candidate list for req. When territories is non-empty,
// only plans covering at least one of them are considered. Malformed plans
// are skipped. The result is deduplicated by provider, title and data size;
// the first occurrence wins.
func (b *Builder) Build(catalog []models.Plan, req models.Requirement, territories ...string) []models.Plan {
	rate := req.DailyRate()

	var local, regional, free []scored
	for i, p := range catalog {
		if !p.Valid() || !coversAny(p, territories) {
			continue
		}
		capMB := p.EffectiveCapacityMB(rate)
		if capMB <= 0 {
			continue
		}
		s := scored{plan: p, price: p.BestPrice(), catalogRank: i}
		s.pricePerMB = s.price / capMB
		if p.IsFree() {
			free = append(free, s)
		}
		if p.Scope == models.ScopeRegional {
			regional = append(regional, s)
		} else {
			local = append(local, s)
		}
	}

	var out []models.Plan
	seen := make(map[models.DedupKey]struct{})
	if b.cfg.IncludeAllFree {
		for _, s := range free {
			if k := s.plan.Key(); !has(seen, k) {
				seen[k] = struct{}{}
				out = append(out, s.plan)
			}
		}
	}

	large := make(map[models.DedupKey]struct{})
	for _, w := range [][]scored{
		largest(regional, b.cfg.LargeCapacityMB, b.cfg.LargePerScope),
		largest(local, b.cfg.LargeCapacityMB, b.cfg.LargePerScope),
	} {
		for _, s := range w {
			if k := s.plan.Key(); !has(seen, k) {
				large[k] = struct{}{}
			}
		}
	}

	var paid []scored
	for _, w := range [][]scored{
		cheapest(regional, b.cfg.CheapestPerScope),
		cheapest(local, b.cfg.CheapestPerScope),
		largest(regional, b.cfg.LargeCapacityMB, b.cfg.LargePerScope),
		largest(local, b.cfg.LargeCapacityMB, b.cfg.LargePerScope),
	} {
		for _, s := range w {
			k := s.plan.Key()
			if has(seen, k) {
				continue
			}
			seen[k] = struct{}{}
			paid = append(paid, s)
		}
	}

	// The bound trims the cheapest windows only, so a plan able to cover a
	// data-heavy leg alone is never cut.
	room := len(paid)
	if b.cfg.MaxSize > 0 {
		room = max(b.cfg.MaxSize-len(large), 0)
	}
	for _, s := range paid {
		if has(large, s.plan.Key()) {
			out = append(out, s.plan)
			continue
		}
		if room > 0 {
			out = append(out, s.plan)
			room--
		}
	}
	return out
}

func has(set map[models.DedupKey]struct{}, k models.DedupKey) bool {
	_, ok := set[k]
	return ok
}

func cheapest(in []scored, n int) []scored {
	w := append([]scored(nil), in...)
	sort.SliceStable(w, func(i, j int) bool {
		if w[i].pricePerMB != w[j].pricePerMB {
			return w[i].pricePerMB < w[j].pricePerMB
		}
		return w[i].catalogRank < w[j].catalogRank
	})
	return head(w, n)
}

func largest(in []scored, thresholdMB float64, n int) []scored {
	var w []scored
	for _, s := range in {
		if raw := s.plan.RawCapacityMB(); raw >= thresholdMB || math.IsInf(raw, 1) {
			w = append(w, s)
		}
	}
	sort.SliceStable(w, func(i, j int) bool {
		if w[i].price != w[j].price {
			return w[i].price < w[j].price
		}
		if w[i].pricePerMB != w[j].pricePerMB {
			return w[i].pricePerMB < w[j].pricePerMB
		}
		return w[i].catalogRank < w[j].catalogRank
	})
	return head(w, n)
}

func head(w []scored, n int) []scored {
	if n >= 0 && len(w) > n {
		return w[:n]
	}
	return w
}

func coversAny(p models.Plan, territories []string) bool {
	if len(territories) == 0 {
		return true
	}
	for _, t := range territories {
		if p.Covers(t) {
			return true
		}
	}
	return false
}
