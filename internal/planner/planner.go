// Package planner runs one optimization end to end: it validates the
// request, narrows the catalog into a search space, ranks plan combinations
// and reports the run to metrics, tracing, the result cache and analytics.
package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/esimplanner/internal/analytics"
	"github.com/patrickwarner/esimplanner/internal/catalog"
	"github.com/patrickwarner/esimplanner/internal/config"
	"github.com/patrickwarner/esimplanner/internal/logic"
	"github.com/patrickwarner/esimplanner/internal/logic/pricing"
	"github.com/patrickwarner/esimplanner/internal/logic/search"
	"github.com/patrickwarner/esimplanner/internal/logic/searchspace"
	"github.com/patrickwarner/esimplanner/internal/models"
	"github.com/patrickwarner/esimplanner/internal/observability"
)

// Run statuses reported in responses, metrics and analytics.
const (
	StatusOK                 = "ok"
	StatusNoFeasibleSolution = "no_feasible_solution"
	StatusInvalid            = "invalid"
	StatusError              = "error"
)

// ErrCatalogEmpty is returned when no plans are loaded.
var ErrCatalogEmpty = errors.New("catalog is empty")

// Options configures a Service.
type Options struct {
	Limits          search.Limits
	Space           searchspace.Config
	Pricing         pricing.Config
	DisplayCurrency string
	DisplayRate     float64
	SearchTimeout   time.Duration
	CacheTTL        time.Duration
}

// DefaultOptions returns the stock limits with no display conversion.
func DefaultOptions() Options {
	return Options{
		Limits:          search.DefaultLimits(),
		Space:           searchspace.DefaultConfig(),
		Pricing:         pricing.Config{HasslePenalty: pricing.DefaultHasslePenalty},
		DisplayCurrency: "USD",
		DisplayRate:     1.0,
	}
}

// OptionsFromConfig derives planner options from the service configuration.
// A default hassle penalty set in the overrides file takes precedence.
func OptionsFromConfig(cfg config.Config, o *catalog.Overrides) Options {
	penalty := cfg.HasslePenalty
	if o != nil {
		penalty = o.HasslePenalty(penalty)
	}
	opts := Options{
		Limits: search.Limits{
			MaxComboSize:    cfg.MaxComboSize,
			MaxActivations:  cfg.MaxActivations,
			MaxTopUps:       cfg.MaxTopUps,
			TopN:            cfg.TopNSolutions,
			MaxCombinations: cfg.MaxCombinations,
			Workers:         cfg.SearchWorkers,
		},
		Space: searchspace.Config{
			CheapestPerScope: cfg.SearchSpacePerScope,
			LargePerScope:    cfg.SearchSpaceLarge,
			LargeCapacityMB:  cfg.LargeCapacityMB,
			IncludeAllFree:   cfg.IncludeAllFree,
			MaxSize:          cfg.SearchSpaceMax,
		},
		Pricing:         pricing.Config{HasslePenalty: penalty},
		DisplayCurrency: cfg.DisplayCurrency,
		DisplayRate:     cfg.DisplayRate,
		SearchTimeout:   cfg.SearchTimeout,
	}
	if cfg.ResultCacheEnabled {
		opts.CacheTTL = cfg.ResultCacheTTL
	}
	return opts
}

// DisplaySolution is a solution with its cash cost converted to the display
// currency.
type DisplaySolution struct {
	models.Solution
	DisplayCost float64 `json:"display_cost"`
}

// Response is the outcome of one run.
type Response struct {
	RunID          string             `json:"run_id"`
	Status         string             `json:"status"`
	Solutions      []DisplaySolution  `json:"solutions"`
	Stats          search.Stats       `json:"stats"`
	Currency       string             `json:"currency"`
	DisplayRate    float64            `json:"display_rate"`
	CatalogVersion uint64             `json:"catalog_version"`
	Cached         bool               `json:"cached"`
	Trace          *logic.SearchTrace `json:"trace,omitempty"`
}

// Service orchestrates optimizer runs against a catalog store. It is safe
// for concurrent use.
type Service struct {
	store     models.CatalogStore
	opts      Options
	engine    *search.Engine
	builder   *searchspace.Builder
	cache     ResultCache
	analytics analytics.RunRecorder
	metrics   observability.MetricsRegistry
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewService builds a Service. metrics may be nil.
func NewService(store models.CatalogStore, opts Options, metrics observability.MetricsRegistry) *Service {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if opts.DisplayRate <= 0 {
		opts.DisplayRate = 1.0
	}
	return &Service{
		store:   store,
		opts:    opts,
		engine:  search.NewEngine(pricing.NewAccountant(opts.Pricing), opts.Limits),
		builder: searchspace.NewBuilder(opts.Space),
		metrics: metrics,
		logger:  zap.NewNop(),
		tracer:  observability.Tracer("planner"),
	}
}

// SetLogger sets the logger for run summaries.
func (s *Service) SetLogger(l *zap.Logger) {
	if l == nil {
		return
	}
	s.logger = l
	s.engine.SetLogger(l)
}

// SetResultCache enables the shared result cache.
func (s *Service) SetResultCache(c ResultCache) {
	s.cache = c
}

// SetAnalytics enables per-run analytics rows.
func (s *Service) SetAnalytics(r analytics.RunRecorder) {
	s.analytics = r
}

// Options returns the service options.
func (s *Service) Options() Options {
	return s.opts
}

// Store returns the catalog store the service reads.
func (s *Service) Store() models.CatalogStore {
	return s.store
}

// Optimize runs the optimizer for req. A run that finds nothing is not an
// error: it returns StatusNoFeasibleSolution. Errors wrap
// models.ErrInvalidItinerary, ErrInvalidRequest, ErrCatalogEmpty or
// search.ErrSearchAborted.
func (s *Service) Optimize(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	runID := uuid.NewString()

	ctx, span := s.tracer.Start(ctx, "planner.Optimize", trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	resp, err := s.optimize(ctx, runID, req, span)
	if err != nil {
		status := StatusError
		if errors.Is(err, models.ErrInvalidItinerary) || errors.Is(err, ErrInvalidRequest) {
			status = StatusInvalid
		}
		s.metrics.IncrementOptimizerRuns(status)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("optimizer run failed", zap.String("run_id", runID), zap.String("status", status), zap.Error(err))
		return nil, err
	}

	s.metrics.IncrementOptimizerRuns(resp.Status)
	span.SetAttributes(
		attribute.String("status", resp.Status),
		attribute.Bool("cached", resp.Cached),
		attribute.Int("solutions", len(resp.Solutions)),
	)
	if observability.ShouldSample(observability.GetSamplingRate()) {
		fields := []zap.Field{
			zap.String("run_id", runID),
			zap.String("status", resp.Status),
			zap.Bool("cached", resp.Cached),
			zap.Int("solutions", len(resp.Solutions)),
			zap.Int64("enumerated", resp.Stats.Enumerated),
			zap.Duration("elapsed", time.Since(start)),
		}
		if len(resp.Solutions) > 0 {
			fields = append(fields, zap.Float64("best_cash_cost", resp.Solutions[0].CashCost))
		}
		s.logger.Info("optimizer run", fields...)
	}
	return resp, nil
}

func (s *Service) optimize(ctx context.Context, runID string, req Request, span trace.Span) (*Response, error) {
	legs, err := req.Itinerary()
	if err != nil {
		return nil, err
	}
	limits, err := req.Limits.apply(s.opts.Limits)
	if err != nil {
		return nil, err
	}
	plans := s.store.GetAllPlans()
	if len(plans) == 0 {
		return nil, ErrCatalogEmpty
	}
	version := s.store.Version()
	span.SetAttributes(
		attribute.Int("legs", len(legs)),
		attribute.Int("total_days", legs.TotalDays()),
		attribute.Float64("total_data_mb", legs.TotalDataMB()),
	)

	key := s.cacheKey(ctx, req, legs, limits, version)
	if cached := s.lookup(ctx, key); cached != nil {
		cached.RunID = runID
		cached.Cached = true
		s.record(ctx, cached, legs)
		return cached, nil
	}

	var tr *logic.SearchTrace
	if req.Trace {
		tr = &logic.SearchTrace{}
	}
	tr.AddStep("catalog", plans)
	candidates := catalog.Exclude(plans, req.ExcludeProviders, req.ExcludeTitleKeywords)
	if len(candidates) != len(plans) {
		tr.AddStep("excluded", candidates)
	}
	territories := legs.Territories()
	space := s.builder.Build(candidates, legs.Requirement(), territories...)
	tr.AddStepWithDetails("search_space", space, map[string]string{
		"territories": fmt.Sprint(territories),
		"daily_rate":  fmt.Sprintf("%.2f", legs.Requirement().DailyRate()),
		"max_combo":   fmt.Sprint(limits.MaxComboSize),
		"max_space":   fmt.Sprint(s.opts.Space.MaxSize),
	})

	searchCtx := ctx
	if s.opts.SearchTimeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, s.opts.SearchTimeout)
		defer cancel()
	}
	res, err := s.engine.WithLimits(limits).Search(searchCtx, space, legs)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordSearch(observability.SearchMetrics{
		SearchSpace:      res.Stats.SearchSpace,
		Enumerated:       res.Stats.Enumerated,
		Feasible:         res.Stats.Feasible,
		RejectedByLimits: res.Stats.RejectedByLimits,
		Truncated:        res.Stats.Truncated,
		Duration:         res.Stats.Duration,
	})
	span.SetAttributes(
		attribute.Int("search_space", res.Stats.SearchSpace),
		attribute.Int64("enumerated", res.Stats.Enumerated),
		attribute.Int64("feasible", res.Stats.Feasible),
		attribute.Int64("rejected_by_limits", res.Stats.RejectedByLimits),
		attribute.Bool("truncated", res.Stats.Truncated),
	)

	resp := &Response{
		RunID:          runID,
		Status:         StatusOK,
		Solutions:      make([]DisplaySolution, 0, len(res.Solutions)),
		Stats:          res.Stats,
		Currency:       s.opts.DisplayCurrency,
		DisplayRate:    s.opts.DisplayRate,
		CatalogVersion: version,
		Trace:          tr,
	}
	if !res.Found() {
		resp.Status = StatusNoFeasibleSolution
	}
	for _, sol := range res.Solutions {
		resp.Solutions = append(resp.Solutions, DisplaySolution{
			Solution:    sol,
			DisplayCost: sol.CashCost * s.opts.DisplayRate,
		})
	}

	s.save(ctx, key, resp)
	s.record(ctx, resp, legs)
	return resp, nil
}

// record writes the analytics row for a run. Failures never fail the run.
func (s *Service) record(ctx context.Context, resp *Response, legs models.Itinerary) {
	if s.analytics == nil {
		return
	}
	run := analytics.RunRecord{
		Timestamp:        time.Now(),
		RunID:            resp.RunID,
		Status:           resp.Status,
		Territories:      legs.Territories(),
		Legs:             len(legs),
		TotalDays:        legs.TotalDays(),
		TotalDataMB:      legs.TotalDataMB(),
		SearchSpace:      resp.Stats.SearchSpace,
		Combinations:     resp.Stats.Combinations,
		Enumerated:       resp.Stats.Enumerated,
		Feasible:         resp.Stats.Feasible,
		RejectedByLimits: resp.Stats.RejectedByLimits,
		Truncated:        resp.Stats.Truncated,
		Solutions:        len(resp.Solutions),
		DurationMs:       float64(resp.Stats.Duration) / float64(time.Millisecond),
		Cached:           resp.Cached,
	}
	if len(resp.Solutions) > 0 {
		best := resp.Solutions[0]
		run.BestCashCost = best.CashCost
		run.BestRankingCost = best.RankingCost
		for _, p := range best.Purchases {
			run.BestPlanIDs = append(run.BestPlanIDs, p.Plan.PlanID)
		}
	}
	if err := s.analytics.RecordRun(ctx, run); err != nil && !errors.Is(err, analytics.ErrUnavailable) {
		s.logger.Error("record optimizer run", zap.String("run_id", resp.RunID), zap.Error(err))
	}
}

// ListPlans returns catalog plans covering any of territories, or the whole
// catalog when none are given.
func (s *Service) ListPlans(territories ...string) []models.Plan {
	if len(territories) == 0 {
		return s.store.GetAllPlans()
	}
	return s.store.PlansForTerritories(territories)
}
