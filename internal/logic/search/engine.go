// Package search enumerates plan multisets, keeps the feasible ones that
// respect the account limits and ranks them by cost.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/patrickwarner/esimplanner/internal/logic/pricing"
	"github.com/patrickwarner/esimplanner/internal/logic/timeline"
	"github.com/patrickwarner/esimplanner/internal/models"
)

// ErrSearchAborted wraps the context error when a search is cancelled.
var ErrSearchAborted = errors.New("search aborted")

// ctxCheckEvery is how many candidates are enumerated between context checks.
const ctxCheckEvery = 1024

// Limits bounds the enumeration and the solutions it may return.
type Limits struct {
	MaxComboSize    int   // Largest multiset size enumerated.
	MaxActivations  int   // Maximum eSIM activations per solution, 0 for no cap.
	MaxTopUps       int   // Maximum top-ups per solution, 0 for no cap.
	TopN            int   // Number of solutions kept.
	MaxCombinations int64 // Enumeration budget, 0 for none.
	Workers         int   // Parallel evaluators, values below 2 run sequentially.
}

// DefaultLimits mirrors the service defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxComboSize:   4,
		MaxActivations: 3,
		MaxTopUps:      15,
		TopN:           10,
		Workers:        1,
	}
}

// Stats summarizes one search.
type Stats struct {
	SearchSpace      int           `json:"search_space"`
	Combinations     int64         `json:"combinations"` // Size of the full multiset space.
	Enumerated       int64         `json:"enumerated"`
	Feasible         int64         `json:"feasible"`
	RejectedByLimits int64         `json:"rejected_by_limits"`
	Truncated        bool          `json:"truncated"` // Enumeration budget was hit.
	Duration         time.Duration `json:"duration_ns"`
}

// Result holds the ranked solutions, best first.
type Result struct {
	Solutions []models.Solution `json:"solutions"`
	Stats     Stats             `json:"stats"`
}

// Found reports whether any feasible solution within limits was kept.
func (r *Result) Found() bool {
	return r != nil && len(r.Solutions) > 0
}

// Engine runs searches. It is safe for concurrent use; every call owns its
// own solver state.
type Engine struct {
	accountant *pricing.Accountant
	limits     Limits
	logger     *zap.Logger
}

// NewEngine returns an Engine pricing candidates with accountant.
func NewEngine(accountant *pricing.Accountant, limits Limits) *Engine {
	return &Engine{accountant: accountant, limits: limits, logger: zap.NewNop()}
}

// SetLogger sets the logger used for search summaries.
func (e *Engine) SetLogger(l *zap.Logger) {
	if l != nil {
		e.logger = l
	}
}

// Limits returns the engine's configured limits.
func (e *Engine) Limits() Limits {
	return e.limits
}

// WithLimits returns a copy of the engine using limits.
func (e *Engine) WithLimits(limits Limits) *Engine {
	cp := *e
	cp.limits = limits
	return &cp
}

type job struct {
	seq int64
	idx []int
}

// Search enumerates multisets of space up to MaxComboSize and returns the
// TopN cheapest feasible ones by ranking cost. An empty space yields an empty
// result. Structural itinerary errors fail before any enumeration.
func (e *Engine) Search(ctx context.Context, space []models.Plan, legs []models.Leg) (*Result, error) {
	if err := models.Itinerary(legs).Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	res := &Result{Stats: Stats{
		SearchSpace:  len(space),
		Combinations: multisetCount(len(space), e.limits.MaxComboSize),
	}}
	if len(space) == 0 || e.limits.MaxComboSize <= 0 {
		res.Stats.Duration = time.Since(start)
		return res, nil
	}

	ev := newEvaluator(e.accountant, e.limits, space, legs)
	kept := newTopN(e.limits.TopN)

	var err error
	if e.limits.Workers > 1 {
		err = e.searchParallel(ctx, ev, kept, &res.Stats)
	} else {
		err = e.searchSequential(ctx, ev, kept, &res.Stats)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchAborted, err)
	}

	res.Solutions = kept.sorted()
	res.Stats.Duration = time.Since(start)
	e.logger.Debug("search complete",
		zap.Int("search_space", res.Stats.SearchSpace),
		zap.Int64("enumerated", res.Stats.Enumerated),
		zap.Int64("feasible", res.Stats.Feasible),
		zap.Int64("rejected_by_limits", res.Stats.RejectedByLimits),
		zap.Bool("truncated", res.Stats.Truncated),
		zap.Int("kept", len(res.Solutions)),
		zap.Duration("duration", res.Stats.Duration))
	return res, nil
}

// enumerate feeds candidates to fn in sequence order, honoring the
// combination budget and the context.
func (e *Engine) enumerate(ctx context.Context, n int, stats *Stats, fn func(seq int64, idx []int) bool) error {
	var err error
	var seq int64
	multisets(n, e.limits.MaxComboSize, func(idx []int) bool {
		if e.limits.MaxCombinations > 0 && seq >= e.limits.MaxCombinations {
			stats.Truncated = true
			return false
		}
		if seq%ctxCheckEvery == 0 {
			if err = ctx.Err(); err != nil {
				return false
			}
		}
		seq++
		stats.Enumerated++
		return fn(seq, idx)
	})
	return err
}

func (e *Engine) searchSequential(ctx context.Context, ev *evaluator, kept *topN, stats *Stats) error {
	w := ev.worker()
	return e.enumerate(ctx, len(ev.space), stats, func(seq int64, idx []int) bool {
		out := w.evaluate(seq, idx, kept.admits)
		stats.Feasible += out.feasible
		stats.RejectedByLimits += out.rejected
		if out.keep != nil {
			kept.offer(*out.keep)
		}
		return true
	})
}

func (e *Engine) searchParallel(ctx context.Context, ev *evaluator, kept *topN, stats *Stats) error {
	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan job, e.limits.Workers*4)
	results := make(chan outcome, e.limits.Workers*4)

	g.Go(func() error {
		defer close(jobs)
		return e.enumerate(gctx, len(ev.space), stats, func(seq int64, idx []int) bool {
			select {
			case jobs <- job{seq: seq, idx: append([]int(nil), idx...)}:
				return true
			case <-gctx.Done():
				return false
			}
		})
	})

	workers, wctx := errgroup.WithContext(gctx)
	for i := 0; i < e.limits.Workers; i++ {
		w := ev.worker()
		workers.Go(func() error {
			for j := range jobs {
				select {
				case results <- w.evaluate(j.seq, j.idx, nil):
				case <-wctx.Done():
					return wctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		err := workers.Wait()
		close(results)
		return err
	})

	// Single writer for the heap.
	for out := range results {
		stats.Feasible += out.feasible
		stats.RejectedByLimits += out.rejected
		if out.keep != nil {
			kept.offer(*out.keep)
		}
	}
	return g.Wait()
}

// outcome is the evaluation of one candidate.
type outcome struct {
	feasible int64
	rejected int64
	keep     *ranked
}

// evaluator holds the read-only data shared by all workers of one search.
type evaluator struct {
	accountant *pricing.Accountant
	limits     Limits
	space      []models.Plan
	legs       []models.Leg
	capacity   []float64 // Effective capacity per space entry, 0 when it covers no leg.
	needMB     float64
}

func newEvaluator(acct *pricing.Accountant, limits Limits, space []models.Plan, legs []models.Leg) *evaluator {
	req := models.Itinerary(legs).Requirement()
	ev := &evaluator{
		accountant: acct,
		limits:     limits,
		space:      space,
		legs:       legs,
		capacity:   make([]float64, len(space)),
		needMB:     req.TotalDataMB,
	}
	rate := req.DailyRate()
	for i, p := range space {
		for _, l := range legs {
			if p.Covers(l.Territory) {
				ev.capacity[i] = p.EffectiveCapacityMB(rate)
				break
			}
		}
	}
	return ev
}

// worker owns the mutable scratch of one goroutine.
type worker struct {
	*evaluator
	solver *timeline.Solver
	plans  []models.Plan
	lines  []pricing.Line
}

func (ev *evaluator) worker() *worker {
	return &worker{evaluator: ev, solver: timeline.NewSolver()}
}

// evaluate runs one candidate. admits, when set, lets the caller skip
// building solutions that could not enter the kept set.
func (w *worker) evaluate(seq int64, idx []int, admits func(cost float64, seq int64) bool) outcome {
	var supply float64
	for _, i := range idx {
		supply += w.capacity[i]
	}
	if supply < w.needMB-timeline.Epsilon {
		return outcome{}
	}

	w.plans = w.plans[:0]
	for _, i := range idx {
		w.plans = append(w.plans, w.space[i])
	}
	alloc, ok := w.solver.Allocate(w.plans, w.legs)
	if !ok {
		return outcome{}
	}

	w.lines = w.lines[:0]
	for k := 0; k < len(idx); {
		j := k
		for j < len(idx) && idx[j] == idx[k] {
			j++
		}
		w.lines = append(w.lines, pricing.Line{Plan: w.space[idx[k]], Quantity: j - k})
		k = j
	}
	quote := w.accountant.Price(w.lines)

	if w.limits.MaxActivations > 0 && quote.TotalActivations > w.limits.MaxActivations {
		return outcome{feasible: 1, rejected: 1}
	}
	if w.limits.MaxTopUps > 0 && quote.TotalTopUps > w.limits.MaxTopUps {
		return outcome{feasible: 1, rejected: 1}
	}
	if admits != nil && !admits(quote.RankingCost, seq) {
		return outcome{feasible: 1}
	}
	sol := assemble(w.lines, quote, alloc)
	return outcome{feasible: 1, keep: &ranked{cost: quote.RankingCost, seq: seq, solution: sol}}
}

// assemble turns a priced allocation into a Solution. Units of a purchase
// occupy consecutive solver slots.
func assemble(lines []pricing.Line, quote pricing.Quote, alloc *timeline.Allocation) models.Solution {
	sol := models.Solution{
		Purchases:        make([]models.Purchase, len(lines)),
		CashCost:         quote.CashCost,
		RankingCost:      quote.RankingCost,
		TotalAccounts:    quote.TotalAccounts,
		TotalActivations: quote.TotalActivations,
		TotalTopUps:      quote.TotalTopUps,
		Legs:             make([]models.LegFulfilment, len(alloc.Legs)),
	}

	type unitRef struct{ purchase, unit int }
	refs := make([]unitRef, 0, len(alloc.Units))
	providers := make(map[string]struct{})
	unlimited := false

	for i, l := range lines {
		lq := quote.Lines[i]
		pu := models.Purchase{
			Plan:           l.Plan,
			Quantity:       l.Quantity,
			ActivationDays: make([]int, l.Quantity),
			UnitPrice:      lq.UnitPrice,
			TotalPrice:     lq.TotalPrice,
			UsedPromo:      lq.UsedPromo,
			PromoForfeited: lq.PromoForfeited,
			Accounts:       lq.Accounts,
			Activations:    lq.Activations,
			TopUps:         lq.TopUps,
			Warnings:       pricing.Warnings(l.Plan, l.Quantity, lq),
		}
		for u := 0; u < l.Quantity; u++ {
			usage := alloc.Units[len(refs)]
			pu.ActivationDays[u] = usage.ActivationDay
			pu.AllocatedMB += usage.UsedMB
			refs = append(refs, unitRef{purchase: i, unit: u})
		}
		sol.Purchases[i] = pu

		if l.Plan.IsFree() {
			sol.FreeCount++
		}
		providers[l.Plan.ProviderID] = struct{}{}
		if raw := l.Plan.RawCapacityMB(); math.IsInf(raw, 1) {
			unlimited = true
		} else {
			sol.PurchasedDataMB += raw * float64(l.Quantity)
		}
	}
	sol.ProviderCount = len(providers)
	if unlimited {
		sol.PurchasedDataMB = models.Unlimited
	}

	for i, lt := range alloc.Legs {
		lf := models.LegFulfilment{Leg: lt.Leg, SuppliedMB: lt.SuppliedMB}
		for _, d := range lt.Draws {
			ref := refs[d.Slot]
			lf.Contributions = append(lf.Contributions, models.Contribution{
				Purchase: ref.purchase,
				Unit:     ref.unit,
				FromDay:  d.FromDay,
				ToDay:    d.ToDay,
				DataMB:   d.DataMB,
			})
		}
		sol.Legs[i] = lf
	}
	return sol
}
