package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/esimplanner/internal/logic/pricing"
	"github.com/patrickwarner/esimplanner/internal/models"
)

func newTestEngine(limits Limits) *Engine {
	return NewEngine(pricing.NewAccountant(pricing.Config{HasslePenalty: 0.5}), limits)
}

func TestSearch_SinglePaidPlan(t *testing.T) {
	legs := models.SingleLeg("fr", 6, 600)
	space := []models.Plan{models.TestPlan("p5", "paid", "fr", 1024, 7, 5)}

	res, err := newTestEngine(DefaultLimits()).Search(context.Background(), space, legs)
	require.NoError(t, err)
	require.True(t, res.Found())

	best := res.Solutions[0]
	require.Len(t, best.Purchases, 1)
	assert.Equal(t, 1, best.Purchases[0].Quantity)
	assert.InDelta(t, 5.0, best.CashCost, 1e-9)
	assert.InDelta(t, 5.0, best.RankingCost, 1e-9)
	assert.Equal(t, []int{0}, best.Purchases[0].ActivationDays)
	assert.InDelta(t, 600, best.Purchases[0].AllocatedMB, 1e-9)
	require.Len(t, best.Legs, 1)
	assert.InDelta(t, 600, best.Legs[0].SuppliedMB, 1e-9)
}

func TestSearch_FreePlanTwiceBeatsPaid(t *testing.T) {
	legs := models.SingleLeg("fr", 6, 600)
	free := models.TestPlan("free", "freeprov", "fr", 500, 7, 0)
	paid := models.TestPlan("p5", "paid", "fr", 1024, 7, 5)

	res, err := newTestEngine(DefaultLimits()).Search(context.Background(), []models.Plan{free, paid}, legs)
	require.NoError(t, err)
	require.True(t, res.Found())

	best := res.Solutions[0]
	require.Len(t, best.Purchases, 1)
	assert.Equal(t, "free", best.Purchases[0].Plan.PlanID)
	assert.Equal(t, 2, best.Purchases[0].Quantity)
	assert.Equal(t, 0.0, best.CashCost)
	assert.InDelta(t, 0.5, best.RankingCost, 1e-9)
	assert.Equal(t, 1, best.FreeCount)
	assert.Contains(t, best.Purchases[0].Warnings, "No top-up: new eSIM needed each time")

	// With a penalty larger than the paid plan the single paid purchase wins.
	costly := NewEngine(pricing.NewAccountant(pricing.Config{HasslePenalty: 6}), DefaultLimits())
	res, err = costly.Search(context.Background(), []models.Plan{free, paid}, legs)
	require.NoError(t, err)
	assert.Equal(t, "p5", res.Solutions[0].Purchases[0].Plan.PlanID)
	assert.InDelta(t, 5.0, res.Solutions[0].CashCost, 1e-9)

	for i := 1; i < len(res.Solutions); i++ {
		assert.LessOrEqual(t, res.Solutions[i-1].RankingCost, res.Solutions[i].RankingCost)
	}
}

func TestSearch_OneTimePromoAcrossTwoLegs(t *testing.T) {
	legs := models.Sequential(
		models.Leg{Territory: "a", EndDay: 3, DataRequiredMB: 1000},
		models.Leg{Territory: "b", EndDay: 3, DataRequiredMB: 1000},
	)
	plan := models.TestRegionalPlan("promo", "prov", []string{"a", "b"}, 1024, 7, 10)
	plan.PromoPrice = models.Float(5)
	plan.PromoRecurrence = models.PromoOneTime

	res, err := newTestEngine(DefaultLimits()).Search(context.Background(), []models.Plan{plan}, legs)
	require.NoError(t, err)
	require.True(t, res.Found())

	best := res.Solutions[0]
	require.Len(t, best.Purchases, 1)
	assert.Equal(t, 2, best.Purchases[0].Quantity)
	assert.InDelta(t, 15.0, best.CashCost, 1e-9)
	assert.True(t, best.Purchases[0].UsedPromo)
	assert.Equal(t, 5.0, best.Purchases[0].UnitPrice)
}

func TestSearch_RegionalPerDayPlanCoversAllLegs(t *testing.T) {
	legs := models.Sequential(
		models.Leg{Territory: "a", EndDay: 2, DataRequiredMB: 900},
		models.Leg{Territory: "b", EndDay: 2, DataRequiredMB: 900},
		models.Leg{Territory: "c", EndDay: 2, DataRequiredMB: 900},
	)
	plan := models.TestRegionalPlan("eu", "prov", []string{"a", "b", "c"}, 3000, 6, 10)
	plan.CapMode = models.CapModePerDay

	res, err := newTestEngine(DefaultLimits()).Search(context.Background(), []models.Plan{plan}, legs)
	require.NoError(t, err)
	require.True(t, res.Found())

	best := res.Solutions[0]
	require.Len(t, best.Purchases, 1)
	assert.Equal(t, 1, best.Purchases[0].Quantity)
	assert.InDelta(t, 10.0, best.CashCost, 1e-9)
	require.Len(t, best.Legs, 3)
	for _, lf := range best.Legs {
		require.Len(t, lf.Contributions, 1)
		assert.Equal(t, 0, lf.Contributions[0].Purchase)
		assert.InDelta(t, 900, lf.Contributions[0].DataMB, 1e-6)
	}
}

func fourCountryTrip() ([]models.Leg, []models.Plan) {
	legs := models.Sequential(
		models.Leg{Territory: "a", EndDay: 1, DataRequiredMB: 100},
		models.Leg{Territory: "b", EndDay: 1, DataRequiredMB: 100},
		models.Leg{Territory: "c", EndDay: 1, DataRequiredMB: 100},
		models.Leg{Territory: "d", EndDay: 1, DataRequiredMB: 100},
	)
	var plans []models.Plan
	for _, t := range []string{"a", "b", "c", "d"} {
		plans = append(plans, models.TestPlan("plan-"+t, "prov-"+t, t, 1024, 7, 1))
	}
	return legs, plans
}

func TestSearch_ActivationLimitRejectsFeasibleCandidate(t *testing.T) {
	legs, plans := fourCountryTrip()

	limits := DefaultLimits()
	limits.MaxActivations = 3
	res, err := newTestEngine(limits).Search(context.Background(), plans, legs)
	require.NoError(t, err)
	assert.False(t, res.Found())
	assert.Equal(t, int64(1), res.Stats.Feasible)
	assert.Equal(t, int64(1), res.Stats.RejectedByLimits)

	limits.MaxActivations = 4
	res, err = newTestEngine(limits).Search(context.Background(), plans, legs)
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, 4, res.Solutions[0].TotalActivations)
	assert.Equal(t, 4, res.Solutions[0].ProviderCount)
	assert.InDelta(t, 4.0, res.Solutions[0].CashCost, 1e-9)
	assert.InDelta(t, 5.5, res.Solutions[0].RankingCost, 1e-9)
}

func TestSearch_TopUpLimit(t *testing.T) {
	legs := models.SingleLeg("a", 10, 3000)
	plan := models.TestPlan("t", "prov", "a", 1024, 30, 2)
	plan.CanTopUp = true

	limits := DefaultLimits()
	limits.MaxTopUps = 1
	res, err := newTestEngine(limits).Search(context.Background(), []models.Plan{plan}, legs)
	require.NoError(t, err)
	assert.False(t, res.Found())
	assert.Positive(t, res.Stats.RejectedByLimits)

	limits.MaxTopUps = 2
	res, err = newTestEngine(limits).Search(context.Background(), []models.Plan{plan}, legs)
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, 3, res.Solutions[0].Purchases[0].Quantity)
	assert.Equal(t, 2, res.Solutions[0].TotalTopUps)
	assert.Equal(t, 1, res.Solutions[0].TotalAccounts)
	assert.InDelta(t, res.Solutions[0].CashCost, res.Solutions[0].RankingCost, 1e-9)
}

func TestSearch_EmptySpace(t *testing.T) {
	res, err := newTestEngine(DefaultLimits()).Search(context.Background(), nil, models.SingleLeg("a", 1, 1))
	require.NoError(t, err)
	assert.False(t, res.Found())
	assert.Zero(t, res.Stats.Enumerated)
}

func TestSearch_InvalidItinerary(t *testing.T) {
	space := []models.Plan{models.TestPlan("p", "p", "a", 1024, 7, 1)}
	_, err := newTestEngine(DefaultLimits()).Search(context.Background(), space, nil)
	assert.ErrorIs(t, err, models.ErrInvalidItinerary)

	gap := []models.Leg{{Territory: "a", StartDay: 0, EndDay: 2}, {Territory: "b", StartDay: 3, EndDay: 4}}
	_, err = newTestEngine(DefaultLimits()).Search(context.Background(), space, gap)
	assert.ErrorIs(t, err, models.ErrInvalidItinerary)
}

func TestSearch_ComboSizeTooSmall(t *testing.T) {
	legs, plans := fourCountryTrip()
	limits := DefaultLimits()
	limits.MaxComboSize = 3
	limits.MaxActivations = 0

	res, err := newTestEngine(limits).Search(context.Background(), plans, legs)
	require.NoError(t, err)
	assert.False(t, res.Found())
	assert.Zero(t, res.Stats.RejectedByLimits)
	assert.Equal(t, res.Stats.Combinations, res.Stats.Enumerated)
}

func TestSearch_CombinationBudget(t *testing.T) {
	legs, plans := fourCountryTrip()
	limits := DefaultLimits()
	limits.MaxCombinations = 10

	res, err := newTestEngine(limits).Search(context.Background(), plans, legs)
	require.NoError(t, err)
	assert.True(t, res.Stats.Truncated)
	assert.Equal(t, int64(10), res.Stats.Enumerated)
	assert.Equal(t, int64(69), res.Stats.Combinations)
}

func TestSearch_Cancelled(t *testing.T) {
	legs, plans := fourCountryTrip()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, workers := range []int{1, 4} {
		limits := DefaultLimits()
		limits.Workers = workers
		_, err := newTestEngine(limits).Search(ctx, plans, legs)
		assert.ErrorIs(t, err, ErrSearchAborted)
		assert.True(t, errors.Is(err, context.Canceled))
	}
}

func TestSearch_TopNKeepsCheapest(t *testing.T) {
	legs := models.SingleLeg("a", 5, 500)
	var plans []models.Plan
	for i := 1; i <= 6; i++ {
		plans = append(plans, models.TestPlan(fmt.Sprintf("p%d", i), fmt.Sprintf("prov%d", i), "a", 1024, 7, float64(i)))
	}
	limits := DefaultLimits()
	limits.TopN = 3

	res, err := newTestEngine(limits).Search(context.Background(), plans, legs)
	require.NoError(t, err)
	require.Len(t, res.Solutions, 3)
	assert.InDelta(t, 1.0, res.Solutions[0].RankingCost, 1e-9)
	assert.InDelta(t, 2.0, res.Solutions[1].RankingCost, 1e-9)
	// Two units of the cheapest plan (2 cash + 0.5 hassle) beat the 3 plan.
	assert.InDelta(t, 2.5, res.Solutions[2].RankingCost, 1e-9)
	assert.InDelta(t, 2.0, res.Solutions[2].CashCost, 1e-9)
	for _, s := range res.Solutions {
		assert.GreaterOrEqual(t, s.RankingCost, s.CashCost)
	}
}

func TestSearch_ParallelMatchesSequential(t *testing.T) {
	legs := models.Sequential(
		models.Leg{Territory: "fr", EndDay: 4, DataRequiredMB: 2000},
		models.Leg{Territory: "es", EndDay: 3, DataRequiredMB: 1200},
		models.Leg{Territory: "it", EndDay: 5, DataRequiredMB: 2500},
	)
	space := []models.Plan{
		models.TestPlan("fr1", "a", "fr", 1024, 7, 3),
		models.TestPlan("fr3", "b", "fr", 3072, 15, 7),
		models.TestPlan("es1", "a", "es", 1024, 7, 2.5),
		models.TestPlan("es2", "c", "es", 2048, 30, 5),
		models.TestPlan("it3", "b", "it", 3072, 30, 6),
		models.TestRegionalPlan("eu5", "d", []string{"fr", "es", "it"}, 5120, 30, 12),
		models.TestRegionalPlan("eu10", "e", []string{"fr", "es", "it"}, 10240, 30, 19),
		models.TestPlan("free", "f", "it", 500, 7, 0),
	}
	space[1].CanTopUp = true
	space[5].PromoPrice = models.Float(9)
	space[5].PromoRecurrence = models.PromoOneTime

	seqLimits := DefaultLimits()
	seqLimits.TopN = 5
	seq, err := newTestEngine(seqLimits).Search(context.Background(), space, legs)
	require.NoError(t, err)
	require.True(t, seq.Found())

	parLimits := seqLimits
	parLimits.Workers = 4
	par, err := newTestEngine(parLimits).Search(context.Background(), space, legs)
	require.NoError(t, err)

	assert.Equal(t, seq.Solutions, par.Solutions)
	assert.Equal(t, seq.Stats.Enumerated, par.Stats.Enumerated)
	assert.Equal(t, seq.Stats.Feasible, par.Stats.Feasible)
	assert.Equal(t, seq.Stats.RejectedByLimits, par.Stats.RejectedByLimits)
}

func TestSearch_DoesNotMutateSpace(t *testing.T) {
	legs := models.SingleLeg("a", 5, 900)
	space := []models.Plan{
		models.TestPlan("p1", "a", "a", 500, 7, 1),
		models.TestPlan("p2", "b", "a", 700, 7, 2),
	}
	before := append([]models.Plan(nil), space...)

	_, err := newTestEngine(DefaultLimits()).Search(context.Background(), space, legs)
	require.NoError(t, err)
	assert.Equal(t, before, space)
}
