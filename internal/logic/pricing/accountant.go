package pricing

import (
	"math"

	"github.com/patrickwarner/esimplanner/internal/models"
)

// DefaultHasslePenalty is the ranking surcharge per account beyond the first.
const DefaultHasslePenalty = 0.50

// Config holds the accountant's tunables.
type Config struct {
	// HasslePenalty applies to plans that do not carry their own penalty.
	HasslePenalty float64
}

// Line is one plan bought Quantity times, in purchase order.
type Line struct {
	Plan     models.Plan
	Quantity int
}

// LineQuote is the priced detail of one Line.
type LineQuote struct {
	UnitPrice      float64 // Price paid for the first unit.
	TotalPrice     float64
	UsedPromo      bool
	PromoForfeited bool // A promo existed but the provider already consumed its one-time promo.
	Accounts       int
	Activations    int
	TopUps         int
	Penalty        float64 // Ranking-only surcharge attributed to this line.
}

// Quote is the result of pricing an ordered set of lines.
type Quote struct {
	CashCost         float64
	RankingCost      float64
	Lines            []LineQuote
	TotalAccounts    int
	TotalActivations int
	TotalTopUps      int
}

// Accountant bills purchases honoring provider-scoped promo rules.
// It holds no per-call state and is safe for concurrent use.
type Accountant struct {
	cfg Config
}

// NewAccountant returns an Accountant using cfg.
func NewAccountant(cfg Config) *Accountant {
	return &Accountant{cfg: cfg}
}

// Price computes the cash and ranking cost of lines in order. The first line
// of a provider with a one-time promo gets the promo on a single unit; later
// lines from the same provider pay regular price. It never fails and never
// modifies the plans.
func (a *Accountant) Price(lines []Line) Quote {
	q := Quote{Lines: make([]LineQuote, len(lines))}
	promoUsed := make(map[string]bool)
	firstAccount := true

	for i, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		p := l.Plan
		regular := price(p.RegularPrice)
		lq := LineQuote{UnitPrice: regular}

		switch {
		case p.HasPromo() && p.PromoRecurrence == models.PromoOneTime && promoUsed[p.ProviderID]:
			lq.PromoForfeited = true
			lq.TotalPrice = regular * float64(l.Quantity)
		case p.HasPromo() && p.PromoRecurrence == models.PromoOneTime:
			promo := price(*p.PromoPrice)
			lq.UsedPromo = true
			lq.UnitPrice = promo
			lq.TotalPrice = promo + regular*float64(l.Quantity-1)
			promoUsed[p.ProviderID] = true
		case p.HasPromo():
			promo := price(*p.PromoPrice)
			lq.UsedPromo = true
			lq.UnitPrice = promo
			lq.TotalPrice = promo * float64(l.Quantity)
		default:
			lq.TotalPrice = regular * float64(l.Quantity)
		}

		lq.Accounts, lq.Activations, lq.TopUps = Accounts(p, l.Quantity)

		extra := lq.Accounts
		if firstAccount && extra > 0 {
			extra--
			firstAccount = false
		}
		lq.Penalty = float64(extra) * p.HasslePenalty(a.cfg.HasslePenalty)

		q.Lines[i] = lq
		q.CashCost += lq.TotalPrice
		q.RankingCost += lq.TotalPrice + lq.Penalty
		q.TotalAccounts += lq.Accounts
		q.TotalActivations += lq.Activations
		q.TotalTopUps += lq.TopUps
	}
	return q
}

// Accounts returns how many accounts, eSIM activations and top-ups buying
// qty units of p requires. Top-up capable plans reuse one account and one
// activation; new-user-only plans always need one account per unit.
func Accounts(p models.Plan, qty int) (accounts, activations, topUps int) {
	if qty <= 0 {
		return 0, 0, 0
	}
	if p.CanTopUp && !p.NewUserOnly {
		return 1, 1, qty - 1
	}
	return qty, qty, 0
}

// price maps malformed prices to zero so a bad record cannot poison a total.
func price(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
