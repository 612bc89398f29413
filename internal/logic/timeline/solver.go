// Package timeline decides whether a multiset of plans can cover every leg of
// an itinerary and, when it can, records how each plan unit was drawn down.
package timeline

import (
	"math"
	"sort"

	"github.com/patrickwarner/esimplanner/internal/models"
)

// Epsilon is the unmet requirement, in MB, tolerated when closing a leg.
const Epsilon = 1e-6

// Draw is data taken from one plan unit for one leg.
type Draw struct {
	Slot    int     `json:"slot"` // Position of the unit in the candidate multiset.
	FromDay float64 `json:"from_day"`
	ToDay   float64 `json:"to_day"`
	DataMB  float64 `json:"data_mb"`
}

// LegTrace is the fulfilment proof of a single leg.
type LegTrace struct {
	Leg        models.Leg `json:"leg"`
	SuppliedMB float64    `json:"supplied_mb"`
	Draws      []Draw     `json:"draws"`
}

// UnitUsage is the final state of one plan unit after a successful allocation.
type UnitUsage struct {
	Slot                  int     `json:"slot"`
	ActivationDay         int     `json:"activation_day"` // -1 when the unit was never used.
	UsedMB                float64 `json:"used_mb"`
	EffectiveCapacityMB   float64 `json:"effective_capacity_mb"`
	EffectiveValidityDays float64 `json:"effective_validity_days"`
}

// Allocation is the solver's answer for one candidate.
type Allocation struct {
	Rate      float64     `json:"rate_mb_per_day"`
	Units     []UnitUsage `json:"units,omitempty"`
	Legs      []LegTrace  `json:"legs,omitempty"`
	FailedLeg int         `json:"failed_leg"` // -1 when feasible.
}

// unitState is the private mutable scratch of one plan unit.
type unitState struct {
	activationDay int // -1 until first use
	remainingMB   float64
	usedMB        float64
}

// unitInfo is derived once per call and never mutated.
type unitInfo struct {
	plan        *models.Plan
	capacityMB  float64
	validity    float64
	dailyCapMB  float64 // +Inf for total-cap plans
	contributes bool
}

type field uint8

const (
	fieldActivationDay field = iota
	fieldRemaining
	fieldUsed
)

// undoEntry restores one field of one unit to its previous value.
type undoEntry struct {
	slot  int
	field field
	prev  float64
}

type drawRecord struct {
	leg int
	Draw
}

type candidate struct {
	slot      int
	activated bool
	remaining float64 // Days left in the unit's window from the leg start.
	overlap   float64
	from, to  float64
}

// Solver allocates plan capacity to legs with greedy consumption and
// leg-level rollback. A Solver reuses its buffers between calls and must not
// be shared between goroutines.
type Solver struct {
	legs  []models.Leg
	info  []unitInfo
	units []unitState
	undo  []undoEntry
	draws []drawRecord
	cands []candidate

	failed int

	// onRollback observes unit state right after a leg is rolled back.
	onRollback func(leg int, units []unitState)
}

// NewSolver returns a ready Solver.
func NewSolver() *Solver {
	return &Solver{}
}

// Allocate reports whether plans can jointly satisfy legs. The daily rate
// used for effective capacity is derived from the legs themselves.
func (s *Solver) Allocate(plans []models.Plan, legs []models.Leg) (*Allocation, bool) {
	return s.solve(plans, legs, models.Itinerary(legs).Requirement())
}

func (s *Solver) solve(plans []models.Plan, legs []models.Leg, req models.Requirement) (*Allocation, bool) {
	rate := req.DailyRate()
	s.reset(plans, legs, rate, req.TotalDays)
	if !s.fillFrom(0) {
		return &Allocation{Rate: rate, FailedLeg: s.failed}, false
	}
	return s.result(rate), true
}

func (s *Solver) reset(plans []models.Plan, legs []models.Leg, rate, tripDays float64) {
	s.legs = legs
	s.info = s.info[:0]
	s.units = s.units[:0]
	s.undo = s.undo[:0]
	s.draws = s.draws[:0]
	s.failed = -1

	for i := range plans {
		p := &plans[i]
		ui := unitInfo{plan: p, dailyCapMB: math.Inf(1)}
		if p.Valid() {
			ui.capacityMB = p.EffectiveCapacityMB(rate)
			ui.validity = p.EffectiveValidityDays(rate, tripDays)
			if p.IsPerDay() && !p.UnlimitedData() {
				ui.dailyCapMB = p.DataMB
			}
			ui.contributes = ui.capacityMB > 0 && ui.validity > 0
		}
		s.info = append(s.info, ui)
		s.units = append(s.units, unitState{activationDay: -1, remainingMB: ui.capacityMB})
	}
}

// fillFrom satisfies legs[i:] in order. On failure every mutation made from
// leg i onward has been rolled back.
func (s *Solver) fillFrom(i int) bool {
	if i == len(s.legs) {
		return true
	}
	undoMark, drawMark := len(s.undo), len(s.draws)
	if !s.fillLeg(i) {
		s.rollback(i, undoMark, drawMark)
		s.failed = i
		return false
	}
	if !s.fillFrom(i + 1) {
		s.rollback(i, undoMark, drawMark)
		return false
	}
	return true
}

func (s *Solver) fillLeg(i int) bool {
	leg := s.legs[i]
	need := leg.DataRequiredMB
	if need <= Epsilon {
		return true
	}

	s.cands = s.cands[:0]
	start, end := float64(leg.StartDay), float64(leg.EndDay)
	for slot := range s.units {
		info := &s.info[slot]
		st := &s.units[slot]
		if !info.contributes || st.remainingMB <= Epsilon || !info.plan.Covers(leg.Territory) {
			continue
		}
		c := candidate{slot: slot, activated: st.activationDay >= 0}
		winStart := start
		if c.activated {
			winStart = float64(st.activationDay)
		}
		winEnd := winStart + info.validity
		c.from = math.Max(winStart, start)
		c.to = math.Min(winEnd, end)
		c.overlap = c.to - c.from
		if c.overlap <= 0 {
			continue
		}
		c.remaining = winEnd - start
		s.cands = append(s.cands, c)
	}

	sort.Slice(s.cands, func(a, b int) bool {
		ca, cb := s.cands[a], s.cands[b]
		if ca.activated != cb.activated {
			return ca.activated
		}
		if ca.remaining != cb.remaining {
			return ca.remaining < cb.remaining
		}
		return ca.slot < cb.slot
	})

	for _, c := range s.cands {
		if need <= Epsilon {
			break
		}
		info := &s.info[c.slot]
		st := &s.units[c.slot]
		avail := st.remainingMB
		if !math.IsInf(info.dailyCapMB, 1) {
			avail = math.Min(avail, info.dailyCapMB*c.overlap)
		}
		take := math.Min(avail, need)
		if take <= 0 {
			continue
		}
		if !c.activated {
			s.set(c.slot, fieldActivationDay, float64(leg.StartDay))
		}
		s.set(c.slot, fieldRemaining, st.remainingMB-take)
		s.set(c.slot, fieldUsed, st.usedMB+take)
		s.draws = append(s.draws, drawRecord{leg: i, Draw: Draw{Slot: c.slot, FromDay: c.from, ToDay: c.to, DataMB: take}})
		need -= take
	}
	return need <= Epsilon
}

// set records the previous value of a field before overwriting it.
func (s *Solver) set(slot int, f field, v float64) {
	st := &s.units[slot]
	e := undoEntry{slot: slot, field: f}
	switch f {
	case fieldActivationDay:
		e.prev = float64(st.activationDay)
		st.activationDay = int(v)
	case fieldRemaining:
		e.prev = st.remainingMB
		st.remainingMB = v
	case fieldUsed:
		e.prev = st.usedMB
		st.usedMB = v
	}
	s.undo = append(s.undo, e)
}

// rollback reverts the undo log down to mark, newest first.
func (s *Solver) rollback(leg, undoMark, drawMark int) {
	for j := len(s.undo) - 1; j >= undoMark; j-- {
		e := s.undo[j]
		st := &s.units[e.slot]
		switch e.field {
		case fieldActivationDay:
			st.activationDay = int(e.prev)
		case fieldRemaining:
			st.remainingMB = e.prev
		case fieldUsed:
			st.usedMB = e.prev
		}
	}
	s.undo = s.undo[:undoMark]
	s.draws = s.draws[:drawMark]
	if s.onRollback != nil {
		s.onRollback(leg, s.units)
	}
}

func (s *Solver) result(rate float64) *Allocation {
	a := &Allocation{
		Rate:      rate,
		Units:     make([]UnitUsage, len(s.units)),
		Legs:      make([]LegTrace, len(s.legs)),
		FailedLeg: -1,
	}
	for slot, st := range s.units {
		a.Units[slot] = UnitUsage{
			Slot:                  slot,
			ActivationDay:         st.activationDay,
			UsedMB:                st.usedMB,
			EffectiveCapacityMB:   s.info[slot].capacityMB,
			EffectiveValidityDays: s.info[slot].validity,
		}
	}
	for i, leg := range s.legs {
		a.Legs[i].Leg = leg
	}
	for _, d := range s.draws {
		lt := &a.Legs[d.leg]
		lt.Draws = append(lt.Draws, d.Draw)
		lt.SuppliedMB += d.DataMB
	}
	return a
}
