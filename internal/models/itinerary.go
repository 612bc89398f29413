package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidItinerary is returned when legs are missing, out of order or malformed.
// It is fatal for a run and is raised before any enumeration begins.
var ErrInvalidItinerary = errors.New("invalid itinerary")

// Leg is one contiguous segment of a trip spent in a single territory.
type Leg struct {
	Territory      string  `json:"territory"`
	StartDay       int     `json:"start_day"` // Inclusive offset from trip start.
	EndDay         int     `json:"end_day"`   // Exclusive offset from trip start.
	DataRequiredMB float64 `json:"data_mb"`
}

// Days returns the number of days spent in the leg.
func (l Leg) Days() int {
	return l.EndDay - l.StartDay
}

// Itinerary is the ordered list of legs making up a trip.
type Itinerary []Leg

// SingleLeg builds the degenerate one-leg itinerary for a simple trip.
func SingleLeg(territory string, days int, dataMB float64) Itinerary {
	return Itinerary{{Territory: territory, StartDay: 0, EndDay: days, DataRequiredMB: dataMB}}
}

// Sequential builds an itinerary from consecutive (territory, days, MB) stops.
func Sequential(stops ...Leg) Itinerary {
	out := make(Itinerary, 0, len(stops))
	day := 0
	for _, s := range stops {
		days := s.Days()
		out = append(out, Leg{Territory: s.Territory, StartDay: day, EndDay: day + days, DataRequiredMB: s.DataRequiredMB})
		day += days
	}
	return out
}

// Validate checks the structural invariants: at least one leg, the first leg
// starts at day 0, each leg starts where the previous ended, every leg spans at
// least one day, names a territory and requires a non-negative amount of data.
func (it Itinerary) Validate() error {
	if len(it) == 0 {
		return fmt.Errorf("%w: no legs", ErrInvalidItinerary)
	}
	expected := 0
	for i, l := range it {
		if strings.TrimSpace(l.Territory) == "" {
			return fmt.Errorf("%w: leg %d has no territory", ErrInvalidItinerary, i)
		}
		if l.StartDay != expected {
			return fmt.Errorf("%w: leg %d starts at day %d, expected %d", ErrInvalidItinerary, i, l.StartDay, expected)
		}
		if l.EndDay <= l.StartDay {
			return fmt.Errorf("%w: leg %d ends at day %d before it starts", ErrInvalidItinerary, i, l.EndDay)
		}
		if l.DataRequiredMB < 0 {
			return fmt.Errorf("%w: leg %d requires negative data", ErrInvalidItinerary, i)
		}
		expected = l.EndDay
	}
	return nil
}

// TotalDays returns the trip length in days.
func (it Itinerary) TotalDays() int {
	if len(it) == 0 {
		return 0
	}
	return it[len(it)-1].EndDay
}

// TotalDataMB returns the sum of every leg requirement.
func (it Itinerary) TotalDataMB() float64 {
	var total float64
	for _, l := range it {
		total += l.DataRequiredMB
	}
	return total
}

// Requirement returns the whole-trip aggregate used to derive the daily rate.
func (it Itinerary) Requirement() Requirement {
	return Requirement{TotalDays: float64(it.TotalDays()), TotalDataMB: it.TotalDataMB()}
}

// Territories returns the distinct territories visited, lower-cased, in order
// of first appearance.
func (it Itinerary) Territories() []string {
	seen := make(map[string]struct{}, len(it))
	var out []string
	for _, l := range it {
		t := strings.ToLower(strings.TrimSpace(l.Territory))
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
