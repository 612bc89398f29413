package planner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/patrickwarner/esimplanner/internal/logic/search"
	"github.com/patrickwarner/esimplanner/internal/models"
)

// ErrInvalidRequest is returned for malformed optimize requests that are not
// itinerary errors, such as negative limits.
var ErrInvalidRequest = errors.New("invalid request")

// Trip is the single-territory shorthand for a one-leg itinerary.
type Trip struct {
	Territory string  `json:"territory"`
	Days      int     `json:"days"`
	DataMB    float64 `json:"data_mb"`
}

// LimitOverrides lets a request tighten the configured search limits. Values
// above the configured ones are clamped.
type LimitOverrides struct {
	MaxComboSize   *int `json:"max_combo_size,omitempty"`
	MaxActivations *int `json:"max_activations,omitempty"`
	MaxTopUps      *int `json:"max_top_ups,omitempty"`
	TopN           *int `json:"top_n,omitempty"`
}

// Request is one optimize call. Exactly one of Legs or Trip must be set.
type Request struct {
	Legs                 []models.Leg    `json:"legs,omitempty"`
	Trip                 *Trip           `json:"trip,omitempty"`
	Limits               *LimitOverrides `json:"limits,omitempty"`
	ExcludeProviders     []string        `json:"exclude_providers,omitempty"`
	ExcludeTitleKeywords []string        `json:"exclude_title_keywords,omitempty"`
	Trace                bool            `json:"trace,omitempty"`
}

// Itinerary returns the validated itinerary described by the request.
func (r Request) Itinerary() (models.Itinerary, error) {
	var it models.Itinerary
	switch {
	case len(r.Legs) > 0 && r.Trip != nil:
		return nil, fmt.Errorf("%w: legs and trip are mutually exclusive", models.ErrInvalidItinerary)
	case r.Trip != nil:
		it = models.SingleLeg(r.Trip.Territory, r.Trip.Days, r.Trip.DataMB)
	default:
		it = models.Itinerary(r.Legs)
	}
	if err := it.Validate(); err != nil {
		return nil, err
	}
	return it, nil
}

// apply returns base tightened by the overrides.
func (o *LimitOverrides) apply(base search.Limits) (search.Limits, error) {
	if o == nil {
		return base, nil
	}
	out := base
	fields := []struct {
		name string
		v    *int
		dst  *int
	}{
		{"max_combo_size", o.MaxComboSize, &out.MaxComboSize},
		{"max_activations", o.MaxActivations, &out.MaxActivations},
		{"max_top_ups", o.MaxTopUps, &out.MaxTopUps},
		{"top_n", o.TopN, &out.TopN},
	}
	for _, f := range fields {
		if f.v == nil {
			continue
		}
		if *f.v < 1 {
			return base, fmt.Errorf("%w: %s must be at least 1", ErrInvalidRequest, f.name)
		}
		// zero in the base means uncapped, so any request value tightens it
		if *f.dst == 0 || *f.v < *f.dst {
			*f.dst = *f.v
		}
	}
	return out, nil
}

// normalizedList lower-cases, trims and drops empty entries.
func normalizedList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
