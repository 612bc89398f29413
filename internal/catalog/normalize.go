package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/patrickwarner/esimplanner/internal/models"
)

// Rejection reasons reported by Normalize.
const (
	ReasonMissingID       = "missing_id"
	ReasonDuplicateID     = "duplicate_id"
	ReasonMissingPrice    = "missing_price"
	ReasonNoData          = "no_data"
	ReasonNoValidity      = "no_validity"
	ReasonNoCoverage      = "no_coverage"
	ReasonUnknownCapMode  = "unknown_cap_mode"
	ReasonUnknownScope    = "unknown_scope"
	ReasonMalformedNumber = "malformed_number"
)

// Report counts what Normalize kept and why it dropped the rest.
type Report struct {
	Accepted int            `json:"accepted"`
	Rejected map[string]int `json:"rejected"`
}

// RejectedTotal returns the number of dropped records.
func (r Report) RejectedTotal() int {
	n := 0
	for _, c := range r.Rejected {
		n += c
	}
	return n
}

// Normalize applies overrides and promo classification to raw plans and
// drops records the optimizer cannot use. The input is not modified.
func Normalize(raw []models.Plan, o *Overrides) ([]models.Plan, Report) {
	if o == nil {
		o = DefaultOverrides()
	}
	rep := Report{Rejected: make(map[string]int)}
	out := make([]models.Plan, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))

	for _, p := range raw {
		p.Coverage = append([]string(nil), p.Coverage...)
		p.PromoRecurrence = o.PromoTypeFor(p.ProviderID)
		p = o.Apply(p)

		if reason := normalizePlan(&p); reason != "" {
			rep.Rejected[reason]++
			continue
		}
		if _, dup := seen[p.PlanID]; dup {
			rep.Rejected[ReasonDuplicateID]++
			continue
		}
		seen[p.PlanID] = struct{}{}
		out = append(out, p)
	}
	rep.Accepted = len(out)
	return out, rep
}

// normalizePlan canonicalizes p in place and returns a rejection reason, or
// "" when the plan is usable.
func normalizePlan(p *models.Plan) string {
	p.PlanID = strings.TrimSpace(p.PlanID)
	p.ProviderID = strings.TrimSpace(p.ProviderID)
	if p.PlanID == "" || p.ProviderID == "" {
		return ReasonMissingID
	}
	if p.Title == "" {
		p.Title = p.PlanID
	}
	if p.ProviderName == "" {
		p.ProviderName = p.ProviderID
	}

	for _, v := range []float64{p.RegularPrice, p.DataMB, p.ValidityDays} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ReasonMalformedNumber
		}
	}
	if p.RegularPrice < 0 {
		return ReasonMissingPrice
	}
	if p.DataMB <= 0 && p.DataMB != models.Unlimited {
		return ReasonNoData
	}
	if p.ValidityDays <= 0 && p.ValidityDays != models.Unlimited {
		return ReasonNoValidity
	}
	if p.PromoPrice != nil {
		promo := *p.PromoPrice
		if math.IsNaN(promo) || promo < 0 || promo >= p.RegularPrice {
			p.PromoPrice = nil
		}
	}

	coverage := p.Coverage[:0]
	seen := make(map[string]struct{}, len(p.Coverage))
	for _, t := range p.Coverage {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		coverage = append(coverage, t)
	}
	p.Coverage = coverage
	if len(p.Coverage) == 0 {
		return ReasonNoCoverage
	}

	switch p.Scope {
	case "":
		if len(p.Coverage) > 1 {
			p.Scope = models.ScopeRegional
		} else {
			p.Scope = models.ScopeLocal
		}
	case models.ScopeLocal, models.ScopeRegional:
	default:
		return ReasonUnknownScope
	}

	switch p.CapMode {
	case "":
		p.CapMode = models.CapModeTotal
	case models.CapModeTotal, models.CapModePerDay:
	default:
		return ReasonUnknownCapMode
	}
	return ""
}

// LoadPlansFile reads a JSON array of plan records.
func LoadPlansFile(path string) ([]models.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plans %s: %w", path, err)
	}
	var plans []models.Plan
	if err := json.Unmarshal(data, &plans); err != nil {
		return nil, fmt.Errorf("decode plans %s: %w", path, err)
	}
	return plans, nil
}

// Exclude drops plans from the listed providers and plans whose title
// contains any of the keywords. Matching is case-insensitive.
func Exclude(plans []models.Plan, providers, titleKeywords []string) []models.Plan {
	if len(providers) == 0 && len(titleKeywords) == 0 {
		return plans
	}
	blocked := make(map[string]struct{}, len(providers))
	for _, p := range providers {
		blocked[strings.ToLower(strings.TrimSpace(p))] = struct{}{}
	}
	out := make([]models.Plan, 0, len(plans))
next:
	for _, p := range plans {
		if _, ok := blocked[strings.ToLower(p.ProviderID)]; ok {
			continue
		}
		title := strings.ToLower(p.Title)
		for _, kw := range titleKeywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(title, kw) {
				continue next
			}
		}
		out = append(out, p)
	}
	return out
}
