package logic

import "github.com/patrickwarner/esimplanner/internal/models"

// TraceStep records the plans that survived one stage of a planner run.
type TraceStep struct {
	Stage   string            `json:"stage"`
	PlanIDs []string          `json:"plan_ids"`
	Count   int               `json:"count"`
	Details map[string]string `json:"details,omitempty"`
}

// SearchTrace captures the ordered narrowing of the catalog into the search
// space. A nil trace ignores every call so callers need not check.
type SearchTrace struct {
	Steps []TraceStep `json:"steps"`
}

// maxTracedIDs caps how many plan IDs a step lists.
const maxTracedIDs = 50

// AddStep appends a trace entry for stage listing the given plans.
func (t *SearchTrace) AddStep(stage string, plans []models.Plan) {
	t.AddStepWithDetails(stage, plans, nil)
}

// AddStepWithDetails appends a trace entry with additional details.
func (t *SearchTrace) AddStepWithDetails(stage string, plans []models.Plan, details map[string]string) {
	if t == nil {
		return
	}
	step := TraceStep{Stage: stage, Count: len(plans), Details: details}
	for i, p := range plans {
		if i == maxTracedIDs {
			break
		}
		step.PlanIDs = append(step.PlanIDs, p.PlanID)
	}
	t.Steps = append(t.Steps, step)
}

// Step returns the first step recorded for stage.
func (t *SearchTrace) Step(stage string) (TraceStep, bool) {
	if t == nil {
		return TraceStep{}, false
	}
	for _, s := range t.Steps {
		if s.Stage == stage {
			return s, true
		}
	}
	return TraceStep{}, false
}
