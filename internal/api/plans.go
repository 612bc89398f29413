package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/patrickwarner/esimplanner/internal/models"
)

type plansResponse struct {
	Plans   []models.Plan `json:"plans"`
	Count   int           `json:"count"`
	Version uint64        `json:"version"`
}

// ListPlansHandler lists catalog plans. Repeated or comma-separated
// territory parameters narrow the list to plans covering any of them.
func (s *Server) ListPlansHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "plans"
	const method = "GET"

	var territories []string
	for _, v := range r.URL.Query()["territory"] {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				territories = append(territories, t)
			}
		}
	}
	plans := s.Planner.ListPlans(territories...)
	if plans == nil {
		plans = []models.Plan{}
	}
	s.respond(w, endpoint, method, start, http.StatusOK, plansResponse{
		Plans:   plans,
		Count:   len(plans),
		Version: s.Planner.Store().Version(),
	})
}

// GetPlanHandler returns one plan by ID.
func (s *Server) GetPlanHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "plan"
	const method = "GET"

	id := mux.Vars(r)["id"]
	plan, err := s.Planner.Store().GetPlan(id)
	if errors.Is(err, models.ErrNotFound) {
		s.respondError(w, endpoint, method, start, http.StatusNotFound, "plan not found")
		return
	}
	if err != nil {
		s.respondError(w, endpoint, method, start, http.StatusInternalServerError, err.Error())
		return
	}
	s.respond(w, endpoint, method, start, http.StatusOK, plan)
}
