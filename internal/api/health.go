package api

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status         string `json:"status"`
	Plans          int    `json:"plans"`
	CatalogVersion uint64 `json:"catalog_version"`
}

// HealthHandler reports liveness and whether a catalog is loaded. An empty
// catalog is reported as "degraded" with a 200 so the process is not
// restarted while waiting for a reload.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "health"
	const method = "GET"

	store := s.Planner.Store()
	n := len(store.GetAllPlans())
	status := "ok"
	if n == 0 {
		status = "degraded"
	}
	s.respond(w, endpoint, method, start, http.StatusOK, healthResponse{
		Status:         status,
		Plans:          n,
		CatalogVersion: store.Version(),
	})
}
