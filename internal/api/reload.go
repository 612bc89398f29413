package api

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/esimplanner/internal/middleware"
)

type reloadResponse struct {
	Accepted int            `json:"accepted"`
	Rejected map[string]int `json:"rejected"`
	Version  uint64         `json:"version"`
}

// ReloadHandler reloads the plan catalog and reports what normalization kept.
func (s *Server) ReloadHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "reload"
	const method = "POST"

	report, err := s.Reload(r.Context())
	if errors.Is(err, ErrNoPlanSource) {
		s.respondError(w, endpoint, method, start, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		middleware.LoggerFromRequest(r, s.Logger).Error("reload failed", zap.Error(err))
		s.respondError(w, endpoint, method, start, http.StatusInternalServerError, "reload failed")
		return
	}
	s.respond(w, endpoint, method, start, http.StatusOK, reloadResponse{
		Accepted: report.Accepted,
		Rejected: report.Rejected,
		Version:  s.Planner.Store().Version(),
	})
}
