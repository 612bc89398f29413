package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/esimplanner/internal/logic/search"
	"github.com/patrickwarner/esimplanner/internal/middleware"
	"github.com/patrickwarner/esimplanner/internal/models"
	"github.com/patrickwarner/esimplanner/internal/planner"
)

// maxOptimizeBody bounds the request body of /optimize.
const maxOptimizeBody = 1 << 20

// OptimizeHandler runs the optimizer for the itinerary in the request body.
// A run without a feasible plan set is a 200 with status
// "no_feasible_solution".
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "optimize"
	const method = "POST"
	logger := middleware.LoggerFromRequest(r, s.Logger)

	if !s.Limiter.Allow(endpoint, clientID(r)) {
		s.respondError(w, endpoint, method, start, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req planner.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOptimizeBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.respondError(w, endpoint, method, start, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := s.Planner.Optimize(r.Context(), req)
	if err != nil {
		status := optimizeErrorStatus(err)
		if status >= http.StatusInternalServerError {
			logger.Error("optimize failed", zap.Error(err))
		}
		s.respondError(w, endpoint, method, start, status, err.Error())
		return
	}
	s.respond(w, endpoint, method, start, http.StatusOK, resp)
}

func optimizeErrorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidItinerary), errors.Is(err, planner.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, planner.ErrCatalogEmpty):
		return http.StatusServiceUnavailable
	case errors.Is(err, search.ErrSearchAborted) && errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, search.ErrSearchAborted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
