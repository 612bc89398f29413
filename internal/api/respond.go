package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

type errorResponse struct {
	Error string `json:"error"`
}

// respond writes v as JSON with status and records the request metrics.
func (s *Server) respond(w http.ResponseWriter, endpoint, method string, start time.Time, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			s.Logger.Error("encode response", zap.String("endpoint", endpoint), zap.Error(err))
		}
	}
	s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(status))
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}

func (s *Server) respondError(w http.ResponseWriter, endpoint, method string, start time.Time, status int, msg string) {
	s.respond(w, endpoint, method, start, status, errorResponse{Error: msg})
}
