package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/patrickwarner/esimplanner/internal/catalog"
	"github.com/patrickwarner/esimplanner/internal/config"
	"github.com/patrickwarner/esimplanner/internal/db"
	"github.com/patrickwarner/esimplanner/internal/logic/ratelimit"
	"github.com/patrickwarner/esimplanner/internal/middleware"
	"github.com/patrickwarner/esimplanner/internal/observability"
	"github.com/patrickwarner/esimplanner/internal/planner"
)

// ErrNoPlanSource is returned by Reload when no catalog source is configured.
var ErrNoPlanSource = errors.New("no plan source configured")

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger    *zap.Logger
	Planner   *planner.Service
	Source    db.PlanSource
	Overrides *catalog.Overrides
	Limiter   *ratelimit.ClientLimiter
	Metrics   observability.MetricsRegistry
	Config    config.Config
	reloadMu  sync.Mutex
}

// NewServer constructs a Server. limiter and metrics may be nil.
func NewServer(logger *zap.Logger, svc *planner.Service, src db.PlanSource, overrides *catalog.Overrides, limiter *ratelimit.ClientLimiter, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if limiter == nil {
		limiter = ratelimit.NewClientLimiter(ratelimit.Config{Enabled: false}, metrics)
	}
	if overrides == nil {
		overrides = catalog.DefaultOverrides()
	}
	return &Server{
		Logger:    logger,
		Planner:   svc,
		Source:    src,
		Overrides: overrides,
		Limiter:   limiter,
		Metrics:   metrics,
		Config:    cfg,
	}
}

// Reload refreshes the catalog from the configured source. Concurrent calls
// are serialized.
func (s *Server) Reload(ctx context.Context) (catalog.Report, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if s.Source == nil {
		return catalog.Report{}, ErrNoPlanSource
	}
	return s.Planner.ReloadCatalog(ctx, s.Source, s.Overrides)
}

// Router registers every route on a new mux router.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.WithRequestID(), middleware.WithTraceLogger(s.Logger))

	r.HandleFunc("/optimize", s.OptimizeHandler).Methods("POST")
	r.HandleFunc("/plans", s.ListPlansHandler).Methods("GET")
	r.HandleFunc("/plans/{id}", s.GetPlanHandler).Methods("GET")
	r.HandleFunc("/reload", s.ReloadHandler).Methods("POST")
	r.HandleFunc("/health", s.HealthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return r
}

// Handler returns the router wrapped in OpenTelemetry HTTP instrumentation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.Router(), s.Config.ServiceName)
}

// clientID identifies the caller for rate limiting: the first
// X-Forwarded-For hop when present, otherwise the remote host.
func clientID(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
