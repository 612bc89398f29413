package observability

import "time"

// SearchMetrics is the per-run summary recorded after a search.
type SearchMetrics struct {
	SearchSpace      int
	Enumerated       int64
	Feasible         int64
	RejectedByLimits int64
	Truncated        bool
	Duration         time.Duration
}

// MetricsRegistry records application metrics. Components receive it by
// injection instead of touching the global Prometheus vectors.
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Optimizer metrics
	IncrementOptimizerRuns(status string)
	RecordSearch(m SearchMetrics)
	IncrementResultCache(outcome string)

	// Catalog metrics
	SetCatalogPlans(n int)
	IncrementCatalogRejected(reason string, n int)

	// Rate limiting metrics
	IncrementRateLimitHits(endpoint string)

	// Analytics metrics
	IncrementAnalyticsErrors()
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics.
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementOptimizerRuns(status string) {
	OptimizerRuns.WithLabelValues(status).Inc()
}

func (r *PrometheusRegistry) RecordSearch(m SearchMetrics) {
	CombinationsEnumerated.Add(float64(m.Enumerated))
	CombinationsFeasible.Add(float64(m.Feasible))
	CombinationsRejected.Add(float64(m.RejectedByLimits))
	if m.Truncated {
		SearchTruncated.Inc()
	}
	SearchDuration.Observe(m.Duration.Seconds())
	SearchSpaceSize.Observe(float64(m.SearchSpace))
}

func (r *PrometheusRegistry) IncrementResultCache(outcome string) {
	ResultCacheLookups.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) SetCatalogPlans(n int) {
	CatalogPlans.Set(float64(n))
}

func (r *PrometheusRegistry) IncrementCatalogRejected(reason string, n int) {
	CatalogRejected.WithLabelValues(reason).Add(float64(n))
}

func (r *PrometheusRegistry) IncrementRateLimitHits(endpoint string) {
	RateLimitHits.WithLabelValues(endpoint).Inc()
}

func (r *PrometheusRegistry) IncrementAnalyticsErrors() {
	AnalyticsErrors.Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementOptimizerRuns(status string)                                 {}
func (r *NoOpRegistry) RecordSearch(m SearchMetrics)                                         {}
func (r *NoOpRegistry) IncrementResultCache(outcome string)                                  {}
func (r *NoOpRegistry) SetCatalogPlans(n int)                                                {}
func (r *NoOpRegistry) IncrementCatalogRejected(reason string, n int)                        {}
func (r *NoOpRegistry) IncrementRateLimitHits(endpoint string)                               {}
func (r *NoOpRegistry) IncrementAnalyticsErrors()                                            {}
