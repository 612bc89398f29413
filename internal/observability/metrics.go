package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esimplanner_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "esimplanner_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// optimizer runs labelled by outcome (ok, no_feasible_solution, invalid, error, cached)
	OptimizerRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esimplanner_optimizer_runs_total",
			Help: "Total optimizer runs by status",
		},
		[]string{"status"},
	)

	// candidate multisets enumerated
	CombinationsEnumerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "esimplanner_combinations_enumerated_total",
			Help: "Total plan combinations enumerated",
		},
	)

	// candidates the timeline solver accepted
	CombinationsFeasible = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "esimplanner_combinations_feasible_total",
			Help: "Total feasible plan combinations",
		},
	)

	// feasible candidates dropped for exceeding activation or top-up caps
	CombinationsRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "esimplanner_combinations_rejected_by_limits_total",
			Help: "Total feasible combinations rejected by account limits",
		},
	)

	// searches stopped by the combination budget
	SearchTruncated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "esimplanner_search_truncated_total",
			Help: "Total searches stopped by the combination budget",
		},
	)

	// wall time of the enumeration
	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "esimplanner_search_duration_seconds",
			Help:    "Duration of plan combination searches",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)

	// plans kept by the search-space builder
	SearchSpaceSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "esimplanner_search_space_size",
			Help:    "Number of candidate plans per search",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	// result cache lookups labelled hit or miss
	ResultCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esimplanner_result_cache_lookups_total",
			Help: "Result cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	// plans currently loaded in the catalog
	CatalogPlans = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "esimplanner_catalog_plans",
			Help: "Plans in the loaded catalog",
		},
	)

	// plans dropped at ingestion by reason
	CatalogRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esimplanner_catalog_rejected_total",
			Help: "Plans dropped during catalog normalization",
		},
		[]string{"reason"},
	)

	// rate limit hits per endpoint
	RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esimplanner_ratelimit_hits_total",
			Help: "Total requests rejected by the rate limiter",
		},
		[]string{"endpoint"},
	)

	// failed analytics writes
	AnalyticsErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "esimplanner_analytics_errors_total",
			Help: "Total errors recording optimizer runs",
		},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		OptimizerRuns,
		CombinationsEnumerated,
		CombinationsFeasible,
		CombinationsRejected,
		SearchTruncated,
		SearchDuration,
		SearchSpaceSize,
		ResultCacheLookups,
		CatalogPlans,
		CatalogRejected,
		RateLimitHits,
		AnalyticsErrors,
	)
}
