package observability

import (
	"sync"
	"time"
)

// MockMetricsRegistry records calls so tests can assert on them.
type MockMetricsRegistry struct {
	mu            sync.Mutex
	Requests      map[string]int // "endpoint method status" -> count
	Runs          map[string]int
	Searches      []SearchMetrics
	CacheLookups  map[string]int
	CatalogPlans  int
	Rejected      map[string]int
	RateLimitHits map[string]int
	AnalyticsErrs int
}

// NewMockMetricsRegistry returns an empty recording registry.
func NewMockMetricsRegistry() *MockMetricsRegistry {
	return &MockMetricsRegistry{
		Requests:      make(map[string]int),
		Runs:          make(map[string]int),
		CacheLookups:  make(map[string]int),
		Rejected:      make(map[string]int),
		RateLimitHits: make(map[string]int),
	}
}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests[endpoint+" "+method+" "+status]++
}

func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}

func (m *MockMetricsRegistry) IncrementOptimizerRuns(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Runs[status]++
}

func (m *MockMetricsRegistry) RecordSearch(s SearchMetrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Searches = append(m.Searches, s)
}

func (m *MockMetricsRegistry) IncrementResultCache(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheLookups[outcome]++
}

func (m *MockMetricsRegistry) SetCatalogPlans(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CatalogPlans = n
}

func (m *MockMetricsRegistry) IncrementCatalogRejected(reason string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Rejected[reason] += n
}

func (m *MockMetricsRegistry) IncrementRateLimitHits(endpoint string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RateLimitHits[endpoint]++
}

func (m *MockMetricsRegistry) IncrementAnalyticsErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AnalyticsErrs++
}

// RunCount returns the number of runs recorded with status.
func (m *MockMetricsRegistry) RunCount(status string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Runs[status]
}

// CacheCount returns the number of cache lookups recorded with outcome.
func (m *MockMetricsRegistry) CacheCount(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CacheLookups[outcome]
}
