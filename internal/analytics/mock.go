package analytics

import (
	"context"
	"sync"
)

var _ RunRecorder = (*MockAnalytics)(nil)

// MockAnalytics keeps recorded runs in memory for tests.
type MockAnalytics struct {
	mu   sync.Mutex
	runs []RunRecord
	Err  error // returned from RecordRun when set
}

// NewMockAnalytics creates a new mock analytics instance
func NewMockAnalytics() *MockAnalytics {
	return &MockAnalytics{}
}

// RecordRun stores run unless Err is set.
func (m *MockAnalytics) RecordRun(ctx context.Context, run RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.runs = append(m.runs, run)
	return nil
}

// Runs returns a copy of the recorded runs.
func (m *MockAnalytics) Runs() []RunRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RunRecord(nil), m.runs...)
}
