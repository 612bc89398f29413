package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRunUnavailableWithoutDB(t *testing.T) {
	var a *Analytics
	err := a.RecordRun(context.Background(), RunRecord{RunID: "r1"})
	assert.ErrorIs(t, err, ErrUnavailable)

	a = &Analytics{}
	err = a.RecordRun(context.Background(), RunRecord{RunID: "r1"})
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = a.RunsByStatus(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMockAnalyticsRecordsRuns(t *testing.T) {
	m := NewMockAnalytics()
	require.NoError(t, m.RecordRun(context.Background(), RunRecord{RunID: "a", Status: "ok"}))
	require.NoError(t, m.RecordRun(context.Background(), RunRecord{RunID: "b", Status: "no_feasible_solution"}))

	runs := m.Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, "a", runs[0].RunID)
	assert.Equal(t, "no_feasible_solution", runs[1].Status)

	m.Err = errors.New("down")
	assert.Error(t, m.RecordRun(context.Background(), RunRecord{RunID: "c"}))
	assert.Len(t, m.Runs(), 2)
}

func TestBoolToUInt8(t *testing.T) {
	assert.Equal(t, uint8(1), boolToUInt8(true))
	assert.Equal(t, uint8(0), boolToUInt8(false))
}
