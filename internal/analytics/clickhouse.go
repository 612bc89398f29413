package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/patrickwarner/esimplanner/internal/observability"
)

// ErrUnavailable is returned when the analytics DB is not configured.
var ErrUnavailable = errors.New("analytics unavailable")

// RunRecorder persists one row per optimizer run. Implementations return
// ErrUnavailable when their storage is not configured.
type RunRecorder interface {
	RecordRun(ctx context.Context, run RunRecord) error
}

var _ RunRecorder = (*Analytics)(nil)

// RunRecord mirrors a row in the optimizer_runs table.
type RunRecord struct {
	Timestamp        time.Time `json:"timestamp"`
	RunID            string    `json:"run_id"`
	Status           string    `json:"status"`
	Territories      []string  `json:"territories"`
	Legs             int       `json:"legs"`
	TotalDays        int       `json:"total_days"`
	TotalDataMB      float64   `json:"total_data_mb"`
	SearchSpace      int       `json:"search_space"`
	Combinations     int64     `json:"combinations"`
	Enumerated       int64     `json:"enumerated"`
	Feasible         int64     `json:"feasible"`
	RejectedByLimits int64     `json:"rejected_by_limits"`
	Truncated        bool      `json:"truncated"`
	Solutions        int       `json:"solutions"`
	BestCashCost     float64   `json:"best_cash_cost"`
	BestRankingCost  float64   `json:"best_ranking_cost"`
	BestPlanIDs      []string  `json:"best_plan_ids"`
	DurationMs       float64   `json:"duration_ms"`
	Cached           bool      `json:"cached"`
}

// Analytics wraps a ClickHouse DB connection.
type Analytics struct {
	DB      *sql.DB
	Metrics observability.MetricsRegistry
}

const createRunsTable = `CREATE TABLE IF NOT EXISTS optimizer_runs (
    timestamp          DateTime,
    run_id             String,
    status             LowCardinality(String),
    territories        Array(String),
    legs               UInt16,
    total_days         UInt32,
    total_data_mb      Float64,
    search_space       UInt32,
    combinations       Int64,
    enumerated         Int64,
    feasible           Int64,
    rejected_by_limits Int64,
    truncated          UInt8,
    solutions          UInt16,
    best_cash_cost     Float64,
    best_ranking_cost  Float64,
    best_plan_ids      Array(String),
    duration_ms        Float64,
    cached             UInt8
) ENGINE=MergeTree() ORDER BY (status, timestamp)`

// InitClickHouse connects to ClickHouse and ensures the runs table exists.
func InitClickHouse(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration, metrics observability.MetricsRegistry) (*Analytics, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), createRunsTable); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	zap.L().Info("Connected to ClickHouse")
	return &Analytics{DB: db, Metrics: metrics}, nil
}

// RecordRun inserts a single run row.
func (a *Analytics) RecordRun(ctx context.Context, run RunRecord) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}
	if run.Timestamp.IsZero() {
		run.Timestamp = time.Now()
	}
	stmt := `INSERT INTO optimizer_runs (timestamp, run_id, status, territories, legs, total_days, total_data_mb,
        search_space, combinations, enumerated, feasible, rejected_by_limits, truncated, solutions,
        best_cash_cost, best_ranking_cost, best_plan_ids, duration_ms, cached)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := a.DB.ExecContext(ctx, stmt, run.Timestamp, run.RunID, run.Status, run.Territories,
		uint16(run.Legs), uint32(run.TotalDays), run.TotalDataMB, uint32(run.SearchSpace), run.Combinations,
		run.Enumerated, run.Feasible, run.RejectedByLimits, boolToUInt8(run.Truncated), uint16(run.Solutions),
		run.BestCashCost, run.BestRankingCost, run.BestPlanIDs, run.DurationMs, boolToUInt8(run.Cached)); err != nil {
		zap.L().Error("clickhouse insert failed", zap.Error(err), zap.String("run_id", run.RunID))
		if a.Metrics != nil {
			a.Metrics.IncrementAnalyticsErrors()
		}
		return fmt.Errorf("insert optimizer run: %w", err)
	}
	return nil
}

// RunsByStatus returns the number of runs per status since the given time.
func (a *Analytics) RunsByStatus(ctx context.Context, since time.Time) (map[string]int64, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}
	rows, err := a.DB.QueryContext(ctx, `SELECT status, count() FROM optimizer_runs WHERE timestamp >= ? GROUP BY status`, since)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	out := make(map[string]int64)
	for rows.Next() {
		var status string
		var n uint64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan run count: %w", err)
		}
		out[status] = int64(n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// Close terminates the ClickHouse connection.
func (a *Analytics) Close() {
	if a != nil && a.DB != nil {
		if err := a.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
