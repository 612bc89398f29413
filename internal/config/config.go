package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RedisAddr      string
	ClickHouseDSN  string
	PostgresDSN    string
	DebugTrace     bool
	ReloadInterval time.Duration
	ServiceName    string

	// Catalog ingestion
	PlansFile      string // Optional JSON catalog used when Postgres is unavailable.
	OverridesFile  string
	PromoCacheFile string

	// Optimizer limits
	MaxComboSize        int
	MaxActivations      int
	MaxTopUps           int
	TopNSolutions       int
	MaxCombinations     int64
	SearchWorkers       int
	SearchTimeout       time.Duration
	SearchSpacePerScope int
	SearchSpaceLarge    int
	SearchSpaceMax      int
	LargeCapacityMB     float64
	IncludeAllFree      bool
	HasslePenalty       float64

	// Display conversion applied to cash costs in responses
	DisplayCurrency string
	DisplayRate     float64

	// Result cache
	ResultCacheEnabled bool
	ResultCacheTTL     time.Duration

	// Rate limiting of /optimize per client
	RateLimitEnabled    bool
	RateLimitCapacity   int
	RateLimitRefillRate int

	// Database connection pooling configuration
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	// ClickHouse connection pooling configuration
	CHMaxOpenConns    int
	CHMaxIdleConns    int
	CHConnMaxLifetime time.Duration
	CHConnMaxIdleTime time.Duration
	// Tracing configuration
	TracingEnabled    bool
	TempoEndpoint     string
	TracingSampleRate float64
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8787")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 5*time.Second)
	// optimize requests can enumerate for a while
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 60*time.Second)
	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000/default?async_insert=1&wait_for_async_insert=1")
	cfg.PostgresDSN = getenv("POSTGRES_DSN", "postgres://postgres@127.0.0.1:5432/postgres?sslmode=disable")
	cfg.DebugTrace = envBool("DEBUG_TRACE", false)
	cfg.ReloadInterval = envDuration("RELOAD_INTERVAL", 5*time.Minute)
	cfg.ServiceName = getenv("SERVICE_NAME", "esimplanner")

	cfg.PlansFile = getenv("PLANS_FILE", "")
	cfg.OverridesFile = getenv("OVERRIDES_FILE", "plan_overrides.json")
	cfg.PromoCacheFile = getenv("PROMO_CACHE_FILE", "promo_recurrence_cache.json")

	cfg.MaxComboSize = envInt("MAX_COMBO_SIZE", 4)
	cfg.MaxActivations = envInt("MAX_ESIM_ACTIVATIONS", 3)
	cfg.MaxTopUps = envInt("MAX_TOPUPS", 15)
	cfg.TopNSolutions = envInt("TOP_N_SOLUTIONS", 10)
	cfg.MaxCombinations = int64(envInt("MAX_COMBINATIONS", 0))
	cfg.SearchWorkers = envInt("SEARCH_WORKERS", 1)
	cfg.SearchTimeout = envDuration("SEARCH_TIMEOUT", 30*time.Second)
	cfg.SearchSpacePerScope = envInt("SEARCH_SPACE_PER_SCOPE", 20)
	cfg.SearchSpaceLarge = envInt("SEARCH_SPACE_LARGE_PER_SCOPE", 5)
	cfg.SearchSpaceMax = envInt("SEARCH_SPACE_MAX", 50)
	cfg.LargeCapacityMB = envFloat("LARGE_CAPACITY_MB", 10240)
	cfg.IncludeAllFree = envBool("INCLUDE_ALL_FREE", true)
	cfg.HasslePenalty = envFloat("HASSLE_PENALTY", 0.50)

	cfg.DisplayCurrency = strings.ToUpper(getenv("DISPLAY_CURRENCY", "USD"))
	cfg.DisplayRate = envFloat("DISPLAY_RATE", 1.0)

	cfg.ResultCacheEnabled = envBool("RESULT_CACHE_ENABLED", true)
	cfg.ResultCacheTTL = envDuration("RESULT_CACHE_TTL", 10*time.Minute)

	cfg.RateLimitEnabled = envBool("RATE_LIMIT_ENABLED", true)
	cfg.RateLimitCapacity = envInt("RATE_LIMIT_CAPACITY", 20)
	cfg.RateLimitRefillRate = envInt("RATE_LIMIT_REFILL_RATE", 2)

	// Database connection pooling configuration
	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 10)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 2)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)

	// ClickHouse only receives one row per optimizer run
	cfg.CHMaxOpenConns = envInt("CH_MAX_OPEN_CONNS", 10)
	cfg.CHMaxIdleConns = envInt("CH_MAX_IDLE_CONNS", 2)
	cfg.CHConnMaxLifetime = envDuration("CH_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.CHConnMaxIdleTime = envDuration("CH_CONN_MAX_IDLE_TIME", 1*time.Minute)

	// Tracing configuration
	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0) // Default to 100% sampling for dev

	return cfg
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}
