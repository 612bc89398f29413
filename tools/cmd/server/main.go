package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/patrickwarner/esimplanner/internal/analytics"
	"github.com/patrickwarner/esimplanner/internal/api"
	"github.com/patrickwarner/esimplanner/internal/catalog"
	"github.com/patrickwarner/esimplanner/internal/config"
	"github.com/patrickwarner/esimplanner/internal/db"
	"github.com/patrickwarner/esimplanner/internal/logic/ratelimit"
	"github.com/patrickwarner/esimplanner/internal/models"
	"github.com/patrickwarner/esimplanner/internal/observability"
	"github.com/patrickwarner/esimplanner/internal/planner"

	"go.uber.org/zap"
)

// limiterIdle is how long a client bucket may sit unused before it is swept.
const limiterIdle = 30 * time.Minute

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.TempoEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	metricsRegistry := observability.NewPrometheusRegistry()

	overrides, err := catalog.LoadOverrides(cfg.OverridesFile)
	if err != nil {
		return fmt.Errorf("load overrides: %w", err)
	}

	// A plans file replaces Postgres as the catalog source.
	var source db.PlanSource
	if cfg.PlansFile != "" {
		source = &db.FileSource{PlansFile: cfg.PlansFile, PromoCacheFile: cfg.PromoCacheFile}
		logger.Info("using file catalog", zap.String("plans_file", cfg.PlansFile))
	} else {
		pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
		if err != nil {
			return fmt.Errorf("failed to connect postgres: %w", err)
		}
		defer pg.Close()
		source = pg
	}

	svc := planner.NewService(models.NewInMemoryCatalogStore(), planner.OptionsFromConfig(cfg, overrides), metricsRegistry)
	svc.SetLogger(logger)

	if cfg.ResultCacheEnabled {
		store, err := db.InitRedis(cfg.RedisAddr)
		if err != nil {
			logger.Warn("result cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			defer store.Close()
			svc.SetResultCache(store)
		}
	}

	if cfg.ClickHouseDSN != "" {
		analyticsSvc, err := analytics.InitClickHouse(cfg.ClickHouseDSN, cfg.CHMaxOpenConns, cfg.CHMaxIdleConns, cfg.CHConnMaxLifetime, metricsRegistry)
		if err != nil {
			logger.Warn("run analytics disabled", zap.Error(err))
		} else {
			defer analyticsSvc.Close()
			svc.SetAnalytics(analyticsSvc)
		}
	}

	limiter := ratelimit.NewClientLimiter(ratelimit.Config{
		Capacity:   cfg.RateLimitCapacity,
		RefillRate: cfg.RateLimitRefillRate,
		Enabled:    cfg.RateLimitEnabled,
	}, metricsRegistry)

	srvDeps := api.NewServer(logger, svc, source, overrides, limiter, metricsRegistry, cfg)
	if _, err := srvDeps.Reload(ctx); err != nil {
		return fmt.Errorf("initial catalog load: %w", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      srvDeps.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("eSIM planner running", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	if cfg.ReloadInterval > 0 {
		ticker := time.NewTicker(cfg.ReloadInterval)
		go func() {
			for {
				select {
				case <-ticker.C:
					if _, err := srvDeps.Reload(ctx); err != nil {
						logger.Error("auto reload", zap.Error(err))
					}
					if n := limiter.Sweep(limiterIdle); n > 0 {
						logger.Debug("swept idle rate limit buckets", zap.Int("removed", n))
					}
				case <-ctx.Done():
					ticker.Stop()
					return
				}
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	observability.LogSamplingStats(logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}
