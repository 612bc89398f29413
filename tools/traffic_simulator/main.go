package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickwarner/esimplanner/internal/config"
	"github.com/patrickwarner/esimplanner/internal/db"
	"github.com/patrickwarner/esimplanner/internal/models"
	"github.com/patrickwarner/esimplanner/internal/observability"
	"github.com/patrickwarner/esimplanner/internal/planner"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	server         string
	territoriesCSV string
	maxLegs        int
	maxDays        int
	maxDataMB      float64
	totalReq       int
	conc           int
	duration       time.Duration
	rate           float64
	clients        int
	stats          bool
	flush          bool
	redisAddr      string
	debug          bool
)

var logger *zap.Logger

var httpClient *http.Client

const statsInterval = 5 * time.Second

var (
	countSent        uint64
	countOK          uint64
	countNoSolution  uint64
	countRateLimited uint64
	countErrors      uint64
	latencyTotalMs   uint64
)

func main() {
	flag.StringVar(&server, "server", "http://localhost:8787", "planner base URL")
	flag.StringVar(&territoriesCSV, "territories", "fr,de,it,es,jp,th,us", "comma-separated territories to draw legs from")
	flag.IntVar(&maxLegs, "max-legs", 3, "maximum legs per itinerary")
	flag.IntVar(&maxDays, "max-days", 14, "maximum days per leg")
	flag.Float64Var(&maxDataMB, "max-data-mb", 5000, "maximum data per leg in MB")
	flag.IntVar(&totalReq, "requests", 200, "total requests to send")
	flag.IntVar(&conc, "concurrency", 10, "concurrent requests")
	flag.DurationVar(&duration, "duration", 0, "how long to run traffic (0 to disable)")
	flag.Float64Var(&rate, "rate", 0, "requests per second (0 for unlimited)")
	flag.IntVar(&clients, "clients", 20, "number of distinct client IPs to simulate")
	flag.BoolVar(&stats, "stats", false, "print aggregated stats periodically")
	flag.BoolVar(&flush, "flush", false, "drop cached optimizer results before sending traffic")
	flag.StringVar(&redisAddr, "redis", "", "redis address (defaults to REDIS_ADDR)")
	flag.BoolVar(&debug, "debug", false, "enable verbose debug logs")
	flag.Parse()

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	var err error
	logger, err = observability.InitLoggerWithLevel(level, "traffic-simulator")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	httpClient = &http.Client{
		Timeout: 90 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			MaxConnsPerHost:     50,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	if flush {
		flushResults()
	}

	territories := strings.Split(territoriesCSV, ",")
	for i := range territories {
		territories[i] = strings.TrimSpace(territories[i])
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, conc)
	done := make(chan struct{})

	var interval time.Duration
	if rate > 0 {
		interval = time.Duration(float64(time.Second) / rate)
	}

	start := time.Now()
	next := start

	if stats {
		go func() {
			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					printStats()
				case <-done:
					return
				}
			}
		}()
	}

	for i := 0; ; i++ {
		if totalReq > 0 && i >= totalReq {
			break
		}
		if duration > 0 && time.Since(start) >= duration {
			break
		}
		if interval > 0 {
			if now := time.Now(); now.Before(next) {
				time.Sleep(next.Sub(now))
			}
			next = next.Add(interval)
		}
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			sendOne(randomRequest(territories), fmt.Sprintf("198.51.100.%d", rand.IntN(clients)+1))
		}()
	}

	wg.Wait()
	close(done)
	printStats()
	logger.Info("traffic complete", zap.Duration("elapsed", time.Since(start)))
}

// randomRequest draws a consecutive itinerary of 1..maxLegs legs.
func randomRequest(territories []string) planner.Request {
	n := rand.IntN(maxLegs) + 1
	stops := make([]models.Leg, 0, n)
	for range n {
		days := rand.IntN(maxDays) + 1
		stops = append(stops, models.Leg{
			Territory:      territories[rand.IntN(len(territories))],
			EndDay:         days,
			DataRequiredMB: float64(rand.IntN(int(maxDataMB)) + 1),
		})
	}
	return planner.Request{Legs: models.Sequential(stops...)}
}

func sendOne(body planner.Request, ip string) {
	atomic.AddUint64(&countSent, 1)
	blob, err := json.Marshal(body)
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("marshal error", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/optimize", bytes.NewReader(blob))
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("request build error", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", ip)

	began := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("optimize request error", zap.Error(err))
		return
	}
	bodyBytes, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	atomic.AddUint64(&latencyTotalMs, uint64(time.Since(began).Milliseconds()))
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("read body error", zap.Error(err))
		return
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		atomic.AddUint64(&countRateLimited, 1)
		return
	default:
		atomic.AddUint64(&countErrors, 1)
		logger.Error("unexpected status", zap.Int("status", resp.StatusCode), zap.String("body", strings.TrimSpace(string(bodyBytes))))
		return
	}

	var out planner.Response
	if err := json.Unmarshal(bodyBytes, &out); err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("decode response", zap.Error(err))
		return
	}
	if out.Status == planner.StatusOK {
		atomic.AddUint64(&countOK, 1)
	} else {
		atomic.AddUint64(&countNoSolution, 1)
	}
	logger.Debug("optimize response",
		zap.String("run_id", out.RunID),
		zap.String("status", out.Status),
		zap.Bool("cached", out.Cached),
		zap.Int("solutions", len(out.Solutions)))
}

// flushResults deletes cached optimizer responses so the run measures
// uncached searches.
func flushResults() {
	addr := redisAddr
	if addr == "" {
		addr = config.Load().RedisAddr
	}
	store, err := db.InitRedis(addr)
	if err != nil {
		logger.Fatal("redis connect", zap.Error(err))
	}
	defer store.Close()

	n, err := store.FlushResults(context.Background())
	if err != nil {
		logger.Fatal("flush cached results", zap.Error(err))
	}
	logger.Info("cached results flushed", zap.String("addr", addr), zap.Int("keys_deleted", n))
}

func printStats() {
	sent := atomic.LoadUint64(&countSent)
	var avg float64
	if sent > 0 {
		avg = float64(atomic.LoadUint64(&latencyTotalMs)) / float64(sent)
	}
	logger.Info("traffic stats",
		zap.Uint64("sent", sent),
		zap.Uint64("ok", atomic.LoadUint64(&countOK)),
		zap.Uint64("no_solution", atomic.LoadUint64(&countNoSolution)),
		zap.Uint64("rate_limited", atomic.LoadUint64(&countRateLimited)),
		zap.Uint64("errors", atomic.LoadUint64(&countErrors)),
		zap.Float64("avg_latency_ms", avg))
}
