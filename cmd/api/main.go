// Package main is the entry point for the feed API server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/feedrank/internal/api"
	"github.com/onnwee/feedrank/internal/auth"
	"github.com/onnwee/feedrank/internal/config"
	"github.com/onnwee/feedrank/internal/feed"
	"github.com/onnwee/feedrank/internal/graph"
	"github.com/onnwee/feedrank/internal/health"
	"github.com/onnwee/feedrank/internal/middleware"
	"github.com/onnwee/feedrank/internal/post"
	"github.com/onnwee/feedrank/internal/ranking"
	"github.com/onnwee/feedrank/internal/tracing"
	"github.com/onnwee/feedrank/internal/upstream"
)

const (
	shutdownTimeout     = 10 * time.Second
	startupPingTimeout  = 5 * time.Second
	rateLimitCleanupGap = 5 * time.Minute
)

type metricsRegisterer interface {
	Register(prometheus.Registerer) error
}

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Feedrank API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	env := config.DefaultEnv
	if cfg != nil {
		env = cfg.Env
	}
	logger := middleware.NewLogger(env)
	slog.SetDefault(logger)

	if len(errs) > 0 {
		for _, err := range errs {
			logger.Error("invalid configuration", "error", err)
		}
		os.Exit(1)
	}
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

// run wires dependencies and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	tp, err := tracing.NewProvider(tracing.Config{
		ServiceName:  api.ServiceName,
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: cfg.TracingSampleRate,
		InsecureMode: cfg.Env != "production",
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("tracer shutdown failed", "error", err)
		}
	}()

	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	feedMetrics := feed.NewMetrics()
	httpMetrics := middleware.NewMetrics()
	breakerMetrics := upstream.NewMetrics()
	for _, r := range []metricsRegisterer{feedMetrics, httpMetrics, breakerMetrics} {
		if err := r.Register(reg); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	weights, err := ranking.LoadCalibration(cfg.RankingCalibrationPath)
	if err != nil {
		logger.Warn("using default ranking weights", "error", err)
	}

	graphBreaker := upstream.NewCircuitBreaker(breakerConfig(cfg, "social_graph", logger, breakerMetrics))
	catalogBreaker := upstream.NewCircuitBreaker(breakerConfig(cfg, "content_catalog", logger, breakerMetrics))

	svc := feed.NewService(feed.ServiceConfig{
		Weights: weights,
		Logger:  logger,
		Metrics: feedMetrics,
	},
		upstream.NewGuardedGraph(graph.NewPostgresGraph(db, logger), graphBreaker),
		upstream.NewGuardedCatalog(post.NewPostgresPostRepository(db, logger), catalogBreaker),
	)

	checks := []api.ReadinessCheck{
		{Name: "database", Checker: health.NewDBChecker(db), Critical: true},
		{Name: "social_graph_breaker", Checker: health.NewBreakerChecker(graphBreaker)},
		{Name: "content_catalog_breaker", Checker: health.NewBreakerChecker(catalogBreaker)},
	}

	var rateLimitStore middleware.RateLimitStore
	if cfg.FeedRateLimitPerMinute > 0 {
		store, redisClient, err := newRateLimitStore(cfg.RedisURL, logger, httpMetrics)
		if err != nil {
			return err
		}
		if redisClient != nil {
			defer redisClient.Close()
			checks = append(checks, api.ReadinessCheck{Name: "redis", Checker: health.NewRedisChecker(redisClient)})
		}
		if mem, ok := store.(*middleware.InMemoryRateLimitStore); ok {
			go cleanupLoop(ctx, mem)
		}
		rateLimitStore = store
	}

	handler := api.NewRouter(api.RouterConfig{
		Feed: api.NewFeedHandlers(svc, api.FeedHandlersConfig{
			DefaultPageSize: cfg.FeedDefaultPageSize,
			MaxPageSize:     cfg.FeedMaxPageSize,
			Logger:          logger,
		}),
		Health:         api.NewHealthHandlers(logger, checks...),
		Auth:           auth.NewTokenService(cfg.JWTSecret, cfg.JWTPreviousSecret),
		RateLimitStore: rateLimitStore,
		RateLimit:      middleware.FeedLimit(cfg.FeedRateLimitPerMinute),
		Metrics:        httpMetrics,
		Gatherer:       reg,
		Tracing:        cfg.TracingEnabled,
		Logger:         logger,
	})

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return serve(ctx, newServer(handler), ln, logger)
}

func openDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func breakerConfig(cfg *config.Config, name string, logger *slog.Logger, metrics *upstream.Metrics) upstream.BreakerConfig {
	return upstream.BreakerConfig{
		Name:             name,
		FailureThreshold: uint32(cfg.BreakerFailureThreshold),
		Timeout:          time.Duration(cfg.BreakerOpenTimeoutSeconds) * time.Second,
		Logger:           logger,
		Metrics:          metrics,
	}
}

// newRateLimitStore returns a Redis-backed store when redisURL is set and an
// in-process store otherwise. The Redis client is returned for health checks
// and shutdown.
func newRateLimitStore(redisURL string, logger *slog.Logger, metrics *middleware.Metrics) (middleware.RateLimitStore, *redis.Client, error) {
	if redisURL == "" {
		logger.Warn("REDIS_URL not set, rate limits are per instance")
		return middleware.NewInMemoryRateLimitStore(), nil, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	return middleware.NewRedisRateLimitStore(client, logger, metrics), client, nil
}

func cleanupLoop(ctx context.Context, store *middleware.InMemoryRateLimitStore) {
	ticker := time.NewTicker(rateLimitCleanupGap)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.Cleanup()
		}
	}
}

func newServer(handler http.Handler) *http.Server {
	return &http.Server{
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// serve runs server on ln until ctx is cancelled, then shuts it down
// gracefully, letting in-flight requests finish.
func serve(ctx context.Context, server *http.Server, ln net.Listener, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
