// Package main is the entry point for the API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/vidclass/vidclass/internal/api"
	"github.com/vidclass/vidclass/internal/auth"
	"github.com/vidclass/vidclass/internal/config"
	"github.com/vidclass/vidclass/internal/db"
	"github.com/vidclass/vidclass/internal/health"
	"github.com/vidclass/vidclass/internal/idempotency"
	"github.com/vidclass/vidclass/internal/middleware"
	"github.com/vidclass/vidclass/internal/tracing"
	"github.com/vidclass/vidclass/internal/watch"
)

const serviceName = "vidclass-api"

func main() {
	help := flag.Bool("help", false, "display help message")
	configFile := flag.String("config", "", "path to optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("Vidclass API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configFile)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	// Initialize logger
	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	// Initialize tracing (no-op provider when disabled)
	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  serviceName,
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.TracingOTLPEndpoint,
		SamplingRate: cfg.TracingSampleRate,
		InsecureMode: cfg.TracingInsecure,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			logger.Error("failed to shut down tracer provider", "error", err)
		}
	}()

	// Open the database pool. Opening does not dial, so ping to surface
	// connectivity problems early; the readiness probe keeps watching it.
	pool, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := pool.PingContext(pingCtx); err != nil {
		logger.Warn("database unreachable at startup", "error", err)
	}
	pingCancel()

	// Redis is optional; without it stats are computed fresh on every request.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	watchMetrics := watch.NewMetrics()
	httpMetrics := middleware.NewMetrics()

	registry := prometheus.NewRegistry()
	if err := watchMetrics.Register(registry); err != nil {
		logger.Error("failed to register watch metrics", "error", err)
		os.Exit(1)
	}
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register http metrics", "error", err)
		os.Exit(1)
	}

	engine, err := watch.NewEngine(watch.Config{
		Levels:     watch.LevelTable(cfg.LevelThresholds),
		MinWatched: time.Duration(cfg.MinWatchedMs) * time.Millisecond,
		Metrics:    watchMetrics,
	})
	if err != nil {
		logger.Error("failed to create stats engine", "error", err)
		os.Exit(1)
	}

	repo := watch.NewPostgresEventRepository(pool, logger)

	var statsCache *watch.StatsCache
	if redisClient != nil {
		statsCache = watch.NewStatsCache(redisClient, time.Duration(cfg.StatsCacheTTLSeconds)*time.Second, logger)
	}

	jwtService := auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTPreviousSecret)

	deps := routerDeps{
		watchHandlers: api.NewWatchHandlers(repo, engine, statsCache),
		healthHandlers: api.NewHealthHandlers(api.HealthHandlersConfig{
			DBChecker:    health.NewDBChecker(pool),
			RedisChecker: redisChecker(redisClient),
		}),
		requireAuth: auth.RequireAuth(jwtService),
		metrics:     registry,
	}
	mux := newRouter(deps)

	// Idempotency makes retried event submissions safe. Keys are held in
	// memory and expired by a background job.
	idemRepo := idempotency.NewInMemoryRepository()
	stopCleanup := make(chan struct{})
	defer close(stopCleanup)
	go idempotency.RunPeriodicCleanup(idemRepo, time.Hour, idempotency.DefaultExpiry, stopCleanup)

	// Apply middleware: RequestID -> Tracing -> Logging -> HTTPMetrics -> Idempotency
	var handler http.Handler = middleware.Idempotency(idemRepo, map[string]bool{"/watch/events": true})(mux)
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	if cfg.TracingEnabled {
		handler = middleware.Tracing(serviceName)(handler)
	}
	handler = middleware.RequestID(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// redisChecker returns a health checker for the client, or nil when Redis is
// not configured so readiness reports it as ok.
func redisChecker(client *redis.Client) api.HealthChecker {
	if client == nil {
		return nil
	}
	return health.NewRedisChecker(client)
}

// routerDeps carries the wired handlers the router needs.
type routerDeps struct {
	watchHandlers  *api.WatchHandlers
	healthHandlers *api.HealthHandlers
	requireAuth    func(http.Handler) http.Handler
	metrics        *prometheus.Registry
}

// newRouter builds the route table. Authenticated routes are wrapped with
// the auth middleware; probes and metrics stay public.
func newRouter(deps routerDeps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", deps.healthHandlers.Health)
	mux.HandleFunc("/ready", deps.healthHandlers.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(deps.metrics, promhttp.HandlerOpts{}))

	mux.Handle("/users/me/stats", deps.requireAuth(http.HandlerFunc(deps.watchHandlers.GetMyStats)))
	mux.Handle("/watch/events", deps.requireAuth(http.HandlerFunc(deps.watchHandlers.RecordEvent)))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Only handle exact root path, everything else returns 404
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
			api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"vidclass-api","version":"0.1.0"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	return mux
}
