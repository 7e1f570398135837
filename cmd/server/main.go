// Command server runs the governance control plane: REST API, background
// snapshot collector and health probes in one process.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/streamgov/streamgov-backend/internal/api/middleware"
	"github.com/streamgov/streamgov-backend/internal/api/rest"
	"github.com/streamgov/streamgov-backend/internal/audit"
	"github.com/streamgov/streamgov-backend/internal/collector"
	"github.com/streamgov/streamgov-backend/internal/config"
	"github.com/streamgov/streamgov-backend/internal/connmgr"
	"github.com/streamgov/streamgov-backend/internal/events"
	"github.com/streamgov/streamgov-backend/internal/kafka"
	"github.com/streamgov/streamgov-backend/internal/pkg/logger"
	"github.com/streamgov/streamgov-backend/internal/pkg/tracing"
	"github.com/streamgov/streamgov-backend/internal/planner"
	"github.com/streamgov/streamgov-backend/internal/policy"
	"github.com/streamgov/streamgov-backend/internal/repository"
	"github.com/streamgov/streamgov-backend/migrations"
)

const serviceName = "streamgov-backend"

// backingStore is what main needs beyond the data-access surface: schema
// bootstrap and the readiness probe.
type backingStore interface {
	repository.Store
	RunMigrations(migrationSQL string) error
	Ping(ctx context.Context) error
}

func main() {
	log := logger.StdLogger()

	cfg, err := config.Load()
	if err != nil {
		log.Error("configuration is invalid", "error", err)
		os.Exit(1)
	}
	log.Info("configuration loaded", "port", cfg.Port, "database_driver", cfg.DatabaseDriver)

	store, err := openStore(cfg)
	if err != nil {
		log.Error("store initialization failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ddl, err := migrations.FS.ReadFile("001_initial_schema.sql")
	if err != nil {
		log.Error("reading embedded migrations failed", "error", err)
		os.Exit(1)
	}
	if err := store.RunMigrations(string(ddl)); err != nil {
		log.Error("running migrations failed", "error", err)
		os.Exit(1)
	}

	shutdownTracing, err := tracing.Init(serviceName, cfg.TracingEndpoint, cfg.TracingSampleRate)
	if err != nil {
		log.Error("tracing initialization failed", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing()

	conns := connmgr.New(store, kafka.Options{
		AdminTimeout: time.Duration(cfg.KafkaAdminTimeoutSec) * time.Second,
		ApplyTimeout: time.Duration(cfg.KafkaApplyTimeoutSec) * time.Second,
		RateLimit:    cfg.KafkaRateLimitPerSec,
		RateBurst:    cfg.KafkaRateLimitBurst,
	})
	defer conns.ClearAll()

	engine := policy.NewEngine()
	engine.RequireOwner = cfg.RequireOwner
	engine.FailClosed = cfg.PolicyFailClosed
	if len(cfg.KnownTeams) > 0 {
		engine.KnownTeams = make(map[string]struct{}, len(cfg.KnownTeams))
		for _, team := range cfg.KnownTeams {
			engine.KnownTeams[team] = struct{}{}
		}
	}

	auditWriter := audit.NewWriter(store, log)
	bus := events.NewBus(log)
	bus.Subscribe(events.LogHandler(log))
	pl := planner.New(engine, store, store, log)
	applier := planner.NewApplier(store, store, store, auditWriter, bus, log)

	// A typed nil *redis.Client would look non-nil behind the interface, so
	// the variable stays an untouched interface when no URL is configured.
	var rdb redis.UniversalClient
	if cfg.RedisURL != "" {
		client, err := redisClient(cfg.RedisURL)
		if err != nil {
			log.Error("redis configuration is invalid", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		rdb = client
	}

	col := collector.New(conns, store, store, rdb, collector.Options{
		MemoryTTL: time.Duration(cfg.SnapshotMemoryTTLSec) * time.Second,
		RedisTTL:  time.Duration(cfg.SnapshotRedisTTLSec) * time.Second,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.CollectorIntervalSec > 0 {
		retentionDays := cfg.SnapshotRetentionHours / 24
		go col.Run(ctx, time.Duration(cfg.CollectorIntervalSec)*time.Second, retentionDays)
	}

	router := mux.NewRouter()
	healthz := rest.NewHealthzHandler(store)
	router.HandleFunc("/healthz/live", healthz.Live).Methods("GET")
	router.HandleFunc("/healthz/ready", healthz.Ready).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	handler := rest.NewHandler(store, conns, pl, applier, col, int64(cfg.MaxUploadBytes), log)
	handler.Routes(api)

	router.Use(middleware.RequestID)
	router.Use(middleware.StructuredLog)
	router.Use(middleware.Recovery(log))
	router.Use(middleware.MaxBodySize(middleware.DefaultStandardMaxBodyBytes, middleware.DefaultBatchMaxBodyBytes))
	if cfg.TracingEndpoint != "" {
		router.Use(middleware.Tracing)
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Actor", "X-Request-ID"},
		AllowCredentials: true,
	}).Handler(router)

	requestTimeout := time.Duration(cfg.RequestTimeoutSec) * time.Second
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      corsHandler,
		ReadTimeout:  requestTimeout,
		WriteTimeout: requestTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ShutdownTimeoutSec)*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", "error", err)
	}
	log.Info("server stopped")
}

func openStore(cfg *config.Config) (backingStore, error) {
	switch cfg.DatabaseDriver {
	case "postgres":
		return repository.NewPostgresStore(cfg.DatabaseDSN)
	default:
		return repository.NewSQLiteStore(cfg.DatabasePath)
	}
}

// redisClient builds the optional warm-cache client; empty URL disables it.
func redisClient(url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis_url: %w", err)
	}
	return redis.NewClient(opts), nil
}
