package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/jobqueue/internal/commands"
	"github.com/geocoder89/jobqueue/internal/config"
	"github.com/geocoder89/jobqueue/internal/db"
	httpx "github.com/geocoder89/jobqueue/internal/http"
	"github.com/geocoder89/jobqueue/internal/notifications"
	"github.com/geocoder89/jobqueue/internal/observability"
	"github.com/geocoder89/jobqueue/internal/queue"
	"github.com/geocoder89/jobqueue/internal/queue/postgres"
	"github.com/geocoder89/jobqueue/internal/queue/redisclient"
	"github.com/geocoder89/jobqueue/internal/security"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

// cmd/api is the producer process: it serves the admin HTTP console
// and registers the queue instances so operators can enqueue/cancel
// work, but never calls SetLimits — per spec_full's multi-process
// deployment note, an "api" process registers without draining, while
// a separate cmd/queueworker process is the one that drains.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := observability.NewLogger(cfg.Env)

	shutdownTracer, err := observability.InitTracer(ctx, "jobqueue-api", os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	pool, err := db.NewPool(cfg.DBURL)
	if err != nil {
		log.Error("db connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	redis := redisclient.New(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redis.Close()

	if cfg.OperatorPasswordHash == "" {
		hash, hashErr := security.HashPassword(getOrDefault("OPERATOR_PASSWORD", "changeme"))
		if hashErr != nil {
			log.Error("failed to seed operator credential", "err", hashErr)
			os.Exit(1)
		}
		cfg.OperatorPasswordHash = hash
		log.Warn("no OPERATOR_PASSWORD_HASH configured; seeded a dev-only operator credential",
			"username", cfg.OperatorUsername)
	}

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)
	queueMetrics := observability.NewQueueMetrics(prom)

	registry := queue.NewRegistry()
	jobsProvider := postgres.NewJobsProvider(pool, prom)

	notifyInstance, publishInstance := commands.NewInstances(jobsProvider, queueMetrics, registry.Cancellations(), ctx)
	commands.Register(registry, notifyInstance, publishInstance)

	// The demo command handlers resolve their side effects from
	// package state set at startup — see internal/commands.
	commands.SetNotifier(notifications.NewProtectedNotifier(notifications.NewLogNotifier(), notifications.ProtectedNotifierConfig{}))
	commands.SetEventPublisher(commands.NewInMemoryEventPublisher())

	router := httpx.NewRouter(log, pool, redis, registry, prom, cfg)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownContext, cancelFunc := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelFunc()

	if err := srv.Shutdown(shutdownContext); err != nil {
		log.Error("server graceful shutdown failed", "err", err)
		_ = srv.Close()
	} else {
		log.Info("server stopped gracefully.")
	}
}

func getOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
