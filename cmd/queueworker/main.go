package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/geocoder89/jobqueue/internal/commands"
	"github.com/geocoder89/jobqueue/internal/config"
	"github.com/geocoder89/jobqueue/internal/db"
	"github.com/geocoder89/jobqueue/internal/notifications"
	"github.com/geocoder89/jobqueue/internal/observability"
	"github.com/geocoder89/jobqueue/internal/queue"
	"github.com/geocoder89/jobqueue/internal/queue/postgres"
	"github.com/geocoder89/jobqueue/internal/queue/redisclient"
	"github.com/geocoder89/jobqueue/internal/subscriber"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// cmd/queueworker is the consumer process: it builds the same queue
// instances as cmd/api against the same queue names (so queue ids,
// being a deterministic hash of the name, line up across processes),
// then calls SetLimits to actually start draining them. It also runs
// the event subscriber pipeline's producer/consumer tasks. cmd/api
// never does either — per spec_full's multi-process deployment note,
// registering and draining are deliberately split across processes.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, "jobqueue-worker", os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "otel init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	log := observability.NewLogger(cfg.Env)

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

	queue.SetStorageBackoff(cfg.QueueStorageBackoff)

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)
	queueMetrics := observability.NewQueueMetrics(prom)

	registry := queue.NewRegistry()
	jobsProvider := postgres.NewJobsProvider(pool, prom)

	notifyInstance, publishInstance := commands.NewInstances(jobsProvider, queueMetrics, registry.Cancellations(), ctx)
	commands.Register(registry, notifyInstance, publishInstance)

	limits := queue.Config{
		ConcurrencyLimit:   cfg.QueueConcurrency,
		ExecutionTimeLimit: cfg.QueueExecTimeLimit,
		SemWaitLimit:       cfg.QueueSemWaitLimit,
	}
	notifyInstance.SetLogger(log)
	publishInstance.SetLogger(log)
	notifyInstance.SetLimits(limits)
	publishInstance.SetLimits(limits)

	commands.SetNotifier(notifications.NewProtectedNotifier(notifications.NewLogNotifier(), notifications.ProtectedNotifierConfig{
		Timeout:          2 * time.Second,
		FailureThreshold: 3,
		Cooldown:         15 * time.Second,
		HalfOpenMaxCalls: 1,
	}))
	commands.SetEventPublisher(commands.NewInMemoryEventPublisher())

	host, _ := os.Hostname()
	workerID := host + "-" + strconv.Itoa(os.Getpid())

	eventsProvider := postgres.NewEventsProvider(pool, prom)
	transport := subscriber.NewRedisTransport(redis.Raw(), "domain-events")
	handlerFactory := commands.NewLogEventHandlerFactory(log)

	pipeline := subscriber.New(workerID, "log-event-handler", "domain-events", "domain.event", transport, eventsProvider, handlerFactory)
	pipeline.SetLogger(log)
	pipeline.Run(ctx)

	healthAddr := os.Getenv("WORKER_HEALTH_ADDR")
	if healthAddr == "" {
		healthAddr = ":8081"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              healthAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("queueworker.start", "worker_id", workerID, "health_addr", healthAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("queueworker.health_server_failed", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("queueworker.shutdown_signal_received")

	shutdownContext, cancelFunc := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelFunc()
	_ = srv.Shutdown(shutdownContext)

	log.Info("queueworker.shutdown_complete")
}
