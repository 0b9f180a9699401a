package http

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/geocoder89/jobqueue/internal/auth"
	"github.com/geocoder89/jobqueue/internal/cache"
	"github.com/geocoder89/jobqueue/internal/config"
	"github.com/geocoder89/jobqueue/internal/http/handlers"
	"github.com/geocoder89/jobqueue/internal/http/middlewares"
	"github.com/geocoder89/jobqueue/internal/observability"
	"github.com/geocoder89/jobqueue/internal/queue"
	"github.com/geocoder89/jobqueue/internal/queue/redisclient"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelgin "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// NewRouter assembles the admin HTTP surface: a thin operator console
// over the queue runtime (list queues, enqueue demo commands, cancel
// by tracking id), guarded by a single-operator bearer token.
// Grounded on the teacher's internal/http/router.go, trimmed from the
// full conference-registration API down to this operator console.
func NewRouter(log *slog.Logger, pool *pgxpool.Pool, redis *redisclient.Client, registry *queue.Registry, prom *observability.Prom, cfg config.Config) *gin.Engine {
	if os.Getenv("APP_ENV") != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("jobqueue-api"))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(middlewares.CORSMiddleware([]string{"http://localhost:3000"}))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.MaxBodyBytes(1 << 20)) // 1MB max body
	r.Use(middlewares.RequireJSON())
	if prom != nil {
		r.Use(prom.GinHandleMiddleware())
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	readyCache := cache.New(2 * time.Second)
	const readyCacheKey = "readyz"

	readyCheck := func() error {
		if cached, ok := readyCache.Get(readyCacheKey); ok {
			if cached == nil {
				return nil
			}
			return cached.(error)
		}

		err := probeDependencies(pool, redis)
		readyCache.Set(readyCacheKey, err)
		return err
	}

	healthHandler := handlers.NewHealthHandler(readyCheck)
	queuesHandler := handlers.NewQueuesHandler(registry)

	jwtManager := auth.NewManager(cfg.JWTSecret, cfg.JWTAccessTTL)
	authHandler := handlers.NewAuthHandler(cfg.OperatorUsername, cfg.OperatorPasswordHash, jwtManager)
	authMiddleware := middlewares.NewAuthMiddleware(jwtManager)

	loginLimiter := middlewares.NewRateLimiter(5, 1*time.Minute)
	mutationLimiter := middlewares.NewRateLimiter(30, 1*time.Minute)

	// public routes
	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/readyz", healthHandler.Readyz)
	r.POST("/login", loginLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.Login)

	// authenticated operator console
	admin := r.Group("/")
	admin.Use(authMiddleware.RequireAuth())

	{
		admin.GET("/queues", queuesHandler.ListQueues)
		admin.POST("/queues/notify/enqueue",
			mutationLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP), queuesHandler.EnqueueNotification)
		admin.POST("/queues/publish-event/enqueue",
			mutationLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP), queuesHandler.EnqueuePublishEvent)
		admin.POST("/queues/:commandType/cancel",
			mutationLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP), queuesHandler.CancelByCommandType)
	}

	return r
}

func probeDependencies(pool *pgxpool.Pool, redis *redisclient.Client) error {
	if pool != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			return err
		}
	}

	if redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := redis.Ping(ctx); err != nil {
			return err
		}
	}

	return nil
}
