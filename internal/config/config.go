package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"
)


type Config struct {
	Env   string
	Port  int
	DBURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Queue runtime knobs — defaults applied by queue.Instance.SetLimits
	// itself when zero, but surfaced here so an operator can override
	// them per process without touching code.
	QueueConcurrency    int
	QueueExecTimeLimit  time.Duration
	QueueSemWaitLimit   time.Duration
	QueueStorageBackoff time.Duration

	// Single-operator admin auth (internal/auth, internal/security),
	// trimmed down from the teacher's multi-user system: one bearer
	// credential seeded at startup, no signup flow.
	JWTSecret          string
	JWTAccessTTL       time.Duration
	OperatorUsername   string
	OperatorPasswordHash string
}

func Load() Config {
	env := getEnv("APP_ENV", "dev")
	port := getEnvInt("PORT", 8080)
	dbURL := buildDBURL()

	return Config{
		Env:       env,
		Port:      port,
		DBURL:     dbURL,
		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		QueueConcurrency:    getEnvInt("QUEUE_CONCURRENCY", 4),
		QueueExecTimeLimit:  getEnvDuration("QUEUE_EXEC_TIME_LIMIT", 0),
		QueueSemWaitLimit:   getEnvDuration("QUEUE_SEM_WAIT_LIMIT", 60*time.Second),
		QueueStorageBackoff: getEnvDuration("QUEUE_STORAGE_BACKOFF", 5*time.Second),

		JWTSecret:            getEnv("JWT_SECRET", "dev-insecure-secret-change-me"),
		JWTAccessTTL:         getEnvDuration("JWT_ACCESS_TTL", 12*time.Hour),
		OperatorUsername:     getEnv("OPERATOR_USERNAME", "admin"),
		OperatorPasswordHash: getEnv("OPERATOR_PASSWORD_HASH", ""),
	}
}

func buildDBURL() string {
	host := getEnv("DB_HOST","127.0.0.1")
	port := getEnv("DB_PORT","5432")
	user := getEnv("DB_USER","eventhub")
	pass := getEnv("DB_PASSWORD","eventhub")
	name := getEnv("DB_NAME", "eventhub")
	ssl := getEnv("DB_SSLMODE", "disable")


	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration)(context.Context, context.CancelFunc){
	return context.WithTimeout(context.Background(),duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			fmt.Println(err)
		}

		return num
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		fmt.Println(err)
		return fallback
	}
	return d
}