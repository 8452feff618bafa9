package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures service-level configuration. Values come from the
// environment with development defaults so main stays lean.
type Config struct {
	Addr string

	// Admission tunables.
	MaxInFlight      int           // bound on concurrent batch reservations
	RetryMaxAttempts int           // default attempts for retried enrollment
	RetryBaseDelay   time.Duration // first retry delay; doubles each attempt
	BreakerThreshold int           // consecutive failures before the circuit opens
	BreakerCooldown  time.Duration // how long the circuit stays open

	// Sync tunables.
	SyncChunkSize int           // records per reconciliation chunk
	SyncInterval  time.Duration // base cadence for scheduled sync

	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

// PostgresConfig holds the SQL store connection settings.
type PostgresConfig struct {
	DSN string
}

// RedisConfig holds connection settings for the redis-backed record store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds the notification publisher settings.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:             envString("REGISTRAR_ADDR", ":8080"),
		MaxInFlight:      envInt("REGISTRAR_MAX_IN_FLIGHT", 16),
		RetryMaxAttempts: envInt("REGISTRAR_RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:   envDuration("REGISTRAR_RETRY_BASE_DELAY", 100*time.Millisecond),
		BreakerThreshold: envInt("REGISTRAR_BREAKER_THRESHOLD", 5),
		BreakerCooldown:  envDuration("REGISTRAR_BREAKER_COOLDOWN", 30*time.Second),
		SyncChunkSize:    envInt("REGISTRAR_SYNC_CHUNK_SIZE", 100),
		SyncInterval:     envDuration("REGISTRAR_SYNC_INTERVAL", 5*time.Minute),
		Postgres: PostgresConfig{
			DSN: os.Getenv("REGISTRAR_POSTGRES_DSN"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REGISTRAR_REDIS_URL"),
			PoolSize:     envInt("REGISTRAR_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REGISTRAR_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("REGISTRAR_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REGISTRAR_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REGISTRAR_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(os.Getenv("REGISTRAR_KAFKA_BROKERS")),
			Topic:   envString("REGISTRAR_KAFKA_TOPIC", "registrar.enrollment.events"),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
