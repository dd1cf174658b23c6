package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the messaging services. Everything comes
// from environment variables; a .env file is honored in development.
type Config struct {
	Env string

	APIAddr     string
	GatewayAddr string

	ScyllaHosts    []string
	ScyllaKeyspace string
	RedisAddr      string
	KafkaBrokers   []string
	KafkaTopic     string

	JWTSecret     string
	SnowflakeNode int64

	PresenceCacheTTL time.Duration
	TypingWindow     time.Duration
	HeartbeatTimeout time.Duration
	SweepInterval    time.Duration
}

func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Env:            getEnv("ENV", "development"),
		APIAddr:        getEnv("API_ADDR", ":8081"),
		GatewayAddr:    getEnv("GATEWAY_ADDR", ":8080"),
		ScyllaHosts:    splitList(getEnv("SCYLLA_HOSTS", "localhost:9042")),
		ScyllaKeyspace: getEnv("SCYLLA_KEYSPACE", "messaging"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers:   splitList(getEnv("KAFKA_BROKERS", "localhost:19092")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "chat-events"),
		JWTSecret:      getEnv("JWT_SECRET", "dev_only_secret"),
		SnowflakeNode:  getInt64("SNOWFLAKE_NODE", 1),

		PresenceCacheTTL: getDuration("PRESENCE_CACHE_TTL", 3*time.Second),
		TypingWindow:     getDuration("TYPING_WINDOW", 5*time.Second),
		HeartbeatTimeout: getDuration("HEARTBEAT_TIMEOUT", 2*time.Minute),
		SweepInterval:    getDuration("SWEEP_INTERVAL", 30*time.Second),
	}

	if cfg.Env == "production" && cfg.JWTSecret == "dev_only_secret" {
		panic("JWT_SECRET is required in production")
	}

	return cfg
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
