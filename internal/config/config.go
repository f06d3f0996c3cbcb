package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Port                  string
	WebhookSecret         string
	WebhookPath           string
	SignatureAlgorithm    string
	EventHeader           string
	DeliveryHeader        string
	MaxBodyBytes          int64
	MaxConcurrentHandlers int64
	HandlerTimeout        time.Duration
	ShutdownTimeout       time.Duration
	DedupTTL              time.Duration
	HandlerRateLimit      int
	HandlerRateWindow     time.Duration
	DatabaseURL           string
	RedisURL              string
	LogLevel              slog.Level
}

// Load reads configuration from environment variables. A missing webhook
// secret is an error: the endpoint must never run unauthenticated.
func Load() (*Config, error) {
	secret := getEnv("GITHUB_WEBHOOK_SECRET", "")
	if secret == "" {
		return nil, fmt.Errorf("GITHUB_WEBHOOK_SECRET is required")
	}

	path := getEnv("WEBHOOK_PATH", "/github")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	return &Config{
		Port:                  getEnv("PORT", "8080"),
		WebhookSecret:         secret,
		WebhookPath:           path,
		SignatureAlgorithm:    getEnv("SIGNATURE_ALGORITHM", "sha1"),
		EventHeader:           getEnv("EVENT_HEADER", "X-GitHub-Event"),
		DeliveryHeader:        getEnv("DELIVERY_HEADER", "X-GitHub-Delivery"),
		MaxBodyBytes:          int64(getEnvInt("MAX_BODY_BYTES", 25<<20)),
		MaxConcurrentHandlers: int64(getEnvInt("MAX_CONCURRENT_HANDLERS", 256)),
		HandlerTimeout:        getEnvDuration("HANDLER_TIMEOUT", 60*time.Second),
		ShutdownTimeout:       getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		DedupTTL:              getEnvDuration("DEDUP_TTL", 24*time.Hour),
		HandlerRateLimit:      getEnvInt("HANDLER_RATE_LIMIT", 0),
		HandlerRateWindow:     getEnvDuration("HANDLER_RATE_WINDOW", time.Second),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", ""),
		LogLevel:              level,
	}, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}
