package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env      string
	HTTPPort string

	UpstreamBaseURL string
	UpstreamTimeout time.Duration
	SignatureKey    string
	SignLogin       bool

	RedisAddr    string
	SnapshotTTL  time.Duration
	QueueBackend string

	PageLimit       int
	MaxPages        int
	RateLimitPerMin int

	LogLevel string
}

// Load returns application config populated from environment variables with
// sensible defaults. A .env file is honored when present.
func Load() App {
	_ = godotenv.Load()

	return App{
		Env:             getEnv("APP_ENV", "dev"),
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		UpstreamBaseURL: getEnv("UPSTREAM_BASE_URL", "http://localhost:3536/api"),
		UpstreamTimeout: durationEnv("UPSTREAM_TIMEOUT", 20*time.Second),
		SignatureKey:    getEnv("SIGNATURE_KEY", ""),
		SignLogin:       boolEnv("SIGN_LOGIN", false),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		SnapshotTTL:     durationEnv("SNAPSHOT_TTL", 15*time.Minute),
		QueueBackend:    getEnv("QUEUE_BACKEND", "redis"),
		PageLimit:       intEnv("PAGE_LIMIT", 100),
		MaxPages:        intEnv("MAX_PAGES", 10),
		RateLimitPerMin: intEnv("RATE_LIMIT_PER_MIN", 120),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if val == "1" || val == "true" || val == "TRUE" {
			return true
		}
		if val == "0" || val == "false" || val == "FALSE" {
			return false
		}
		log.Printf("invalid bool for %s, using fallback %v", key, fallback)
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}
