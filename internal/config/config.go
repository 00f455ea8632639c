package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Upstream delivery backend
	BackendURL string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience. MaxRetries stays 0 unless explicitly configured: failed
	// reads recover on the next poll cycle instead.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache (outlet reference data)
	CacheTTL time.Duration

	// Dashboard
	PollInterval time.Duration
	SeenLimit    int

	// Observability
	OTLPEndpoint   string
	TracingEnabled bool

	// Preferences store: memory, file or redis
	KVBackend     string
	KVFile        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Session tokens
	JWTSecret  string
	SessionTTL time.Duration
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		BackendURL: NormalizeBackendURL(getEnv("BACKEND_URL", "http://localhost:5000/api")),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 0),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 16),

		CacheTTL: getEnvDuration("CACHE_TTL", 5*time.Minute),

		PollInterval: getEnvDuration("POLL_INTERVAL", 5*time.Second),
		SeenLimit:    getEnvInt("SEEN_LIMIT", 300),

		OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		TracingEnabled: getEnv("TRACING_ENABLED", "false") == "true",

		KVBackend:     getEnv("KV_BACKEND", "memory"),
		KVFile:        getEnv("KV_FILE", "repartos-prefs.json"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret:  getEnv("JWT_SECRET", "repartos-default-dev-secret-change-me"),
		SessionTTL: getEnvDuration("SESSION_TTL", 12*time.Hour),
	}
}

// NormalizeBackendURL makes sure the base URL ends in /api.
func NormalizeBackendURL(raw string) string {
	if strings.HasSuffix(raw, "/api") {
		return raw
	}
	return strings.TrimRight(raw, "/") + "/api"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
