package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "TASKTRAIL_"

// Config holds process-wide settings for the API and migration binaries.
type Config struct {
	HTTPAddr     string
	GRPCAddr     string
	PostgresDSN  string
	AuthSecret   string
	TokenTTL     time.Duration
	TokenIssuer  string
	RedisURL     string
	RateBurst    int
	RatePerSec   int
	MaxBodyBytes int64
	RolesFile    string
	LogLevel     string

	// AuditStatsSchedule is a cron spec for refreshing the audit volume gauge.
	AuditStatsSchedule string

	// TraceSampleRatio is the share of requests traced. Zero disables tracing.
	TraceSampleRatio float64

	// TrustedProxies may set X-Forwarded-For. Empty means the peer address
	// is always the client.
	TrustedProxies []string
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (*Config, error) {
	if err := LoadEnv(files...); err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:           getEnv("GRPC_ADDR", ":9090"),
		PostgresDSN:        getEnv("PG_DSN", ""),
		AuthSecret:         getEnv("AUTH_SECRET", ""),
		TokenTTL:           getEnvDuration("TOKEN_TTL", 24*time.Hour),
		TokenIssuer:        getEnv("TOKEN_ISSUER", "tasktrail"),
		RedisURL:           getEnv("REDIS_URL", ""),
		RateBurst:          getEnvInt("RATE_BURST", 20),
		RatePerSec:         getEnvInt("RATE_PER_SEC", 10),
		MaxBodyBytes:       int64(getEnvInt("MAX_BODY_BYTES", 1<<20)),
		RolesFile:          getEnv("ROLES_FILE", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		AuditStatsSchedule: getEnv("AUDIT_STATS_SCHEDULE", "@every 5m"),
		TraceSampleRatio:   getEnvFloat("TRACE_SAMPLE_RATIO", 0),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv reads optional .env files (default ".env") into the environment
// without building or validating a Config.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

// DatabaseDSN returns the configured PostgreSQL DSN, if any.
func DatabaseDSN() string {
	return getEnv("PG_DSN", "")
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.AuthSecret) == "" {
		problems = append(problems, envPrefix+"AUTH_SECRET is required")
	} else if len(c.AuthSecret) < 16 {
		problems = append(problems, envPrefix+"AUTH_SECRET must be at least 16 characters")
	}
	if c.TokenTTL <= 0 {
		problems = append(problems, envPrefix+"TOKEN_TTL must be positive")
	}
	if c.RateBurst <= 0 || c.RatePerSec <= 0 {
		problems = append(problems, "rate limit burst and rate must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		problems = append(problems, envPrefix+"MAX_BODY_BYTES must be positive")
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		problems = append(problems, envPrefix+"TRACE_SAMPLE_RATIO must be between 0 and 1")
	}
	if strings.TrimSpace(c.HTTPAddr) == "" {
		problems = append(problems, envPrefix+"HTTP_ADDR is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
