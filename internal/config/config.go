// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/watch.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Config struct — populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// Web push (VAPID). The public key is optional server-side; it is also
	// what clients fetch to register their own push subscription.
	VAPIDPrivateKey string
	VAPIDPublicKey  string
	VAPIDSubject    string

	// Crawl / ingestion
	CrawlBaseURL     string
	CrawlSource      string
	CrawlConcurrency int
	CrawlTimeout     time.Duration
	CrawlTimebox     time.Duration
	CrawlRPS         float64
	CrawlSample      int
	CrawlSeed        int64

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}

	return &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		VAPIDPrivateKey: envOr("VAPID_PRIVATE_KEY", ""),
		VAPIDPublicKey:  envOr("VAPID_PUBLIC_KEY", ""),
		VAPIDSubject:    envOr("VAPID_SUBJECT", ""),

		CrawlBaseURL:     envOr("CRAWL_BASE_URL", ""),
		CrawlSource:      envOr("CRAWL_SOURCE", "all"),
		CrawlConcurrency: envInt("CRAWL_CONCURRENCY", 5),
		CrawlTimeout:     time.Duration(envFloat("CRAWL_TIMEOUT_SECONDS", 8)) * time.Second,
		CrawlTimebox:     time.Duration(envFloat("CRAWL_TIMEBOX_SECONDS", 55)) * time.Second,
		CrawlRPS:         envFloat("CRAWL_RPS", 10),
		CrawlSample:      envInt("CRAWL_SAMPLE", 0),
		CrawlSeed:        int64(envInt("CRAWL_SEED", 0)),

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,
	}, nil
}

// RequirePush validates the VAPID material needed for server-side sending.
func (c *Config) RequirePush() error {
	if c.VAPIDPrivateKey == "" {
		return fmt.Errorf("VAPID_PRIVATE_KEY must be set")
	}
	if c.VAPIDSubject == "" {
		return fmt.Errorf("VAPID_SUBJECT must be set")
	}
	return nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
