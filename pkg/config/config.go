package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the companion service and CLI
type Config struct {
	// Server configuration
	Port           string
	Env            string
	AllowedOrigins []string

	// Finary API configuration
	FinaryAPIURL      string
	FinaryTokenFile   string
	APIMaxRetries     int
	APIRetryDelay     time.Duration
	APIRequestTimeout time.Duration
	APIRateLimit      float64
	TokenTimeout      time.Duration

	// Cache store (Redis). Empty URL selects the in-process store.
	RedisURL      string
	RedisPassword string

	// Snapshot history store (PostgreSQL). Empty URL selects the in-process store.
	DatabaseURL string

	// Sync configuration
	SyncPollInterval time.Duration
	HistoryRetention time.Duration
	StrictKeys       bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8787"),
		Env:               getEnv("ENV", "development"),
		AllowedOrigins:    getEnvAsList("ALLOWED_ORIGINS", []string{"chrome-extension://*", "moz-extension://*", "https://app.finary.com"}),
		FinaryAPIURL:      getEnv("FINARY_API_URL", "https://api.finary.com"),
		FinaryTokenFile:   getEnv("FINARY_TOKEN_FILE", ""),
		APIMaxRetries:     getEnvAsInt("API_MAX_RETRIES", 3),
		APIRetryDelay:     getEnvAsDuration("API_RETRY_DELAY", 2*time.Second),
		APIRequestTimeout: getEnvAsDuration("API_REQUEST_TIMEOUT", 30*time.Second),
		APIRateLimit:      getEnvAsFloat("API_RATE_LIMIT", 5),
		TokenTimeout:      getEnvAsDuration("TOKEN_TIMEOUT", 10*time.Second),
		RedisURL:          getEnv("REDIS_URL", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		SyncPollInterval:  getEnvAsDuration("SYNC_POLL_INTERVAL", 0),
		HistoryRetention:  time.Duration(getEnvAsInt("HISTORY_RETENTION_DAYS", 365)) * 24 * time.Hour,
		StrictKeys:        getEnvAsBool("STRICT_KEYS", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures the configuration is usable
func (c *Config) Validate() error {
	u, err := url.Parse(c.FinaryAPIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("FINARY_API_URL must be an absolute URL, got %q", c.FinaryAPIURL)
	}

	if c.APIMaxRetries < 0 {
		return fmt.Errorf("API_MAX_RETRIES must not be negative")
	}

	if c.APIRetryDelay < 0 {
		return fmt.Errorf("API_RETRY_DELAY must not be negative")
	}

	if c.TokenTimeout <= 0 {
		return fmt.Errorf("TOKEN_TIMEOUT must be positive")
	}

	if c.APIRateLimit <= 0 {
		return fmt.Errorf("API_RATE_LIMIT must be positive")
	}

	if c.HistoryRetention <= 0 {
		return fmt.Errorf("HISTORY_RETENTION_DAYS must be positive")
	}

	// A shared Redis is expected in production; the in-process store loses the cache on restart.
	if c.RedisURL == "" && c.IsProduction() {
		return fmt.Errorf("REDIS_URL is required in production")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration strings ("2s", "5m")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
