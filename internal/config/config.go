// Package config handles loading and validating configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the surveillance engine.
// Everything is immutable for the process lifetime except the watched and
// elevated address sets, which grow at runtime via cluster promotion.
type Config struct {
	// Hyperliquid API
	APIURL         string
	WSURL          string
	RequestTimeout time.Duration

	// Scanning
	PollInterval     time.Duration
	Lookback         time.Duration
	ElevatedLookback time.Duration
	WorkerCount      int

	// Address seeds
	WatchAddresses    []string
	ElevatedAddresses []string

	// Per-address thresholds
	DepositThresholdUSD float64
	ShortThresholdUSD   float64

	// Cluster detection
	ClusterEnabled       bool
	ClusterWindowMinutes int
	ClusterMinScore      int
	ClusterMinNotional   float64
	MarketMinTradeSize   float64

	// Alerting
	WebhookURL          string
	WebhookTarget       string // "slack" or "discord"
	MaxFindingsPerAlert int
	StatusInterval      time.Duration

	// Live feed
	EnableLiveFeed bool

	// Database
	DBPath string

	// Admin HTTP
	AdminPort int

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables with fallback to .env file.
// Priority order: Environment variables > .env file > hardcoded defaults
func Load() (*Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		// Hyperliquid
		APIURL:         getEnv("HYPERLIQUID_API", "https://api.hyperliquid.xyz/info"),
		WSURL:          getEnv("HYPERLIQUID_WS_URL", "wss://api.hyperliquid.xyz/ws"),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 10)) * time.Second,

		// Scanning
		PollInterval:     time.Duration(getEnvInt("POLL_SECONDS", 30)) * time.Second,
		Lookback:         time.Duration(getEnvInt("LOOKBACK_MINUTES", 10)) * time.Minute,
		ElevatedLookback: time.Duration(getEnvInt("ELEVATED_LOOKBACK_HOURS", 48)) * time.Hour,
		WorkerCount:      getEnvInt("WORKER_COUNT", 4),

		// Addresses
		WatchAddresses:    getEnvList("WATCH_ADDRESSES"),
		ElevatedAddresses: lowerAll(getEnvList("ELEVATED_ADDRESSES")),

		// Thresholds
		DepositThresholdUSD: getEnvFloat("USD_DEPOSIT_THRESHOLD", 20_000_000),
		ShortThresholdUSD:   getEnvFloat("USD_SHORT_THRESHOLD", 25_000_000),

		// Cluster detection
		ClusterEnabled:       getEnvBool("CLUSTER_DETECTION_ENABLED", true),
		ClusterWindowMinutes: getEnvInt("CLUSTER_TIME_WINDOW_MINUTES", 60),
		ClusterMinScore:      getEnvInt("CLUSTER_MIN_SCORE", 70),
		ClusterMinNotional:   getEnvFloat("CLUSTER_MIN_NOTIONAL", 50_000_000),
		MarketMinTradeSize:   getEnvFloat("MARKET_MIN_TRADE_SIZE", 5_000_000),

		// Alerting
		WebhookURL:          getEnv("WEBHOOK_URL", ""),
		WebhookTarget:       strings.ToLower(getEnv("WEBHOOK_TARGET", "slack")),
		MaxFindingsPerAlert: getEnvInt("MAX_FINDINGS_PER_ALERT", 10),
		StatusInterval:      time.Duration(getEnvInt("STATUS_REPORT_HOURS", 2)) * time.Hour,

		// Live feed
		EnableLiveFeed: getEnvBool("ENABLE_LIVE_FEED", false),

		// Database
		DBPath: getEnv("DB_PATH", "./data/engine.db"),

		// Admin
		AdminPort: getEnvInt("ADMIN_PORT", 8080),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set and valid.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("HYPERLIQUID_API is required")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_SECONDS must be positive")
	}

	if c.DepositThresholdUSD <= 0 {
		return fmt.Errorf("USD_DEPOSIT_THRESHOLD must be positive")
	}

	if c.ShortThresholdUSD <= 0 {
		return fmt.Errorf("USD_SHORT_THRESHOLD must be positive")
	}

	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}

	if c.ClusterMinScore < 0 || c.ClusterMinScore > 100 {
		return fmt.Errorf("CLUSTER_MIN_SCORE must be between 0 and 100")
	}

	if c.WebhookTarget != "slack" && c.WebhookTarget != "discord" {
		return fmt.Errorf("WEBHOOK_TARGET must be \"slack\" or \"discord\"")
	}

	if c.AdminPort < 1 || c.AdminPort > 65535 {
		return fmt.Errorf("ADMIN_PORT must be between 1 and 65535")
	}

	return nil
}

// MaskedWebhook returns the webhook URL with most characters hidden for logging.
func (c *Config) MaskedWebhook() string {
	return maskSecret(c.WebhookURL)
}

// maskSecret hides all but the first and last 4 characters of a secret.
func maskSecret(s string) string {
	if len(s) <= 8 {
		if len(s) == 0 {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer or returns a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat retrieves an environment variable as a float64 or returns a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean or returns a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvList retrieves a comma-separated environment variable as a slice,
// trimming whitespace and dropping empty entries.
func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// lowerAll lowercases every entry. Elevated addresses compare case-insensitively.
func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(v))
	}
	return out
}
