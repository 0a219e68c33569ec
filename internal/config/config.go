// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Guard defaults
	Mode                   string // "block" or "warn"
	RiskTolerance          string // "strict", "moderate", "permissive"
	EnablePatternDetection bool
	ValidateTransferHooks  bool
	MaxHookAccounts        int
	AllowedHookPrograms    []string // comma-separated base58 program ids

	// Risk oracle
	OracleEnabled         bool
	OracleEndpoint        string
	OracleAPIKey          string
	OracleCacheTTL        time.Duration
	OracleTimeout         time.Duration
	OracleFallbackOnError bool
	RiskThreshold         float64
	EnableComplianceCheck bool

	// Chain watcher (post-hoc screening of confirmed EVM transactions)
	WatcherEnabled      bool
	WatcherRPCURL       string
	WatcherPollInterval time.Duration
	WatcherStartBlock   uint64

	// Security
	APIKeyHash   string // For authenticating SDK clients
	RateLimitRPS int

	// Observability
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultMode            = "block"
	DefaultRiskTolerance   = "moderate"
	DefaultMaxHookAccounts = 20
	DefaultRateLimit       = 100
	DefaultRiskThreshold   = 0.7
	DefaultOracleCacheTTL  = 5 * time.Minute
	DefaultOracleTimeout   = 10 * time.Second

	DefaultWatcherPollInterval = 15 * time.Second
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                   getEnv("PORT", DefaultPort),
		Env:                    getEnv("ENV", DefaultEnv),
		LogLevel:               getEnv("LOG_LEVEL", DefaultLogLevel),
		Mode:                   getEnv("GUARD_MODE", DefaultMode),
		RiskTolerance:          getEnv("RISK_TOLERANCE", DefaultRiskTolerance),
		EnablePatternDetection: getEnvBool("ENABLE_PATTERN_DETECTION", true),
		ValidateTransferHooks:  getEnvBool("VALIDATE_TRANSFER_HOOKS", true),
		MaxHookAccounts:        int(getEnvInt64("MAX_HOOK_ACCOUNTS", DefaultMaxHookAccounts)),
		AllowedHookPrograms:    getEnvList("ALLOWED_HOOK_PROGRAMS"),
		OracleEnabled:          getEnvBool("ORACLE_ENABLED", false),
		OracleEndpoint:         os.Getenv("ORACLE_ENDPOINT"),
		OracleAPIKey:           os.Getenv("ORACLE_API_KEY"),
		OracleCacheTTL:         getEnvDuration("ORACLE_CACHE_TTL", DefaultOracleCacheTTL),
		OracleTimeout:          getEnvDuration("ORACLE_TIMEOUT", DefaultOracleTimeout),
		OracleFallbackOnError:  getEnvBool("ORACLE_FALLBACK_ON_ERROR", true),
		RiskThreshold:          getEnvFloat("RISK_THRESHOLD", DefaultRiskThreshold),
		EnableComplianceCheck:  getEnvBool("ENABLE_COMPLIANCE_CHECK", false),
		WatcherEnabled:         getEnvBool("WATCHER_ENABLED", false),
		WatcherRPCURL:          os.Getenv("WATCHER_RPC_URL"),
		WatcherPollInterval:    getEnvDuration("WATCHER_POLL_INTERVAL", DefaultWatcherPollInterval),
		WatcherStartBlock:      uint64(getEnvInt64("WATCHER_START_BLOCK", 0)),
		APIKeyHash:             os.Getenv("API_KEY_HASH"),
		RateLimitRPS:           int(getEnvInt64("RATE_LIMIT_RPS", int64(DefaultRateLimit))),
		OTLPEndpoint:           os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is coherent
func (c *Config) Validate() error {
	switch c.Mode {
	case "block", "warn":
	default:
		return fmt.Errorf("GUARD_MODE must be \"block\" or \"warn\", got %q", c.Mode)
	}

	switch c.RiskTolerance {
	case "strict", "moderate", "permissive":
	default:
		return fmt.Errorf("RISK_TOLERANCE must be \"strict\", \"moderate\", or \"permissive\", got %q", c.RiskTolerance)
	}

	if c.OracleEnabled && c.OracleEndpoint == "" {
		return fmt.Errorf("ORACLE_ENDPOINT is required when ORACLE_ENABLED is set")
	}

	if c.RiskThreshold < 0 || c.RiskThreshold > 1 {
		return fmt.Errorf("RISK_THRESHOLD must be in [0,1], got %f", c.RiskThreshold)
	}

	if c.WatcherEnabled && c.WatcherRPCURL == "" {
		return fmt.Errorf("WATCHER_RPC_URL is required when WATCHER_ENABLED is set")
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

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
