package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Gateway   GatewayConfig
	Secrets   SecretsConfig
	Telemetry TelemetryConfig
	Sweep     SweepConfig
	Logger    LoggerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int
	Host        string
	MetricsPort int
	// BaseURL is this deployment's public URL; redirect and webhook
	// callback URLs are derived from it
	BaseURL string
	// ShopURL is where buyers land after redirect handling
	ShopURL string
	// CronSecret authenticates scheduler-triggered endpoints
	CronSecret string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// GatewayConfig holds BNPL gateway configuration
type GatewayConfig struct {
	BaseURL       string // Base URL for the gateway API (e.g., https://api.tabby.ai/api/)
	SecretKey     string // Bearer credential, sk_[test_]... format
	PublicKey     string // Publishable key, pk_[test_]... format
	SecretKeyPath string // Optional secret-manager path overriding SecretKey
	Timeout       int    // Request timeout in seconds (default: 10)
	ManualCapture bool   // When false, authorized payments are captured immediately
	// EnabledCurrencies limits webhook registration; empty means all
	// supported currencies
	EnabledCurrencies []string
	// RegisterWebhooks controls webhook registration at startup
	RegisterWebhooks bool
}

// SecretsConfig selects the secret-manager backend used when the gateway
// secret key is referenced by path instead of inlined
type SecretsConfig struct {
	Backend      string // "aws", "vault" or "local"
	AWSRegion    string
	VaultAddress string
	VaultToken   string
	LocalPath    string
}

// TelemetryConfig holds the external telemetry sink configuration
type TelemetryConfig struct {
	IntakeURL string // Empty disables the sink
	APIKey    string
	Service   string
	Env       string
}

// SweepConfig holds the pending-transaction sweep configuration
type SweepConfig struct {
	Interval time.Duration // how often the sweep runs
	Window   time.Duration // only transactions younger than this are polled
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnvAsInt("SERVER_PORT", 8080),
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			MetricsPort: getEnvAsInt("METRICS_PORT", 9090),
			BaseURL:     getEnv("SERVER_BASE_URL", "http://localhost:8080"),
			ShopURL:     getEnv("SHOP_URL", "/shop"),
			CronSecret:  getEnv("CRON_SECRET", ""),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "bnpl_service"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		},
		Gateway: GatewayConfig{
			BaseURL:           getEnv("GATEWAY_BASE_URL", "https://api.tabby.ai/api/"),
			SecretKey:         getEnv("GATEWAY_SECRET_KEY", ""),
			PublicKey:         getEnv("GATEWAY_PUBLIC_KEY", ""),
			SecretKeyPath:     getEnv("GATEWAY_SECRET_KEY_PATH", ""),
			Timeout:           getEnvAsInt("GATEWAY_TIMEOUT", 10),
			ManualCapture:     getEnvAsBool("GATEWAY_MANUAL_CAPTURE", false),
			EnabledCurrencies: getEnvAsList("GATEWAY_ENABLED_CURRENCIES"),
			RegisterWebhooks:  getEnvAsBool("GATEWAY_REGISTER_WEBHOOKS", false),
		},
		Secrets: SecretsConfig{
			Backend:      getEnv("SECRETS_BACKEND", "aws"),
			AWSRegion:    getEnv("AWS_REGION", "me-south-1"),
			VaultAddress: getEnv("VAULT_ADDR", ""),
			VaultToken:   getEnv("VAULT_TOKEN", ""),
			LocalPath:    getEnv("SECRETS_LOCAL_PATH", "/etc/bnpl-service/secrets"),
		},
		Telemetry: TelemetryConfig{
			IntakeURL: getEnv("TELEMETRY_INTAKE_URL", ""),
			APIKey:    getEnv("TELEMETRY_API_KEY", ""),
			Service:   getEnv("TELEMETRY_SERVICE", "bnpl-service"),
			Env:       getEnv("TELEMETRY_ENV", "prod"),
		},
		Sweep: SweepConfig{
			Interval: getEnvAsDuration("SWEEP_INTERVAL", 5*time.Minute),
			Window:   getEnvAsDuration("SWEEP_WINDOW", 30*time.Minute),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	// Validate required fields
	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if cfg.Gateway.SecretKey == "" && cfg.Gateway.SecretKeyPath == "" {
		return nil, fmt.Errorf("GATEWAY_SECRET_KEY or GATEWAY_SECRET_KEY_PATH is required")
	}

	return cfg, nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
