package config_test

import (
	"testing"
	"time"

	"github.com/kevin07696/bnpl-service/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("GATEWAY_SECRET_KEY", "sk_test_01234567-89ab-cdef-0123-456789abcdef")

	cfg, err := config.LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 9090, cfg.Server.MetricsPort)
	assert.Equal(t, "https://api.tabby.ai/api/", cfg.Gateway.BaseURL)
	assert.False(t, cfg.Gateway.ManualCapture)
	assert.Empty(t, cfg.Gateway.EnabledCurrencies)
	assert.Equal(t, 5*time.Minute, cfg.Sweep.Interval)
	assert.Equal(t, 30*time.Minute, cfg.Sweep.Window)
	assert.Equal(t, "aws", cfg.Secrets.Backend)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoadFromEnv_RequiresDBPassword(t *testing.T) {
	t.Setenv("DB_PASSWORD", "")
	t.Setenv("GATEWAY_SECRET_KEY", "sk_test_01234567-89ab-cdef-0123-456789abcdef")

	_, err := config.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PASSWORD")
}

func TestLoadFromEnv_RequiresGatewayCredential(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("GATEWAY_SECRET_KEY", "")
	t.Setenv("GATEWAY_SECRET_KEY_PATH", "")

	_, err := config.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GATEWAY_SECRET_KEY")
}

func TestLoadFromEnv_SecretKeyPathAlone(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("GATEWAY_SECRET_KEY", "")
	t.Setenv("GATEWAY_SECRET_KEY_PATH", "bnpl/gateway/secret-key")
	t.Setenv("SECRETS_BACKEND", "vault")

	cfg, err := config.LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "bnpl/gateway/secret-key", cfg.Gateway.SecretKeyPath)
	assert.Equal(t, "vault", cfg.Secrets.Backend)
}

func TestLoadFromEnv_EnabledCurrencies(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("GATEWAY_SECRET_KEY", "sk_test_01234567-89ab-cdef-0123-456789abcdef")
	t.Setenv("GATEWAY_ENABLED_CURRENCIES", "AED, SAR,")

	cfg, err := config.LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"AED", "SAR"}, cfg.Gateway.EnabledCurrencies)
}

func TestConnectionString(t *testing.T) {
	db := config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "secret",
		Database: "bnpl_service",
		SSLMode:  "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=secret dbname=bnpl_service sslmode=disable",
		db.ConnectionString(),
	)
}
