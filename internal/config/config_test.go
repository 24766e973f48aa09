package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Port:                 3001,
		PairCodeTTLSeconds:   60,
		TrustTokenTTLHours:   720,
		RateLimitIntervalMS:  400,
		SweepIntervalSeconds: 30,
		SendQueueSize:        64,
		WriteTimeoutSeconds:  5,
		MaxMessageBytes:      65536,
	}
}

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3001}
		assert.Equal(t, ":3001", cfg.Addr())
	})

	t.Run("durations convert units", func(t *testing.T) {
		cfg := validConfig()
		assert.Equal(t, 60*time.Second, cfg.PairCodeTTL())
		assert.Equal(t, 30*24*time.Hour, cfg.TrustTokenTTL())
		assert.Equal(t, 400*time.Millisecond, cfg.RateLimitInterval())
		assert.Equal(t, 30*time.Second, cfg.SweepInterval())
		assert.Equal(t, 5*time.Second, cfg.WriteTimeout())
	})

	t.Run("OriginPatterns splits and trims", func(t *testing.T) {
		cfg := &Config{AllowedOrigins: " localhost:*, example.com ,,"}
		assert.Equal(t, []string{"localhost:*", "example.com"}, cfg.OriginPatterns())
	})

	t.Run("OriginPatterns empty returns nil", func(t *testing.T) {
		cfg := &Config{AllowedOrigins: "  "}
		assert.Nil(t, cfg.OriginPatterns())
	})
}

func TestValidate(t *testing.T) {
	t.Run("accepts defaults", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("rejects non-positive interval", func(t *testing.T) {
		cfg := validConfig()
		cfg.RateLimitIntervalMS = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "RATE_LIMIT_INTERVAL_MS")
	})

	t.Run("rejects tiny read limit", func(t *testing.T) {
		cfg := validConfig()
		cfg.MaxMessageBytes = 10
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects URL origin entries", func(t *testing.T) {
		cfg := validConfig()
		cfg.AllowedOrigins = "https://example.com"
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects negative connect limit", func(t *testing.T) {
		cfg := validConfig()
		cfg.ConnectLimitPerMin = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero connect limit disables the check", func(t *testing.T) {
		cfg := validConfig()
		cfg.ConnectLimitPerMin = 0
		assert.NoError(t, cfg.Validate())
	})

	t.Run("rejects short admin token", func(t *testing.T) {
		cfg := validConfig()
		cfg.AdminToken = "short"
		assert.Error(t, cfg.Validate())
	})
}

func TestLoad(t *testing.T) {
	keys := []string{
		"PORT", "LOG_LEVEL", "PAIR_CODE_TTL_SECONDS", "TRUST_TOKEN_TTL_HOURS",
		"RATE_LIMIT_INTERVAL_MS", "SWEEP_INTERVAL_SECONDS", "REDIS_URL", "ADMIN_TOKEN",
		"CONNECT_LIMIT_PER_MINUTE", "PRODUCTION",
	}
	originalEnv := make(map[string]string, len(keys))
	for _, k := range keys {
		originalEnv[k] = os.Getenv(k)
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("loads config with defaults", func(t *testing.T) {
		for _, k := range keys {
			os.Unsetenv(k)
		}

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 3001, cfg.Port)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, 60, cfg.PairCodeTTLSeconds)
		assert.Equal(t, 720, cfg.TrustTokenTTLHours)
		assert.Equal(t, 400, cfg.RateLimitIntervalMS)
		assert.Equal(t, 30, cfg.SweepIntervalSeconds)
		assert.Equal(t, "relay:events", cfg.RedisEventsChannel)
		assert.Empty(t, cfg.RedisURL)
		assert.Equal(t, 120, cfg.ConnectLimitPerMin)
		assert.False(t, cfg.IsProduction)
	})

	t.Run("loads custom values", func(t *testing.T) {
		os.Setenv("PORT", "4000")
		os.Setenv("RATE_LIMIT_INTERVAL_MS", "250")
		os.Setenv("LOG_LEVEL", "debug")
		os.Setenv("REDIS_URL", "redis://localhost:6379")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 4000, cfg.Port)
		assert.Equal(t, 250, cfg.RateLimitIntervalMS)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
	})

	t.Run("fails on malformed integer", func(t *testing.T) {
		os.Setenv("PORT", "not-a-port")

		_, err := Load()
		assert.Error(t, err)
	})
}
