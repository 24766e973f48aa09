package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port                 int    `env:"PORT" envDefault:"3001"`
	LogLevel             string `env:"LOG_LEVEL" envDefault:"info"`
	PairCodeTTLSeconds   int    `env:"PAIR_CODE_TTL_SECONDS" envDefault:"60"`
	TrustTokenTTLHours   int    `env:"TRUST_TOKEN_TTL_HOURS" envDefault:"720"`
	RateLimitIntervalMS  int    `env:"RATE_LIMIT_INTERVAL_MS" envDefault:"400"`
	SweepIntervalSeconds int    `env:"SWEEP_INTERVAL_SECONDS" envDefault:"30"`
	SendQueueSize        int    `env:"SEND_QUEUE_SIZE" envDefault:"64"`
	WriteTimeoutSeconds  int    `env:"WRITE_TIMEOUT_SECONDS" envDefault:"5"`
	MaxMessageBytes      int64  `env:"MAX_MESSAGE_BYTES" envDefault:"65536"`
	AllowedOrigins       string `env:"ALLOWED_ORIGINS" envDefault:""`
	RedisURL             string `env:"REDIS_URL" envDefault:""`
	RedisEventsChannel   string `env:"REDIS_EVENTS_CHANNEL" envDefault:"relay:events"`
	AdminToken           string `env:"ADMIN_TOKEN" envDefault:""`
	ConnectLimitPerMin   int    `env:"CONNECT_LIMIT_PER_MINUTE" envDefault:"120"`
	IsProduction         bool   `env:"PRODUCTION" envDefault:"false"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) PairCodeTTL() time.Duration {
	return time.Duration(c.PairCodeTTLSeconds) * time.Second
}

func (c *Config) TrustTokenTTL() time.Duration {
	return time.Duration(c.TrustTokenTTLHours) * time.Hour
}

func (c *Config) RateLimitInterval() time.Duration {
	return time.Duration(c.RateLimitIntervalMS) * time.Millisecond
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// OriginPatterns splits ALLOWED_ORIGINS into host patterns for the websocket
// accept check. Nil means any origin is accepted.
func (c *Config) OriginPatterns() []string {
	raw := strings.TrimSpace(c.AllowedOrigins)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"PORT", c.Port},
		{"PAIR_CODE_TTL_SECONDS", c.PairCodeTTLSeconds},
		{"TRUST_TOKEN_TTL_HOURS", c.TrustTokenTTLHours},
		{"RATE_LIMIT_INTERVAL_MS", c.RateLimitIntervalMS},
		{"SWEEP_INTERVAL_SECONDS", c.SweepIntervalSeconds},
		{"SEND_QUEUE_SIZE", c.SendQueueSize},
		{"WRITE_TIMEOUT_SECONDS", c.WriteTimeoutSeconds},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}

	if c.ConnectLimitPerMin < 0 {
		return fmt.Errorf("CONNECT_LIMIT_PER_MINUTE must not be negative, got %d", c.ConnectLimitPerMin)
	}

	if c.MaxMessageBytes < MinMessageBytes {
		return fmt.Errorf("MAX_MESSAGE_BYTES must be at least %d", MinMessageBytes)
	}

	for _, pattern := range c.OriginPatterns() {
		if strings.Contains(pattern, "://") {
			return fmt.Errorf("ALLOWED_ORIGINS entry %q must be a host pattern, not a URL", pattern)
		}
	}

	if c.AdminToken != "" && len(c.AdminToken) < 16 {
		return fmt.Errorf("ADMIN_TOKEN must be at least 16 characters (generate with: openssl rand -hex 16)")
	}

	if c.OriginPatterns() == nil {
		log.Warn().Msg("ALLOWED_ORIGINS is empty: websocket connections are accepted from any origin")
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
