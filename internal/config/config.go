package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port                int      `env:"PORT" envDefault:"8080"`
	DatabaseURL         string   `env:"DATABASE_URL,required"`
	RedisURL            string   `env:"REDIS_URL"`
	EncryptionKey       string   `env:"ENCRYPTION_KEY"`
	QueueTTLSeconds     int      `env:"QUEUE_TTL_SECONDS" envDefault:"900"`
	JoinRateLimitPerMin int      `env:"JOIN_RATE_LIMIT_PER_MIN" envDefault:"30"`
	AllowedOrigins      []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	RunMigrations       bool     `env:"RUN_MIGRATIONS" envDefault:"true"`
	AppEnv              string   `env:"APP_ENV" envDefault:"development"`
	LogLevel            string   `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) QueueTTL() time.Duration {
	return time.Duration(c.QueueTTLSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c *Config) Validate() error {
	if c.QueueTTLSeconds <= 0 {
		return fmt.Errorf("QUEUE_TTL_SECONDS must be positive, got %d", c.QueueTTLSeconds)
	}

	if c.EncryptionKey != "" {
		key, err := hex.DecodeString(c.EncryptionKey)
		if err != nil || len(key) != 32 {
			return fmt.Errorf("ENCRYPTION_KEY must be 64 hex characters (generate with: openssl rand -hex 32)")
		}
	}

	if c.IsProduction() {
		if c.RedisURL == "" {
			log.Warn().Msg("REDIS_URL is empty in production: fan-out is limited to this instance")
		} else if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.EncryptionKey == "" {
			log.Warn().Msg("ENCRYPTION_KEY is empty in production: shared contacts will not be encrypted at rest")
		}
		if len(c.AllowedOrigins) == 0 {
			log.Warn().Msg("ALLOWED_ORIGINS is empty in production: websocket connections are accepted from any origin")
		}
	}

	return nil
}

func Load() (*Config, error) {
	return load(nil)
}

// load reads from environ, or from the process environment when environ is nil.
func load(environ map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
