package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/org/chatgateway/internal/crypto"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// config is read from YAML, then .env, then the process environment.
// Environment values win.
type config struct {
	ListenAddr    string        `yaml:"listen_addr" envconfig:"LISTEN_ADDR"`
	TLSCertFile   string        `yaml:"tls_cert" envconfig:"TLS_CERT"`
	TLSKeyFile    string        `yaml:"tls_key" envconfig:"TLS_KEY"`
	WriteTimeout  time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	DBUrl         string        `yaml:"db_url" envconfig:"DATABASE_URL"`
	MigrationsDir string        `yaml:"migrations_dir" envconfig:"MIGRATIONS_DIR"`
	RedisURL      string        `yaml:"redis_url" envconfig:"REDIS_URL"`
	LogLevel      string        `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogJSON       bool          `yaml:"log_json" envconfig:"LOG_JSON"`

	// EncryptionKey is the vault master key: 32 raw characters or 64 hex characters.
	EncryptionKey string `yaml:"-" envconfig:"ENCRYPTION_KEY"`
	JWTSecret     string `yaml:"-" envconfig:"JWT_SECRET"`
	JWTAudience   string `yaml:"jwt_audience" envconfig:"JWT_AUDIENCE"`
	JWTIssuer     string `yaml:"jwt_issuer" envconfig:"JWT_ISSUER"`

	OpenAIKey    string `yaml:"-" envconfig:"OPENAI_API_KEY"`
	AnthropicKey string `yaml:"-" envconfig:"ANTHROPIC_API_KEY"`
	DeepSeekKey  string `yaml:"-" envconfig:"DEEPSEEK_API_KEY"`

	StripeSecretKey     string `yaml:"-" envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `yaml:"-" envconfig:"STRIPE_WEBHOOK_SECRET"`

	RateLimit       int64         `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window" envconfig:"RATE_LIMIT_WINDOW"`
	TaskTimeout     time.Duration `yaml:"task_timeout" envconfig:"TASK_TIMEOUT"`
}

func defaultConfig() config {
	return config{
		ListenAddr:      ":3000",
		WriteTimeout:    30 * time.Second,
		MigrationsDir:   "migrations",
		LogLevel:        "info",
		RateLimit:       10,
		RateLimitWindow: 10 * time.Second,
		TaskTimeout:     2 * time.Minute,
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		log.Warn().Str("file", path).Msg("config file not found, using defaults")
	default:
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("loading .env: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("reading environment: %w", err)
	}
	return cfg, nil
}

func (c config) validate() error {
	if c.EncryptionKey == "" {
		return errors.New("ENCRYPTION_KEY must be set")
	}
	if _, err := crypto.ParseKey(c.EncryptionKey); err != nil {
		return fmt.Errorf("ENCRYPTION_KEY: %w", err)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	if c.RateLimit <= 0 || c.RateLimitWindow <= 0 {
		return errors.New("rate_limit and rate_limit_window must be positive")
	}
	return nil
}
