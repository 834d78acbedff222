package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the CampaignForge server. It is loaded
// once at startup and read-only for the process lifetime.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Generator GeneratorConfig
	SMTP      SMTPConfig
	Pipeline  PipelineConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// GeneratorConfig selects and configures the suggestion backend.
type GeneratorConfig struct {
	Provider       string
	RequestTimeout time.Duration
	OpenAI         OpenAIConfig
}

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// SMTPConfig configures the completion-notification mailer. Credentials are
// optional: with no account configured the notifier reports ErrNotConfigured
// and jobs still complete.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// PipelineConfig holds the orchestrator's retry and timeout policy.
type PipelineConfig struct {
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	StoreTimeout  time.Duration
	NotifyTimeout time.Duration
}

var validProviders = map[string]bool{
	"openai": true,
	"mock":   true,
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value
// is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("CAMPAIGNFORGE_PORT", 8080),
			Env:  envString("CAMPAIGNFORGE_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Generator: GeneratorConfig{
			Provider:       os.Getenv("GENERATOR_PROVIDER"),
			RequestTimeout: envDuration("GENERATOR_REQUEST_TIMEOUT", 60*time.Second),
			OpenAI: OpenAIConfig{
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com"),
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
			},
		},
		SMTP: SMTPConfig{
			Host:     envString("SMTP_HOST", "smtp.gmail.com"),
			Port:     envInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     envString("SMTP_FROM", os.Getenv("SMTP_USERNAME")),
			Timeout:  envDuration("SMTP_TIMEOUT", 15*time.Second),
		},
		Pipeline: PipelineConfig{
			MaxAttempts:   envInt("PIPELINE_MAX_ATTEMPTS", 3),
			BackoffBase:   envDuration("PIPELINE_BACKOFF_BASE", 500*time.Millisecond),
			BackoffMax:    envDuration("PIPELINE_BACKOFF_MAX", 30*time.Second),
			StoreTimeout:  envDuration("PIPELINE_STORE_TIMEOUT", 10*time.Second),
			NotifyTimeout: envDuration("PIPELINE_NOTIFY_TIMEOUT", 15*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Generator.Provider == "" {
		return fmt.Errorf("GENERATOR_PROVIDER is required")
	}
	if !validProviders[c.Generator.Provider] {
		return fmt.Errorf("GENERATOR_PROVIDER must be one of openai, mock; got %q", c.Generator.Provider)
	}
	if c.Generator.Provider == "openai" && c.Generator.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when GENERATOR_PROVIDER is openai")
	}
	if !strings.HasPrefix(c.Generator.OpenAI.BaseURL, "http://") && !strings.HasPrefix(c.Generator.OpenAI.BaseURL, "https://") {
		return fmt.Errorf("OPENAI_BASE_URL must start with http:// or https://, got %q", c.Generator.OpenAI.BaseURL)
	}

	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("PIPELINE_MAX_ATTEMPTS must be at least 1, got %d", c.Pipeline.MaxAttempts)
	}
	if c.Pipeline.BackoffBase <= 0 {
		return fmt.Errorf("PIPELINE_BACKOFF_BASE must be positive")
	}
	if c.Pipeline.BackoffMax < c.Pipeline.BackoffBase {
		return fmt.Errorf("PIPELINE_BACKOFF_MAX must be >= PIPELINE_BACKOFF_BASE")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
