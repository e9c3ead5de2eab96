package config

import (
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type GoogleMapsOptions struct {
	APIKey    string `env:"GOOGLE_MAPS_API_KEY"`
	Region    string `env:"GOOGLE_MAPS_REGION" envDefault:"jp"`
	Language  string `env:"GOOGLE_MAPS_LANGUAGE" envDefault:"ja"`
	CachePath string `env:"MAPS_CACHE_PATH" envDefault:"maps_cache.sqlite"`
}

type OpenAIOptions struct {
	APIKey      string  `env:"OPENAI_API_KEY"`
	BaseURL     string  `env:"OPENAI_BASE_URL"`
	Model       string  `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	Temperature float64 `env:"OPENAI_TEMPERATURE" envDefault:"0.2"`
}

type NATSOptions struct {
	URL           string `env:"NATS_URL"`
	SubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"pickup"`
}

type Config struct {
	Port            int           `env:"PORT" envDefault:"8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"text"`
	Storage         string        `env:"STORAGE" envDefault:"postgres"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	AutoMigrate     bool          `env:"AUTO_MIGRATE" envDefault:"false"`
	SeedPath        string        `env:"SEED_PATH"`
	RedisURL        string        `env:"REDIS_URL"`
	SuggestionTTL   time.Duration `env:"SUGGESTION_CACHE_TTL" envDefault:"10m"`
	MetricsAddr     string        `env:"METRICS_ADDR"`
	RequestIDHeader string        `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	GoogleMaps GoogleMapsOptions
	OpenAI     OpenAIOptions
	NATS       NATSOptions
}

// Load reads .env and .env.local when present, then the process environment.
// Variables already set in the environment win over the files.
func Load() (*Config, error) {
	if err := loadEnvFiles(".env", ".env.local"); err != nil {
		return nil, err
	}
	return Parse()
}

// Parse builds a Config from the process environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("DATABASE_URL is required when STORAGE is 'postgres'")
		}
	case StorageMemory:
	default:
		return errors.Errorf("STORAGE must be 'postgres' or 'memory', got %q", c.Storage)
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return errors.Errorf("LOG_FORMAT must be 'text' or 'json', got %q", c.LogFormat)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("PORT out of range: %d", c.Port)
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		return errors.Errorf("OPENAI_TEMPERATURE must be within [0, 2], got %v", c.OpenAI.Temperature)
	}
	if c.SuggestionTTL < 0 {
		return errors.New("SUGGESTION_CACHE_TTL must not be negative")
	}
	return nil
}

func loadEnvFiles(files ...string) error {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return errors.Wrap(err, "load env files")
	}
	return nil
}
