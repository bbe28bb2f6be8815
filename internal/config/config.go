package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is built once in main and passed into every component constructor.
// There is no ambient global configuration state.
type Config struct {
	Tiny     TinyConfig `envPrefix:"TINY_"`
	DB       DBConfig   `envPrefix:"DB_"`
	Sync     SyncConfig `envPrefix:"SYNC_"`
	LogLevel string     `env:"LOG_LEVEL" envDefault:"info"`
}

type TinyConfig struct {
	Token   string `env:"TOKEN"`
	BaseURL string `env:"BASE_URL" envDefault:"https://api.tiny.com.br/api2"`
}

type DBConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     string `env:"PORT" envDefault:"5432"`
	Name     string `env:"NAME" envDefault:"tinysync"`
	User     string `env:"USER" envDefault:"postgres"`
	Password string `env:"PASSWORD"`
	SSLMode  string `env:"SSLMODE" envDefault:"require"`
}

type SyncConfig struct {
	// MaxPagesPerRun bounds how many listing pages a single invocation may
	// process per entity type; backfills larger than that resume next run.
	MaxPagesPerRun int           `env:"MAX_PAGES_PER_RUN" envDefault:"20"`
	PagePause      time.Duration `env:"PAGE_PAUSE" envDefault:"1s"`
	DetailPause    time.Duration `env:"DETAIL_PAUSE" envDefault:"300ms"`
	HTTPTimeout    time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	MaxRetries     int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryDelay     time.Duration `env:"RETRY_DELAY" envDefault:"2s"`
}

// Load reads configuration from the environment, after a best-effort load of a
// local .env file. Missing .env is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.Tiny.Token == "" {
		return Config{}, fmt.Errorf("TINY_TOKEN is required")
	}
	if cfg.Sync.MaxPagesPerRun < 1 {
		return Config{}, fmt.Errorf("SYNC_MAX_PAGES_PER_RUN must be at least 1, got %d", cfg.Sync.MaxPagesPerRun)
	}
	return cfg, nil
}

// DSN renders a lib/pq connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Name, c.User, c.Password, c.SSLMode)
}
