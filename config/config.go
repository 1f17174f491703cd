package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Remote     RemoteConfig
	ChangeFeed ChangeFeedConfig
	ListView   ListViewConfig
	Worker     WorkerConfig
	App        AppConfig
}

type ServerConfig struct {
	Port        string   `env:"PORT" envDefault:"8080"`
	CORSOrigins []string `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
}

// DatabaseConfig holds both the pgx pool DSN used for readiness and the discrete
// settings for the refresh history store. History is disabled when Host is empty.
type DatabaseConfig struct {
	DSN      string `env:"DB_DSN"`
	Host     string `env:"DB_HOST"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME" envDefault:"prism"`
}

type RedisConfig struct {
	Addr       string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password   string        `env:"REDIS_PASSWORD"`
	DB         int           `env:"REDIS_DB" envDefault:"0"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`
}

type RemoteConfig struct {
	BaseURL        string        `env:"PRISM_API_URL" envDefault:"http://localhost:8000"`
	Timeout        time.Duration `env:"PRISM_API_TIMEOUT" envDefault:"30s"`
	PredictRate    float64       `env:"PRISM_PREDICT_RATE" envDefault:"0"`
	PredictBurst   int           `env:"PRISM_PREDICT_BURST" envDefault:"1"`
	WhatIfDebounce time.Duration `env:"WHATIF_DEBOUNCE" envDefault:"200ms"`
}

type ChangeFeedConfig struct {
	Channel string `env:"CHANGEFEED_CHANNEL" envDefault:"prism:projects:changes"`
}

// ListViewConfig bounds the per-session list views held in memory.
type ListViewConfig struct {
	IdleTTL     time.Duration `env:"LISTVIEW_IDLE_TTL" envDefault:"30m"`
	MaxSessions int           `env:"LISTVIEW_MAX_SESSIONS" envDefault:"1000"`
}

type WorkerConfig struct {
	RefreshCron  string `env:"REFRESH_CRON" envDefault:"0 0 2 * * *"`
	SessionToken string `env:"WORKER_SESSION_TOKEN"`
	UserID       string `env:"WORKER_USER_ID"`
}

type AppConfig struct {
	Environment string `env:"APP_ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Version     string `env:"APP_VERSION" envDefault:"1.0.0"`
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	return Parse()
}

// Parse reads the process environment without touching .env files.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	for i, o := range cfg.Server.CORSOrigins {
		cfg.Server.CORSOrigins[i] = strings.TrimSpace(o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if strings.TrimSpace(c.Remote.BaseURL) == "" {
		return fmt.Errorf("PRISM_API_URL is required")
	}

	if c.Remote.PredictRate < 0 {
		return fmt.Errorf("PRISM_PREDICT_RATE must not be negative")
	}

	return nil
}

// HistoryEnabled reports whether the refresh history store is configured.
func (c *Config) HistoryEnabled() bool {
	return c.Database.Host != ""
}
