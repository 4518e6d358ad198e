package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the server configuration, read from the environment.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	APIPort  int    `env:"API_PORT" envDefault:"9090"`

	// LocalSavePath is the on-device SQLite save database
	LocalSavePath    string `env:"LOCAL_SAVE_PATH" envDefault:"quicksave.db"`
	SQLiteMigrations string `env:"SQLITE_MIGRATIONS" envDefault:"migrations/sqlite"`

	// DatabaseURL is the remote save store. Leave unset to disable
	// cloud saves for this deployment.
	DatabaseURL        string `env:"DATABASE_URL"`
	PostgresMigrations string `env:"POSTGRES_MIGRATIONS" envDefault:"migrations/postgres"`

	FirebaseProjectID string `env:"FIREBASE_PROJECT_ID"`
	FirebaseAPIKey    string `env:"FIREBASE_API_KEY"`

	// UserID is the preconfigured identity for single-player
	// deployments without a sign-in flow
	UserID string `env:"USER_ID"`

	AutosaveInterval time.Duration `env:"AUTOSAVE_INTERVAL" envDefault:"30s"`
	ProbeInterval    time.Duration `env:"PROBE_INTERVAL" envDefault:"15s"`
	MaxRetries       int           `env:"MAX_RETRIES" envDefault:"5"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %v", err)
	}
	return cfg, nil
}
