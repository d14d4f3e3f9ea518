package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration. Every field has a default so the
// daemon starts without any environment set; BROWSERPOOL_* variables
// override individual values.
type Config struct {
	Port int `envconfig:"PORT" default:"8765"`

	// Engine selects how browser processes are launched.
	Engine   string `envconfig:"ENGINE" default:"playwright"` // playwright | docker
	Headless bool   `envconfig:"HEADLESS" default:"true"`

	// Pool limits. Defaults mirror the production scraper deployment.
	MaxBrowsersPerWorker int           `envconfig:"MAX_BROWSERS_PER_WORKER" default:"2"`
	MaxBrowserAge        time.Duration `envconfig:"MAX_BROWSER_AGE" default:"30m"`
	MaxBrowserUsage      int           `envconfig:"MAX_BROWSER_USAGE" default:"50"`
	AcquireTimeout       time.Duration `envconfig:"ACQUIRE_TIMEOUT" default:"5s"`

	// Janitor and process watchdog cadence.
	SweepInterval        time.Duration `envconfig:"SWEEP_INTERVAL" default:"30m"`
	ProcessCheckInterval time.Duration `envconfig:"PROCESS_CHECK_INTERVAL" default:"5m"`

	// Process watchdog thresholds: warn when the system-wide browser process
	// count exceeds ProcessWarnThreshold, and flag a leak when the observed
	// count exceeds pool accounting by more than ProcessLeakTolerance.
	ProcessWarnThreshold int `envconfig:"PROCESS_WARN_THRESHOLD" default:"5"`
	ProcessLeakTolerance int `envconfig:"PROCESS_LEAK_TOLERANCE" default:"1"`

	// Redis enables the asynq scheduler. Empty means the in-process ticker
	// runs the janitor instead.
	RedisAddr     string `envconfig:"REDIS_ADDR" default:""`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// EventsDSN selects the sweep event log backend: a postgres:// URL or a
	// sqlite path/DSN.
	EventsDSN string `envconfig:"EVENTS_DSN" default:"browserpool.db"`

	// APIKey guards the HTTP API when set; empty runs the API open.
	APIKey string `envconfig:"API_KEY" default:""`

	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"DEVELOPMENT" default:"false"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("browserpool", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if cfg.MaxBrowsersPerWorker <= 0 {
		return Config{}, fmt.Errorf("max_browsers_per_worker must be positive, got %d", cfg.MaxBrowsersPerWorker)
	}
	return cfg, nil
}
