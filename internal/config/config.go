package config

import (
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/copyleftdev/lahc/internal/optimization"
	"github.com/copyleftdev/lahc/internal/problems"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Optimization struct {
		// WorkerCount bounds the number of runs executing at once.
		WorkerCount int `env:"OPT_WORKER_COUNT" envDefault:"4"`
	}
	LAHC struct {
		HistoryLength int                        `env:"LAHC_HISTORY_LENGTH" envDefault:"1000"`
		StepLimit     int                        `env:"LAHC_STEP_LIMIT" envDefault:"1000000"`
		HistoryUpdate optimization.HistoryUpdate `env:"LAHC_HISTORY_UPDATE" envDefault:"last_accepted"`
		CloneStrategy optimization.CloneStrategy `env:"LAHC_CLONE_STRATEGY" envDefault:"method"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Parse environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Set default logging level based on environment
	if cfg.Logging.Level == "" {
		if cfg.Environment == "development" {
			cfg.Logging.Level = "debug"
		} else {
			cfg.Logging.Level = "info"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no run could start with.
func (c *Config) Validate() error {
	if c.Optimization.WorkerCount < 1 {
		return optimization.ConfigErrorf("OPT_WORKER_COUNT must be at least 1, got %d", c.Optimization.WorkerCount)
	}
	if c.LAHC.HistoryLength < 1 {
		return optimization.ConfigErrorf("LAHC_HISTORY_LENGTH must be at least 1, got %d", c.LAHC.HistoryLength)
	}
	if c.LAHC.StepLimit < 0 {
		return optimization.ConfigErrorf("LAHC_STEP_LIMIT must not be negative, got %d", c.LAHC.StepLimit)
	}
	if c.LAHC.CloneStrategy == optimization.CloneShallow {
		return optimization.ConfigErrorf("LAHC_CLONE_STRATEGY %s cannot snapshot the built-in problems", c.LAHC.CloneStrategy)
	}
	return nil
}

// RunDefaults returns the engine settings applied to specs that omit them.
func (c *Config) RunDefaults() problems.Defaults {
	return problems.Defaults{
		HistoryLength: c.LAHC.HistoryLength,
		StepLimit:     c.LAHC.StepLimit,
		HistoryUpdate: c.LAHC.HistoryUpdate,
		CloneStrategy: c.LAHC.CloneStrategy,
	}
}
