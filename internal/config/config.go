// Package config loads service configuration from environment variables,
// with .env support for development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Services selects the roles this process runs: "api", "worker" or both
	// ("api,worker"). Running both in one process keeps the live relay and
	// the actors in the same directory.
	Services string `env:"SERVICES" envDefault:"api,worker"`

	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	PostgresDSN string `env:"POSTGRES_DSN,required"`
	RedisAddr   string `env:"REDIS_ADDR,required"`

	QueueKey      string `env:"REDIS_QUEUE_KEY" envDefault:"jobs:queue"`
	ProcessingKey string `env:"REDIS_PROCESSING_KEY" envDefault:"jobs:processing"`

	Workers        int           `env:"WORKERS" envDefault:"4"`
	ReaperInterval time.Duration `env:"REAPER_INTERVAL" envDefault:"30s"`

	// FrontendBaseURL builds monitor links in ingress responses. Empty falls
	// back to the request origin.
	FrontendBaseURL string `env:"FRONTEND_BASE_URL"`

	ProbeTimeout time.Duration `env:"HEALTH_PROBE_TIMEOUT" envDefault:"10s"`
	// HealthInterval enables the background probe ticker; 0 runs probes only
	// on demand via the API.
	HealthInterval time.Duration `env:"HEALTH_INTERVAL" envDefault:"0"`
}

// Load reads .env (when present) and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (c Config) APIEnabled() bool    { return c.hasService("api") }
func (c Config) WorkerEnabled() bool { return c.hasService("worker") }

func (c Config) hasService(name string) bool {
	for _, s := range strings.Split(c.Services, ",") {
		if strings.TrimSpace(s) == name {
			return true
		}
	}
	return false
}
