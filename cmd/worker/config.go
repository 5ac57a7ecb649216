package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dmitrymomot/queuekit/pkg/config"
	"github.com/dmitrymomot/queuekit/pkg/email"
	"github.com/dmitrymomot/queuekit/pkg/httpserver"
	"github.com/dmitrymomot/queuekit/pkg/logger"
	"github.com/dmitrymomot/queuekit/pkg/pg"
	"github.com/dmitrymomot/queuekit/pkg/queue"
	"github.com/dmitrymomot/queuekit/pkg/redis"
)

const (
	backendRedis    = "redis"
	backendPostgres = "postgres"
)

type workerConfig struct {
	Backend       string        `env:"QUEUE_BACKEND" envDefault:"redis"`
	Queue         string        `env:"WORKER_QUEUE"`
	KeyPrefix     string        `env:"QUEUE_KEY_PREFIX" envDefault:"queuekit"`
	SentKeyPrefix string        `env:"EMAIL_SENT_KEY_PREFIX" envDefault:"queuekit:mail:sent:"`
	StartTimeout  time.Duration `env:"WORKER_START_TIMEOUT" envDefault:"30s"`

	// Finished jobs older than Retention are pruned every CleanInterval.
	// A zero Retention keeps them forever.
	MaintenanceQueue string        `env:"QUEUE_MAINTENANCE_QUEUE" envDefault:"queuekit-maintenance"`
	Retention        time.Duration `env:"QUEUE_RETENTION" envDefault:"168h"`
	CleanInterval    time.Duration `env:"QUEUE_CLEAN_INTERVAL" envDefault:"1h"`
}

// settings is everything the worker process reads from the environment.
type settings struct {
	Worker workerConfig
	Queue  queue.Config
	Redis  redis.Config
	PG     pg.Config
	Email  email.Config
	HTTP   httpserver.Config
	Log    logger.Config
}

func loadSettings() (settings, error) {
	// A .env file in the working directory is optional.
	if _, err := os.Stat(".env"); err == nil {
		if err := config.LoadEnv(".env"); err != nil {
			return settings{}, err
		}
	}

	var s settings
	loaders := []func() error{
		func() error { return config.Load(&s.Worker) },
		func() error { return config.Load(&s.Queue) },
		func() error { return config.Load(&s.Redis) },
		func() error { return config.Load(&s.PG) },
		func() error { return config.Load(&s.Email) },
		func() error { return config.Load(&s.HTTP) },
		func() error { return config.Load(&s.Log) },
	}
	for _, load := range loaders {
		if err := load(); err != nil {
			return settings{}, err
		}
	}
	return s, s.validate()
}

func (s settings) validate() error {
	switch s.Worker.Backend {
	case backendRedis:
	case backendPostgres:
		if s.PG.ConnectionString == "" {
			return &queue.ConfigurationError{Field: "PG_CONN_URL", Reason: "required for the postgres backend", Err: pg.ErrEmptyConnectionString}
		}
	default:
		return &queue.ConfigurationError{Field: "QUEUE_BACKEND", Reason: fmt.Sprintf("unknown backend %q, want redis or postgres", s.Worker.Backend)}
	}
	if s.Worker.Retention < 0 {
		return &queue.ConfigurationError{Field: "QUEUE_RETENTION", Reason: "must not be negative"}
	}
	if s.Worker.Retention > 0 && s.Worker.CleanInterval <= 0 {
		return &queue.ConfigurationError{Field: "QUEUE_CLEAN_INTERVAL", Reason: "must be positive when retention is set"}
	}
	return nil
}
