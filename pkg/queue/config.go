package queue

import "time"

// Config holds the configuration for queues and workers created by a Runtime.
type Config struct {
	Concurrency     int           `env:"QUEUE_CONCURRENCY" envDefault:"5"`
	PollInterval    time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
	LockDuration    time.Duration `env:"QUEUE_LOCK_DURATION" envDefault:"5m"`
	JobTimeout      time.Duration `env:"QUEUE_JOB_TIMEOUT" envDefault:"5m"`
	ShutdownTimeout time.Duration `env:"QUEUE_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Limiter caps job starts per worker: LimiterMax jobs per LimiterWindow.
	// Disabled when either value is zero.
	LimiterMax    int           `env:"QUEUE_LIMITER_MAX" envDefault:"0"`
	LimiterWindow time.Duration `env:"QUEUE_LIMITER_WINDOW" envDefault:"0s"`

	// Default job options applied by every queue unless overridden per job.
	Attempts        int           `env:"QUEUE_ATTEMPTS" envDefault:"3"`
	BackoffDelay    time.Duration `env:"QUEUE_BACKOFF_DELAY" envDefault:"1s"`
	BackoffMaxDelay time.Duration `env:"QUEUE_BACKOFF_MAX_DELAY" envDefault:"1m"`
}

// RetryPolicy returns the default retry policy described by the config.
func (c Config) RetryPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	if c.Attempts > 0 {
		p.Attempts = c.Attempts
	}
	if c.BackoffDelay > 0 {
		p.Backoff.Delay = c.BackoffDelay
	}
	if c.BackoffMaxDelay > 0 {
		p.Backoff.MaxDelay = c.BackoffMaxDelay
	}
	return p
}

// WorkerOptions converts the config into worker options.
// Zero values are skipped so package defaults stay in effect, except
// JobTimeout where zero means no timeout.
func (c Config) WorkerOptions() []WorkerOption {
	opts := make([]WorkerOption, 0, 6)
	if c.Concurrency > 0 {
		opts = append(opts, WithConcurrency(c.Concurrency))
	}
	if c.PollInterval > 0 {
		opts = append(opts, WithPollInterval(c.PollInterval))
	}
	if c.LockDuration > 0 {
		opts = append(opts, WithLockDuration(c.LockDuration))
	}
	// Zero is meaningful here: it disables the per-job timeout.
	if c.JobTimeout >= 0 {
		opts = append(opts, WithJobTimeout(c.JobTimeout))
	}
	if c.ShutdownTimeout > 0 {
		opts = append(opts, WithShutdownTimeout(c.ShutdownTimeout))
	}
	if c.LimiterMax > 0 && c.LimiterWindow > 0 {
		opts = append(opts, WithLimiter(c.LimiterMax, c.LimiterWindow))
	}
	return opts
}
