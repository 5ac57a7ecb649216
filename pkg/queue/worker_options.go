package queue

import (
	"log/slog"
	"time"
)

// DefaultConcurrency is the number of jobs a worker runs at once unless configured.
const DefaultConcurrency = 5

// WorkerOption is a functional option for configuring a worker
type WorkerOption func(*workerOptions)

type workerOptions struct {
	concurrency     int
	limiterMax      int
	limiterWindow   time.Duration
	pollInterval    time.Duration
	lockDuration    time.Duration
	jobTimeout      time.Duration
	shutdownTimeout time.Duration
	middleware      []Middleware
	logger          *slog.Logger
}

func defaultWorkerOptions() *workerOptions {
	return &workerOptions{
		concurrency:     DefaultConcurrency,
		pollInterval:    time.Second,
		lockDuration:    5 * time.Minute,
		jobTimeout:      5 * time.Minute,
		shutdownTimeout: 30 * time.Second,
		logger:          slog.Default(),
	}
}

// WithConcurrency sets the maximum number of jobs processed at once
func WithConcurrency(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithLimiter caps job starts at max per window, shared by all slots of the
// worker. Starts are spread evenly, one every window/max. Use it to protect
// rate-limited external APIs.
func WithLimiter(max int, window time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if max > 0 && window > 0 {
			o.limiterMax = max
			o.limiterWindow = window
		}
	}
}

// WithPollInterval sets how long an idle worker waits before asking the store again
func WithPollInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithLockDuration sets how long a claimed job stays invisible to other
// workers. Locks of running jobs are renewed at half this interval.
func WithLockDuration(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.lockDuration = d
		}
	}
}

// WithJobTimeout bounds each handler invocation unless the job sets its own
// timeout. Zero disables the bound.
func WithJobTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d >= 0 {
			o.jobTimeout = d
		}
	}
}

// WithShutdownTimeout sets how long Stop lets in-flight jobs finish before
// cancelling their contexts
func WithShutdownTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

// WithMiddleware wraps the worker handler; the first middleware is outermost
func WithMiddleware(mws ...Middleware) WorkerOption {
	return func(o *workerOptions) {
		o.middleware = append(o.middleware, mws...)
	}
}

// WithWorkerLogger sets the logger for the worker
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
