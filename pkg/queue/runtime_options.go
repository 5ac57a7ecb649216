package queue

import "log/slog"

// RuntimeOption is a functional option for configuring a Runtime
type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	defaults      JobDefaults
	workerOptions []WorkerOption
	middleware    []Middleware
	logger        *slog.Logger
}

// WithQueueDefaults sets the job options every queue applies by default
func WithQueueDefaults(d JobDefaults) RuntimeOption {
	return func(o *runtimeOptions) {
		o.defaults = d
	}
}

// WithDefaultRetryPolicy sets only the default retry policy of every queue
func WithDefaultRetryPolicy(p RetryPolicy) RuntimeOption {
	return func(o *runtimeOptions) {
		o.defaults.Retry = p
	}
}

// WithDefaultWorkerOptions sets options applied to every worker before its own
func WithDefaultWorkerOptions(opts ...WorkerOption) RuntimeOption {
	return func(o *runtimeOptions) {
		o.workerOptions = append(o.workerOptions, opts...)
	}
}

// WithRuntimeMiddleware wraps the handler of every worker the runtime creates
func WithRuntimeMiddleware(mws ...Middleware) RuntimeOption {
	return func(o *runtimeOptions) {
		o.middleware = append(o.middleware, mws...)
	}
}

// WithRuntimeLogger sets the logger for the runtime and its workers
func WithRuntimeLogger(logger *slog.Logger) RuntimeOption {
	return func(o *runtimeOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// StartOption is a functional option for Runtime.StartWorkers
type StartOption func(*startOptions)

type startOptions struct {
	specificQueue string
	queueNames    []string
}

// WithSpecificQueue starts only the worker of the named queue
func WithSpecificQueue(name string) StartOption {
	return func(o *startOptions) {
		o.specificQueue = name
	}
}

// WithQueueNames starts workers for an explicit list of queues instead of
// every bound queue
func WithQueueNames(names ...string) StartOption {
	return func(o *startOptions) {
		o.queueNames = names
	}
}
