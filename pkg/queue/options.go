package queue

import "time"

// JobDefaults are the options a queue applies to every job unless the
// producer overrides them.
type JobDefaults struct {
	Retry            RetryPolicy
	Priority         Priority
	Timeout          time.Duration
	RemoveOnComplete bool
	RemoveOnFail     bool
}

// DefaultJobDefaults returns the default retry policy and medium priority.
func DefaultJobDefaults() JobDefaults {
	return JobDefaults{
		Retry:    DefaultRetryPolicy(),
		Priority: PriorityDefault,
	}
}

// JobOption is a functional option for a single enqueued job
type JobOption func(*jobOptions)

type jobOptions struct {
	id               string
	retry            RetryPolicy
	priority         Priority
	delay            time.Duration
	runAt            *time.Time
	timeout          time.Duration
	removeOnComplete bool
	removeOnFail     bool
}

func newJobOptions(d JobDefaults) *jobOptions {
	return &jobOptions{
		retry:            d.Retry,
		priority:         d.Priority,
		timeout:          d.Timeout,
		removeOnComplete: d.RemoveOnComplete,
		removeOnFail:     d.RemoveOnFail,
	}
}

// WithJobID sets a producer-chosen job ID. Adding a job whose ID already
// exists in the queue returns the existing job instead of a duplicate.
func WithJobID(id string) JobOption {
	return func(o *jobOptions) {
		o.id = id
	}
}

// WithAttempts sets the total number of executions allowed (first run included)
func WithAttempts(n int) JobOption {
	return func(o *jobOptions) {
		if n > 0 {
			o.retry.Attempts = n
		}
	}
}

// WithBackoff sets the delay strategy between attempts
func WithBackoff(b Backoff) JobOption {
	return func(o *jobOptions) {
		o.retry.Backoff = b
	}
}

// WithRetryPolicy replaces the whole retry policy
func WithRetryPolicy(p RetryPolicy) JobOption {
	return func(o *jobOptions) {
		o.retry = p
	}
}

// WithPriority sets the priority for the job
func WithPriority(priority Priority) JobOption {
	return func(o *jobOptions) {
		o.priority = priority
	}
}

// WithDelay sets a delay before the job can be processed
func WithDelay(delay time.Duration) JobOption {
	return func(o *jobOptions) {
		if delay > 0 {
			o.delay = delay
		}
	}
}

// WithRunAt sets a specific time for the job to be processed
func WithRunAt(t time.Time) JobOption {
	return func(o *jobOptions) {
		o.runAt = &t
	}
}

// WithTimeout bounds a single execution of the job
func WithTimeout(d time.Duration) JobOption {
	return func(o *jobOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRemoveOnComplete deletes the job from the store once it completes
func WithRemoveOnComplete() JobOption {
	return func(o *jobOptions) {
		o.removeOnComplete = true
	}
}

// WithRemoveOnFail deletes the job once it fails for the last time
func WithRemoveOnFail() JobOption {
	return func(o *jobOptions) {
		o.removeOnFail = true
	}
}
