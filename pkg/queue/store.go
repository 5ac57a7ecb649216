package queue

import (
	"context"
	"time"
)

// Store is the durable backend a queue runs on. It owns job state and applies
// each job's RetryPolicy when an attempt fails; workers only report outcomes.
//
// Implementations must make Dequeue atomic: a job is handed to at most one
// caller until its lock expires. Expired locks return the job to waiting so
// a crashed worker's jobs are delivered again.
type Store interface {
	// Enqueue persists a new job and returns the stored copy with its ID and
	// initial state. When job.ID is set and already exists in the queue, the
	// existing job is returned unchanged.
	Enqueue(ctx context.Context, job *Job) (*Job, error)

	// Dequeue claims the highest priority ready job of the queue, promoting
	// due delayed jobs first. Returns ErrNoJob when nothing is ready.
	Dequeue(ctx context.Context, queue string, lock time.Duration) (*Job, error)

	// Complete acknowledges a claimed job and records its result.
	Complete(ctx context.Context, job *Job, result []byte) error

	// Fail records a failed attempt and requeues the job as delayed when its
	// retry policy allows, otherwise leaves it failed. Returns the updated job.
	Fail(ctx context.Context, job *Job, failure Failure) (*Job, error)

	// ExtendLock pushes the lock deadline of a claimed job.
	ExtendLock(ctx context.Context, job *Job, lock time.Duration) error

	// Close releases the underlying connection.
	Close() error
}

// Inspector is implemented by stores that can report on stored jobs.
type Inspector interface {
	GetJob(ctx context.Context, queue, id string) (*Job, error)
	Counts(ctx context.Context, queue string) (JobCounts, error)
	ListJobs(ctx context.Context, queue string, state JobState, limit int) ([]*Job, error)

	// RetryJob moves a failed job back to waiting with a fresh attempt budget.
	RetryJob(ctx context.Context, queue, id string) error
}

// Cleaner is implemented by stores that can prune finished jobs.
type Cleaner interface {
	// Clean deletes up to limit jobs of a queue in the given terminal state
	// that finished before olderThan, oldest first, and reports how many
	// were removed.
	Clean(ctx context.Context, queue string, state JobState, olderThan time.Time, limit int) (int, error)
}
