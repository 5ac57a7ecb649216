package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/dmitrymomot/queuekit/pkg/logger"
)

// Queue is a handle to one named queue. Obtain it from Runtime.CreateQueue;
// the runtime hands out a single instance per name.
type Queue struct {
	name     string
	store    Store
	defaults JobDefaults
	logger   *slog.Logger

	// notify wakes local workers after an enqueue. May be nil.
	notify func(queue string)
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Defaults returns the job options applied to every job of this queue.
func (q *Queue) Defaults() JobDefaults {
	return q.defaults
}

// Store returns the store the queue runs on.
func (q *Queue) Store() Store {
	return q.store
}

// Add enqueues a job. The payload must be JSON-serializable; it is encoded
// before the store is contacted so a bad payload never reaches it.
func (q *Queue) Add(ctx context.Context, jobName string, payload any, opts ...JobOption) (*Job, error) {
	if strings.TrimSpace(jobName) == "" {
		return nil, invalidInput("job name", "must be a non-empty string")
	}

	job, err := q.buildJob(jobName, payload, opts...)
	if err != nil {
		return nil, err
	}

	stored, err := q.store.Enqueue(ctx, job)
	if err != nil {
		return nil, &OperationError{Op: "enqueue " + jobName, Queue: q.name, Err: err}
	}

	q.logger.DebugContext(ctx, "job enqueued",
		logger.Queue(q.name),
		logger.JobID(stored.ID),
		logger.JobName(stored.Name),
		slog.String("state", string(stored.State)))

	if q.notify != nil && stored.State == StateWaiting {
		q.notify(q.name)
	}

	return stored, nil
}

// buildJob constructs a Job from payload and options
func (q *Queue) buildJob(jobName string, payload any, opts ...JobOption) (*Job, error) {
	options := newJobOptions(q.defaults)
	for _, opt := range opts {
		opt(options)
	}

	if !options.priority.Valid() {
		return nil, invalidInput("priority", "must be between 0 and 100")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &InvalidInputError{Field: "payload", Reason: "must be JSON-serializable", Err: err}
	}

	now := time.Now()
	runAt := now
	if options.runAt != nil {
		runAt = *options.runAt
	} else if options.delay > 0 {
		runAt = now.Add(options.delay)
	}

	state := StateWaiting
	if runAt.After(now) {
		state = StateDelayed
	}

	return &Job{
		ID:               options.id,
		Queue:            q.name,
		Name:             jobName,
		Payload:          data,
		State:            state,
		Priority:         options.priority,
		Retry:            options.retry,
		Timeout:          options.timeout,
		RemoveOnComplete: options.removeOnComplete,
		RemoveOnFail:     options.removeOnFail,
		RunAt:            runAt,
		CreatedAt:        now,
	}, nil
}
