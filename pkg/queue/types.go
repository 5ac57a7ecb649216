package queue

import (
	"encoding/json"
	"slices"
	"time"
)

// DefaultQueueName is the default queue name used when no queue is specified
const DefaultQueueName = "default"

// maxErrorHistory bounds Job.Errors so a job failing forever does not grow unbounded.
const maxErrorHistory = 10

// JobState represents the lifecycle state of a job
type JobState string

const (
	StateWaiting   JobState = "waiting"
	StateActive    JobState = "active"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateDelayed   JobState = "delayed"
)

// States lists all job states in lifecycle order.
func States() []JobState {
	return []JobState{StateWaiting, StateDelayed, StateActive, StateCompleted, StateFailed}
}

// Valid checks if the state is one of the known states
func (s JobState) Valid() bool {
	return slices.Contains(States(), s)
}

// Terminal reports whether the job will not run again without manual intervention.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Priority represents job priority (0-100, higher is more important)
type Priority int8

// Priority constants
const (
	PriorityMin     Priority = 0
	PriorityLow     Priority = 25
	PriorityMedium  Priority = 50
	PriorityHigh    Priority = 75
	PriorityMax     Priority = 100
	PriorityDefault Priority = PriorityMedium
)

// Valid checks if the priority is within valid range
func (p Priority) Valid() bool {
	return p >= PriorityMin && p <= PriorityMax
}

// Job is a unit of work stored in a queue.
// ID is assigned by the store unless the producer supplied one with WithJobID.
type Job struct {
	ID       string          `json:"id"`
	Queue    string          `json:"queue"`
	Name     string          `json:"name"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	State    JobState        `json:"state"`
	Priority Priority        `json:"priority"`

	Retry        RetryPolicy   `json:"retry"`
	AttemptsMade int           `json:"attempts_made"`
	Timeout      time.Duration `json:"timeout,omitempty"`

	RemoveOnComplete bool `json:"remove_on_complete,omitempty"`
	RemoveOnFail     bool `json:"remove_on_fail,omitempty"`

	Result       json.RawMessage `json:"result,omitempty"`
	FailedReason string          `json:"failed_reason,omitempty"`
	Errors       []string        `json:"errors,omitempty"`

	RunAt       time.Time  `json:"run_at"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	LockToken   string     `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v any) error {
	return json.Unmarshal(j.Payload, v)
}

// DecodeResult unmarshals the recorded handler result into v.
func (j *Job) DecodeResult(v any) error {
	return json.Unmarshal(j.Result, v)
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Payload = slices.Clone(j.Payload)
	c.Result = slices.Clone(j.Result)
	c.Errors = slices.Clone(j.Errors)
	c.LockedUntil = cloneTime(j.LockedUntil)
	c.StartedAt = cloneTime(j.StartedAt)
	c.FinishedAt = cloneTime(j.FinishedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// JobCounts holds the number of jobs per state in one queue
type JobCounts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}

// Add increments the counter for state by n.
func (c *JobCounts) Add(state JobState, n int64) {
	switch state {
	case StateWaiting:
		c.Waiting += n
	case StateActive:
		c.Active += n
	case StateCompleted:
		c.Completed += n
	case StateFailed:
		c.Failed += n
	case StateDelayed:
		c.Delayed += n
	}
}

// Failure describes a failed attempt reported to Store.Fail.
type Failure struct {
	Reason    string
	Retryable bool
}

// ApplyFailure moves a failed active job to its next state according to the
// job's own retry policy. Stores call it inside their atomic section so every
// backend makes the same decision.
//
// After the call the job is either delayed (RunAt set to the backoff deadline)
// or failed (FinishedAt set). The lock is always released.
func ApplyFailure(j *Job, f Failure, now time.Time) {
	j.AttemptsMade++
	j.FailedReason = f.Reason
	j.Errors = append(j.Errors, f.Reason)
	if len(j.Errors) > maxErrorHistory {
		j.Errors = j.Errors[len(j.Errors)-maxErrorHistory:]
	}
	j.LockedUntil = nil
	j.LockToken = ""

	if delay, ok := j.Retry.Next(j.AttemptsMade); ok && f.Retryable {
		j.State = StateDelayed
		j.RunAt = now.Add(delay)
		return
	}

	j.State = StateFailed
	j.FinishedAt = &now
}

// ApplyCompletion marks an active job as completed with the given result.
func ApplyCompletion(j *Job, result []byte, now time.Time) {
	j.State = StateCompleted
	j.Result = slices.Clone(result)
	j.FailedReason = ""
	j.LockedUntil = nil
	j.LockToken = ""
	j.FinishedAt = &now
}

// ApplyActivation marks a claimed job active under the given lock.
func ApplyActivation(j *Job, token string, lock time.Duration, now time.Time) {
	until := now.Add(lock)
	j.State = StateActive
	j.LockToken = token
	j.LockedUntil = &until
	j.StartedAt = &now
}

// ApplyReplay resets a failed job so it runs again with a fresh attempt budget.
func ApplyReplay(j *Job, now time.Time) {
	j.State = StateWaiting
	j.AttemptsMade = 0
	j.FailedReason = ""
	j.FinishedAt = nil
	j.RunAt = now
}
