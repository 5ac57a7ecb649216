package queue

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements Store and Inspector in process memory.
// Intended for tests and local development; jobs do not survive a restart.
type MemoryStorage struct {
	mu   sync.RWMutex
	jobs map[jobKey]*memoryEntry
	seq  uint64

	// Indexes for efficient queries
	byState map[JobState][]jobKey

	// Lock management
	lockTicker *time.Ticker
	done       chan struct{}
	closeOnce  sync.Once
}

type jobKey struct {
	queue string
	id    string
}

type memoryEntry struct {
	job *Job
	seq uint64
}

// NewMemoryStorage creates a new in-memory storage implementation
func NewMemoryStorage() *MemoryStorage {
	ms := &MemoryStorage{
		jobs:    make(map[jobKey]*memoryEntry),
		byState: make(map[JobState][]jobKey),
		done:    make(chan struct{}),
	}

	// Start lock expiration manager
	ms.lockTicker = time.NewTicker(time.Second)
	go ms.lockExpirationManager()

	return ms
}

// Close stops the background goroutines
func (ms *MemoryStorage) Close() error {
	ms.closeOnce.Do(func() {
		close(ms.done)
		ms.lockTicker.Stop()
	})
	return nil
}

// Enqueue implements Store
func (ms *MemoryStorage) Enqueue(ctx context.Context, job *Job) (*Job, error) {
	if job == nil {
		return nil, fmt.Errorf("job cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	stored := job.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	key := jobKey{queue: stored.Queue, id: stored.ID}
	if existing, ok := ms.jobs[key]; ok {
		return existing.job.Clone(), nil
	}

	if !stored.State.Valid() || stored.State == StateActive || stored.State.Terminal() {
		stored.State = StateWaiting
	}

	ms.seq++
	ms.jobs[key] = &memoryEntry{job: stored, seq: ms.seq}
	ms.byState[stored.State] = append(ms.byState[stored.State], key)

	return stored.Clone(), nil
}

// Dequeue implements Store
func (ms *MemoryStorage) Dequeue(ctx context.Context, queue string, lock time.Duration) (*Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	ms.promoteDelayed(queue, now)

	// Priority first, then run time, then insertion order
	var best *memoryEntry
	for _, key := range ms.byState[StateWaiting] {
		if key.queue != queue {
			continue
		}
		e := ms.jobs[key]
		if best == nil || less(e, best) {
			best = e
		}
	}

	if best == nil {
		return nil, ErrNoJob
	}

	ApplyActivation(best.job, uuid.NewString(), lock, now)
	ms.moveState(best.job, StateWaiting)

	return best.job.Clone(), nil
}

func less(a, b *memoryEntry) bool {
	if a.job.Priority != b.job.Priority {
		return a.job.Priority > b.job.Priority
	}
	if !a.job.RunAt.Equal(b.job.RunAt) {
		return a.job.RunAt.Before(b.job.RunAt)
	}
	return a.seq < b.seq
}

// Complete implements Store
func (ms *MemoryStorage) Complete(ctx context.Context, job *Job, result []byte) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, err := ms.lockedEntry(job)
	if err != nil {
		return err
	}

	ApplyCompletion(e.job, result, time.Now())
	if e.job.RemoveOnComplete {
		ms.delete(e.job, StateActive)
		return nil
	}
	ms.moveState(e.job, StateActive)

	return nil
}

// Fail implements Store
func (ms *MemoryStorage) Fail(ctx context.Context, job *Job, failure Failure) (*Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, err := ms.lockedEntry(job)
	if err != nil {
		return nil, err
	}

	ApplyFailure(e.job, failure, time.Now())
	out := e.job.Clone()

	if e.job.State == StateFailed && e.job.RemoveOnFail {
		ms.delete(e.job, StateActive)
		return out, nil
	}
	ms.moveState(e.job, StateActive)

	return out, nil
}

// ExtendLock implements Store
func (ms *MemoryStorage) ExtendLock(ctx context.Context, job *Job, lock time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, err := ms.lockedEntry(job)
	if err != nil {
		return err
	}

	until := time.Now().Add(lock)
	e.job.LockedUntil = &until

	return nil
}

// GetJob implements Inspector
func (ms *MemoryStorage) GetJob(ctx context.Context, queue, id string) (*Job, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	e, ok := ms.jobs[jobKey{queue: queue, id: id}]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return e.job.Clone(), nil
}

// Counts implements Inspector
func (ms *MemoryStorage) Counts(ctx context.Context, queue string) (JobCounts, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var c JobCounts
	for state, keys := range ms.byState {
		for _, key := range keys {
			if key.queue == queue {
				c.Add(state, 1)
			}
		}
	}
	return c, nil
}

// ListJobs implements Inspector. Jobs are returned in insertion order.
func (ms *MemoryStorage) ListJobs(ctx context.Context, queue string, state JobState, limit int) ([]*Job, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	entries := make([]*memoryEntry, 0)
	for _, key := range ms.byState[state] {
		if key.queue == queue {
			entries = append(entries, ms.jobs[key])
		}
	}
	slices.SortFunc(entries, func(a, b *memoryEntry) int {
		return cmp.Compare(a.seq, b.seq)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]*Job, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.job.Clone())
	}
	return out, nil
}

// RetryJob implements Inspector
func (ms *MemoryStorage) RetryJob(ctx context.Context, queue, id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, ok := ms.jobs[jobKey{queue: queue, id: id}]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if e.job.State != StateFailed {
		return fmt.Errorf("%w: job %s is %s, not failed", ErrInvalidState, id, e.job.State)
	}

	ApplyReplay(e.job, time.Now())
	ms.moveState(e.job, StateFailed)

	return nil
}

// Clean implements Cleaner
func (ms *MemoryStorage) Clean(ctx context.Context, queue string, state JobState, olderThan time.Time, limit int) (int, error) {
	if !state.Terminal() {
		return 0, fmt.Errorf("%w: cannot clean %s jobs", ErrInvalidState, state)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	var victims []*Job
	for _, key := range ms.byState[state] {
		if key.queue != queue {
			continue
		}
		j := ms.jobs[key].job
		if j.FinishedAt != nil && j.FinishedAt.Before(olderThan) {
			victims = append(victims, j)
		}
	}
	slices.SortFunc(victims, func(a, b *Job) int {
		return a.FinishedAt.Compare(*b.FinishedAt)
	})
	if limit > 0 && len(victims) > limit {
		victims = victims[:limit]
	}

	for _, j := range victims {
		ms.delete(j, state)
	}
	return len(victims), nil
}

// Helper methods

// lockedEntry returns the stored entry of a claimed job if the caller still owns its lock.
func (ms *MemoryStorage) lockedEntry(job *Job) (*memoryEntry, error) {
	e, ok := ms.jobs[jobKey{queue: job.Queue, id: job.ID}]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
	}
	if e.job.State != StateActive || e.job.LockToken != job.LockToken {
		return nil, fmt.Errorf("%w: %s", ErrLockLost, job.ID)
	}
	return e, nil
}

// moveState re-indexes a job whose State field was already updated.
func (ms *MemoryStorage) moveState(job *Job, from JobState) {
	key := jobKey{queue: job.Queue, id: job.ID}
	ms.removeFromStateIndex(key, from)
	ms.byState[job.State] = append(ms.byState[job.State], key)
}

func (ms *MemoryStorage) delete(job *Job, from JobState) {
	key := jobKey{queue: job.Queue, id: job.ID}
	ms.removeFromStateIndex(key, from)
	delete(ms.jobs, key)
}

func (ms *MemoryStorage) removeFromStateIndex(key jobKey, state JobState) {
	ms.byState[state] = slices.DeleteFunc(ms.byState[state], func(k jobKey) bool {
		return k == key
	})
}

// promoteDelayed moves delayed jobs whose run time has come to waiting.
func (ms *MemoryStorage) promoteDelayed(queue string, now time.Time) {
	for _, key := range slices.Clone(ms.byState[StateDelayed]) {
		if key.queue != queue {
			continue
		}
		job := ms.jobs[key].job
		if job.RunAt.After(now) {
			continue
		}
		job.State = StateWaiting
		ms.moveState(job, StateDelayed)
	}
}

// lockExpirationManager runs in background to recover jobs from dead workers.
// Without it, jobs claimed by a crashed worker would stay active forever.
func (ms *MemoryStorage) lockExpirationManager() {
	for {
		select {
		case <-ms.lockTicker.C:
			ms.expireLocks(time.Now())
		case <-ms.done:
			return
		}
	}
}

// expireLocks returns active jobs with an expired lock to waiting.
// The attempt count is left untouched: the attempt never reported an outcome.
func (ms *MemoryStorage) expireLocks(now time.Time) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for _, key := range slices.Clone(ms.byState[StateActive]) {
		job := ms.jobs[key].job
		if job.LockedUntil != nil && job.LockedUntil.Before(now) {
			job.State = StateWaiting
			job.LockedUntil = nil
			job.LockToken = ""
			ms.moveState(job, StateActive)
		}
	}
}
