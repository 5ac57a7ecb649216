package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/queuekit/pkg/pg"
	"github.com/dmitrymomot/queuekit/pkg/queue"
)

// recoverBatch bounds how many delayed or stalled jobs one Dequeue moves.
const recoverBatch = 1000

const jobColumns = `data, state, lock_token, locked_until, started_at`

const (
	insertSQL = `
INSERT INTO queuekit_jobs (queue, id, name, state, priority, run_at, data, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (queue, id) DO NOTHING`

	promoteSQL = `
UPDATE queuekit_jobs SET state = 'waiting'
WHERE (queue, id) IN (
	SELECT queue, id FROM queuekit_jobs
	WHERE queue = $1 AND state = 'delayed' AND run_at <= $2
	ORDER BY run_at
	LIMIT $3
	FOR UPDATE SKIP LOCKED
)`

	recoverSQL = `
UPDATE queuekit_jobs SET state = 'waiting', locked_until = NULL, lock_token = NULL
WHERE (queue, id) IN (
	SELECT queue, id FROM queuekit_jobs
	WHERE queue = $1 AND state = 'active' AND locked_until < $2
	LIMIT $3
	FOR UPDATE SKIP LOCKED
)`

	claimSQL = `
UPDATE queuekit_jobs SET state = 'active', lock_token = $2, locked_until = $3, started_at = $4
WHERE (queue, id) = (
	SELECT queue, id FROM queuekit_jobs
	WHERE queue = $1 AND state = 'waiting'
	ORDER BY priority DESC, run_at, seq
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING ` + jobColumns

	selectForUpdateSQL = `SELECT ` + jobColumns + ` FROM queuekit_jobs WHERE queue = $1 AND id = $2 FOR UPDATE`

	selectSQL = `SELECT ` + jobColumns + ` FROM queuekit_jobs WHERE queue = $1 AND id = $2`

	updateSQL = `
UPDATE queuekit_jobs
SET state = $3, priority = $4, run_at = $5, locked_until = $6, lock_token = $7,
	started_at = $8, finished_at = $9, data = $10
WHERE queue = $1 AND id = $2`

	deleteSQL = `DELETE FROM queuekit_jobs WHERE queue = $1 AND id = $2`

	countSQL = `SELECT state, count(*) FROM queuekit_jobs WHERE queue = $1 GROUP BY state`

	cleanSQL = `
DELETE FROM queuekit_jobs
WHERE (queue, id) IN (
	SELECT queue, id FROM queuekit_jobs
	WHERE queue = $1 AND state = $2 AND finished_at < $3
	ORDER BY finished_at
	LIMIT $4
	FOR UPDATE SKIP LOCKED
)`

	listSQL = `SELECT ` + jobColumns + ` FROM queuekit_jobs WHERE queue = $1 AND state = $2 ORDER BY seq LIMIT $3`
)

// Store implements queue.Store and queue.Inspector on PostgreSQL.
type Store struct {
	pool     *pgxpool.Pool
	ownsPool bool
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithOwnedPool makes Close close the pool.
func WithOwnedPool() Option {
	return func(s *Store) {
		s.ownsPool = true
	}
}

// New creates a store on an existing pool. The schema must already be
// migrated, see Migrate.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close implements queue.Store.
func (s *Store) Close() error {
	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}

// Enqueue implements queue.Store. Jobs without an ID get a random UUID.
func (s *Store) Enqueue(ctx context.Context, job *queue.Job) (*queue.Job, error) {
	if job == nil {
		return nil, fmt.Errorf("pgstore: job cannot be nil")
	}

	stored := job.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if !stored.State.Valid() || stored.State == queue.StateActive || stored.State.Terminal() {
		stored.State = queue.StateWaiting
	}
	stored.LockToken = ""
	stored.LockedUntil = nil

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("pgstore: encode job: %w", err)
	}

	tag, err := s.pool.Exec(ctx, insertSQL,
		stored.Queue, stored.ID, stored.Name, string(stored.State), int16(stored.Priority),
		stored.RunAt, string(data), stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("pgstore: enqueue job %s: %w", stored.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return s.GetJob(ctx, stored.Queue, stored.ID)
	}
	return stored, nil
}

// Dequeue implements queue.Store.
func (s *Store) Dequeue(ctx context.Context, name string, lock time.Duration) (*queue.Job, error) {
	now := s.now()

	var job *queue.Job
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, promoteSQL, name, now, recoverBatch); err != nil {
			return fmt.Errorf("promote delayed: %w", err)
		}
		if _, err := tx.Exec(ctx, recoverSQL, name, now, recoverBatch); err != nil {
			return fmt.Errorf("recover stalled: %w", err)
		}

		j, err := scanJob(tx.QueryRow(ctx, claimSQL, name, uuid.NewString(), now.Add(lock), now))
		if err != nil {
			return err
		}
		job = j
		return nil
	})
	if pg.IsNotFoundError(err) {
		return nil, queue.ErrNoJob
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: dequeue from %s: %w", name, err)
	}
	return job, nil
}

// Complete implements queue.Store.
func (s *Store) Complete(ctx context.Context, job *queue.Job, result []byte) error {
	_, err := s.transition(ctx, job.Queue, job.ID, func(j *queue.Job) error {
		if err := owned(j, job); err != nil {
			return err
		}
		queue.ApplyCompletion(j, result, s.now())
		return nil
	})
	return err
}

// Fail implements queue.Store.
func (s *Store) Fail(ctx context.Context, job *queue.Job, failure queue.Failure) (*queue.Job, error) {
	return s.transition(ctx, job.Queue, job.ID, func(j *queue.Job) error {
		if err := owned(j, job); err != nil {
			return err
		}
		queue.ApplyFailure(j, failure, s.now())
		return nil
	})
}

// ExtendLock implements queue.Store.
func (s *Store) ExtendLock(ctx context.Context, job *queue.Job, lock time.Duration) error {
	_, err := s.transition(ctx, job.Queue, job.ID, func(j *queue.Job) error {
		if err := owned(j, job); err != nil {
			return err
		}
		until := s.now().Add(lock)
		j.LockedUntil = &until
		return nil
	})
	return err
}

// GetJob implements queue.Inspector.
func (s *Store) GetJob(ctx context.Context, name, id string) (*queue.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, selectSQL, name, id))
	if pg.IsNotFoundError(err) {
		return nil, fmt.Errorf("%w: %s", queue.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get job %s: %w", id, err)
	}
	return j, nil
}

// Counts implements queue.Inspector.
func (s *Store) Counts(ctx context.Context, name string) (queue.JobCounts, error) {
	rows, err := s.pool.Query(ctx, countSQL, name)
	if err != nil {
		return queue.JobCounts{}, fmt.Errorf("pgstore: count jobs in %s: %w", name, err)
	}
	defer rows.Close()

	var c queue.JobCounts
	for rows.Next() {
		var (
			state string
			n     int64
		)
		if err := rows.Scan(&state, &n); err != nil {
			return queue.JobCounts{}, fmt.Errorf("pgstore: count jobs in %s: %w", name, err)
		}
		c.Add(queue.JobState(state), n)
	}
	if err := rows.Err(); err != nil {
		return queue.JobCounts{}, fmt.Errorf("pgstore: count jobs in %s: %w", name, err)
	}
	return c, nil
}

// ListJobs implements queue.Inspector. Jobs are returned in insertion order.
func (s *Store) ListJobs(ctx context.Context, name string, state queue.JobState, limit int) ([]*queue.Job, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}

	rows, err := s.pool.Query(ctx, listSQL, name, string(state), lim)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list %s jobs in %s: %w", state, name, err)
	}
	defer rows.Close()

	out := make([]*queue.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstore: list %s jobs in %s: %w", state, name, err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: list %s jobs in %s: %w", state, name, err)
	}
	return out, nil
}

// Clean implements queue.Cleaner.
func (s *Store) Clean(ctx context.Context, name string, state queue.JobState, olderThan time.Time, limit int) (int, error) {
	if !state.Terminal() {
		return 0, fmt.Errorf("%w: cannot clean %s jobs", queue.ErrInvalidState, state)
	}

	var lim *int
	if limit > 0 {
		lim = &limit
	}

	tag, err := s.pool.Exec(ctx, cleanSQL, name, string(state), olderThan, lim)
	if err != nil {
		return 0, fmt.Errorf("pgstore: clean %s jobs in %s: %w", state, name, err)
	}
	return int(tag.RowsAffected()), nil
}

// RetryJob implements queue.Inspector.
func (s *Store) RetryJob(ctx context.Context, name, id string) error {
	_, err := s.transition(ctx, name, id, func(j *queue.Job) error {
		if j.State != queue.StateFailed {
			return fmt.Errorf("%w: job %s is %s, not failed", queue.ErrInvalidState, id, j.State)
		}
		queue.ApplyReplay(j, s.now())
		return nil
	})
	return err
}

func owned(stored, claimed *queue.Job) error {
	if stored.State != queue.StateActive || stored.LockToken != claimed.LockToken {
		return fmt.Errorf("%w: %s", queue.ErrLockLost, claimed.ID)
	}
	return nil
}

// transition locks the job row, lets fn mutate the job and writes it back
// in the same transaction.
func (s *Store) transition(ctx context.Context, name, id string, fn func(*queue.Job) error) (*queue.Job, error) {
	var out *queue.Job
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		j, err := scanJob(tx.QueryRow(ctx, selectForUpdateSQL, name, id))
		if pg.IsNotFoundError(err) {
			return fmt.Errorf("%w: %s", queue.ErrJobNotFound, id)
		}
		if err != nil {
			return err
		}

		if err := fn(j); err != nil {
			return err
		}

		if removed(j) {
			_, err = tx.Exec(ctx, deleteSQL, name, id)
		} else {
			err = update(ctx, tx, j)
		}
		if err != nil {
			return fmt.Errorf("pgstore: update job %s: %w", id, err)
		}

		out = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func update(ctx context.Context, tx pgx.Tx, j *queue.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return err
	}

	var token *string
	if j.LockToken != "" {
		token = &j.LockToken
	}

	_, err = tx.Exec(ctx, updateSQL,
		j.Queue, j.ID, string(j.State), int16(j.Priority), j.RunAt,
		j.LockedUntil, token, j.StartedAt, j.FinishedAt, string(data))
	return err
}

func removed(j *queue.Job) bool {
	return (j.State == queue.StateCompleted && j.RemoveOnComplete) ||
		(j.State == queue.StateFailed && j.RemoveOnFail)
}

// scanJob decodes a row of jobColumns. Columns the SQL statements change on
// their own take precedence over the JSON document.
func scanJob(row pgx.Row) (*queue.Job, error) {
	var (
		data        []byte
		state       string
		token       *string
		lockedUntil *time.Time
		startedAt   *time.Time
	)
	if err := row.Scan(&data, &state, &token, &lockedUntil, &startedAt); err != nil {
		return nil, err
	}

	var j queue.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}

	j.State = queue.JobState(state)
	if startedAt != nil {
		j.StartedAt = startedAt
	}
	if j.State == queue.StateActive {
		j.LockedUntil = lockedUntil
		if token != nil {
			j.LockToken = *token
		}
	} else {
		j.LockedUntil = nil
		j.LockToken = ""
	}
	return &j, nil
}
