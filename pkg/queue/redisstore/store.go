package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/queuekit/pkg/queue"
)

// maxTxRetries bounds optimistic transaction retries on a contended job key.
const maxTxRetries = 5

var errContention = errors.New("redisstore: job key changed concurrently")

// Store implements queue.Store and queue.Inspector on Redis.
type Store struct {
	client     goredis.UniversalClient
	prefix     string
	ownsClient bool
	now        func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key namespace. Queues with the same name under
// different prefixes are independent.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithOwnedClient makes Close close the Redis client.
// Leave it off when the client comes from a shared redis.Provider.
func WithOwnedClient() Option {
	return func(s *Store) {
		s.ownsClient = true
	}
}

// New creates a store on an existing client.
func New(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close implements queue.Store.
func (s *Store) Close() error {
	if !s.ownsClient {
		return nil
	}
	return s.client.Close()
}

// Enqueue implements queue.Store. Jobs without an ID get the next value of
// the queue's counter.
func (s *Store) Enqueue(ctx context.Context, job *queue.Job) (*queue.Job, error) {
	if job == nil {
		return nil, fmt.Errorf("redisstore: job cannot be nil")
	}

	k := newKeys(s.prefix, job.Queue)
	stored := job.Clone()

	if stored.ID == "" {
		id, err := s.client.Incr(ctx, k.seq()).Result()
		if err != nil {
			return nil, fmt.Errorf("redisstore: next job id: %w", err)
		}
		stored.ID = strconv.FormatInt(id, 10)
	}
	if !stored.State.Valid() || stored.State == queue.StateActive || stored.State.Terminal() {
		stored.State = queue.StateWaiting
	}
	stored.LockToken = ""
	stored.LockedUntil = nil

	fields, err := encodeJob(stored)
	if err != nil {
		return nil, err
	}

	created, err := enqueueScript.Run(ctx, s.client,
		[]string{k.job(stored.ID), k.wait(), k.delayed()},
		stored.ID,
		fields[fieldData],
		string(stored.State),
		int(stored.Priority),
		stored.RunAt.UnixMilli(),
		waitScore(stored.Priority, stored.RunAt),
	).Int()
	if err != nil {
		return nil, fmt.Errorf("redisstore: enqueue job %s: %w", stored.ID, err)
	}
	if created == 0 {
		return s.GetJob(ctx, stored.Queue, stored.ID)
	}

	return stored, nil
}

// Dequeue implements queue.Store.
func (s *Store) Dequeue(ctx context.Context, name string, lock time.Duration) (*queue.Job, error) {
	k := newKeys(s.prefix, name)

	reply, err := dequeueScript.Run(ctx, s.client,
		[]string{k.wait(), k.delayed(), k.active()},
		s.now().UnixMilli(),
		lock.Milliseconds(),
		uuid.NewString(),
		k.jobPrefix(),
		priorityWeight,
	).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, queue.ErrNoJob
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: dequeue from %s: %w", name, err)
	}

	fields, err := pairs(reply)
	if err != nil {
		return nil, fmt.Errorf("redisstore: dequeue from %s: %w", name, err)
	}
	return decodeJob(fields)
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
	fields, err := s.client.HGetAll(ctx, newKeys(s.prefix, name).job(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: get job %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", queue.ErrJobNotFound, id)
	}
	return decodeJob(fields)
}

// Counts implements queue.Inspector.
func (s *Store) Counts(ctx context.Context, name string) (queue.JobCounts, error) {
	k := newKeys(s.prefix, name)
	states := queue.States()
	cmds := make([]*goredis.IntCmd, len(states))

	_, err := s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, state := range states {
			cmds[i] = pipe.ZCard(ctx, k.set(state))
		}
		return nil
	})
	if err != nil {
		return queue.JobCounts{}, fmt.Errorf("redisstore: count jobs in %s: %w", name, err)
	}

	var c queue.JobCounts
	for i, state := range states {
		c.Add(state, cmds[i].Val())
	}
	return c, nil
}

// ListJobs implements queue.Inspector. Waiting jobs come in claim order,
// the other states by their timestamp.
func (s *Store) ListJobs(ctx context.Context, name string, state queue.JobState, limit int) ([]*queue.Job, error) {
	k := newKeys(s.prefix, name)

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.ZRange(ctx, k.set(state), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list %s jobs in %s: %w", state, name, err)
	}
	if len(ids) == 0 {
		return []*queue.Job{}, nil
	}

	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, k.job(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redisstore: list %s jobs in %s: %w", state, name, err)
	}

	out := make([]*queue.Job, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		j, err := decodeJob(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// Clean implements queue.Cleaner.
func (s *Store) Clean(ctx context.Context, name string, state queue.JobState, olderThan time.Time, limit int) (int, error) {
	if !state.Terminal() {
		return 0, fmt.Errorf("%w: cannot clean %s jobs", queue.ErrInvalidState, state)
	}
	if limit <= 0 {
		limit = -1
	}

	k := newKeys(s.prefix, name)
	n, err := cleanScript.Run(ctx, s.client,
		[]string{k.set(state)},
		olderThan.UnixMilli(), limit, k.jobPrefix(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("redisstore: clean %s jobs in %s: %w", state, name, err)
	}
	return n, nil
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

// transition loads a job under WATCH, lets fn mutate it and writes it back
// together with its sorted set membership.
func (s *Store) transition(ctx context.Context, name, id string, fn func(*queue.Job) error) (*queue.Job, error) {
	k := newKeys(s.prefix, name)
	key := k.job(id)

	var out *queue.Job
	txf := func(tx *goredis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return fmt.Errorf("%w: %s", queue.ErrJobNotFound, id)
		}

		j, err := decodeJob(fields)
		if err != nil {
			return err
		}
		from := j.State
		if err := fn(j); err != nil {
			return err
		}

		data, err := encodeJob(j)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.ZRem(ctx, k.set(from), id)
			if removed(j) {
				pipe.Del(ctx, key)
				return nil
			}
			pipe.HSet(ctx, key, data)
			if j.State == queue.StateActive {
				pipe.HSet(ctx, key, fieldToken, j.LockToken)
			} else {
				pipe.HDel(ctx, key, fieldToken)
			}
			pipe.ZAdd(ctx, k.set(j.State), goredis.Z{Score: score(j), Member: id})
			return nil
		})
		if err != nil {
			return err
		}
		out = j
		return nil
	}

	for range maxTxRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, queue.ErrLockLost) || errors.Is(err, queue.ErrJobNotFound) || errors.Is(err, queue.ErrInvalidState) {
				return nil, err
			}
			return nil, fmt.Errorf("redisstore: update job %s: %w", id, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s", errContention, key)
}

func removed(j *queue.Job) bool {
	return (j.State == queue.StateCompleted && j.RemoveOnComplete) ||
		(j.State == queue.StateFailed && j.RemoveOnFail)
}
