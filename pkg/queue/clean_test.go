package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/queuekit/pkg/queue"
)

type storeSource struct {
	store queue.Store
	err   error
}

func (s storeSource) Store(context.Context) (queue.Store, error) {
	return s.store, s.err
}

func cleanJob(t *testing.T, p queue.CleanPayload) *queue.Job {
	t.Helper()
	b, err := json.Marshal(p)
	require.NoError(t, err)
	return &queue.Job{Queue: "maintenance", Name: queue.CleanJobName, Payload: b}
}

func TestCleanHandler(t *testing.T) {
	t.Parallel()
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("removes finished jobs", func(t *testing.T) {
		t.Parallel()
		s := newStorage(t)
		ctx := context.Background()

		_, err := s.Enqueue(ctx, newTestJob("mail", "done"))
		require.NoError(t, err)
		job, err := s.Dequeue(ctx, "mail", time.Minute)
		require.NoError(t, err)
		require.NoError(t, s.Complete(ctx, job, nil))

		failing := newTestJob("mail", "broken")
		failing.Retry = queue.RetryPolicy{Attempts: 1}
		_, err = s.Enqueue(ctx, failing)
		require.NoError(t, err)
		job, err = s.Dequeue(ctx, "mail", time.Minute)
		require.NoError(t, err)
		_, err = s.Fail(ctx, job, queue.Failure{Reason: "boom"})
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)

		h := queue.NewCleanHandler(storeSource{store: s}, discard)
		res, err := h.Handle(ctx, cleanJob(t, queue.CleanPayload{
			Queues:    []string{"mail"},
			OlderThan: time.Millisecond,
		}))
		require.NoError(t, err)

		out, ok := res.(queue.CleanResult)
		require.True(t, ok)
		assert.Equal(t, map[string]int{"mail:completed": 1, "mail:failed": 1}, out.Removed)

		counts, err := s.Counts(ctx, "mail")
		require.NoError(t, err)
		assert.Equal(t, queue.JobCounts{}, counts)
	})

	t.Run("invalid payload is permanent", func(t *testing.T) {
		t.Parallel()
		h := queue.NewCleanHandler(storeSource{store: newStorage(t)}, discard)

		for name, p := range map[string]queue.CleanPayload{
			"no queues":    {OlderThan: time.Hour},
			"no age":       {Queues: []string{"mail"}},
			"active state": {Queues: []string{"mail"}, OlderThan: time.Hour, States: []queue.JobState{queue.StateActive}},
		} {
			_, err := h.Handle(context.Background(), cleanJob(t, p))
			assert.ErrorIs(t, err, queue.ErrInvalidInput, name)
			assert.True(t, queue.IsPermanent(err), name)
		}
	})

	t.Run("store without cleaner", func(t *testing.T) {
		t.Parallel()
		h := queue.NewCleanHandler(storeSource{store: &mockStore{}}, discard)

		_, err := h.Handle(context.Background(), cleanJob(t, queue.CleanPayload{Queues: []string{"mail"}, OlderThan: time.Hour}))
		assert.ErrorIs(t, err, queue.ErrConfiguration)
		assert.True(t, queue.IsPermanent(err))
	})

	t.Run("store unavailable is retryable", func(t *testing.T) {
		t.Parallel()
		h := queue.NewCleanHandler(storeSource{err: errors.New("dial failed")}, discard)

		_, err := h.Handle(context.Background(), cleanJob(t, queue.CleanPayload{Queues: []string{"mail"}, OlderThan: time.Hour}))
		require.Error(t, err)
		assert.False(t, queue.IsPermanent(err))
	})
}
