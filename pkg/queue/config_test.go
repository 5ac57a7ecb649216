package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/queuekit/pkg/queue"
)

func TestConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		var cfg queue.Config
		require.NoError(t, env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}))

		assert.Equal(t, 5, cfg.Concurrency)
		assert.Equal(t, 5*time.Minute, cfg.JobTimeout)
		assert.Equal(t, queue.DefaultRetryPolicy(), cfg.RetryPolicy())
		assert.Len(t, cfg.WorkerOptions(), 5)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Parallel()
		var cfg queue.Config
		require.NoError(t, env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{
			"QUEUE_CONCURRENCY":    "2",
			"QUEUE_ATTEMPTS":       "7",
			"QUEUE_BACKOFF_DELAY":  "250ms",
			"QUEUE_LIMITER_MAX":    "10",
			"QUEUE_LIMITER_WINDOW": "1s",
		}}))

		assert.Equal(t, 2, cfg.Concurrency)
		p := cfg.RetryPolicy()
		assert.Equal(t, 7, p.Attempts)
		assert.Equal(t, 250*time.Millisecond, p.Backoff.Delay)
		assert.Len(t, cfg.WorkerOptions(), 6)
	})

	t.Run("zero job timeout disables the deadline", func(t *testing.T) {
		t.Parallel()
		var cfg queue.Config
		require.NoError(t, env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{
			"QUEUE_JOB_TIMEOUT": "0s",
		}}))
		require.Zero(t, cfg.JobTimeout)

		w := newWorkerEnv(t)
		hasDeadline := make(chan bool, 1)
		w.start(t, "q", queue.HandlerFunc(func(ctx context.Context, _ *queue.Job) (any, error) {
			_, ok := ctx.Deadline()
			hasDeadline <- ok
			return nil, nil
		}), cfg.WorkerOptions()...)

		w.add(t, "q", "no-deadline", nil)
		select {
		case ok := <-hasDeadline:
			assert.False(t, ok)
		case <-time.After(3 * time.Second):
			t.Fatal("job never ran")
		}
	})
}
