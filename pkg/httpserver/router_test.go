package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/queuekit/pkg/httpserver"
	"github.com/dmitrymomot/queuekit/pkg/queue"
)

type inspectorFunc func(ctx context.Context) (queue.Inspector, error)

func (f inspectorFunc) Inspector(ctx context.Context) (queue.Inspector, error) { return f(ctx) }

func staticInspector(in queue.Inspector) httpserver.InspectorSource {
	return inspectorFunc(func(context.Context) (queue.Inspector, error) { return in, nil })
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

// seedStore returns a memory store holding one waiting job "w1" and one
// failed job "f1" on the "mail-queue" queue.
func seedStore(t *testing.T) *queue.MemoryStorage {
	t.Helper()
	ctx := context.Background()
	ms := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = ms.Close() })

	now := time.Now()
	newJob := func(id string) *queue.Job {
		return &queue.Job{
			ID:        id,
			Queue:     "mail-queue",
			Name:      "send-email",
			Payload:   []byte(`{}`),
			State:     queue.StateWaiting,
			Retry:     queue.RetryPolicy{Attempts: 1, Backoff: queue.FixedBackoff(0)},
			RunAt:     now,
			CreatedAt: now,
		}
	}

	_, err := ms.Enqueue(ctx, newJob("f1"))
	require.NoError(t, err)
	claimed, err := ms.Dequeue(ctx, "mail-queue", time.Minute)
	require.NoError(t, err)
	_, err = ms.Fail(ctx, claimed, queue.Failure{Reason: "smtp: connection refused", Retryable: true})
	require.NoError(t, err)

	_, err = ms.Enqueue(ctx, newJob("w1"))
	require.NoError(t, err)
	return ms
}

func TestHealthRoutes(t *testing.T) {
	t.Parallel()

	t.Run("live", func(t *testing.T) {
		t.Parallel()
		rec := do(t, httpserver.NewRouter(), http.MethodGet, "/health/live")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
	})

	t.Run("ready", func(t *testing.T) {
		t.Parallel()
		h := httpserver.NewRouter(
			httpserver.WithRouterLogger(quietLogger()),
			httpserver.WithReadinessCheck("redis", func(context.Context) error { return nil }),
		)
		rec := do(t, h, http.MethodGet, "/health/ready")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ready","checks":{"redis":"ok"}}`, rec.Body.String())
	})

	t.Run("not ready", func(t *testing.T) {
		t.Parallel()
		h := httpserver.NewRouter(
			httpserver.WithRouterLogger(quietLogger()),
			httpserver.WithReadinessCheck("redis", func(context.Context) error { return nil }),
			httpserver.WithReadinessCheck("postgres", func(context.Context) error { return errors.New("connection refused") }),
		)
		rec := do(t, h, http.MethodGet, "/health/ready")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.JSONEq(t, `{"status":"not_ready","checks":{"redis":"ok","postgres":"connection refused"}}`, rec.Body.String())
	})

	t.Run("check timeout", func(t *testing.T) {
		t.Parallel()
		h := httpserver.NewRouter(
			httpserver.WithRouterLogger(quietLogger()),
			httpserver.WithReadinessTimeout(20*time.Millisecond),
			httpserver.WithReadinessCheck("slow", func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			}),
		)
		rec := do(t, h, http.MethodGet, "/health/ready")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	queue.NewMetrics(reg).Middleware()(queue.HandlerFunc(func(context.Context, *queue.Job) (any, error) {
		return nil, nil
	})).Handle(context.Background(), &queue.Job{Queue: "mail-queue", Name: "send-email"})

	rec := do(t, httpserver.NewRouter(httpserver.WithMetrics(reg)), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `queuekit_jobs_processed_total{job_name="send-email",queue="mail-queue",status="ok"} 1`)

	rec = do(t, httpserver.NewRouter(), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueueRoutes(t *testing.T) {
	t.Parallel()

	newRouter := func(t *testing.T) http.Handler {
		return httpserver.NewRouter(
			httpserver.WithRouterLogger(quietLogger()),
			httpserver.WithQueueInspection(staticInspector(seedStore(t))),
		)
	}

	t.Run("counts", func(t *testing.T) {
		t.Parallel()
		rec := do(t, newRouter(t), http.MethodGet, "/queues/mail-queue")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"queue":"mail-queue","counts":{"waiting":1,"active":0,"completed":0,"failed":1,"delayed":0}}`, rec.Body.String())
	})

	t.Run("list failed by default", func(t *testing.T) {
		t.Parallel()
		rec := do(t, newRouter(t), http.MethodGet, "/queues/mail-queue/jobs")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			State string      `json:"state"`
			Jobs  []queue.Job `json:"jobs"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "failed", body.State)
		require.Len(t, body.Jobs, 1)
		assert.Equal(t, "f1", body.Jobs[0].ID)
		assert.Equal(t, "smtp: connection refused", body.Jobs[0].FailedReason)
	})

	t.Run("list bad params", func(t *testing.T) {
		t.Parallel()
		h := newRouter(t)
		assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/queues/mail-queue/jobs?state=lost").Code)
		assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/queues/mail-queue/jobs?limit=-1").Code)
	})

	t.Run("get job", func(t *testing.T) {
		t.Parallel()
		h := newRouter(t)

		rec := do(t, h, http.MethodGet, "/queues/mail-queue/jobs/w1")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"state":"waiting"`)

		rec = do(t, h, http.MethodGet, "/queues/mail-queue/jobs/missing")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("retry", func(t *testing.T) {
		t.Parallel()
		h := newRouter(t)

		rec := do(t, h, http.MethodPost, "/queues/mail-queue/jobs/f1/retry")
		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Contains(t, rec.Body.String(), `"state":"waiting"`)

		rec = do(t, h, http.MethodPost, "/queues/mail-queue/jobs/f1/retry")
		assert.Equal(t, http.StatusConflict, rec.Code)

		rec = do(t, h, http.MethodPost, "/queues/mail-queue/jobs/missing/retry")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("inspector unavailable", func(t *testing.T) {
		t.Parallel()
		h := httpserver.NewRouter(
			httpserver.WithRouterLogger(quietLogger()),
			httpserver.WithQueueInspection(inspectorFunc(func(context.Context) (queue.Inspector, error) {
				return nil, queue.ErrRuntimeClosed
			})),
		)
		rec := do(t, h, http.MethodGet, "/queues/mail-queue")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.True(t, strings.Contains(rec.Body.String(), "shut down"))
	})
}
