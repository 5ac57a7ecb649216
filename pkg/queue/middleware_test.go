package queue_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/dmitrymomot/queuekit/pkg/logger"
	"github.com/dmitrymomot/queuekit/pkg/queue"
)

func TestChain(t *testing.T) {
	t.Parallel()

	var order []string
	mw := func(name string) queue.Middleware {
		return func(next queue.Handler) queue.Handler {
			return queue.HandlerFunc(func(ctx context.Context, job *queue.Job) (any, error) {
				order = append(order, name)
				return next.Handle(ctx, job)
			})
		}
	}

	h := queue.Chain(queue.HandlerFunc(func(context.Context, *queue.Job) (any, error) {
		order = append(order, "handler")
		return nil, nil
	}), mw("a"), nil, mw("b"))

	_, err := h.Handle(context.Background(), &queue.Job{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}

func TestTracing(t *testing.T) {
	t.Parallel()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	mw := queue.TracingWithTracer(tp.Tracer("test"))
	ok := mw(queue.HandlerFunc(func(context.Context, *queue.Job) (any, error) { return "done", nil }))
	bad := mw(queue.HandlerFunc(func(context.Context, *queue.Job) (any, error) { return nil, errors.New("smtp down") }))

	job := &queue.Job{ID: "7", Queue: "mail-queue", Name: "send-email", AttemptsMade: 1}

	_, err := ok.Handle(context.Background(), job)
	require.NoError(t, err)
	_, err = bad.Handle(context.Background(), job)
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "queue.job.process", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("queue.job.id", "7"))
	assert.Contains(t, spans[0].Attributes(), attribute.Int("queue.job.attempt", 2))

	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "smtp down", spans[1].Status().Description)
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := queue.NewMetrics(reg)

	ok := m.Middleware()(queue.HandlerFunc(func(context.Context, *queue.Job) (any, error) { return nil, nil }))
	bad := m.Middleware()(queue.HandlerFunc(func(context.Context, *queue.Job) (any, error) { return nil, errors.New("boom") }))

	job := &queue.Job{Queue: "q", Name: "a"}
	_, _ = ok.Handle(context.Background(), job)
	_, _ = ok.Handle(context.Background(), job)
	_, _ = bad.Handle(context.Background(), job)

	expected := `
# HELP queuekit_jobs_processed_total Total number of job executions by outcome.
# TYPE queuekit_jobs_processed_total counter
queuekit_jobs_processed_total{job_name="a",queue="q",status="error"} 1
queuekit_jobs_processed_total{job_name="a",queue="q",status="ok"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "queuekit_jobs_processed_total"))

	count, err := testutil.GatherAndCount(reg, "queuekit_job_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLogExtractor(t *testing.T) {
	t.Parallel()

	_, ok := queue.LogExtractor(context.Background())
	assert.False(t, ok)

	buf := &bytes.Buffer{}
	log := logger.New(
		logger.WithOutput(buf),
		logger.WithContextExtractors(queue.LogExtractor),
	)

	ctx := queue.WithJob(context.Background(), &queue.Job{ID: "9", Name: "send-email", Queue: "mail-queue"})
	log.InfoContext(ctx, "sending")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	job, ok := entry["job"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "9", job["job_id"])
	assert.Equal(t, "send-email", job["job_name"])
	assert.Equal(t, "mail-queue", job["queue"])
}
