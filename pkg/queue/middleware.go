package queue

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrymomot/queuekit/pkg/logger"
)

// tracerName is the instrumentation scope name for job tracing.
const tracerName = "github.com/dmitrymomot/queuekit/pkg/queue"

// Middleware wraps a Handler with cross-cutting logic.
type Middleware func(next Handler) Handler

// Chain wraps h with mws. The first middleware is the outermost:
// Chain(h, a, b) runs a -> b -> h.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}

// Tracing wraps job execution in a span from the global TracerProvider.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer wraps job execution in a span from the given tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, job *Job) (any, error) {
			ctx, span := tracer.Start(ctx, "queue.job.process",
				trace.WithSpanKind(trace.SpanKindConsumer),
				trace.WithAttributes(
					attribute.String("queue.name", job.Queue),
					attribute.String("queue.job.id", job.ID),
					attribute.String("queue.job.name", job.Name),
					attribute.Int("queue.job.attempt", job.AttemptsMade+1),
				),
			)
			defer span.End()

			result, err := next.Handle(ctx, job)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return result, err
		})
	}
}

// LogExtractor is a logger.ContextExtractor that reports the job being
// processed. Register it with logger.WithContextExtractors so handler logs
// carry the job identity.
func LogExtractor(ctx context.Context) (slog.Attr, bool) {
	job, ok := JobFromContext(ctx)
	if !ok {
		return slog.Attr{}, false
	}
	return logger.Group("job",
		logger.JobID(job.ID),
		logger.JobName(job.Name),
		logger.Queue(job.Queue),
	), true
}

type jobContextKey struct{}

// WithJob returns a context carrying job.
func WithJob(ctx context.Context, job *Job) context.Context {
	return context.WithValue(ctx, jobContextKey{}, job)
}

// JobFromContext returns the job being processed, if any.
func JobFromContext(ctx context.Context) (*Job, bool) {
	job, ok := ctx.Value(jobContextKey{}).(*Job)
	return job, ok && job != nil
}
