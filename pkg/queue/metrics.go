package queue

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for job processing.
type Metrics struct {
	processed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	inFlight  *prometheus.GaugeVec
}

// NewMetrics registers job collectors on reg. Pass prometheus.DefaultRegisterer
// to expose them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		processed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "queuekit_jobs_processed_total",
			Help: "Total number of job executions by outcome.",
		}, []string{"queue", "job_name", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "queuekit_job_duration_seconds",
			Help:    "Duration of job executions in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"queue", "job_name"}),
		inFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "queuekit_jobs_in_flight",
			Help: "Number of jobs currently being processed.",
		}, []string{"queue"}),
	}
}

// Middleware records execution count, duration and in-flight jobs.
func (m *Metrics) Middleware() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, job *Job) (any, error) {
			gauge := m.inFlight.WithLabelValues(job.Queue)
			gauge.Inc()
			defer gauge.Dec()

			start := time.Now()
			result, err := next.Handle(ctx, job)

			status := "ok"
			if err != nil {
				status = "error"
			}
			m.processed.WithLabelValues(job.Queue, job.Name, status).Inc()
			m.duration.WithLabelValues(job.Queue, job.Name).Observe(time.Since(start).Seconds())

			return result, err
		})
	}
}
