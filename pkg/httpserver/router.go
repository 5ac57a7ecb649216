package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/queuekit/pkg/queue"
)

// InspectorSource hands out the queue inspector. *queue.Runtime implements it.
type InspectorSource interface {
	Inspector(ctx context.Context) (queue.Inspector, error)
}

// RouterOption configures NewRouter.
type RouterOption func(*router)

type router struct {
	logger           *slog.Logger
	checks           map[string]Check
	readinessTimeout time.Duration
	gatherer         prometheus.Gatherer
	queues           InspectorSource
}

// WithReadinessCheck adds a named check to /health/ready.
func WithReadinessCheck(name string, c Check) RouterOption {
	return func(r *router) {
		if name != "" && c != nil {
			r.checks[name] = c
		}
	}
}

// WithReadinessTimeout bounds the readiness checks of one request.
func WithReadinessTimeout(d time.Duration) RouterOption {
	return func(r *router) { r.readinessTimeout = d }
}

// WithMetrics serves the gatherer on /metrics.
func WithMetrics(g prometheus.Gatherer) RouterOption {
	return func(r *router) { r.gatherer = g }
}

// WithQueueInspection mounts the /queues endpoints.
func WithQueueInspection(src InspectorSource) RouterOption {
	return func(r *router) { r.queues = src }
}

// WithRouterLogger sets the logger used by the handlers.
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *router) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRouter builds the operational routes:
//
//	GET  /health/live
//	GET  /health/ready
//	GET  /metrics                           (WithMetrics)
//	GET  /queues/{queue}                    (WithQueueInspection)
//	GET  /queues/{queue}/jobs?state=&limit=
//	GET  /queues/{queue}/jobs/{id}
//	POST /queues/{queue}/jobs/{id}/retry
func NewRouter(opts ...RouterOption) http.Handler {
	cfg := &router{
		logger:           slog.Default(),
		checks:           make(map[string]Check),
		readinessTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	r.Use(RequestID, middleware.Recoverer)

	r.Get("/health/live", LivenessHandler())
	r.Get("/health/ready", ReadinessHandler(cfg.logger, cfg.readinessTimeout, cfg.checks))

	if cfg.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{}))
	}

	if cfg.queues != nil {
		h := &queueHandlers{src: cfg.queues, logger: cfg.logger}
		r.Route("/queues/{queue}", func(r chi.Router) {
			r.Get("/", h.counts)
			r.Get("/jobs", h.list)
			r.Get("/jobs/{id}", h.get)
			r.Post("/jobs/{id}/retry", h.retry)
		})
	}

	return r
}
