// Package httpserver runs the operational HTTP endpoints of a worker
// process: liveness and readiness probes, Prometheus metrics and a small
// read/replay API over queue contents.
//
// Server wraps net/http with graceful shutdown tied to a context, configurable
// timeouts and start/stop hooks. NewRouter builds the chi routes:
//
//	GET  /health/live                       always 200 while serving
//	GET  /health/ready                      200 when every check passes, 503 otherwise
//	GET  /metrics                           Prometheus exposition
//	GET  /queues/{queue}                    job counts per state
//	GET  /queues/{queue}/jobs               jobs in ?state= (default failed), ?limit=
//	GET  /queues/{queue}/jobs/{id}          one job
//	POST /queues/{queue}/jobs/{id}/retry    replay a failed job
//
// # Usage
//
//	h := httpserver.NewRouter(
//		httpserver.WithRouterLogger(log),
//		httpserver.WithReadinessCheck("redis", redis.Healthcheck(client)),
//		httpserver.WithMetrics(prometheus.DefaultGatherer),
//		httpserver.WithQueueInspection(rt),
//	)
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	g.Go(func() error { return srv.Run(ctx, h) })
//
// # Errors
//
// Run wraps listen and serve errors with ErrStart; Shutdown wraps the
// underlying error with ErrShutdown.
package httpserver
