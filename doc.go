// Package queuekit is a Redis-backed job queue and worker runtime.
//
// Producers add named jobs with JSON payloads to named queues; worker
// processes claim them, run the handler bound to the job name and record the
// outcome. Failed jobs are retried with backoff until their attempt budget is
// spent. Delivery is at least once: a job whose worker dies is handed out
// again after its lock expires.
//
// The module is organised by concern:
//
//	pkg/queue             runtime, queues, producer, workers, retry, handlers, middleware
//	pkg/queue/redisstore  Redis store (default)
//	pkg/queue/pgstore     PostgreSQL store
//	pkg/redis             connection provider, readiness, key/value storage
//	pkg/pg                PostgreSQL pool and migrations
//	pkg/email             send-email job handler and mail transports
//	pkg/httpserver        health, metrics and queue inspection endpoints
//	pkg/config            environment configuration
//	pkg/logger            slog setup and attribute helpers
//	cmd/worker            the worker process
//
// A minimal producer and worker:
//
//	provider := redis.NewProvider()
//	defer provider.Close()
//
//	rt, err := queue.NewRuntime(redisstore.Connector(provider, cfg))
//	if err != nil {
//		return err
//	}
//	defer rt.Shutdown(context.Background())
//
//	if err := email.Register(rt, email.NewSendEmailHandler(mailer)); err != nil {
//		return err
//	}
//	if _, err := rt.StartWorkers(ctx); err != nil {
//		return err
//	}
//
//	job, err := email.Enqueue(ctx, rt, payload, queue.WithAttempts(5))
package queuekit
