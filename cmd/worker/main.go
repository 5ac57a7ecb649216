// Command worker runs the queue workers of a queuekit deployment.
//
// It connects to Redis (or PostgreSQL with QUEUE_BACKEND=postgres), binds the
// send-email handler to mail-queue and processes jobs until SIGINT or
// SIGTERM. On a signal it stops claiming jobs, lets in-flight jobs finish
// within QUEUE_SHUTDOWN_TIMEOUT, closes its connections and exits 0. Any
// startup failure exits 1.
//
// Finished jobs older than QUEUE_RETENTION are pruned by a clean-queue job
// the process schedules on QUEUE_MAINTENANCE_QUEUE every QUEUE_CLEAN_INTERVAL.
//
// WORKER_QUEUE restricts the process to a single queue. The operational HTTP
// server (health, metrics, queue inspection) listens on HTTP_ADDR unless
// HTTP_DISABLED is set.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/queuekit/pkg/email"
	"github.com/dmitrymomot/queuekit/pkg/httpserver"
	"github.com/dmitrymomot/queuekit/pkg/logger"
	"github.com/dmitrymomot/queuekit/pkg/pg"
	"github.com/dmitrymomot/queuekit/pkg/queue"
	"github.com/dmitrymomot/queuekit/pkg/queue/pgstore"
	"github.com/dmitrymomot/queuekit/pkg/queue/redisstore"
	"github.com/dmitrymomot/queuekit/pkg/redis"
)

// shutdownMargin is added to the drain timeout so the store can be closed
// after workers gave up on stuck jobs.
const shutdownMargin = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := loadSettings()
	if err != nil {
		slog.Error("invalid configuration", logger.Error(err))
		return 1
	}

	log := logger.New(logger.FromConfig(s.Log), logger.WithContextExtractors(queue.LogExtractor, httpserver.RequestIDLogExtractor))
	logger.SetAsDefault(log)

	if err := serve(ctx, s, log); err != nil {
		log.Error("worker stopped with error", logger.Error(err))
		return 1
	}
	return 0
}

// backend is the connected store plus the pieces that depend on it.
type backend struct {
	connect queue.ConnectFunc
	checks  map[string]httpserver.Check
	sent    email.SentStore
	close   func()
}

func serve(ctx context.Context, s settings, log *slog.Logger) error {
	startCtx, cancel := context.WithTimeout(ctx, s.Worker.StartTimeout)
	b, err := openBackend(startCtx, s, log)
	cancel()
	if err != nil {
		return fmt.Errorf("open %s backend: %w", s.Worker.Backend, err)
	}
	defer b.close()

	metrics := queue.NewMetrics(prometheus.DefaultRegisterer)
	rt, err := queue.NewRuntime(b.connect,
		queue.WithRuntimeLogger(log),
		queue.WithDefaultRetryPolicy(s.Queue.RetryPolicy()),
		queue.WithDefaultWorkerOptions(s.Queue.WorkerOptions()...),
		queue.WithRuntimeMiddleware(queue.Tracing(), metrics.Middleware()),
	)
	if err != nil {
		return err
	}

	mailer, err := email.NewMailer(s.Email)
	if err != nil {
		return err
	}
	h := email.NewSendEmailHandler(mailer,
		email.WithSentStore(b.sent),
		email.WithDedupTTL(s.Email.DedupTTL),
		email.WithLogger(log),
	)
	if err := email.Register(rt, h); err != nil {
		return err
	}

	sched, err := setupMaintenance(rt, s.Worker, log)
	if err != nil {
		return err
	}

	var startOpts []queue.StartOption
	if s.Worker.Queue != "" {
		startOpts = append(startOpts, queue.WithSpecificQueue(s.Worker.Queue))
	}
	if _, err := rt.StartWorkers(ctx, startOpts...); err != nil {
		_ = rt.Shutdown(context.Background())
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if !s.HTTP.Disabled {
		opts := []httpserver.RouterOption{
			httpserver.WithRouterLogger(log),
			httpserver.WithReadinessTimeout(s.HTTP.ReadinessTimeout),
			httpserver.WithMetrics(prometheus.DefaultGatherer),
			httpserver.WithQueueInspection(rt),
		}
		for name, c := range b.checks {
			opts = append(opts, httpserver.WithReadinessCheck(name, c))
		}
		srv := httpserver.NewFromConfig(s.HTTP, httpserver.WithLogger(log))
		g.Go(func() error { return srv.Run(gctx, httpserver.NewRouter(opts...)) })
	}
	if sched != nil {
		g.Go(func() error { return sched.Start(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	runErr := g.Wait()
	log.Info("shutting down, draining in-flight jobs", slog.Duration("timeout", s.Queue.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Queue.ShutdownTimeout+shutdownMargin)
	defer cancel()
	shutdownErr := rt.Shutdown(shutdownCtx)
	if shutdownErr == nil {
		log.Info("worker stopped")
	}

	return errors.Join(runErr, shutdownErr)
}

// setupMaintenance binds the clean-queue handler and schedules it. It returns
// a nil scheduler when retention is disabled or when WORKER_QUEUE selects
// another queue, since this process would never run the scheduled jobs.
func setupMaintenance(rt *queue.Runtime, w workerConfig, log *slog.Logger) (*queue.Scheduler, error) {
	if w.Retention == 0 {
		return nil, nil
	}
	if w.Queue != "" && w.Queue != w.MaintenanceQueue {
		log.Info("queue cleanup runs elsewhere, worker restricted to another queue",
			logger.Queue(w.Queue))
		return nil, nil
	}

	mux := queue.NewMux()
	if err := mux.Register(queue.CleanJobName, queue.NewCleanHandler(rt, log)); err != nil {
		return nil, err
	}
	if err := rt.Handle(w.MaintenanceQueue, mux, queue.WithConcurrency(1)); err != nil {
		return nil, err
	}

	sched, err := queue.NewScheduler(rt, queue.WithSchedulerLogger(log))
	if err != nil {
		return nil, err
	}
	payload := queue.CleanPayload{
		Queues:    []string{email.QueueName},
		OlderThan: w.Retention,
	}
	if err := sched.Add(w.MaintenanceQueue, queue.CleanJobName, queue.Every(w.CleanInterval), payload,
		queue.WithAttempts(1), queue.WithRemoveOnComplete()); err != nil {
		return nil, err
	}
	return sched, nil
}

func openBackend(ctx context.Context, s settings, log *slog.Logger) (*backend, error) {
	if s.Worker.Backend == backendPostgres {
		return openPostgres(ctx, s, log)
	}
	return openRedis(ctx, s)
}

func openRedis(ctx context.Context, s settings) (*backend, error) {
	provider := redis.NewProvider()
	client, err := provider.GetConnection(s.Redis)
	if err != nil {
		_ = provider.Close()
		return nil, err
	}
	if err := redis.WaitReady(ctx, client, s.Redis); err != nil {
		_ = provider.Close()
		return nil, err
	}

	return &backend{
		connect: redisstore.Connector(provider, s.Redis, redisstore.WithPrefix(s.Worker.KeyPrefix)),
		checks:  map[string]httpserver.Check{"redis": redis.Healthcheck(client)},
		sent:    email.NewRedisSentStore(redis.NewStorage(client, s.Worker.SentKeyPrefix)),
		close:   func() { _ = provider.Close() },
	}, nil
}

func openPostgres(ctx context.Context, s settings, log *slog.Logger) (*backend, error) {
	pool, err := pg.Connect(ctx, s.PG)
	if err != nil {
		return nil, err
	}
	if err := pgstore.Migrate(ctx, pool, s.PG, log); err != nil {
		pool.Close()
		return nil, err
	}

	// Without Redis there is no shared dedup store; each process remembers
	// its own deliveries.
	log.Warn("email dedup is process-local on the postgres backend")

	return &backend{
		connect: queue.StoreConnector(pgstore.New(pool, pgstore.WithOwnedPool())),
		checks:  map[string]httpserver.Check{"postgres": pg.Healthcheck(pool)},
		sent:    email.NewMemorySentStore(),
		close:   func() {},
	}, nil
}
