package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dmitrymomot/queuekit/pkg/logger"
)

// storeCallTimeout bounds the ack/fail calls made after a handler returns.
const storeCallTimeout = 30 * time.Second

// Worker claims jobs from one queue and runs them through a handler.
// It performs no retries itself: every outcome is reported to the store,
// which applies the job's retry policy.
type Worker struct {
	id      string
	queue   *Queue
	store   Store
	handler Handler
	sem     chan struct{}
	limiter *rate.Limiter
	wake    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex

	// Configuration
	pollInterval    time.Duration
	lockDuration    time.Duration
	jobTimeout      time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger

	// State management
	cancel     context.CancelFunc
	cancelJobs context.CancelFunc
	loopDone   chan struct{}
	running    atomic.Bool
	inFlight   atomic.Int64
}

func newWorker(q *Queue, handler Handler, opts ...WorkerOption) *Worker {
	options := defaultWorkerOptions()
	for _, opt := range opts {
		opt(options)
	}

	w := &Worker{
		id:              uuid.NewString(),
		queue:           q,
		store:           q.store,
		handler:         Chain(handler, options.middleware...),
		sem:             make(chan struct{}, options.concurrency),
		wake:            make(chan struct{}, 1),
		pollInterval:    options.pollInterval,
		lockDuration:    options.lockDuration,
		jobTimeout:      options.jobTimeout,
		shutdownTimeout: options.shutdownTimeout,
		logger:          options.logger.With(logger.Component("worker"), logger.Queue(q.name)),
	}

	// One token at a time: starts are spaced window/max apart, so no window
	// ever sees more than max of them.
	if options.limiterMax > 0 {
		every := options.limiterWindow / time.Duration(options.limiterMax)
		w.limiter = rate.NewLimiter(rate.Every(every), 1)
	}

	return w
}

// ID returns the unique worker identifier.
func (w *Worker) ID() string { return w.id }

// Queue returns the name of the queue the worker consumes.
func (w *Worker) Queue() string { return w.queue.name }

// Concurrency returns the maximum number of jobs run at once.
func (w *Worker) Concurrency() int { return cap(w.sem) }

// InFlight returns the number of jobs currently being processed.
func (w *Worker) InFlight() int { return int(w.inFlight.Load()) }

// Running reports whether the worker has been started and not stopped.
func (w *Worker) Running() bool { return w.running.Load() }

// Start begins processing jobs in the background. Handler contexts are
// detached from ctx cancellation so Stop can drain in-flight jobs.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return ErrWorkerStarted
	}

	loopCtx, cancel := context.WithCancel(ctx)
	jobsCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel
	w.cancelJobs = cancelJobs
	w.loopDone = make(chan struct{})
	w.running.Store(true)

	go w.run(loopCtx, jobsCtx, w.loopDone)

	w.logger.Info("worker started",
		logger.WorkerID(w.id),
		slog.Int("concurrency", cap(w.sem)))

	return nil
}

// Stop stops claiming new jobs and waits for in-flight jobs. Jobs still
// running after the shutdown timeout get their contexts cancelled; if they
// do not return before ctx is done, Stop returns ErrShutdownTimeout.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrWorkerNotStarted
	}
	cancel, cancelJobs, loopDone := w.cancel, w.cancelJobs, w.loopDone
	w.cancel = nil
	w.mu.Unlock()

	defer w.running.Store(false)
	defer cancelJobs()

	cancel()
	<-loopDone

	w.logger.Info("worker stopping, waiting for in-flight jobs",
		logger.WorkerID(w.id),
		slog.Int("in_flight", w.InFlight()))

	drained := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(drained)
	}()

	timer := time.NewTimer(w.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-drained:
	case <-timer.C:
		w.logger.Warn("shutdown grace period elapsed, cancelling in-flight jobs",
			logger.WorkerID(w.id),
			slog.Int("in_flight", w.InFlight()))
		cancelJobs()
		select {
		case <-drained:
		case <-ctx.Done():
			return errors.Join(ErrShutdownTimeout, ctx.Err())
		}
	case <-ctx.Done():
		cancelJobs()
		return errors.Join(ErrShutdownTimeout, ctx.Err())
	}

	w.logger.Info("worker stopped", logger.WorkerID(w.id))
	return nil
}

// Run starts the worker and returns a function suitable for errgroup.
// The returned function blocks until ctx is done, then drains the worker.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()

		return w.Stop(context.Background())
	}
}

// throttle blocks until the limiter would admit a start, without taking the
// token. Only a claimed job consumes one, so empty polls cost nothing.
func (w *Worker) throttle(ctx context.Context) error {
	if w.limiter.Tokens() >= 1 {
		return nil
	}

	r := w.limiter.Reserve()
	delay := r.Delay()
	r.Cancel()
	if delay <= 0 {
		return nil
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// notify wakes an idle worker without blocking.
func (w *Worker) notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// run is the claim loop. One goroutine per claimed job, bounded by sem.
func (w *Worker) run(ctx, jobsCtx context.Context, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case w.sem <- struct{}{}:
		}

		if w.limiter != nil {
			if err := w.throttle(ctx); err != nil {
				<-w.sem
				return
			}
		}

		job, err := w.store.Dequeue(ctx, w.queue.name, w.lockDuration)
		if err != nil {
			<-w.sem
			if ctx.Err() != nil {
				return
			}
			if !errors.Is(err, ErrNoJob) {
				w.logger.Error("failed to claim job",
					logger.WorkerID(w.id),
					logger.Error(err))
			}
			if !w.idle(ctx) {
				return
			}
			continue
		}

		if w.limiter != nil {
			// throttle left a token for this start; Wait only covers clock skew.
			_ = w.limiter.Wait(jobsCtx)
		}

		w.wg.Add(1)
		w.inFlight.Add(1)
		go func() {
			defer w.wg.Done()
			defer w.inFlight.Add(-1)
			defer func() { <-w.sem }()

			w.process(jobsCtx, job)
		}()
	}
}

// idle waits for the poll interval or an enqueue notification.
func (w *Worker) idle(ctx context.Context) bool {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	case <-w.wake:
	}
	return true
}

// process executes a claimed job and reports the outcome to the store.
func (w *Worker) process(ctx context.Context, job *Job) {
	start := time.Now()
	log := w.logger.With(
		logger.WorkerID(w.id),
		logger.JobID(job.ID),
		logger.JobName(job.Name),
		logger.Attempt(job.AttemptsMade+1, job.Retry.MaxAttempts()),
	)

	log.DebugContext(ctx, "job started")

	stopRenew := w.renewLock(ctx, job, log)
	result, execErr := w.execute(ctx, job)
	stopRenew()

	duration := time.Since(start)

	// Reporting must survive shutdown cancellation of the job context.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeCallTimeout)
	defer cancel()

	if execErr == nil {
		data, err := json.Marshal(result)
		if err != nil {
			execErr = Permanent(fmt.Errorf("encode result of job %q: %w", job.Name, err))
		} else {
			w.handleSuccess(sctx, log, job, data, duration)
			return
		}
	}

	w.handleFailure(sctx, log, job, execErr, duration)
}

// execute runs the handler under the job timeout and converts panics to errors.
func (w *Worker) execute(ctx context.Context, job *Job) (result any, err error) {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = w.jobTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("panic in handler: %v", r)
		}
	}()

	return w.handler.Handle(WithJob(ctx, job), job)
}

// renewLock keeps the job lock alive while the handler runs.
func (w *Worker) renewLock(ctx context.Context, job *Job, log *slog.Logger) func() {
	interval := w.lockDuration / 2
	if interval <= 0 {
		return func() {}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.store.ExtendLock(ctx, job, w.lockDuration); err != nil {
					log.WarnContext(ctx, "failed to extend job lock", logger.Error(err))
				}
			}
		}
	}()

	return func() {
		close(stop)
		<-done
	}
}

// handleFailure logs the error with job context and hands it to the store.
// The store decides between a delayed retry and the terminal failed state.
func (w *Worker) handleFailure(ctx context.Context, log *slog.Logger, job *Job, execErr error, duration time.Duration) {
	log.ErrorContext(ctx, "job failed",
		logger.Duration(duration),
		logger.Error(execErr))

	updated, err := w.store.Fail(ctx, job, Failure{
		Reason:    execErr.Error(),
		Retryable: !IsPermanent(execErr),
	})
	if err != nil {
		log.ErrorContext(ctx, "failed to record job failure", logger.Error(err))
		return
	}

	if updated.State == StateDelayed {
		log.InfoContext(ctx, "job retry scheduled",
			slog.Time("run_at", updated.RunAt),
			slog.Int("attempts_made", updated.AttemptsMade))
		return
	}

	log.WarnContext(ctx, "job failed permanently",
		slog.Int("attempts_made", updated.AttemptsMade),
		slog.String("failed_reason", updated.FailedReason))
}

// handleSuccess acknowledges a completed job.
func (w *Worker) handleSuccess(ctx context.Context, log *slog.Logger, job *Job, result []byte, duration time.Duration) {
	if err := w.store.Complete(ctx, job, result); err != nil {
		log.ErrorContext(ctx, "failed to mark job completed", logger.Error(err))
		return
	}

	log.InfoContext(ctx, "job completed", logger.Duration(duration))
}

// WorkerInfo returns information about the worker
func (w *Worker) WorkerInfo() (id string, hostname string, pid int) {
	hostname, _ = os.Hostname()
	return w.id, hostname, os.Getpid()
}
