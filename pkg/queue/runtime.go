package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/queuekit/pkg/logger"
)

// ConnectFunc opens the store a runtime runs on. The runtime calls it lazily
// on first use and keeps the result for its whole lifetime.
type ConnectFunc func(ctx context.Context) (Store, error)

// StoreConnector returns a ConnectFunc for an already opened store.
func StoreConnector(s Store) ConnectFunc {
	return func(context.Context) (Store, error) {
		if s == nil {
			return nil, &ConfigurationError{Field: "store", Reason: "must not be nil"}
		}
		return s, nil
	}
}

// Runtime is the process-wide queue context: one store connection, one Queue
// handle per name, and the workers attached to them. Build one at startup and
// pass it to producers and worker processes.
type Runtime struct {
	connect ConnectFunc
	storeMu sync.Mutex
	store   Store

	group    singleflight.Group
	mu       sync.RWMutex
	queues   map[string]*Queue
	bindings map[string]binding
	workers  map[string][]*Worker

	defaults      JobDefaults
	workerOptions []WorkerOption
	middleware    []Middleware
	logger        *slog.Logger
	closed        atomic.Bool
}

type binding struct {
	handler Handler
	opts    []WorkerOption
}

// NewRuntime creates a runtime. No connection is opened until the first
// queue or worker is created.
func NewRuntime(connect ConnectFunc, opts ...RuntimeOption) (*Runtime, error) {
	if connect == nil {
		return nil, &ConfigurationError{Field: "connect", Reason: "must not be nil"}
	}

	options := &runtimeOptions{
		defaults: DefaultJobDefaults(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Runtime{
		connect:       connect,
		queues:        make(map[string]*Queue),
		bindings:      make(map[string]binding),
		workers:       make(map[string][]*Worker),
		defaults:      options.defaults,
		workerOptions: options.workerOptions,
		middleware:    options.middleware,
		logger:        options.logger,
	}, nil
}

// Store returns the connected store, opening it on first call. Concurrent
// callers wait for the same connection attempt; a failed attempt is not
// cached.
func (r *Runtime) Store(ctx context.Context) (Store, error) {
	if r.closed.Load() {
		return nil, ErrRuntimeClosed
	}

	r.storeMu.Lock()
	defer r.storeMu.Unlock()

	if r.store != nil {
		return r.store, nil
	}

	s, err := r.connect(ctx)
	if err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, &OperationError{Op: "connect", Err: err}
	}
	if s == nil {
		return nil, &ConfigurationError{Field: "store", Reason: "connect returned nil store"}
	}

	r.store = s
	return s, nil
}

// Inspector returns the connected store as an Inspector. It fails with a
// ConfigurationError when the store cannot report on its jobs.
func (r *Runtime) Inspector(ctx context.Context) (Inspector, error) {
	s, err := r.Store(ctx)
	if err != nil {
		return nil, err
	}
	in, ok := s.(Inspector)
	if !ok {
		return nil, &ConfigurationError{Field: "store", Reason: fmt.Sprintf("%T does not support inspection", s)}
	}
	return in, nil
}

// CreateQueue returns the queue handle for name, creating it on first call.
// Repeated calls return the same *Queue.
func (r *Runtime) CreateQueue(ctx context.Context, name string) (*Queue, error) {
	if strings.TrimSpace(name) == "" {
		return nil, invalidInput("queue name", "must be a non-empty string")
	}
	if r.closed.Load() {
		return nil, ErrRuntimeClosed
	}

	r.mu.RLock()
	q, ok := r.queues[name]
	r.mu.RUnlock()
	if ok {
		return q, nil
	}

	v, err, _ := r.group.Do(name, func() (any, error) {
		r.mu.RLock()
		q, ok := r.queues[name]
		r.mu.RUnlock()
		if ok {
			return q, nil
		}

		store, err := r.Store(ctx)
		if err != nil {
			return nil, err
		}

		q = &Queue{
			name:     name,
			store:    store,
			defaults: r.defaults,
			logger:   r.logger,
			notify:   r.wake,
		}

		r.mu.Lock()
		r.queues[name] = q
		r.mu.Unlock()

		r.logger.Debug("queue created", logger.Queue(name))
		return q, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Queue), nil
}

// Queues returns the names of all created queues in sorted order.
func (r *Runtime) Queues() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.queues))
	for name := range r.queues {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// AddJob enqueues a job on the named queue, creating the queue if needed.
// Names are validated before any store interaction.
func (r *Runtime) AddJob(ctx context.Context, queueName, jobName string, payload any, opts ...JobOption) (*Job, error) {
	if strings.TrimSpace(queueName) == "" {
		return nil, invalidInput("queue name", "must be a non-empty string")
	}
	if strings.TrimSpace(jobName) == "" {
		return nil, invalidInput("job name", "must be a non-empty string")
	}

	q, err := r.CreateQueue(ctx, queueName)
	if err != nil {
		return nil, err
	}
	return q.Add(ctx, jobName, payload, opts...)
}

// BulkJob is one entry of AddBulk.
type BulkJob struct {
	Name    string
	Payload any
	Options []JobOption
}

// AddBulk enqueues jobs in order and stops at the first error. The jobs
// enqueued before the error are returned along with it.
func (r *Runtime) AddBulk(ctx context.Context, queueName string, jobs []BulkJob) ([]*Job, error) {
	if len(jobs) == 0 {
		return nil, invalidInput("jobs", "must contain at least one job")
	}

	out := make([]*Job, 0, len(jobs))
	for i, b := range jobs {
		j, err := r.AddJob(ctx, queueName, b.Name, b.Payload, b.Options...)
		if err != nil {
			return out, fmt.Errorf("bulk job %d: %w", i, err)
		}
		out = append(out, j)
	}
	return out, nil
}

// CreateWorker builds a worker for the named queue. The worker is not started.
func (r *Runtime) CreateWorker(ctx context.Context, queueName string, handler Handler, opts ...WorkerOption) (*Worker, error) {
	if strings.TrimSpace(queueName) == "" {
		return nil, invalidInput("queue name", "must be a non-empty string")
	}
	if isNilHandler(handler) {
		return nil, invalidInput("handler", "must not be nil")
	}

	q, err := r.CreateQueue(ctx, queueName)
	if err != nil {
		return nil, err
	}

	all := make([]WorkerOption, 0, len(r.workerOptions)+len(opts)+2)
	all = append(all, WithWorkerLogger(r.logger))
	all = append(all, r.workerOptions...)
	if len(r.middleware) > 0 {
		all = append(all, WithMiddleware(r.middleware...))
	}
	all = append(all, opts...)

	w := newWorker(q, handler, all...)

	r.mu.Lock()
	r.workers[queueName] = append(r.workers[queueName], w)
	r.mu.Unlock()

	return w, nil
}

// Handle binds a handler to a queue for StartWorkers. The binding is
// validated immediately; nothing is connected.
func (r *Runtime) Handle(queueName string, handler Handler, opts ...WorkerOption) error {
	if strings.TrimSpace(queueName) == "" {
		return invalidInput("queue name", "must be a non-empty string")
	}
	if isNilHandler(handler) {
		return invalidInput("handler", "must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bindings[queueName]; exists {
		return fmt.Errorf("%w: queue %s", ErrHandlerExists, queueName)
	}
	r.bindings[queueName] = binding{handler: handler, opts: opts}
	return nil
}

// Bound returns the queue names that have a handler bound via Handle.
func (r *Runtime) Bound() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.bindings))
	for name := range r.bindings {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// StartWorkers creates and starts one worker per bound queue, or only the
// queue selected with WithSpecificQueue. If a worker fails to start, the
// ones already started are stopped and the error is returned.
func (r *Runtime) StartWorkers(ctx context.Context, opts ...StartOption) ([]*Worker, error) {
	options := &startOptions{}
	for _, opt := range opts {
		opt(options)
	}

	names := options.queueNames
	if len(names) == 0 {
		names = r.Bound()
	}
	if options.specificQueue != "" {
		names = []string{options.specificQueue}
	}
	if len(names) == 0 {
		return nil, &ConfigurationError{Field: "queues", Reason: "no handlers bound"}
	}

	started := make([]*Worker, 0, len(names))
	for _, name := range names {
		r.mu.RLock()
		b, ok := r.bindings[name]
		r.mu.RUnlock()
		if !ok {
			r.stopAll(ctx, started)
			return nil, invalidInput("queue name", fmt.Sprintf("no handler bound for queue %q", name))
		}

		w, err := r.CreateWorker(ctx, name, b.handler, b.opts...)
		if err == nil {
			err = w.Start(ctx)
		}
		if err != nil {
			r.stopAll(ctx, started)
			return nil, err
		}
		started = append(started, w)
	}

	r.logger.Info("workers started", slog.Any("queues", names))
	return started, nil
}

// Workers returns the workers created for a queue.
func (r *Runtime) Workers(queueName string) []*Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.workers[queueName])
}

// Shutdown stops every running worker, letting in-flight jobs drain within
// their grace period, then closes the store. Safe to call more than once.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r.closed.Swap(true) {
		return nil
	}

	r.mu.RLock()
	var all []*Worker
	for _, ws := range r.workers {
		all = append(all, ws...)
	}
	r.mu.RUnlock()

	errs := r.stopAll(ctx, all)

	r.storeMu.Lock()
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		r.store = nil
	}
	r.storeMu.Unlock()

	r.logger.Info("queue runtime shut down")
	return errors.Join(errs...)
}

func (r *Runtime) stopAll(ctx context.Context, workers []*Worker) []error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, w := range workers {
		if !w.Running() {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Stop(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errs
}

// wake nudges idle workers of a queue after a local enqueue.
func (r *Runtime) wake(queueName string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.workers[queueName] {
		w.notify()
	}
}
