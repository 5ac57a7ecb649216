// Package queue provides named job queues backed by a pluggable Store, with
// workers that run jobs concurrently and a store-side retry policy.
//
// The package is organised around four components:
//
//   - Runtime: owns the store connection and hands out one Queue per name
//   - Queue: adds jobs with per-job retry, priority, delay and dedup options
//   - Worker: claims jobs from one queue and dispatches them to a Handler
//   - Scheduler: enqueues repeatable jobs from Schedule definitions
//
// Persistence is hidden behind the Store and Inspector interfaces. MemoryStorage
// ships with this package; Redis and PostgreSQL stores live in the redisstore
// and pgstore subpackages. Stores that implement Cleaner can prune finished
// jobs; NewCleanHandler runs that as a clean-queue job, usually scheduled.
//
// # Architecture
//
//  1. A Runtime connects lazily. Creating queues or workers opens the store
//     once; validation errors are reported before any connection is made.
//  2. Each Job carries its RetryPolicy. Workers never retry on their own: they
//     report the outcome through Store.Fail and the store moves the job to
//     delayed or failed.
//  3. Jobs are claimed under a lock that the worker renews while the handler
//     runs. A crashed worker's jobs become visible again once the lock expires,
//     so delivery is at-least-once and handlers should be idempotent.
//  4. Handler contexts are detached from the worker's start context. Stopping a
//     worker lets in-flight jobs finish within the shutdown timeout.
//
// # Usage
//
//	rt, err := queue.NewRuntime(queue.StoreConnector(queue.NewMemoryStorage()))
//	if err != nil {
//	    return err
//	}
//	defer rt.Shutdown(context.Background())
//
//	type Welcome struct {
//	    Email string `json:"email"`
//	}
//
//	handler := queue.NewJobHandler(func(ctx context.Context, p Welcome) (string, error) {
//	    return "sent to " + p.Email, nil
//	})
//
//	w, err := rt.CreateWorker(ctx, "mail-queue", handler, queue.WithConcurrency(2))
//	if err != nil {
//	    return err
//	}
//	if err := w.Start(ctx); err != nil {
//	    return err
//	}
//
//	job, err := rt.AddJob(ctx, "mail-queue", "welcome", Welcome{Email: "a@example.com"},
//	    queue.WithAttempts(5),
//	    queue.WithBackoff(queue.ExponentialBackoff(time.Second, time.Minute)),
//	)
//
// # Errors
//
// Errors returned by the package match one of three kinds with errors.Is:
// ErrConfiguration, ErrInvalidInput and ErrOperation. The concrete types
// ConfigurationError, InvalidInputError and OperationError carry details.
// Handlers wrap errors with Permanent to skip remaining attempts.
package queue
