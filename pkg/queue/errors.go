package queue

import (
	"errors"
	"fmt"
)

// Error kinds. Typed errors below match them with errors.Is.
var (
	// ErrConfiguration marks missing or invalid setup parameters.
	ErrConfiguration = errors.New("queue: configuration error")

	// ErrInvalidInput marks malformed arguments rejected before anything is enqueued.
	ErrInvalidInput = errors.New("queue: invalid input")

	// ErrOperation marks a failure talking to the backing store.
	ErrOperation = errors.New("queue: store operation failed")
)

// Common errors
var (
	// ErrNoJob is returned by Store.Dequeue when no job is ready
	ErrNoJob = errors.New("no job ready to process")

	// ErrJobNotFound is returned when a job does not exist in the store
	ErrJobNotFound = errors.New("job not found")

	// ErrLockLost is returned when a job lock expired or was taken by another worker
	ErrLockLost = errors.New("job lock lost")

	// ErrInvalidState is returned when a job is not in the state an operation requires
	ErrInvalidState = errors.New("job is not in the required state")

	// ErrHandlerNotFound is returned when no handler is registered for a job name
	ErrHandlerNotFound = errors.New("no handler registered for job name")

	// ErrHandlerExists is returned when a job name is registered twice
	ErrHandlerExists = errors.New("handler already registered for job name")

	// ErrWorkerStarted is returned when starting a running worker
	ErrWorkerStarted = errors.New("worker already started")

	// ErrWorkerNotStarted is returned when stopping a worker that is not running
	ErrWorkerNotStarted = errors.New("worker not started")

	// ErrRuntimeClosed is returned by a Runtime after Shutdown
	ErrRuntimeClosed = errors.New("queue runtime is shut down")

	// ErrShutdownTimeout is returned when in-flight jobs outlive the shutdown grace period
	ErrShutdownTimeout = errors.New("in-flight jobs did not finish before shutdown deadline")
)

// ConfigurationError reports a missing or invalid setup parameter.
// It is never retryable.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("queue: invalid configuration: %s %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() []error { return unwrapKind(ErrConfiguration, e.Err) }

// InvalidInputError reports a malformed queue name, job name, handler or payload.
type InvalidInputError struct {
	Field  string
	Reason string
	Err    error
}

func (e *InvalidInputError) Error() string {
	msg := fmt.Sprintf("queue: invalid %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidInputError) Unwrap() []error { return unwrapKind(ErrInvalidInput, e.Err) }

// OperationError wraps a store failure. The caller must treat the
// operation as unconfirmed.
type OperationError struct {
	Op    string
	Queue string
	Err   error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("queue: %s on queue %q failed: %v", e.Op, e.Queue, e.Err)
}

// Unwrap returns the store error, so errors.Unwrap yields it directly.
func (e *OperationError) Unwrap() error { return e.Err }

// Is matches ErrOperation.
func (e *OperationError) Is(target error) bool { return target == ErrOperation }

func unwrapKind(kind, err error) []error {
	if err == nil {
		return []error{kind}
	}
	return []error{kind, err}
}

func invalidInput(field, reason string) error {
	return &InvalidInputError{Field: field, Reason: reason}
}

// permanentError marks a handler error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the store fails the job without further attempts.
// Use it for failures a retry cannot fix, such as a malformed payload.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
