package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
)

type (
	// Handler processes one job and returns a JSON-serializable result.
	// Returning an error hands the job back to the store's retry policy.
	Handler interface {
		Handle(ctx context.Context, job *Job) (any, error)
	}

	// HandlerFunc adapts a plain function to Handler.
	HandlerFunc func(ctx context.Context, job *Job) (any, error)

	// JobHandlerFunc is a typed handler that receives the decoded payload.
	JobHandlerFunc[T, R any] func(ctx context.Context, payload T) (R, error)
)

func (f HandlerFunc) Handle(ctx context.Context, job *Job) (any, error) {
	return f(ctx, job)
}

// NewJobHandler wraps a typed function. The payload is decoded into T; a
// payload that does not decode fails permanently since a retry cannot fix it.
func NewJobHandler[T, R any](fn JobHandlerFunc[T, R]) Handler {
	return &typedHandler[T, R]{fn: fn}
}

type typedHandler[T, R any] struct {
	fn JobHandlerFunc[T, R]
}

func (h *typedHandler[T, R]) Handle(ctx context.Context, job *Job) (any, error) {
	var payload T
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return nil, Permanent(fmt.Errorf("decode payload of job %q: %w", job.Name, err))
		}
	}
	return h.fn(ctx, payload)
}

// Mux dispatches jobs to handlers by job name. Registration is validated up
// front so a bad table fails at startup instead of on the first job.
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewMux creates an empty dispatch table.
func NewMux() *Mux {
	return &Mux{handlers: make(map[string]Handler)}
}

// Register binds a job name to a handler.
func (m *Mux) Register(jobName string, h Handler) error {
	if strings.TrimSpace(jobName) == "" {
		return invalidInput("job name", "must be a non-empty string")
	}
	if isNilHandler(h) {
		return invalidInput("handler", "must not be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.handlers[jobName]; exists {
		return fmt.Errorf("%w: %s", ErrHandlerExists, jobName)
	}
	m.handlers[jobName] = h
	return nil
}

// MustRegister is like Register but panics on error.
func (m *Mux) MustRegister(jobName string, h Handler) {
	if err := m.Register(jobName, h); err != nil {
		panic(err)
	}
}

// Names returns the registered job names in sorted order.
func (m *Mux) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.handlers))
	for name := range m.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Handle implements Handler. Jobs without a registered name fail permanently:
// retrying cannot help until a handler is deployed.
func (m *Mux) Handle(ctx context.Context, job *Job) (any, error) {
	m.mu.RLock()
	h, ok := m.handlers[job.Name]
	m.mu.RUnlock()

	if !ok {
		return nil, Permanent(fmt.Errorf("%w: %s", ErrHandlerNotFound, job.Name))
	}
	return h.Handle(ctx, job)
}

// isNilHandler also catches typed nils such as (*Mux)(nil), which would
// otherwise pass registration and panic on the first job.
func isNilHandler(h Handler) bool {
	if h == nil {
		return true
	}
	v := reflect.ValueOf(h)
	switch v.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Slice, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}
