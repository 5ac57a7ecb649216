package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/queuekit/pkg/logger"
)

const (
	// CleanJobName is the name of the maintenance job that prunes finished jobs.
	CleanJobName = "clean-queue"

	defaultCleanLimit = 1000
)

// StoreSource hands out the connected store. *Runtime implements it.
type StoreSource interface {
	Store(ctx context.Context) (Store, error)
}

// CleanPayload selects what a clean-queue job removes: jobs of Queues in
// States (completed and failed when empty) that finished more than OlderThan
// ago, at most Limit per queue and state.
type CleanPayload struct {
	Queues    []string      `json:"queues"`
	States    []JobState    `json:"states,omitempty"`
	OlderThan time.Duration `json:"older_than"`
	Limit     int           `json:"limit,omitempty"`
}

// CleanResult maps "queue:state" to the number of jobs removed.
type CleanResult struct {
	Removed map[string]int `json:"removed"`
}

// NewCleanHandler returns the handler for clean-queue jobs. The store must
// implement Cleaner; otherwise the job fails permanently.
func NewCleanHandler(src StoreSource, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(logger.Component("clean"))

	return NewJobHandler(func(ctx context.Context, p CleanPayload) (CleanResult, error) {
		if err := p.validate(); err != nil {
			return CleanResult{}, Permanent(err)
		}

		s, err := src.Store(ctx)
		if err != nil {
			return CleanResult{}, err
		}
		cleaner, ok := s.(Cleaner)
		if !ok {
			return CleanResult{}, Permanent(&ConfigurationError{Field: "store", Reason: fmt.Sprintf("%T cannot clean jobs", s)})
		}

		states := p.States
		if len(states) == 0 {
			states = []JobState{StateCompleted, StateFailed}
		}
		limit := p.Limit
		if limit <= 0 {
			limit = defaultCleanLimit
		}
		cutoff := time.Now().Add(-p.OlderThan)

		res := CleanResult{Removed: make(map[string]int)}
		for _, q := range p.Queues {
			for _, state := range states {
				n, err := cleaner.Clean(ctx, q, state, cutoff, limit)
				if err != nil {
					return res, err
				}
				res.Removed[q+":"+string(state)] = n
				if n > 0 {
					log.InfoContext(ctx, "removed finished jobs",
						logger.Queue(q),
						slog.String("state", string(state)),
						slog.Int("count", n))
				}
			}
		}
		return res, nil
	})
}

func (p CleanPayload) validate() error {
	if len(p.Queues) == 0 {
		return invalidInput("queues", "must contain at least one queue")
	}
	if p.OlderThan <= 0 {
		return invalidInput("older_than", "must be positive")
	}
	for _, s := range p.States {
		if !s.Terminal() {
			return invalidInput("states", fmt.Sprintf("%q is not a finished state", s))
		}
	}
	return nil
}
