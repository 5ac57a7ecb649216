package queue

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrymomot/queuekit/pkg/logger"
)

// JobAdder enqueues jobs by queue name. *Runtime implements it.
type JobAdder interface {
	AddJob(ctx context.Context, queueName, jobName string, payload any, opts ...JobOption) (*Job, error)
}

// Scheduler enqueues repeatable jobs. Each run gets a job ID derived from
// the job name and run time, so several scheduler processes sharing a store
// enqueue every run exactly once.
type Scheduler struct {
	adder    JobAdder
	jobs     map[string]*repeatableJob
	mu       sync.RWMutex
	interval time.Duration
	logger   *slog.Logger
}

// repeatableJob holds configuration for a repeatable job
type repeatableJob struct {
	name     string
	queue    string
	schedule Schedule
	payload  any
	opts     []JobOption
	nextRun  time.Time
}

// NewScheduler creates a new scheduler
func NewScheduler(adder JobAdder, opts ...SchedulerOption) (*Scheduler, error) {
	if adder == nil {
		return nil, &ConfigurationError{Field: "adder", Reason: "must not be nil"}
	}

	options := &schedulerOptions{
		checkInterval: 30 * time.Second,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Scheduler{
		adder:    adder,
		jobs:     make(map[string]*repeatableJob),
		interval: options.checkInterval,
		logger:   options.logger.With(logger.Component("scheduler")),
	}, nil
}

// Add registers a repeatable job. The first run is the schedule's next
// occurrence after now.
func (s *Scheduler) Add(queueName, jobName string, schedule Schedule, payload any, opts ...JobOption) error {
	if strings.TrimSpace(queueName) == "" {
		return invalidInput("queue name", "must be a non-empty string")
	}
	if strings.TrimSpace(jobName) == "" {
		return invalidInput("job name", "must be a non-empty string")
	}
	if schedule == nil {
		return invalidInput("schedule", "must not be nil")
	}
	now := time.Now()
	next := schedule.Next(now)
	if !next.After(now) {
		return invalidInput("schedule", "must advance in time")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobName]; exists {
		return fmt.Errorf("%w: repeatable job %s", ErrHandlerExists, jobName)
	}

	s.jobs[jobName] = &repeatableJob{
		name:     jobName,
		queue:    queueName,
		schedule: schedule,
		payload:  payload,
		opts:     opts,
		nextRun:  next,
	}

	s.logger.Info("registered repeatable job",
		logger.JobName(jobName),
		logger.Queue(queueName),
		slog.String("schedule", schedule.String()))

	return nil
}

// Remove unregisters a repeatable job. Runs already enqueued are kept.
func (s *Scheduler) Remove(jobName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobName)
}

// List returns the registered repeatable job names
func (s *Scheduler) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Start enqueues due runs every check interval until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.RLock()
	n := len(s.jobs)
	s.mu.RUnlock()
	if n == 0 {
		return &ConfigurationError{Field: "scheduler", Reason: "has no repeatable jobs"}
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx, time.Now())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			return nil
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Tick enqueues every run that is due at now. A run is enqueued as a
// delayed job up to one check interval ahead so it starts on time.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.mu.RLock()
	due := make([]*repeatableJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		due = append(due, j)
	}
	s.mu.RUnlock()

	horizon := now.Add(s.interval)
	for _, j := range due {
		for {
			s.mu.RLock()
			runAt := j.nextRun
			s.mu.RUnlock()
			if runAt.After(horizon) {
				break
			}

			if err := s.enqueue(ctx, j, runAt); err != nil {
				s.logger.Error("failed to enqueue repeatable job",
					logger.JobName(j.name),
					logger.Queue(j.queue),
					logger.Error(err))
				break
			}

			next := j.schedule.Next(runAt)
			if !next.After(runAt) {
				break
			}
			s.mu.Lock()
			j.nextRun = next
			s.mu.Unlock()
		}
	}
}

func (s *Scheduler) enqueue(ctx context.Context, j *repeatableJob, runAt time.Time) error {
	opts := make([]JobOption, 0, len(j.opts)+2)
	opts = append(opts, j.opts...)
	opts = append(opts,
		WithJobID(fmt.Sprintf("repeat:%s:%d", j.name, runAt.UnixMilli())),
		WithRunAt(runAt),
	)

	job, err := s.adder.AddJob(ctx, j.queue, j.name, j.payload, opts...)
	if err != nil {
		return err
	}

	s.logger.Debug("enqueued repeatable job",
		logger.JobName(j.name),
		logger.JobID(job.ID),
		slog.Time("run_at", runAt))
	return nil
}
