package redisstore

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrymomot/queuekit/pkg/queue"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "queuekit"

// priorityWeight spreads priorities far enough apart that a millisecond
// timestamp never crosses into the next priority band.
const priorityWeight = 1e13

// keys builds the key layout of one queue. All keys share the {queue} hash
// tag so scripts touching several of them stay on one cluster slot.
type keys struct {
	base string
}

func newKeys(prefix, name string) keys {
	return keys{base: fmt.Sprintf("%s:{%s}", prefix, name)}
}

func (k keys) wait() string      { return k.base + ":wait" }
func (k keys) delayed() string   { return k.base + ":delayed" }
func (k keys) active() string    { return k.base + ":active" }
func (k keys) completed() string { return k.base + ":completed" }
func (k keys) failed() string    { return k.base + ":failed" }
func (k keys) seq() string       { return k.base + ":id" }
func (k keys) jobPrefix() string { return k.base + ":job:" }
func (k keys) job(id string) string {
	return k.jobPrefix() + id
}

func (k keys) set(state queue.JobState) string {
	switch state {
	case queue.StateWaiting:
		return k.wait()
	case queue.StateDelayed:
		return k.delayed()
	case queue.StateActive:
		return k.active()
	case queue.StateCompleted:
		return k.completed()
	default:
		return k.failed()
	}
}

// waitScore orders the wait set by priority (highest first), then run time.
func waitScore(p queue.Priority, runAt time.Time) float64 {
	return float64(queue.PriorityMax-p)*priorityWeight + float64(runAt.UnixMilli())
}

// score returns the sorted set score of a job in its current state.
func score(j *queue.Job) float64 {
	switch j.State {
	case queue.StateWaiting:
		return waitScore(j.Priority, j.RunAt)
	case queue.StateDelayed:
		return float64(j.RunAt.UnixMilli())
	case queue.StateActive:
		if j.LockedUntil != nil {
			return float64(j.LockedUntil.UnixMilli())
		}
	default:
		if j.FinishedAt != nil {
			return float64(j.FinishedAt.UnixMilli())
		}
	}
	return float64(time.Now().UnixMilli())
}

func formatMillis(t *time.Time) string {
	if t == nil {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(s string) *time.Time {
	if s == "" {
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	t := time.UnixMilli(ms)
	return &t
}
