package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

// Queue records the queue name under the key "queue".
func Queue(name string) slog.Attr {
	return slog.String("queue", name)
}

// JobID records the job identifier under the key "job_id".
func JobID(id string) slog.Attr {
	return slog.String("job_id", id)
}

// JobName records the job name under the key "job_name".
func JobName(name string) slog.Attr {
	return slog.String("job_name", name)
}

// WorkerID records the worker identifier under the key "worker_id".
func WorkerID(id string) slog.Attr {
	return slog.String("worker_id", id)
}

// Attempt records the current attempt and the attempt budget, e.g. "2/3".
func Attempt(n, max int) slog.Attr {
	return slog.String("attempt", strconv.Itoa(n)+"/"+strconv.Itoa(max))
}

// CallID records a caller-supplied correlation identifier under the key "call_id".
// If id is empty, it returns an empty Attr.
func CallID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("call_id", id)
}

// MessageID records the message identifier under the key "message_id".
// If id is empty, it returns an empty Attr.
func MessageID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("message_id", id)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}
