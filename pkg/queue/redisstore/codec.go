package redisstore

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dmitrymomot/queuekit/pkg/queue"
)

// Hash fields of a job. Fields the Lua scripts change on their own are kept
// outside the JSON document and overlaid on read.
const (
	fieldData        = "data"
	fieldState       = "state"
	fieldToken       = "token"
	fieldPriority    = "priority"
	fieldRunAt       = "run_at"
	fieldLockedUntil = "locked_until"
	fieldStartedAt   = "started_at"
)

func encodeJob(j *queue.Job) (map[string]any, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("encode job %s: %w", j.ID, err)
	}
	return map[string]any{
		fieldData:        data,
		fieldState:       string(j.State),
		fieldPriority:    int(j.Priority),
		fieldRunAt:       j.RunAt.UnixMilli(),
		fieldLockedUntil: formatMillis(j.LockedUntil),
		fieldStartedAt:   formatMillis(j.StartedAt),
	}, nil
}

func decodeJob(fields map[string]string) (*queue.Job, error) {
	data, ok := fields[fieldData]
	if !ok {
		return nil, queue.ErrJobNotFound
	}

	var j queue.Job
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}

	if s := queue.JobState(fields[fieldState]); s.Valid() {
		j.State = s
	}
	j.LockToken = fields[fieldToken]
	j.LockedUntil = parseMillis(fields[fieldLockedUntil])
	if t := parseMillis(fields[fieldStartedAt]); t != nil {
		j.StartedAt = t
	}
	if j.State != queue.StateActive {
		j.LockToken = ""
		j.LockedUntil = nil
	}
	return &j, nil
}

// pairs converts the flat HGETALL reply of a script into a field map.
func pairs(reply any) (map[string]string, error) {
	vals, ok := reply.([]any)
	if !ok || len(vals)%2 != 0 {
		return nil, fmt.Errorf("unexpected script reply %T", reply)
	}
	out := make(map[string]string, len(vals)/2)
	for i := 0; i < len(vals); i += 2 {
		out[toString(vals[i])] = toString(vals[i+1])
	}
	return out, nil
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
