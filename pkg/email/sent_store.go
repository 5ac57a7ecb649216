package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrymomot/queuekit/pkg/redis"
)

// SentStore remembers delivered messages by dedup key so a redelivered job
// does not send twice.
//
// A delivery first reserves its key. The reservation either grants the
// caller the right to send, returns the result of an earlier delivery, or
// fails with ErrSendInProgress while another delivery holds the key. The
// holder then records the result, or releases the key when sending failed.
type SentStore interface {
	// Reserve claims key for hold. It returns the recorded result when the
	// message was already delivered and (nil, nil) when the caller may send.
	Reserve(ctx context.Context, key string, hold time.Duration) (*SendResult, error)
	// Record stores the result for key for ttl, replacing the reservation.
	Record(ctx context.Context, key string, res *SendResult, ttl time.Duration) error
	// Release drops a reservation so a retry can send.
	Release(ctx context.Context, key string) error
	// Lookup returns the recorded result for key, or nil when none exists.
	Lookup(ctx context.Context, key string) (*SendResult, error)
}

// pendingMarker is stored under a reserved key until the result is recorded.
var pendingMarker = []byte("pending")

// RedisSentStore keeps dedup records in Redis. Reservations use SET NX, so
// concurrent deliveries across processes send once.
type RedisSentStore struct {
	storage *redis.Storage
}

// NewRedisSentStore creates a SentStore on top of a prefixed key-value storage.
func NewRedisSentStore(storage *redis.Storage) *RedisSentStore {
	return &RedisSentStore{storage: storage}
}

func (s *RedisSentStore) Reserve(ctx context.Context, key string, hold time.Duration) (*SendResult, error) {
	ok, err := s.storage.SetNX(ctx, key, pendingMarker, hold)
	if err != nil {
		return nil, fmt.Errorf("reserve sent record %s: %w", key, err)
	}
	if ok {
		return nil, nil
	}

	raw, err := s.storage.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("lookup sent record %s: %w", key, err)
	}
	// Missing here means the reservation expired in between; let the job retry.
	if raw == nil || bytes.Equal(raw, pendingMarker) {
		return nil, fmt.Errorf("%w: %s", ErrSendInProgress, key)
	}
	return decodeResult(key, raw)
}

func (s *RedisSentStore) Record(ctx context.Context, key string, res *SendResult, ttl time.Duration) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode sent record %s: %w", key, err)
	}
	if err := s.storage.Set(ctx, key, raw, ttl); err != nil {
		return fmt.Errorf("record sent %s: %w", key, err)
	}
	return nil
}

func (s *RedisSentStore) Release(ctx context.Context, key string) error {
	if err := s.storage.Delete(ctx, key); err != nil {
		return fmt.Errorf("release sent record %s: %w", key, err)
	}
	return nil
}

func (s *RedisSentStore) Lookup(ctx context.Context, key string) (*SendResult, error) {
	raw, err := s.storage.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("lookup sent record %s: %w", key, err)
	}
	if raw == nil || bytes.Equal(raw, pendingMarker) {
		return nil, nil
	}
	return decodeResult(key, raw)
}

func decodeResult(key string, raw []byte) (*SendResult, error) {
	var res SendResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode sent record %s: %w", key, err)
	}
	return &res, nil
}

// MemorySentStore keeps dedup records in process memory.
// Suitable for tests and single-process development setups.
type MemorySentStore struct {
	mu      sync.Mutex
	records map[string]memoryRecord
	now     func() time.Time
}

type memoryRecord struct {
	res       *SendResult // nil while reserved
	expiresAt time.Time
}

// NewMemorySentStore creates an empty in-memory SentStore.
func NewMemorySentStore() *MemorySentStore {
	return &MemorySentStore{records: make(map[string]memoryRecord), now: time.Now}
}

func (s *MemorySentStore) Reserve(_ context.Context, key string, hold time.Duration) (*SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.live(key); ok {
		if r.res == nil {
			return nil, fmt.Errorf("%w: %s", ErrSendInProgress, key)
		}
		res := *r.res
		return &res, nil
	}
	s.records[key] = memoryRecord{expiresAt: s.expiry(hold)}
	return nil, nil
}

func (s *MemorySentStore) Record(_ context.Context, key string, res *SendResult, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *res
	s.records[key] = memoryRecord{res: &stored, expiresAt: s.expiry(ttl)}
	return nil
}

func (s *MemorySentStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func (s *MemorySentStore) Lookup(_ context.Context, key string) (*SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.live(key)
	if !ok || r.res == nil {
		return nil, nil
	}
	res := *r.res
	return &res, nil
}

// live returns the unexpired record for key. Callers hold mu.
func (s *MemorySentStore) live(key string) (memoryRecord, bool) {
	r, ok := s.records[key]
	if !ok {
		return memoryRecord{}, false
	}
	if !r.expiresAt.IsZero() && s.now().After(r.expiresAt) {
		delete(s.records, key)
		return memoryRecord{}, false
	}
	return r, true
}

func (s *MemorySentStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}
