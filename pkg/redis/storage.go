package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Storage is a namespaced key-value store on top of a Redis client.
// Every key is stored as prefix + key.
type Storage struct {
	db     redis.UniversalClient
	prefix string
}

// NewStorage creates a key-value storage whose keys are namespaced by prefix.
func NewStorage(client redis.UniversalClient, prefix string) *Storage {
	return &Storage{db: client, prefix: prefix}
}

func (s *Storage) key(k string) string {
	return s.prefix + k
}

// Get returns nil for empty keys and missing values (redis.Nil becomes nil).
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	val, err := s.db.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

// Set stores key-value with expiration. Zero duration means no expiration.
func (s *Storage) Set(ctx context.Context, key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	return s.db.Set(ctx, s.key(key), val, exp).Err()
}

// SetNX stores the value only if the key does not exist yet and reports
// whether it was stored.
func (s *Storage) SetNX(ctx context.Context, key string, val []byte, exp time.Duration) (bool, error) {
	if key == "" {
		return false, nil
	}
	return s.db.SetNX(ctx, s.key(key), val, exp).Result()
}

// Delete removes a key. Empty keys are ignored.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return s.db.Del(ctx, s.key(key)).Err()
}
